package producer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"

	"github.com/shaiso/Montecarlo/internal/domain"
	"github.com/shaiso/Montecarlo/internal/mq"
	"github.com/shaiso/Montecarlo/internal/telemetry"
)

// Config — конфигурация Producer.
type Config struct {
	Publisher *mq.Publisher

	// ModelTTL — время жизни дескриптора в очереди (default: mq.DefaultModelTTL).
	ModelTTL time.Duration

	// ModelCopies — сколько копий дескриптора публиковать (default: 1).
	// Каждый worker забирает одну копию.
	ModelCopies int

	// Rate — задач в секунду, 0 — без ограничения.
	Rate float64

	// Clock для Stream (опционально; для тестов).
	Clock clockwork.Clock

	Logger *slog.Logger
}

// Report — итог публикации.
type Report struct {
	ModelsPublished int      `json:"models_published"`
	Tasks           int      `json:"tasks"`
	Points          int      `json:"points"`
	Skipped         int      `json:"skipped"`
	TaskIDs         []string `json:"-"`
}

// Producer публикует модель и задачи одного run'а.
type Producer struct {
	publisher   *mq.Publisher
	modelTTL    time.Duration
	modelCopies int
	limiter     *rate.Limiter
	clock       clockwork.Clock
	logger      *slog.Logger
}

// New создаёт Producer.
func New(cfg Config) *Producer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	copies := cfg.ModelCopies
	if copies <= 0 {
		copies = 1
	}

	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	// burst = rps, как у token bucket в нагрузочных тестах
	var limiter *rate.Limiter
	if cfg.Rate > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.Rate), max(1, int(cfg.Rate)))
	}

	return &Producer{
		publisher:   cfg.Publisher,
		modelTTL:    cfg.ModelTTL,
		modelCopies: copies,
		limiter:     limiter,
		clock:       clock,
		logger:      telemetry.WithComponent(logger, "producer"),
	}
}

// Publish публикует модель, затем по задаче на каждое число точек.
//
// Неположительные значения пропускаются. Ошибка транспорта прерывает
// публикацию: Report содержит то, что успело уйти.
func (p *Producer) Publish(ctx context.Context, model domain.ModelDescriptor, counts []int) (Report, error) {
	var report Report

	if err := p.publishModel(ctx, model, &report); err != nil {
		return report, err
	}

	for _, n := range counts {
		if n <= 0 {
			report.Skipped++
			p.logger.Warn("skipping non-positive sample count", "value", n)
			continue
		}

		if err := p.publishTask(ctx, n, &report); err != nil {
			return report, err
		}
	}

	p.logger.Info("workload published",
		"version", model.Version,
		"tasks", report.Tasks,
		"points", report.Points,
		"skipped", report.Skipped,
	)

	return report, nil
}

// Stream публикует модель, затем задачу из unitSize точек каждый interval,
// пока не отменён ctx. Отмена ctx — штатное завершение.
func (p *Producer) Stream(ctx context.Context, model domain.ModelDescriptor, unitSize int, interval time.Duration) (Report, error) {
	var report Report

	if unitSize <= 0 {
		return report, fmt.Errorf("unit size must be positive, got %d", unitSize)
	}
	if interval <= 0 {
		return report, fmt.Errorf("interval must be positive, got %s", interval)
	}

	if err := p.publishModel(ctx, model, &report); err != nil {
		return report, err
	}

	ticker := p.clock.NewTicker(interval)
	defer ticker.Stop()

	p.logger.Info("streaming tasks", "unit_size", unitSize, "interval", interval)

	for {
		if err := p.publishTask(ctx, unitSize, &report); err != nil {
			if ctx.Err() != nil {
				return report, nil
			}
			return report, err
		}

		select {
		case <-ctx.Done():
			p.logger.Info("stream stopped", "tasks", report.Tasks, "points", report.Points)
			return report, nil
		case <-ticker.Chan():
		}
	}
}

func (p *Producer) publishModel(ctx context.Context, model domain.ModelDescriptor, report *Report) error {
	model = model.Normalize()
	if err := model.Validate(); err != nil {
		return fmt.Errorf("model: %w", err)
	}

	for i := 0; i < p.modelCopies; i++ {
		if err := p.publisher.PublishModel(ctx, model, p.modelTTL); err != nil {
			return fmt.Errorf("publish model: %w", err)
		}
		report.ModelsPublished++
		telemetry.PublishedTotal.WithLabelValues(string(mq.MessageTypeModel)).Inc()
	}

	return nil
}

func (p *Producer) publishTask(ctx context.Context, sampleCount int, report *Report) error {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit: %w", err)
		}
	}

	task := domain.ScenarioTask{ID: uuid.NewString(), SampleCount: sampleCount}
	if err := p.publisher.PublishTask(ctx, task); err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return fmt.Errorf("publish task %s: %w", task.ID, err)
	}

	report.Tasks++
	report.Points += sampleCount
	report.TaskIDs = append(report.TaskIDs, task.ID)
	telemetry.PublishedTotal.WithLabelValues(string(mq.MessageTypeTask)).Inc()

	return nil
}
