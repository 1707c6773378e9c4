package aggregator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/robfig/cron/v3"

	"github.com/shaiso/Montecarlo/internal/domain"
	"github.com/shaiso/Montecarlo/internal/mq"
	"github.com/shaiso/Montecarlo/internal/telemetry"
)

// DefaultReportSchedule — расписание отчёта о прогрессе.
const DefaultReportSchedule = "@every 5s"

// CheckpointStore сохраняет состояние агрегатора между перезапусками.
//
// Реализация: repo.CheckpointRepo (PostgreSQL).
type CheckpointStore interface {
	// Lock захватывает право записи checkpoint'а run'а.
	// Занято другим экземпляром — ошибка, оборачивающая ErrLocked.
	Lock(ctx context.Context, runID string) (release func(), err error)

	// Load возвращает checkpoint. ok=false — сохранений ещё не было.
	Load(ctx context.Context, runID string) (cp Checkpoint, ok bool, err error)

	// Save перезаписывает состояние и добавляет cp.ConsumedIDs
	// к уже сохранённым id run'а. Всё или ничего.
	Save(ctx context.Context, runID string, cp Checkpoint) error
}

// Config — конфигурация Aggregator.
type Config struct {
	Broker mq.Broker

	// State (опционально; если nil — NewState(Multiplier, Dedup)).
	State *State

	// Multiplier — запасной множитель, пока не пришёл результат с меткой
	// модели (см. State.Adopt).
	Multiplier float64
	Dedup      bool

	// Reference — точное значение оцениваемой величины для отчёта (0 — нет).
	Reference float64

	// ReportSchedule — cron выражение отчёта; пусто — без отчёта.
	ReportSchedule string

	// Prefetch (default: 1).
	Prefetch int

	// Checkpoint (опционально).
	Store CheckpointStore
	RunID string

	Logger *slog.Logger
}

// Aggregator потребляет результаты и поддерживает общую оценку.
//
// Один последовательный consumer: свёртка коммутативна и ассоциативна,
// порядок результатов между worker'ами не важен.
type Aggregator struct {
	broker    mq.Broker
	state     *State
	reference float64
	schedule  string
	prefetch  int
	store     CheckpointStore
	runID     string
	logger    *slog.Logger
}

// New создаёт Aggregator.
func New(cfg Config) *Aggregator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	state := cfg.State
	if state == nil {
		state = NewState(cfg.Multiplier, cfg.Dedup)
	}

	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = 1
	}

	runID := cfg.RunID
	if runID == "" {
		runID = "default"
	}

	return &Aggregator{
		broker:    cfg.Broker,
		state:     state,
		reference: cfg.Reference,
		schedule:  cfg.ReportSchedule,
		prefetch:  prefetch,
		store:     cfg.Store,
		runID:     runID,
		logger:    telemetry.WithComponent(logger, "aggregator"),
	}
}

// State возвращает владельца состояния (для снимков из HTTP API).
func (a *Aggregator) State() *State {
	return a.state
}

// Run потребляет очередь результатов до отмены ctx.
func (a *Aggregator) Run(ctx context.Context) error {
	if a.store != nil {
		release, err := a.restore(ctx)
		if err != nil {
			return err
		}
		defer release()
	}

	if a.schedule != "" {
		c := cron.New()
		if _, err := c.AddFunc(a.schedule, a.Report); err != nil {
			return fmt.Errorf("report schedule %q: %w", a.schedule, err)
		}
		c.Start()
		defer func() { <-c.Stop().Done() }()
	}

	a.logger.Info("aggregator started",
		"queue", mq.QueueResults,
		"dedup", a.state.Dedup(),
		"run_id", a.runID,
	)

	err := a.broker.Consume(ctx, mq.QueueResults, a.prefetch, a.handleResult)
	if err != nil && ctx.Err() != nil {
		err = nil
	}

	a.Report()
	a.logger.Info("aggregator stopped")
	return err
}

// restore захватывает checkpoint run'а и загружает сохранённое состояние.
func (a *Aggregator) restore(ctx context.Context) (func(), error) {
	release, err := a.store.Lock(ctx, a.runID)
	if err != nil {
		return nil, fmt.Errorf("lock checkpoint %s: %w", a.runID, err)
	}

	cp, ok, err := a.store.Load(ctx, a.runID)
	if err != nil {
		release()
		return nil, fmt.Errorf("load checkpoint %s: %w", a.runID, err)
	}
	if ok {
		a.state.Restore(cp)
		a.logger.Info("checkpoint restored",
			"run_id", a.runID,
			"scenarios", cp.State.ScenarioCount,
			"total_points", cp.State.TotalPoints,
		)
	}

	return release, nil
}

// handleResult учитывает один результат.
func (a *Aggregator) handleResult(ctx context.Context, d *mq.Delivery) error {
	rec, err := domain.ParseResult(d.Body())
	if err != nil {
		a.state.Reject()
		telemetry.ResultsTotal.WithLabelValues("rejected").Inc()
		a.logger.Warn("malformed result", "message_id", d.MessageID(), "error", err)
		return nil
	}

	if stamp, ok := d.ModelStamp(); ok {
		if err := a.state.Adopt(stamp); err != nil {
			telemetry.ResultsTotal.WithLabelValues("rejected").Inc()
			a.logger.Warn("result rejected", "scenario_id", rec.ScenarioID, "error", err)
			return nil
		}
	}

	applied, err := a.state.Fold(rec)
	switch {
	case errors.Is(err, ErrRejected):
		telemetry.ResultsTotal.WithLabelValues("rejected").Inc()
		a.logger.Warn("result rejected", "scenario_id", rec.ScenarioID, "error", err)
		return nil
	case !applied:
		telemetry.ResultsTotal.WithLabelValues("duplicate").Inc()
		a.logger.Debug("duplicate result", "scenario_id", rec.ScenarioID, "redelivered", d.Redelivered())
	default:
		telemetry.ResultsTotal.WithLabelValues("folded").Inc()
		snap := a.state.Snapshot()
		telemetry.Estimate.Set(snap.Estimate)
		telemetry.TotalPoints.Set(float64(snap.TotalPoints))
		telemetry.Scenarios.Set(float64(snap.ScenarioCount))

		a.logger.Debug("result folded",
			"scenario_id", rec.ScenarioID,
			"worker_id", rec.WorkerID,
			"estimate", snap.Estimate,
		)
	}

	// Checkpoint до ack, в том числе для дубликата: его первая свёртка
	// могла не сохраниться
	return a.persist(ctx)
}

// persist сохраняет несохранённые изменения состояния.
// Ошибка оборачивает mq.ErrRequeue: сообщение не подтверждается.
func (a *Aggregator) persist(ctx context.Context) error {
	if a.store == nil {
		return nil
	}

	cp, mark, dirty := a.state.Delta()
	if !dirty {
		return nil
	}

	if err := a.store.Save(ctx, a.runID, cp); err != nil {
		a.logger.Error("checkpoint save failed", "error", err, "pending_ids", len(cp.ConsumedIDs))
		return fmt.Errorf("%w: checkpoint: %w", mq.ErrRequeue, err)
	}
	a.state.MarkSaved(cp, mark)
	return nil
}

// Report логирует текущую оценку и активность worker'ов.
func (a *Aggregator) Report() {
	snap := a.state.Snapshot()

	attrs := []any{
		"estimate", snap.Estimate,
		"total_points", snap.TotalPoints,
		"scenarios", snap.ScenarioCount,
		"duplicates", snap.Duplicates,
		"rejected", snap.Rejected,
	}
	if a.reference != 0 && snap.TotalPoints > 0 {
		attrs = append(attrs, "abs_error", math.Abs(snap.Estimate-a.reference))
	}
	a.logger.Info("progress", attrs...)

	for _, w := range SortedWorkers(snap) {
		a.logger.Info("worker activity", "worker_id", w.WorkerID, "scenarios", w.Scenarios)
	}
}

// WorkerActivity — строка таблицы активности.
type WorkerActivity struct {
	WorkerID  string `json:"worker_id"`
	Scenarios int    `json:"scenarios"`
}

// SortedWorkers возвращает активность worker'ов по убыванию числа сценариев.
func SortedWorkers(snap domain.AggregateState) []WorkerActivity {
	workers := make([]WorkerActivity, 0, len(snap.PerWorkerCounts))
	for id, n := range snap.PerWorkerCounts {
		workers = append(workers, WorkerActivity{WorkerID: id, Scenarios: n})
	}

	sort.Slice(workers, func(i, j int) bool {
		if workers[i].Scenarios != workers[j].Scenarios {
			return workers[i].Scenarios > workers[j].Scenarios
		}
		return workers[i].WorkerID < workers[j].WorkerID
	})
	return workers
}
