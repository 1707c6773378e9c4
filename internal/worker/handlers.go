package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/shaiso/Montecarlo/internal/domain"
	"github.com/shaiso/Montecarlo/internal/mq"
	"github.com/shaiso/Montecarlo/internal/telemetry"
)

// maxRetryInterval — потолок паузы между попытками выполнения.
const maxRetryInterval = 30 * time.Second

// handleTask обрабатывает одну задачу из очереди задач.
//
// Результат обработчика определяет судьбу сообщения (см. mq.Settle):
//   - nil — ack (успех, мусорное сообщение, политика drop)
//   - ошибка с mq.ErrRequeue — вернуть в очередь (результат не опубликован, остановка)
//   - иная ошибка — nack без requeue, задача уходит в DLQ
func (w *Worker) handleTask(ctx context.Context, d *mq.Delivery) error {
	task, err := domain.ParseTask(d.Body(), d.MessageID())
	if err != nil {
		// Poison message: подтверждаем, иначе оно будет возвращаться бесконечно
		telemetry.TasksTotal.WithLabelValues("malformed").Inc()
		w.logger.Warn("malformed task",
			"message_id", d.MessageID(),
			"error", err,
		)
		return nil
	}

	logger := telemetry.WithTaskID(w.logger, task.ID)

	if w.currentStrategy() == nil {
		logger.Error("task received before model", "error", ErrNoModel)
		return fmt.Errorf("%w: %w", mq.ErrRequeue, ErrNoModel)
	}

	w.setState(domain.WorkerStateProcessing)
	defer w.setState(domain.WorkerStateReady)

	logger.Debug("task started",
		"sample_count", task.SampleCount,
		"redelivered", d.Redelivered(),
	)

	start := time.Now()
	hits, err := w.executeWithRetry(telemetry.WithLogger(ctx, logger), task)
	elapsed := time.Since(start)
	if err != nil {
		return w.handleFailure(ctx, logger, task, err)
	}

	telemetry.TaskDuration.Observe(elapsed.Seconds())

	// Сначала результат, потом ack: иначе вычисленная работа может потеряться
	rec := domain.NewResultRecord(task, hits, w.id, elapsed)
	model, _ := w.Model()
	if err := w.publisher.PublishResult(ctx, rec, model.Stamp()); err != nil {
		telemetry.TasksTotal.WithLabelValues("requeued").Inc()
		logger.Error("result publish failed", "error", err)
		return fmt.Errorf("%w: publish result: %w", mq.ErrRequeue, err)
	}

	telemetry.TasksTotal.WithLabelValues("succeeded").Inc()
	logger.Info("task succeeded",
		"sample_count", task.SampleCount,
		"hit_count", hits,
		"duration_ms", elapsed.Milliseconds(),
	)

	return nil
}

// handleFailure применяет политику к упавшей задаче.
func (w *Worker) handleFailure(ctx context.Context, logger *slog.Logger, task domain.ScenarioTask, err error) error {
	// Остановка worker'а — не ошибка задачи, пусть её заберёт другой
	if ctx.Err() != nil {
		telemetry.TasksTotal.WithLabelValues("requeued").Inc()
		logger.Info("task interrupted, requeueing", "error", err)
		return fmt.Errorf("%w: %w", mq.ErrRequeue, ctx.Err())
	}

	logger.Error("task execution failed",
		"sample_count", task.SampleCount,
		"policy", w.policy,
		"error", err,
	)

	if w.policy == domain.FailurePolicyDrop {
		telemetry.TasksTotal.WithLabelValues("dropped").Inc()
		return nil
	}

	telemetry.TasksTotal.WithLabelValues("dead_lettered").Inc()
	return fmt.Errorf("dead-letter task %s: %w", task.ID, err)
}

// executeWithRetry выполняет задачу, повторяя до maxAttempts раз с exponential backoff.
func (w *Worker) executeWithRetry(ctx context.Context, task domain.ScenarioTask) (int, error) {
	logger := telemetry.FromContext(ctx)

	var (
		hits    int
		attempt int
	)

	operation := func() error {
		attempt++

		h, err := w.execute(ctx, task)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}

		hits = h
		return nil
	}

	notify := func(err error, delay time.Duration) {
		logger.Debug("retrying task",
			"attempt", attempt,
			"delay", delay,
			"error", err,
		)
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = w.retryInterval
	policy.MaxInterval = maxRetryInterval
	policy.MaxElapsedTime = 0

	b := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(w.maxAttempts-1)), ctx)
	if err := backoff.RetryNotify(operation, b, notify); err != nil {
		if ctx.Err() != nil {
			return 0, err
		}
		return 0, fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, attempt, err)
	}

	return hits, nil
}

// execute выполняет стратегию один раз с бюджетом taskTimeout.
//
// Panic стратегии превращается в ErrExecutionFailed.
func (w *Worker) execute(ctx context.Context, task domain.ScenarioTask) (hits int, err error) {
	ctx, cancel := context.WithTimeout(ctx, w.taskTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			hits, err = 0, fmt.Errorf("%w: panic: %v", ErrExecutionFailed, r)
		}
	}()

	hits, err = w.currentStrategy().Execute(ctx, task.SampleCount)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return 0, fmt.Errorf("%w: %s", ErrExecutionTimeout, w.taskTimeout)
		}
		return 0, fmt.Errorf("%w: %w", ErrExecutionFailed, err)
	}

	if hits < 0 || hits > task.SampleCount {
		return 0, fmt.Errorf("%w: %w: %d of %d", ErrExecutionFailed, domain.ErrHitsOutOfRange, hits, task.SampleCount)
	}

	return hits, nil
}
