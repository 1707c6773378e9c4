package worker

import (
	"context"
	"fmt"

	"github.com/shaiso/Montecarlo/internal/domain"
	"github.com/shaiso/Montecarlo/internal/mq"
	"github.com/shaiso/Montecarlo/internal/strategy"
	"github.com/shaiso/Montecarlo/internal/telemetry"
)

// bootstrap ждёт дескриптор модели.
//
// Очередь пуста — пауза bootstrapInterval и новая попытка, без ограничения
// числа попыток. Прерывается только отменой ctx. До успешного выхода
// очередь задач не читается.
func (w *Worker) bootstrap(ctx context.Context) error {
	w.setState(domain.WorkerStateBootstrapping)
	w.logger.Info("waiting for model", "queue", mq.QueueModel, "interval", w.bootstrapInterval)

	for attempt := 1; ; attempt++ {
		acquired, err := w.tryBootstrap(ctx)
		if acquired {
			return nil
		}
		if err != nil && ctx.Err() == nil {
			w.logger.Warn("bootstrap attempt failed", "attempt", attempt, "error", err)
		}

		select {
		case <-ctx.Done():
			w.logger.Info("bootstrap aborted", "attempts", attempt)
			return fmt.Errorf("%w: %w", ErrBootstrapAborted, ctx.Err())
		case <-w.clock.After(w.bootstrapInterval):
		}
	}
}

// tryBootstrap делает одну попытку забрать и применить дескриптор.
//
// Ack только после успешного создания стратегии. Нераспознанный или
// неизвестный дескриптор возвращается в очередь (nack с requeue).
func (w *Worker) tryBootstrap(ctx context.Context) (bool, error) {
	d, ok, err := w.broker.Get(ctx, mq.QueueModel)
	if err != nil {
		telemetry.BootstrapAttempts.WithLabelValues("error").Inc()
		return false, fmt.Errorf("get model: %w", err)
	}
	if !ok {
		telemetry.BootstrapAttempts.WithLabelValues("empty").Inc()
		w.logger.Debug("model queue empty, waiting")
		return false, nil
	}

	model, err := domain.ParseModel(d.Body())
	if err == nil {
		var s strategy.Strategy
		s, err = w.registry.Instantiate(model)
		if err == nil {
			return w.acquire(d, model, s)
		}
	}

	telemetry.BootstrapAttempts.WithLabelValues("rejected").Inc()
	w.logger.Error("model instantiation failed",
		"message_id", d.MessageID(),
		"error", err,
	)

	if nackErr := d.Nack(true); nackErr != nil {
		return false, fmt.Errorf("nack model: %w", nackErr)
	}
	return false, err
}

// acquire подтверждает дескриптор и переводит worker в READY.
func (w *Worker) acquire(d *mq.Delivery, model domain.ModelDescriptor, s strategy.Strategy) (bool, error) {
	if err := d.Ack(); err != nil {
		// Без ack брокер вернёт дескриптор в очередь, пробуем заново
		telemetry.BootstrapAttempts.WithLabelValues("error").Inc()
		return false, fmt.Errorf("ack model: %w", err)
	}

	w.mu.Lock()
	w.model = model
	w.strategy = s
	w.state = domain.WorkerStateReady
	close(w.ready)
	w.mu.Unlock()

	telemetry.BootstrapAttempts.WithLabelValues("acquired").Inc()
	w.logger.Info("model acquired",
		"version", model.Version,
		"strategy", model.Strategy,
		"multiplier", model.Multiplier,
	)

	return true, nil
}
