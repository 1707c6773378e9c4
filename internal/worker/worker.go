package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/shaiso/Montecarlo/internal/domain"
	"github.com/shaiso/Montecarlo/internal/handshake"
	"github.com/shaiso/Montecarlo/internal/mq"
	"github.com/shaiso/Montecarlo/internal/strategy"
	"github.com/shaiso/Montecarlo/internal/telemetry"
)

// Default configuration values.
const (
	defaultBootstrapInterval = 2 * time.Second
	defaultTaskTimeout       = time.Minute
	defaultMaxAttempts       = 3
	defaultRetryInterval     = 500 * time.Millisecond
	defaultUnitSize          = handshake.DefaultUnitSize

	// prefetch — не больше одной неподтверждённой задачи на worker.
	prefetch = 1
)

// Worker выполняет задачи сценариев.
//
// Worker — stateless компонент:
//   - один раз согласует размер задачи (handshake, опционально)
//   - получает дескриптор модели и создаёт стратегию (bootstrap)
//   - обрабатывает задачи по одной: выполнить, опубликовать результат, ack
//
// Несколько экземпляров потребляют из одной очереди задач.
type Worker struct {
	id string

	// MQ
	broker    mq.Broker
	publisher *mq.Publisher

	registry   *strategy.Registry
	negotiator handshake.Negotiator
	clock      clockwork.Clock

	// Configuration
	bootstrapInterval time.Duration
	taskTimeout       time.Duration
	maxAttempts       int
	retryInterval     time.Duration
	policy            domain.FailurePolicy
	defaultUnitSize   int

	logger *slog.Logger

	// Состояние. model и strategy пишутся один раз при bootstrap.
	mu       sync.RWMutex
	state    domain.WorkerState
	model    domain.ModelDescriptor
	strategy strategy.Strategy
	unitSize int
	ready    chan struct{}
}

// Config — конфигурация Worker.
type Config struct {
	// ID — идентификатор worker'а (опционально; если пусто — NewID()).
	ID string

	// Broker — транспорт (AMQPBroker или memq.Broker).
	Broker mq.Broker

	// Publisher (опционально; если nil — создаётся поверх Broker).
	Publisher *mq.Publisher

	// Registry стратегий (опционально; если nil — strategy.DefaultRegistry()).
	Registry *strategy.Registry

	// Negotiator handshake (опционально; nil — без handshake).
	Negotiator handshake.Negotiator

	// Clock для ожидания в bootstrap (опционально; для тестов).
	Clock clockwork.Clock

	BootstrapInterval time.Duration        // пауза при пустой очереди модели (default: 2s)
	TaskTimeout       time.Duration        // бюджет на выполнение одной задачи (default: 1m)
	MaxAttempts       int                  // попыток выполнения задачи (default: 3)
	RetryInterval     time.Duration        // первая пауза между попытками (default: 500ms)
	FailurePolicy     domain.FailurePolicy // default: dead-letter
	DefaultUnitSize   int                  // размер задачи без handshake (default: 1000)

	// Logger
	Logger *slog.Logger
}

// New создаёт новый Worker.
func New(cfg Config) *Worker {
	id := cfg.ID
	if id == "" {
		id = NewID()
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = telemetry.WithWorkerID(logger, id)

	publisher := cfg.Publisher
	if publisher == nil {
		publisher = mq.NewPublisher(cfg.Broker, logger)
	}

	registry := cfg.Registry
	if registry == nil {
		registry = strategy.DefaultRegistry()
	}

	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	policy := cfg.FailurePolicy
	if policy == "" {
		policy = domain.FailurePolicyDeadLetter
	}

	return &Worker{
		id:                id,
		broker:            cfg.Broker,
		publisher:         publisher,
		registry:          registry,
		negotiator:        cfg.Negotiator,
		clock:             clock,
		bootstrapInterval: orDefault(cfg.BootstrapInterval, defaultBootstrapInterval),
		taskTimeout:       orDefault(cfg.TaskTimeout, defaultTaskTimeout),
		maxAttempts:       orDefault(cfg.MaxAttempts, defaultMaxAttempts),
		retryInterval:     orDefault(cfg.RetryInterval, defaultRetryInterval),
		policy:            policy,
		defaultUnitSize:   orDefault(cfg.DefaultUnitSize, defaultUnitSize),
		logger:            logger,
		state:             domain.WorkerStateBootstrapping,
		ready:             make(chan struct{}),
	}
}

func orDefault[T int | time.Duration](v, def T) T {
	if v <= 0 {
		return def
	}
	return v
}

// Run запускает Worker и блокируется до отмены ctx.
//
// Фазы выполняются строго последовательно:
//  1. handshake (не дольше таймаута, ошибка — локальный размер задачи)
//  2. bootstrap модели (до успеха или отмены ctx)
//  3. цикл задач с prefetch=1
//
// Возвращает nil при штатной остановке в цикле задач и ошибку,
// оборачивающую ErrBootstrapAborted, если модель так и не была получена.
func (w *Worker) Run(ctx context.Context) error {
	defer w.setState(domain.WorkerStateStopped)

	w.logger.Info("starting worker",
		"failure_policy", w.policy,
		"task_timeout", w.taskTimeout,
		"max_attempts", w.maxAttempts,
	)

	w.negotiate(ctx)

	if err := w.bootstrap(ctx); err != nil {
		return err
	}

	err := w.broker.Consume(ctx, mq.QueueTasks, prefetch, w.handleTask)
	if err != nil && ctx.Err() != nil {
		err = nil
	}

	w.logger.Info("worker stopped")
	return err
}

// negotiate выполняет handshake и запоминает размер задачи.
func (w *Worker) negotiate(ctx context.Context) {
	unitSize, err := handshake.Resolve(ctx, w.negotiator, w.id, w.defaultUnitSize)
	switch {
	case errors.Is(err, handshake.ErrDisabled):
		w.logger.Debug("handshake disabled", "unit_size", unitSize)
	case err != nil:
		w.logger.Warn("handshake fallback", "unit_size", unitSize, "error", err)
	default:
		w.logger.Info("handshake accepted", "unit_size", unitSize)
	}

	w.mu.Lock()
	w.unitSize = unitSize
	w.mu.Unlock()
}

// ID возвращает идентификатор worker'а.
func (w *Worker) ID() string {
	return w.id
}

// State возвращает текущее состояние.
func (w *Worker) State() domain.WorkerState {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state
}

// Model возвращает загруженный дескриптор. ok=false — модели ещё нет.
func (w *Worker) Model() (domain.ModelDescriptor, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.model, w.strategy != nil
}

// UnitSize возвращает согласованный размер задачи.
func (w *Worker) UnitSize() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.unitSize
}

// Ready закрывается, когда worker получил модель.
func (w *Worker) Ready() <-chan struct{} {
	return w.ready
}

func (w *Worker) setState(state domain.WorkerState) {
	w.mu.Lock()
	defer w.mu.Unlock()

	// STOPPED финальный, READY не откатывается в BOOTSTRAPPING
	if w.state == domain.WorkerStateStopped {
		return
	}
	if w.state.HasModel() && state == domain.WorkerStateBootstrapping {
		return
	}
	w.state = state
}

func (w *Worker) currentStrategy() strategy.Strategy {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.strategy
}
