package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики Worker'а.
var (
	// TasksTotal — обработанные задачи по исходу.
	// outcome: succeeded, malformed, dropped, dead_lettered, requeued.
	TasksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "montecarlo_worker_tasks_total",
		Help: "Scenario tasks handled by the worker, by outcome",
	}, []string{"outcome"})

	// TaskDuration — время выполнения стратегии на одну задачу.
	TaskDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "montecarlo_worker_task_duration_seconds",
		Help:    "Strategy execution time per scenario task",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
	})

	// BootstrapAttempts — попытки получить дескриптор модели.
	BootstrapAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "montecarlo_worker_bootstrap_attempts_total",
		Help: "Model bootstrap attempts, by result",
	}, []string{"result"})

	// HandshakeTotal — результаты handshake.
	HandshakeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "montecarlo_handshake_total",
		Help: "Handshake negotiations, by result",
	}, []string{"result"})
)

// Метрики Aggregator'а.
var (
	// Estimate — текущая оценка.
	Estimate = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "montecarlo_aggregator_estimate",
		Help: "Current global estimate",
	})

	// TotalPoints — сумма точек по свёрнутым результатам.
	TotalPoints = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "montecarlo_aggregator_total_points",
		Help: "Total sampled points folded into the estimate",
	})

	// Scenarios — количество свёрнутых сценариев.
	Scenarios = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "montecarlo_aggregator_scenarios",
		Help: "Scenario results folded into the estimate",
	})

	// ResultsTotal — результаты по исходу: folded, duplicate, rejected.
	ResultsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "montecarlo_aggregator_results_total",
		Help: "Result records consumed by the aggregator, by outcome",
	}, []string{"outcome"})
)

// Метрики Producer'а.
var (
	// PublishedTotal — опубликованные сообщения по типу.
	PublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "montecarlo_producer_published_total",
		Help: "Messages published by the producer, by type",
	}, []string{"type"})
)
