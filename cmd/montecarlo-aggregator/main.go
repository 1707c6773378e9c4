// Montecarlo Aggregator — сворачивает результаты в общую оценку.
//
// Aggregator:
//   - Потребляет очередь результатов последовательно
//   - Отсеивает повторные доставки по scenario_id
//   - Периодически логирует оценку и активность worker'ов
//   - Отдаёт снимок по HTTP (/api/v1/estimate, /api/v1/workers)
//   - Если задан DB_URL, сохраняет checkpoint в PostgreSQL
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Montecarlo/internal/aggregator"
	"github.com/shaiso/Montecarlo/internal/api"
	"github.com/shaiso/Montecarlo/internal/config"
	"github.com/shaiso/Montecarlo/internal/mq"
	"github.com/shaiso/Montecarlo/internal/repo"
	"github.com/shaiso/Montecarlo/internal/strategy"
	"github.com/shaiso/Montecarlo/internal/telemetry"
)

func main() {
	logger := telemetry.SetupLogger()
	logger.Info("starting montecarlo-aggregator")

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Запасной множитель и эталон — по стратегии из конфигурации.
	// Множитель модели приходит с первым результатом (State.Adopt)
	multiplier := cfg.Aggregator.Multiplier
	var reference float64
	if def, ok := strategy.DefaultRegistry().Lookup(cfg.Aggregator.Strategy); ok {
		reference = def.Reference
		if multiplier == 0 {
			multiplier = def.Multiplier
		}
	}

	conn, err := mq.NewConnection(ctx, mq.ConnectionConfig{URL: cfg.RabbitMQURL, Logger: logger})
	if err != nil {
		logger.Error("connection failed", "error", err)
		os.Exit(1)
	}
	defer conn.Close()

	if err := mq.SetupTopology(ctx, conn); err != nil {
		logger.Warn("failed to setup topology", "error", err)
	}

	// Checkpoint (опционально)
	var store aggregator.CheckpointStore
	if cfg.DatabaseURL != "" {
		pool, err := repo.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		checkpoints := repo.NewCheckpointRepo(pool)
		if err := checkpoints.EnsureSchema(ctx); err != nil {
			logger.Error("failed to prepare checkpoint table", "error", err)
			os.Exit(1)
		}
		store = checkpoints
		logger.Info("database connected", "run_id", cfg.Aggregator.RunID)
	}

	agg := aggregator.New(aggregator.Config{
		Broker:         mq.NewAMQPBroker(conn, logger),
		Multiplier:     multiplier,
		Dedup:          cfg.Aggregator.Dedup,
		Reference:      reference,
		ReportSchedule: cfg.Aggregator.ReportSchedule,
		Prefetch:       cfg.Aggregator.Prefetch,
		Store:          store,
		RunID:          cfg.Aggregator.RunID,
		Logger:         logger,
	})

	handler := api.NewHandler(api.Config{
		Source:    agg.State(),
		Reference: reference,
		Logger:    logger,
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	handler.RegisterRoutes(mux)

	server := &http.Server{
		Addr:    ":" + cfg.Aggregator.Port,
		Handler: mux,
	}

	go func() {
		logger.Info("listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	runErr := agg.Run(ctx)

	// Graceful shutdown с таймаутом 10 секунд
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	if runErr != nil {
		logger.Error("aggregator failed", "error", runErr)
		os.Exit(1)
	}
	logger.Info("stopped")
}
