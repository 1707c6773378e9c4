// Montecarlo Worker — выполняет задачи сценариев.
//
// Worker:
//   - Согласует размер задачи с handshake сервером (если задан HANDSHAKE_ADDR)
//   - Получает дескриптор модели из очереди модели (один раз)
//   - Потребляет задачи по одной, публикует результат, затем ack
//   - Упавшие задачи повторяет с exponential backoff, затем DLQ или drop
//
// Workers масштабируются горизонтально.
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

	"github.com/shaiso/Montecarlo/internal/config"
	"github.com/shaiso/Montecarlo/internal/domain"
	"github.com/shaiso/Montecarlo/internal/handshake"
	"github.com/shaiso/Montecarlo/internal/mq"
	"github.com/shaiso/Montecarlo/internal/telemetry"
	"github.com/shaiso/Montecarlo/internal/worker"
)

func main() {
	logger := telemetry.SetupLogger()
	logger.Info("starting montecarlo-worker")

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// RabbitMQ: без брокера worker бесполезен
	conn, err := mq.NewConnection(ctx, mq.ConnectionConfig{URL: cfg.RabbitMQURL, Logger: logger})
	if err != nil {
		logger.Error("connection failed", "error", err)
		os.Exit(1)
	}
	defer conn.Close()

	if err := mq.SetupTopology(ctx, conn); err != nil {
		logger.Warn("failed to setup topology", "error", err)
	}

	// Handshake (опционально)
	var negotiator handshake.Negotiator
	if cfg.Worker.HandshakeAddr != "" {
		client, err := handshake.NewClient(cfg.Worker.HandshakeAddr, cfg.Handshake.Timeout)
		if err != nil {
			logger.Warn("handshake client unavailable", "error", err)
		} else {
			defer client.Close()
			negotiator = client
		}
	}

	w := worker.New(worker.Config{
		ID:                cfg.Worker.ID,
		Broker:            mq.NewAMQPBroker(conn, logger),
		Negotiator:        negotiator,
		BootstrapInterval: cfg.Worker.BootstrapInterval,
		TaskTimeout:       cfg.Worker.TaskTimeout,
		MaxAttempts:       cfg.Worker.MaxAttempts,
		FailurePolicy:     domain.ParseFailurePolicy(cfg.Worker.FailurePolicy),
		DefaultUnitSize:   cfg.Worker.DefaultUnitSize,
		Logger:            logger,
	})

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, _ *http.Request) {
		rw.WriteHeader(http.StatusOK)
		rw.Write([]byte(w.State()))
	})
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:    ":" + cfg.Worker.Port,
		Handler: mux,
	}

	go func() {
		logger.Info("listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	runErr := w.Run(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	server.Shutdown(shutdownCtx)

	if runErr != nil && !errors.Is(runErr, worker.ErrBootstrapAborted) {
		logger.Error("worker failed", "error", runErr)
		os.Exit(1)
	}
	logger.Info("montecarlo-worker stopped", "worker_id", w.ID())
}
