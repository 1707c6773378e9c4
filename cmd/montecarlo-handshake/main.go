// Montecarlo Handshake — согласует с worker'ами размер задачи по gRPC.
package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Montecarlo/internal/config"
	"github.com/shaiso/Montecarlo/internal/handshake"
	"github.com/shaiso/Montecarlo/internal/telemetry"
)

// metricsPort — порт /healthz и /metrics.
const metricsPort = "8084"

func main() {
	logger := telemetry.SetupLogger()
	logger.Info("starting montecarlo-handshake")

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	lis, err := net.Listen("tcp", ":"+cfg.Handshake.Port)
	if err != nil {
		logger.Error("listen failed", "error", err)
		os.Exit(1)
	}

	srv := handshake.NewServer(handshake.Policy{
		UnitSize:      cfg.Handshake.UnitSize,
		AllowPrefixes: cfg.Handshake.AllowPrefixes,
	}, logger)

	go func() {
		logger.Info("grpc listening", "addr", lis.Addr().String())
		if err := srv.Serve(lis); err != nil {
			logger.Error("grpc server error", "error", err)
			cancel()
		}
	}()

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	httpServer := &http.Server{Addr: ":" + metricsPort, Handler: mux}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	srv.GracefulStop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	httpServer.Shutdown(shutdownCtx)

	logger.Info("stopped")
}
