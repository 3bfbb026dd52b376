package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kirillkom/catalog-search/internal/bootstrap"
	"github.com/kirillkom/catalog-search/internal/config"
	"github.com/kirillkom/catalog-search/internal/observability/logging"
	"github.com/kirillkom/catalog-search/internal/observability/metrics"
)

const indexTimeout = 2 * time.Minute

func main() {
	cfg := config.Load()
	logger := logging.New(logging.Options{Service: "worker", Level: cfg.LogLevel})
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, "worker")
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	if app.IndexUC == nil {
		logger.Error("worker_requires_vector_index", "hint", "set QDRANT_URL")
		return
	}

	workerMetrics := metrics.NewWorkerMetrics("worker")
	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           workerMetrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("worker_metrics_server_failed", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	if cfg.ReindexOnStart {
		go func() {
			start := time.Now()
			indexed, err := app.IndexUC.ReindexAll(ctx)
			if err != nil {
				logger.Error("reindex_failed", "indexed", indexed, "error", err)
				return
			}
			logger.Info("reindex_completed", "indexed", indexed, "duration_ms", time.Since(start).Milliseconds())
		}()
	}

	logger.Info("worker_subscribed", "subject", cfg.NATSRecordSubject)
	err = app.Events.SubscribeRecordChanged(ctx, func(handlerCtx context.Context, recordID int64) error {
		indexCtx, cancel := context.WithTimeout(handlerCtx, indexTimeout)
		defer cancel()

		start := time.Now()
		workerMetrics.StartRecord()
		err := app.IndexUC.IndexByID(indexCtx, recordID)
		workerMetrics.FinishRecord(time.Since(start), err)
		return err
	})
	if err != nil {
		logger.Error("worker_subscribe_failed", "error", err)
	}
}
