package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/kirillkom/catalog-search/internal/adapters/http"
	"github.com/kirillkom/catalog-search/internal/bootstrap"
	"github.com/kirillkom/catalog-search/internal/config"
	"github.com/kirillkom/catalog-search/internal/observability/logging"
	"golang.org/x/net/netutil"
)

func main() {
	cfg := config.Load()
	logger := logging.New(logging.Options{Service: "api", Level: cfg.LogLevel})
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, "api")
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	go app.Cache.Run(ctx, cfg.CacheSweepInterval)

	go func() {
		err := app.Events.SubscribeCacheInvalidated(ctx, func(context.Context) error {
			app.Invalidator.Purge()
			return nil
		})
		if err != nil {
			logger.Error("cache_invalidation_subscribe_failed", "error", err)
		}
	}()

	router := httpadapter.NewRouter(cfg, app.SearchUC, app.ChangesUC, app.HTTPMetrics).Handler()
	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	listener, err := net.Listen("tcp", server.Addr)
	if err != nil {
		logger.Error("api_listen_failed", "error", err)
		return
	}
	if cfg.APIMaxConnections > 0 {
		listener = netutil.LimitListener(listener, cfg.APIMaxConnections)
	}

	go func() {
		logger.Info("api_listening", "port", cfg.APIPort, "max_connections", cfg.APIMaxConnections)
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api_server_failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("api_shutdown_failed", "error", err)
	}
}
