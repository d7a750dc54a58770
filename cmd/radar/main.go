package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	httpadapter "github.com/couchcryptid/neo-radar-service/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/neo-radar-service/internal/adapter/kafka"
	"github.com/couchcryptid/neo-radar-service/internal/adapter/nasa"
	"github.com/couchcryptid/neo-radar-service/internal/adapter/sqlite"
	"github.com/couchcryptid/neo-radar-service/internal/config"
	"github.com/couchcryptid/neo-radar-service/internal/observability"
	"github.com/couchcryptid/neo-radar-service/internal/repository"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := sqlite.Open(ctx, sqlite.Options{Path: cfg.DBPath, Metrics: metrics, Logger: logger})
	if err != nil {
		logger.Error("failed to open neo cache", "error", err)
		os.Exit(1)
	}

	client := nasa.NewClient(cfg.NASAAPIKey, cfg.NASABaseURL, cfg.NASATimeout, metrics, logger)

	var opts []repository.Option
	var writer *kafkaadapter.Writer
	if cfg.KafkaEnabled() {
		writer = kafkaadapter.NewWriter(cfg, logger)
		opts = append(opts, repository.WithPublisher(writer))
		logger.Info("kafka publishing enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	} else {
		logger.Info("kafka publishing disabled")
	}

	repo := repository.New(client, client, store, logger, metrics, opts...)
	scheduler := repository.NewScheduler(repo, cfg.RefreshSchedule, logger)
	srv := httpadapter.NewServer(cfg.HTTPAddr, repo, logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start refresh scheduler.
	schedulerDone := make(chan struct{})
	go func() {
		defer close(schedulerDone)
		if err := scheduler.Run(ctx); err != nil {
			logger.Error("refresh scheduler error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	select {
	case <-schedulerDone:
	case <-shutdownCtx.Done():
		logger.Warn("refresh scheduler did not stop before shutdown timeout")
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}
	if err := store.Close(); err != nil {
		logger.Error("neo cache close error", "error", err)
	}

	logger.Info("shutdown complete")
}
