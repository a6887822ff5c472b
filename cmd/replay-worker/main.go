package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sethvargo/go-retry"

	"github.com/dcastano/pagosur-backend/internal/reconcile"
	"github.com/dcastano/pagosur-backend/internal/replay"
	"github.com/dcastano/pagosur-backend/pkg/config"
	"github.com/dcastano/pagosur-backend/pkg/db"
	"github.com/dcastano/pagosur-backend/pkg/logger"
	"github.com/dcastano/pagosur-backend/pkg/metrics"
	"github.com/dcastano/pagosur-backend/pkg/outbox"
	"github.com/dcastano/pagosur-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "replay-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "replay-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer dbClient.Close()

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	// Transient startup hiccups (database restarting during deploy) get a
	// bounded exponential retry before the worker gives up.
	backoff := retry.WithMaxRetries(5, retry.NewExponential(500*time.Millisecond))
	if err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := dbClient.Ping(ctx); err != nil {
			return retry.RetryableError(err)
		}
		if err := redisClient.Ping(ctx); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	}); err != nil {
		logg.Error(ctx, "dependencies not ready", err)
		os.Exit(1)
	}

	webhookMetrics := metrics.NewWebhookMetrics(prometheus.NewRegistry())

	reconcileService, err := reconcile.NewService(reconcile.ServiceParams{
		Ledger:            reconcile.NewLedger(dbClient.DB()),
		Repo:              reconcile.NewRepository(dbClient.DB()),
		TransactionRunner: dbClient,
		Outbox:            outbox.NewService(outbox.NewRepository(dbClient.DB()), logg),
		Metrics:           webhookMetrics,
		Logger:            logg,
		Config:            cfg.Reconcile,
	})
	if err != nil {
		logg.Error(ctx, "failed to create reconcile service", err)
		os.Exit(1)
	}

	lock, err := replay.NewRedisLock(redisClient, redisClient.LockKey("replay-worker"), cfg.Replay.LockTTL)
	if err != nil {
		logg.Error(ctx, "failed to create replay lock", err)
		os.Exit(1)
	}

	worker, err := replay.NewWorker(replay.WorkerParams{
		Repository: replay.NewRepository(dbClient.DB()),
		Reconciler: reconcileService,
		Lock:       lock,
		Logger:     logg,
		Metrics:    webhookMetrics,
		Config:     cfg.Replay,
	})
	if err != nil {
		logg.Error(ctx, "failed to create replay worker", err)
		os.Exit(1)
	}

	logg.Info(logg.WithField(ctx, "env", cfg.App.Env), "starting replay worker")
	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logg.Error(ctx, "replay worker stopped unexpectedly", err)
		os.Exit(1)
	}
}
