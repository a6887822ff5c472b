package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dcastano/pagosur-backend/api/routes"
	"github.com/dcastano/pagosur-backend/internal/reconcile"
	"github.com/dcastano/pagosur-backend/internal/replay"
	"github.com/dcastano/pagosur-backend/internal/signature"
	"github.com/dcastano/pagosur-backend/internal/tracking"
	"github.com/dcastano/pagosur-backend/pkg/config"
	"github.com/dcastano/pagosur-backend/pkg/db"
	"github.com/dcastano/pagosur-backend/pkg/logger"
	"github.com/dcastano/pagosur-backend/pkg/metrics"
	"github.com/dcastano/pagosur-backend/pkg/migrate"
	"github.com/dcastano/pagosur-backend/pkg/outbox"
	"github.com/dcastano/pagosur-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	verifier, err := signature.NewVerifier(cfg.Gateways)
	if err != nil {
		logg.Error(context.Background(), "failed to create signature verifier", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	webhookMetrics := metrics.NewWebhookMetrics(registry)

	guard, err := reconcile.NewIdempotencyGuard(redisClient, cfg.Gateways.IdempotencyTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create idempotency guard", err)
		os.Exit(1)
	}

	reconcileService, err := reconcile.NewService(reconcile.ServiceParams{
		Ledger:            reconcile.NewLedger(dbClient.DB()),
		Repo:              reconcile.NewRepository(dbClient.DB()),
		TransactionRunner: dbClient,
		Guard:             guard,
		Replays:           replay.NewRepository(dbClient.DB()),
		Outbox:            outbox.NewService(outbox.NewRepository(dbClient.DB()), logg),
		Metrics:           webhookMetrics,
		Logger:            logg,
		Config:            cfg.Reconcile,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create reconcile service", err)
		os.Exit(1)
	}

	trackingService, err := tracking.NewService(tracking.NewRepository(dbClient.DB()))
	if err != nil {
		logg.Error(context.Background(), "failed to create tracking service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.RouterParams{
			Config:           cfg,
			Logger:           logg,
			DBPinger:         dbClient,
			RedisPinger:      redisClient,
			ReconcileService: reconcileService,
			Verifier:         verifier,
			TrackingService:  trackingService,
			Metrics:          webhookMetrics,
			MetricsGatherer:  registry,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
