package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/joho/godotenv"

	"github.com/talrozen/courierdesk-backend/internal/drivers"
	"github.com/talrozen/courierdesk-backend/internal/marketplace"
	"github.com/talrozen/courierdesk-backend/internal/orders"
	"github.com/talrozen/courierdesk-backend/internal/permissions"
	"github.com/talrozen/courierdesk-backend/pkg/config"
	"github.com/talrozen/courierdesk-backend/pkg/db"
	"github.com/talrozen/courierdesk-backend/pkg/logger"
	"github.com/talrozen/courierdesk-backend/pkg/metrics"
	"github.com/talrozen/courierdesk-backend/pkg/migrate"
	"github.com/talrozen/courierdesk-backend/pkg/outbox"
	"github.com/talrozen/courierdesk-backend/pkg/pubsub"
	"github.com/talrozen/courierdesk-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "outbox-publisher"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "outbox-publisher",
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

	pubsubClient, err := pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap pubsub", err)
		os.Exit(1)
	}
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing pubsub client", err)
		}
	}()

	gormDB := dbClient.DB()
	ledgerMetrics := metrics.NewLedgerMetrics(nil)

	ordersRepo := orders.NewRepository(gormDB)
	marketplaceSvc, err := marketplace.NewService(
		marketplace.NewRepository(gormDB),
		ordersRepo,
		drivers.NewStatusRepository(gormDB),
		redisClient,
		dbClient,
		outbox.NewService(outbox.NewRepository(gormDB), logg),
		permissions.NewStaticAuthorizer(),
		cfg.Marketplace,
		ledgerMetrics,
		logg,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create marketplace service", err)
		os.Exit(1)
	}

	service, err := NewService(ServiceParams{
		Config:        cfg,
		Logger:        logg,
		DB:            dbClient,
		PubSub:        pubsubClient,
		Repository:    outbox.NewRepository(gormDB),
		DLQRepository: outbox.NewDLQRepository(gormDB),
		Sweeper:       marketplaceSvc,
		Metrics:       ledgerMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create outbox publisher", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": "outbox-publisher",
	})
	logg.Info(ctx, "starting outbox publisher")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "outbox publisher stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "outbox publisher shutting down gracefully")
}
