package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/talrozen/courierdesk-backend/api/controllers"
	"github.com/talrozen/courierdesk-backend/api/routes"
	"github.com/talrozen/courierdesk-backend/internal/audit"
	"github.com/talrozen/courierdesk-backend/internal/drivers"
	"github.com/talrozen/courierdesk-backend/internal/inventory"
	"github.com/talrozen/courierdesk-backend/internal/marketplace"
	"github.com/talrozen/courierdesk-backend/internal/orders"
	"github.com/talrozen/courierdesk-backend/internal/permissions"
	"github.com/talrozen/courierdesk-backend/internal/restock"
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

	var pubsubClient *pubsub.Client
	if cfg.GCP.ProjectID != "" {
		pubsubClient, err = pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap pubsub", err)
			os.Exit(1)
		}
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing pubsub client", err)
			}
		}()
	} else {
		logg.Warn(context.Background(), "gcp project id not set, pubsub disabled")
	}

	gormDB := dbClient.DB()
	ledgerMetrics := metrics.NewLedgerMetrics(prometheus.DefaultRegisterer)
	authz := permissions.NewStaticAuthorizer()
	outboxSvc := outbox.NewService(outbox.NewRepository(gormDB), logg)

	auditSvc, err := audit.NewService(audit.NewRepository(gormDB))
	if err != nil {
		logg.Error(context.Background(), "failed to create audit service", err)
		os.Exit(1)
	}

	inventoryRepo := inventory.NewRepository(gormDB)
	driverInventoryRepo := drivers.NewInventoryRepository(gormDB)
	driverStatusRepo := drivers.NewStatusRepository(gormDB)

	inventorySvc, err := inventory.NewService(
		inventoryRepo,
		driverInventoryRepo,
		auditSvc,
		dbClient,
		outboxSvc,
		authz,
		ledgerMetrics,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create inventory service", err)
		os.Exit(1)
	}

	driversSvc, err := drivers.NewService(
		driverStatusRepo,
		driverInventoryRepo,
		redisClient,
		cfg.Presence,
		cfg.Marketplace,
		logg,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create drivers service", err)
		os.Exit(1)
	}

	restockSvc, err := restock.NewService(
		restock.NewRepository(gormDB),
		inventoryRepo,
		auditSvc,
		dbClient,
		outboxSvc,
		authz,
		ledgerMetrics,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create restock service", err)
		os.Exit(1)
	}

	ordersRepo := orders.NewRepository(gormDB)
	ordersSvc, err := orders.NewService(
		ordersRepo,
		ordersRepo,
		inventorySvc,
		driverStatusRepo,
		dbClient,
		outboxSvc,
		authz,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create orders service", err)
		os.Exit(1)
	}

	marketplaceSvc, err := marketplace.NewService(
		marketplace.NewRepository(gormDB),
		ordersRepo,
		driverStatusRepo,
		redisClient,
		dbClient,
		outboxSvc,
		authz,
		cfg.Marketplace,
		ledgerMetrics,
		logg,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create marketplace service", err)
		os.Exit(1)
	}

	health := map[string]controllers.Pinger{
		"database": dbClient,
		"redis":    redisClient,
	}
	if pubsubClient != nil {
		health["pubsub"] = pubsubClient
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
		Handler: routes.NewRouter(
			cfg,
			logg,
			health,
			redisClient,
			auditSvc,
			inventorySvc,
			restockSvc,
			ordersSvc,
			marketplaceSvc,
			driversSvc,
		),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
