package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/speedy-van/dispatch/api/routes"
	"github.com/speedy-van/dispatch/internal/assignment"
	"github.com/speedy-van/dispatch/internal/audit"
	"github.com/speedy-van/dispatch/internal/consolidation"
	"github.com/speedy-van/dispatch/internal/manualroutes"
	"github.com/speedy-van/dispatch/internal/routingconfig"
	"github.com/speedy-van/dispatch/pkg/config"
	"github.com/speedy-van/dispatch/pkg/db"
	"github.com/speedy-van/dispatch/pkg/logger"
	"github.com/speedy-van/dispatch/pkg/maps"
	"github.com/speedy-van/dispatch/pkg/metrics"
	"github.com/speedy-van/dispatch/pkg/migrate"
	"github.com/speedy-van/dispatch/pkg/outbox"
	"github.com/speedy-van/dispatch/pkg/payments"
	"github.com/speedy-van/dispatch/pkg/pricing"
	"github.com/speedy-van/dispatch/pkg/redis"
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

	pricingClient, err := pricing.NewClient(cfg.Pricing.BaseURL, cfg.Pricing.APIKey,
		pricing.WithHTTPClient(&http.Client{Timeout: cfg.Pricing.Timeout}))
	if err != nil {
		logg.Error(context.Background(), "failed to create pricing client", err)
		os.Exit(1)
	}

	paymentsClient, err := payments.NewClient(context.Background(), cfg.Stripe, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create payments client", err)
		os.Exit(1)
	}

	mapsClient, err := maps.NewClient(cfg.Maps.APIKey,
		maps.WithHTTPClient(&http.Client{Timeout: cfg.Maps.Timeout}))
	if err != nil {
		logg.Error(context.Background(), "failed to create maps client", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	routingMetrics := metrics.NewRoutingMetrics(registry)

	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)
	auditor := audit.NewWriter(logg)

	configService, err := routingconfig.NewService(
		routingconfig.NewRepository(dbClient.DB()), dbClient, outboxService, auditor)
	if err != nil {
		logg.Error(context.Background(), "failed to create routing config service", err)
		os.Exit(1)
	}

	offersService, err := assignment.NewService(assignment.Params{
		Repo:    assignment.NewRepository(dbClient.DB()),
		Tx:      dbClient,
		Outbox:  outboxService,
		Auditor: auditor,
		Metrics: routingMetrics,
		Logger:  logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create assignment service", err)
		os.Exit(1)
	}

	consolidationService, err := consolidation.NewService(consolidation.Params{
		Repo:            consolidation.NewRepository(dbClient.DB()),
		Tx:              dbClient,
		Config:          configService,
		Guard:           redisClient,
		Outbox:          outboxService,
		Auditor:         auditor,
		Pricer:          pricingClient,
		Refunds:         paymentsClient,
		Distance:        mapsClient,
		Inviter:         offersService,
		Metrics:         routingMetrics,
		Logger:          logg,
		LookaheadWindow: cfg.Routing.LookaheadWindow,
		BatchSize:       cfg.Routing.BatchSize,
		LockTTL:         cfg.Routing.LockTTL,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create consolidation service", err)
		os.Exit(1)
	}

	routesService, err := manualroutes.NewService(manualroutes.Params{
		Repo:    manualroutes.NewRepository(dbClient.DB()),
		Tx:      dbClient,
		Config:  configService,
		Outbox:  outboxService,
		Auditor: auditor,
		Inviter: offersService,
		Logger:  logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create manual routes service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": id,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg, logg, dbClient, redisClient, nil, registry,
			configService, routesService, offersService, consolidationService),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
