package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/speedy-van/dispatch/internal/assignment"
	"github.com/speedy-van/dispatch/internal/audit"
	"github.com/speedy-van/dispatch/internal/consolidation"
	"github.com/speedy-van/dispatch/internal/cron"
	"github.com/speedy-van/dispatch/internal/routingconfig"
	"github.com/speedy-van/dispatch/pkg/config"
	"github.com/speedy-van/dispatch/pkg/db"
	"github.com/speedy-van/dispatch/pkg/logger"
	"github.com/speedy-van/dispatch/pkg/maps"
	"github.com/speedy-van/dispatch/pkg/metrics"
	"github.com/speedy-van/dispatch/pkg/outbox"
	"github.com/speedy-van/dispatch/pkg/payments"
	"github.com/speedy-van/dispatch/pkg/pricing"
	"github.com/speedy-van/dispatch/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
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
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap redis", err)
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
		logg.Error(ctx, "failed to create pricing client", err)
		os.Exit(1)
	}

	paymentsClient, err := payments.NewClient(ctx, cfg.Stripe, logg)
	if err != nil {
		logg.Error(ctx, "failed to create payments client", err)
		os.Exit(1)
	}

	mapsClient, err := maps.NewClient(cfg.Maps.APIKey,
		maps.WithHTTPClient(&http.Client{Timeout: cfg.Maps.Timeout}))
	if err != nil {
		logg.Error(ctx, "failed to create maps client", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	cronMetrics := metrics.NewCronJobMetrics(registry)
	routingMetrics := metrics.NewRoutingMetrics(registry)

	outboxRepo := outbox.NewRepository(dbClient.DB())
	outboxService := outbox.NewService(outboxRepo, logg)
	auditor := audit.NewWriter(logg)

	configService, err := routingconfig.NewService(
		routingconfig.NewRepository(dbClient.DB()), dbClient, outboxService, auditor)
	if err != nil {
		logg.Error(ctx, "failed to create routing config service", err)
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
		logg.Error(ctx, "failed to create assignment service", err)
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
		logg.Error(ctx, "failed to create consolidation service", err)
		os.Exit(1)
	}

	offerExpiryJob, err := cron.NewOfferExpiryJob(cron.OfferExpiryJobParams{
		Logger:  logg,
		Sweeper: offersService,
	})
	if err != nil {
		logg.Error(ctx, "failed to create offer expiry job", err)
		os.Exit(1)
	}

	autoRoutingJob, err := cron.NewAutoRoutingJob(cron.AutoRoutingJobParams{
		Logger: logg,
		Runner: consolidationService,
		Config: configService,
	})
	if err != nil {
		logg.Error(ctx, "failed to create auto routing job", err)
		os.Exit(1)
	}

	retentionJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		DB:         dbClient,
		Repository: outboxRepo,
	})
	if err != nil {
		logg.Error(ctx, "failed to create outbox retention job", err)
		os.Exit(1)
	}

	lock, err := cron.NewRedisLock(redisClient, cfg.Routing.LockTTL)
	if err != nil {
		logg.Error(ctx, "failed to create cron lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(offerExpiryJob, autoRoutingJob, retentionJob),
		Lock:     lock,
		Metrics:  cronMetrics,
		Interval: cfg.Routing.ExpirySweepInterval,
	})
	if err != nil {
		logg.Error(ctx, "failed to create cron service", err)
		os.Exit(1)
	}

	logg.Info(logg.WithField(ctx, "env", cfg.App.Env), "starting cron worker")

	if err := service.Run(ctx); err != nil && err != context.Canceled {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(context.Background(), "cron worker shut down")
}
