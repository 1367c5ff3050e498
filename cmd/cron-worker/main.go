package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/rosca-settlement/internal/bootstrap"
	"github.com/angelmondragon/rosca-settlement/internal/cron"
	"github.com/angelmondragon/rosca-settlement/pkg/bigquery"
	"github.com/angelmondragon/rosca-settlement/pkg/config"
	"github.com/angelmondragon/rosca-settlement/pkg/db"
	"github.com/angelmondragon/rosca-settlement/pkg/instance"
	"github.com/angelmondragon/rosca-settlement/pkg/logger"
	"github.com/angelmondragon/rosca-settlement/pkg/metrics"
	"github.com/angelmondragon/rosca-settlement/pkg/migrate"
	"github.com/angelmondragon/rosca-settlement/pkg/outbox"
	"github.com/angelmondragon/rosca-settlement/pkg/redis"
)

const (
	serviceKind    = "cron-worker"
	lockNameFormat = "cron-worker:%s"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: serviceKind})
	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = serviceKind
	logg = logger.New(logger.Options{
		ServiceName: serviceKind,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": serviceKind,
		"instance":    instance.GetID(),
	})

	if err := run(ctx, cfg, logg); err != nil {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		stop()
		os.Exit(1)
	}
	logg.Info(ctx, "cron worker shut down gracefully")
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) error {
	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("bootstrap database: %w", err)
	}
	defer closeWith(logg, "database", dbClient.Close)

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return fmt.Errorf("dev migrations: %w", err)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return fmt.Errorf("bootstrap redis: %w", err)
	}
	defer closeWith(logg, "redis", redisClient.Close)

	stack, err := bootstrap.NewSettlement(cfg, logg, dbClient, metrics.NewSettlementMetrics(prometheus.DefaultRegisterer))
	if err != nil {
		return fmt.Errorf("wire settlement components: %w", err)
	}

	var warehouse *bigquery.Client
	if cfg.BigQuery.Enabled() {
		warehouse, err = bigquery.NewClient(ctx, cfg.GCP, cfg.BigQuery, logg)
		if err != nil {
			return fmt.Errorf("bootstrap bigquery: %w", err)
		}
		defer closeWith(logg, "bigquery client", warehouse.Close)
	}

	registry, err := buildRegistry(cfg, logg, dbClient, stack, warehouse)
	if err != nil {
		return fmt.Errorf("register cron jobs: %w", err)
	}
	lock, err := cron.NewRedisLock(redisClient, lockName(cfg.App.Env), instance.GetID(), 0)
	if err != nil {
		return fmt.Errorf("cron lock: %w", err)
	}
	service, err := cron.NewService(cron.ServiceParams{
		Logger:     logg,
		Registry:   registry,
		Lock:       lock,
		Metrics:    metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval:   cfg.Settlement.CronInterval,
		JobTimeout: cfg.Settlement.CronJobTimeout,
	})
	if err != nil {
		return fmt.Errorf("cron service: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return service.Run(gctx) })
	g.Go(func() error { return metrics.Serve(gctx, cfg.Service.MetricsAddr, prometheus.DefaultGatherer, logg) })
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func closeWith(logg *logger.Logger, name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logg.Error(context.Background(), "error closing "+name, err)
	}
}

func buildRegistry(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, stack *bootstrap.Settlement, warehouse *bigquery.Client) (*cron.Registry, error) {
	settlementJob, err := cron.NewSettlementJob(cron.SettlementJobParams{
		Logger: logg,
		Batch:  stack.Batch,
	})
	if err != nil {
		return nil, err
	}

	pollJob, err := cron.NewPayoutPollJob(cron.PayoutPollJobParams{
		Logger:      logg,
		Payouts:     stack.Payouts,
		Gateway:     stack.Gateway,
		Reconciler:  stack.Webhooks,
		MinAge:      cfg.Settlement.PollMinAge,
		Limit:       cfg.Settlement.PollBatchLimit,
		CallTimeout: cfg.Settlement.CallTimeout,
	})
	if err != nil {
		return nil, err
	}

	sweepJob, err := cron.NewCompensationSweepJob(cron.CompensationSweepJobParams{
		Logger:  logg,
		DB:      dbClient,
		Ledger:  stack.Ledger,
		Payouts: stack.Payouts,
		MinAge:  cfg.Settlement.SweepMinAge,
	})
	if err != nil {
		return nil, err
	}

	retentionJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:        logg,
		DB:            dbClient,
		Repository:    outbox.NewRepository(dbClient.DB()),
		RetentionDays: cfg.Outbox.RetentionDays,
		MaxAttempts:   cfg.Outbox.MaxAttempts,
	})
	if err != nil {
		return nil, err
	}

	jobs := []cron.Job{settlementJob, pollJob, sweepJob, retentionJob}
	if warehouse != nil {
		exportJob, err := cron.NewSettlementExportJob(cron.SettlementExportJobParams{
			Logger:  logg,
			Payouts: stack.Payouts,
			Sink:    warehouse,
			Window:  cfg.BigQuery.ExportWindow,
		})
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, exportJob)
	}

	registry := cron.NewRegistry()
	for _, job := range jobs {
		if err := registry.Register(job); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

func lockName(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockNameFormat, env)
}
