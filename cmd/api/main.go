package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/rosca-settlement/api/routes"
	"github.com/angelmondragon/rosca-settlement/internal/bootstrap"
	"github.com/angelmondragon/rosca-settlement/internal/instantpayout"
	gatewaywebhook "github.com/angelmondragon/rosca-settlement/internal/webhooks/gateway"
	"github.com/angelmondragon/rosca-settlement/pkg/config"
	"github.com/angelmondragon/rosca-settlement/pkg/db"
	"github.com/angelmondragon/rosca-settlement/pkg/instance"
	"github.com/angelmondragon/rosca-settlement/pkg/logger"
	"github.com/angelmondragon/rosca-settlement/pkg/metrics"
	"github.com/angelmondragon/rosca-settlement/pkg/migrate"
	"github.com/angelmondragon/rosca-settlement/pkg/redis"
)

const (
	webhookGuardScope = "gateway-webhook"
	shutdownTimeout   = 20 * time.Second
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
	cfg.Service.Kind = "api"
	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"instance": instance.GetID(),
		"reserve":  cfg.Reserve.Mode,
	})

	if err := run(ctx, cfg, logg); err != nil {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		stop()
		os.Exit(1)
	}
	logg.Info(ctx, "api server shut down gracefully")
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

	settlementMetrics := metrics.NewSettlementMetrics(prometheus.DefaultRegisterer)
	stack, err := bootstrap.NewSettlement(cfg, logg, dbClient, settlementMetrics)
	if err != nil {
		return fmt.Errorf("wire settlement components: %w", err)
	}
	instantSvc, err := instantpayout.NewService(instantpayout.ServiceParams{
		Users:   stack.Users,
		Payouts: stack.Payouts,
		Engine:  stack.Engine,
		Limiter: redisClient,
		PIN:     cfg.PIN,
		Logger:  logg,
	})
	if err != nil {
		return fmt.Errorf("instant payout service: %w", err)
	}
	guard, err := gatewaywebhook.NewIdempotencyGuard(redisClient, cfg.Webhook.IdempotencyTTL, webhookGuardScope)
	if err != nil {
		return fmt.Errorf("webhook guard: %w", err)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	server := &http.Server{
		Addr:              ":" + port,
		ReadHeaderTimeout: 10 * time.Second,
		Handler: routes.NewRouter(routes.Dependencies{
			Config:         cfg,
			Logger:         logg,
			DB:             dbClient,
			Redis:          redisClient,
			Gatherer:       prometheus.DefaultGatherer,
			Payouts:        stack.PayoutService,
			InstantPayouts: instantSvc,
			Webhooks:       stack.Webhooks,
			WebhookGuard:   guard,
			Metrics:        settlementMetrics,
		}),
	}

	ctx = logg.WithField(ctx, "addr", server.Addr)
	if cfg.Gateway.WebhookSecret == "" {
		logg.Warn(ctx, "gateway webhook secret not set; callbacks will not be verified")
	}
	logg.Info(ctx, "starting api server")

	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe() }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	}
}

func closeWith(logg *logger.Logger, name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logg.Error(context.Background(), "error closing "+name, err)
	}
}
