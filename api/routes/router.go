package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/rosca-settlement/api/controllers"
	webhookcontrollers "github.com/angelmondragon/rosca-settlement/api/controllers/webhooks"
	"github.com/angelmondragon/rosca-settlement/api/middleware"
	"github.com/angelmondragon/rosca-settlement/internal/instantpayout"
	"github.com/angelmondragon/rosca-settlement/internal/payouts"
	gatewaywebhook "github.com/angelmondragon/rosca-settlement/internal/webhooks/gateway"
	"github.com/angelmondragon/rosca-settlement/pkg/config"
	"github.com/angelmondragon/rosca-settlement/pkg/enums"
	"github.com/angelmondragon/rosca-settlement/pkg/logger"
	"github.com/angelmondragon/rosca-settlement/pkg/metrics"
	pkgredis "github.com/angelmondragon/rosca-settlement/pkg/redis"
)

type pinger interface {
	Ping(ctx context.Context) error
}

// redisStore is the slice of the redis client the HTTP layer needs.
type redisStore interface {
	pkgredis.IdempotencyStore
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	Ping(ctx context.Context) error
}

type Dependencies struct {
	Config         *config.Config
	Logger         *logger.Logger
	DB             pinger
	Redis          redisStore
	Gatherer       prometheus.Gatherer
	Payouts        payouts.Service
	InstantPayouts instantpayout.Service
	Webhooks       *gatewaywebhook.Service
	WebhookGuard   *gatewaywebhook.IdempotencyGuard
	Metrics        *metrics.SettlementMetrics
}

func NewRouter(deps Dependencies) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	// a nil *redis.Client must not reach middleware as a non-nil interface
	var redisP pinger
	var idempotencyStore pkgredis.IdempotencyStore
	var limiterStore redisStore
	if deps.Redis != nil {
		redisP = deps.Redis
		idempotencyStore = deps.Redis
		limiterStore = deps.Redis
	}

	r := chi.NewRouter()
	r.Use(
		middleware.RequestID(logg),
		middleware.Recoverer(logg),
		middleware.AccessLog(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	instantPolicy := middleware.NewRateLimitPolicy(
		"instant-payout",
		cfg.RateLimit.InstantWindow,
		cfg.RateLimit.InstantIPLimit,
		cfg.RateLimit.InstantUserLimit,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.DB, redisP))
	})
	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/gateway", webhookcontrollers.GatewayWebhook(webhookcontrollers.GatewayWebhookParams{
			Service: webhookService(deps.Webhooks),
			Guard:   webhookGuard(deps.WebhookGuard),
			Secret:  cfg.Gateway.WebhookSecret,
			Metrics: deps.Metrics,
			Logger:  logg,
		}))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		moneyMove := r.With(middleware.Idempotency(idempotencyStore, middleware.MoneyIdempotencyTTL, logg))

		r.Get("/payouts/{payoutId}", controllers.PayoutDetail(deps.Payouts, logg))
		moneyMove.With(middleware.RateLimit(instantPolicy, limiterStore, logg)).
			Post("/payouts/{payoutId}/instant", controllers.InstantPayout(deps.InstantPayouts, logg))
		r.With(middleware.Idempotency(idempotencyStore, middleware.DefaultIdempotencyTTL, logg)).
			Put("/me/pin", controllers.SetPIN(deps.InstantPayouts, logg))
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(logg, enums.RoleAdmin))
		moneyMove := r.With(middleware.Idempotency(idempotencyStore, middleware.MoneyIdempotencyTTL, logg))

		r.Get("/payouts", controllers.AdminPayoutList(deps.Payouts, logg))
		moneyMove.Post("/payouts/{payoutId}/reverse", controllers.AdminPayoutReverse(deps.Payouts, logg))
		moneyMove.Post("/payouts/{payoutId}/retry", controllers.AdminPayoutRetry(deps.Payouts, logg))
	})

	return r
}

func webhookService(svc *gatewaywebhook.Service) webhookcontrollers.GatewayWebhookService {
	if svc == nil {
		return nil
	}
	return svc
}

func webhookGuard(guard *gatewaywebhook.IdempotencyGuard) webhookcontrollers.GatewayWebhookGuard {
	if guard == nil {
		return nil
	}
	return guard
}
