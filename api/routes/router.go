package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zonecraft/portal-backend/api/controllers"
	"github.com/zonecraft/portal-backend/api/middleware"
	ledgersvc "github.com/zonecraft/portal-backend/internal/ledger"
	planssvc "github.com/zonecraft/portal-backend/internal/plans"
	subscriptionsvc "github.com/zonecraft/portal-backend/internal/subscriptions"
	"github.com/zonecraft/portal-backend/pkg/config"
	"github.com/zonecraft/portal-backend/pkg/db"
	"github.com/zonecraft/portal-backend/pkg/logger"
	"github.com/zonecraft/portal-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	planService planssvc.Service,
	subscriptionService subscriptionsvc.Service,
	ledgerService ledgersvc.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.CORS),
	)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"database": dbP,
			"redis":    redisClient,
		}))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/plans", controllers.PlansList(planService, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, logg))
			r.Use(middleware.Idempotency(redisClient, logg))
			r.Use(middleware.BillingRateLimit(cfg.RateLimit, redisClient, logg))

			r.Post("/subscriptions", controllers.SubscriptionPurchase(subscriptionService, logg))
			r.Post("/subscriptions/change", controllers.SubscriptionChange(subscriptionService, logg))
			r.Post("/subscriptions/{subscriptionId}/cancel", controllers.SubscriptionCancel(subscriptionService, logg))
			r.Get("/subscriptions/active", controllers.SubscriptionFetchActive(subscriptionService, logg))
			r.Get("/ledger", controllers.LedgerList(ledgerService, logg))
		})
	})

	return r
}
