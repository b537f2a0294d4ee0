package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/zonecraft/portal-backend/api/routes"
	"github.com/zonecraft/portal-backend/internal/billing"
	"github.com/zonecraft/portal-backend/internal/ledger"
	"github.com/zonecraft/portal-backend/internal/plans"
	"github.com/zonecraft/portal-backend/internal/subscriptions"
	"github.com/zonecraft/portal-backend/internal/users"
	"github.com/zonecraft/portal-backend/pkg/config"
	"github.com/zonecraft/portal-backend/pkg/db"
	"github.com/zonecraft/portal-backend/pkg/dnshost"
	"github.com/zonecraft/portal-backend/pkg/logger"
	"github.com/zonecraft/portal-backend/pkg/metrics"
	"github.com/zonecraft/portal-backend/pkg/migrate"
	"github.com/zonecraft/portal-backend/pkg/redis"
	"github.com/zonecraft/portal-backend/pkg/tokenwallet"
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

	walletClient, err := tokenwallet.NewClient(context.Background(), cfg.TokenWallet, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create token wallet client", err)
		os.Exit(1)
	}

	dnsClient, err := dnshost.NewClient(context.Background(), cfg.DNSHost, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create dns host client", err)
		os.Exit(1)
	}

	billingRepo := billing.NewRepository(dbClient.DB())
	ledgerRepo := ledger.NewRepository(dbClient.DB())
	planRepo := plans.NewRepository(dbClient.DB())
	userRepo := users.NewRepository(dbClient.DB())

	planService, err := plans.NewService(planRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create plan service", err)
		os.Exit(1)
	}

	ledgerService, err := ledger.NewService(ledgerRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create ledger service", err)
		os.Exit(1)
	}

	billingMetrics := metrics.NewBillingMetrics(prometheus.DefaultRegisterer)
	subscriptionService, err := subscriptions.NewService(
		dbClient,
		billingRepo,
		ledgerRepo,
		planRepo,
		userRepo,
		walletClient,
		dnsClient,
		nil,
		logg,
		billingMetrics,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create subscription service", err)
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
		Addr:    addr,
		Handler: routes.NewRouter(cfg, logg, dbClient, redisClient, planService, subscriptionService, ledgerService),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
