package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/kasiviral/kasiviral-backend/api/routes"
	"github.com/kasiviral/kasiviral-backend/internal/entitlements"
	"github.com/kasiviral/kasiviral-backend/internal/identity"
	"github.com/kasiviral/kasiviral-backend/internal/threads"
	stripewebhook "github.com/kasiviral/kasiviral-backend/internal/webhooks/stripe"
	"github.com/kasiviral/kasiviral-backend/pkg/config"
	"github.com/kasiviral/kasiviral-backend/pkg/db"
	"github.com/kasiviral/kasiviral-backend/pkg/enums"
	"github.com/kasiviral/kasiviral-backend/pkg/logger"
	"github.com/kasiviral/kasiviral-backend/pkg/metrics"
	"github.com/kasiviral/kasiviral-backend/pkg/migrate"
	"github.com/kasiviral/kasiviral-backend/pkg/redis"
	"github.com/kasiviral/kasiviral-backend/pkg/stripe"
)

const shutdownTimeout = 15 * time.Second

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
		Level:       cfg.App.LogLevel,
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
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

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

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

	verifier, err := identity.New(cfg.Identity, &http.Client{Timeout: cfg.Identity.Timeout}, logg)
	if err != nil {
		logg.Error(ctx, "failed to create identity verifier", err)
		os.Exit(1)
	}

	defaultPlan, err := enums.ParsePlan(cfg.Entitlements.DefaultPlan)
	if err != nil {
		logg.Error(ctx, "invalid default plan", err)
		os.Exit(1)
	}
	entitlementService, err := entitlements.NewService(entitlements.ServiceParams{
		Store:       entitlements.NewRepository(dbClient.DB()),
		Logger:      logg,
		DefaultPlan: defaultPlan,
		GraceWindow: cfg.Entitlements.GraceWindow(),
	})
	if err != nil {
		logg.Error(ctx, "failed to create entitlement service", err)
		os.Exit(1)
	}

	var generator threads.Generator = threads.Disabled{}
	if strings.TrimSpace(cfg.Threads.APIKey) != "" {
		client, err := threads.NewClient(threads.ClientParams{Config: cfg.Threads, Logger: logg})
		if err != nil {
			logg.Error(ctx, "failed to create thread generator", err)
			os.Exit(1)
		}
		generator = client
	} else {
		logg.Warn(ctx, "threads api key not set; generation disabled")
	}

	deps := routes.Dependencies{
		Config:       cfg,
		Logger:       logg,
		DB:           dbClient,
		Redis:        redisClient,
		Verifier:     verifier,
		Entitlements: entitlementService,
		Threads:      generator,
	}

	if cfg.Stripe.Enabled() {
		stripeClient, err := stripe.NewClient(ctx, cfg.Stripe, logg)
		if err != nil {
			logg.Error(ctx, "failed to create stripe client", err)
			os.Exit(1)
		}
		webhookService, err := stripewebhook.NewService(stripewebhook.ServiceParams{
			Entitlements: entitlementService,
			Plans:        stripeClient,
			Logger:       logg,
		})
		if err != nil {
			logg.Error(ctx, "failed to create stripe webhook service", err)
			os.Exit(1)
		}
		guard, err := stripewebhook.NewEventGuard(redisClient, cfg.Stripe.IdempotencyTTL, "stripe-webhook")
		if err != nil {
			logg.Error(ctx, "failed to create stripe event guard", err)
			os.Exit(1)
		}
		deps.StripeClient = stripeClient
		deps.StripeWebhook = webhookService
		deps.StripeGuard = guard
	} else {
		logg.Warn(ctx, "stripe not configured; billing webhook disabled")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	deps.Access = metrics.NewAccessMetrics(registry)
	deps.Metrics = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": id,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(groupCtx), shutdownTimeout)
		defer cancel()
		logg.Info(ctx, "api server shutting down")
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "api server stopped")
}
