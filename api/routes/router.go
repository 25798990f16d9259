package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kasiviral/kasiviral-backend/api/controllers"
	webhookcontrollers "github.com/kasiviral/kasiviral-backend/api/controllers/webhooks"
	"github.com/kasiviral/kasiviral-backend/api/middleware"
	"github.com/kasiviral/kasiviral-backend/internal/entitlements"
	"github.com/kasiviral/kasiviral-backend/internal/identity"
	"github.com/kasiviral/kasiviral-backend/internal/threads"
	stripewebhook "github.com/kasiviral/kasiviral-backend/internal/webhooks/stripe"
	"github.com/kasiviral/kasiviral-backend/pkg/config"
	"github.com/kasiviral/kasiviral-backend/pkg/logger"
	"github.com/kasiviral/kasiviral-backend/pkg/metrics"
	"github.com/kasiviral/kasiviral-backend/pkg/redis"
	"github.com/kasiviral/kasiviral-backend/pkg/stripe"
)

// Dependencies are the collaborators the HTTP surface is built from. Redis,
// Stripe and the metrics handler are optional.
type Dependencies struct {
	Config        *config.Config
	Logger        *logger.Logger
	DB            controllers.Pinger
	Redis         redis.Store
	Verifier      identity.Verifier
	Entitlements  entitlements.Service
	Threads       threads.Generator
	StripeClient  *stripe.Client
	StripeWebhook *stripewebhook.Service
	StripeGuard   *stripewebhook.EventGuard
	Access        *metrics.AccessMetrics
	Metrics       http.Handler
}

func NewRouter(deps Dependencies) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	var (
		idempotencyStore redis.IdempotencyStore
		rateLimiter      redis.RateLimiter
	)
	readiness := map[string]controllers.Pinger{"db": deps.DB}
	if deps.Redis != nil {
		idempotencyStore = deps.Redis
		rateLimiter = deps.Redis
		readiness["redis"] = deps.Redis
	}

	registerPolicy := middleware.NewRateLimitPolicy(
		"register",
		cfg.RateLimit.RegisterWindow,
		cfg.RateLimit.RegisterLimit,
		cfg.RateLimit.RegisterLimit,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, readiness, logg))
	})

	metricsHandler := deps.Metrics
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	r.Method(http.MethodGet, "/metrics", metricsHandler)

	if cfg.Stripe.Enabled() && deps.StripeClient != nil && deps.StripeWebhook != nil && deps.StripeGuard != nil {
		r.Post("/webhooks/stripe", webhookcontrollers.StripeWebhook(deps.StripeWebhook, deps.StripeClient, deps.StripeGuard, logg))
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(deps.Verifier, cfg.Identity.Timeout, deps.Access, logg))

		r.Get("/entitlement/me", controllers.EntitlementMe(deps.Entitlements, cfg.Entitlements.CheckTimeout, logg))
		if cfg.App.IsDev() && cfg.FeatureFlags.ActivationShortcut {
			r.Post("/entitlement/activate", controllers.EntitlementActivate(deps.Entitlements, logg))
		}

		r.With(middleware.RateLimit(registerPolicy, rateLimiter, logg)).
			Post("/principal/register", controllers.PrincipalRegister(deps.Entitlements, cfg.Entitlements.CheckTimeout, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireEntitlement(deps.Entitlements, cfg.Entitlements.CheckTimeout, deps.Access, logg))
			r.Use(middleware.Idempotency(0, idempotencyStore, logg))
			r.Post("/threads/generate", controllers.ThreadsGenerate(deps.Threads, logg))
		})
	})

	return r
}
