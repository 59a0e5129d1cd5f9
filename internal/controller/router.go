package controller

import (
	"net/http"
	"time"

	"github.com/cassiomorais/checkout-reconciler/internal/application/checkout"
	"github.com/cassiomorais/checkout-reconciler/internal/application/reconcile"
	"github.com/cassiomorais/checkout-reconciler/internal/domain/order"
	"github.com/cassiomorais/checkout-reconciler/internal/infrastructure/config"
	"github.com/cassiomorais/checkout-reconciler/internal/infrastructure/observability"
	customMW "github.com/cassiomorais/checkout-reconciler/internal/middleware"
	"github.com/cassiomorais/checkout-reconciler/internal/webhook"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

type RouterDeps struct {
	Health           *HealthController
	Orders           order.Store
	Reconciler       *reconcile.Reconciler
	Initiate         *checkout.InitiateUseCase
	Nonces           checkout.NonceStore
	IdempotencyStore customMW.IdempotencyStore
	Gate             *webhook.Gate
	Metrics          *observability.Metrics
	MetricsHandler   http.Handler
	Server           config.ServerConfig
	Reconcile        config.ReconcileConfig
	JWTSecret        string
	Logger           zerolog.Logger
}

func NewRouter(deps RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(customMW.RequestLogger(deps.Logger))
	r.Use(customMW.Tracing())
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))
	r.Use(customMW.SecurityHeaders())
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Server.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		AllowCredentials: deps.Server.CORS.AllowCredentials,
		MaxAge:           300,
	}))
	r.Use(customMW.Metrics(deps.Metrics))

	metricsHandler := deps.MetricsHandler
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}

	webhookH := NewWebhookController(deps.Reconciler, deps.Reconcile.HomeURL, deps.Metrics, deps.Logger)
	returnH := NewReturnController(deps.Reconciler, deps.Nonces, deps.Reconcile, deps.Logger)
	checkoutH := NewCheckoutController(deps.Initiate, deps.Orders)
	adminH := NewAdminController(deps.Reconciler, deps.Orders, deps.Logger)

	if deps.Health != nil {
		r.Get("/health", deps.Health.Health)
		r.Get("/health/live", deps.Health.Liveness)
		r.Get("/health/ready", deps.Health.Readiness)
	}

	r.Handle("/metrics", metricsHandler)

	rateLimit := customMW.RateLimit(deps.Server.RateLimit, time.Minute)

	r.Route("/payment", func(r chi.Router) {
		r.Use(rateLimit)
		r.Get("/return", returnH.Return)
		r.With(customMW.WebhookSignature(deps.Gate, deps.Reconcile.HomeURL, deps.Metrics)).
			Post("/webhook", webhookH.Handle)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.With(
			rateLimit,
			customMW.RequireAuth(deps.JWTSecret, customMW.RoleCustomer, customMW.RoleAdmin),
			customMW.Idempotency(deps.IdempotencyStore),
		).Post("/orders/{id}/checkout", checkoutH.Initiate)

		r.Route("/admin/orders/{id}", func(r chi.Router) {
			r.Use(customMW.RequireAuth(deps.JWTSecret, customMW.RoleAdmin))
			r.Get("/", adminH.GetOrder)
			r.Post("/requery", adminH.Requery)
			r.Post("/timeout", adminH.Timeout)
		})
	})

	return r
}
