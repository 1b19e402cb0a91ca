package api

import (
	"encoding/json"
	"net/http"

	"github.com/ghlvoice/control-plane/internal/api/handlers"
	"github.com/ghlvoice/control-plane/internal/api/middleware"
	"github.com/ghlvoice/control-plane/internal/config"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const serviceName = "ghl-voice-governor"

// NewRouter creates the HTTP router with all API routes.
// gatherer backs /metrics; auth may be nil or disabled.
func NewRouter(cfg *config.Config, h *handlers.Handlers, gatherer prometheus.Gatherer, auth *middleware.APIKeyAuth) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.LocationExtractor)
	r.Use(middleware.Logger)
	r.Use(middleware.Telemetry)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-GHL-Location-Id", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id", "X-Trace-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	if auth != nil {
		r.Use(auth.Middleware)
	}

	// Health & info
	r.Get("/health", healthHandler)
	r.Get("/version", versionHandler(cfg))
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		// Agent governance
		r.Route("/agents/{agentID}", func(r chi.Router) {
			r.Get("/governance", h.GetGovernance)
			r.Post("/evaluations", h.RecordEvaluation)
			r.Get("/gate", h.CheckGate)

			r.Route("/budget", func(r chi.Router) {
				r.Get("/", h.GetBudget)
				r.Put("/", h.SetBudget)
				r.Post("/check", h.CheckBudget)
				r.Post("/consume", h.ConsumeBudget)
				r.Post("/reserve", h.ReserveBudget)
			})
			r.Post("/cache-hits", h.RecordCacheHit)

			r.Post("/invocations", h.RecordInvocation)
			r.Get("/observability", h.GetObservability)
		})

		// Webhook handlers
		r.Route("/webhooks", func(r chi.Router) {
			r.Post("/handlers", h.RegisterWebhookHandler)
			r.Get("/handlers/{handlerID}", h.GetWebhookHandler)
			r.Delete("/handlers/{handlerID}", h.RemoveWebhookHandler)
			r.Post("/events", h.ProcessWebhookEvent)
		})

		r.Get("/audit", h.ListAuditRecords)
	})

	return r
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"service": serviceName,
	})
}

func versionHandler(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"version": cfg.Version,
			"service": serviceName,
		})
	}
}
