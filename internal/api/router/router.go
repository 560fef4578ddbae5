// Package router assembles the HTTP surface from configured handlers.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/glowdesk/salon-platform/internal/http/handlers"
	httpmiddleware "github.com/glowdesk/salon-platform/internal/http/middleware"
	"github.com/glowdesk/salon-platform/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger             *logging.Logger
	Appointments       *handlers.AppointmentsHandler
	Cancellations      *handlers.CancellationsHandler
	AutomationRules    *handlers.AutomationRulesHandler
	AdminAuthSecret    string
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string
	HealthCheck        http.HandlerFunc
}

// New creates a Chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Group(func(public chi.Router) {
		if cfg.HealthCheck != nil {
			public.Get("/health", cfg.HealthCheck)
		} else {
			public.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(`{"status":"ok"}`))
			})
		}
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}

		if cfg.Appointments != nil {
			public.Route("/appointments", func(r chi.Router) {
				r.Post("/", cfg.Appointments.Create)
				r.Get("/", cfg.Appointments.List)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", cfg.Appointments.Get)
					r.Patch("/", cfg.Appointments.Update)
					r.Delete("/", cfg.Appointments.Delete)
					r.Post("/cancel", cfg.Appointments.Cancel)
					r.Get("/history", cfg.Appointments.History)
				})
			})
		}

		if cfg.Cancellations != nil {
			public.Route("/cancellations", func(r chi.Router) {
				r.Get("/", cfg.Cancellations.List)
				r.Get("/{originalID}", cfg.Cancellations.Get)
			})
		}
	})

	// Admin surfaces: the global ledger, refund corrections, and rule
	// management.
	r.Route("/admin", func(admin chi.Router) {
		admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
		if cfg.Appointments != nil {
			admin.Get("/history", cfg.Appointments.Ledger)
		}
		if cfg.Cancellations != nil {
			admin.Put("/cancellations/{originalID}/refund", cfg.Cancellations.UpdateRefund)
		}
		if cfg.AutomationRules != nil {
			admin.Route("/automation/rules", func(r chi.Router) {
				r.Get("/", cfg.AutomationRules.List)
				r.Post("/", cfg.AutomationRules.Create)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", cfg.AutomationRules.Get)
					r.Put("/", cfg.AutomationRules.Update)
					r.Delete("/", cfg.AutomationRules.Delete)
				})
			})
		}
	})

	return r
}
