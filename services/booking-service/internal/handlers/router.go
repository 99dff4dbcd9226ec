package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/proofline/booking/libs/runtime"
)

type RouterConfig struct {
	Public *PublicHandler
	// Admin is nil in demo mode.
	Admin *AdminHandler
	// PublicMiddleware wraps only the public API, e.g. CORS and rate limiting.
	PublicMiddleware []func(http.Handler) http.Handler
	ReadyChecks      []runtime.ReadyCheck
	Logger           *slog.Logger
}

func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", runtime.HealthHandler())
	r.Get("/readyz", runtime.ReadyHandler(cfg.ReadyChecks...))

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/public", func(r chi.Router) {
			r.Use(cfg.PublicMiddleware...)
			cfg.Public.Routes(r)
		})
		if cfg.Admin != nil {
			r.Route("/admin", cfg.Admin.Routes)
		}
	})
	return r
}
