package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/ashureev/outreach-agent/internal/middleware"
)

// RouterConfig holds the handlers mounted next to the API routes.
type RouterConfig struct {
	AllowedOrigins []string
	Metrics        http.Handler
	Events         http.Handler
}

// NewRouter builds the HTTP router of the operations API.
func NewRouter(h *Handler, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	h.RegisterRoutes(r)

	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}
	if cfg.Events != nil {
		r.Method(http.MethodGet, "/ws/events", cfg.Events)
	}
	return r
}
