package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/klauspost/compress/gzhttp"
	"github.com/rs/zerolog"

	"github.com/prn-tf/showcase-portal/internal/metrics"
)

// HealthChecker reports whether a dependency is usable.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Router handles HTTP routing for the portal API.
type Router struct {
	mediaHandler   *MediaHandler
	projectHandler *ProjectHandler
	userHandler    *UserHandler
	adminHandler   *AdminHandler
	health         HealthChecker
	metrics        *metrics.Metrics
	metricsHandler http.Handler
	metricsPath    string
	adminToken     string
	logger         zerolog.Logger
}

// RouterConfig contains configuration for the router.
type RouterConfig struct {
	MediaHandler   *MediaHandler
	ProjectHandler *ProjectHandler
	UserHandler    *UserHandler
	AdminHandler   *AdminHandler

	// Health is checked by GET /health. Optional.
	Health HealthChecker

	// Metrics records request metrics. Optional.
	Metrics *metrics.Metrics

	// MetricsHandler is mounted at MetricsPath when set.
	MetricsHandler http.Handler
	MetricsPath    string

	// AdminToken guards /api/admin. Empty leaves it open.
	AdminToken string

	Logger zerolog.Logger
}

// NewRouter creates a new Router.
func NewRouter(config RouterConfig) *Router {
	path := config.MetricsPath
	if path == "" {
		path = "/metrics"
	}
	return &Router{
		mediaHandler:   config.MediaHandler,
		projectHandler: config.ProjectHandler,
		userHandler:    config.UserHandler,
		adminHandler:   config.AdminHandler,
		health:         config.Health,
		metrics:        config.Metrics,
		metricsHandler: config.MetricsHandler,
		metricsPath:    path,
		adminToken:     config.AdminToken,
		logger:         config.Logger.With().Str("component", "router").Logger(),
	}
}

// Handler returns the main HTTP handler.
func (rt *Router) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(RequestLogger(rt.logger))
	r.Use(RequestMetrics(rt.metrics))

	// Health check (no auth)
	r.Get("/health", rt.handleHealth)

	if rt.metricsHandler != nil {
		r.Method(http.MethodGet, rt.metricsPath, rt.metricsHandler)
	}

	// Blob content is already compressed media; only JSON gets gzip.
	r.Get("/media/{id}", rt.mediaHandler.Download)
	r.Head("/media/{id}", rt.mediaHandler.Download)

	r.Route("/api", func(r chi.Router) {
		r.Use(func(next http.Handler) http.Handler { return gzhttp.GzipHandler(next) })

		r.Post("/media", rt.mediaHandler.Upload)
		r.Delete("/media", rt.mediaHandler.Delete)

		r.Route("/projects", func(r chi.Router) {
			r.Get("/", rt.projectHandler.List)
			r.Post("/", rt.projectHandler.Create)
			r.Get("/{id}", rt.projectHandler.Get)
			r.Put("/{id}", rt.projectHandler.Update)
			r.Delete("/{id}", rt.projectHandler.Delete)
			r.Post("/{id}/media/{kind}", rt.projectHandler.AttachMedia)
		})

		r.Route("/users", func(r chi.Router) {
			r.Get("/", rt.userHandler.List)
			r.Post("/", rt.userHandler.Create)
			r.Get("/{id}", rt.userHandler.Get)
			r.Put("/{id}", rt.userHandler.Update)
			r.Delete("/{id}", rt.userHandler.Delete)
			r.Post("/{id}/media/{kind}", rt.userHandler.AttachMedia)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(AdminAuth(rt.adminToken))
			r.Post("/sweep", rt.adminHandler.Sweep)
			r.Get("/stats", rt.adminHandler.Stats)
			r.Post("/reclaim/{id}", rt.adminHandler.Reclaim)
		})
	})

	return r
}

// handleHealth handles health check requests.
func (rt *Router) handleHealth(w http.ResponseWriter, r *http.Request) {
	if rt.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := rt.health.Health(ctx); err != nil {
			rt.logger.Warn().Err(err).Msg("health check failed")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}
