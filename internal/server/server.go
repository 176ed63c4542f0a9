// Package server exposes the prediction engine over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/trendslot/internal/domain"
	"github.com/alanyoungcy/trendslot/internal/metrics"
	"github.com/alanyoungcy/trendslot/internal/server/handler"
	"github.com/alanyoungcy/trendslot/internal/server/middleware"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	AdminKey    string
	CronKey     string
	// RateLimit submissions per RateWindow and user on POST /predictions.
	// Zero disables the limiter.
	RateLimit  int
	RateWindow time.Duration
}

// Handlers aggregates the route handlers.
type Handlers struct {
	Health      *handler.HealthHandler
	Predictions *handler.PredictionHandler
	Slots       *handler.SlotHandler
	Evaluation  *handler.EvaluationHandler
	Admin       *handler.AdminHandler
}

// Server is the HTTP API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers every route and wraps the mux in the logging and CORS
// middleware. limiter may be nil.
func NewServer(cfg Config, h Handlers, limiter domain.RateLimiter, m *metrics.Manager, logger *slog.Logger) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           NewHandler(cfg, h, limiter, m, logger),
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		logger: logger,
	}
}

// NewHandler builds the routed, middleware-wrapped handler.
func NewHandler(cfg Config, h Handlers, limiter domain.RateLimiter, m *metrics.Manager, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	user := func(f http.HandlerFunc) http.Handler { return middleware.RequireUser(f) }
	admin := middleware.RequireKey(cfg.AdminKey)
	cron := middleware.RequireKey(cfg.CronKey)
	limit := middleware.RateLimit(limiter, "predictions", cfg.RateLimit, cfg.RateWindow, logger)

	// Public.
	mux.HandleFunc("GET /health", h.Health.HealthCheck)
	mux.Handle("GET /metrics", m.Handler())
	mux.HandleFunc("GET /assets", h.Admin.ListAssets)
	mux.HandleFunc("GET /slots/{duration}", h.Slots.Upcoming)
	mux.HandleFunc("GET /slots/{duration}/active", h.Slots.Active)
	mux.HandleFunc("POST /slots/{duration}/{slotNumber}/validate", h.Slots.Validate)

	// Caller identified by the gateway.
	mux.Handle("POST /predictions", middleware.RequireUser(limit(http.HandlerFunc(h.Predictions.Create))))
	mux.Handle("GET /predictions/{id}", user(h.Predictions.Get))
	mux.Handle("GET /users/me/predictions", user(h.Predictions.ListMine))
	mux.Handle("GET /users/me/score", user(h.Predictions.MyScore))

	// Scheduler trigger.
	mux.Handle("POST /cron/evaluate-predictions", cron(http.HandlerFunc(h.Evaluation.Sweep)))

	// Administration.
	mux.Handle("POST /admin/predictions/{id}/evaluate", admin(http.HandlerFunc(h.Evaluation.Evaluate)))
	mux.Handle("GET /admin/slots", admin(http.HandlerFunc(h.Admin.ListSlotConfigs)))
	mux.Handle("PUT /admin/slots/{duration}/{slotNumber}", admin(http.HandlerFunc(h.Admin.UpdateSlotConfig)))
	mux.Handle("PUT /admin/assets/{symbol}", admin(http.HandlerFunc(h.Admin.UpsertAsset)))
	mux.Handle("GET /admin/audit", admin(http.HandlerFunc(h.Admin.ListAudit)))
	mux.Handle("GET /admin/archive", admin(http.HandlerFunc(h.Admin.ListArchive)))
	mux.Handle("GET /admin/archive/{day}", admin(http.HandlerFunc(h.Admin.GetArchiveDay)))

	var out http.Handler = mux
	out = middleware.Logging(logger, m)(out)
	out = middleware.CORS(cfg.CORSOrigins)(out)
	return out
}

// Start listens until the server is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown waits for in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
