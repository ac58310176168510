// Package server exposes the staking ledger over HTTP and WebSocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/stakingledger/internal/domain"
	"github.com/alanyoungcy/stakingledger/internal/server/handler"
	"github.com/alanyoungcy/stakingledger/internal/server/middleware"
	"github.com/alanyoungcy/stakingledger/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port             int
	CORSOrigins      []string
	APIKey           string // empty disables the API key check
	SignatureMaxSkew time.Duration
	RateLimit        int // requests per RateWindow; 0 disables
	RateWindow       time.Duration
}

// Handlers aggregates the HTTP handlers the server registers.
type Handlers struct {
	Health    *handler.HealthHandler
	Status    *handler.StatusHandler
	Tiers     *handler.TierHandler
	Positions *handler.PositionHandler
	Events    *handler.EventHandler
}

// Deps are optional collaborators. Nil fields switch the matching feature
// off.
type Deps struct {
	Hub     *ws.Hub
	Limiter domain.RateLimiter
	// Metrics is served on GET /metrics and observes every request.
	Metrics interface {
		middleware.HTTPObserver
		Handler() http.Handler
	}
	Now func() time.Time
}

// Server is the staking API server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	logger     *slog.Logger
}

// NewServer registers every route and builds the middleware chain.
func NewServer(cfg Config, handlers Handlers, deps Deps, logger *slog.Logger) *Server {
	logger = logger.With(slog.String("component", "server"))
	mux := http.NewServeMux()
	route := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, middleware.Route(pattern, h))
	}

	route("GET /api/health", handlers.Health.HealthCheck)
	route("GET /api/status", handlers.Status.GetStatus)

	route("GET /api/tiers", handlers.Tiers.List)
	route("GET /api/tiers/{days}", handlers.Tiers.Get)
	route("GET /api/tiers/{days}/quote", handlers.Tiers.Quote)
	route("PUT /api/tiers/{days}", handlers.Tiers.Set)

	route("POST /api/positions", handlers.Positions.Stake)
	route("GET /api/positions/{id}", handlers.Positions.Get)
	route("POST /api/positions/{id}/close", handlers.Positions.Close)
	route("PUT /api/positions/{id}/unlock", handlers.Positions.ChangeUnlock)
	route("GET /api/owners/{address}/positions", handlers.Positions.ListForOwner)

	route("GET /api/events", handlers.Events.ListEvents)
	route("GET /api/audit", handlers.Events.ListAudit)

	if deps.Hub != nil {
		route("GET /ws", deps.Hub.HandleWS)
	}
	var observer middleware.HTTPObserver
	if deps.Metrics != nil {
		observer = deps.Metrics
		mux.Handle("GET /metrics", middleware.Route("GET /metrics", deps.Metrics.Handler()))
	}

	var h http.Handler = mux
	h = middleware.Signature(cfg.SignatureMaxSkew, deps.Now)(h)
	h = middleware.Auth(cfg.APIKey, "/api/health", "/metrics")(h)
	if deps.Limiter != nil && cfg.RateLimit > 0 {
		h = middleware.RateLimit(deps.Limiter, cfg.RateLimit, cfg.RateWindow, logger)(h)
	}
	h = middleware.Logging(logger, observer)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           h,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		handler: h,
		logger:  logger,
	}
}

// Handler returns the full middleware chain, for tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start listens until the server fails or is shut down.
func (s *Server) Start() error {
	s.logger.Info("starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown waits for in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
