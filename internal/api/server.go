// Package api exposes the engine over HTTP: provider webhooks, the tracking
// routes, the operator control surface, analytics and health.
package api

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/outreach-engine/internal/engine"
	"github.com/ignite/outreach-engine/internal/metrics"
	"github.com/ignite/outreach-engine/internal/pkg/logger"
	"github.com/ignite/outreach-engine/internal/tracking"
)

// Options carries everything the router needs besides the engine.
type Options struct {
	WebhookSecret  string
	AllowedOrigins []string
	// Tracking receives pixel and redirect hits. Nil applies them inline.
	Tracking tracking.Sink
	Metrics  *metrics.Metrics
	DB       *sql.DB
	Redis    *redis.Client
}

// Handlers holds the HTTP handlers. They are thin: decode, call the engine,
// encode.
type Handlers struct {
	engine        *engine.Engine
	webhookSecret string
	health        *HealthChecker
	log           *logger.Entry
}

// NewHandlers creates the handler set.
func NewHandlers(e *engine.Engine, opts Options) *Handlers {
	if opts.WebhookSecret == "" {
		logger.Warn("webhook signature verification disabled, set WEBHOOK_SECRET in production")
	}
	return &Handlers{
		engine:        e,
		webhookSecret: opts.WebhookSecret,
		health:        NewHealthChecker(opts.DB, opts.Redis, e),
		log:           logger.With("component", "api"),
	}
}

// Server represents the API server
type Server struct {
	handler http.Handler
	server  *http.Server
}

// NewServer builds the router.
func NewServer(e *engine.Engine, opts Options) *Server {
	h := NewHandlers(e, opts)
	sink := opts.Tracking
	if sink == nil {
		sink = tracking.NewApplier(e.Tracking(), opts.Metrics)
	}
	return &Server{handler: SetupRoutes(h, tracking.NewHandler(sink, e, e.Tracking()), opts)}
}

// ListenAndServe starts the HTTP server
func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Handler returns the HTTP handler for testing
func (s *Server) Handler() http.Handler {
	return s.handler
}
