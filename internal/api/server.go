package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dtrlanz/markhor/internal/config"
	"github.com/dtrlanz/markhor/internal/dispatch"
	"github.com/dtrlanz/markhor/internal/events"
	"github.com/dtrlanz/markhor/internal/journal"
	"github.com/dtrlanz/markhor/internal/manifest"
	"github.com/dtrlanz/markhor/internal/queue"
)

// CallQueuer defines the queue operations the API needs.
type CallQueuer interface {
	Enqueue(ctx context.Context, req queue.EnqueueRequest) (string, error)
	Get(ctx context.Context, callID string) (*queue.Call, error)
	Depth(ctx context.Context) (int, error)
}

// ExchangeJournal defines the journal operations the API needs.
type ExchangeJournal interface {
	Record(ctx context.Context, e journal.Entry) (string, error)
	List(ctx context.Context, f journal.Filter) ([]journal.Entry, error)
}

// PluginRegistry defines the interface for plugin lookups.
type PluginRegistry interface {
	Get(name string) (*manifest.Plugin, bool)
	All() map[string]*manifest.Plugin
}

// PluginCaller executes one synchronous exchange with a plugin.
type PluginCaller interface {
	Call(ctx context.Context, inv dispatch.Invocation) dispatch.Outcome
}

// EventStream is the hub the SSE endpoint reads from and enqueue
// notifications are published to.
type EventStream interface {
	Publish(eventType string, data any)
	Subscribe() (<-chan events.Event, func())
	SnapshotSince(lastID int64) []events.Event
}

// Server exposes the host over HTTP.
type Server struct {
	cfg       *config.Config
	queue     CallQueuer
	journal   ExchangeJournal
	registry  PluginRegistry
	caller    PluginCaller
	events    EventStream
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time
}

// New creates a new API server instance.
func New(cfg *config.Config, q CallQueuer, j ExchangeJournal, reg PluginRegistry, caller PluginCaller, hub EventStream, logger *slog.Logger) *Server {
	return &Server{
		cfg:       cfg,
		queue:     q,
		journal:   j,
		registry:  reg,
		caller:    caller,
		events:    hub,
		logger:    logger,
		startedAt: time.Now(),
	}
}

// Start starts the HTTP server (blocking).
func (s *Server) Start(ctx context.Context) error {
	router := s.setupRoutes()

	s.server = &http.Server{
		Addr:        s.cfg.API.Listen,
		Handler:     router,
		ReadTimeout: 10 * time.Second,
		// No write timeout: synchronous calls run as long as the plugin
		// timeout allows, and /v1/events streams indefinitely.
		IdleTimeout: 60 * time.Second,
	}

	s.logger.Info("API server starting", "listen", s.cfg.API.Listen)

	// Run server in a goroutine
	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for context cancellation or server error
	select {
	case <-ctx.Done():
		s.logger.Info("API server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// setupRoutes configures the HTTP router
func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	// Ops endpoints.
	r.Get("/healthz", s.handleHealthz)
	r.Get("/openapi.json", s.handleOpenAPI)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/plugins", s.handleListPlugins)
		r.Get("/plugins/{plugin}", s.handleGetPlugin)
		r.Post("/call/{plugin}/{method}", s.handleCall)
		r.Post("/queue/{plugin}/{method}", s.handleEnqueue)
		r.Get("/queue/{callID}", s.handleGetCall)
		r.Get("/history", s.handleHistory)
		r.Get("/events", s.handleEvents)
	})

	return r
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
