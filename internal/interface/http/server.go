// Package http implements the HTTP surface of the bot: the inbound
// webhook endpoint, the health check, and the authenticated cron
// trigger for maintenance jobs.
package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ══════════════════════════════════════════════════════════════════════════════
// SERVER CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config contains HTTP server configuration.
type Config struct {
	// Host - address to bind (default: "0.0.0.0").
	Host string

	// Port - port to listen on (default: 8080).
	Port int

	// ReadTimeout - maximum duration for reading the entire request.
	ReadTimeout time.Duration

	// WriteTimeout - maximum duration for writing the response. This
	// bounds how long a single dispatch or maintenance job may run.
	WriteTimeout time.Duration

	// IdleTimeout - maximum duration for idle connections.
	IdleTimeout time.Duration

	// MaxHeaderBytes - maximum size of request headers.
	MaxHeaderBytes int
}

// DefaultConfig returns default server configuration.
func DefaultConfig() Config {
	return Config{
		Host:           "0.0.0.0",
		Port:           8080,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   60 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20, // 1 MB
	}
}

// Address returns the server address string.
func (c Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// UpdateDispatcher hands a raw webhook body to the handler registry.
type UpdateDispatcher interface {
	Dispatch(ctx context.Context, raw []byte) error
}

// JobRunner executes a maintenance job by name.
type JobRunner interface {
	Run(ctx context.Context, name string) error
}

// Dependencies contains everything the HTTP handlers need.
type Dependencies struct {
	Dispatcher UpdateDispatcher
	Jobs       JobRunner

	// CronSecret guards the cron trigger endpoint. May hold a bcrypt
	// hash of the secret instead of the plaintext. Empty rejects every
	// request.
	CronSecret string

	Logger *slog.Logger
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER
// ══════════════════════════════════════════════════════════════════════════════

// Server represents the HTTP server.
type Server struct {
	config     Config
	deps       Dependencies
	httpServer *http.Server
	router     *http.ServeMux
	logger     *slog.Logger

	mu        sync.RWMutex
	running   bool
	startedAt time.Time
}

// NewServer creates a new HTTP server with the given configuration and
// dependencies.
func NewServer(config Config, deps Dependencies) *Server {
	s := &Server{
		config: config,
		deps:   deps,
		router: http.NewServeMux(),
		logger: deps.Logger,
	}

	if s.logger == nil {
		s.logger = slog.Default()
	}

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:           config.Address(),
		Handler:        s.buildMiddlewareChain(s.router),
		ReadTimeout:    config.ReadTimeout,
		WriteTimeout:   config.WriteTimeout,
		IdleTimeout:    config.IdleTimeout,
		MaxHeaderBytes: config.MaxHeaderBytes,
	}

	return s
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("POST /{$}", s.handleWebhook)
	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.HandleFunc("POST /cron/{job_name}", s.handleCron)
}

// ══════════════════════════════════════════════════════════════════════════════
// MIDDLEWARE CHAIN
// ══════════════════════════════════════════════════════════════════════════════

type contextKey string

const contextKeyRequestID contextKey = "request_id"

// buildMiddlewareChain wraps the router with all middleware.
func (s *Server) buildMiddlewareChain(handler http.Handler) http.Handler {
	h := handler
	h = s.requestIDMiddleware(h)
	h = s.loggingMiddleware(h)
	h = s.recoveryMiddleware(h)
	return h
}

// requestIDMiddleware adds a unique request ID to each request.
func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)
		ctx := context.WithValue(r.Context(), contextKeyRequestID, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// loggingMiddleware logs all HTTP requests.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rw.statusCode,
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", requestID(r.Context()),
		)
	})
}

// recoveryMiddleware recovers from panics and returns 500.
func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.logger.Error("panic recovered",
					"error", err,
					"stack", string(debug.Stack()),
					"path", r.URL.Path,
					"request_id", requestID(r.Context()),
				)
				w.WriteHeader(http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// responseWriter captures the status code for logging.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// requestID returns the request ID from the context, if any.
func requestID(ctx context.Context) string {
	if id, ok := ctx.Value(contextKeyRequestID).(string); ok {
		return id
	}
	return ""
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}
	s.running = true
	s.startedAt = time.Now()
	s.mu.Unlock()

	s.logger.Info("starting HTTP server", "address", s.config.Address())

	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// StartAsync starts the server in a goroutine.
func (s *Server) StartAsync() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.Start(); err != nil {
			errCh <- err
		}
		close(errCh)
	}()
	return errCh
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// Address returns the server address.
func (s *Server) Address() string {
	return s.config.Address()
}
