package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/bookworm-app/bookworm/internal/logger"
	"github.com/bookworm-app/bookworm/internal/metrics"
	"github.com/bookworm-app/bookworm/internal/scheduler"
)

// HealthChecker reports whether a dependency is usable.
type HealthChecker interface {
	Health() error
}

// JobRunner runs a named job on demand.
type JobRunner interface {
	RunNow(ctx context.Context, name string) error
}

// Server represents the HTTP server
type Server struct {
	server          *http.Server
	health          HealthChecker
	jobs            JobRunner
	shutdownTimeout time.Duration
	logger          *logger.Logger
}

// New creates the HTTP server. health may be nil.
func New(addr string, health HealthChecker, jobs JobRunner, log *logger.Logger) *Server {
	if log == nil {
		log = logger.Get()
	}
	s := &Server{
		server: &http.Server{
			Addr: addr,
		},
		health:          health,
		jobs:            jobs,
		shutdownTimeout: 10 * time.Second,
		logger:          log.Component("server"),
	}

	s.server.Handler = logger.HTTPMiddleware(s.logger, s.Routes())

	// Set timeouts; triggered jobs may run for a while
	s.server.ReadTimeout = 10 * time.Second
	s.server.WriteTimeout = 10 * time.Minute
	s.server.IdleTimeout = 120 * time.Second

	return s
}

// SetShutdownTimeout bounds how long Serve waits for open requests on exit.
func (s *Server) SetShutdownTimeout(d time.Duration) {
	if d > 0 {
		s.shutdownTimeout = d
	}
}

// Routes returns the request multiplexer without middleware.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthCheck)
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/api/search", s.handleJob(scheduler.JobSearch))
	mux.HandleFunc("/api/postprocess", s.handleJob(scheduler.JobPostProcess))
	mux.HandleFunc("/api/refresh", s.handleJob(scheduler.JobRefresh))
	return mux
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP server", map[string]interface{}{
		"addr": s.server.Addr,
	})

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server", nil)
	return s.server.Shutdown(ctx)
}

// Serve runs the server until ctx is cancelled. It implements suture.Service.
func (s *Server) Serve(ctx context.Context) error {
	s.server.BaseContext = func(net.Listener) context.Context { return ctx }

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := s.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down server: %w", err)
		}
		return ctx.Err()
	}
}

// String implements fmt.Stringer for supervisor logs.
func (s *Server) String() string {
	return "http-server"
}

// handleHealthCheck handles health check requests
func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	log := logger.FromContextOr(r.Context(), s.logger)
	if s.health != nil {
		if err := s.health.Health(); err != nil {
			log.Warn("Health check failed", map[string]interface{}{"error": err.Error()})
			writeJSON(w, log, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, log, http.StatusOK, map[string]string{"status": "ok"})
}

// handleJob runs the named job and reports its outcome.
func (s *Server) handleJob(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		log := logger.FromContextOr(r.Context(), s.logger).With(map[string]interface{}{"job": name})
		log.Info("Job triggered")

		// a client hanging up must not abort a half-finished pass
		ctx := context.WithoutCancel(r.Context())
		err := s.jobs.RunNow(ctx, name)
		switch {
		case err == nil:
			writeJSON(w, log, http.StatusOK, map[string]string{"status": "ok", "job": name})
		case errors.Is(err, scheduler.ErrRunning):
			writeJSON(w, log, http.StatusConflict, map[string]string{"status": "running", "job": name})
		case errors.Is(err, scheduler.ErrUnknownJob):
			writeJSON(w, log, http.StatusNotFound, map[string]string{"status": "unknown", "job": name})
		default:
			log.Warn("Triggered job failed", map[string]interface{}{"error": err.Error()})
			writeJSON(w, log, http.StatusInternalServerError, map[string]string{"status": "failed", "job": name, "error": err.Error()})
		}
	}
}

func writeJSON(w http.ResponseWriter, log *logger.Logger, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error("Failed to write response", map[string]interface{}{
			"error": err.Error(),
		})
	}
}
