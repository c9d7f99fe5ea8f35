// Package daemon implements the daemon and session core (C9): a
// process-wide HTTP server owning the session map, the router, the
// generator-state handle, the provider chain, the tool executor, and the
// training channel (spec §4.9).
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config configures Server construction.
type Config struct {
	Addr        string
	IdleTimeout time.Duration
}

// Server is the process-wide singleton bound to a TCP address (spec §4.9).
type Server struct {
	cfg          Config
	orchestrator *Orchestrator
	sessions     *SessionManager
	metrics      *Metrics
	log          *slog.Logger

	httpServer *http.Server
	listener   net.Listener
}

// NewServer wires a Server around an already-constructed Orchestrator.
func NewServer(cfg Config, orch *Orchestrator, metrics *Metrics, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 30 * time.Minute
	}
	return &Server{
		cfg:          cfg,
		orchestrator: orch,
		sessions:     NewSessionManager(cfg.IdleTimeout),
		metrics:      metrics,
		log:          log,
	}
}

// Start builds the mux, binds the listener, and serves in the background.
// It returns once the listener is bound; Serve errors are logged, not
// returned, matching the teacher's startHTTPServer shape.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/v1/messages", s.withMetrics("/v1/messages", s.handleMessages))
	mux.HandleFunc("/v1/chat/completions", s.withMetrics("/v1/chat/completions", s.handleChatCompletions))
	mux.HandleFunc("/v1/session/", s.withMetrics("/v1/session/{id}", s.handleSession))
	mux.HandleFunc("/v1/status", s.withMetrics("/v1/status", s.handleStatus))
	mux.HandleFunc("/v1/feedback", s.withMetrics("/v1/feedback", s.handleFeedback))
	mux.HandleFunc("/v1/training/status", s.withMetrics("/v1/training/status", s.handleTrainingStatus))

	listener, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("daemon: listen on %s: %w", s.cfg.Addr, err)
	}
	s.listener = listener
	s.httpServer = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("http server error", "error", err)
		}
	}()

	s.log.Info("daemon listening", "addr", s.cfg.Addr)
	return nil
}

// Stop gracefully shuts down the HTTP server and the session eviction loop.
func (s *Server) Stop(ctx context.Context) {
	if s.httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.log.Warn("http server shutdown error", "error", err)
		}
	}
	s.sessions.Close()
}

func (s *Server) withMetrics(label string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: 200}
		h(rec, r)
		if s.metrics != nil {
			s.metrics.HTTPRequestDuration.WithLabelValues(label, fmt.Sprintf("%d", rec.status)).Observe(time.Since(start).Seconds())
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}
