// Package server implements the HTTP API of the RAG service: a streaming
// chat endpoint backed by retrieval and the LLM client, workflow trigger and
// status endpoints backed by the durable engine, plus health, readiness, and
// Prometheus metrics. The server is started by the `rag serve` CLI command.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/SebastianCielma/RAG/internal/logging"
	"github.com/SebastianCielma/RAG/internal/ragerr"
)

// New constructs a Server from the retrieval assembler, the chat client, the
// workflow engine, and the config. Route layout:
//
//	GET  /health                 liveness (unauthenticated)
//	GET  /api/ready              dependency probes (unauthenticated)
//	GET  /metrics                Prometheus exposition (unauthenticated)
//	POST /api/chat               streaming answer
//	POST /api/events             trigger a workflow run
//	GET  /api/events/{id}/runs   poll run status
//
// Everything under /api/ except /api/ready goes through Bearer auth and the
// per-IP rate limiter; the request logger and metrics wrap all routes.
func New(assembler retriever, chat streamer, engine runner, cfg *Config) (*Server, error) {
	if assembler == nil {
		return nil, fmt.Errorf("server: retriever must not be nil")
	}
	if chat == nil {
		return nil, fmt.Errorf("server: chat streamer must not be nil")
	}
	if engine == nil {
		return nil, fmt.Errorf("server: workflow runner must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "0.0.0.0"
	}
	if cfg.Port == 0 {
		cfg.Port = 8000
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.ChatTimeout == 0 {
		cfg.ChatTimeout = 5 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.New()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = prometheus.NewRegistry()
	}

	s := &Server{
		retriever: assembler,
		streamer:  chat,
		runner:    engine,
		cfg:       cfg,
		log:       cfg.Logger,
		pingers:   cfg.Pingers,
		metrics:   newServerMetrics(cfg.Metrics),
	}

	if cfg.APIKey == "" {
		s.log.Warn("API authentication disabled; set RAG_API_KEY to enable")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/ready", s.handleReady)
	mux.Handle("GET /metrics", promhttp.HandlerFor(cfg.Metrics, promhttp.HandlerOpts{}))

	api := http.NewServeMux()
	api.HandleFunc("POST /api/chat", s.handleChat)
	api.HandleFunc("POST /api/events", s.handleTrigger)
	api.HandleFunc("GET /api/events/{id}/runs", s.handleRuns)

	rl, stopRL := newRateLimiter(cfg.RateLimit, cfg.RateBurst, s.log)
	s.stopRL = stopRL

	// The exact "GET /api/ready" pattern above outranks this prefix route,
	// so readiness stays reachable without a token while every other /api/
	// path is authenticated and rate limited.
	mux.Handle("/api/", authMiddleware(cfg.APIKey, rl.middleware(api)))

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           requestLogger(s.log, s.instrument(mux)),
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
		// WriteTimeout stays zero: streamed answers have no fixed length.
		// handleChat enforces cfg.ChatTimeout on its own context instead.
	}

	return s, nil
}

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown and stops the
// rate limiter's eviction goroutine.
func (s *Server) Start(ctx context.Context) error {
	defer s.stopRL()

	errCh := make(chan error, 1)

	go func() {
		s.log.Info("server listening", slog.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// Handler returns the server's root handler with all middleware applied,
// for callers that mount the API inside their own server.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// writeError renders err as a JSON error body. Validation errors map to
// 400, everything else to 500; the "type" field carries the error kind so
// clients can branch without parsing messages.
func writeError(w http.ResponseWriter, err error) {
	kind := ragerr.KindOf(err)

	status := http.StatusInternalServerError
	if kind == ragerr.KindValidation {
		status = http.StatusBadRequest
	}
	if kind == "" {
		kind = "InternalError"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{
		Error: err.Error(),
		Type:  string(kind),
	})
}
