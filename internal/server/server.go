// Package server provides the HTTP server exposing /metrics, /health, /ready,
// /config and /state, plus the purge and visibility event endpoints.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/pprof"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/version-sentinel/version-sentinel/internal/config"
	"github.com/version-sentinel/version-sentinel/internal/facade"
	"github.com/version-sentinel/version-sentinel/internal/metrics"
	"github.com/version-sentinel/version-sentinel/internal/poller"
)

// Sentinel is what the server reports on and drives.
type Sentinel interface {
	Result() facade.Result
	State() poller.Snapshot
	EmptyCacheStorage(ctx context.Context, version string) error
	Focus()
	Blur()
}

// Server is the HTTP server that exposes Prometheus metrics and operational endpoints.
type Server struct {
	httpServer *http.Server
	sentinel   Sentinel
	config     *config.Config
	ready      atomic.Bool
	logger     *logrus.Entry
}

// NewServer creates a new HTTP server configured from cfg.
func NewServer(cfg *config.Config, sentinel Sentinel, logger *logrus.Entry) (*Server, error) {
	s := &Server{
		sentinel: sentinel,
		config:   cfg,
		logger:   logger.WithField("component", "server"),
	}

	mux := http.NewServeMux()

	// --- Prometheus metrics ---
	promRegistry := prometheus.NewRegistry()
	if err := metrics.Register(promRegistry); err != nil {
		return nil, fmt.Errorf("registering metrics: %w", err)
	}
	promRegistry.MustRegister(collectors.NewGoCollector())
	promRegistry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	mux.Handle("/metrics", promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))

	// --- Health / readiness ---
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ready", s.handleReady)

	// --- Config (redacted) and poll state ---
	mux.HandleFunc("/config", s.handleConfig)
	mux.HandleFunc("/state", s.handleState)

	// --- Events ---
	if cfg.Server.Events.Enabled {
		events := NewEventsHandler(cfg.Server.Events.SecretToken, sentinel, s.logger)
		limit := rateLimit(cfg.Server.Events.RequestsPerMin, time.Minute)
		mux.Handle("/purge", limit(http.HandlerFunc(events.HandlePurge)))
		mux.Handle("/visibility", limit(http.HandlerFunc(events.HandleVisibility)))
	}

	// --- pprof ---
	if cfg.Server.EnablePprof {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
		s.logger.Info("pprof endpoints enabled under /debug/pprof/")
	}

	s.httpServer = &http.Server{
		Addr:         cfg.Server.ListenAddress,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// Handler returns the server's request router.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins serving HTTP in a background goroutine. It returns an error
// only if the listener fails right away.
func (s *Server) Start(ctx context.Context) error {
	s.logger.WithField("addr", s.httpServer.Addr).Info("starting HTTP server")

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.WithError(err).Error("HTTP server error")
			errCh <- err
		}
		close(errCh)
	}()

	// Give the listener a moment to bind; surface immediate errors.
	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed to start: %w", err)
		}
	case <-time.After(100 * time.Millisecond):
	case <-ctx.Done():
	}

	return nil
}

// Run starts the server and shuts it down when ctx is done.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.Stop(shutdownCtx)
}

// Stop performs a graceful shutdown of the HTTP server. The provided context
// controls the maximum time to wait for in-flight requests to complete.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// SetReady updates the readiness state exposed by the /ready endpoint.
func (s *Server) SetReady(ready bool) {
	s.ready.Store(ready)
}

// --- HTTP handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if s.ready.Load() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"not_ready"}`))
	}
}

func (s *Server) handleConfig(w http.ResponseWriter, _ *http.Request) {
	data, err := s.config.RedactedJSON()
	if err != nil {
		s.logger.WithError(err).Error("failed to encode config")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(data)
}

type stateResponse struct {
	facade.Result
	Poll poller.Snapshot `json:"poll"`
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, stateResponse{
		Result: s.sentinel.Result(),
		Poll:   s.sentinel.State(),
	}, s.logger)
}

func writeJSON(w http.ResponseWriter, status int, v any, logger *logrus.Entry) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		logger.WithError(err).Error("failed to encode response")
	}
}
