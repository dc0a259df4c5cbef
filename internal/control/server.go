// SPDX-License-Identifier: MIT

// Package control exposes the bridge's operational HTTP surface: liveness,
// readiness, a JSON status snapshot and Prometheus metrics.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/TLimoges33/Syn-OS-sub013/internal/bridge"
	"github.com/TLimoges33/Syn-OS-sub013/internal/deadletter"
	xlog "github.com/TLimoges33/Syn-OS-sub013/internal/log"
)

// StatusProvider reports the current bridge status.
type StatusProvider interface {
	Status() bridge.Status
}

// Server serves the control endpoints on a dedicated listener, separate from
// any application traffic.
type Server struct {
	http   *http.Server
	bridge StatusProvider
	dead   deadletter.Store
	log    zerolog.Logger
}

type statusResponse struct {
	bridge.Status
	DeadLetterBacklog int `json:"dead_letter_backlog"`
}

// New builds the control server. dead may be nil when no dead-letter store is
// configured; the backlog then reports zero.
func New(addr string, sp StatusProvider, dead deadletter.Store) *Server {
	s := &Server{
		bridge: sp,
		dead:   dead,
		log:    xlog.WithComponent("control"),
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/api/status", s.handleStatus)
	r.Handle("/metrics", promhttp.Handler())

	s.http = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Handler returns the underlying router, for tests.
func (s *Server) Handler() http.Handler { return s.http.Handler }

// Run serves until ctx is cancelled, then shuts down gracefully within
// shutdownTimeout.
func (s *Server) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("listen", s.http.Addr).Msg("control server listening")
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		s.log.Error().Err(err).Msg("control server shutdown error")
		return err
	}
	s.log.Info().Msg("control server stopped")
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// handleReady reports ready only while the bridge is connected and running;
// orchestrators use this to hold traffic during startup and reconnects.
func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	st := s.bridge.Status()
	w.Header().Set("Content-Type", "application/json")
	if !st.Connected || st.State != "running" {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":    "unavailable",
			"state":     st.State,
			"connected": st.Connected,
		})
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ready"}`))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{Status: s.bridge.Status()}
	if s.dead != nil {
		n, err := s.dead.Len(r.Context())
		if err != nil {
			s.log.Warn().Err(err).Msg("dead-letter backlog unavailable")
		} else {
			resp.DeadLetterBacklog = n
		}
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		xlog.FromContext(r.Context()).Error().Err(err).Msg("status encode failed")
	}
}
