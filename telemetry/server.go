package telemetry

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// Server exposes /metrics and /healthz for one bridge process.
type Server struct {
	srv *http.Server
}

// NewServer builds the exposition server. Returns nil when telemetry is
// disabled; callers treat a nil server as a no-op.
func NewServer(addr string) *Server {
	handler := GetMetricsHandler()
	if handler == nil {
		return nil
	}

	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", handler)

	return &Server{srv: &http.Server{Addr: addr, Handler: r}}
}

// Start serves in the background until Stop.
func (s *Server) Start() {
	if s == nil {
		return
	}
	go func() {
		log.Info().Str("address", s.srv.Addr).Msg("Serving metrics")
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("Metrics server failed")
		}
	}()
}

// Stop shuts the server down, waiting up to five seconds for in-flight
// scrapes.
func (s *Server) Stop() {
	if s == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("Metrics server shutdown")
	}
}
