// Package admin runs the operational sidecar listener: Prometheus metrics and
// a liveness probe, on a separate loopback port so the transcription listener
// stays a pure client-facing surface.
package admin

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/scribehost/scribed/internal/metrics"
)

type Server struct {
	http *http.Server
	ln   net.Listener
	log  zerolog.Logger
}

// NewServer builds the admin listener. collector may be nil.
func NewServer(addr string, collector prometheus.Collector, log zerolog.Logger) *Server {
	log = log.With().Str("component", "admin").Logger()

	if collector != nil {
		prometheus.MustRegister(collector)
	}

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(Recoverer)
	r.Use(Logger(log))
	r.Use(metrics.InstrumentHandler)

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	return &Server{
		http: &http.Server{
			Addr:         addr,
			Handler:      r,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		log: log,
	}
}

// Listen binds the admin socket without serving yet, so the bound address is
// known before Start.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return err
	}
	s.ln = ln
	return nil
}

// Addr returns the bound address after Listen.
func (s *Server) Addr() string {
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.http.Addr
}

func (s *Server) Start() error {
	if s.ln == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}
	s.log.Info().Str("addr", s.Addr()).Msg("admin server starting")
	err := s.http.Serve(s.ln)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("admin server shutting down")
	return s.http.Shutdown(ctx)
}
