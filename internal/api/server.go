// SPDX-License-Identifier: MIT

// Package api serves the read-only HTTP side channel of the controller:
// probes, Prometheus metrics and the latest wavemeter readings.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jbqubit/ndsp-highfinesse/internal/api/middleware"
	"github.com/jbqubit/ndsp-highfinesse/internal/health"
	"github.com/jbqubit/ndsp-highfinesse/internal/history"
	"github.com/jbqubit/ndsp-highfinesse/internal/monitor"
)

const (
	defaultHistoryLimit = 100
	maxHistoryLimit     = 10000
)

// Device is the identification surface of the driver.
type Device interface {
	ID() (string, error)
	Simulation() bool
}

// Readings yields the latest monitor snapshot.
type Readings interface {
	Latest() (monitor.Snapshot, bool)
}

// History queries stored frequency readings.
type History interface {
	RecentFrequency(ctx context.Context, channel, limit int) ([]history.Entry, error)
}

// Config controls the HTTP surface.
type Config struct {
	Version string
	Target  string

	// TracingService enables otelhttp spans when non-empty.
	TracingService string

	RateLimitRequests int
	RateLimitWindow   time.Duration
}

// Deps are the components the handlers read from. Readings and History are
// optional; their endpoints answer 503 when absent.
type Deps struct {
	Health   *health.Manager
	Device   Device
	Readings Readings
	History  History
}

// Server is the HTTP side-channel handler.
type Server struct {
	cfg    Config
	deps   Deps
	router chi.Router
}

// New builds the router.
func New(cfg Config, deps Deps) *Server {
	s := &Server{cfg: cfg, deps: deps}
	s.router = s.routes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() chi.Router {
	r := middleware.NewRouter(middleware.StackConfig{
		Metrics:    true,
		AccessLog:  true,
		Service:    s.cfg.TracingService,
		RateLimit:  s.cfg.RateLimitRequests,
		RateWindow: s.cfg.RateLimitWindow,
	})

	if s.deps.Health != nil {
		r.Get("/healthz", s.deps.Health.ServeHealth)
		r.Get("/readyz", s.deps.Health.ServeReady)
	}
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/info", s.handleInfo)
		r.Get("/readings", s.handleReadings)
		r.Get("/readings/{channel}", s.handleChannelReading)
		r.Get("/readings/{channel}/history", s.handleHistory)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) { writeNotFound(w, "not found") })
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: "method not allowed"})
	})
	return r
}
