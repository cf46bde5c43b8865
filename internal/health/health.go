// SPDX-License-Identifier: MIT

// Package health provides the liveness and readiness endpoints of the
// controller daemon and the component checkers behind them.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jbqubit/ndsp-highfinesse/internal/log"
	"github.com/jbqubit/ndsp-highfinesse/internal/resilience"
)

// Status represents the overall health/readiness status
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// DefaultCheckTimeout bounds a single component check.
const DefaultCheckTimeout = 2 * time.Second

// CheckResult represents the result of a component health check
type CheckResult struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// HealthResponse represents the full health check response
type HealthResponse struct {
	Status    Status                 `json:"status"`
	Version   string                 `json:"version,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Uptime    int64                  `json:"uptime_seconds"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// ReadinessResponse represents the readiness check response
type ReadinessResponse struct {
	Ready     bool                   `json:"ready"`
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// Checker defines the interface for health checks
type Checker interface {
	Name() string
	Check(ctx context.Context) CheckResult
}

// Manager manages health and readiness checks
type Manager struct {
	version  string
	started  time.Time
	timeout  time.Duration
	checkers []Checker
}

// NewManager creates a new health check manager
func NewManager(version string) *Manager {
	return &Manager{
		version:  version,
		started:  time.Now(),
		timeout:  DefaultCheckTimeout,
		checkers: make([]Checker, 0),
	}
}

// RegisterChecker adds a health checker to the manager
func (m *Manager) RegisterChecker(checker Checker) {
	m.checkers = append(m.checkers, checker)
}

// runChecks evaluates every checker concurrently, each under its own
// timeout, and folds the results into one status.
func (m *Manager) runChecks(ctx context.Context) (map[string]CheckResult, Status) {
	results := make([]CheckResult, len(m.checkers))
	var g errgroup.Group
	for i, checker := range m.checkers {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, m.timeout)
			defer cancel()
			results[i] = checker.Check(cctx)
			return nil
		})
	}
	_ = g.Wait()

	checks := make(map[string]CheckResult, len(m.checkers))
	overall := StatusHealthy
	for i, checker := range m.checkers {
		checks[checker.Name()] = results[i]
		switch results[i].Status {
		case StatusUnhealthy:
			overall = StatusUnhealthy
		case StatusDegraded:
			if overall == StatusHealthy {
				overall = StatusDegraded
			}
		}
	}
	return checks, overall
}

// Health performs a health check (liveness probe).
// The process is reported alive regardless of component state; component
// checks are only evaluated when verbose is set.
func (m *Manager) Health(ctx context.Context, verbose bool) HealthResponse {
	resp := HealthResponse{
		Status:    StatusHealthy,
		Version:   m.version,
		Timestamp: time.Now(),
		Uptime:    int64(time.Since(m.started).Seconds()),
	}
	if verbose && len(m.checkers) > 0 {
		resp.Checks, resp.Status = m.runChecks(ctx)
	}
	return resp
}

// Ready performs a readiness check (readiness probe).
// Degraded components still count as ready.
func (m *Manager) Ready(ctx context.Context) ReadinessResponse {
	resp := ReadinessResponse{
		Ready:     true,
		Status:    StatusHealthy,
		Timestamp: time.Now(),
	}
	if len(m.checkers) == 0 {
		return resp
	}
	resp.Checks, resp.Status = m.runChecks(ctx)
	resp.Ready = resp.Status != StatusUnhealthy
	return resp
}

// ServeHealth answers the liveness probe. It is always 200; component
// checks run only with ?verbose=true.
func (m *Manager) ServeHealth(w http.ResponseWriter, r *http.Request) {
	verbose := r.URL.Query().Get("verbose") == "true"
	resp := m.Health(r.Context(), verbose)
	respond(w, r, "health", http.StatusOK, resp)
	logger := log.WithComponentFromContext(r.Context(), "health")
	logger.Debug().
		Str(log.FieldEvent, "health.checked").
		Str(log.FieldStatus, string(resp.Status)).
		Bool("verbose", verbose).
		Msg("health check performed")
}

// ServeReady answers the readiness probe: 503 while a critical component
// is unhealthy.
func (m *Manager) ServeReady(w http.ResponseWriter, r *http.Request) {
	resp := m.Ready(r.Context())
	code := http.StatusOK
	if !resp.Ready {
		code = http.StatusServiceUnavailable
	}
	respond(w, r, "readiness", code, resp)
	logger := log.WithComponentFromContext(r.Context(), "readiness")
	logger.Debug().
		Str(log.FieldEvent, "readiness.checked").
		Str(log.FieldStatus, string(resp.Status)).
		Bool("ready", resp.Ready).
		Msg("readiness check performed")
}

func respond(w http.ResponseWriter, r *http.Request, probe string, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger := log.WithComponentFromContext(r.Context(), probe)
		logger.Error().Err(err).
			Str(log.FieldEvent, probe+".encode_error").
			Msg("failed to encode probe response")
	}
}

// PingChecker reports a component through a ping function. A failing
// critical component is unhealthy, an optional one only degraded.
type PingChecker struct {
	name     string
	ping     func(context.Context) error
	critical bool
}

// NewPingChecker creates a checker around ping.
func NewPingChecker(name string, critical bool, ping func(context.Context) error) *PingChecker {
	return &PingChecker{name: name, ping: ping, critical: critical}
}

func (c *PingChecker) Name() string { return c.name }

func (c *PingChecker) Check(ctx context.Context) CheckResult {
	if err := c.ping(ctx); err != nil {
		status := StatusDegraded
		if c.critical {
			status = StatusUnhealthy
		}
		return CheckResult{Status: status, Message: "ping failed", Error: err.Error()}
	}
	return CheckResult{Status: StatusHealthy}
}

// BreakerChecker maps a circuit breaker state onto a health status.
type BreakerChecker struct {
	name  string
	state func() resilience.State
}

// NewBreakerChecker creates a checker that reads state on every check.
func NewBreakerChecker(name string, state func() resilience.State) *BreakerChecker {
	return &BreakerChecker{name: name, state: state}
}

func (c *BreakerChecker) Name() string { return c.name }

func (c *BreakerChecker) Check(_ context.Context) CheckResult {
	switch s := c.state(); s {
	case resilience.StateOpen:
		return CheckResult{Status: StatusUnhealthy, Message: "circuit open"}
	case resilience.StateHalfOpen:
		return CheckResult{Status: StatusDegraded, Message: "circuit half-open"}
	default:
		return CheckResult{Status: StatusHealthy, Message: "circuit " + string(s)}
	}
}

// FreshnessChecker reports degraded when the last successful poll is
// missing or older than maxAge.
type FreshnessChecker struct {
	name   string
	maxAge time.Duration
	last   func() (time.Time, bool)
	now    func() time.Time
}

// NewFreshnessChecker creates a checker around last, which returns the time
// of the newest data point and whether one exists.
func NewFreshnessChecker(name string, maxAge time.Duration, last func() (time.Time, bool)) *FreshnessChecker {
	return &FreshnessChecker{name: name, maxAge: maxAge, last: last, now: time.Now}
}

func (c *FreshnessChecker) Name() string { return c.name }

func (c *FreshnessChecker) Check(_ context.Context) CheckResult {
	at, ok := c.last()
	if !ok {
		return CheckResult{Status: StatusDegraded, Message: "no data yet"}
	}
	age := c.now().Sub(at)
	if age > c.maxAge {
		return CheckResult{
			Status:  StatusDegraded,
			Message: fmt.Sprintf("last update %s ago (max %s)", age.Round(time.Second), c.maxAge),
		}
	}
	return CheckResult{Status: StatusHealthy, Message: fmt.Sprintf("last update %s ago", age.Round(time.Millisecond))}
}
