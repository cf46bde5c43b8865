// SPDX-License-Identifier: MIT

package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jbqubit/ndsp-highfinesse/internal/resilience"
)

func TestNewManager(t *testing.T) {
	m := NewManager("v1.2.3")
	assert.NotNil(t, m)
	assert.Equal(t, "v1.2.3", m.version)
	assert.Empty(t, m.checkers)
}

func TestManager_Health_NoCheckers(t *testing.T) {
	m := NewManager("v1.0.0")

	resp := m.Health(context.Background(), false)
	assert.Equal(t, StatusHealthy, resp.Status)
	assert.Equal(t, "v1.0.0", resp.Version)
	assert.GreaterOrEqual(t, resp.Uptime, int64(0))
	assert.Nil(t, resp.Checks)
}

func TestManager_Health_WithCheckers(t *testing.T) {
	m := NewManager("v1.0.0")
	m.RegisterChecker(&mockChecker{name: "healthy", status: StatusHealthy})
	m.RegisterChecker(&mockChecker{name: "degraded", status: StatusDegraded})

	resp := m.Health(context.Background(), false)
	assert.Equal(t, StatusHealthy, resp.Status)
	assert.Nil(t, resp.Checks)

	resp = m.Health(context.Background(), true)
	assert.Equal(t, StatusDegraded, resp.Status)
	assert.Len(t, resp.Checks, 2)
	assert.Equal(t, StatusHealthy, resp.Checks["healthy"].Status)
	assert.Equal(t, StatusDegraded, resp.Checks["degraded"].Status)
}

func TestManager_Health_UnhealthyWins(t *testing.T) {
	m := NewManager("v1.0.0")
	m.RegisterChecker(&mockChecker{name: "a", status: StatusUnhealthy})
	m.RegisterChecker(&mockChecker{name: "b", status: StatusDegraded})

	resp := m.Health(context.Background(), true)
	assert.Equal(t, StatusUnhealthy, resp.Status)
}

func TestManager_Ready(t *testing.T) {
	tests := []struct {
		name       string
		checkers   []Checker
		wantReady  bool
		wantStatus Status
	}{
		{"no checkers", nil, true, StatusHealthy},
		{"healthy", []Checker{&mockChecker{name: "a", status: StatusHealthy}}, true, StatusHealthy},
		{"degraded", []Checker{&mockChecker{name: "a", status: StatusDegraded}}, true, StatusDegraded},
		{"unhealthy", []Checker{
			&mockChecker{name: "a", status: StatusHealthy},
			&mockChecker{name: "b", status: StatusUnhealthy},
		}, false, StatusUnhealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager("v1.0.0")
			for _, c := range tt.checkers {
				m.RegisterChecker(c)
			}
			resp := m.Ready(context.Background())
			assert.Equal(t, tt.wantReady, resp.Ready)
			assert.Equal(t, tt.wantStatus, resp.Status)
		})
	}
}

func TestManager_ChecksAreBoundedByTimeout(t *testing.T) {
	m := NewManager("v1.0.0")
	m.timeout = 10 * time.Millisecond
	m.RegisterChecker(NewPingChecker("slow", true, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))

	resp := m.Ready(context.Background())
	assert.False(t, resp.Ready)
	assert.Contains(t, resp.Checks["slow"].Error, "deadline exceeded")
}

func TestManager_ChecksRunConcurrently(t *testing.T) {
	m := NewManager("v1.0.0")
	slow := func(context.Context) error {
		time.Sleep(200 * time.Millisecond)
		return nil
	}
	for _, name := range []string{"wavemeter", "history", "redis"} {
		m.RegisterChecker(NewPingChecker(name, true, slow))
	}

	start := time.Now()
	resp := m.Ready(context.Background())
	assert.True(t, resp.Ready)
	assert.Len(t, resp.Checks, 3)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestManager_ServeHealth(t *testing.T) {
	m := NewManager("v1.0.0")
	m.RegisterChecker(&mockChecker{name: "test", status: StatusHealthy})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	m.ServeHealth(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))

	var resp HealthResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, StatusHealthy, resp.Status)
	assert.Nil(t, resp.Checks)

	req = httptest.NewRequest(http.MethodGet, "/healthz?verbose=true", nil)
	w = httptest.NewRecorder()
	m.ServeHealth(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	resp = HealthResponse{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Len(t, resp.Checks, 1)
}

func TestManager_ServeHealth_EncodingError(t *testing.T) {
	m := NewManager("v1.0.0")
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := &brokenWriter{header: make(http.Header)}

	m.ServeHealth(w, req)
}

func TestManager_ServeReady(t *testing.T) {
	tests := []struct {
		name           string
		checker        Checker
		expectedStatus int
		expectedReady  bool
	}{
		{"healthy", &mockChecker{name: "test", status: StatusHealthy}, http.StatusOK, true},
		{"degraded", &mockChecker{name: "test", status: StatusDegraded}, http.StatusOK, true},
		{"unhealthy", &mockChecker{name: "test", status: StatusUnhealthy}, http.StatusServiceUnavailable, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager("v1.0.0")
			m.RegisterChecker(tt.checker)

			req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
			w := httptest.NewRecorder()
			m.ServeReady(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)

			var resp ReadinessResponse
			require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
			assert.Equal(t, tt.expectedReady, resp.Ready)
		})
	}
}

func TestManager_ServeReady_EncodingError(t *testing.T) {
	m := NewManager("v1.0.0")
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	w := &brokenWriter{header: make(http.Header)}

	m.ServeReady(w, req)
}

func TestPingChecker(t *testing.T) {
	boom := errors.New("connection refused")

	ok := NewPingChecker("redis", false, func(context.Context) error { return nil })
	assert.Equal(t, "redis", ok.Name())
	assert.Equal(t, StatusHealthy, ok.Check(context.Background()).Status)

	optional := NewPingChecker("redis", false, func(context.Context) error { return boom })
	res := optional.Check(context.Background())
	assert.Equal(t, StatusDegraded, res.Status)
	assert.Equal(t, "connection refused", res.Error)

	critical := NewPingChecker("wavemeter", true, func(context.Context) error { return boom })
	assert.Equal(t, StatusUnhealthy, critical.Check(context.Background()).Status)
}

func TestBreakerChecker(t *testing.T) {
	tests := []struct {
		state resilience.State
		want  Status
	}{
		{resilience.StateClosed, StatusHealthy},
		{resilience.StateHalfOpen, StatusDegraded},
		{resilience.StateOpen, StatusUnhealthy},
	}
	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			c := NewBreakerChecker("monitor", func() resilience.State { return tt.state })
			assert.Equal(t, "monitor", c.Name())
			assert.Equal(t, tt.want, c.Check(context.Background()).Status)
		})
	}
}

func TestFreshnessChecker(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	var last time.Time
	var have bool
	c := NewFreshnessChecker("readings", 10*time.Second, func() (time.Time, bool) { return last, have })
	c.now = func() time.Time { return now }

	res := c.Check(context.Background())
	assert.Equal(t, StatusDegraded, res.Status)
	assert.Equal(t, "no data yet", res.Message)

	last, have = now.Add(-2*time.Second), true
	assert.Equal(t, StatusHealthy, c.Check(context.Background()).Status)

	last = now.Add(-time.Minute)
	res = c.Check(context.Background())
	assert.Equal(t, StatusDegraded, res.Status)
	assert.Equal(t, "last update 1m0s ago (max 10s)", res.Message)
}

func TestPerformStartupChecks(t *testing.T) {
	dir := t.TempDir()

	require.NoError(t, PerformStartupChecks(StartupConfig{}))
	require.NoError(t, PerformStartupChecks(StartupConfig{
		HistoryPath: filepath.Join(dir, "history.db"),
		HTTPAddr:    "127.0.0.1:8080",
	}))

	err := PerformStartupChecks(StartupConfig{HistoryPath: filepath.Join(dir, "missing", "history.db")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "directory does not exist")

	file := filepath.Join(dir, "plain")
	require.NoError(t, os.WriteFile(file, nil, 0600))
	err = PerformStartupChecks(StartupConfig{HistoryPath: filepath.Join(file, "history.db")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a directory")

	err = PerformStartupChecks(StartupConfig{HTTPAddr: "localhost"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid http listen address")

	err = PerformStartupChecks(StartupConfig{HTTPAddr: ":99999"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid http listen port")
}

type mockChecker struct {
	name   string
	status Status
}

func (m *mockChecker) Name() string {
	return m.name
}

func (m *mockChecker) Check(_ context.Context) CheckResult {
	return CheckResult{Status: m.status, Message: "mock"}
}

type brokenWriter struct {
	header http.Header
}

func (w *brokenWriter) Header() http.Header {
	return w.header
}

func (w *brokenWriter) Write([]byte) (int, error) {
	return 0, errors.New("write failed")
}

func (w *brokenWriter) WriteHeader(int) {}
