// SPDX-License-Identifier: MIT

package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jbqubit/ndsp-highfinesse/internal/log"
)

func TestRateLimit_EnforcesLimit(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	limited := RateLimit(3, time.Second)(handler)

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.RemoteAddr = "192.168.1.1:12345"
		w := httptest.NewRecorder()
		limited.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code, "request %d", i+1)
	}

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.RemoteAddr = "192.168.1.1:12345"
	w := httptest.NewRecorder()
	limited.ServeHTTP(w, req)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"error":"rate limit exceeded"}`, w.Body.String())
}

func TestRateLimit_DifferentIPsIndependent(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	limited := RateLimit(1, time.Second)(handler)

	for _, ip := range []string{"10.0.0.1:1", "10.0.0.2:1"} {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.RemoteAddr = ip
		w := httptest.NewRecorder()
		limited.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code, ip)
	}
}

func TestRateLimit_ProbesBypass(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	limited := RateLimit(1, time.Minute)(handler)

	for _, path := range []string{"/api/v1/info", "/healthz", "/readyz", "/metrics", "/healthz"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.RemoteAddr = "10.0.0.9:1"
		w := httptest.NewRecorder()
		limited.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code, path)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/info", nil)
	req.RemoteAddr = "10.0.0.9:1"
	w := httptest.NewRecorder()
	limited.ServeHTTP(w, req)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = log.RequestIDFromContext(r.Context())
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NotEmpty(t, seen)
	assert.Len(t, seen, 36)
	assert.Equal(t, seen, w.Header().Get(HeaderRequestID))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderRequestID, "client-id-1")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, "client-id-1", seen)
	assert.Equal(t, "client-id-1", w.Header().Get(HeaderRequestID))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderRequestID, string(bytes.Repeat([]byte("x"), 200)))
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Len(t, seen, 36)
}

func TestRecoverer(t *testing.T) {
	h := RequestID(Recoverer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/info", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "internal server error", body["error"])
	assert.Equal(t, w.Header().Get(HeaderRequestID), body["request_id"])
}

func TestRecoverer_AbortHandlerPropagates(t *testing.T) {
	h := Recoverer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	}))
	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}

func TestNewRouter_Stack(t *testing.T) {
	r := NewRouter(StackConfig{
		Metrics:    true,
		AccessLog:  true,
		Service:    "test",
		RateLimit:  100,
		RateWindow: time.Second,
	})
	r.Get("/items/{id}", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(chi.URLParam(r, "id")))
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/items/42", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "42", w.Body.String())
	assert.NotEmpty(t, w.Header().Get(HeaderRequestID))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStatusWriter(t *testing.T) {
	rec := httptest.NewRecorder()
	sw := &statusWriter{ResponseWriter: rec, statusCode: http.StatusOK}
	sw.WriteHeader(http.StatusTeapot)
	sw.WriteHeader(http.StatusOK)
	n, err := sw.Write([]byte("hello"))
	require.NoError(t, err)

	assert.Equal(t, 5, n)
	assert.Equal(t, http.StatusTeapot, sw.statusCode)
	assert.Equal(t, 5, sw.bytesWritten)
	assert.Same(t, rec, sw.Unwrap())
}

func TestShouldTrace(t *testing.T) {
	for path, want := range map[string]bool{
		"/healthz":          false,
		"/readyz":           false,
		"/metrics":          false,
		"/api/v1/readings":  true,
		"/api/v1/info":      true,
		"/api/v1/readings/": true,
	} {
		assert.Equal(t, want, shouldTrace(httptest.NewRequest(http.MethodGet, path, nil)), path)
	}
	assert.Equal(t, "GET /api/v1/readings/1/history",
		spanNameFormatter("", httptest.NewRequest(http.MethodGet, "/api/v1/readings/1/history?limit=5", nil)))
}
