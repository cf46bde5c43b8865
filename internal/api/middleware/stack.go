// SPDX-License-Identifier: MIT

// Package middleware holds the HTTP ingress middleware of the side-channel
// API.
package middleware

import (
	"time"

	"github.com/go-chi/chi/v5"
)

// StackConfig selects the optional layers of the ingress stack. Recovery and
// request IDs are always on.
type StackConfig struct {
	Metrics   bool
	AccessLog bool
	Service   string // tracer service name; empty disables tracing

	RateLimit  int // requests per window and client; 0 disables
	RateWindow time.Duration
}

// NewRouter returns a chi router with the stack applied.
func NewRouter(cfg StackConfig) *chi.Mux {
	r := chi.NewRouter()
	r.Use(Recoverer, RequestID)
	if cfg.Metrics {
		r.Use(Metrics())
	}
	if cfg.Service != "" {
		r.Use(Trace(cfg.Service))
	}
	if cfg.AccessLog {
		r.Use(AccessLog)
	}
	if cfg.RateLimit > 0 {
		r.Use(RateLimit(cfg.RateLimit, cfg.RateWindow))
	}
	return r
}
