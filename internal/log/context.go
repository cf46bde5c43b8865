// SPDX-License-Identifier: MIT

package log

import (
	"context"

	"github.com/rs/zerolog"
)

// correlation carries the IDs that tie log lines to one HTTP request or one
// RPC connection.
type correlation struct {
	requestID string
	connID    string
}

type correlationKey struct{}

func correlationFrom(ctx context.Context) correlation {
	if ctx == nil {
		return correlation{}
	}
	c, _ := ctx.Value(correlationKey{}).(correlation)
	return c
}

func withCorrelation(ctx context.Context, update func(*correlation)) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	c := correlationFrom(ctx)
	update(&c)
	return context.WithValue(ctx, correlationKey{}, c)
}

// ContextWithRequestID returns ctx carrying an HTTP request ID.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return withCorrelation(ctx, func(c *correlation) { c.requestID = id })
}

// ContextWithConnID returns ctx carrying an RPC connection ID.
func ContextWithConnID(ctx context.Context, id string) context.Context {
	return withCorrelation(ctx, func(c *correlation) { c.connID = id })
}

// RequestIDFromContext returns the HTTP request ID, or "".
func RequestIDFromContext(ctx context.Context) string { return correlationFrom(ctx).requestID }

// ConnIDFromContext returns the RPC connection ID, or "".
func ConnIDFromContext(ctx context.Context) string { return correlationFrom(ctx).connID }

// WithContext adds the correlation IDs found in ctx to logger.
func WithContext(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	c := correlationFrom(ctx)
	if c == (correlation{}) {
		return logger
	}
	b := logger.With()
	if c.requestID != "" {
		b = b.Str(FieldRequestID, c.requestID)
	}
	if c.connID != "" {
		b = b.Str(FieldConnID, c.connID)
	}
	return b.Logger()
}

// WithComponentFromContext is WithComponent plus the correlation IDs of ctx.
func WithComponentFromContext(ctx context.Context, component string) zerolog.Logger {
	return WithContext(ctx, WithComponent(component))
}
