// SPDX-License-Identifier: MIT

// Package telemetry wires OpenTelemetry tracing for the controller.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const shutdownTimeout = 5 * time.Second

// ErrUnknownExporter is returned for an ExporterType other than grpc or http.
var ErrUnknownExporter = errors.New("unsupported exporter type")

// Config holds telemetry configuration.
type Config struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
	Environment    string

	// ExporterType is "grpc" or "http".
	ExporterType string

	// Endpoint is the OTLP collector address, e.g. localhost:4317 for gRPC.
	Endpoint string

	// SamplingRate applies to root spans; children follow their parent.
	SamplingRate float64

	// Attributes are added to the resource, e.g. the device mode.
	Attributes map[string]string

	// exporter replaces the OTLP exporter in tests.
	exporter sdktrace.SpanExporter
}

// Provider owns the process tracer provider.
type Provider struct {
	tp *sdktrace.TracerProvider
}

// exporters builds an OTLP exporter per transport. Collectors run next to
// the controller on the lab network, so TLS is not configured.
var exporters = map[string]func(ctx context.Context, endpoint string) (sdktrace.SpanExporter, error){
	"grpc": func(ctx context.Context, endpoint string) (sdktrace.SpanExporter, error) {
		return otlptracegrpc.New(ctx, otlptracegrpc.WithEndpoint(endpoint), otlptracegrpc.WithInsecure())
	},
	"http": func(ctx context.Context, endpoint string) (sdktrace.SpanExporter, error) {
		return otlptracehttp.New(ctx, otlptracehttp.WithEndpoint(endpoint), otlptracehttp.WithInsecure())
	},
}

// NewProvider installs the global tracer provider and propagator. A
// disabled config installs a noop provider so instrumented code never needs
// to branch.
func NewProvider(ctx context.Context, cfg Config) (*Provider, error) {
	if !cfg.Enabled {
		otel.SetTracerProvider(noop.NewTracerProvider())
		return &Provider{}, nil
	}

	attrs := []attribute.KeyValue{
		semconv.ServiceNameKey.String(cfg.ServiceName),
		semconv.ServiceVersionKey.String(cfg.ServiceVersion),
		semconv.DeploymentEnvironmentKey.String(cfg.Environment),
	}
	for k, v := range cfg.Attributes {
		attrs = append(attrs, attribute.String(k, v))
	}
	res, err := resource.New(ctx, resource.WithHost(), resource.WithAttributes(attrs...))
	if err != nil {
		return nil, fmt.Errorf("telemetry resource: %w", err)
	}

	exp := cfg.exporter
	if exp == nil {
		build, ok := exporters[cfg.ExporterType]
		if !ok {
			return nil, fmt.Errorf("%w: %q (supported: grpc, http)", ErrUnknownExporter, cfg.ExporterType)
		}
		if exp, err = build(ctx, cfg.Endpoint); err != nil {
			return nil, fmt.Errorf("telemetry %s exporter: %w", cfg.ExporterType, err)
		}
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(rootSampler(cfg.SamplingRate))),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return &Provider{tp: tp}, nil
}

func rootSampler(rate float64) sdktrace.Sampler {
	switch {
	case rate >= 1:
		return sdktrace.AlwaysSample()
	case rate <= 0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.TraceIDRatioBased(rate)
	}
}

// ForceFlush exports every finished span still held by the batcher.
func (p *Provider) ForceFlush(ctx context.Context) error {
	if p == nil || p.tp == nil {
		return nil
	}
	return p.tp.ForceFlush(ctx)
}

// Shutdown flushes pending spans and stops the exporter, bounded by a
// fixed timeout on top of ctx.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.tp == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	return errors.Join(p.tp.ForceFlush(ctx), p.tp.Shutdown(ctx))
}

// Tracer returns a named tracer from the global provider.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}
