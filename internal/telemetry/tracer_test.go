// SPDX-License-Identifier: MIT

package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace/noop"
)

func TestNewProvider_Disabled(t *testing.T) {
	provider, err := NewProvider(context.Background(), Config{ServiceName: "aqctl_highfinesse", ExporterType: "grpc"})
	require.NoError(t, err)
	assert.Nil(t, provider.tp)

	_, span := otel.Tracer("test").Start(context.Background(), "noop-check")
	assert.False(t, span.IsRecording())
	span.End()
	assert.NoError(t, provider.Shutdown(context.Background()))
}

func TestNewProvider_UnknownExporter(t *testing.T) {
	_, err := NewProvider(context.Background(), Config{Enabled: true, ExporterType: "zipkin"})
	require.ErrorIs(t, err, ErrUnknownExporter)
	assert.Contains(t, err.Error(), `"zipkin"`)
}

func TestNewProvider_RecordsSpans(t *testing.T) {
	exp := tracetest.NewInMemoryExporter()
	provider, err := NewProvider(context.Background(), Config{
		Enabled:        true,
		ServiceName:    "aqctl_highfinesse",
		ServiceVersion: "1.2.3",
		SamplingRate:   1,
		Attributes:     map[string]string{"wavemeter.simulation": "true"},
		exporter:       exp,
	})
	require.NoError(t, err)
	t.Cleanup(func() { otel.SetTracerProvider(noop.NewTracerProvider()) })

	_, span := Tracer("rpc").Start(context.Background(), "rpc.call HighFinesse.get_frequency")
	span.SetAttributes(RPCAttributes("HighFinesse", "get_frequency", "")...)
	span.End()
	require.NoError(t, provider.ForceFlush(context.Background()))

	// the in-memory exporter drops its spans on shutdown, so read them first
	spans := exp.GetSpans()
	require.NoError(t, provider.Shutdown(context.Background()))
	require.Len(t, spans, 1)
	assert.Equal(t, "rpc.call HighFinesse.get_frequency", spans[0].Name)
	res := spans[0].Resource.Attributes()
	assert.Contains(t, res, attribute.String("service.name", "aqctl_highfinesse"))
	assert.Contains(t, res, attribute.String("wavemeter.simulation", "true"))
}

func TestRootSampler(t *testing.T) {
	tests := []struct {
		rate float64
		want string
	}{
		{1.0, "AlwaysOnSampler"},
		{2.0, "AlwaysOnSampler"},
		{0.0, "AlwaysOffSampler"},
		{-1, "AlwaysOffSampler"},
		{0.5, "TraceIDRatioBased{0.5}"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, rootSampler(tt.rate).Description(), "rate %v", tt.rate)
	}
}

func TestProvider_ShutdownNil(t *testing.T) {
	var p *Provider
	assert.NoError(t, p.ForceFlush(context.Background()))
	assert.NoError(t, p.Shutdown(context.Background()))
}
