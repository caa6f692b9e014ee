package observability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestNew_Disabled(t *testing.T) {
	ctx := context.Background()
	p, err := New(ctx, &Config{Enabled: false})
	require.NoError(t, err)

	// inert provider: spans and metrics are no-ops, never nil panics
	spanCtx, span := p.StartSpan(ctx, "verify")
	assert.NotNil(t, spanCtx)
	span.End()

	p.RecordOperation(ctx, "verify", 5*time.Millisecond, nil)
	p.RecordVerdict(ctx, false, "not batched")
	assert.NoError(t, p.Shutdown(ctx))
}

func TestNew_DisabledIgnoresGlobalProvider(t *testing.T) {
	ctx := context.Background()

	// A recording provider installed globally must not leak spans out of a
	// disabled instance.
	prev := otel.GetTracerProvider()
	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})

	p, err := New(ctx, &Config{Enabled: false})
	require.NoError(t, err)

	_, span := p.StartSpan(ctx, "record_inference")
	defer span.End()
	assert.False(t, span.IsRecording())
	assert.False(t, span.SpanContext().IsValid())
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "anchorite", cfg.ServiceName)
	assert.True(t, cfg.Enabled)
	assert.NotEmpty(t, cfg.OTLPEndpoint)
}
