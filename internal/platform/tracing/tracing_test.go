package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestInit_Disabled(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{Enabled: false})
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(context.Background(), "noop")
	assert.False(t, span.SpanContext().IsValid())
	span.End()

	assert.NoError(t, shutdown(context.Background()))
}

func TestInit_Enabled(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{
		Enabled:       true,
		OTLPEndpoint:  "127.0.0.1:4317",
		SamplingRatio: 1,
		ServiceName:   "stock-ledger",
		Environment:   "test",
	})
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(context.Background(), "sampled")
	assert.True(t, span.SpanContext().IsSampled())
	span.End()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = shutdown(ctx)
}
