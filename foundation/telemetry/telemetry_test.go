package telemetry_test

import (
	"context"
	"testing"

	"github.com/chaos0211/block-dt/foundation/telemetry"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func TestInitTracerNoop(t *testing.T) {
	shutdown, err := telemetry.InitTracer(context.Background(), "test", "")
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}

func TestKafkaHeaders(t *testing.T) {
	_, err := telemetry.InitTracer(context.Background(), "test", "")
	require.NoError(t, err)

	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	var headers []kafka.Header
	telemetry.InjectKafkaHeaders(ctx, &headers)
	require.Len(t, headers, 1)
	require.Equal(t, "traceparent", headers[0].Key)

	got := trace.SpanContextFromContext(telemetry.ExtractKafkaHeaders(context.Background(), headers))
	require.Equal(t, traceID, got.TraceID())
	require.Equal(t, spanID, got.SpanID())
	require.True(t, got.IsRemote())
}
