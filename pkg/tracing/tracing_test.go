package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func useRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	SetTracer(provider.Tracer("test"))
	t.Cleanup(func() { SetTracer(nil) })
	return recorder
}

func TestStartSpan_NoTracer(t *testing.T) {
	SetTracer(nil)
	ctx, span := StartSpan(context.Background(), "noop")
	defer span.End()

	assert.False(t, span.SpanContext().IsValid())
	assert.Empty(t, GetTraceParent(ctx))
	assert.Empty(t, GetTraceID(ctx))
}

func TestStartSpan_Attributes(t *testing.T) {
	recorder := useRecorder(t)

	_, span := StartSpan(context.Background(), "process", attribute.String("submission.id", "sub-1"))
	RecordError(span, errors.New("boom"))
	RecordError(span, nil)
	span.End()

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "process", ended[0].Name())
	assert.Contains(t, ended[0].Attributes(), attribute.String("submission.id", "sub-1"))
	assert.Equal(t, codes.Error, ended[0].Status().Code)
	assert.Equal(t, "boom", ended[0].Status().Description)
}

func TestTraceParent_RoundTrip(t *testing.T) {
	useRecorder(t)

	ctx, span := StartSpan(context.Background(), "producer")
	defer span.End()
	traceParent := GetTraceParent(ctx)
	require.NotEmpty(t, traceParent)

	remote := WithTraceParent(context.Background(), traceParent)
	child, childSpan := StartSpan(remote, "consumer")
	defer childSpan.End()

	assert.Equal(t, span.SpanContext().TraceID(), trace.SpanContextFromContext(child).TraceID())
	assert.Equal(t, GetTraceID(ctx), GetTraceID(child))
}

func TestWithTraceParent_Invalid(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, ctx, WithTraceParent(ctx, ""))
	assert.False(t, trace.SpanContextFromContext(WithTraceParent(ctx, "garbage")).IsValid())
}
