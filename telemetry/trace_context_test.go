package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func setupTestTracer(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder), sdktrace.WithSampler(sdktrace.AlwaysSample()))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
	return recorder
}

func TestGetTraceContext_NilOrEmptyContext(t *testing.T) {
	assert.Equal(t, TraceContext{}, GetTraceContext(nil))
	assert.Equal(t, TraceContext{}, GetTraceContext(context.Background()))
	assert.False(t, HasTraceContext(nil))
	assert.False(t, HasTraceContext(context.Background()))
}

func TestGetTraceContext_ExtractsFromActiveSpan(t *testing.T) {
	setupTestTracer(t)
	ctx, end := StartLinkedSpan(context.Background(), "test.op", "", "", nil)
	defer end()

	tc := GetTraceContext(ctx)
	require.Len(t, tc.TraceID, 32)
	require.Len(t, tc.SpanID, 16)
	assert.True(t, HasTraceContext(ctx))
}

func TestAddSpanEvent_RecordsOnRecordingSpan(t *testing.T) {
	recorder := setupTestTracer(t)
	ctx, end := StartLinkedSpan(context.Background(), "test.op", "", "", nil)
	AddSpanEvent(ctx, "something_happened", attribute.String("k", "v"))
	end()

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	require.Len(t, spans[0].Events(), 1)
	assert.Equal(t, "something_happened", spans[0].Events()[0].Name)
}

func TestAddSpanEvent_NoopOnNilContext(t *testing.T) {
	assert.NotPanics(t, func() { AddSpanEvent(nil, "ignored") })
}

func TestRecordSpanError_SetsErrorStatus(t *testing.T) {
	recorder := setupTestTracer(t)
	ctx, end := StartLinkedSpan(context.Background(), "test.op", "", "", nil)
	RecordSpanError(ctx, errors.New("boom"))
	end()

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
}

func TestRecordSpanError_NoopOnNilError(t *testing.T) {
	recorder := setupTestTracer(t)
	ctx, end := StartLinkedSpan(context.Background(), "test.op", "", "", nil)
	RecordSpanError(ctx, nil)
	end()

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Empty(t, spans[0].Events())
}

func TestStartLinkedSpan_FallsBackToUnlinkedOnMalformedIDs(t *testing.T) {
	setupTestTracer(t)
	ctx, end := StartLinkedSpan(context.Background(), "test.op", "not-hex", "also-not-hex", map[string]string{"a": "b"})
	defer end()
	assert.NotNil(t, ctx)
}

func TestCurrentTraceAndSpan_RoundTripsThroughStartLinkedSpan(t *testing.T) {
	setupTestTracer(t)
	ctx, end := StartLinkedSpan(context.Background(), "parent", "", "", nil)
	traceID, spanID := CurrentTraceAndSpan(ctx)
	require.NotEmpty(t, traceID)
	require.NotEmpty(t, spanID)
	end()

	childCtx, endChild := StartLinkedSpan(context.Background(), "child", traceID, spanID, nil)
	defer endChild()
	assert.NotNil(t, childCtx)
}

func TestSetSpanAttributesAndStatus_NoopOnNilContext(t *testing.T) {
	assert.NotPanics(t, func() {
		SetSpanAttributes(nil, attribute.String("k", "v"))
		SetSpanStatus(nil, 0, "")
	})
}
