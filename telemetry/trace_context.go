package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TraceContext holds trace and span identifiers for log correlation.
type TraceContext struct {
	TraceID string
	SpanID  string
	Sampled bool
}

// GetTraceContext extracts the trace/span ids from ctx for inclusion in a
// log line. Returns a zero value if ctx carries no valid span.
func GetTraceContext(ctx context.Context) TraceContext {
	if ctx == nil {
		return TraceContext{}
	}
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() {
		return TraceContext{}
	}
	return TraceContext{
		TraceID: sc.TraceID().String(),
		SpanID:  sc.SpanID().String(),
		Sampled: sc.IsSampled(),
	}
}

// HasTraceContext reports whether ctx carries a valid span context.
func HasTraceContext(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	return trace.SpanFromContext(ctx).SpanContext().IsValid()
}

// AddSpanEvent records a named point-in-time event on the current span, e.g.
// "breaker_opened" or "retry_scheduled". No-op if ctx carries no span.
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	if ctx == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.AddEvent(name, trace.WithAttributes(attrs...))
	}
}

// RecordSpanError records err on the current span and marks it failed.
func RecordSpanError(ctx context.Context, err error) {
	if ctx == nil || err == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// SetSpanAttributes attaches attrs (e.g. workflow.agent, workflow.task) to
// the current span for later filtering.
func SetSpanAttributes(ctx context.Context, attrs ...attribute.KeyValue) {
	if ctx == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.SetAttributes(attrs...)
	}
}

// SetSpanStatus sets the current span's status when no error is being
// recorded via RecordSpanError.
func SetSpanStatus(ctx context.Context, code codes.Code, description string) {
	if ctx == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.SetStatus(code, description)
	}
}
