package telemetry

import (
	"context"
	"fmt"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "workflowforge"

// NewTracerProvider builds a TracerProvider sampling every span. Tests and
// callers with their own exporter pass it via WithBatcher/WithSyncer;
// binaries use NewTracerProviderFromEnv instead.
func NewTracerProvider(opts ...sdktrace.TracerProviderOption) *sdktrace.TracerProvider {
	opts = append([]sdktrace.TracerProviderOption{
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	}, opts...)
	return sdktrace.NewTracerProvider(opts...)
}

// NewTracerProviderFromEnv builds a TracerProvider wired to an exporter
// chosen by environment: an OTLP/gRPC exporter when
// OTEL_EXPORTER_OTLP_ENDPOINT (or WORKFLOWFORGE_TELEMETRY_ENDPOINT) names
// a collector, a stdout exporter when OTEL_TRACES_EXPORTER=stdout, and an
// un-exported provider otherwise. Callers treat an error as a warning and
// fall back to NewTracerProvider() rather than refusing to start.
func NewTracerProviderFromEnv(ctx context.Context, serviceName string) (*sdktrace.TracerProvider, error) {
	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceNameKey.String(serviceName),
	)

	endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if endpoint == "" {
		endpoint = os.Getenv("WORKFLOWFORGE_TELEMETRY_ENDPOINT")
	}

	switch {
	case endpoint != "":
		exporter, err := otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(endpoint),
			otlptracegrpc.WithInsecure(),
		)
		if err != nil {
			return nil, fmt.Errorf("create OTLP trace exporter: %w", err)
		}
		return NewTracerProvider(sdktrace.WithBatcher(exporter), sdktrace.WithResource(res)), nil
	case os.Getenv("OTEL_TRACES_EXPORTER") == "stdout":
		exporter, err := stdouttrace.New()
		if err != nil {
			return nil, fmt.Errorf("create stdout trace exporter: %w", err)
		}
		return NewTracerProvider(sdktrace.WithBatcher(exporter), sdktrace.WithResource(res)), nil
	default:
		return NewTracerProvider(sdktrace.WithResource(res)), nil
	}
}

// StartLinkedSpan starts a span linked to a (possibly remote) trace/span id
// pair, used by the scheduler to give each task dispatch its own span while
// still pointing back at the workflow-level parent. Falls back to an
// unlinked span when the ids are empty or malformed.
func StartLinkedSpan(ctx context.Context, name string, traceID, parentSpanID string, attrs map[string]string) (context.Context, func()) {
	if ctx == nil {
		ctx = context.Background()
	}
	tracer := otel.Tracer(tracerName)

	var opts []trace.SpanStartOption
	if traceID != "" && parentSpanID != "" {
		tid, tErr := trace.TraceIDFromHex(traceID)
		sid, sErr := trace.SpanIDFromHex(parentSpanID)
		if tErr == nil && sErr == nil {
			parentSC := trace.NewSpanContext(trace.SpanContextConfig{TraceID: tid, SpanID: sid, Remote: true})
			opts = append(opts, trace.WithLinks(trace.Link{SpanContext: parentSC}))
		}
	}

	ctx, span := tracer.Start(ctx, name, opts...)
	for k, v := range attrs {
		span.SetAttributes(attribute.String(k, v))
	}
	return ctx, func() { span.End() }
}

// CurrentTraceAndSpan returns the hex trace/span ids of the span in ctx,
// e.g. for stamping onto log lines or passing to StartLinkedSpan.
func CurrentTraceAndSpan(ctx context.Context) (traceID, spanID string) {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return "", ""
	}
	return sc.TraceID().String(), sc.SpanID().String()
}
