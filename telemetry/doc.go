// Package telemetry wraps OpenTelemetry tracing and metrics behind the
// narrow surface the rest of this module needs: span events on the current
// context, linked spans for dispatched task workers, and a MetricsCollector
// interface so the resilience and scheduler packages never import the otel
// SDK directly.
package telemetry

import "go.opentelemetry.io/otel/attribute"

func toAttributes(labels map[string]string) []attribute.KeyValue {
	if len(labels) == 0 {
		return nil
	}
	attrs := make([]attribute.KeyValue, 0, len(labels))
	for k, v := range labels {
		attrs = append(attrs, attribute.String(k, v))
	}
	return attrs
}
