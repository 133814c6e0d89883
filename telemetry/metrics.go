package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/metric"
)

// MetricsCollector is the hook resilience components and the scheduler use
// to report counters and durations without depending on a concrete metrics
// backend.
type MetricsCollector interface {
	IncCounter(ctx context.Context, name string, labels map[string]string)
	RecordDuration(ctx context.Context, name string, seconds float64, labels map[string]string)
}

// NoopMetrics discards everything. The default when no meter is wired.
type NoopMetrics struct{}

func (NoopMetrics) IncCounter(context.Context, string, map[string]string)              {}
func (NoopMetrics) RecordDuration(context.Context, string, float64, map[string]string) {}

// OTelMetrics backs MetricsCollector with an OpenTelemetry meter, creating
// instruments lazily and caching them by name.
type OTelMetrics struct {
	meter metric.Meter

	mu         sync.Mutex
	counters   map[string]metric.Float64Counter
	histograms map[string]metric.Float64Histogram
}

// NewOTelMetrics wraps an OpenTelemetry meter (e.g. otel.Meter("workflowforge")).
func NewOTelMetrics(meter metric.Meter) *OTelMetrics {
	return &OTelMetrics{
		meter:      meter,
		counters:   make(map[string]metric.Float64Counter),
		histograms: make(map[string]metric.Float64Histogram),
	}
}

func (m *OTelMetrics) IncCounter(ctx context.Context, name string, labels map[string]string) {
	m.mu.Lock()
	c, ok := m.counters[name]
	if !ok {
		var err error
		c, err = m.meter.Float64Counter(name)
		if err != nil {
			m.mu.Unlock()
			return
		}
		m.counters[name] = c
	}
	m.mu.Unlock()
	c.Add(ctx, 1, metric.WithAttributes(toAttributes(labels)...))
}

func (m *OTelMetrics) RecordDuration(ctx context.Context, name string, seconds float64, labels map[string]string) {
	m.mu.Lock()
	h, ok := m.histograms[name]
	if !ok {
		var err error
		h, err = m.meter.Float64Histogram(name)
		if err != nil {
			m.mu.Unlock()
			return
		}
		m.histograms[name] = h
	}
	m.mu.Unlock()
	h.Record(ctx, seconds, metric.WithAttributes(toAttributes(labels)...))
}
