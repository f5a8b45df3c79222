package telemetry

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics records named counters.
type Metrics interface {
	Count(ctx context.Context, name string, value int64, attrs ...attribute.KeyValue)
}

// CounterMetrics creates OpenTelemetry Int64 counters lazily, one per metric name.
type CounterMetrics struct {
	meter metric.Meter

	mu       sync.Mutex
	counters map[string]metric.Int64Counter
	onError  func(name string, err error)
}

// NewCounterMetrics builds a recorder on a meter named after the service namespace.
// onError, when set, is called if a counter cannot be created; the increment is dropped.
func NewCounterMetrics(provider metric.MeterProvider, namespace string, onError func(name string, err error)) *CounterMetrics {
	return &CounterMetrics{
		meter:    provider.Meter(namespace),
		counters: make(map[string]metric.Int64Counter),
		onError:  onError,
	}
}

// Count adds value to the counter called name.
func (m *CounterMetrics) Count(ctx context.Context, name string, value int64, attrs ...attribute.KeyValue) {
	counter, err := m.counter(name)
	if err != nil {
		if m.onError != nil {
			m.onError(name, err)
		}
		return
	}
	counter.Add(ctx, value, metric.WithAttributes(attrs...))
}

func (m *CounterMetrics) counter(name string) (metric.Int64Counter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c, ok := m.counters[name]; ok {
		return c, nil
	}

	c, err := m.meter.Int64Counter(name, metric.WithUnit("{count}"))
	if err != nil {
		return nil, fmt.Errorf("create counter %s: %w", name, err)
	}
	m.counters[name] = c
	return c, nil
}

// NopMetrics discards every measurement.
type NopMetrics struct{}

func (NopMetrics) Count(context.Context, string, int64, ...attribute.KeyValue) {}
