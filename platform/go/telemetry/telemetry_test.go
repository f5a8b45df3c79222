package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestCounterMetricsAccumulates(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	m := NewCounterMetrics(provider, "PropertyContracts", nil)
	m.Count(ctx, "ContractCreated", 1)
	m.Count(ctx, "ContractCreated", 1)
	m.Count(ctx, "ContractUpdated", 1, attribute.String("service", "contracts"))

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	require.Len(t, rm.ScopeMetrics, 1)
	require.Equal(t, "PropertyContracts", rm.ScopeMetrics[0].Scope.Name)

	totals := map[string]int64{}
	for _, m := range rm.ScopeMetrics[0].Metrics {
		sum, ok := m.Data.(metricdata.Sum[int64])
		require.True(t, ok)
		for _, dp := range sum.DataPoints {
			totals[m.Name] += dp.Value
		}
	}

	require.Equal(t, int64(2), totals["ContractCreated"])
	require.Equal(t, int64(1), totals["ContractUpdated"])
}

func TestSetupDisabledIsNoop(t *testing.T) {
	t.Parallel()

	shutdown, err := Setup(context.Background(), Config{ServiceName: "contracts", Endpoint: "http://localhost:4318", Enabled: false})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))

	shutdown, err = Setup(context.Background(), Config{ServiceName: "contracts", Enabled: true})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}

// Not parallel: swaps the global providers.
func TestForceFlushExportsBufferedTelemetry(t *testing.T) {
	ctx := context.Background()

	prevTracer, prevMeter := otel.GetTracerProvider(), otel.GetMeterProvider()
	t.Cleanup(func() {
		otel.SetTracerProvider(prevTracer)
		otel.SetMeterProvider(prevMeter)
	})

	spans := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(spans, sdktrace.WithBatchTimeout(time.Hour)))
	metrics := &recordingExporter{}
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metrics, sdkmetric.WithInterval(time.Hour))))
	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)

	_, span := otel.Tracer("contracts").Start(ctx, "CreateContract")
	span.End()
	NewCounterMetrics(otel.GetMeterProvider(), "PropertyContracts", nil).Count(ctx, "ContractCreated", 1)

	require.Empty(t, spans.GetSpans())
	require.NoError(t, ForceFlush(ctx))
	require.Len(t, spans.GetSpans(), 1)
	require.Equal(t, "CreateContract", spans.GetSpans()[0].Name)
	require.Positive(t, metrics.exports)
}

func TestForceFlushSkipsNoopProviders(t *testing.T) {
	t.Parallel()

	require.NoError(t, ForceFlush(context.Background()))
}

type recordingExporter struct {
	exports int
}

func (e *recordingExporter) Temporality(k sdkmetric.InstrumentKind) metricdata.Temporality {
	return sdkmetric.DefaultTemporalitySelector(k)
}

func (e *recordingExporter) Aggregation(k sdkmetric.InstrumentKind) sdkmetric.Aggregation {
	return sdkmetric.DefaultAggregationSelector(k)
}

func (e *recordingExporter) Export(ctx context.Context, rm *metricdata.ResourceMetrics) error {
	e.exports++
	return nil
}

func (e *recordingExporter) ForceFlush(ctx context.Context) error { return nil }

func (e *recordingExporter) Shutdown(ctx context.Context) error { return nil }
