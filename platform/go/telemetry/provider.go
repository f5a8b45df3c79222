package telemetry

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Config controls OpenTelemetry export.
type Config struct {
	// ServiceName is reported as service.name on every span and metric.
	ServiceName string
	// Endpoint is the OTLP/HTTP collector URL. Export is disabled when empty.
	Endpoint string
	// Enabled turns export off even when an endpoint is configured.
	Enabled bool
	// MetricInterval is the periodic reader interval (defaults to 60s).
	MetricInterval time.Duration
}

// Setup registers global tracer and meter providers exporting over OTLP/HTTP.
//
// Export is opt-in: with no endpoint, or Enabled=false, Setup returns a no-op shutdown
// and the global no-op providers stay in place.
//
// The returned shutdown flushes pending spans and metrics and should be deferred by the caller.
func Setup(ctx context.Context, cfg Config) (shutdown func(context.Context) error, err error) {
	noop := func(context.Context) error { return nil }

	if !cfg.Enabled || cfg.Endpoint == "" {
		return noop, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
		),
	)
	if err != nil {
		return noop, err
	}

	traceExporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(cfg.Endpoint))
	if err != nil {
		return noop, err
	}

	metricExporter, err := otlpmetrichttp.New(ctx, otlpmetrichttp.WithEndpointURL(cfg.Endpoint))
	if err != nil {
		_ = traceExporter.Shutdown(ctx)
		return noop, err
	}

	interval := cfg.MetricInterval
	if interval <= 0 {
		interval = time.Minute
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
	)
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter, sdkmetric.WithInterval(interval))),
		sdkmetric.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return func(ctx context.Context) error {
		return errors.Join(tp.Shutdown(ctx), mp.Shutdown(ctx))
	}, nil
}

type flusher interface {
	ForceFlush(ctx context.Context) error
}

// ForceFlush exports spans and metrics buffered by the global providers. Runtimes that freeze the
// process between invocations (AWS Lambda) call it before returning. No-op providers are skipped.
func ForceFlush(ctx context.Context) error {
	var errs []error
	for _, provider := range []any{otel.GetTracerProvider(), otel.GetMeterProvider()} {
		if f, ok := provider.(flusher); ok {
			errs = append(errs, f.ForceFlush(ctx))
		}
	}
	return errors.Join(errs...)
}
