// Package instrument composes cross-cutting hooks (tracing, logging, metrics) around named operations.
//
// Interceptors run in the order they are passed to Chain: the first one is the outermost.
package instrument

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	platformlogging "github.com/zenGate-Global/palmyra-contracts/platform/go/logging"
	"github.com/zenGate-Global/palmyra-contracts/platform/go/telemetry"
)

// Operation is a unit of work wrapped by interceptors.
type Operation func(ctx context.Context) error

// Interceptor decorates the operation called name.
type Interceptor func(name string, next Operation) Operation

// Chain composes interceptors into one.
func Chain(interceptors ...Interceptor) Interceptor {
	return func(name string, next Operation) Operation {
		for i := len(interceptors) - 1; i >= 0; i-- {
			if interceptors[i] == nil {
				continue
			}
			next = interceptors[i](name, next)
		}
		return next
	}
}

// Run executes op through the interceptor.
func Run(ctx context.Context, ic Interceptor, name string, op Operation) error {
	if ic == nil {
		return op(ctx)
	}
	return ic(name, op)(ctx)
}

// Call executes fn through the interceptor and returns its result.
func Call[T any](ctx context.Context, ic Interceptor, name string, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := Run(ctx, ic, name, func(ctx context.Context) error {
		var err error
		out, err = fn(ctx)
		return err
	})
	return out, err
}

// Tracing opens a span per operation and marks it failed when the operation returns an error.
func Tracing(tracer trace.Tracer) Interceptor {
	return func(name string, next Operation) Operation {
		return func(ctx context.Context) error {
			ctx, span := tracer.Start(ctx, name)
			defer span.End()

			err := next(ctx)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			}
			return err
		}
	}
}

// Logging stores an operation-scoped logger on the context and logs completion.
// The context logger is preferred over base when present.
func Logging(base *zap.Logger) Interceptor {
	return func(name string, next Operation) Operation {
		return func(ctx context.Context) error {
			logger := platformlogging.FromContextOr(ctx, base).With(zap.String("operation", name))
			if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
				logger = logger.With(zap.String("trace_id", sc.TraceID().String()))
			}
			ctx = platformlogging.WithLogger(ctx, logger)

			start := time.Now()
			logger.Debug("operation started")

			err := next(ctx)
			if err != nil {
				logger.Warn("operation failed", zap.Duration("duration", time.Since(start)), zap.Error(err))
				return err
			}

			logger.Info("operation completed", zap.Duration("duration", time.Since(start)))
			return nil
		}
	}
}

// ErrorCount increments "<name>Errors" whenever the operation fails.
func ErrorCount(metrics telemetry.Metrics) Interceptor {
	return func(name string, next Operation) Operation {
		return func(ctx context.Context) error {
			err := next(ctx)
			if err != nil {
				metrics.Count(ctx, name+"Errors", 1)
			}
			return err
		}
	}
}
