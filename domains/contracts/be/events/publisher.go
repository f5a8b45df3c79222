package events

import (
	"context"
	"strings"

	"go.uber.org/zap"

	platformlogging "github.com/zenGate-Global/palmyra-contracts/platform/go/logging"
)

// Publisher emits a named domain event. Implementations return an error when the event was not accepted.
type Publisher interface {
	Publish(ctx context.Context, eventName string, payload any) error
}

// RoutingKey derives a dotted lowercase key from an event name ("Contract created" -> "contract.created").
func RoutingKey(eventName string) string {
	return strings.Join(strings.Fields(strings.ToLower(eventName)), ".")
}

// LogPublisher writes events to the logger instead of a bus.
type LogPublisher struct {
	logger *zap.Logger
}

// NewLogPublisher constructs a LogPublisher.
func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	if logger == nil {
		panic("logger is required")
	}
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, eventName string, payload any) error {
	platformlogging.FromContextOr(ctx, p.logger).Info("event published",
		zap.String("event_name", eventName),
		zap.String("routing_key", RoutingKey(eventName)),
		zap.Any("detail", payload),
	)
	return nil
}
