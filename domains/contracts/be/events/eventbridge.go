package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
)

// EventBridgeAPI is the subset of the EventBridge client used by EventBridgePublisher.
type EventBridgeAPI interface {
	PutEvents(ctx context.Context, params *eventbridge.PutEventsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error)
}

// EventBridgePublisher puts one entry per event on a bus: Source is the service namespace and
// DetailType the event name.
type EventBridgePublisher struct {
	client  EventBridgeAPI
	busName string
	source  string
	now     func() time.Time
}

// NewEventBridgePublisher constructs a publisher for busName.
func NewEventBridgePublisher(client EventBridgeAPI, busName, source string) (*EventBridgePublisher, error) {
	if client == nil {
		return nil, errors.New("eventbridge client is required")
	}
	if busName == "" {
		return nil, errors.New("event bus name is required")
	}
	if source == "" {
		return nil, errors.New("event source is required")
	}
	return &EventBridgePublisher{client: client, busName: busName, source: source, now: time.Now}, nil
}

func (p *EventBridgePublisher) Publish(ctx context.Context, eventName string, payload any) error {
	detail, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event detail: %w", err)
	}

	out, err := p.client.PutEvents(ctx, &eventbridge.PutEventsInput{
		Entries: []types.PutEventsRequestEntry{{
			EventBusName: aws.String(p.busName),
			Source:       aws.String(p.source),
			DetailType:   aws.String(eventName),
			Detail:       aws.String(string(detail)),
			Time:         aws.Time(p.now().UTC()),
		}},
	})
	if err != nil {
		return fmt.Errorf("put events: %w", err)
	}

	if out.FailedEntryCount > 0 {
		for _, entry := range out.Entries {
			if entry.ErrorCode != nil {
				return fmt.Errorf("put events: entry rejected: %s: %s", aws.ToString(entry.ErrorCode), aws.ToString(entry.ErrorMessage))
			}
		}
		return fmt.Errorf("put events: %d entries failed", out.FailedEntryCount)
	}

	return nil
}
