package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type mockEventBridge struct {
	putFn func(ctx context.Context, in *eventbridge.PutEventsInput) (*eventbridge.PutEventsOutput, error)
}

func (m *mockEventBridge) PutEvents(ctx context.Context, in *eventbridge.PutEventsInput, _ ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error) {
	if m.putFn == nil {
		panic("putFn not configured")
	}
	return m.putFn(ctx, in)
}

type mockAMQP struct {
	publishFn func(ctx context.Context, exchange, key string, msg amqp.Publishing) error
}

func (m *mockAMQP) PublishWithDeferredConfirmWithContext(ctx context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) (*amqp.DeferredConfirmation, error) {
	if m.publishFn == nil {
		panic("publishFn not configured")
	}
	return nil, m.publishFn(ctx, exchange, key, msg)
}

type payload struct {
	PropertyID string `json:"property_id"`
	Status     string `json:"contract_status"`
}

func TestRoutingKey(t *testing.T) {
	t.Parallel()

	require.Equal(t, "contract.created", RoutingKey("Contract created"))
	require.Equal(t, "contract.updated", RoutingKey("  Contract   Updated "))
}

func TestEventBridgePublish(t *testing.T) {
	t.Parallel()

	fixed := time.Date(2026, 10, 1, 9, 30, 0, 0, time.UTC)
	client := &mockEventBridge{putFn: func(ctx context.Context, in *eventbridge.PutEventsInput) (*eventbridge.PutEventsOutput, error) {
		require.Len(t, in.Entries, 1)
		entry := in.Entries[0]
		require.Equal(t, "contracts-bus", aws.ToString(entry.EventBusName))
		require.Equal(t, "PropertyContracts", aws.ToString(entry.Source))
		require.Equal(t, "Contract created", aws.ToString(entry.DetailType))
		require.Equal(t, fixed, aws.ToTime(entry.Time))

		var detail payload
		require.NoError(t, json.Unmarshal([]byte(aws.ToString(entry.Detail)), &detail))
		require.Equal(t, payload{PropertyID: "P1", Status: "DRAFT"}, detail)
		return &eventbridge.PutEventsOutput{Entries: []types.PutEventsResultEntry{{EventId: aws.String("evt-1")}}}, nil
	}}

	p, err := NewEventBridgePublisher(client, "contracts-bus", "PropertyContracts")
	require.NoError(t, err)
	p.now = func() time.Time { return fixed }

	require.NoError(t, p.Publish(context.Background(), "Contract created", payload{PropertyID: "P1", Status: "DRAFT"}))
}

func TestEventBridgePublishFailedEntry(t *testing.T) {
	t.Parallel()

	client := &mockEventBridge{putFn: func(ctx context.Context, in *eventbridge.PutEventsInput) (*eventbridge.PutEventsOutput, error) {
		return &eventbridge.PutEventsOutput{
			FailedEntryCount: 1,
			Entries: []types.PutEventsResultEntry{{
				ErrorCode:    aws.String("ThrottlingException"),
				ErrorMessage: aws.String("Rate exceeded"),
			}},
		}, nil
	}}

	p, err := NewEventBridgePublisher(client, "contracts-bus", "PropertyContracts")
	require.NoError(t, err)

	err = p.Publish(context.Background(), "Contract updated", payload{PropertyID: "P1"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "ThrottlingException")
}

func TestEventBridgePublishClientError(t *testing.T) {
	t.Parallel()

	boom := errors.New("network down")
	client := &mockEventBridge{putFn: func(ctx context.Context, in *eventbridge.PutEventsInput) (*eventbridge.PutEventsOutput, error) {
		return nil, boom
	}}

	p, err := NewEventBridgePublisher(client, "contracts-bus", "PropertyContracts")
	require.NoError(t, err)
	require.ErrorIs(t, p.Publish(context.Background(), "Contract updated", payload{}), boom)
}

func TestNewEventBridgePublisherValidation(t *testing.T) {
	t.Parallel()

	_, err := NewEventBridgePublisher(nil, "bus", "src")
	require.Error(t, err)
	_, err = NewEventBridgePublisher(&mockEventBridge{}, "", "src")
	require.Error(t, err)
	_, err = NewEventBridgePublisher(&mockEventBridge{}, "bus", "")
	require.Error(t, err)
}

func TestRabbitPublish(t *testing.T) {
	t.Parallel()

	var got amqp.Publishing
	pub := &mockAMQP{publishFn: func(ctx context.Context, exchange, key string, msg amqp.Publishing) error {
		require.Equal(t, "contracts.events", exchange)
		require.Equal(t, "contract.created", key)
		got = msg
		return nil
	}}

	p := newRabbitPublisher(pub, "contracts.events")
	require.NoError(t, p.Publish(context.Background(), "Contract created", payload{PropertyID: "P1", Status: "DRAFT"}))

	require.Equal(t, "application/json", got.ContentType)
	require.Equal(t, amqp.Persistent, got.DeliveryMode)
	require.Equal(t, "Contract created", got.Headers["event_name"])
	require.NotEmpty(t, got.MessageId)
	require.JSONEq(t, `{"property_id":"P1","contract_status":"DRAFT"}`, string(got.Body))
}

func TestRabbitPublishError(t *testing.T) {
	t.Parallel()

	pub := &mockAMQP{publishFn: func(ctx context.Context, exchange, key string, msg amqp.Publishing) error {
		return amqp.ErrClosed
	}}

	p := newRabbitPublisher(pub, "contracts.events")
	require.ErrorIs(t, p.Publish(context.Background(), "Contract created", payload{}), amqp.ErrClosed)
}

func TestLogPublisher(t *testing.T) {
	t.Parallel()

	p := NewLogPublisher(zaptest.NewLogger(t))
	require.NoError(t, p.Publish(context.Background(), "Contract created", payload{PropertyID: "P1"}))
}
