package intake

import (
	"context"
	"errors"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/zenGate-Global/palmyra-contracts/domains/contracts/be/service"
)

type settlement struct {
	tag     uint64
	ack     bool
	requeue bool
}

type fakeAcknowledger struct {
	settled []settlement
}

func (f *fakeAcknowledger) Ack(tag uint64, multiple bool) error {
	f.settled = append(f.settled, settlement{tag: tag, ack: true})
	return nil
}

func (f *fakeAcknowledger) Nack(tag uint64, multiple, requeue bool) error {
	f.settled = append(f.settled, settlement{tag: tag, requeue: requeue})
	return nil
}

func (f *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	return f.Nack(tag, false, requeue)
}

func delivery(ack amqp.Acknowledger, method, body string) amqp.Delivery {
	return amqp.Delivery{
		Acknowledger: ack,
		DeliveryTag:  7,
		MessageId:    "msg-7",
		RoutingKey:   "contract.request",
		Headers:      amqp.Table{AttributeHTTPMethod: method, "attempt": int32(1)},
		Body:         []byte(body),
	}
}

func TestFromDelivery(t *testing.T) {
	t.Parallel()

	msg := FromDelivery(delivery(nil, "PUT", `{"property_id":"P1"}`))
	require.Equal(t, Message{
		ID:         "msg-7",
		Body:       `{"property_id":"P1"}`,
		Attributes: map[string]string{AttributeHTTPMethod: "PUT"},
	}, msg)

	msg = FromDelivery(amqp.Delivery{DeliveryTag: 12})
	require.Equal(t, "delivery-12", msg.ID)
}

func TestRabbitConsumerSettlesDeliveries(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		body      string
		createErr error
		want      settlement
	}{
		"success": {
			body: `{"property_id":"P1","address":"a","seller_name":"s"}`,
			want: settlement{tag: 7, ack: true},
		},
		"parse error is dead-lettered": {
			body: `{`,
			want: settlement{tag: 7},
		},
		"conflict is dead-lettered": {
			body:      `{"property_id":"P1","address":"a","seller_name":"s"}`,
			createErr: &service.ConflictError{PropertyID: "P1", Exists: true, CurrentStatus: service.StatusDraft},
			want:      settlement{tag: 7},
		},
		"store failure is requeued": {
			body:      `{"property_id":"P1","address":"a","seller_name":"s"}`,
			createErr: &service.StoreError{Operation: service.OpCreate, Err: errors.New("throttled")},
			want:      settlement{tag: 7, requeue: true},
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			svc := &mockService{createFn: func(ctx context.Context, input service.CreateInput) (service.Contract, error) {
				return service.Contract{}, tc.createErr
			}}
			consumer := NewRabbitConsumer(RabbitConfig{Queue: "contracts.requests"}, newTestProcessor(t, svc), zaptest.NewLogger(t))

			ack := &fakeAcknowledger{}
			consumer.handle(context.Background(), delivery(ack, "POST", tc.body))
			require.Equal(t, []settlement{tc.want}, ack.settled)
		})
	}
}

func TestNewRabbitConsumerDefaults(t *testing.T) {
	t.Parallel()

	consumer := NewRabbitConsumer(RabbitConfig{Queue: "contracts.requests", DeadLetterExchange: "contracts.dlx"}, newTestProcessor(t, &mockService{}), zaptest.NewLogger(t))
	require.Equal(t, 8, consumer.cfg.Prefetch)
	require.Equal(t, []string{"#"}, consumer.cfg.Bindings)
	require.Equal(t, "contracts.requests.dlq", consumer.cfg.DeadLetterQueue)

	require.Error(t, consumer.Run(context.Background()))
}
