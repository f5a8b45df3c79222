package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

type amqpPublisher interface {
	PublishWithDeferredConfirmWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) (*amqp.DeferredConfirmation, error)
}

// RabbitPublisher publishes events as persistent JSON messages on a topic exchange.
// The channel runs in confirm mode, so Publish returns only once the broker acknowledged the message.
type RabbitPublisher struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	pub      amqpPublisher
	exchange string
	now      func() time.Time
}

// DialRabbitPublisher connects to url, declares the exchange and enables publisher confirms.
func DialRabbitPublisher(url, exchange string) (*RabbitPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("enable confirms: %w", err)
	}

	p := newRabbitPublisher(ch, exchange)
	p.conn = conn
	p.ch = ch
	return p, nil
}

func newRabbitPublisher(pub amqpPublisher, exchange string) *RabbitPublisher {
	return &RabbitPublisher{pub: pub, exchange: exchange, now: time.Now}
}

func (p *RabbitPublisher) Publish(ctx context.Context, eventName string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	confirmation, err := p.pub.PublishWithDeferredConfirmWithContext(ctx, p.exchange, RoutingKey(eventName), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    p.now().UTC(),
		Type:         eventName,
		Headers:      amqp.Table{"event_name": eventName},
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", eventName, err)
	}

	// nil when the channel is not in confirm mode
	if confirmation == nil {
		return nil
	}

	acked, err := confirmation.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("await confirm for %s: %w", eventName, err)
	}
	if !acked {
		return fmt.Errorf("publish %s: broker nacked message", eventName)
	}
	return nil
}

// Close releases the channel and connection.
func (p *RabbitPublisher) Close() error {
	var errs []error
	if p.ch != nil {
		errs = append(errs, p.ch.Close())
	}
	if p.conn != nil {
		errs = append(errs, p.conn.Close())
	}
	return errors.Join(errs...)
}
