package intake

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// RabbitConfig describes the queue topology consumed by RabbitConsumer.
type RabbitConfig struct {
	URL      string
	Exchange string
	Queue    string
	Bindings []string
	Prefetch int
	// DeadLetterExchange receives messages that fail deterministically. Empty disables dead-lettering.
	DeadLetterExchange string
	DeadLetterQueue    string
	ConsumerTag        string
}

// RabbitConsumer feeds RabbitMQ deliveries to the processor one at a time.
type RabbitConsumer struct {
	cfg       RabbitConfig
	processor *Processor
	logger    *zap.Logger

	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewRabbitConsumer constructs a consumer; call Connect before Run.
func NewRabbitConsumer(cfg RabbitConfig, processor *Processor, logger *zap.Logger) *RabbitConsumer {
	if processor == nil {
		panic("intake processor is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = 8
	}
	if len(cfg.Bindings) == 0 {
		cfg.Bindings = []string{"#"}
	}
	if cfg.DeadLetterExchange != "" && cfg.DeadLetterQueue == "" {
		cfg.DeadLetterQueue = cfg.Queue + ".dlq"
	}
	return &RabbitConsumer{cfg: cfg, processor: processor, logger: logger}
}

// Connect dials the broker and declares the exchange, queue, bindings and optional dead-letter queue.
func (c *RabbitConsumer) Connect() error {
	if c.cfg.URL == "" || c.cfg.Exchange == "" || c.cfg.Queue == "" {
		return errors.New("rabbitmq url, exchange and queue are required")
	}

	conn, err := amqp.Dial(c.cfg.URL)
	if err != nil {
		return fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	if err := c.declare(ch); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return err
	}

	c.conn = conn
	c.ch = ch
	return nil
}

func (c *RabbitConsumer) declare(ch *amqp.Channel) error {
	if c.cfg.DeadLetterExchange != "" {
		if err := ch.ExchangeDeclare(c.cfg.DeadLetterExchange, "topic", true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare dead-letter exchange: %w", err)
		}
		if _, err := ch.QueueDeclare(c.cfg.DeadLetterQueue, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare dead-letter queue: %w", err)
		}
		if err := ch.QueueBind(c.cfg.DeadLetterQueue, "#", c.cfg.DeadLetterExchange, false, nil); err != nil {
			return fmt.Errorf("bind dead-letter queue: %w", err)
		}
	}

	if err := ch.ExchangeDeclare(c.cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", c.cfg.Exchange, err)
	}

	args := amqp.Table{}
	if c.cfg.DeadLetterExchange != "" {
		args["x-dead-letter-exchange"] = c.cfg.DeadLetterExchange
	}
	q, err := ch.QueueDeclare(c.cfg.Queue, true, false, false, false, args)
	if err != nil {
		return fmt.Errorf("declare queue %s: %w", c.cfg.Queue, err)
	}
	for _, key := range c.cfg.Bindings {
		if err := ch.QueueBind(q.Name, key, c.cfg.Exchange, false, nil); err != nil {
			return fmt.Errorf("bind queue %s to %s with %s: %w", q.Name, c.cfg.Exchange, key, err)
		}
	}

	if err := ch.Qos(c.cfg.Prefetch, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}
	return nil
}

// Run consumes deliveries until ctx is cancelled or the channel closes.
func (c *RabbitConsumer) Run(ctx context.Context) error {
	if c.ch == nil {
		return errors.New("rabbitmq consumer is not connected")
	}

	deliveries, err := c.ch.ConsumeWithContext(ctx, c.cfg.Queue, c.cfg.ConsumerTag, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", c.cfg.Queue, err)
	}

	c.logger.Info("consuming contract requests", zap.String("queue", c.cfg.Queue), zap.Int("prefetch", c.cfg.Prefetch))
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return nil
			}
			c.handle(ctx, d)
		}
	}
}

// handle processes one delivery as a batch of one and settles it.
func (c *RabbitConsumer) handle(ctx context.Context, d amqp.Delivery) {
	msg := FromDelivery(d)
	logger := c.logger.With(zap.String("message_id", msg.ID), zap.String("routing_key", d.RoutingKey))

	err := c.processor.ProcessBatch(ctx, []Message{msg})
	switch {
	case err == nil:
		if ackErr := d.Ack(false); ackErr != nil {
			logger.Error("ack failed", zap.Error(ackErr))
		}
	case Retryable(err):
		logger.Warn("message failed, requeueing", zap.Error(err))
		if nackErr := d.Nack(false, true); nackErr != nil {
			logger.Error("nack failed", zap.Error(nackErr))
		}
	default:
		logger.Error("message rejected", zap.Error(err))
		if nackErr := d.Nack(false, false); nackErr != nil {
			logger.Error("nack failed", zap.Error(nackErr))
		}
	}
}

// Close releases the channel and connection.
func (c *RabbitConsumer) Close() {
	if c.ch != nil {
		_ = c.ch.Close()
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
}

// FromDelivery converts a delivery into a message. String headers become attributes; the message id
// falls back to the delivery tag.
func FromDelivery(d amqp.Delivery) Message {
	attrs := make(map[string]string, len(d.Headers))
	for name, value := range d.Headers {
		if s, ok := value.(string); ok {
			attrs[name] = s
		}
	}

	id := d.MessageId
	if id == "" {
		id = "delivery-" + strconv.FormatUint(d.DeliveryTag, 10)
	}
	return Message{ID: id, Body: string(d.Body), Attributes: attrs}
}
