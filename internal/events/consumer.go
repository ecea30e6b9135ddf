package events

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const prefetch = 16

// Consumer binds a durable queue to the event exchange and feeds deliveries
// to a Processor.
type Consumer struct {
	conn      *amqp.Connection
	ch        *amqp.Channel
	processor *Processor
	exchange  string
	queue     string
	logger    *zap.Logger
}

func sanitizeURL(raw string) (string, error) {
	clean := strings.Trim(strings.TrimSpace(raw), "\"'")
	if !strings.HasSuffix(clean, "/") {
		clean += "/"
	}
	parsed, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if parsed.Scheme != "amqp" && parsed.Scheme != "amqps" {
		return "", fmt.Errorf("invalid AMQP scheme: %s", parsed.Scheme)
	}
	return clean, nil
}

func NewConsumer(amqpURL, exchange, queue string, processor *Processor, logger *zap.Logger) (*Consumer, error) {
	cleanURL, err := sanitizeURL(amqpURL)
	if err != nil {
		return nil, err
	}

	conn, err := amqp.Dial(cleanURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	return &Consumer{
		conn:      conn,
		ch:        ch,
		processor: processor,
		exchange:  exchange,
		queue:     queue,
		logger:    logger.Named("consumer"),
	}, nil
}

// Run declares the topology and consumes until ctx is done or the broker
// closes the channel.
func (c *Consumer) Run(ctx context.Context) error {
	if err := c.ch.ExchangeDeclare(c.exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}
	q, err := c.ch.QueueDeclare(c.queue, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}
	for _, routingKey := range Types {
		if err := c.ch.QueueBind(q.Name, routingKey, c.exchange, false, nil); err != nil {
			return fmt.Errorf("failed to bind %s: %w", routingKey, err)
		}
	}
	if err := c.ch.Qos(prefetch, 0, false); err != nil {
		return fmt.Errorf("failed to set qos: %w", err)
	}

	msgs, err := c.ch.Consume(q.Name, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to consume: %w", err)
	}
	c.logger.Info("consuming events", zap.String("exchange", c.exchange), zap.String("queue", q.Name))

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}
			c.dispatch(ctx, d)
		}
	}
}

func (c *Consumer) dispatch(ctx context.Context, d amqp.Delivery) {
	err := c.processor.Handle(ctx, d.RoutingKey, d.Body)
	if Retryable(err) {
		c.logger.Warn("re-queuing event", zap.String("routing_key", d.RoutingKey), zap.Error(err))
		if nackErr := d.Nack(false, true); nackErr != nil {
			c.logger.Error("failed to nack", zap.Error(nackErr))
		}
		return
	}
	if ackErr := d.Ack(false); ackErr != nil {
		c.logger.Error("failed to ack", zap.Error(ackErr))
	}
}

func (c *Consumer) Close() {
	if c.ch != nil {
		c.ch.Close()
	}
	if c.conn != nil {
		c.conn.Close()
	}
}
