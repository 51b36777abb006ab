package events

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/llNABSll/product-api/internal/metrics"
)

// Consumer reads order events from a durable queue bound to the topic
// exchange and feeds them through the router. Delivery is at-least-once
// with manual acknowledgment: a handler error nacks the message with the
// configured requeue flag (default false, to avoid poison-message loops).
type Consumer struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	queue    string
	patterns []string
	prefetch int
	requeue  bool
	router   *Router
	metrics  *metrics.Metrics
	log      *zap.Logger
}

// NewConsumer connects to RabbitMQ and declares the topic exchange
func NewConsumer(url, exchange, queue string, patterns []string, prefetch int, requeueOnError bool, router *Router, m *metrics.Metrics, log *zap.Logger) (*Consumer, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := channel.ExchangeDeclare(
		exchange,
		exchangeType,
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,   // arguments
	); err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	log.Info("Consumer connected to RabbitMQ", zap.String("exchange", exchange))

	return &Consumer{
		conn:     conn,
		channel:  channel,
		exchange: exchange,
		queue:    queue,
		patterns: patterns,
		prefetch: prefetch,
		requeue:  requeueOnError,
		router:   router,
		metrics:  m,
		log:      log,
	}, nil
}

// Start declares and binds the queue, then consumes until the context is
// cancelled or the delivery channel closes
func (c *Consumer) Start(ctx context.Context) error {
	if err := c.channel.Qos(c.prefetch, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	queue, err := c.channel.QueueDeclare(
		c.queue,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	for _, pattern := range c.patterns {
		if err := c.channel.QueueBind(queue.Name, pattern, c.exchange, false, nil); err != nil {
			return fmt.Errorf("failed to bind queue to %s: %w", pattern, err)
		}
		c.log.Info("Queue bound", zap.String("queue", queue.Name), zap.String("pattern", pattern))
	}

	msgs, err := c.channel.Consume(
		queue.Name,
		"",    // consumer tag
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	c.log.Info("Consuming events",
		zap.String("queue", queue.Name),
		zap.Int("prefetch", c.prefetch),
	)

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			c.handleDelivery(ctx, msg)
		}
	}
}

func (c *Consumer) handleDelivery(ctx context.Context, msg amqp.Delivery) {
	err := c.router.Route(ctx, msg.RoutingKey, msg.Body)

	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	if c.metrics != nil {
		c.metrics.EventsConsumed.WithLabelValues(msg.RoutingKey, outcome).Inc()
	}

	if err != nil {
		if nackErr := msg.Nack(false, c.requeue); nackErr != nil {
			c.log.Error("Failed to nack message", zap.Error(nackErr))
		}
		return
	}
	if ackErr := msg.Ack(false); ackErr != nil {
		c.log.Error("Failed to ack message", zap.Error(ackErr))
	}
}

// Close closes the consumer channel and connection
func (c *Consumer) Close() {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		c.conn.Close()
	}
}
