package notify

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"socialhub/internal/metrics"
)

// Channel is the subset of *amqp.Channel used here.
type Channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Close() error
}

// AMQPPublisher publishes events as JSON to a durable queue.
type AMQPPublisher struct {
	ch     Channel
	queue  string
	logger *zap.Logger
}

// NewAMQPPublisher declares queue on ch and returns a Publisher for it.
func NewAMQPPublisher(ch Channel, queue string, logger *zap.Logger) (*AMQPPublisher, error) {
	if err := declare(ch, queue); err != nil {
		return nil, err
	}
	return &AMQPPublisher{ch: ch, queue: queue, logger: logger}, nil
}

func declare(ch Channel, queue string) error {
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", queue, err)
	}
	return nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, e Event) {
	body, err := json.Marshal(e)
	if err != nil {
		p.logger.Error("encode notification", zap.String("event", string(e.Name)), zap.Error(err))
		return
	}
	err = p.ch.PublishWithContext(ctx, "", p.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Type:         string(e.Name),
		Body:         body,
	})
	if err != nil {
		metrics.NotificationsTotal.WithLabelValues(string(e.Name), "publish_failed").Inc()
		p.logger.Error("publish notification", zap.String("event", string(e.Name)), zap.Error(err))
		return
	}
	metrics.NotificationsTotal.WithLabelValues(string(e.Name), "published").Inc()
}

// Close closes the underlying channel.
func (p *AMQPPublisher) Close() error {
	return p.ch.Close()
}

// Consume feeds deliveries from queue to handler until ctx is done or the
// channel closes. Undecodable messages are dropped; failed deliveries are
// acknowledged too since mail failures are never retried.
func Consume(ctx context.Context, ch Channel, queue string, handler Handler, logger *zap.Logger) error {
	if err := declare(ch, queue); err != nil {
		return err
	}
	deliveries, err := ch.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", queue, err)
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return nil
			}
			var e Event
			if err := json.Unmarshal(d.Body, &e); err != nil {
				logger.Warn("dropping malformed notification", zap.Error(err))
				_ = d.Nack(false, false)
				continue
			}
			if err := handler.Handle(ctx, e); err != nil {
				logger.Error("notification delivery failed", zap.String("event", string(e.Name)), zap.Error(err))
			}
			_ = d.Ack(false)
		}
	}
}
