package rabbitmq

import (
	"context"
	"encoding/json"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"flux/internal/observability"
)

// Publisher publishes audit events.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
	Close() error
}

// NewPublisher builds a RabbitMQ publisher, or a noop one when AMQP is disabled or
// unreachable.
func NewPublisher(amqpURL, exchange string, sugar *zap.SugaredLogger) Publisher {
	if amqpURL == "" {
		sugar.Info("rabbitmq disabled, using noop: empty amqp url")
		return noopPublisher{sugar: sugar}
	}

	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		sugar.Warnf("rabbitmq disabled, using noop: %v", err)
		return noopPublisher{sugar: sugar}
	}

	ch, err := conn.Channel()
	if err != nil {
		sugar.Warnf("rabbitmq disabled, using noop: %v", err)
		_ = conn.Close()
		return noopPublisher{sugar: sugar}
	}

	if err := ch.ExchangeDeclare(
		exchange,
		"topic",
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		sugar.Warnf("rabbitmq disabled, using noop: %v", err)
		_ = ch.Close()
		_ = conn.Close()
		return noopPublisher{sugar: sugar}
	}

	sugar.Infof("rabbitmq connected exchange=%s", exchange)
	return &amqpPublisher{conn: conn, ch: ch, exchange: exchange, sugar: sugar}
}

type amqpPublisher struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	sugar    *zap.SugaredLogger
}

func (p *amqpPublisher) Publish(ctx context.Context, routingKey string, event any) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	err = p.ch.PublishWithContext(ctx, p.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
	if err != nil {
		observability.IncAMQPPublishError()
		p.sugar.Errorf("rabbitmq publish failed: %v", err)
	}
	return err
}

func (p *amqpPublisher) Close() error {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

type noopPublisher struct {
	sugar *zap.SugaredLogger
}

func (p noopPublisher) Publish(_ context.Context, routingKey string, event any) error {
	if envelope, ok := event.(AuditEnvelope); ok {
		p.sugar.Debugf("rabbitmq noop publish routing_key=%s event_type=%s user_id=%s", routingKey, envelope.EventType, envelope.UserID)
		return nil
	}
	p.sugar.Debugf("rabbitmq noop publish routing_key=%s", routingKey)
	return nil
}

func (noopPublisher) Close() error {
	return nil
}

// PublisherMode reports the publisher mode for logging.
func PublisherMode(p Publisher) string {
	switch p.(type) {
	case *amqpPublisher:
		return "amqp"
	case noopPublisher:
		return "noop"
	default:
		return "unknown"
	}
}
