package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/flights-api/internal/metrics"
	"github.com/iliyamo/flights-api/internal/queue"
)

// AMQPPublisher sends FlightChangedEvents to a durable RabbitMQ queue
// through the default exchange. Each publish dials its own connection so a
// broker outage never leaves broken state behind.
type AMQPPublisher struct {
	url     string
	queue   string
	metrics *metrics.Metrics
}

// NewAMQPPublisher returns a publisher for queueName on the broker at url.
// m may be nil.
func NewAMQPPublisher(url, queueName string, m *metrics.Metrics) *AMQPPublisher {
	return &AMQPPublisher{url: url, queue: queueName, metrics: m}
}

// Publish marshals ev and sends it as a persistent message.
func (p *AMQPPublisher) Publish(ctx context.Context, ev queue.FlightChangedEvent) (err error) {
	defer func() {
		if err != nil {
			p.metrics.EventPublished("error")
			return
		}
		p.metrics.EventPublished("ok")
	}()

	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("rabbitmq: marshal event: %w", err)
	}

	conn, err := amqp.Dial(p.url)
	if err != nil {
		return fmt.Errorf("rabbitmq: dial: %w", err)
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("rabbitmq: channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if _, err := ch.QueueDeclare(
		p.queue, // name
		true,    // durable
		false,   // autoDelete
		false,   // exclusive
		false,   // noWait
		nil,     // args
	); err != nil {
		return fmt.Errorf("rabbitmq: queue declare: %w", err)
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    ev.EventID,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", p.queue, false, false, pub); err != nil {
		return fmt.Errorf("rabbitmq: publish: %w", err)
	}
	return nil
}
