// Package amqp publishes translation events to RabbitMQ.
//
// Each event is published as persistent JSON to a durable queue. The queue
// dead-letters to "<queue>.dlq", and "<queue>.retry" dead-letters back to the
// main queue after its message TTL, so consumers can nack into a retry loop.
package amqp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/MrWong99/jargonaut/pkg/analytics"
)

var _ analytics.Logger = (*Publisher)(nil)

// DefaultQueue is used when no queue name is configured.
const DefaultQueue = "jargonaut.translation_events"

const publishTimeout = 5 * time.Second

// Publisher is an [analytics.Logger] that publishes to RabbitMQ. It is safe
// for concurrent use; publishes are serialised on the single channel.
type Publisher struct {
	mu    sync.Mutex
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
}

// NewPublisher dials url and declares the main, retry and dead-letter queues.
func NewPublisher(url, queue string) (*Publisher, error) {
	if queue == "" {
		queue = DefaultQueue
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp publisher: dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp publisher: open channel: %w", err)
	}
	if err := declareQueues(ch, queue); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	return &Publisher{conn: conn, ch: ch, queue: queue}, nil
}

func declareQueues(ch *amqp.Channel, queue string) error {
	retry := queue + ".retry"
	dlq := queue + ".dlq"

	decls := []struct {
		name string
		args amqp.Table
	}{
		{dlq, nil},
		{retry, amqp.Table{
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": queue,
		}},
		{queue, amqp.Table{
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": dlq,
		}},
	}
	for _, d := range decls {
		// durable, not auto-deleted, not exclusive
		if _, err := ch.QueueDeclare(d.name, true, false, false, false, d.args); err != nil {
			return fmt.Errorf("amqp publisher: declare %q: %w", d.name, err)
		}
	}
	return nil
}

// Queue returns the main queue name.
func (p *Publisher) Queue() string { return p.queue }

// LogTranslation implements [analytics.Logger].
func (p *Publisher) LogTranslation(ctx context.Context, ev analytics.Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("amqp publisher: marshal: %w", err)
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    ev.EventID,
		Timestamp:    time.Now(),
		Body:         body,
	}

	cctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ch.PublishWithContext(cctx, "", p.queue, false, false, msg); err != nil {
		return fmt.Errorf("amqp publisher: publish: %w", err)
	}
	return nil
}

// Ping reports whether the broker connection is still open.
func (p *Publisher) Ping(context.Context) error {
	if p.conn.IsClosed() {
		return fmt.Errorf("amqp publisher: connection closed")
	}
	return nil
}

// Close closes the channel and the connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
