package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/rl1809/storefront/internal/core/domain"
)

// RabbitMQPublisher sends order events to a durable queue on the default
// exchange. Publishes from several workers share one channel.
type RabbitMQPublisher struct {
	conn    *amqp.Connection
	mu      sync.Mutex
	channel *amqp.Channel
	queue   string
}

func NewRabbitMQPublisher(url string) (*RabbitMQPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect rabbitmq: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	p := &RabbitMQPublisher{conn: conn, channel: channel, queue: domain.OrderPlacedQueue}
	if err := p.declareQueue(); err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}

func (p *RabbitMQPublisher) declareQueue() error {
	_, err := p.channel.QueueDeclare(
		p.queue, // name
		true,    // durable
		false,   // auto-delete
		false,   // exclusive
		false,   // no-wait
		nil,     // arguments
	)
	if err != nil {
		return fmt.Errorf("declare queue %s: %w", p.queue, err)
	}
	return nil
}

func (p *RabbitMQPublisher) PublishOrderPlaced(ctx context.Context, event domain.OrderPlacedEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.channel.PublishWithContext(ctx,
		"",      // exchange
		p.queue, // routing key
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    event.OrderID,
			Timestamp:    event.PlacedAt,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish %s: %w", p.queue, err)
	}
	return nil
}

func (p *RabbitMQPublisher) Close() {
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}

// LogPublisher stands in for a broker when none is configured.
type LogPublisher struct{}

func (LogPublisher) PublishOrderPlaced(ctx context.Context, event domain.OrderPlacedEvent) error {
	log.Printf("event: order.placed %s user=%s total=%s items=%d",
		event.OrderID, event.UserID, event.TotalAmount.StringFixed(2), len(event.Items))
	return nil
}
