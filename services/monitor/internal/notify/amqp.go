package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"sentistream/pkg/domain"
)

// AMQPNotifier publishes alert events to a fanout exchange so downstream
// notification consumers can subscribe without touching the database.
// Connects lazily and reconnects after a broken channel.
type AMQPNotifier struct {
	url      string
	exchange string

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewAMQPNotifier returns nil when url is empty, which callers treat as
// notifications disabled.
func NewAMQPNotifier(url, exchange string) *AMQPNotifier {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil
	}
	exchange = strings.TrimSpace(exchange)
	if exchange == "" {
		exchange = "sentiment.alerts"
	}
	return &AMQPNotifier{url: url, exchange: exchange}
}

// NotifyAlert publishes one alert as JSON.
func (n *AMQPNotifier) NotifyAlert(ctx context.Context, alert domain.AlertEvent) error {
	if n == nil {
		return nil
	}
	body, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}
	ch, err := n.channel()
	if err != nil {
		return err
	}
	err = ch.PublishWithContext(ctx, n.exchange, "", false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
	if err != nil {
		n.reset()
		return fmt.Errorf("publish alert: %w", err)
	}
	return nil
}

func (n *AMQPNotifier) channel() (*amqp.Channel, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.ch != nil && !n.conn.IsClosed() {
		return n.ch, nil
	}
	conn, err := amqp.Dial(n.url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(n.exchange, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	n.conn = conn
	n.ch = ch
	return ch, nil
}

func (n *AMQPNotifier) reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.ch != nil {
		_ = n.ch.Close()
		n.ch = nil
	}
	if n.conn != nil {
		_ = n.conn.Close()
		n.conn = nil
	}
}

// Close shuts the connection down.
func (n *AMQPNotifier) Close() error {
	if n == nil {
		return nil
	}
	n.reset()
	return nil
}
