// Package notify delivers booking notifications.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"

	"roombooking/internal/domain"
)

// Notifier sends one templated message to one address.
type Notifier interface {
	Send(ctx context.Context, n domain.Notification) error
}

// Console logs notifications instead of delivering them.
type Console struct{}

func NewConsole() *Console { return &Console{} }

func (Console) Send(ctx context.Context, n domain.Notification) error {
	slog.Info("notify", "to", n.To, "template", n.Template, "context", n.Context)
	return nil
}

// AMQP publishes notifications to a topic exchange. A mail worker consumes
// them on the other side.
type AMQP struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
}

func NewAMQP(url, exchange string) (*AMQP, error) {
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
	return &AMQP{conn: conn, ch: ch, exchange: exchange}, nil
}

func (p *AMQP) Send(ctx context.Context, n domain.Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return err
	}
	return p.ch.PublishWithContext(ctx, p.exchange, RoutingKey(n.Template), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
}

func (p *AMQP) Close() error {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// RoutingKey maps booking_approved to booking.approved.
func RoutingKey(t domain.NotificationTemplate) string {
	return strings.Replace(string(t), "_", ".", 1)
}
