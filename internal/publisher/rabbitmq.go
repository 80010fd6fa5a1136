package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"news_provisioner/internal/domain"
)

const ActionProvisioned = "provisioned"

type RabbitMQ struct {
	conn       *amqp.Connection
	channel    *amqp.Channel
	exchange   string
	routingKey string
	logger     *slog.Logger
}

type Config struct {
	URL        string
	Exchange   string
	RoutingKey string
	QueueName  string
}

// NewRabbitMQ dials the broker and declares a durable direct exchange with
// one bound queue for schema events.
func NewRabbitMQ(cfg Config, logger *slog.Logger) (*RabbitMQ, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	closeAll := func() {
		ch.Close()
		conn.Close()
	}

	if err := ch.ExchangeDeclare(cfg.Exchange, amqp.ExchangeDirect, true, false, false, false, nil); err != nil {
		closeAll()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	q, err := ch.QueueDeclare(cfg.QueueName, true, false, false, false, nil)
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("declare queue: %w", err)
	}

	if err := ch.QueueBind(q.Name, cfg.RoutingKey, cfg.Exchange, false, nil); err != nil {
		closeAll()
		return nil, fmt.Errorf("bind queue: %w", err)
	}

	logger.Info("connected to rabbitmq",
		"exchange", cfg.Exchange,
		"queue", cfg.QueueName,
		"routing_key", cfg.RoutingKey,
	)

	return &RabbitMQ{
		conn:       conn,
		channel:    ch,
		exchange:   cfg.Exchange,
		routingKey: cfg.RoutingKey,
		logger:     logger,
	}, nil
}

// SchemaProvisionedMessage announces that a database is ready for use.
type SchemaProvisionedMessage struct {
	Action      string    `json:"action"`
	Database    string    `json:"database"`
	Username    string    `json:"username"`
	Collections []string  `json:"collections"`
	Created     int       `json:"created"`
	Unchanged   int       `json:"unchanged"`
	TTL         bool      `json:"ttl_configured"`
	Timestamp   time.Time `json:"timestamp"`
}

func NewSchemaProvisionedMessage(report *domain.ProvisionReport) SchemaProvisionedMessage {
	return SchemaProvisionedMessage{
		Action:      ActionProvisioned,
		Database:    report.Database,
		Username:    report.Username,
		Collections: report.Collections,
		Created:     report.Count("", domain.OutcomeCreated),
		Unchanged:   report.Count("", domain.OutcomeUnchanged),
		TTL:         report.TTLConfigured(),
		Timestamp:   time.Now().UTC(),
	}
}

func (r *RabbitMQ) PublishProvisioned(ctx context.Context, report *domain.ProvisionReport) error {
	msg := NewSchemaProvisionedMessage(report)

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	err = r.channel.PublishWithContext(
		ctx,
		r.exchange,
		r.routingKey,
		false,
		false,
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			Body:         body,
			Timestamp:    msg.Timestamp,
		},
	)
	if err != nil {
		return fmt.Errorf("publish message: %w", err)
	}

	r.logger.Debug("published schema event",
		"database", msg.Database,
		"created", msg.Created,
	)

	return nil
}

func (r *RabbitMQ) Close() error {
	if r.channel != nil {
		r.channel.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}
