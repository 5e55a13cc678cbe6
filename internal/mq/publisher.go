package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// MessageType — тип сообщения в очереди.
type MessageType string

// Типы сообщений.
const (
	MessageTypeJobSend      MessageType = "job.send"
	MessageTypeInstanceUp   MessageType = "instance.up"
	MessageTypeInstanceDown MessageType = "instance.down"
)

// Publisher публикует сообщения в RabbitMQ.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	return &Publisher{
		conn:   conn,
		logger: logger,
	}
}

// Message — сообщение для публикации.
type Message struct {
	// ID — уникальный идентификатор сообщения.
	ID string `json:"id"`

	// Type — тип сообщения.
	Type MessageType `json:"type"`

	// Payload — полезная нагрузка.
	Payload any `json:"payload"`

	// Timestamp — время создания.
	Timestamp time.Time `json:"timestamp"`
}

// SendPayload — payload команды на отправку одному получателю.
//
// QueueID сверяется с ledger перед отправкой: несовпадение означает,
// что постановка отменена (stop, rebalance) и доставку нужно
// отбросить.
type SendPayload struct {
	CampaignID   uuid.UUID `json:"campaign_id"`
	RecipientJID string    `json:"recipient_jid"`
	InstanceID   uuid.UUID `json:"instance_id"`
	QueueID      uuid.UUID `json:"queue_id"`
}

// LifecyclePayload — payload события жизненного цикла instance.
type LifecyclePayload struct {
	InstanceID uuid.UUID `json:"instance_id"`
	At         time.Time `json:"at"`
}

// publish публикует сообщение с заданными свойствами AMQP.
func (p *Publisher) publish(ctx context.Context, exchange, routingKey string, msg *Message, headers amqp.Table) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(
			ctx,
			exchange,
			routingKey,
			false,
			false,
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent, // сообщение переживёт рестарт RabbitMQ
				MessageId:    msg.ID,
				Timestamp:    msg.Timestamp,
				Headers:      headers,
				Body:         body,
			},
		)
		if err != nil {
			return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
		}

		p.logger.Debug("published message",
			"exchange", exchange,
			"routing_key", routingKey,
			"message_id", msg.ID,
			"type", msg.Type,
		)

		return nil
	})
}

// EnqueueSend ставит команду отправки в очередь instance с задержкой.
//
// Обменник x-delayed-message удерживает сообщение у себя и выпускает
// его в очередь instance по истечении x-delay. Задержка каждого
// сообщения выдерживается независимо от остальных.
func (p *Publisher) EnqueueSend(ctx context.Context, payload SendPayload, delay time.Duration) error {
	msg := &Message{
		ID:        uuid.New().String(),
		Type:      MessageTypeJobSend,
		Payload:   payload,
		Timestamp: time.Now(),
	}

	return p.publish(ctx, string(ExchangeSends), payload.InstanceID.String(), msg, delayHeaders(delay))
}

// delayHeaders собирает AMQP-заголовки задержки для обменника
// x-delayed-message. Плагин читает x-delay в миллисекундах.
func delayHeaders(delay time.Duration) amqp.Table {
	if delay <= 0 {
		return nil
	}
	return amqp.Table{"x-delay": delay.Milliseconds()}
}

// PublishInstanceUp публикует событие подключения instance.
func (p *Publisher) PublishInstanceUp(ctx context.Context, instanceID uuid.UUID) error {
	msg := &Message{
		ID:        uuid.New().String(),
		Type:      MessageTypeInstanceUp,
		Payload:   LifecyclePayload{InstanceID: instanceID, At: time.Now()},
		Timestamp: time.Now(),
	}
	return p.publish(ctx, string(ExchangeLifecycle), string(RoutingKeyLifecycle), msg, nil)
}

// PublishInstanceDown публикует событие отключения instance.
// Потребитель: Rebalancer.
func (p *Publisher) PublishInstanceDown(ctx context.Context, instanceID uuid.UUID) error {
	msg := &Message{
		ID:        uuid.New().String(),
		Type:      MessageTypeInstanceDown,
		Payload:   LifecyclePayload{InstanceID: instanceID, At: time.Now()},
		Timestamp: time.Now(),
	}
	return p.publish(ctx, string(ExchangeLifecycle), string(RoutingKeyLifecycle), msg, nil)
}
