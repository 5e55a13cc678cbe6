package mq

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — тип для имени обменника.
type Exchange string

// Queue — тип для имени очереди.
type Queue string

// RoutingKey — тип для ключа маршрутизации.
type RoutingKey string

// Exchanges — имена обменников.
const (
	// ExchangeSends — отложенная доставка jobs (x-delayed-message,
	// нужен плагин rabbitmq_delayed_message_exchange). Очередь каждого
	// instance привязана к нему своим ID в качестве routing key.
	//
	// Per-message TTL с dead-letter здесь не годится: TTL-очередь
	// отдаёт сообщения только с головы, и короткая задержка позади
	// длинной (две кампании на одном instance, рестарт после stop,
	// rebalance) ждала бы, пока истечёт передняя. Плагин выдерживает
	// задержку каждого сообщения независимо.
	ExchangeSends Exchange = "fanline.sends"

	// ExchangeLifecycle — события жизненного цикла instances.
	ExchangeLifecycle Exchange = "fanline.lifecycle"
)

// Статические очереди.
const (
	// QueueLifecycle — очередь событий lifecycle. Потребитель: Rebalancer.
	QueueLifecycle Queue = "lifecycle.events"
)

// Routing keys.
const (
	RoutingKeyLifecycle RoutingKey = "instance"
)

// SendQueue возвращает имя очереди доставки для instance.
func SendQueue(instanceID uuid.UUID) Queue {
	return Queue("sends." + instanceID.String())
}

// SetupTopology создаёт статическую часть топологии: обменники и
// очередь lifecycle. Очереди instances объявляются отдельно по мере
// появления instances.
func SetupTopology(ctx context.Context, conn *Connection) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		exchanges := []struct {
			name Exchange
			kind string
			args amqp.Table
		}{
			{ExchangeSends, "x-delayed-message", amqp.Table{"x-delayed-type": "direct"}},
			{ExchangeLifecycle, "direct", nil},
		}
		for _, ex := range exchanges {
			err := ch.ExchangeDeclare(
				string(ex.name), // name
				ex.kind,         // type
				true,            // durable
				false,           // auto-deleted
				false,           // internal
				false,           // no-wait
				ex.args,         // arguments
			)
			if err != nil {
				return fmt.Errorf("declare exchange %s: %w", ex.name, err)
			}
		}

		_, err := ch.QueueDeclare(
			string(QueueLifecycle),
			true,  // durable
			false, // delete when unused
			false, // exclusive
			false, // no-wait
			nil,
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", QueueLifecycle, err)
		}

		err = ch.QueueBind(
			string(QueueLifecycle),
			string(RoutingKeyLifecycle),
			string(ExchangeLifecycle),
			false,
			nil,
		)
		if err != nil {
			return fmt.Errorf("bind queue %s: %w", QueueLifecycle, err)
		}

		return nil
	})
}

// DeclareInstanceQueues объявляет очередь доставки instance и
// привязывает её к обменнику отложенной доставки. Идемпотентно,
// вызывается при каждом старте instance.
func DeclareInstanceQueues(ctx context.Context, conn *Connection, instanceID uuid.UUID) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		sendQueue := SendQueue(instanceID)

		_, err := ch.QueueDeclare(
			string(sendQueue),
			true,  // durable
			false, // delete when unused
			false, // exclusive
			false, // no-wait
			nil,
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", sendQueue, err)
		}

		err = ch.QueueBind(
			string(sendQueue),
			instanceID.String(), // routing key = instance id
			string(ExchangeSends),
			false,
			nil,
		)
		if err != nil {
			return fmt.Errorf("bind queue %s: %w", sendQueue, err)
		}

		return nil
	})
}

// DeleteInstanceQueues удаляет очередь instance вместе с содержимым.
// Вызывается при удалении instance.
func DeleteInstanceQueues(ctx context.Context, conn *Connection, instanceID uuid.UUID) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		q := SendQueue(instanceID)
		if _, err := ch.QueueDelete(string(q), false, false, false); err != nil {
			return fmt.Errorf("delete queue %s: %w", q, err)
		}
		return nil
	})
}
