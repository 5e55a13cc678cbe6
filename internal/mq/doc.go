// Package mq предоставляет инфраструктуру для работы с RabbitMQ.
//
// Структура:
//   - connection.go — управление соединением с RabbitMQ (reconnect, graceful shutdown)
//   - topology.go   — объявление exchanges, queues, bindings
//   - publisher.go  — публикация сообщений в очереди
//   - consumer.go   — потребление сообщений из очередей
//
// Типы сообщений:
//   - job.send        — команда на отправку одному получателю
//   - instance.up     — instance подключился
//   - instance.down   — instance отключился
//
// Exchanges:
//   - fanline.sends     — отложенная доставка jobs по очередям instances
//   - fanline.lifecycle — события жизненного цикла instances
//
// Задержка доставки реализована обменником x-delayed-message (плагин
// rabbitmq_delayed_message_exchange): команда публикуется с заголовком
// x-delay и выпускается в очередь sends.<id> по его истечении. Задержки
// сообщений независимы, поэтому кампании, делящие instance, и свежие
// расписания после stop или rebalance не ждут чужих длинных задержек.
package mq
