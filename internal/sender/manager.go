package sender

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/shaiso/Fanline/internal/mq"
)

// Manager держит по одному потребителю на очередь каждого instance.
type Manager struct {
	conn   *mq.Connection
	sender *Sender
	logger *slog.Logger

	mu      sync.Mutex
	running map[uuid.UUID]*consumerHandle
}

type consumerHandle struct {
	consumer *mq.Consumer
	cancel   context.CancelFunc
}

// NewManager создаёт Manager.
func NewManager(conn *mq.Connection, sender *Sender, logger *slog.Logger) *Manager {
	return &Manager{
		conn:    conn,
		sender:  sender,
		logger:  logger,
		running: make(map[uuid.UUID]*consumerHandle),
	}
}

// StartInstance запускает потребителя очереди instance.
// Повторный запуск для уже работающего instance — no-op.
func (m *Manager) StartInstance(ctx context.Context, instanceID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.running[instanceID]; ok {
		return nil
	}

	consumer := mq.NewConsumer(m.conn, m.logger.With("instance_id", instanceID), mq.ConsumerConfig{
		Queue:    string(mq.SendQueue(instanceID)),
		Handler:  m.sender.Handle,
		Prefetch: 1,
	})

	consumerCtx, cancel := context.WithCancel(ctx)
	m.running[instanceID] = &consumerHandle{consumer: consumer, cancel: cancel}

	go func() {
		if err := consumer.Start(consumerCtx); err != nil && consumerCtx.Err() == nil {
			m.logger.Error("consumer stopped unexpectedly", "instance_id", instanceID, "error", err)
		}
	}()

	m.logger.Info("consumer started", "instance_id", instanceID)
	return nil
}

// StopInstance останавливает потребителя очереди instance.
func (m *Manager) StopInstance(instanceID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	handle, ok := m.running[instanceID]
	if !ok {
		return
	}
	delete(m.running, instanceID)

	handle.cancel()
	handle.consumer.Stop()
	m.logger.Info("consumer stopped", "instance_id", instanceID)
}

// StopAll останавливает всех потребителей.
func (m *Manager) StopAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, handle := range m.running {
		handle.cancel()
		handle.consumer.Stop()
		delete(m.running, id)
	}
}
