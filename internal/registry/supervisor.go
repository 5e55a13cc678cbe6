package registry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Fanline/internal/domain"
	"github.com/shaiso/Fanline/internal/gateway"
	"github.com/shaiso/Fanline/internal/mq"
	"github.com/shaiso/Fanline/internal/repo"
)

// SessionFactory создаёт сессию для instance.
// Для нового instance deviceJID пуст, сессия начнёт пейринг с QR.
type SessionFactory interface {
	NewSession(ctx context.Context, instanceID uuid.UUID, deviceJID string) (gateway.Session, error)

	// DropCredentials удаляет сохранённые учётные данные устройства.
	DropCredentials(ctx context.Context, deviceJID string) error
}

// ConsumerManager запускает и останавливает потребителей очередей
// instances.
type ConsumerManager interface {
	StartInstance(ctx context.Context, instanceID uuid.UUID) error
	StopInstance(instanceID uuid.UUID)
}

// defaultDisconnectGrace — сколько ждать auto-reconnect whatsmeow,
// прежде чем признать instance отключённым.
const defaultDisconnectGrace = 90 * time.Second

// Supervisor ведёт жизненный цикл instances: создание, запуск сессий,
// реакция на их события, остановка и удаление.
//
// События сессий отражаются в трёх местах: флаг active в БД,
// событие lifecycle в MQ (его потребляет Rebalancer) и Hub для
// WebSocket-подписчиков. Обрыв сокета попадает в lifecycle только
// через downDebouncer: logout — сразу.
type Supervisor struct {
	registry  *Registry
	hub       *Hub
	instances *repo.InstanceRepo
	factory   SessionFactory
	consumers ConsumerManager
	conn      *mq.Connection
	publisher *mq.Publisher
	logger    *slog.Logger
	down      *downDebouncer
}

// NewSupervisor создаёт Supervisor.
func NewSupervisor(
	registry *Registry,
	hub *Hub,
	instances *repo.InstanceRepo,
	factory SessionFactory,
	consumers ConsumerManager,
	conn *mq.Connection,
	publisher *mq.Publisher,
	logger *slog.Logger,
) *Supervisor {
	s := &Supervisor{
		registry:  registry,
		hub:       hub,
		instances: instances,
		factory:   factory,
		consumers: consumers,
		conn:      conn,
		publisher: publisher,
		logger:    logger,
	}
	s.down = newDownDebouncer(defaultDisconnectGrace, func(id uuid.UUID) {
		s.markDown(context.Background(), id)
	})
	return s
}

// CreateInstance регистрирует новый instance и сразу запускает его
// сессию. Пейринг идёт асинхронно: QR-коды приходят подписчикам Hub.
func (s *Supervisor) CreateInstance(ctx context.Context) (*domain.Instance, error) {
	inst := &domain.Instance{
		ID:        uuid.New(),
		CreatedAt: time.Now(),
	}
	if err := s.instances.Create(ctx, inst); err != nil {
		return nil, err
	}

	if err := s.start(ctx, inst); err != nil {
		return nil, err
	}
	return inst, nil
}

// StartAll запускает сессии всех известных instances.
// Вызывается при старте сервера.
func (s *Supervisor) StartAll(ctx context.Context) error {
	instances, err := s.instances.List(ctx)
	if err != nil {
		return err
	}

	for i := range instances {
		inst := &instances[i]
		if err := s.start(ctx, inst); err != nil {
			s.logger.Error("failed to start instance", "instance_id", inst.ID, "error", err)
		}
	}
	return nil
}

// start поднимает сессию instance: очереди, сессия, потребитель.
func (s *Supervisor) start(ctx context.Context, inst *domain.Instance) error {
	if err := mq.DeclareInstanceQueues(ctx, s.conn, inst.ID); err != nil {
		return fmt.Errorf("declare instance queues: %w", err)
	}

	session, err := s.factory.NewSession(ctx, inst.ID, inst.DeviceJID)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}

	if !s.registry.Add(inst.ID, session) {
		session.Close()
		return fmt.Errorf("instance %s already running", inst.ID)
	}

	go s.watch(inst.ID, session)

	if err := session.Connect(ctx); err != nil {
		s.logger.Error("session connect failed", "instance_id", inst.ID, "error", err)
	}

	if err := s.consumers.StartInstance(ctx, inst.ID); err != nil {
		return fmt.Errorf("start consumer: %w", err)
	}

	s.logger.Info("instance started", "instance_id", inst.ID, "paired", session.LoggedIn())
	return nil
}

// watch обрабатывает события одной сессии до её закрытия.
func (s *Supervisor) watch(id uuid.UUID, session gateway.Session) {
	ctx := context.Background()

	for evt := range session.Events() {
		s.hub.Broadcast(id, evt)

		switch evt.Kind {
		case gateway.EventConnected:
			s.down.Cancel(id)
			s.onConnected(ctx, id, session)
		case gateway.EventDisconnected:
			// whatsmeow переподключается сам; lifecycle получит
			// событие, только если grace истечёт без reconnect
			s.logger.Warn("instance socket dropped, waiting for auto-reconnect",
				"instance_id", id,
			)
			s.down.Arm(id)
		case gateway.EventLoggedOut:
			s.down.Cancel(id)
			s.markDown(ctx, id)
		}
	}
}

func (s *Supervisor) onConnected(ctx context.Context, id uuid.UUID, session gateway.Session) {
	if session.DeviceJID() != "" {
		if err := s.instances.SetDevice(ctx, id, session.Phone(), session.DeviceJID()); err != nil {
			s.logger.Error("failed to save device", "instance_id", id, "error", err)
		}
	}

	changed, err := s.instances.SetActive(ctx, id, true)
	if err != nil {
		s.logger.Error("failed to mark instance active", "instance_id", id, "error", err)
		return
	}
	if !changed {
		return
	}

	s.logger.Info("instance connected", "instance_id", id)
	if err := s.publisher.PublishInstanceUp(ctx, id); err != nil {
		s.logger.Error("failed to publish instance.up", "instance_id", id, "error", err)
	}
}

func (s *Supervisor) markDown(ctx context.Context, id uuid.UUID) {
	changed, err := s.instances.SetActive(ctx, id, false)
	if err != nil {
		s.logger.Error("failed to mark instance inactive", "instance_id", id, "error", err)
		return
	}
	// Повторный disconnect не порождает второе событие lifecycle
	if !changed {
		return
	}

	s.logger.Warn("instance disconnected", "instance_id", id)
	if err := s.publisher.PublishInstanceDown(ctx, id); err != nil {
		s.logger.Error("failed to publish instance.down", "instance_id", id, "error", err)
	}
}

// DeleteInstance останавливает сессию и удаляет instance вместе с его
// очередями и учётными данными.
// Если instance закреплён за кампанией, возвращает repo.ErrReferenced.
func (s *Supervisor) DeleteInstance(ctx context.Context, id uuid.UUID) error {
	inst, err := s.instances.GetByID(ctx, id)
	if err != nil {
		return err
	}

	// Сначала проверяем ссылки: удаление строки упадёт на FK,
	// если instance закреплён за кампанией
	if err := s.instances.Delete(ctx, id); err != nil {
		return err
	}

	s.down.Cancel(id)
	s.consumers.StopInstance(id)
	if session, ok := s.registry.Remove(id); ok {
		session.Close()
	}

	if err := mq.DeleteInstanceQueues(ctx, s.conn, id); err != nil {
		s.logger.Error("failed to delete instance queues", "instance_id", id, "error", err)
	}

	if inst.DeviceJID != "" {
		if err := s.factory.DropCredentials(ctx, inst.DeviceJID); err != nil {
			s.logger.Error("failed to drop device credentials", "instance_id", id, "error", err)
		}
	}

	s.logger.Info("instance deleted", "instance_id", id)
	return nil
}

// Shutdown останавливает все сессии.
func (s *Supervisor) Shutdown() {
	s.down.Stop()
	for _, id := range s.registry.IDs() {
		s.consumers.StopInstance(id)
		if session, ok := s.registry.Remove(id); ok {
			session.Close()
		}
	}
}
