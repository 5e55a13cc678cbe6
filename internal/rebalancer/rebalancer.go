// Package rebalancer возвращает в работу jobs, оставшиеся без instance.
//
// Rebalancer слушает события lifecycle: отключившийся instance
// открепляется от своих кампаний, а их незавершённые jobs раздаются
// заново по оставшимся instances. Параллельно работает
// reconciliation sweep: по cron-расписанию подбираются jobs, выпавшие
// из очередей по любой другой причине.
package rebalancer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/shaiso/Fanline/internal/domain"
	"github.com/shaiso/Fanline/internal/mq"
)

const defaultReconcileCron = "*/10 * * * *"

// cronParser — парсер cron-выражений.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// CampaignDirectory — операции над кампаниями, нужные rebalancer.
type CampaignDirectory interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Campaign, error)
	ListActiveByInstance(ctx context.Context, instanceID uuid.UUID) ([]uuid.UUID, error)
	RemoveInstance(ctx context.Context, campaignID, instanceID uuid.UUID) (bool, error)
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
}

// JobDirectory — операции над jobs, нужные rebalancer.
type JobDirectory interface {
	DetachCampaign(ctx context.Context, campaignID uuid.UUID) (int64, error)
	ListStrandedCampaigns(ctx context.Context) ([]uuid.UUID, error)
}

// Locker — межпроцессная сериализация операций над кампанией.
type Locker interface {
	WithCampaignLock(ctx context.Context, campaignID uuid.UUID, fn func(ctx context.Context) error) error
}

// Scheduler раздаёт свободные jobs кампании.
// Реализуется campaign.Service; вызывается только под campaign lock.
type Scheduler interface {
	ScheduleUnassigned(ctx context.Context, c *domain.Campaign) error
}

// Rebalancer — потребитель lifecycle-событий плюс reconciliation sweep.
type Rebalancer struct {
	campaigns CampaignDirectory
	jobs      JobDirectory
	locker    Locker
	scheduler Scheduler
	conn      *mq.Connection
	logger    *slog.Logger

	reconcileSchedule cron.Schedule
	consumer          *mq.Consumer

	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// Config — конфигурация Rebalancer.
type Config struct {
	Campaigns CampaignDirectory
	Jobs      JobDirectory
	Locker    Locker
	Scheduler Scheduler
	Conn      *mq.Connection
	Logger    *slog.Logger

	// ReconcileCron — cron-выражение для reconciliation sweep.
	// Пустая строка означает каждые 10 минут.
	ReconcileCron string
}

// New создаёт Rebalancer.
func New(cfg Config) (*Rebalancer, error) {
	expr := cfg.ReconcileCron
	if expr == "" {
		expr = defaultReconcileCron
	}
	schedule, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("parse reconcile cron %q: %w", expr, err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Rebalancer{
		campaigns:         cfg.Campaigns,
		jobs:              cfg.Jobs,
		locker:            cfg.Locker,
		scheduler:         cfg.Scheduler,
		conn:              cfg.Conn,
		logger:            logger,
		reconcileSchedule: schedule,
	}, nil
}

// Start запускает потребителя lifecycle и цикл reconciliation.
func (r *Rebalancer) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	r.cancelFunc = cancel

	r.consumer = mq.NewConsumer(r.conn, r.logger, mq.ConsumerConfig{
		Queue:    string(mq.QueueLifecycle),
		Handler:  r.handleLifecycle,
		Prefetch: 1,
	})

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			r.logger.Error("lifecycle consumer error", "error", err)
		}
	}()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.reconcileLoop(ctx)
	}()

	r.logger.Info("rebalancer started")
	return nil
}

// Stop останавливает Rebalancer.
func (r *Rebalancer) Stop() {
	r.logger.Info("stopping rebalancer...")

	if r.cancelFunc != nil {
		r.cancelFunc()
	}
	if r.consumer != nil {
		r.consumer.Stop()
	}
	r.wg.Wait()

	r.logger.Info("rebalancer stopped")
}

// reconcileLoop выполняет Reconcile по cron-расписанию.
func (r *Rebalancer) reconcileLoop(ctx context.Context) {
	// Первый sweep сразу при старте: подбираем jobs, зависшие пока
	// rebalancer был выключен
	r.Reconcile(ctx)

	for {
		next := r.reconcileSchedule.Next(time.Now())
		timer := time.NewTimer(time.Until(next))

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			r.Reconcile(ctx)
		}
	}
}
