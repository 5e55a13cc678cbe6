// Package sender потребляет очереди instances и выполняет отправки.
//
// У каждой очереди ровно один потребитель с prefetch 1: instance
// отправляет строго по одному сообщению за раз, темп задаётся
// расписанием кампании ещё при постановке в очередь.
package sender

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Fanline/internal/distributor"
	"github.com/shaiso/Fanline/internal/domain"
	"github.com/shaiso/Fanline/internal/gateway"
	"github.com/shaiso/Fanline/internal/mq"
	"github.com/shaiso/Fanline/internal/repo"
)

// JobLedger — операции над jobs, нужные отправителю.
type JobLedger interface {
	GetByKey(ctx context.Context, recipientJID string, campaignID uuid.UUID) (*domain.Job, error)
	MarkSent(ctx context.Context, recipientJID string, campaignID uuid.UUID) (bool, error)
	MarkFailed(ctx context.Context, recipientJID string, campaignID, queueID uuid.UUID) (bool, error)
	AddAttempt(ctx context.Context, recipientJID string, campaignID uuid.UUID) error
	DetachJob(ctx context.Context, recipientJID string, campaignID uuid.UUID) error
	Progress(ctx context.Context, campaignID uuid.UUID) (domain.Progress, error)
}

// CampaignSource — чтение кампаний и завершение выполнившихся.
type CampaignSource interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Campaign, error)
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
}

// SessionSource — доступ к запущенным сессиям.
// Реализуется registry.Registry.
type SessionSource interface {
	Get(id uuid.UUID) (gateway.Session, bool)
}

// Sender обрабатывает команды отправки из очередей instances.
type Sender struct {
	jobs      JobLedger
	campaigns CampaignSource
	sessions  SessionSource
	logger    *slog.Logger

	maxAttempts  int
	initialDelay time.Duration
	maxDelay     time.Duration

	rngMu sync.Mutex
	rng   *rand.Rand

	sleep func(ctx context.Context, d time.Duration) error
}

// Config — зависимости и настройки Sender.
type Config struct {
	Jobs      JobLedger
	Campaigns CampaignSource
	Sessions  SessionSource
	Logger    *slog.Logger

	// MaxAttempts — предел попыток отправки одному получателю.
	// 0 означает 3.
	MaxAttempts int

	// Rand — источник случайности для пауз. nil — засев от времени.
	Rand *rand.Rand
}

// New создаёт Sender.
func New(cfg Config) *Sender {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Sender{
		jobs:         cfg.Jobs,
		campaigns:    cfg.Campaigns,
		sessions:     cfg.Sessions,
		logger:       cfg.Logger,
		maxAttempts:  maxAttempts,
		initialDelay: time.Second,
		maxDelay:     30 * time.Second,
		rng:          rng,
		sleep:        sleepCtx,
	}
}

// Handle обрабатывает одну доставку из очереди instance.
//
// Возврат ошибки вернёт доставку в очередь; устаревшие и безнадёжные
// доставки поглощаются без ошибки.
func (s *Sender) Handle(ctx context.Context, delivery *mq.Delivery) error {
	if delivery.Message.Type != mq.MessageTypeJobSend {
		s.logger.Warn("unexpected message type", "type", delivery.Message.Type)
		return nil
	}

	payload, err := mq.ParsePayload[mq.SendPayload](&delivery.Message)
	if err != nil {
		s.logger.Error("malformed send payload", "message_id", delivery.Message.ID, "error", err)
		return nil
	}

	job, err := s.jobs.GetByKey(ctx, payload.RecipientJID, payload.CampaignID)
	if errors.Is(err, repo.ErrNotFound) {
		s.logger.Warn("job not found, dropping delivery",
			"campaign_id", payload.CampaignID,
			"recipient", payload.RecipientJID,
		)
		return nil
	}
	if err != nil {
		return err
	}

	// Сверка постановки: после stop или rebalance queue_id в ledger
	// уже другой, такая доставка отбрасывается
	if job.Terminal() || job.QueueID == nil || *job.QueueID != payload.QueueID {
		s.logger.Debug("stale delivery dropped",
			"campaign_id", payload.CampaignID,
			"recipient", payload.RecipientJID,
		)
		return nil
	}

	c, err := s.campaigns.GetByID(ctx, payload.CampaignID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if !c.Active {
		s.logger.Debug("campaign inactive, dropping delivery", "campaign_id", c.ID)
		return nil
	}

	session, ok := s.sessions.Get(payload.InstanceID)
	if !ok || !session.Connected() {
		// Сессии нет — снимаем job с очереди, его подберёт
		// rebalancer или reconciler
		s.logger.Warn("session unavailable, detaching job",
			"instance_id", payload.InstanceID,
			"campaign_id", c.ID,
			"recipient", payload.RecipientJID,
		)
		return s.jobs.DetachJob(ctx, payload.RecipientJID, c.ID)
	}

	if err := s.sendWithRetry(ctx, session, c, payload); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		marked, markErr := s.jobs.MarkFailed(ctx, payload.RecipientJID, c.ID, payload.QueueID)
		if markErr != nil {
			return markErr
		}
		if marked {
			sendFailuresTotal.Inc()
			s.logger.Error("job failed permanently",
				"campaign_id", c.ID,
				"recipient", payload.RecipientJID,
				"error", err,
			)
			return s.finishIfDone(ctx, c.ID)
		}
		return nil
	}

	// Отправка состоялась — фиксируем безусловно, даже если постановку
	// успели отменить: повторная раздача этого job дала бы дубль
	marked, err := s.jobs.MarkSent(ctx, payload.RecipientJID, c.ID)
	if err != nil {
		return err
	}
	sendsTotal.Inc()
	if !marked {
		s.logger.Warn("job already terminal after send",
			"campaign_id", c.ID,
			"recipient", payload.RecipientJID,
		)
		return nil
	}

	s.logger.Info("recipient processed",
		"campaign_id", c.ID,
		"recipient", payload.RecipientJID,
		"instance_id", payload.InstanceID,
	)
	return s.finishIfDone(ctx, c.ID)
}

// sendWithRetry отправляет последовательность сообщений кампании с
// повторами и exponential backoff.
func (s *Sender) sendWithRetry(ctx context.Context, session gateway.Session, c *domain.Campaign, payload mq.SendPayload) error {
	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		if err := s.jobs.AddAttempt(ctx, payload.RecipientJID, c.ID); err != nil {
			return err
		}

		lastErr = s.sendSequence(ctx, session, c, payload.RecipientJID)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if attempt == s.maxAttempts {
			break
		}

		sendRetriesTotal.Inc()
		delay := s.backoff(attempt)
		s.logger.Debug("retrying send",
			"campaign_id", c.ID,
			"recipient", payload.RecipientJID,
			"attempt", attempt,
			"delay", delay,
		)
		if err := s.sleep(ctx, delay); err != nil {
			return err
		}
	}
	return lastErr
}

// sendSequence отправляет все сообщения кампании одному получателю,
// имитируя набор текста и выдерживая паузы между сообщениями.
func (s *Sender) sendSequence(ctx context.Context, session gateway.Session, c *domain.Campaign, recipientJID string) error {
	for i, spec := range c.Messages {
		typing := s.between(
			time.Duration(c.MinTypingSec)*time.Second,
			time.Duration(c.MaxTypingSec)*time.Second,
		)
		if err := session.Send(ctx, recipientJID, spec, typing); err != nil {
			return err
		}

		if i < len(c.Messages)-1 {
			pause := s.between(
				time.Duration(c.MinMessageDelaySec)*time.Second,
				time.Duration(c.MaxMessageDelaySec)*time.Second,
			)
			if err := s.sleep(ctx, pause); err != nil {
				return err
			}
		}
	}
	return nil
}

// finishIfDone снимает флаг active, когда все jobs кампании достигли
// терминального статуса.
func (s *Sender) finishIfDone(ctx context.Context, campaignID uuid.UUID) error {
	progress, err := s.jobs.Progress(ctx, campaignID)
	if err != nil {
		return err
	}
	if !progress.Done() {
		return nil
	}

	if err := s.campaigns.SetActive(ctx, campaignID, false); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil
		}
		return err
	}
	s.logger.Info("campaign completed",
		"campaign_id", campaignID,
		"sent", progress.Sent,
		"failed", progress.Failed,
	)
	return nil
}

// backoff вычисляет задержку перед повтором: initialDelay * 2^(n-1),
// не больше maxDelay.
func (s *Sender) backoff(attempt int) time.Duration {
	delay := s.initialDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay > s.maxDelay {
			return s.maxDelay
		}
	}
	return delay
}

func (s *Sender) between(min, max time.Duration) time.Duration {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return distributor.Between(s.rng, min, max)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
