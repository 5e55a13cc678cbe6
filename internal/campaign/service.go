// Package campaign реализует сервис кампаний: создание, раздачу jobs
// по instances, запуск, остановку и сводку выполнения.
package campaign

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Fanline/internal/distributor"
	"github.com/shaiso/Fanline/internal/domain"
	"github.com/shaiso/Fanline/internal/gateway"
	"github.com/shaiso/Fanline/internal/mq"
)

// Узкие срезы зависимостей сервиса. Продакшн-реализации живут в
// internal/repo, internal/mq и internal/registry.

// CampaignStore — операции над campaigns.
// Create обязан записывать кампанию вместе с её jobs атомарно.
type CampaignStore interface {
	Create(ctx context.Context, c *domain.Campaign, jobs []domain.Job) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Campaign, error)
	List(ctx context.Context) ([]domain.Campaign, error)
	ReplaceInstances(ctx context.Context, campaignID uuid.UUID, instanceIDs []uuid.UUID) error
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// JobStore — операции над jobs.
type JobStore interface {
	ListByCampaign(ctx context.Context, campaignID uuid.UUID) ([]domain.Job, error)
	ListUnassigned(ctx context.Context, campaignID uuid.UUID) ([]domain.Job, error)
	Assign(ctx context.Context, recipientJID string, campaignID, instanceID, queueID uuid.UUID) error
	DetachJob(ctx context.Context, recipientJID string, campaignID uuid.UUID) error
	DetachCampaign(ctx context.Context, campaignID uuid.UUID) (int64, error)
	Progress(ctx context.Context, campaignID uuid.UUID) (domain.Progress, error)
}

// InstanceStore — чтение instances.
type InstanceStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Instance, error)
}

// Enqueuer — постановка команд отправки в очереди instances.
type Enqueuer interface {
	EnqueueSend(ctx context.Context, payload mq.SendPayload, delay time.Duration) error
}

// ParticipantSource — получение участников чата через сессию instance.
type ParticipantSource interface {
	Participants(ctx context.Context, instanceID uuid.UUID, chatJID string) ([]gateway.Participant, error)
}

// Locker — межпроцессная сериализация операций над кампанией.
type Locker interface {
	WithCampaignLock(ctx context.Context, campaignID uuid.UUID, fn func(ctx context.Context) error) error
}

// Service — сервис кампаний.
type Service struct {
	campaigns    CampaignStore
	jobs         JobStore
	instances    InstanceStore
	queue        Enqueuer
	participants ParticipantSource
	locker       Locker
	logger       *slog.Logger

	rngMu sync.Mutex
	rng   *rand.Rand
}

// Config — зависимости Service.
type Config struct {
	Campaigns    CampaignStore
	Jobs         JobStore
	Instances    InstanceStore
	Queue        Enqueuer
	Participants ParticipantSource
	Locker       Locker
	Logger       *slog.Logger

	// Rand — источник случайности для расписаний.
	// nil означает источник, засеянный текущим временем.
	Rand *rand.Rand
}

// New создаёт Service.
func New(cfg Config) *Service {
	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Service{
		campaigns:    cfg.Campaigns,
		jobs:         cfg.Jobs,
		instances:    cfg.Instances,
		queue:        cfg.Queue,
		participants: cfg.Participants,
		locker:       cfg.Locker,
		logger:       cfg.Logger,
		rng:          rng,
	}
}

// CreateParams — параметры новой кампании.
type CreateParams struct {
	TargetChatID       string
	Messages           []domain.MessageSpec
	MinDelaySec        int
	MaxDelaySec        int
	MinMessageDelaySec int
	MaxMessageDelaySec int
	MinTypingSec       int
	MaxTypingSec       int
	BlockAdmins        bool
	InstanceIDs        []uuid.UUID
}

// Create создаёт кампанию и сразу запускает рассылку: получатели
// берутся из целевого чата, jobs раздаются по instances, команды
// отправки встают в очереди с нарастающими задержками.
func (s *Service) Create(ctx context.Context, params CreateParams) (*domain.Campaign, error) {
	if err := validateParams(params); err != nil {
		return nil, err
	}

	eligible, err := s.eligibleInstances(ctx, params.InstanceIDs)
	if err != nil {
		return nil, err
	}
	if len(eligible) == 0 {
		return nil, ErrInstanceUnavailable
	}

	recipients, err := s.resolveRecipients(ctx, params)
	if err != nil {
		return nil, err
	}
	if len(recipients) == 0 {
		return nil, ErrNoRecipients
	}

	now := time.Now()
	c := &domain.Campaign{
		ID:                 uuid.New(),
		TargetChatID:       params.TargetChatID,
		Messages:           params.Messages,
		MinDelaySec:        params.MinDelaySec,
		MaxDelaySec:        params.MaxDelaySec,
		MinMessageDelaySec: params.MinMessageDelaySec,
		MaxMessageDelaySec: params.MaxMessageDelaySec,
		MinTypingSec:       params.MinTypingSec,
		MaxTypingSec:       params.MaxTypingSec,
		BlockAdmins:        params.BlockAdmins,
		Active:             true,
		Instances:          params.InstanceIDs,
		CreatedAt:          now,
	}
	jobs := make([]domain.Job, 0, len(recipients))
	for i, recipient := range recipients {
		jobs = append(jobs, domain.Job{
			RecipientJID: recipient,
			CampaignID:   c.ID,
			Position:     i,
			CreatedAt:    now,
		})
	}
	if err := s.campaigns.Create(ctx, c, jobs); err != nil {
		return nil, err
	}

	err = s.locker.WithCampaignLock(ctx, c.ID, func(ctx context.Context) error {
		return s.ScheduleUnassigned(ctx, c)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("campaign created",
		"campaign_id", c.ID,
		"recipients", len(recipients),
		"instances", len(c.Instances),
	)
	return c, nil
}

// resolveRecipients собирает получателей из целевого чата через первую
// подключённую сессию кампании.
func (s *Service) resolveRecipients(ctx context.Context, params CreateParams) ([]string, error) {
	var participants []gateway.Participant
	var lastErr error
	for _, instID := range params.InstanceIDs {
		participants, lastErr = s.participants.Participants(ctx, instID, params.TargetChatID)
		if lastErr == nil {
			break
		}
		s.logger.Warn("failed to fetch participants",
			"instance_id", instID,
			"chat_id", params.TargetChatID,
			"error", lastErr,
		)
	}
	if lastErr != nil {
		return nil, lastErr
	}

	seen := make(map[string]bool)
	recipients := make([]string, 0, len(participants))
	for _, p := range participants {
		if params.BlockAdmins && p.IsAdmin {
			continue
		}
		if seen[p.JID] {
			continue
		}
		seen[p.JID] = true
		recipients = append(recipients, p.JID)
	}
	return recipients, nil
}

// ScheduleUnassigned раздаёт свободные jobs кампании по её подключённым
// instances и ставит команды отправки в очереди.
//
// Вызывающий обязан держать campaign lock: метод не берёт её сам,
// чтобы его можно было звать из секций, уже выполняемых под lock.
func (s *Service) ScheduleUnassigned(ctx context.Context, c *domain.Campaign) error {
	unassigned, err := s.jobs.ListUnassigned(ctx, c.ID)
	if err != nil {
		return err
	}
	if len(unassigned) == 0 {
		return nil
	}

	eligible, err := s.eligibleInstances(ctx, c.Instances)
	if err != nil {
		return err
	}
	if len(eligible) == 0 {
		s.logger.Warn("no connected instances, jobs stay unassigned",
			"campaign_id", c.ID,
			"jobs", len(unassigned),
		)
		return nil
	}

	recipients := make([]string, 0, len(unassigned))
	for _, j := range unassigned {
		recipients = append(recipients, j.RecipientJID)
	}

	s.rngMu.Lock()
	assignments := distributor.Distribute(recipients, eligible, c.MinDelay(), c.MaxDelay(), s.rng)
	s.rngMu.Unlock()

	for _, a := range assignments {
		queueID := uuid.New()
		if err := s.jobs.Assign(ctx, a.Recipient, c.ID, a.Instance, queueID); err != nil {
			return err
		}

		payload := mq.SendPayload{
			CampaignID:   c.ID,
			RecipientJID: a.Recipient,
			InstanceID:   a.Instance,
			QueueID:      queueID,
		}
		if err := s.queue.EnqueueSend(ctx, payload, a.Delay); err != nil {
			// Откатываем назначение: job вернётся при следующей раздаче
			if detachErr := s.jobs.DetachJob(ctx, a.Recipient, c.ID); detachErr != nil {
				s.logger.Error("failed to detach job after enqueue error",
					"campaign_id", c.ID,
					"recipient", a.Recipient,
					"error", detachErr,
				)
			}
			return err
		}
	}

	s.logger.Info("jobs scheduled",
		"campaign_id", c.ID,
		"jobs", len(assignments),
		"instances", len(eligible),
	)
	return nil
}

// eligibleInstances возвращает подключённые instances из ids,
// сохраняя порядок закрепления.
func (s *Service) eligibleInstances(ctx context.Context, ids []uuid.UUID) ([]uuid.UUID, error) {
	eligible := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		inst, err := s.instances.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if inst.Active {
			eligible = append(eligible, id)
		}
	}
	return eligible, nil
}

// Get возвращает кампанию.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*domain.Campaign, error) {
	return s.campaigns.GetByID(ctx, id)
}

// List возвращает все кампании.
func (s *Service) List(ctx context.Context) ([]domain.Campaign, error) {
	return s.campaigns.List(ctx)
}

// Progress возвращает сводку выполнения кампании.
func (s *Service) Progress(ctx context.Context, id uuid.UUID) (domain.Progress, error) {
	if _, err := s.campaigns.GetByID(ctx, id); err != nil {
		return domain.Progress{}, err
	}
	return s.jobs.Progress(ctx, id)
}

// Jobs возвращает jobs кампании в исходном порядке получателей.
func (s *Service) Jobs(ctx context.Context, id uuid.UUID) ([]domain.Job, error) {
	if _, err := s.campaigns.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return s.jobs.ListByCampaign(ctx, id)
}

// Start возобновляет остановленную кампанию: оставшиеся получатели
// раздаются заново по подключённым instances.
//
// Непустой instanceIDs заменяет набор instances кампании перед
// раздачей; после rebalance это способ вернуть кампании рабочие
// instances.
func (s *Service) Start(ctx context.Context, id uuid.UUID, instanceIDs []uuid.UUID) error {
	c, err := s.campaigns.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if c.Active {
		return ErrActive
	}

	for _, instID := range instanceIDs {
		if _, err := s.instances.GetByID(ctx, instID); err != nil {
			return err
		}
	}

	return s.locker.WithCampaignLock(ctx, id, func(ctx context.Context) error {
		if len(instanceIDs) > 0 {
			if err := s.campaigns.ReplaceInstances(ctx, id, instanceIDs); err != nil {
				return err
			}
			c.Instances = instanceIDs
		}
		if len(c.Instances) == 0 {
			return ErrNoInstances
		}

		// Запуск без единого живого instance оставил бы активную
		// кампанию без размещений
		eligible, err := s.eligibleInstances(ctx, c.Instances)
		if err != nil {
			return err
		}
		if len(eligible) == 0 {
			return ErrInstanceUnavailable
		}

		if err := s.campaigns.SetActive(ctx, id, true); err != nil {
			return err
		}
		c.Active = true
		if err := s.ScheduleUnassigned(ctx, c); err != nil {
			return err
		}
		s.logger.Info("campaign started", "campaign_id", id, "instances", len(c.Instances))
		return nil
	})
}

// Stop останавливает кампанию: все неотправленные jobs снимаются с
// очередей, уже опубликованные доставки будут отброшены потребителями.
func (s *Service) Stop(ctx context.Context, id uuid.UUID) error {
	c, err := s.campaigns.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !c.Active {
		return ErrNotActive
	}

	return s.locker.WithCampaignLock(ctx, id, func(ctx context.Context) error {
		detached, err := s.jobs.DetachCampaign(ctx, id)
		if err != nil {
			return err
		}
		if err := s.campaigns.SetActive(ctx, id, false); err != nil {
			return err
		}
		s.logger.Info("campaign stopped", "campaign_id", id, "detached", detached)
		return nil
	})
}

// Delete останавливает кампанию и удаляет её вместе с jobs.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := s.campaigns.GetByID(ctx, id); err != nil {
		return err
	}

	return s.locker.WithCampaignLock(ctx, id, func(ctx context.Context) error {
		if _, err := s.jobs.DetachCampaign(ctx, id); err != nil {
			return err
		}
		if err := s.campaigns.Delete(ctx, id); err != nil {
			return err
		}
		s.logger.Info("campaign deleted", "campaign_id", id)
		return nil
	})
}
