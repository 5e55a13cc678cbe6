package rebalancer

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/shaiso/Fanline/internal/mq"
	"github.com/shaiso/Fanline/internal/repo"
)

// handleLifecycle обрабатывает событие жизненного цикла instance.
func (r *Rebalancer) handleLifecycle(ctx context.Context, delivery *mq.Delivery) error {
	payload, err := mq.ParsePayload[mq.LifecyclePayload](&delivery.Message)
	if err != nil {
		r.logger.Error("malformed lifecycle payload", "message_id", delivery.Message.ID, "error", err)
		return nil
	}

	switch delivery.Message.Type {
	case mq.MessageTypeInstanceDown:
		r.logger.Info("instance down", "instance_id", payload.InstanceID, "at", payload.At)
		return r.Rebalance(ctx, payload.InstanceID)

	case mq.MessageTypeInstanceUp:
		// Вернувшийся instance может принять зависшие jobs
		r.logger.Info("instance up", "instance_id", payload.InstanceID, "at", payload.At)
		r.Reconcile(ctx)
		return nil

	default:
		r.logger.Warn("unexpected lifecycle message type", "type", delivery.Message.Type)
		return nil
	}
}

// Rebalance обрабатывает уход instance из строя.
//
// Для каждой активной кампании, за которой закреплён instance:
// открепить его от кампании, снять с очередей все незавершённые jobs
// кампании и раздать их заново по оставшимся instances с новым
// расписанием. Если instances не осталось, кампания ставится на паузу
// до ручного запуска. Повторное событие для того же instance
// безвредно: открепление уже нечего откреплять.
func (r *Rebalancer) Rebalance(ctx context.Context, instanceID uuid.UUID) error {
	campaignIDs, err := r.campaigns.ListActiveByInstance(ctx, instanceID)
	if err != nil {
		return err
	}

	for _, campaignID := range campaignIDs {
		err := r.locker.WithCampaignLock(ctx, campaignID, func(ctx context.Context) error {
			removed, err := r.campaigns.RemoveInstance(ctx, campaignID, instanceID)
			if err != nil {
				return err
			}
			// Дубликат события: instance уже откреплён
			if !removed {
				return nil
			}

			// Снимаем все живые постановки кампании: расписание
			// пересобирается с чистым отсчётом от текущего момента
			detached, err := r.jobs.DetachCampaign(ctx, campaignID)
			if err != nil {
				return err
			}

			c, err := r.campaigns.GetByID(ctx, campaignID)
			if err != nil {
				return err
			}

			if len(c.Instances) == 0 {
				r.logger.Warn("campaign left without instances, pausing",
					"campaign_id", campaignID,
					"instance_id", instanceID,
				)
				return r.campaigns.SetActive(ctx, campaignID, false)
			}

			rebalancesTotal.Inc()
			requeuedJobsTotal.Add(float64(detached))
			r.logger.Info("rebalancing campaign",
				"campaign_id", campaignID,
				"instance_id", instanceID,
				"requeued", detached,
				"instances_left", len(c.Instances),
			)
			return r.scheduler.ScheduleUnassigned(ctx, c)
		})
		if err != nil {
			r.logger.Error("failed to rebalance campaign",
				"campaign_id", campaignID,
				"instance_id", instanceID,
				"error", err,
			)
		}
	}
	return nil
}

// Reconcile подбирает jobs активных кампаний, выпавшие из очередей, и
// раздаёт их заново.
func (r *Rebalancer) Reconcile(ctx context.Context) {
	campaignIDs, err := r.jobs.ListStrandedCampaigns(ctx)
	if err != nil {
		r.logger.Error("failed to list stranded campaigns", "error", err)
		return
	}
	if len(campaignIDs) == 0 {
		return
	}

	reconcileRunsTotal.Inc()
	r.logger.Info("reconciling stranded jobs", "campaigns", len(campaignIDs))

	for _, campaignID := range campaignIDs {
		err := r.locker.WithCampaignLock(ctx, campaignID, func(ctx context.Context) error {
			c, err := r.campaigns.GetByID(ctx, campaignID)
			if errors.Is(err, repo.ErrNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			// Кампанию могли остановить между выборкой и lock
			if !c.Active {
				return nil
			}
			return r.scheduler.ScheduleUnassigned(ctx, c)
		})
		if err != nil {
			r.logger.Error("failed to reconcile campaign", "campaign_id", campaignID, "error", err)
		}
	}
}
