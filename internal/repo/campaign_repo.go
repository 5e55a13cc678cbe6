package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Fanline/internal/domain"
)

// CampaignRepo — репозиторий для работы с campaigns и campaign_instances.
type CampaignRepo struct {
	pool *pgxpool.Pool
}

// NewCampaignRepo создаёт новый CampaignRepo.
func NewCampaignRepo(pool *pgxpool.Pool) *CampaignRepo {
	return &CampaignRepo{pool: pool}
}

// Create создаёт кампанию, закрепляет за ней instances и вставляет её
// jobs одной транзакцией: сбой на любом шаге не оставляет после себя
// кампанию без получателей.
func (r *CampaignRepo) Create(ctx context.Context, c *domain.Campaign, jobs []domain.Job) error {
	messagesJSON, err := json.Marshal(c.Messages)
	if err != nil {
		return fmt.Errorf("marshal messages: %w", err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO campaigns (id, target_chat_id, messages,
			min_delay_sec, max_delay_sec,
			min_message_delay_sec, max_message_delay_sec,
			min_typing_sec, max_typing_sec,
			block_admins, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		c.ID,
		c.TargetChatID,
		messagesJSON,
		c.MinDelaySec,
		c.MaxDelaySec,
		c.MinMessageDelaySec,
		c.MaxMessageDelaySec,
		c.MinTypingSec,
		c.MaxTypingSec,
		c.BlockAdmins,
		c.Active,
		c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert campaign: %w", err)
	}

	for i, instID := range c.Instances {
		_, err = tx.Exec(ctx, `
			INSERT INTO campaign_instances (campaign_id, instance_id, position)
			VALUES ($1, $2, $3)
		`, c.ID, instID, i)
		if err != nil {
			return fmt.Errorf("insert campaign instance: %w", err)
		}
	}

	if err := insertJobs(ctx, tx, jobs); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetByID возвращает кампанию вместе со списком её instances.
func (r *CampaignRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Campaign, error) {
	query := `
		SELECT id, target_chat_id, messages,
		       min_delay_sec, max_delay_sec,
		       min_message_delay_sec, max_message_delay_sec,
		       min_typing_sec, max_typing_sec,
		       block_admins, active, created_at
		FROM campaigns
		WHERE id = $1
	`
	c, err := scanCampaign(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, err
	}
	c.Instances, err = r.listInstanceIDs(ctx, id)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// List возвращает все кампании (без списков instances).
func (r *CampaignRepo) List(ctx context.Context) ([]domain.Campaign, error) {
	query := `
		SELECT id, target_chat_id, messages,
		       min_delay_sec, max_delay_sec,
		       min_message_delay_sec, max_message_delay_sec,
		       min_typing_sec, max_typing_sec,
		       block_admins, active, created_at
		FROM campaigns
		ORDER BY created_at DESC
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list campaigns: %w", err)
	}
	defer rows.Close()

	var campaigns []domain.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		campaigns = append(campaigns, *c)
	}
	return campaigns, rows.Err()
}

// ListActiveByInstance возвращает ID активных кампаний,
// за которыми закреплён данный instance.
func (r *CampaignRepo) ListActiveByInstance(ctx context.Context, instanceID uuid.UUID) ([]uuid.UUID, error) {
	query := `
		SELECT c.id
		FROM campaigns c
		JOIN campaign_instances ci ON ci.campaign_id = c.id
		WHERE ci.instance_id = $1 AND c.active
		ORDER BY c.created_at ASC
	`
	rows, err := r.pool.Query(ctx, query, instanceID)
	if err != nil {
		return nil, fmt.Errorf("list active campaigns by instance: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan campaign id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// RemoveInstance открепляет instance от кампании.
// Возвращает false, если instance не был закреплён: повторный вызов
// для того же instance безопасен.
func (r *CampaignRepo) RemoveInstance(ctx context.Context, campaignID, instanceID uuid.UUID) (bool, error) {
	query := `
		DELETE FROM campaign_instances
		WHERE campaign_id = $1 AND instance_id = $2
	`
	result, err := r.pool.Exec(ctx, query, campaignID, instanceID)
	if err != nil {
		return false, fmt.Errorf("remove campaign instance: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// ReplaceInstances заменяет набор instances кампании одной транзакцией.
func (r *CampaignRepo) ReplaceInstances(ctx context.Context, campaignID uuid.UUID, instanceIDs []uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM campaign_instances WHERE campaign_id = $1`, campaignID); err != nil {
		return fmt.Errorf("clear campaign instances: %w", err)
	}
	for i, instID := range instanceIDs {
		_, err = tx.Exec(ctx, `
			INSERT INTO campaign_instances (campaign_id, instance_id, position)
			VALUES ($1, $2, $3)
		`, campaignID, instID, i)
		if err != nil {
			return fmt.Errorf("insert campaign instance: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// SetActive выставляет флаг активности кампании.
func (r *CampaignRepo) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	query := `
		UPDATE campaigns
		SET active = $2
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query, id, active)
	if err != nil {
		return fmt.Errorf("set campaign active: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete удаляет кампанию (каскадно удалит campaign_instances и jobs).
func (r *CampaignRepo) Delete(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM campaigns WHERE id = $1`
	result, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete campaign: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Helpers ---

func (r *CampaignRepo) listInstanceIDs(ctx context.Context, campaignID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT instance_id
		FROM campaign_instances
		WHERE campaign_id = $1
		ORDER BY position ASC
	`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("list campaign instances: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan instance id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanCampaign(row pgx.Row) (*domain.Campaign, error) {
	var c domain.Campaign
	var messagesJSON []byte

	err := row.Scan(
		&c.ID,
		&c.TargetChatID,
		&messagesJSON,
		&c.MinDelaySec,
		&c.MaxDelaySec,
		&c.MinMessageDelaySec,
		&c.MaxMessageDelaySec,
		&c.MinTypingSec,
		&c.MaxTypingSec,
		&c.BlockAdmins,
		&c.Active,
		&c.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan campaign: %w", err)
	}

	if err := json.Unmarshal(messagesJSON, &c.Messages); err != nil {
		return nil, fmt.Errorf("unmarshal messages: %w", err)
	}
	return &c, nil
}
