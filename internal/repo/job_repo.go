package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Fanline/internal/domain"
)

// JobRepo — репозиторий для работы с jobs.
//
// Job идентифицируется парой (recipient_jid, campaign_id).
// Поле queue_id сверяется потребителем очереди: доставка с чужим
// queue_id относится к отменённой постановке и отбрасывается.
type JobRepo struct {
	pool *pgxpool.Pool
}

// NewJobRepo создаёт новый JobRepo.
func NewJobRepo(pool *pgxpool.Pool) *JobRepo {
	return &JobRepo{pool: pool}
}

// insertJobs вставляет пачку jobs в рамках открытой транзакции.
// Дубликат получателя в рамках кампании даёт ErrAlreadyExists.
func insertJobs(ctx context.Context, tx pgx.Tx, jobs []domain.Job) error {
	query := `
		INSERT INTO jobs (recipient_jid, campaign_id, instance_id, queue_id,
			sent, failed, attempts, position, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	for _, j := range jobs {
		_, err := tx.Exec(ctx, query,
			j.RecipientJID,
			j.CampaignID,
			j.InstanceID,
			j.QueueID,
			j.Sent,
			j.Failed,
			j.Attempts,
			j.Position,
			j.CreatedAt,
		)
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrAlreadyExists
		}
		if err != nil {
			return fmt.Errorf("insert job: %w", err)
		}
	}
	return nil
}

// GetByKey возвращает job по паре (получатель, кампания).
func (r *JobRepo) GetByKey(ctx context.Context, recipientJID string, campaignID uuid.UUID) (*domain.Job, error) {
	query := `
		SELECT recipient_jid, campaign_id, instance_id, queue_id,
		       sent, failed, attempts, position, created_at
		FROM jobs
		WHERE recipient_jid = $1 AND campaign_id = $2
	`
	var j domain.Job
	err := r.pool.QueryRow(ctx, query, recipientJID, campaignID).Scan(
		&j.RecipientJID,
		&j.CampaignID,
		&j.InstanceID,
		&j.QueueID,
		&j.Sent,
		&j.Failed,
		&j.Attempts,
		&j.Position,
		&j.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return &j, nil
}

// ListByCampaign возвращает все jobs кампании в исходном порядке раздачи.
func (r *JobRepo) ListByCampaign(ctx context.Context, campaignID uuid.UUID) ([]domain.Job, error) {
	query := `
		SELECT recipient_jid, campaign_id, instance_id, queue_id,
		       sent, failed, attempts, position, created_at
		FROM jobs
		WHERE campaign_id = $1
		ORDER BY position ASC
	`
	return r.queryJobs(ctx, query, campaignID)
}

// ListUnassigned возвращает нетерминальные jobs кампании без instance,
// в исходном порядке раздачи.
func (r *JobRepo) ListUnassigned(ctx context.Context, campaignID uuid.UUID) ([]domain.Job, error) {
	query := `
		SELECT recipient_jid, campaign_id, instance_id, queue_id,
		       sent, failed, attempts, position, created_at
		FROM jobs
		WHERE campaign_id = $1 AND NOT sent AND NOT failed AND instance_id IS NULL
		ORDER BY position ASC
	`
	return r.queryJobs(ctx, query, campaignID)
}

// Assign закрепляет job за instance и фиксирует новую постановку в очередь.
func (r *JobRepo) Assign(ctx context.Context, recipientJID string, campaignID, instanceID, queueID uuid.UUID) error {
	query := `
		UPDATE jobs
		SET instance_id = $3, queue_id = $4
		WHERE recipient_jid = $1 AND campaign_id = $2 AND NOT sent AND NOT failed
	`
	result, err := r.pool.Exec(ctx, query, recipientJID, campaignID, instanceID, queueID)
	if err != nil {
		return fmt.Errorf("assign job: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkSent помечает job отправленным. Постановка не сверяется:
// сообщение уже ушло получателю, и факт отправки фиксируется даже
// если stop или rebalance успели снять job с очереди — иначе job
// раздадут заново и получатель увидит рассылку дважды.
// Возвращает false, если job уже терминален.
func (r *JobRepo) MarkSent(ctx context.Context, recipientJID string, campaignID uuid.UUID) (bool, error) {
	query := `
		UPDATE jobs
		SET sent = TRUE, queue_id = NULL, instance_id = NULL
		WHERE recipient_jid = $1 AND campaign_id = $2
		  AND NOT sent AND NOT failed
	`
	result, err := r.pool.Exec(ctx, query, recipientJID, campaignID)
	if err != nil {
		return false, fmt.Errorf("mark job sent: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// MarkFailed помечает job окончательно проваленным, если постановка
// ещё актуальна.
func (r *JobRepo) MarkFailed(ctx context.Context, recipientJID string, campaignID, queueID uuid.UUID) (bool, error) {
	query := `
		UPDATE jobs
		SET failed = TRUE, queue_id = NULL
		WHERE recipient_jid = $1 AND campaign_id = $2 AND queue_id = $3
		  AND NOT sent AND NOT failed
	`
	result, err := r.pool.Exec(ctx, query, recipientJID, campaignID, queueID)
	if err != nil {
		return false, fmt.Errorf("mark job failed: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// AddAttempt инкрементирует счётчик попыток отправки.
func (r *JobRepo) AddAttempt(ctx context.Context, recipientJID string, campaignID uuid.UUID) error {
	query := `
		UPDATE jobs
		SET attempts = attempts + 1
		WHERE recipient_jid = $1 AND campaign_id = $2
	`
	if _, err := r.pool.Exec(ctx, query, recipientJID, campaignID); err != nil {
		return fmt.Errorf("add job attempt: %w", err)
	}
	return nil
}

// DetachJob снимает один нетерминальный job с очереди.
func (r *JobRepo) DetachJob(ctx context.Context, recipientJID string, campaignID uuid.UUID) error {
	query := `
		UPDATE jobs
		SET instance_id = NULL, queue_id = NULL
		WHERE recipient_jid = $1 AND campaign_id = $2 AND NOT sent AND NOT failed
	`
	if _, err := r.pool.Exec(ctx, query, recipientJID, campaignID); err != nil {
		return fmt.Errorf("detach job: %w", err)
	}
	return nil
}

// DetachCampaign снимает все нетерминальные jobs кампании с очередей.
// Уже опубликованные доставки станут устаревшими и будут отброшены.
func (r *JobRepo) DetachCampaign(ctx context.Context, campaignID uuid.UUID) (int64, error) {
	query := `
		UPDATE jobs
		SET instance_id = NULL, queue_id = NULL
		WHERE campaign_id = $1 AND NOT sent AND NOT failed
	`
	result, err := r.pool.Exec(ctx, query, campaignID)
	if err != nil {
		return 0, fmt.Errorf("detach campaign jobs: %w", err)
	}
	return result.RowsAffected(), nil
}

// ListStrandedCampaigns возвращает ID активных кампаний, у которых есть
// нетерминальные jobs вне очередей.
func (r *JobRepo) ListStrandedCampaigns(ctx context.Context) ([]uuid.UUID, error) {
	query := `
		SELECT DISTINCT j.campaign_id
		FROM jobs j
		JOIN campaigns c ON c.id = j.campaign_id
		WHERE c.active AND NOT j.sent AND NOT j.failed AND j.queue_id IS NULL
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list stranded campaigns: %w", err)
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

// Progress возвращает сводку выполнения кампании.
func (r *JobRepo) Progress(ctx context.Context, campaignID uuid.UUID) (domain.Progress, error) {
	var p domain.Progress
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FILTER (WHERE sent),
		       COUNT(*) FILTER (WHERE failed),
		       COUNT(*)
		FROM jobs
		WHERE campaign_id = $1
	`, campaignID).Scan(&p.Sent, &p.Failed, &p.Total)
	if err != nil {
		return domain.Progress{}, fmt.Errorf("campaign progress: %w", err)
	}
	return p, nil
}

// --- Helpers ---

func (r *JobRepo) queryJobs(ctx context.Context, query string, args ...any) ([]domain.Job, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer rows.Close()

	var jobs []domain.Job
	for rows.Next() {
		var j domain.Job
		if err := rows.Scan(
			&j.RecipientJID,
			&j.CampaignID,
			&j.InstanceID,
			&j.QueueID,
			&j.Sent,
			&j.Failed,
			&j.Attempts,
			&j.Position,
			&j.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}
