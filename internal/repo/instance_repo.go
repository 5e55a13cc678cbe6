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

// InstanceRepo — репозиторий для работы с instances.
type InstanceRepo struct {
	pool *pgxpool.Pool
}

// NewInstanceRepo создаёт новый InstanceRepo.
func NewInstanceRepo(pool *pgxpool.Pool) *InstanceRepo {
	return &InstanceRepo{pool: pool}
}

// Create создаёт новый instance.
func (r *InstanceRepo) Create(ctx context.Context, inst *domain.Instance) error {
	query := `
		INSERT INTO instances (id, active, phone, device_jid, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.pool.Exec(ctx, query,
		inst.ID,
		inst.Active,
		inst.Phone,
		inst.DeviceJID,
		inst.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert instance: %w", err)
	}
	return nil
}

// GetByID возвращает instance по ID.
func (r *InstanceRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Instance, error) {
	query := `
		SELECT id, active, phone, device_jid, created_at
		FROM instances
		WHERE id = $1
	`
	var inst domain.Instance
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&inst.ID,
		&inst.Active,
		&inst.Phone,
		&inst.DeviceJID,
		&inst.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get instance by id: %w", err)
	}
	return &inst, nil
}

// List возвращает список всех instances.
func (r *InstanceRepo) List(ctx context.Context) ([]domain.Instance, error) {
	query := `
		SELECT id, active, phone, device_jid, created_at
		FROM instances
		ORDER BY created_at ASC
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list instances: %w", err)
	}
	defer rows.Close()

	var instances []domain.Instance
	for rows.Next() {
		var inst domain.Instance
		if err := rows.Scan(
			&inst.ID,
			&inst.Active,
			&inst.Phone,
			&inst.DeviceJID,
			&inst.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan instance: %w", err)
		}
		instances = append(instances, inst)
	}
	return instances, rows.Err()
}

// SetActive выставляет флаг подключённости instance.
// Возвращает true, если флаг реально изменился.
func (r *InstanceRepo) SetActive(ctx context.Context, id uuid.UUID, active bool) (bool, error) {
	query := `
		UPDATE instances
		SET active = $2
		WHERE id = $1 AND active <> $2
	`
	result, err := r.pool.Exec(ctx, query, id, active)
	if err != nil {
		return false, fmt.Errorf("set instance active: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// SetDevice сохраняет данные аккаунта после успешного пейринга.
func (r *InstanceRepo) SetDevice(ctx context.Context, id uuid.UUID, phone, deviceJID string) error {
	query := `
		UPDATE instances
		SET phone = $2, device_jid = $3
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query, id, phone, deviceJID)
	if err != nil {
		return fmt.Errorf("set instance device: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete удаляет instance.
// Если на instance ссылается кампания, возвращает ErrReferenced.
func (r *InstanceRepo) Delete(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM instances WHERE id = $1`
	result, err := r.pool.Exec(ctx, query, id)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23503" {
		return ErrReferenced
	}
	if err != nil {
		return fmt.Errorf("delete instance: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
