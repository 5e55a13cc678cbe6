package repo

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Locker сериализует операции над одной кампанией между процессами.
type Locker struct {
	pool *pgxpool.Pool
}

// NewLocker создаёт новый Locker.
func NewLocker(pool *pgxpool.Pool) *Locker {
	return &Locker{pool: pool}
}

// WithCampaignLock выполняет fn под advisory-блокировкой кампании.
// Блокировка берётся в транзакции и отпускается при её завершении,
// поэтому конкурирующий процесс ждёт выхода fn. Сама fn работает
// обычными repo-методами, транзакция нужна только как держатель lock.
func (l *Locker) WithCampaignLock(ctx context.Context, campaignID uuid.UUID, fn func(ctx context.Context) error) error {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin lock tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, campaignLockKey(campaignID)); err != nil {
		return fmt.Errorf("acquire campaign lock: %w", err)
	}

	if err := fn(ctx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit lock tx: %w", err)
	}
	return nil
}

// campaignLockKey сворачивает UUID кампании в ключ advisory-блокировки.
// Берутся первые 8 байт UUID, коллизии ключей безвредны: они лишь
// изредка сериализуют две независимые кампании.
func campaignLockKey(id uuid.UUID) int64 {
	return int64(binary.BigEndian.Uint64(id[:8]))
}
