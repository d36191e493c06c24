package postgres

import (
	"context"
	"fmt"
	"time"

	"solana-snipe-engine/internal/storage"
)

// GuardStore implements storage.GuardStore on the snipe_guards primary key.
// A guard older than ttl is considered abandoned and may be taken over.
type GuardStore struct {
	pool *Pool
	ttl  time.Duration
}

// NewGuardStore creates a new GuardStore. ttl <= 0 disables takeover.
func NewGuardStore(pool *Pool, ttl time.Duration) *GuardStore {
	return &GuardStore{pool: pool, ttl: ttl}
}

// Compile-time interface check.
var _ storage.GuardStore = (*GuardStore)(nil)

// TryAcquire inserts the guard for orderID if absent (or expired).
func (s *GuardStore) TryAcquire(ctx context.Context, orderID string, owner string) (bool, error) {
	if orderID == "" {
		return false, storage.ErrInvalidInput
	}

	if s.ttl <= 0 {
		tag, err := s.pool.Exec(ctx, `
			INSERT INTO snipe_guards (order_id, owner, acquired_at)
			VALUES ($1, $2, NOW())
			ON CONFLICT (order_id) DO NOTHING
		`, orderID, owner)
		if err != nil {
			return false, fmt.Errorf("acquire guard: %w", err)
		}
		return tag.RowsAffected() == 1, nil
	}

	tag, err := s.pool.Exec(ctx, `
		INSERT INTO snipe_guards (order_id, owner, acquired_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (order_id) DO UPDATE
		SET owner = EXCLUDED.owner,
		    acquired_at = EXCLUDED.acquired_at
		WHERE snipe_guards.acquired_at < NOW() - make_interval(secs => $3)
	`, orderID, owner, s.ttl.Seconds())
	if err != nil {
		return false, fmt.Errorf("acquire guard: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Release deletes the guard for orderID if owner still holds it.
func (s *GuardStore) Release(ctx context.Context, orderID string, owner string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM snipe_guards WHERE order_id = $1 AND owner = $2`, orderID, owner); err != nil {
		return fmt.Errorf("release guard: %w", err)
	}
	return nil
}

// Held reports whether a guard row exists for orderID.
func (s *GuardStore) Held(ctx context.Context, orderID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM snipe_guards WHERE order_id = $1)`, orderID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check guard: %w", err)
	}
	return exists, nil
}
