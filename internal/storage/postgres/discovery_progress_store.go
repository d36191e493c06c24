package postgres

import (
	"context"
	"fmt"

	"solana-snipe-engine/internal/storage"
)

// DiscoveryProgressStore keeps scanner progress in discovery_progress (one row)
// and the cached pool ids in discovery_seen_pools.
type DiscoveryProgressStore struct {
	pool *Pool
}

// NewDiscoveryProgressStore creates a discovery progress store.
func NewDiscoveryProgressStore(pool *Pool) *DiscoveryProgressStore {
	return &DiscoveryProgressStore{pool: pool}
}

var _ storage.DiscoveryProgressStore = (*DiscoveryProgressStore)(nil)

func (s *DiscoveryProgressStore) GetLastProcessed(ctx context.Context) (*storage.DiscoveryProgress, error) {
	var (
		slot int64
		p    storage.DiscoveryProgress
	)
	err := s.pool.QueryRow(ctx, `SELECT slot, signature FROM discovery_progress WHERE id = 1`).
		Scan(&slot, &p.Signature)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get discovery progress: %w", err)
	}
	p.Slot = uint64(slot)
	return &p, nil
}

// Advance upserts the progress row. The conflict update is conditional, so an
// older slot leaves the row untouched and affects no rows.
func (s *DiscoveryProgressStore) Advance(ctx context.Context, progress *storage.DiscoveryProgress) (bool, error) {
	if progress == nil || progress.Signature == "" {
		return false, storage.ErrInvalidInput
	}

	tag, err := s.pool.Exec(ctx, `
		INSERT INTO discovery_progress (id, slot, signature, updated_at)
		VALUES (1, $1, $2, NOW())
		ON CONFLICT (id) DO UPDATE
		SET slot = EXCLUDED.slot,
		    signature = EXCLUDED.signature,
		    updated_at = NOW()
		WHERE discovery_progress.slot <= EXCLUDED.slot
	`, int64(progress.Slot), progress.Signature)
	if err != nil {
		return false, fmt.Errorf("advance discovery progress: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *DiscoveryProgressStore) IsPoolSeen(ctx context.Context, poolID string) (bool, error) {
	if poolID == "" {
		return false, storage.ErrInvalidInput
	}

	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM discovery_seen_pools WHERE pool_id = $1)`, poolID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check seen pool: %w", err)
	}
	return exists, nil
}

func (s *DiscoveryProgressStore) MarkPoolSeen(ctx context.Context, poolID string, slot uint64) error {
	if poolID == "" {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO discovery_seen_pools (pool_id, discovered_slot, seen_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (pool_id) DO NOTHING
	`, poolID, int64(slot))
	if err != nil {
		return fmt.Errorf("mark pool seen: %w", err)
	}
	return nil
}

func (s *DiscoveryProgressStore) LoadSeenPools(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT pool_id FROM discovery_seen_pools ORDER BY discovered_slot, seen_at`)
	if err != nil {
		return nil, fmt.Errorf("load seen pools: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan seen pool: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
