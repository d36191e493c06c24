package clickhouse

import (
	"context"
	"fmt"

	"solana-snipe-engine/internal/domain"
	"solana-snipe-engine/internal/storage"
)

// AttemptJournal implements storage.AttemptJournal using ClickHouse.
// The table is a ReplacingMergeTree so a re-recorded attempt id collapses on merge;
// reads use FINAL.
type AttemptJournal struct {
	conn *Conn
}

// NewAttemptJournal creates a new AttemptJournal.
func NewAttemptJournal(conn *Conn) *AttemptJournal {
	return &AttemptJournal{conn: conn}
}

// Compile-time interface check.
var _ storage.AttemptJournal = (*AttemptJournal)(nil)

// Record appends one attempt.
func (j *AttemptJournal) Record(ctx context.Context, a *domain.SnipeAttempt) error {
	if a == nil || a.AttemptID == "" {
		return storage.ErrInvalidInput
	}
	return j.RecordBulk(ctx, []*domain.SnipeAttempt{a})
}

// RecordBulk appends attempts in a single batch.
func (j *AttemptJournal) RecordBulk(ctx context.Context, attempts []*domain.SnipeAttempt) error {
	if len(attempts) == 0 {
		return nil
	}

	batch, err := j.conn.PrepareBatch(ctx, `
		INSERT INTO snipe_attempts (
			attempt_id, order_id, user_id, token, pool_id, slot, shard,
			outcome, signature, error, latency_ms, timestamp
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, a := range attempts {
		err = batch.Append(
			a.AttemptID, a.OrderID, a.UserID, a.Token, a.PoolID, a.Slot, int32(a.Shard),
			string(a.Outcome), a.Signature, a.Error, a.LatencyMs, a.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetByOrder returns attempts of an order, ordered by timestamp ASC.
func (j *AttemptJournal) GetByOrder(ctx context.Context, orderID string) ([]*domain.SnipeAttempt, error) {
	query := `
		SELECT attempt_id, order_id, user_id, token, pool_id, slot, shard,
		       outcome, signature, error, latency_ms, timestamp
		FROM snipe_attempts FINAL
		WHERE order_id = ?
		ORDER BY timestamp ASC, attempt_id ASC
	`

	rows, err := j.conn.Query(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("query attempts by order: %w", err)
	}
	defer rows.Close()

	return scanAttempts(rows)
}

// OutcomeCounts returns attempt counts per outcome since the given timestamp (ms).
func (j *AttemptJournal) OutcomeCounts(ctx context.Context, since int64) (map[domain.AttemptOutcome]uint64, error) {
	rows, err := j.conn.Query(ctx, `
		SELECT outcome, count()
		FROM snipe_attempts FINAL
		WHERE timestamp >= ?
		GROUP BY outcome
	`, since)
	if err != nil {
		return nil, fmt.Errorf("query outcome counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.AttemptOutcome]uint64)
	for rows.Next() {
		var outcome string
		var n uint64
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, fmt.Errorf("scan outcome count: %w", err)
		}
		counts[domain.AttemptOutcome(outcome)] = n
	}
	return counts, rows.Err()
}

func scanAttempts(rows chRows) ([]*domain.SnipeAttempt, error) {
	var attempts []*domain.SnipeAttempt

	for rows.Next() {
		var a domain.SnipeAttempt
		var shard int32
		var outcome string

		err := rows.Scan(
			&a.AttemptID, &a.OrderID, &a.UserID, &a.Token, &a.PoolID, &a.Slot, &shard,
			&outcome, &a.Signature, &a.Error, &a.LatencyMs, &a.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("scan attempt row: %w", err)
		}

		a.Shard = int(shard)
		a.Outcome = domain.AttemptOutcome(outcome)
		attempts = append(attempts, &a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attempt rows: %w", err)
	}
	return attempts, nil
}
