package storage

import (
	"context"

	"solana-snipe-engine/internal/domain"
)

// OrderStore provides access to snipe_orders storage.
type OrderStore interface {
	// Insert adds a new order. Returns ErrDuplicateKey if (user_id, token) exists.
	Insert(ctx context.Context, o *domain.SnipeOrder) error

	// Get retrieves an order by id. Returns ErrNotFound if not exists.
	Get(ctx context.Context, orderID string) (*domain.SnipeOrder, error)

	// GetByUserToken retrieves the order for (userID, token). Returns ErrNotFound if not exists.
	GetByUserToken(ctx context.Context, userID int64, token string) (*domain.SnipeOrder, error)

	// FindActiveOrders returns pending, enabled orders for a token, ordered by created_at ASC.
	FindActiveOrders(ctx context.Context, token string) ([]*domain.SnipeOrder, error)

	// FindAllActive returns every pending, enabled order.
	FindAllActive(ctx context.Context) ([]*domain.SnipeOrder, error)

	// SetState moves an order to state. lastErr is stored as-is (empty clears it).
	// Returns ErrNotFound if the order does not exist.
	SetState(ctx context.Context, orderID string, state domain.OrderState, lastErr string) error

	// Transition moves an order from state from to state to, only if it is still in from.
	// Returns false, nil when the order is in another state.
	// Returns ErrNotFound if the order does not exist.
	Transition(ctx context.Context, orderID string, from, to domain.OrderState, lastErr string) (bool, error)

	// Rearm moves an order in state error back to pending with new params.
	// Returns ErrNotFound if no such order is in state error.
	Rearm(ctx context.Context, orderID string, params domain.SnipeParams) error

	// DeleteByUser removes all orders of a user and returns how many were deleted.
	DeleteByUser(ctx context.Context, userID int64) (int, error)
}

// GuardStore is the distributed mutual-exclusion primitive for order execution.
type GuardStore interface {
	// TryAcquire inserts the guard for orderID if absent.
	// Returns false, nil when another attempt holds it.
	TryAcquire(ctx context.Context, orderID string, owner string) (bool, error)

	// Release deletes the guard for orderID if owner still holds it. Releasing an
	// absent guard, or one taken over by another owner, is not an error.
	Release(ctx context.Context, orderID string, owner string) error
}

// PoolCache provides read access to discovered pools.
type PoolCache interface {
	// Get retrieves a pool by id. Returns ErrNotFound if not cached yet.
	Get(ctx context.Context, poolID string) (*domain.PoolRecord, error)

	// ResolveByToken returns the primary WSOL pool for a token mint.
	// Returns ErrNotFound if no pool is indexed for the mint.
	ResolveByToken(ctx context.Context, mint string) (*domain.PoolRecord, error)
}

// PoolWriter stores pools found by the discovery scanner.
type PoolWriter interface {
	// Put stores the pool and indexes it under its tradable token.
	// An existing index entry for the token is kept.
	Put(ctx context.Context, p *domain.PoolRecord) error
}

// AttemptJournal records executor attempts for later analysis.
type AttemptJournal interface {
	// Record appends one attempt. Duplicate attempt ids are ignored.
	Record(ctx context.Context, a *domain.SnipeAttempt) error

	// GetByOrder returns attempts of an order, ordered by timestamp ASC.
	GetByOrder(ctx context.Context, orderID string) ([]*domain.SnipeAttempt, error)
}
