package postgres

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-snipe-engine/internal/domain"
	"solana-snipe-engine/internal/storage"
)

func TestOrderStore_InsertAndGet(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewOrderStore(pool)

	o := newTestOrder("order-1", 42, "mintA")
	o.Params.Amount = decimal.RequireFromString("0.000000001")
	o.Params.MultiWallet = true
	require.NoError(t, store.Insert(ctx, o))

	got, err := store.Get(ctx, "order-1")
	require.NoError(t, err)
	assert.Equal(t, int64(42), got.UserID)
	assert.Equal(t, domain.OrderPending, got.State)
	assert.True(t, got.Params.Amount.Equal(o.Params.Amount), "amount %s", got.Params.Amount)
	assert.Equal(t, uint32(100), got.Params.SlippageBps)
	assert.Equal(t, uint64(50_000), got.Params.ComputeUnitPrice)
	assert.True(t, got.Params.MultiWallet)

	byPair, err := store.GetByUserToken(ctx, 42, "mintA")
	require.NoError(t, err)
	assert.Equal(t, "order-1", byPair.ID)

	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestOrderStore_DuplicateUserToken(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewOrderStore(pool)

	require.NoError(t, store.Insert(ctx, newTestOrder("order-1", 42, "mintA")))

	err := store.Insert(ctx, newTestOrder("order-2", 42, "mintA"))
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	require.NoError(t, store.Insert(ctx, newTestOrder("order-3", 43, "mintA")))
}

func TestOrderStore_CheckConstraintIsInvalidInput(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewOrderStore(pool)

	o := newTestOrder("order-1", 42, "mintA")
	o.Params.SlippageBps = 20_000
	assert.ErrorIs(t, store.Insert(ctx, o), storage.ErrInvalidInput)

	o = newTestOrder("order-2", 42, "mintB")
	o.Params.Amount = decimal.Zero
	assert.ErrorIs(t, store.Insert(ctx, o), storage.ErrInvalidInput)
}

func TestOrderStore_FindActive(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewOrderStore(pool)

	pending := newTestOrder("order-1", 1, "mintA")
	disabled := newTestOrder("order-2", 2, "mintA")
	disabled.Params.Disabled = true
	processing := newTestOrder("order-3", 3, "mintA")
	processing.State = domain.OrderProcessing
	other := newTestOrder("order-4", 4, "mintB")

	for _, o := range []*domain.SnipeOrder{pending, disabled, processing, other} {
		require.NoError(t, store.Insert(ctx, o))
	}

	active, err := store.FindActiveOrders(ctx, "mintA")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "order-1", active[0].ID)

	all, err := store.FindAllActive(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestOrderStore_StateTransitions(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewOrderStore(pool)

	require.NoError(t, store.Insert(ctx, newTestOrder("order-1", 1, "mintA")))

	assert.ErrorIs(t, store.Rearm(ctx, "order-1", newTestOrder("", 0, "").Params), storage.ErrNotFound,
		"rearm applies to errored orders only")

	require.NoError(t, store.SetState(ctx, "order-1", domain.OrderError, "simulation failed"))
	got, err := store.Get(ctx, "order-1")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderError, got.State)
	assert.Equal(t, "simulation failed", got.LastError)

	params := got.Params
	params.SlippageBps = 300
	require.NoError(t, store.Rearm(ctx, "order-1", params))
	got, err = store.Get(ctx, "order-1")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderPending, got.State)
	assert.Equal(t, uint32(300), got.Params.SlippageBps)
	assert.Empty(t, got.LastError)

	assert.ErrorIs(t, store.SetState(ctx, "missing", domain.OrderError, ""), storage.ErrNotFound)
	assert.ErrorIs(t, store.SetState(ctx, "order-1", "done", ""), storage.ErrInvalidInput)
}

func TestOrderStore_TransitionIsConditional(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewOrderStore(pool)

	require.NoError(t, store.Insert(ctx, newTestOrder("order-1", 1, "mintA")))

	moved, err := store.Transition(ctx, "order-1", domain.OrderPending, domain.OrderProcessing, "")
	require.NoError(t, err)
	assert.True(t, moved)

	moved, err = store.Transition(ctx, "order-1", domain.OrderPending, domain.OrderProcessing, "")
	require.NoError(t, err)
	assert.False(t, moved, "an order already taken must not be claimed twice")

	moved, err = store.Transition(ctx, "order-1", domain.OrderProcessing, domain.OrderError, "send failed")
	require.NoError(t, err)
	assert.True(t, moved)

	got, err := store.Get(ctx, "order-1")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderError, got.State)
	assert.Equal(t, "send failed", got.LastError)

	_, err = store.Transition(ctx, "missing", domain.OrderPending, domain.OrderProcessing, "")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = store.Transition(ctx, "order-1", "done", domain.OrderError, "")
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestOrderStore_ConcurrentClaim(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewOrderStore(pool)
	require.NoError(t, store.Insert(ctx, newTestOrder("order-1", 1, "mintA")))

	const n = 8
	wins := make(chan bool, n)
	for i := 0; i < n; i++ {
		go func() {
			moved, err := store.Transition(ctx, "order-1", domain.OrderPending, domain.OrderProcessing, "")
			assert.NoError(t, err)
			wins <- moved
		}()
	}

	claimed := 0
	for i := 0; i < n; i++ {
		if <-wins {
			claimed++
		}
	}
	assert.Equal(t, 1, claimed)
}

func TestOrderStore_DeleteByUser(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewOrderStore(pool)

	require.NoError(t, store.Insert(ctx, newTestOrder("order-1", 1, "mintA")))
	require.NoError(t, store.Insert(ctx, newTestOrder("order-2", 1, "mintB")))
	require.NoError(t, store.Insert(ctx, newTestOrder("order-3", 2, "mintA")))

	n, err := store.DeleteByUser(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = store.Get(ctx, "order-3")
	assert.NoError(t, err)

	require.NoError(t, store.Insert(ctx, newTestOrder("order-4", 1, "mintA")))
}
