package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-snipe-engine/internal/storage"
)

func TestDiscoveryProgressStore_Advance(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewDiscoveryProgressStore(pool)

	_, err := store.GetLastProcessed(ctx)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	advanced, err := store.Advance(ctx, &storage.DiscoveryProgress{Slot: 100, Signature: "Sig100"})
	require.NoError(t, err)
	assert.True(t, advanced)

	advanced, err = store.Advance(ctx, &storage.DiscoveryProgress{Slot: 200, Signature: "Sig200"})
	require.NoError(t, err)
	assert.True(t, advanced)

	// A late write for an older slot is ignored.
	advanced, err = store.Advance(ctx, &storage.DiscoveryProgress{Slot: 150, Signature: "Sig150"})
	require.NoError(t, err)
	assert.False(t, advanced)

	got, err := store.GetLastProcessed(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(200), got.Slot)
	assert.Equal(t, "Sig200", got.Signature)

	_, err = store.Advance(ctx, nil)
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestDiscoveryProgressStore_SeenPools(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewDiscoveryProgressStore(pool)

	const poolID = "58oQChx4yWmvKdwLLZzBi4ChoCc2fqCUWBkwMihLYQo2"

	seen, err := store.IsPoolSeen(ctx, poolID)
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, store.MarkPoolSeen(ctx, poolID, 300))
	require.NoError(t, store.MarkPoolSeen(ctx, poolID, 900))
	require.NoError(t, store.MarkPoolSeen(ctx, "olderPool", 100))

	seen, err = store.IsPoolSeen(ctx, poolID)
	require.NoError(t, err)
	assert.True(t, seen)

	// The repeated mark kept slot 300, so the older pool loads first.
	pools, err := store.LoadSeenPools(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"olderPool", poolID}, pools)

	assert.ErrorIs(t, store.MarkPoolSeen(ctx, "", 1), storage.ErrInvalidInput)
	_, err = store.IsPoolSeen(ctx, "")
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}
