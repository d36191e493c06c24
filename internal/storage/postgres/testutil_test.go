package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"solana-snipe-engine/internal/domain"
	"solana-snipe-engine/internal/storage/migrations"
)

// setupTestDB starts a PostgreSQL container and applies the embedded migrations
// the same way the binaries do. Call the returned cleanup when done.
func setupTestDB(t *testing.T) (*Pool, func()) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start postgres container")

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "failed to get connection string")

	pool, err := NewPool(ctx, dsn)
	require.NoError(t, err, "failed to create pool")

	_, err = migrations.ApplyPostgres(ctx, pool, nil)
	require.NoError(t, err, "failed to apply migrations")

	cleanup := func() {
		pool.Close()
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	}

	return pool, cleanup
}

// newTestOrder returns a pending native-amount order for (userID, token).
func newTestOrder(id string, userID int64, token string) *domain.SnipeOrder {
	now := time.Now().UnixMilli()
	return &domain.SnipeOrder{
		ID:     id,
		UserID: userID,
		Token:  token,
		State:  domain.OrderPending,
		Params: domain.SnipeParams{
			AmountMode:       domain.AmountNative,
			Amount:           decimal.RequireFromString("0.5"),
			SlippageBps:      100,
			ComputeUnitLimit: 200_000,
			ComputeUnitPrice: 50_000,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}
