package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"

	"solana-snipe-engine/internal/domain"
	"solana-snipe-engine/internal/storage"
)

// Key layout. The prefix keeps pool entries apart from fabric keys sharing the instance.
const (
	poolKeyPrefix   = "snipe:pool:"
	poolByMintIndex = "snipe:pool-by-mint:"
)

func poolKey(poolID string) string { return poolKeyPrefix + poolID }
func mintKey(mint string) string   { return poolByMintIndex + mint }

// PoolCache implements storage.PoolCache and storage.PoolWriter on Redis.
// Records are stored as JSON strings without expiry.
type PoolCache struct {
	client *Client
}

// NewPoolCache creates a new PoolCache.
func NewPoolCache(client *Client) *PoolCache {
	return &PoolCache{client: client}
}

// Compile-time interface checks.
var (
	_ storage.PoolCache  = (*PoolCache)(nil)
	_ storage.PoolWriter = (*PoolCache)(nil)
)

// Get retrieves a pool by id. Returns ErrNotFound if not cached yet.
func (c *PoolCache) Get(ctx context.Context, poolID string) (*domain.PoolRecord, error) {
	if poolID == "" {
		return nil, storage.ErrInvalidInput
	}

	raw, err := c.client.Get(ctx, poolKey(poolID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get pool %s: %w", poolID, err)
	}

	var p domain.PoolRecord
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode pool %s: %w", poolID, err)
	}
	return &p, nil
}

// ResolveByToken returns the primary WSOL pool for a token mint.
func (c *PoolCache) ResolveByToken(ctx context.Context, mint string) (*domain.PoolRecord, error) {
	if mint == "" {
		return nil, storage.ErrInvalidInput
	}

	poolID, err := c.client.Get(ctx, mintKey(mint)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("resolve pool for %s: %w", mint, err)
	}
	return c.Get(ctx, poolID)
}

// Put stores the pool and indexes it under its tradable token if no pool is indexed yet.
func (c *PoolCache) Put(ctx context.Context, p *domain.PoolRecord) error {
	if p == nil || p.ID == "" {
		return storage.ErrInvalidInput
	}

	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode pool %s: %w", p.ID, err)
	}

	_, err = c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, poolKey(p.ID), raw, 0)
		if token, ok := p.TradableToken(); ok {
			pipe.SetNX(ctx, mintKey(token), p.ID, 0)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("put pool %s: %w", p.ID, err)
	}
	return nil
}
