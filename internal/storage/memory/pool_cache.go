package memory

import (
	"context"
	"sync"

	"solana-snipe-engine/internal/domain"
	"solana-snipe-engine/internal/storage"
)

// PoolCache is an in-memory implementation of storage.PoolCache and storage.PoolWriter.
type PoolCache struct {
	mu     sync.RWMutex
	pools  map[string]*domain.PoolRecord // keyed by pool id
	byMint map[string]string             // token mint -> primary pool id
}

// NewPoolCache creates a new in-memory pool cache.
func NewPoolCache() *PoolCache {
	return &PoolCache{
		pools:  make(map[string]*domain.PoolRecord),
		byMint: make(map[string]string),
	}
}

var (
	_ storage.PoolCache  = (*PoolCache)(nil)
	_ storage.PoolWriter = (*PoolCache)(nil)
)

// Put stores the pool and indexes it under its tradable token.
func (c *PoolCache) Put(_ context.Context, p *domain.PoolRecord) error {
	if p == nil || p.ID == "" {
		return storage.ErrInvalidInput
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	poolCopy := *p
	c.pools[p.ID] = &poolCopy
	if token, ok := p.TradableToken(); ok {
		if _, indexed := c.byMint[token]; !indexed {
			c.byMint[token] = p.ID
		}
	}
	return nil
}

// Get retrieves a pool by id.
func (c *PoolCache) Get(_ context.Context, poolID string) (*domain.PoolRecord, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	p, exists := c.pools[poolID]
	if !exists {
		return nil, storage.ErrNotFound
	}
	poolCopy := *p
	return &poolCopy, nil
}

// ResolveByToken returns the primary pool for a token mint.
func (c *PoolCache) ResolveByToken(_ context.Context, mint string) (*domain.PoolRecord, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	id, exists := c.byMint[mint]
	if !exists {
		return nil, storage.ErrNotFound
	}
	poolCopy := *c.pools[id]
	return &poolCopy, nil
}
