package memory

import (
	"context"
	"sort"
	"sync"

	"solana-snipe-engine/internal/storage"
)

// DiscoveryProgressStore is an in-memory implementation of storage.DiscoveryProgressStore.
type DiscoveryProgressStore struct {
	mu       sync.RWMutex
	progress *storage.DiscoveryProgress
	seen     map[string]seenPool
	seq      int
}

type seenPool struct {
	slot uint64
	seq  int
}

// NewDiscoveryProgressStore creates an empty store.
func NewDiscoveryProgressStore() *DiscoveryProgressStore {
	return &DiscoveryProgressStore{seen: make(map[string]seenPool)}
}

var _ storage.DiscoveryProgressStore = (*DiscoveryProgressStore)(nil)

func (s *DiscoveryProgressStore) GetLastProcessed(_ context.Context) (*storage.DiscoveryProgress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.progress == nil {
		return nil, storage.ErrNotFound
	}
	p := *s.progress
	return &p, nil
}

func (s *DiscoveryProgressStore) Advance(_ context.Context, progress *storage.DiscoveryProgress) (bool, error) {
	if progress == nil || progress.Signature == "" {
		return false, storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.progress != nil && s.progress.Slot > progress.Slot {
		return false, nil
	}
	p := *progress
	s.progress = &p
	return true, nil
}

func (s *DiscoveryProgressStore) IsPoolSeen(_ context.Context, poolID string) (bool, error) {
	if poolID == "" {
		return false, storage.ErrInvalidInput
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.seen[poolID]
	return ok, nil
}

func (s *DiscoveryProgressStore) MarkPoolSeen(_ context.Context, poolID string, slot uint64) error {
	if poolID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[poolID]; ok {
		return nil
	}
	s.seq++
	s.seen[poolID] = seenPool{slot: slot, seq: s.seq}
	return nil
}

func (s *DiscoveryProgressStore) LoadSeenPools(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.seen))
	for id := range s.seen {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := s.seen[ids[i]], s.seen[ids[j]]
		if a.slot != b.slot {
			return a.slot < b.slot
		}
		return a.seq < b.seq
	})
	return ids, nil
}
