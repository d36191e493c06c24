package memory

import (
	"context"
	"sync"
	"time"

	"solana-snipe-engine/internal/storage"
)

type guardEntry struct {
	owner      string
	acquiredAt time.Time
}

// GuardStore is an in-memory implementation of storage.GuardStore.
// Exclusive within a single process only.
type GuardStore struct {
	mu     sync.Mutex
	ttl    time.Duration
	now    func() time.Time
	guards map[string]guardEntry // keyed by order id
}

// NewGuardStore creates a new in-memory guard store.
// A guard older than ttl can be taken over; ttl <= 0 disables expiry.
func NewGuardStore(ttl time.Duration) *GuardStore {
	return &GuardStore{
		ttl:    ttl,
		now:    time.Now,
		guards: make(map[string]guardEntry),
	}
}

var _ storage.GuardStore = (*GuardStore)(nil)

// TryAcquire inserts the guard if absent or expired.
func (s *GuardStore) TryAcquire(_ context.Context, orderID string, owner string) (bool, error) {
	if orderID == "" {
		return false, storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if g, held := s.guards[orderID]; held {
		if s.ttl <= 0 || now.Sub(g.acquiredAt) < s.ttl {
			return false, nil
		}
	}
	s.guards[orderID] = guardEntry{owner: owner, acquiredAt: now}
	return true, nil
}

// Release deletes the guard when owner still holds it.
func (s *GuardStore) Release(_ context.Context, orderID string, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if g, held := s.guards[orderID]; held && g.owner == owner {
		delete(s.guards, orderID)
	}
	return nil
}

// Held reports whether a guard is currently stored for orderID.
func (s *GuardStore) Held(orderID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, held := s.guards[orderID]
	return held
}

// Owner returns the holder of the guard for orderID, or "" when none is stored.
func (s *GuardStore) Owner(orderID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.guards[orderID].owner
}
