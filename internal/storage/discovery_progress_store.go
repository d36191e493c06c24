package storage

import "context"

// DiscoveryProgress is the newest initialize transaction the pool scanner
// has fully processed.
type DiscoveryProgress struct {
	Slot      uint64
	Signature string
}

// DiscoveryProgressStore persists pool scanner state across restarts.
type DiscoveryProgressStore interface {
	// GetLastProcessed returns ErrNotFound until progress is first saved.
	GetLastProcessed(ctx context.Context) (*DiscoveryProgress, error)

	// Advance saves progress unless the stored slot is newer. It reports
	// whether the stored progress changed.
	Advance(ctx context.Context, progress *DiscoveryProgress) (bool, error)

	IsPoolSeen(ctx context.Context, poolID string) (bool, error)

	// MarkPoolSeen records a cached pool and the slot it was found at.
	// Marking a pool again keeps the first slot.
	MarkPoolSeen(ctx context.Context, poolID string, slot uint64) error

	// LoadSeenPools returns every seen pool id, oldest discovery first.
	LoadSeenPools(ctx context.Context) ([]string, error)
}
