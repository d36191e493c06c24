package memory

import (
	"context"
	"sort"
	"sync"

	"solana-snipe-engine/internal/domain"
	"solana-snipe-engine/internal/storage"
)

// AttemptJournal is an in-memory implementation of storage.AttemptJournal.
type AttemptJournal struct {
	mu   sync.RWMutex
	data map[string]*domain.SnipeAttempt // keyed by attempt id
}

// NewAttemptJournal creates a new in-memory attempt journal.
func NewAttemptJournal() *AttemptJournal {
	return &AttemptJournal{
		data: make(map[string]*domain.SnipeAttempt),
	}
}

var _ storage.AttemptJournal = (*AttemptJournal)(nil)

// Record appends one attempt.
func (j *AttemptJournal) Record(_ context.Context, a *domain.SnipeAttempt) error {
	if a == nil || a.AttemptID == "" {
		return storage.ErrInvalidInput
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if _, exists := j.data[a.AttemptID]; exists {
		return nil
	}
	attemptCopy := *a
	j.data[a.AttemptID] = &attemptCopy
	return nil
}

// GetByOrder returns attempts of an order, ordered by timestamp ASC.
func (j *AttemptJournal) GetByOrder(_ context.Context, orderID string) ([]*domain.SnipeAttempt, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	var result []*domain.SnipeAttempt
	for _, a := range j.data {
		if a.OrderID == orderID {
			attemptCopy := *a
			result = append(result, &attemptCopy)
		}
	}
	sort.Slice(result, func(i, k int) bool {
		return result[i].Timestamp < result[k].Timestamp
	})
	return result, nil
}

// All returns every recorded attempt.
func (j *AttemptJournal) All() []*domain.SnipeAttempt {
	j.mu.RLock()
	defer j.mu.RUnlock()

	result := make([]*domain.SnipeAttempt, 0, len(j.data))
	for _, a := range j.data {
		attemptCopy := *a
		result = append(result, &attemptCopy)
	}
	return result
}
