package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"solana-snipe-engine/internal/domain"
	"solana-snipe-engine/internal/storage"
)

type userToken struct {
	userID int64
	token  string
}

// OrderStore is an in-memory implementation of storage.OrderStore.
type OrderStore struct {
	mu     sync.RWMutex
	data   map[string]*domain.SnipeOrder // keyed by order id
	byPair map[userToken]string          // (user, token) -> order id
}

// NewOrderStore creates a new in-memory order store.
func NewOrderStore() *OrderStore {
	return &OrderStore{
		data:   make(map[string]*domain.SnipeOrder),
		byPair: make(map[userToken]string),
	}
}

var _ storage.OrderStore = (*OrderStore)(nil)

// Insert adds a new order. Returns ErrDuplicateKey if (user_id, token) exists.
func (s *OrderStore) Insert(_ context.Context, o *domain.SnipeOrder) error {
	if o == nil || o.ID == "" || o.Token == "" || !o.State.IsValid() {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := userToken{userID: o.UserID, token: o.Token}
	if _, exists := s.byPair[key]; exists {
		return storage.ErrDuplicateKey
	}
	if _, exists := s.data[o.ID]; exists {
		return storage.ErrDuplicateKey
	}

	orderCopy := *o
	s.data[o.ID] = &orderCopy
	s.byPair[key] = o.ID
	return nil
}

// Get retrieves an order by id.
func (s *OrderStore) Get(_ context.Context, orderID string) (*domain.SnipeOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, exists := s.data[orderID]
	if !exists {
		return nil, storage.ErrNotFound
	}
	orderCopy := *o
	return &orderCopy, nil
}

// GetByUserToken retrieves the order for (userID, token).
func (s *OrderStore) GetByUserToken(_ context.Context, userID int64, token string) (*domain.SnipeOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.byPair[userToken{userID: userID, token: token}]
	if !exists {
		return nil, storage.ErrNotFound
	}
	orderCopy := *s.data[id]
	return &orderCopy, nil
}

// FindActiveOrders returns pending, enabled orders for a token.
func (s *OrderStore) FindActiveOrders(_ context.Context, token string) ([]*domain.SnipeOrder, error) {
	return s.collect(func(o *domain.SnipeOrder) bool {
		return o.Token == token && o.IsActive()
	}), nil
}

// FindAllActive returns every pending, enabled order.
func (s *OrderStore) FindAllActive(_ context.Context) ([]*domain.SnipeOrder, error) {
	return s.collect((*domain.SnipeOrder).IsActive), nil
}

func (s *OrderStore) collect(match func(*domain.SnipeOrder) bool) []*domain.SnipeOrder {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.SnipeOrder
	for _, o := range s.data {
		if match(o) {
			orderCopy := *o
			result = append(result, &orderCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt != result[j].CreatedAt {
			return result[i].CreatedAt < result[j].CreatedAt
		}
		return result[i].ID < result[j].ID
	})
	return result
}

// SetState moves an order to state.
func (s *OrderStore) SetState(_ context.Context, orderID string, state domain.OrderState, lastErr string) error {
	if !state.IsValid() {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	o, exists := s.data[orderID]
	if !exists {
		return storage.ErrNotFound
	}
	o.State = state
	o.LastError = lastErr
	o.UpdatedAt = time.Now().UnixMilli()
	return nil
}

// Transition moves an order from one state to another if it is still in from.
func (s *OrderStore) Transition(_ context.Context, orderID string, from, to domain.OrderState, lastErr string) (bool, error) {
	if !from.IsValid() || !to.IsValid() {
		return false, storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	o, exists := s.data[orderID]
	if !exists {
		return false, storage.ErrNotFound
	}
	if o.State != from {
		return false, nil
	}
	o.State = to
	o.LastError = lastErr
	o.UpdatedAt = time.Now().UnixMilli()
	return true, nil
}

// Rearm moves an errored order back to pending with new params.
func (s *OrderStore) Rearm(_ context.Context, orderID string, params domain.SnipeParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, exists := s.data[orderID]
	if !exists || o.State != domain.OrderError {
		return storage.ErrNotFound
	}
	o.State = domain.OrderPending
	o.Params = params
	o.LastError = ""
	o.UpdatedAt = time.Now().UnixMilli()
	return nil
}

// DeleteByUser removes all orders of a user.
func (s *OrderStore) DeleteByUser(_ context.Context, userID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for id, o := range s.data {
		if o.UserID != userID {
			continue
		}
		delete(s.byPair, userToken{userID: o.UserID, token: o.Token})
		delete(s.data, id)
		deleted++
	}
	return deleted, nil
}
