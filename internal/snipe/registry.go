package snipe

import (
	"context"
	"errors"
	"fmt"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"solana-snipe-engine/internal/domain"
	"solana-snipe-engine/internal/storage"
)

// RegistryOptions configures a Registry.
type RegistryOptions struct {
	Orders storage.OrderStore
	// Poker delivers manual checks. Optional; Poke fails without it.
	Poker  VaultChangeHandler
	Logger logrus.FieldLogger
}

// Registry is the entry point for collaborators that create and clear orders.
type Registry struct {
	orders storage.OrderStore
	poker  VaultChangeHandler
	log    logrus.FieldLogger
	now    func() time.Time
	newID  func() string
}

// NewRegistry creates a registry.
func NewRegistry(opts RegistryOptions) *Registry {
	return &Registry{
		orders: opts.Orders,
		poker:  opts.Poker,
		log:    loggerOrDefault(opts.Logger).WithField("component", "registry"),
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// RegisterSnipe returns the order id of (userID, token), creating a pending order
// if none exists. An order in state error is re-armed with params under the same id;
// a pending or processing order is returned untouched.
func (r *Registry) RegisterSnipe(ctx context.Context, userID int64, token string, params domain.SnipeParams) (string, error) {
	if _, err := solanago.PublicKeyFromBase58(token); err != nil {
		return "", fmt.Errorf("token %q: %w", token, storage.ErrInvalidInput)
	}
	if err := params.Validate(); err != nil {
		return "", fmt.Errorf("%v: %w", err, storage.ErrInvalidInput)
	}

	existing, err := r.orders.GetByUserToken(ctx, userID, token)
	switch {
	case err == nil:
		return r.reuse(ctx, existing, params)
	case !errors.Is(err, storage.ErrNotFound):
		return "", fmt.Errorf("lookup order: %w", err)
	}

	now := r.now().UnixMilli()
	o := &domain.SnipeOrder{
		ID:        r.newID(),
		UserID:    userID,
		Token:     token,
		State:     domain.OrderPending,
		Params:    params,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := r.orders.Insert(ctx, o); err != nil {
		if !errors.Is(err, storage.ErrDuplicateKey) {
			return "", fmt.Errorf("insert order: %w", err)
		}
		// Lost a race with a concurrent registration: return the winner.
		winner, err := r.orders.GetByUserToken(ctx, userID, token)
		if err != nil {
			return "", fmt.Errorf("reread order: %w", err)
		}
		return winner.ID, nil
	}

	r.log.WithFields(logrus.Fields{"order_id": o.ID, "user_id": userID, "token": token}).Info("snipe registered")
	return o.ID, nil
}

func (r *Registry) reuse(ctx context.Context, o *domain.SnipeOrder, params domain.SnipeParams) (string, error) {
	if o.State != domain.OrderError {
		return o.ID, nil
	}
	if err := r.orders.Rearm(ctx, o.ID, params); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return "", fmt.Errorf("rearm order: %w", err)
	}
	r.log.WithFields(logrus.Fields{"order_id": o.ID, "token": o.Token}).Info("snipe re-armed")
	return o.ID, nil
}

// ClearAll deletes every order of userID and returns how many were removed.
func (r *Registry) ClearAll(ctx context.Context, userID int64) (int, error) {
	n, err := r.orders.DeleteByUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("clear orders of %d: %w", userID, err)
	}
	if n > 0 {
		r.log.WithFields(logrus.Fields{"user_id": userID, "deleted": n}).Info("snipes cleared")
	}
	return n, nil
}

// Poke delivers a check for poolID as if its vault had changed at slot.
func (r *Registry) Poke(ctx context.Context, poolID string, slot int64) (int, error) {
	if r.poker == nil {
		return 0, errors.New("poke: no dispatcher configured")
	}
	if poolID == "" {
		return 0, fmt.Errorf("poke: empty pool id: %w", storage.ErrInvalidInput)
	}
	return r.poker.Dispatch(ctx, poolID, slot)
}
