package snipe

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"solana-snipe-engine/internal/observability"
	"solana-snipe-engine/internal/solana"
	"solana-snipe-engine/internal/storage"
)

// VaultChangeHandler receives vault change events. *Dispatcher implements it.
type VaultChangeHandler interface {
	Dispatch(ctx context.Context, poolID string, slot int64) (int, error)
}

// SubscriptionManagerOptions configures a SubscriptionManager.
type SubscriptionManagerOptions struct {
	Orders   storage.OrderStore
	Pools    storage.PoolCache
	WS       solana.WSClient
	Handler  VaultChangeHandler
	Interval time.Duration // Default: 1s between reconcile cycles
	// MaxBackoff caps the retry delay after a failed cycle. Default: 30s.
	MaxBackoff time.Duration
	Metrics    *observability.Metrics
	Logger     logrus.FieldLogger
}

type vaultSubscription struct {
	handle int64
	poolID string
	vault  string
}

// SubscriptionManager keeps one vault subscription per token with an active order.
type SubscriptionManager struct {
	orders     storage.OrderStore
	pools      storage.PoolCache
	ws         solana.WSClient
	handler    VaultChangeHandler
	interval   time.Duration
	maxBackoff time.Duration
	metrics    *observability.Metrics
	log        logrus.FieldLogger

	mu   sync.Mutex
	subs map[string]*vaultSubscription // keyed by token mint

	// forwarders outlive a single Reconcile call, so they run on their own context.
	fwdCtx    context.Context
	fwdCancel context.CancelFunc
	wg        sync.WaitGroup
}

// NewSubscriptionManager creates a manager with no subscriptions.
func NewSubscriptionManager(opts SubscriptionManagerOptions) *SubscriptionManager {
	interval := opts.Interval
	if interval <= 0 {
		interval = time.Second
	}
	maxBackoff := opts.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = 30 * time.Second
	}
	fwdCtx, fwdCancel := context.WithCancel(context.Background())

	return &SubscriptionManager{
		orders:     opts.Orders,
		pools:      opts.Pools,
		ws:         opts.WS,
		handler:    opts.Handler,
		interval:   interval,
		maxBackoff: maxBackoff,
		metrics:    metricsOrDefault(opts.Metrics),
		log:        loggerOrDefault(opts.Logger).WithField("component", "subscriptions"),
		subs:       make(map[string]*vaultSubscription),
		fwdCtx:     fwdCtx,
		fwdCancel:  fwdCancel,
	}
}

// Run reconciles every interval until ctx is done. Failed cycles back off
// exponentially up to MaxBackoff; Run never gives up on its own.
func (m *SubscriptionManager) Run(ctx context.Context) error {
	defer m.Close()

	m.log.WithField("interval", m.interval).Info("subscription manager started")

	wait := m.interval
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			m.log.Info("subscription manager stopping")
			return ctx.Err()
		case <-timer.C:
		}

		if _, _, err := m.Reconcile(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			m.metrics.ReconcileErrors.Inc()
			wait *= 2
			if wait > m.maxBackoff {
				wait = m.maxBackoff
			}
			m.log.WithError(err).WithField("retry_in", wait).Warn("reconcile failed")
		} else {
			wait = m.interval
		}
		timer.Reset(wait)
	}
}

// Reconcile runs one cycle: subscribe tokens that gained an active order and
// unsubscribe tokens that lost their last one. Per-token resolution failures are
// logged and retried next cycle; only a failed order query is returned.
func (m *SubscriptionManager) Reconcile(ctx context.Context) (added, removed int, err error) {
	orders, err := m.orders.FindAllActive(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("find active orders: %w", err)
	}

	desired := make(map[string]struct{}, len(orders))
	for _, o := range orders {
		desired[o.Token] = struct{}{}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, token := range sortedKeys(desired) {
		if _, ok := m.subs[token]; ok {
			continue
		}
		if err := m.subscribe(ctx, token); err != nil {
			m.log.WithError(err).WithField("token", token).Debug("subscribe deferred")
			continue
		}
		added++
	}

	for token, sub := range m.subs {
		if _, ok := desired[token]; ok {
			continue
		}
		if err := m.ws.Unsubscribe(ctx, sub.handle); err != nil {
			m.log.WithError(err).WithField("token", token).Warn("unsubscribe failed")
			continue
		}
		delete(m.subs, token)
		removed++
	}

	if added > 0 || removed > 0 {
		m.log.WithFields(logrus.Fields{
			"added":   added,
			"removed": removed,
			"active":  len(m.subs),
		}).Info("subscriptions reconciled")
	}
	m.metrics.RecordSubscriptionChanges(added, removed, len(m.subs))
	return added, removed, nil
}

// subscribe opens the vault subscription for token. Caller holds m.mu.
func (m *SubscriptionManager) subscribe(ctx context.Context, token string) error {
	pool, err := m.pools.ResolveByToken(ctx, token)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("no pool for token yet: %w", err)
		}
		return fmt.Errorf("resolve pool: %w", err)
	}

	vault := pool.TokenVault(token)
	if vault == "" {
		return fmt.Errorf("pool %s does not hold token", pool.ID)
	}

	handle, events, err := m.ws.AccountSubscribe(ctx, vault)
	if err != nil {
		return fmt.Errorf("subscribe vault %s: %w", vault, err)
	}

	m.subs[token] = &vaultSubscription{handle: handle, poolID: pool.ID, vault: vault}
	m.wg.Add(1)
	go m.forward(pool.ID, events)
	return nil
}

// forward hands every vault change to the handler until the subscription closes.
func (m *SubscriptionManager) forward(poolID string, events <-chan solana.AccountNotification) {
	defer m.wg.Done()
	for ev := range events {
		if m.fwdCtx.Err() != nil {
			continue
		}
		// Dispatch logs and counts its own failures.
		_, _ = m.handler.Dispatch(m.fwdCtx, poolID, ev.Slot)
	}
}

// Subscribed returns token -> pool id for every live subscription.
func (m *SubscriptionManager) Subscribed() map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]string, len(m.subs))
	for token, sub := range m.subs {
		out[token] = sub.poolID
	}
	return out
}

// Close cancels every subscription and waits for the forwarders to exit.
func (m *SubscriptionManager) Close() {
	m.fwdCancel()

	m.mu.Lock()
	for token, sub := range m.subs {
		if err := m.ws.Unsubscribe(context.Background(), sub.handle); err != nil {
			m.log.WithError(err).WithField("token", token).Debug("unsubscribe on close failed")
		}
		delete(m.subs, token)
	}
	m.mu.Unlock()

	m.wg.Wait()
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
