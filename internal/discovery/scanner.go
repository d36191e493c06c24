// Package discovery finds newly initialized Raydium AMM v4 pools and writes
// them to the pool cache so snipes on their tokens can resolve a pool.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mr-tron/base58"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"solana-snipe-engine/internal/domain"
	"solana-snipe-engine/internal/observability"
	"solana-snipe-engine/internal/raydium"
	"solana-snipe-engine/internal/solana"
	"solana-snipe-engine/internal/storage"
)

// Rejection reasons reported on the pools_rejected metric.
const (
	RejectTxUnavailable = "tx_unavailable"
	RejectNoPool        = "no_pool"
	RejectMarketMissing = "market_missing"
	RejectMarketInvalid = "market_invalid"
	RejectStoreError    = "store_error"
)

var errNotPool = errors.New("not an amm v4 pool")

// ScannerOptions configures a Scanner.
type ScannerOptions struct {
	WS    solana.WSClient
	RPC   solana.TxFetcher
	Pools storage.PoolWriter
	// Progress persists seen pools and the last processed signature. Optional.
	Progress storage.DiscoveryProgressStore

	MaxRetries int           // Default: 3 transaction fetch attempts
	RetryDelay time.Duration // Default: 500ms, doubled per attempt

	Metrics *observability.Metrics
	Logger  logrus.FieldLogger
}

// Scanner decodes pools from initialize transactions.
type Scanner struct {
	ws         solana.WSClient
	rpc        solana.TxFetcher
	pools      storage.PoolWriter
	progress   storage.DiscoveryProgressStore
	maxRetries int
	retryDelay time.Duration
	metrics    *observability.Metrics
	log        logrus.FieldLogger
	now        func() time.Time

	mu   sync.Mutex
	seen map[string]struct{}
}

// NewScanner creates a scanner.
func NewScanner(opts ScannerOptions) *Scanner {
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	retryDelay := opts.RetryDelay
	if retryDelay <= 0 {
		retryDelay = 500 * time.Millisecond
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = observability.NewMetrics("", prometheus.NewRegistry())
	}
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}

	return &Scanner{
		ws:         opts.WS,
		rpc:        opts.RPC,
		pools:      opts.Pools,
		progress:   opts.Progress,
		maxRetries: maxRetries,
		retryDelay: retryDelay,
		metrics:    metrics,
		log:        log.WithField("component", "discovery"),
		now:        time.Now,
		seen:       make(map[string]struct{}),
	}
}

// Warm loads previously seen pool ids from the progress store.
func (s *Scanner) Warm(ctx context.Context) (int, error) {
	if s.progress == nil {
		return 0, nil
	}
	ids, err := s.progress.LoadSeenPools(ctx)
	if err != nil {
		return 0, fmt.Errorf("load seen pools: %w", err)
	}
	s.mu.Lock()
	for _, id := range ids {
		s.seen[id] = struct{}{}
	}
	s.mu.Unlock()
	return len(ids), nil
}

// Run follows AMM v4 program logs until ctx is done or the subscription closes.
func (s *Scanner) Run(ctx context.Context) error {
	logs, err := s.ws.SubscribeLogs(ctx, solana.LogsFilter{Mentions: []string{raydium.AmmV4ProgramID}})
	if err != nil {
		return fmt.Errorf("subscribe amm logs: %w", err)
	}
	s.log.Info("following amm v4 logs")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case n, ok := <-logs:
			if !ok {
				return errors.New("amm logs subscription closed")
			}
			if _, err := s.HandleLogs(ctx, n); err != nil && ctx.Err() == nil {
				s.log.WithError(err).WithField("signature", n.Signature).Warn("initialize transaction not processed")
			}
		}
	}
}

// HandleLogs processes one logs notification and returns the pools it cached.
// Failed transactions and logs without a pool initialization are ignored.
func (s *Scanner) HandleLogs(ctx context.Context, n solana.LogNotification) ([]*domain.PoolRecord, error) {
	if n.Err != nil || !IsPoolInit(n.Logs) {
		return nil, nil
	}
	pools, err := s.ProcessSignature(ctx, n.Signature)
	if err != nil {
		return nil, err
	}
	s.saveProgress(ctx, n.Slot, n.Signature)
	return pools, nil
}

// ProcessSignature fetches an initialize transaction and caches the pools it created.
func (s *Scanner) ProcessSignature(ctx context.Context, signature string) ([]*domain.PoolRecord, error) {
	tx, err := s.fetchTransaction(ctx, signature)
	if err != nil {
		s.metrics.PoolsRejected.WithLabelValues(RejectTxUnavailable).Inc()
		return nil, err
	}
	return s.processTransaction(ctx, tx)
}

func (s *Scanner) processTransaction(ctx context.Context, tx *solana.Transaction) ([]*domain.PoolRecord, error) {
	if tx.Message == nil {
		s.metrics.PoolsRejected.WithLabelValues(RejectTxUnavailable).Inc()
		return nil, fmt.Errorf("transaction %s: no message", tx.Signature)
	}

	log := s.log.WithFields(logrus.Fields{"signature": tx.Signature, "slot": tx.Slot})
	if tx.Meta != nil {
		if init, ok := ParseInitLog(tx.Meta.LogMessages); ok {
			log = log.WithFields(logrus.Fields{"market": init.Market, "open_time": init.OpenTime})
		}
	}

	var (
		found   []*domain.PoolRecord
		already int
	)
	for _, key := range candidateKeys(tx.Message.AccountKeys) {
		if s.isSeen(ctx, key) {
			already++
			continue
		}
		rec, err := s.LoadPool(ctx, key, tx.Slot)
		if errors.Is(err, errNotPool) {
			continue
		}
		if err != nil {
			log.WithError(err).WithField("pool", key).Warn("pool rejected")
			continue
		}
		if err := s.pools.Put(ctx, rec); err != nil {
			s.metrics.PoolsRejected.WithLabelValues(RejectStoreError).Inc()
			return found, fmt.Errorf("cache pool %s: %w", key, err)
		}
		s.markSeen(ctx, key, tx.Slot)
		s.metrics.PoolsDiscovered.Inc()
		log.WithFields(logrus.Fields{
			"pool":       rec.ID,
			"base_mint":  rec.BaseMint,
			"quote_mint": rec.QuoteMint,
		}).Info("pool discovered")
		found = append(found, rec)
	}

	if len(found) == 0 && already == 0 {
		s.metrics.PoolsRejected.WithLabelValues(RejectNoPool).Inc()
		log.Debug("initialize transaction without a decodable pool")
	}
	return found, nil
}

// LoadPool reads a pool account and its market and builds the cache record.
// It returns an error wrapping errNotPool when the account is not an AMM v4 pool.
func (s *Scanner) LoadPool(ctx context.Context, poolID string, slot int64) (*domain.PoolRecord, error) {
	info, err := s.rpc.GetAccountInfo(ctx, poolID)
	if err != nil {
		return nil, fmt.Errorf("get pool account %s: %w", poolID, err)
	}
	if info == nil || info.Owner != raydium.AmmV4ProgramID {
		return nil, errNotPool
	}
	data, err := info.DecodeData()
	if err != nil || len(data) != raydium.AmmStateSize {
		return nil, errNotPool
	}
	amm, err := raydium.DecodeAmmState(data)
	if err != nil {
		return nil, errNotPool
	}

	marketInfo, err := s.rpc.GetAccountInfo(ctx, amm.MarketID)
	if err != nil {
		return nil, fmt.Errorf("get market account %s: %w", amm.MarketID, err)
	}
	if marketInfo == nil {
		s.metrics.PoolsRejected.WithLabelValues(RejectMarketMissing).Inc()
		return nil, fmt.Errorf("market %s not found", amm.MarketID)
	}
	marketData, err := marketInfo.DecodeData()
	if err != nil {
		s.metrics.PoolsRejected.WithLabelValues(RejectMarketInvalid).Inc()
		return nil, err
	}
	market, err := raydium.DecodeMarketState(marketData)
	if err != nil {
		s.metrics.PoolsRejected.WithLabelValues(RejectMarketInvalid).Inc()
		return nil, err
	}
	signer, err := raydium.VaultSigner(amm.MarketID, amm.MarketProgramID, market.VaultSignerNonce)
	if err != nil {
		s.metrics.PoolsRejected.WithLabelValues(RejectMarketInvalid).Inc()
		return nil, err
	}

	rec := raydium.NewPoolRecord(poolID, amm, market, signer)
	rec.Slot = slot
	rec.UpdatedAt = s.now().UnixMilli()
	return rec, nil
}

// fetchTransaction retries while the transaction is not yet visible to the node.
func (s *Scanner) fetchTransaction(ctx context.Context, signature string) (*solana.Transaction, error) {
	var lastErr error
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		tx, err := s.rpc.GetTransaction(ctx, signature)
		if err == nil && tx != nil {
			return tx, nil
		}
		lastErr = err
		if lastErr == nil {
			lastErr = fmt.Errorf("transaction %s not found", signature)
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if attempt == s.maxRetries-1 {
			break
		}

		delay := s.retryDelay * time.Duration(1<<attempt)
		s.log.WithFields(logrus.Fields{
			"signature": signature,
			"attempt":   attempt + 1,
			"delay":     delay,
		}).WithError(lastErr).Debug("retrying getTransaction")

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("get transaction %s: %w", signature, lastErr)
}

func (s *Scanner) isSeen(ctx context.Context, poolID string) bool {
	s.mu.Lock()
	_, ok := s.seen[poolID]
	s.mu.Unlock()
	if ok || s.progress == nil {
		return ok
	}
	seen, err := s.progress.IsPoolSeen(ctx, poolID)
	if err != nil {
		return false
	}
	if seen {
		s.mu.Lock()
		s.seen[poolID] = struct{}{}
		s.mu.Unlock()
	}
	return seen
}

func (s *Scanner) markSeen(ctx context.Context, poolID string, slot int64) {
	s.mu.Lock()
	s.seen[poolID] = struct{}{}
	s.mu.Unlock()
	if s.progress == nil {
		return
	}
	if err := s.progress.MarkPoolSeen(ctx, poolID, uint64(max(slot, 0))); err != nil {
		s.log.WithError(err).WithField("pool", poolID).Warn("mark pool seen")
	}
}

// saveProgress records a processed signature. Live logs and a backfill can
// finish out of order; the store keeps the newest slot.
func (s *Scanner) saveProgress(ctx context.Context, slot int64, signature string) {
	if s.progress == nil || slot < 0 {
		return
	}
	p := &storage.DiscoveryProgress{Slot: uint64(slot), Signature: signature}
	if _, err := s.progress.Advance(ctx, p); err != nil {
		s.log.WithError(err).Warn("save discovery progress")
	}
}

// candidateKeys returns the distinct off-curve keys of a transaction.
// Pool ids are program derived, so wallets and mints created from keypairs drop out.
func candidateKeys(keys []string) []string {
	out := make([]string, 0, len(keys))
	dedup := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		if _, ok := dedup[key]; ok || key == raydium.AmmV4ProgramID {
			continue
		}
		dedup[key] = struct{}{}
		raw, err := base58.Decode(key)
		if err != nil || len(raw) != 32 || raydium.IsOnCurve(raw) {
			continue
		}
		out = append(out, key)
	}
	return out
}
