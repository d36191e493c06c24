package snipe

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"solana-snipe-engine/internal/domain"
	"solana-snipe-engine/internal/idhash"
	"solana-snipe-engine/internal/notify"
	"solana-snipe-engine/internal/observability"
	"solana-snipe-engine/internal/raydium"
	"solana-snipe-engine/internal/solana"
	"solana-snipe-engine/internal/storage"
	"solana-snipe-engine/internal/wallet"
)

// nativeDecimals is the decimal count of SOL and WSOL.
const nativeDecimals = 9

// Check results reported by HandleCheck.
const (
	CheckPoolMissing = "pool_missing"
	CheckUntradable  = "untradable"
	CheckNoOrders    = "no_orders"
	CheckMatched     = "matched"
	CheckStoreError  = "store_error"
)

// ExecutorOptions configures an Executor.
type ExecutorOptions struct {
	Shard   int
	Orders  storage.OrderStore
	Guards  storage.GuardStore
	Pools   storage.PoolCache
	RPC     solana.RPCClient
	Wallets wallet.Provider
	Notify  notify.Sink
	Journal storage.AttemptJournal // optional

	// Bundles, when set, submits multi-wallet orders as one bundle with a tip.
	Bundles     solana.BundleSender
	TipAccount  string
	TipLamports uint64

	SimulateTimeout   time.Duration // Default: 3s
	SendTimeout       time.Duration // Default: 5s
	BlockDelayTimeout time.Duration // Default: 15s
	SlotPollInterval  time.Duration // Default: 200ms

	// GuardOwner identifies this executor in guard rows and must be unique across
	// processes. Default: "shard-<n>/<random uuid>".
	GuardOwner string

	Metrics *observability.Metrics
	Logger  logrus.FieldLogger
}

// Executor matches checks against pending orders and executes them under a guard.
type Executor struct {
	shard   int
	orders  storage.OrderStore
	guards  storage.GuardStore
	pools   storage.PoolCache
	rpc     solana.RPCClient
	wallets wallet.Provider
	notify  notify.Sink
	journal storage.AttemptJournal

	bundles     solana.BundleSender
	tip         *raydium.Tip
	simTimeout  time.Duration
	sendTimeout time.Duration
	delayLimit  time.Duration
	slotPoll    time.Duration
	owner       string

	metrics *observability.Metrics
	log     logrus.FieldLogger
	now     func() time.Time
}

// NewExecutor creates an executor. It fails if the tip account is malformed.
func NewExecutor(opts ExecutorOptions) (*Executor, error) {
	e := &Executor{
		shard:       opts.Shard,
		orders:      opts.Orders,
		guards:      opts.Guards,
		pools:       opts.Pools,
		rpc:         opts.RPC,
		wallets:     opts.Wallets,
		notify:      opts.Notify,
		journal:     opts.Journal,
		bundles:     opts.Bundles,
		simTimeout:  durationOr(opts.SimulateTimeout, 3*time.Second),
		sendTimeout: durationOr(opts.SendTimeout, 5*time.Second),
		delayLimit:  durationOr(opts.BlockDelayTimeout, 15*time.Second),
		slotPoll:    durationOr(opts.SlotPollInterval, 200*time.Millisecond),
		owner:       opts.GuardOwner,
		metrics:     metricsOrDefault(opts.Metrics),
		log:         loggerOrDefault(opts.Logger).WithFields(logrus.Fields{"component": "executor", "shard": opts.Shard}),
		now:         time.Now,
	}
	if e.owner == "" {
		e.owner = fmt.Sprintf("shard-%d/%s", opts.Shard, uuid.NewString())
	}
	if e.notify == nil {
		e.notify = notify.NewLogSink(e.log)
	}
	if opts.TipAccount != "" && opts.TipLamports > 0 {
		account, err := solanago.PublicKeyFromBase58(opts.TipAccount)
		if err != nil {
			return nil, fmt.Errorf("tip account: %w", err)
		}
		e.tip = &raydium.Tip{Account: account, Lamports: opts.TipLamports}
	}
	return e, nil
}

// HandleCheck re-reads the pool and its matching orders and attempts every order
// concurrently. Each order is isolated: one failure never affects its siblings.
// It returns the check result and an error only when the order query failed.
func (e *Executor) HandleCheck(ctx context.Context, poolID string, slot int64) (string, error) {
	started := e.now()
	log := e.log.WithFields(logrus.Fields{"pool_id": poolID, "slot": slot})

	pool, err := e.pools.Get(ctx, poolID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			log.Info("pool not cached yet")
		} else {
			log.WithError(err).Warn("pool lookup failed")
		}
		e.metrics.Checks.WithLabelValues(CheckPoolMissing).Inc()
		return CheckPoolMissing, nil
	}

	token, ok := pool.TradableToken()
	if !ok {
		log.Debug("pool has no tradable token")
		e.metrics.Checks.WithLabelValues(CheckUntradable).Inc()
		return CheckUntradable, nil
	}

	orders, err := e.orders.FindActiveOrders(ctx, token)
	if err != nil {
		e.metrics.Checks.WithLabelValues(CheckStoreError).Inc()
		return CheckStoreError, fmt.Errorf("find active orders for %s: %w", token, err)
	}
	if len(orders) == 0 {
		e.metrics.Checks.WithLabelValues(CheckNoOrders).Inc()
		return CheckNoOrders, nil
	}

	e.metrics.Checks.WithLabelValues(CheckMatched).Inc()
	log.WithFields(logrus.Fields{"token": token, "orders": len(orders)}).Info("orders matched")

	var wg sync.WaitGroup
	for _, o := range orders {
		wg.Add(1)
		go func(o *domain.SnipeOrder) {
			defer wg.Done()
			e.attempt(ctx, pool, o, slot, started)
		}(o)
	}
	wg.Wait()
	return CheckMatched, nil
}

// ErrGuardRelease wraps a failed guard release reported by WithGuard.
var ErrGuardRelease = errors.New("release guard")

// WithGuard runs fn while holding the guard of orderID. It reports false without
// calling fn when another attempt holds the guard. The guard is released on every
// path, with a context that outlives ctx, and only while owner still holds it.
func WithGuard(ctx context.Context, guards storage.GuardStore, orderID, owner string, fn func(context.Context) error) (acquired bool, err error) {
	ok, err := guards.TryAcquire(ctx, orderID, owner)
	if err != nil {
		return false, fmt.Errorf("acquire guard %s: %w", orderID, err)
	}
	if !ok {
		return false, nil
	}

	defer func() {
		if rerr := guards.Release(context.Background(), orderID, owner); rerr != nil && err == nil {
			err = fmt.Errorf("%w %s: %w", ErrGuardRelease, orderID, rerr)
		}
	}()
	return true, fn(ctx)
}

// attempt is the guarded execution of one order.
func (e *Executor) attempt(ctx context.Context, pool *domain.PoolRecord, o *domain.SnipeOrder, slot int64, started time.Time) {
	log := e.log.WithFields(logrus.Fields{"order_id": o.ID, "pool_id": pool.ID, "token": o.Token, "slot": slot})

	var res attemptResult
	acquired, err := WithGuard(ctx, e.guards, o.ID, e.owner, func(ctx context.Context) error {
		res = e.execute(ctx, log, pool, o, slot)
		return nil
	})
	if err != nil {
		if !acquired {
			log.WithError(err).Error("guard failed")
			return
		}
		// The guard row stays until its ttl lapses and blocks retries of this order.
		e.metrics.GuardReleaseFailures.Inc()
		log.WithError(err).Error("guard release failed")
	}
	if !acquired {
		e.metrics.GuardContention.Inc()
		log.Debug("order guarded by another attempt")
		res = attemptResult{outcome: domain.OutcomeGuarded}
	}

	latency := e.now().Sub(started)
	e.metrics.RecordAttempt(string(res.outcome), latency)
	e.record(ctx, pool, o, slot, started, latency, res)
}

type attemptResult struct {
	outcome   domain.AttemptOutcome
	signature string
	err       error
}

// execute re-reads the order and, if it is still pending, builds, simulates and
// submits its buy. The move to processing is a conditional claim, so an order
// already taken by another attempt is skipped rather than sent again. The order
// ends in processing after a successful submission and in error otherwise.
func (e *Executor) execute(ctx context.Context, log logrus.FieldLogger, pool *domain.PoolRecord, o *domain.SnipeOrder, slot int64) attemptResult {
	current, err := e.orders.Get(ctx, o.ID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			log.Info("order removed before execution")
			return attemptResult{outcome: domain.OutcomeSkipped}
		}
		log.WithError(err).Warn("order re-read failed")
		return attemptResult{outcome: domain.OutcomeSkipped, err: fmt.Errorf("re-read order: %w", err)}
	}
	if current.State != domain.OrderPending || current.Params.Disabled {
		log.WithFields(logrus.Fields{"state": current.State, "disabled": current.Params.Disabled}).Info("order no longer pending")
		return attemptResult{outcome: domain.OutcomeSkipped}
	}
	o = current

	if o.Params.BlockDelay > 0 {
		if err := e.waitForSlot(ctx, slot+int64(o.Params.BlockDelay)); err != nil {
			return e.fail(ctx, log, o, domain.OrderPending, domain.OutcomeSimulateFailed, err)
		}
	}

	txs, err := e.buildTransactions(ctx, pool, o)
	if err != nil {
		return e.fail(ctx, log, o, domain.OrderPending, domain.OutcomeSimulateFailed, err)
	}

	if err := e.simulate(ctx, txs[0]); err != nil {
		return e.fail(ctx, log, o, domain.OrderPending, domain.OutcomeSimulateFailed, err)
	}

	claimed, err := e.orders.Transition(persistCtx(ctx), o.ID, domain.OrderPending, domain.OrderProcessing, "")
	if err != nil {
		return e.fail(ctx, log, o, domain.OrderPending, domain.OutcomeSendFailed, fmt.Errorf("claim order: %w", err))
	}
	if !claimed {
		log.Info("order claimed by another attempt")
		return attemptResult{outcome: domain.OutcomeSkipped}
	}

	sig, err := e.submit(ctx, txs)
	if err != nil {
		return e.fail(ctx, log, o, domain.OrderProcessing, domain.OutcomeSendFailed, err)
	}

	log.WithField("signature", sig).Info("snipe submitted")
	return attemptResult{outcome: domain.OutcomeSent, signature: sig}
}

// fail moves the order from state from to error and tells its owner. An order
// that meanwhile left from belongs to another attempt and is left untouched.
func (e *Executor) fail(ctx context.Context, log logrus.FieldLogger, o *domain.SnipeOrder, from domain.OrderState, outcome domain.AttemptOutcome, cause error) attemptResult {
	log = log.WithField("outcome", outcome)
	log.WithError(cause).Warn("snipe failed")

	moved, err := e.orders.Transition(persistCtx(ctx), o.ID, from, domain.OrderError, cause.Error())
	switch {
	case errors.Is(err, storage.ErrNotFound):
		log.Info("order removed during the attempt")
		return attemptResult{outcome: outcome, err: cause}
	case err != nil:
		log.WithError(err).Error("mark order error failed")
	case !moved:
		log.WithField("expected_state", from).Warn("order changed state during the attempt, leaving it")
		return attemptResult{outcome: outcome, err: cause}
	}
	e.notify.Notify(persistCtx(ctx), o.UserID, notify.FailureMessage(o.Token))
	return attemptResult{outcome: outcome, err: cause}
}

// waitForSlot polls the chain until it reaches target or the delay limit passes.
func (e *Executor) waitForSlot(ctx context.Context, target int64) error {
	ctx, cancel := context.WithTimeout(ctx, e.delayLimit)
	defer cancel()

	ticker := time.NewTicker(e.slotPoll)
	defer ticker.Stop()

	for {
		current, err := e.rpc.GetSlot(ctx)
		if err == nil && current >= target {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("wait for slot %d: %w", target, ctx.Err())
		case <-ticker.C:
		}
	}
}

// buildTransactions returns signed wire transactions, primary wallet first.
// Multi-wallet orders get one transaction per wallet.
func (e *Executor) buildTransactions(ctx context.Context, pool *domain.PoolRecord, o *domain.SnipeOrder) ([][]byte, error) {
	keys, err := e.wallets.Wallets(ctx, o.UserID)
	if err != nil {
		return nil, fmt.Errorf("wallets: %w", err)
	}
	if !o.Params.MultiWallet {
		keys = keys[:1]
	}

	buy, err := e.quote(ctx, pool, o)
	if err != nil {
		return nil, err
	}

	bh, err := e.rpc.GetLatestBlockhash(ctx)
	if err != nil {
		return nil, fmt.Errorf("latest blockhash: %w", err)
	}

	bundled := e.useBundle(len(keys))
	txs := make([][]byte, 0, len(keys))
	for i, key := range keys {
		p := buy
		p.Owner = key.PublicKey()
		if bundled && i == len(keys)-1 {
			p.Tip = e.tip
		}

		instrs, err := raydium.BuildBuyInstructions(p)
		if err != nil {
			return nil, err
		}
		tx, err := raydium.BuildTransaction(instrs, p.Owner, bh.Blockhash)
		if err != nil {
			return nil, err
		}
		if err := raydium.SignTransaction(tx, key); err != nil {
			return nil, err
		}
		wire, err := tx.MarshalBinary()
		if err != nil {
			return nil, fmt.Errorf("serialize transaction: %w", err)
		}
		txs = append(txs, wire)
	}
	return txs, nil
}

// quote prices the buy against the current vault balances.
func (e *Executor) quote(ctx context.Context, pool *domain.PoolRecord, o *domain.SnipeOrder) (raydium.BuyParams, error) {
	token, _ := pool.TradableToken()
	reserveNative, err := e.vaultBalance(ctx, pool.NativeVault())
	if err != nil {
		return raydium.BuyParams{}, err
	}
	reserveToken, err := e.vaultBalance(ctx, pool.TokenVault(token))
	if err != nil {
		return raydium.BuyParams{}, err
	}

	p := raydium.BuyParams{
		Pool:             pool,
		ComputeUnitLimit: o.Params.ComputeUnitLimit,
		ComputeUnitPrice: o.Params.ComputeUnitPrice,
	}

	switch o.Params.AmountMode {
	case domain.AmountToken:
		tokenDecimals := pool.QuoteDecimals
		if pool.TokenIsBase() {
			tokenDecimals = pool.BaseDecimals
		}
		out := raydium.ToRaw(o.Params.Amount, tokenDecimals)
		in, err := raydium.QuoteIn(reserveNative, reserveToken, out)
		if err != nil {
			return p, fmt.Errorf("quote: %w", err)
		}
		p.ExactOut = true
		if p.AmountIn, err = raydium.ToUint64(raydium.MaxAmountIn(in, o.Params.SlippageBps)); err != nil {
			return p, err
		}
		if p.AmountOut, err = raydium.ToUint64(out); err != nil {
			return p, err
		}
	default:
		in := raydium.ToRaw(o.Params.Amount, nativeDecimals)
		out, err := raydium.Quote(reserveNative, reserveToken, in)
		if err != nil {
			return p, fmt.Errorf("quote: %w", err)
		}
		if p.AmountIn, err = raydium.ToUint64(in); err != nil {
			return p, err
		}
		if p.AmountOut, err = raydium.ToUint64(raydium.MinAmountOut(out, o.Params.SlippageBps)); err != nil {
			return p, err
		}
	}
	return p, nil
}

func (e *Executor) vaultBalance(ctx context.Context, vault string) (decimal.Decimal, error) {
	bal, err := e.rpc.GetTokenAccountBalance(ctx, vault)
	if err != nil {
		return decimal.Zero, fmt.Errorf("vault %s balance: %w", vault, err)
	}
	amount, err := decimal.NewFromString(bal.Amount)
	if err != nil {
		return decimal.Zero, fmt.Errorf("vault %s balance %q: %w", vault, bal.Amount, err)
	}
	return amount, nil
}

func (e *Executor) simulate(ctx context.Context, tx []byte) error {
	ctx, cancel := context.WithTimeout(ctx, e.simTimeout)
	defer cancel()

	res, err := e.rpc.SimulateTransaction(ctx, base64.StdEncoding.EncodeToString(tx))
	if err != nil {
		return fmt.Errorf("simulate: %w", err)
	}
	if res.Failed() {
		return fmt.Errorf("simulate: %s", res.Reason())
	}
	return nil
}

// submit sends txs as a bundle when configured, else one by one. It succeeds
// if at least one transaction was accepted.
func (e *Executor) submit(ctx context.Context, txs [][]byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.sendTimeout)
	defer cancel()

	if e.useBundle(len(txs)) {
		id, err := e.bundles.SendBundle(ctx, txs)
		if err != nil {
			return "", fmt.Errorf("send bundle: %w", err)
		}
		return id, nil
	}

	var sigs []string
	var firstErr error
	for _, tx := range txs {
		sig, err := e.rpc.SendTransaction(ctx, base64.StdEncoding.EncodeToString(tx))
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		sigs = append(sigs, sig)
	}
	if len(sigs) == 0 {
		return "", fmt.Errorf("send transaction: %w", firstErr)
	}
	if firstErr != nil {
		e.log.WithError(firstErr).WithField("sent", len(sigs)).Warn("some wallet transactions were rejected")
	}
	return strings.Join(sigs, ","), nil
}

func (e *Executor) useBundle(n int) bool {
	return e.bundles != nil && n > 1 && n <= solana.MaxBundleSize
}

func (e *Executor) record(ctx context.Context, pool *domain.PoolRecord, o *domain.SnipeOrder, slot int64, started time.Time, latency time.Duration, res attemptResult) {
	if e.journal == nil {
		return
	}
	a := &domain.SnipeAttempt{
		AttemptID: idhash.ComputeAttemptID(o.ID, pool.ID, slot, started.UnixMilli()),
		OrderID:   o.ID,
		UserID:    o.UserID,
		Token:     o.Token,
		PoolID:    pool.ID,
		Slot:      slot,
		Shard:     e.shard,
		Outcome:   res.outcome,
		Signature: res.signature,
		LatencyMs: latency.Milliseconds(),
		Timestamp: e.now().UnixMilli(),
	}
	if res.err != nil {
		a.Error = res.err.Error()
	}
	if err := e.journal.Record(persistCtx(ctx), a); err != nil {
		e.log.WithError(err).WithField("order_id", o.ID).Warn("journal attempt failed")
	}
}

// persistCtx keeps state writes alive when the check's context is cancelled mid attempt.
func persistCtx(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}

func durationOr(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
