package snipe

import (
	"context"
	"encoding/binary"
	"io"
	"sync"
	"testing"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"solana-snipe-engine/internal/domain"
	"solana-snipe-engine/internal/observability"
	"solana-snipe-engine/internal/raydium"
	"solana-snipe-engine/internal/solana/stub"
	"solana-snipe-engine/internal/storage/memory"
	"solana-snipe-engine/internal/wallet"
)

const (
	testUser = int64(42)

	// Pool reserves: 100 SOL against 1,000,000 tokens of 6 decimals.
	nativeReserve = "100000000000"
	tokenReserve  = "1000000000000"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newKey() string {
	return solanago.NewWallet().PublicKey().String()
}

// notification is one message delivered to recordingSink.
type notification struct {
	userID  int64
	message string
}

type recordingSink struct {
	mu   sync.Mutex
	sent []notification
}

func (s *recordingSink) Notify(_ context.Context, userID int64, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, notification{userID: userID, message: message})
}

func (s *recordingSink) Sent() []notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]notification(nil), s.sent...)
}

// harness wires an Executor to in-memory stores and a stub chain.
type harness struct {
	orders  *memory.OrderStore
	guards  *memory.GuardStore
	pools   *memory.PoolCache
	journal *memory.AttemptJournal
	rpc     *stub.RPCClient
	bundles *stub.BundleSender
	sink    *recordingSink
	wallets wallet.Static
	metrics *observability.Metrics
	exec    *Executor
}

type harnessOption func(*harness, *ExecutorOptions)

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()

	h := &harness{
		orders:  memory.NewOrderStore(),
		guards:  memory.NewGuardStore(30 * time.Second),
		pools:   memory.NewPoolCache(),
		journal: memory.NewAttemptJournal(),
		rpc:     stub.NewRPCClient(),
		bundles: &stub.BundleSender{},
		sink:    &recordingSink{},
		wallets: wallet.Static{testUser: {solanago.NewWallet().PrivateKey}},
		metrics: observability.NewMetrics("test", prometheus.NewRegistry()),
	}

	eo := ExecutorOptions{
		Shard:            0,
		Orders:           h.orders,
		Guards:           h.guards,
		Pools:            h.pools,
		RPC:              h.rpc,
		Wallets:          h.wallets,
		Notify:           h.sink,
		Journal:          h.journal,
		SimulateTimeout:  200 * time.Millisecond,
		SendTimeout:      200 * time.Millisecond,
		SlotPollInterval: 5 * time.Millisecond,
		Metrics:          h.metrics,
		Logger:           quietLogger(),
	}
	for _, o := range opts {
		o(h, &eo)
	}

	exec, err := NewExecutor(eo)
	require.NoError(t, err)
	h.exec = exec
	return h
}

// addPool caches a (token, WSOL) pool and scripts its vault balances.
func (h *harness) addPool(t *testing.T, token string) *domain.PoolRecord {
	t.Helper()
	pool := &domain.PoolRecord{
		ID:                newKey(),
		ProgramID:         raydium.AmmV4ProgramID,
		BaseMint:          token,
		QuoteMint:         domain.WSOLMint,
		BaseDecimals:      6,
		QuoteDecimals:     9,
		BaseVault:         newKey(),
		QuoteVault:        newKey(),
		LPMint:            newKey(),
		Authority:         raydium.AmmAuthority,
		OpenOrders:        newKey(),
		TargetOrders:      newKey(),
		MarketProgramID:   raydium.OpenBookProgramID,
		MarketID:          newKey(),
		MarketBids:        newKey(),
		MarketAsks:        newKey(),
		MarketEventQueue:  newKey(),
		MarketBaseVault:   newKey(),
		MarketQuoteVault:  newKey(),
		MarketVaultSigner: newKey(),
	}
	require.NoError(t, h.pools.Put(context.Background(), pool))
	h.rpc.SetBalance(pool.BaseVault, tokenReserve, 6)
	h.rpc.SetBalance(pool.QuoteVault, nativeReserve, 9)
	return pool
}

func defaultParams() domain.SnipeParams {
	return domain.SnipeParams{
		AmountMode:       domain.AmountNative,
		Amount:           decimal.NewFromInt(1),
		SlippageBps:      100,
		ComputeUnitLimit: 200_000,
		ComputeUnitPrice: 10_000,
	}
}

func (h *harness) addOrder(t *testing.T, id string, userID int64, token string, params domain.SnipeParams) {
	t.Helper()
	require.NoError(t, h.orders.Insert(context.Background(), &domain.SnipeOrder{
		ID:        id,
		UserID:    userID,
		Token:     token,
		State:     domain.OrderPending,
		Params:    params,
		CreatedAt: 1704067200000,
	}))
}

func (h *harness) state(t *testing.T, orderID string) domain.OrderState {
	t.Helper()
	o, err := h.orders.Get(context.Background(), orderID)
	require.NoError(t, err)
	return o.State
}

// swapData decodes a base64 wire transaction and returns the AMM swap instruction data.
func swapData(t *testing.T, txBase64 string) []byte {
	t.Helper()
	tx, err := solanago.TransactionFromBase64(txBase64)
	require.NoError(t, err)

	amm := solanago.MustPublicKeyFromBase58(raydium.AmmV4ProgramID)
	for _, in := range tx.Message.Instructions {
		if tx.Message.AccountKeys[in.ProgramIDIndex].Equals(amm) {
			return []byte(in.Data)
		}
	}
	t.Fatal("transaction has no swap instruction")
	return nil
}

func hasKey(keys solanago.PublicKeySlice, key solanago.PublicKey) bool {
	for _, k := range keys {
		if k.Equals(key) {
			return true
		}
	}
	return false
}

func swapAmounts(data []byte) (disc byte, first, second uint64) {
	return data[0], binary.LittleEndian.Uint64(data[1:9]), binary.LittleEndian.Uint64(data[9:17])
}
