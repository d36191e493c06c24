package discovery

import (
	"encoding/base64"
	"encoding/binary"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"solana-snipe-engine/internal/domain"
	"solana-snipe-engine/internal/observability"
	"solana-snipe-engine/internal/raydium"
	sol "solana-snipe-engine/internal/solana"
	"solana-snipe-engine/internal/solana/stub"
	"solana-snipe-engine/internal/storage/memory"
)

func newKey() string {
	return solana.NewWallet().PublicKey().String()
}

// pdaKey returns a random off-curve address, the shape of a pool id.
func pdaKey(t *testing.T) string {
	t.Helper()
	seed := solana.NewWallet().PublicKey().Bytes()
	key, _, err := solana.FindProgramAddress([][]byte{seed}, solana.MustPublicKeyFromBase58(raydium.AmmV4ProgramID))
	if err != nil {
		t.Fatalf("FindProgramAddress: %v", err)
	}
	return key.String()
}

func putKey(t *testing.T, data []byte, offset int, key string) {
	t.Helper()
	raw, err := base58.Decode(key)
	if err != nil || len(raw) != 32 {
		t.Fatalf("bad key %q", key)
	}
	copy(data[offset:], raw)
}

type fixture struct {
	rpc      *stub.RPCClient
	ws       *stub.WSClient
	pools    *memory.PoolCache
	progress *memory.DiscoveryProgressStore
	metrics  *observability.Metrics
	scanner  *Scanner
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	f := &fixture{
		rpc:      stub.NewRPCClient(),
		ws:       stub.NewWSClient(),
		pools:    memory.NewPoolCache(),
		progress: memory.NewDiscoveryProgressStore(),
		metrics:  observability.NewMetrics("test", prometheus.NewRegistry()),
	}
	f.scanner = NewScanner(ScannerOptions{
		WS:         f.ws,
		RPC:        f.rpc,
		Pools:      f.pools,
		Progress:   f.progress,
		RetryDelay: time.Millisecond,
		Metrics:    f.metrics,
		Logger:     logger,
	})
	return f
}

type chainPool struct {
	id     string
	amm    raydium.AmmState
	market raydium.MarketState
	signer string
}

// addPool puts a (token, WSOL) pool account and its market on the stub chain.
func (f *fixture) addPool(t *testing.T, token string) *chainPool {
	t.Helper()
	p := &chainPool{
		id: pdaKey(t),
		amm: raydium.AmmState{
			BaseDecimals:    6,
			QuoteDecimals:   9,
			OpenTime:        1_700_000_000,
			BaseVault:       newKey(),
			QuoteVault:      newKey(),
			BaseMint:        token,
			QuoteMint:       domain.WSOLMint,
			LPMint:          newKey(),
			OpenOrders:      newKey(),
			MarketID:        newKey(),
			MarketProgramID: raydium.OpenBookProgramID,
			TargetOrders:    newKey(),
		},
		market: raydium.MarketState{
			BaseVault:  newKey(),
			QuoteVault: newKey(),
			EventQueue: newKey(),
			Bids:       newKey(),
			Asks:       newKey(),
		},
	}
	for nonce := uint64(0); nonce < 256; nonce++ {
		signer, err := raydium.VaultSigner(p.amm.MarketID, p.amm.MarketProgramID, nonce)
		if err == nil {
			p.market.VaultSignerNonce = nonce
			p.signer = signer
			break
		}
	}
	if p.signer == "" {
		t.Fatal("no vault signer nonce")
	}

	f.rpc.Accounts[p.id] = &sol.AccountInfo{Owner: raydium.AmmV4ProgramID, Data: encodeAmm(t, p.amm)}
	f.rpc.Accounts[p.amm.MarketID] = &sol.AccountInfo{Owner: raydium.OpenBookProgramID, Data: encodeMarket(t, p.market)}
	return p
}

// addInitTx scripts an initialize2 transaction touching keys plus a payer and the AMM program.
func (f *fixture) addInitTx(t *testing.T, signature string, slot int64, market string, keys ...string) {
	t.Helper()
	line, err := EncodeInitLog(InitLog{OpenTime: 1_700_000_000, PCDecimals: 9, CoinDecimals: 6, Market: market})
	if err != nil {
		t.Fatalf("EncodeInitLog: %v", err)
	}
	accounts := append([]string{newKey()}, keys...)
	accounts = append(accounts, raydium.AmmV4ProgramID, pdaKey(t))
	f.rpc.Transactions[signature] = &sol.Transaction{
		Slot:      slot,
		Signature: signature,
		Meta: &sol.TransactionMeta{LogMessages: []string{
			"Program " + raydium.AmmV4ProgramID + " invoke [1]",
			"Program log: initialize2: InitializeInstruction2 { nonce: 254, open_time: 1700000000 }",
			line,
			"Program " + raydium.AmmV4ProgramID + " success",
		}},
		Message: &sol.TransactionMessage{AccountKeys: accounts},
	}
}

func (f *fixture) addPlainTx(signature string, slot int64) {
	f.rpc.Transactions[signature] = &sol.Transaction{
		Slot:      slot,
		Signature: signature,
		Meta:      &sol.TransactionMeta{LogMessages: []string{"Program log: Instruction: SwapBaseIn"}},
		Message:   &sol.TransactionMessage{AccountKeys: []string{newKey(), raydium.AmmV4ProgramID}},
	}
}

// Offsets of the AMM v4 and market v3 layouts.
const (
	ammBaseDecimal  = 32
	ammQuoteDecimal = 40
	ammOpenTime     = 224
	ammBaseVault    = 336
	ammQuoteVault   = 368
	ammBaseMint     = 400
	ammQuoteMint    = 432
	ammLPMint       = 464
	ammOpenOrders   = 496
	ammMarketID     = 528
	ammMarketProg   = 560
	ammTargetOrders = 592

	marketNonce      = 45
	marketBaseVault  = 117
	marketQuoteVault = 165
	marketEventQueue = 253
	marketBids       = 285
	marketAsks       = 317
)

func encodeAmm(t *testing.T, amm raydium.AmmState) string {
	t.Helper()
	data := make([]byte, raydium.AmmStateSize)
	binary.LittleEndian.PutUint64(data[ammBaseDecimal:], uint64(amm.BaseDecimals))
	binary.LittleEndian.PutUint64(data[ammQuoteDecimal:], uint64(amm.QuoteDecimals))
	binary.LittleEndian.PutUint64(data[ammOpenTime:], uint64(amm.OpenTime))
	putKey(t, data, ammBaseVault, amm.BaseVault)
	putKey(t, data, ammQuoteVault, amm.QuoteVault)
	putKey(t, data, ammBaseMint, amm.BaseMint)
	putKey(t, data, ammQuoteMint, amm.QuoteMint)
	putKey(t, data, ammLPMint, amm.LPMint)
	putKey(t, data, ammOpenOrders, amm.OpenOrders)
	putKey(t, data, ammMarketID, amm.MarketID)
	putKey(t, data, ammMarketProg, amm.MarketProgramID)
	putKey(t, data, ammTargetOrders, amm.TargetOrders)
	return base64.StdEncoding.EncodeToString(data)
}

func encodeMarket(t *testing.T, m raydium.MarketState) string {
	t.Helper()
	data := make([]byte, raydium.MarketStateSize)
	copy(data, "serum")
	binary.LittleEndian.PutUint64(data[marketNonce:], m.VaultSignerNonce)
	putKey(t, data, marketBaseVault, m.BaseVault)
	putKey(t, data, marketQuoteVault, m.QuoteVault)
	putKey(t, data, marketEventQueue, m.EventQueue)
	putKey(t, data, marketBids, m.Bids)
	putKey(t, data, marketAsks, m.Asks)
	return base64.StdEncoding.EncodeToString(data)
}
