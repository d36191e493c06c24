package raydium

import (
	"encoding/binary"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"

	"solana-snipe-engine/internal/domain"
)

func newKey() string {
	return solana.NewWallet().PublicKey().String()
}

func putKey(t *testing.T, data []byte, offset int, key string) {
	t.Helper()
	raw, err := base58.Decode(key)
	if err != nil || len(raw) != 32 {
		t.Fatalf("bad key %q", key)
	}
	copy(data[offset:], raw)
}

// ammFixture encodes amm into a pool account buffer.
func ammFixture(t *testing.T, amm AmmState) []byte {
	t.Helper()
	data := make([]byte, AmmStateSize)
	binary.LittleEndian.PutUint64(data[ammBaseDecimalOffset:], uint64(amm.BaseDecimals))
	binary.LittleEndian.PutUint64(data[ammQuoteDecimalOffset:], uint64(amm.QuoteDecimals))
	binary.LittleEndian.PutUint64(data[ammOpenTimeOffset:], uint64(amm.OpenTime))
	putKey(t, data, ammBaseVaultOffset, amm.BaseVault)
	putKey(t, data, ammQuoteVaultOffset, amm.QuoteVault)
	putKey(t, data, ammBaseMintOffset, amm.BaseMint)
	putKey(t, data, ammQuoteMintOffset, amm.QuoteMint)
	putKey(t, data, ammLPMintOffset, amm.LPMint)
	putKey(t, data, ammOpenOrdersOffset, amm.OpenOrders)
	putKey(t, data, ammMarketIDOffset, amm.MarketID)
	putKey(t, data, ammMarketProgOffset, amm.MarketProgramID)
	putKey(t, data, ammTargetOrdersOffset, amm.TargetOrders)
	return data
}

func marketFixture(t *testing.T, m MarketState) []byte {
	t.Helper()
	data := make([]byte, MarketStateSize)
	copy(data, "serum")
	binary.LittleEndian.PutUint64(data[marketVaultSignerNonceOffset:], m.VaultSignerNonce)
	putKey(t, data, marketBaseVaultOffset, m.BaseVault)
	putKey(t, data, marketQuoteVaultOffset, m.QuoteVault)
	putKey(t, data, marketEventQueueOffset, m.EventQueue)
	putKey(t, data, marketBidsOffset, m.Bids)
	putKey(t, data, marketAsksOffset, m.Asks)
	return data
}

// testPool returns a fully populated (token, WSOL) pool.
func testPool(token string) *domain.PoolRecord {
	return &domain.PoolRecord{
		ID:                newKey(),
		ProgramID:         AmmV4ProgramID,
		BaseMint:          token,
		QuoteMint:         domain.WSOLMint,
		BaseDecimals:      6,
		QuoteDecimals:     9,
		BaseVault:         newKey(),
		QuoteVault:        newKey(),
		LPMint:            newKey(),
		Authority:         AmmAuthority,
		OpenOrders:        newKey(),
		TargetOrders:      newKey(),
		MarketProgramID:   OpenBookProgramID,
		MarketID:          newKey(),
		MarketBids:        newKey(),
		MarketAsks:        newKey(),
		MarketEventQueue:  newKey(),
		MarketBaseVault:   newKey(),
		MarketQuoteVault:  newKey(),
		MarketVaultSigner: newKey(),
	}
}
