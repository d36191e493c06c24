package raydium

import (
	"encoding/binary"
	"fmt"

	"github.com/mr-tron/base58"

	"solana-snipe-engine/internal/domain"
)

// Program addresses.
const (
	// AmmV4ProgramID is the Raydium AMM v4 program.
	AmmV4ProgramID = "675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8"
	// AmmAuthority is the AMM v4 pool authority PDA shared by every pool.
	AmmAuthority = "5Q544fKrFoe6tsEbD7S8EmxGTJYAKtTVhAW5Q5pge4j1"
	// OpenBookProgramID is the default market program of new AMM v4 pools.
	OpenBookProgramID = "srmqPvymJeFKQ4zGQed1GFppgkRHL9kaELCbyksJtPX"
)

// AmmStateSize is the data length of an AMM v4 pool state account.
const AmmStateSize = 752

// MarketStateSize is the minimum data length of a Serum/OpenBook v3 market account.
const MarketStateSize = 388

// AMM v4 LiquidityStateV4 offsets.
const (
	ammBaseDecimalOffset  = 32
	ammQuoteDecimalOffset = 40
	ammOpenTimeOffset     = 224
	ammBaseVaultOffset    = 336
	ammQuoteVaultOffset   = 368
	ammBaseMintOffset     = 400
	ammQuoteMintOffset    = 432
	ammLPMintOffset       = 464
	ammOpenOrdersOffset   = 496
	ammMarketIDOffset     = 528
	ammMarketProgOffset   = 560
	ammTargetOrdersOffset = 592
)

// Market v3 offsets, including the 5 byte "serum" head padding.
const (
	marketVaultSignerNonceOffset = 45
	marketBaseVaultOffset        = 117
	marketQuoteVaultOffset       = 165
	marketEventQueueOffset       = 253
	marketBidsOffset             = 285
	marketAsksOffset             = 317
)

// AmmState is the subset of an AMM v4 pool account needed to trade against it.
type AmmState struct {
	BaseDecimals    uint8
	QuoteDecimals   uint8
	OpenTime        int64
	BaseVault       string
	QuoteVault      string
	BaseMint        string
	QuoteMint       string
	LPMint          string
	OpenOrders      string
	MarketID        string
	MarketProgramID string
	TargetOrders    string
}

// MarketState is the subset of a market account needed by swap instructions.
type MarketState struct {
	VaultSignerNonce uint64
	BaseVault        string
	QuoteVault       string
	EventQueue       string
	Bids             string
	Asks             string
}

// DecodeAmmState decodes AMM v4 pool account data.
func DecodeAmmState(data []byte) (*AmmState, error) {
	if len(data) != AmmStateSize {
		return nil, fmt.Errorf("amm state: expected %d bytes, got %d", AmmStateSize, len(data))
	}
	return &AmmState{
		BaseDecimals:    uint8(binary.LittleEndian.Uint64(data[ammBaseDecimalOffset:])),
		QuoteDecimals:   uint8(binary.LittleEndian.Uint64(data[ammQuoteDecimalOffset:])),
		OpenTime:        int64(binary.LittleEndian.Uint64(data[ammOpenTimeOffset:])),
		BaseVault:       pubkeyAt(data, ammBaseVaultOffset),
		QuoteVault:      pubkeyAt(data, ammQuoteVaultOffset),
		BaseMint:        pubkeyAt(data, ammBaseMintOffset),
		QuoteMint:       pubkeyAt(data, ammQuoteMintOffset),
		LPMint:          pubkeyAt(data, ammLPMintOffset),
		OpenOrders:      pubkeyAt(data, ammOpenOrdersOffset),
		MarketID:        pubkeyAt(data, ammMarketIDOffset),
		MarketProgramID: pubkeyAt(data, ammMarketProgOffset),
		TargetOrders:    pubkeyAt(data, ammTargetOrdersOffset),
	}, nil
}

// DecodeMarketState decodes Serum/OpenBook v3 market account data.
func DecodeMarketState(data []byte) (*MarketState, error) {
	if len(data) < MarketStateSize {
		return nil, fmt.Errorf("market state: expected at least %d bytes, got %d", MarketStateSize, len(data))
	}
	return &MarketState{
		VaultSignerNonce: binary.LittleEndian.Uint64(data[marketVaultSignerNonceOffset:]),
		BaseVault:        pubkeyAt(data, marketBaseVaultOffset),
		QuoteVault:       pubkeyAt(data, marketQuoteVaultOffset),
		EventQueue:       pubkeyAt(data, marketEventQueueOffset),
		Bids:             pubkeyAt(data, marketBidsOffset),
		Asks:             pubkeyAt(data, marketAsksOffset),
	}, nil
}

// NewPoolRecord combines a decoded pool, its market and the market vault signer.
func NewPoolRecord(poolID string, amm *AmmState, market *MarketState, vaultSigner string) *domain.PoolRecord {
	return &domain.PoolRecord{
		ID:                poolID,
		ProgramID:         AmmV4ProgramID,
		BaseMint:          amm.BaseMint,
		QuoteMint:         amm.QuoteMint,
		BaseDecimals:      amm.BaseDecimals,
		QuoteDecimals:     amm.QuoteDecimals,
		BaseVault:         amm.BaseVault,
		QuoteVault:        amm.QuoteVault,
		LPMint:            amm.LPMint,
		Authority:         AmmAuthority,
		OpenOrders:        amm.OpenOrders,
		TargetOrders:      amm.TargetOrders,
		OpenTime:          amm.OpenTime,
		MarketProgramID:   amm.MarketProgramID,
		MarketID:          amm.MarketID,
		MarketBids:        market.Bids,
		MarketAsks:        market.Asks,
		MarketEventQueue:  market.EventQueue,
		MarketBaseVault:   market.BaseVault,
		MarketQuoteVault:  market.QuoteVault,
		MarketVaultSigner: vaultSigner,
	}
}

func pubkeyAt(data []byte, offset int) string {
	return base58.Encode(data[offset : offset+32])
}
