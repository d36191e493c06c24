package domain

// WSOLMint is the Wrapped SOL mint address.
const WSOLMint = "So11111111111111111111111111111111111111112"

// PoolRecord is the cached state of a Raydium AMM v4 pool and its market,
// enough to build a swap instruction without further RPC reads.
type PoolRecord struct {
	ID            string `json:"id"`        // AMM id
	ProgramID     string `json:"programId"` // AMM program
	BaseMint      string `json:"baseMint"`
	QuoteMint     string `json:"quoteMint"`
	BaseDecimals  uint8  `json:"baseDecimals"`
	QuoteDecimals uint8  `json:"quoteDecimals"`
	BaseVault     string `json:"baseVault"`
	QuoteVault    string `json:"quoteVault"`
	LPMint        string `json:"lpMint"`
	Authority     string `json:"authority"`
	OpenOrders    string `json:"openOrders"`
	TargetOrders  string `json:"targetOrders"`
	OpenTime      int64  `json:"openTime"` // Unix seconds, 0 = open immediately

	MarketProgramID   string `json:"marketProgramId"`
	MarketID          string `json:"marketId"`
	MarketBids        string `json:"marketBids"`
	MarketAsks        string `json:"marketAsks"`
	MarketEventQueue  string `json:"marketEventQueue"`
	MarketBaseVault   string `json:"marketBaseVault"`
	MarketQuoteVault  string `json:"marketQuoteVault"`
	MarketVaultSigner string `json:"marketVaultSigner"`

	Slot      int64 `json:"slot"`      // slot the record was read at
	UpdatedAt int64 `json:"updatedAt"` // Unix timestamp in milliseconds
}

// TradableToken returns the non-WSOL mint of the pool.
// Pools where neither or both sides are WSOL are not tradable.
func (p *PoolRecord) TradableToken() (string, bool) {
	baseNative := p.BaseMint == WSOLMint
	quoteNative := p.QuoteMint == WSOLMint
	switch {
	case baseNative && !quoteNative:
		return p.QuoteMint, true
	case quoteNative && !baseNative:
		return p.BaseMint, true
	default:
		return "", false
	}
}

// TokenVault returns the vault holding the given mint, or "" if the mint is not in the pool.
func (p *PoolRecord) TokenVault(mint string) string {
	switch mint {
	case p.BaseMint:
		return p.BaseVault
	case p.QuoteMint:
		return p.QuoteVault
	default:
		return ""
	}
}

// NativeVault returns the WSOL-side vault.
func (p *PoolRecord) NativeVault() string {
	if p.BaseMint == WSOLMint {
		return p.BaseVault
	}
	return p.QuoteVault
}

// TokenIsBase reports whether the tradable token is the base side.
func (p *PoolRecord) TokenIsBase() bool {
	return p.QuoteMint == WSOLMint
}
