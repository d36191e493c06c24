package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// OrderState is the lifecycle state of a snipe order.
type OrderState string

const (
	OrderPending    OrderState = "pending"
	OrderProcessing OrderState = "processing"
	OrderError      OrderState = "error"
)

// String returns the string representation of OrderState.
func (s OrderState) String() string {
	return string(s)
}

// IsValid checks if the state is a known value.
func (s OrderState) IsValid() bool {
	return s == OrderPending || s == OrderProcessing || s == OrderError
}

// AmountMode selects which side of the swap the order amount is denominated in.
type AmountMode string

const (
	// AmountNative spends an exact amount of SOL (swapBaseIn).
	AmountNative AmountMode = "native"
	// AmountToken buys an exact amount of the target token (swapBaseOut).
	AmountToken AmountMode = "token"
)

// IsValid checks if the mode is a known value.
func (m AmountMode) IsValid() bool {
	return m == AmountNative || m == AmountToken
}

// MaxSlippageBps is 100%.
const MaxSlippageBps = 10_000

// SnipeParams are the execution parameters of a snipe order.
type SnipeParams struct {
	AmountMode       AmountMode      `json:"amountMode"`
	Amount           decimal.Decimal `json:"amount"`           // UI units: SOL or whole tokens
	SlippageBps      uint32          `json:"slippageBps"`      // 100 = 1%
	BlockDelay       uint32          `json:"blockDelay"`       // slots to wait after the trigger, 0 = immediate
	ComputeUnitLimit uint32          `json:"computeUnitLimit"` // 0 = cluster default
	ComputeUnitPrice uint64          `json:"computeUnitPrice"` // micro-lamports per CU
	MultiWallet      bool            `json:"multiWallet"`
	Disabled         bool            `json:"disabled"`
}

// Validate checks params for values no executor could act on.
func (p SnipeParams) Validate() error {
	if !p.AmountMode.IsValid() {
		return fmt.Errorf("amount mode %q", p.AmountMode)
	}
	if !p.Amount.IsPositive() {
		return fmt.Errorf("amount must be positive, got %s", p.Amount)
	}
	if p.SlippageBps > MaxSlippageBps {
		return fmt.Errorf("slippage %d bps exceeds %d", p.SlippageBps, MaxSlippageBps)
	}
	return nil
}

// SnipeOrder is a standing instruction to buy Token for UserID once a pool trades.
// Corresponds to snipe_orders table in PostgreSQL.
type SnipeOrder struct {
	ID        string      // uuid
	UserID    int64       // chat user id
	Token     string      // target mint address
	State     OrderState  // pending | processing | error
	Params    SnipeParams // execution parameters
	LastError string      // last execution failure, empty unless State == error
	CreatedAt int64       // Unix timestamp in milliseconds
	UpdatedAt int64       // Unix timestamp in milliseconds
}

// IsActive reports whether the order should be watched and matched.
func (o *SnipeOrder) IsActive() bool {
	return o.State == OrderPending && !o.Params.Disabled
}
