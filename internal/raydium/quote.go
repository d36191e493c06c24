package raydium

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// Swap fee charged by AMM v4 on the input amount.
const (
	FeeNumerator   = 25
	FeeDenominator = 10_000
)

const bpsDenominator = 10_000

var (
	// ErrInsufficientLiquidity is returned when a pool cannot fill the requested amount.
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")

	decFeeNum = decimal.NewFromInt(FeeNumerator)
	decFeeDen = decimal.NewFromInt(FeeDenominator)
	decBpsDen = decimal.NewFromInt(bpsDenominator)
	decOne    = decimal.NewFromInt(1)
)

// Quote returns the output of a constant-product swap of amountIn, after fee.
// All values are raw integer amounts.
func Quote(reserveIn, reserveOut, amountIn decimal.Decimal) (decimal.Decimal, error) {
	if !reserveIn.IsPositive() || !reserveOut.IsPositive() {
		return decimal.Zero, ErrInsufficientLiquidity
	}
	if !amountIn.IsPositive() {
		return decimal.Zero, fmt.Errorf("amount in must be positive, got %s", amountIn)
	}

	fee := divCeil(amountIn.Mul(decFeeNum), decFeeDen)
	net := amountIn.Sub(fee)
	if !net.IsPositive() {
		return decimal.Zero, fmt.Errorf("amount in %s consumed by fee", amountIn)
	}

	out := divFloor(reserveOut.Mul(net), reserveIn.Add(net))
	if !out.IsPositive() {
		return decimal.Zero, ErrInsufficientLiquidity
	}
	return out, nil
}

// QuoteIn returns the input, fee included, needed to receive exactly amountOut.
func QuoteIn(reserveIn, reserveOut, amountOut decimal.Decimal) (decimal.Decimal, error) {
	if !reserveIn.IsPositive() || !reserveOut.IsPositive() {
		return decimal.Zero, ErrInsufficientLiquidity
	}
	if !amountOut.IsPositive() {
		return decimal.Zero, fmt.Errorf("amount out must be positive, got %s", amountOut)
	}
	if amountOut.GreaterThanOrEqual(reserveOut) {
		return decimal.Zero, ErrInsufficientLiquidity
	}

	net := divCeil(reserveIn.Mul(amountOut), reserveOut.Sub(amountOut))
	return divCeil(net.Mul(decFeeDen), decFeeDen.Sub(decFeeNum)), nil
}

// MinAmountOut applies slippage to a quoted output, truncating toward zero.
func MinAmountOut(quoted decimal.Decimal, slippageBps uint32) decimal.Decimal {
	keep := decBpsDen.Sub(decimal.NewFromInt(int64(slippageBps)))
	if keep.IsNegative() {
		return decimal.Zero
	}
	return divFloor(quoted.Mul(keep), decBpsDen)
}

// MaxAmountIn applies slippage to a quoted input, rounding up.
func MaxAmountIn(quoted decimal.Decimal, slippageBps uint32) decimal.Decimal {
	grow := decBpsDen.Add(decimal.NewFromInt(int64(slippageBps)))
	return divCeil(quoted.Mul(grow), decBpsDen)
}

// ToRaw converts a UI amount to raw units, truncating sub-unit dust.
func ToRaw(amount decimal.Decimal, decimals uint8) decimal.Decimal {
	return amount.Shift(int32(decimals)).Truncate(0)
}

// ToUint64 converts a raw integer amount for an instruction argument.
func ToUint64(raw decimal.Decimal) (uint64, error) {
	if raw.IsNegative() || !raw.Equal(raw.Truncate(0)) {
		return 0, fmt.Errorf("amount %s is not a non-negative integer", raw)
	}
	b := raw.BigInt()
	if !b.IsUint64() {
		return 0, fmt.Errorf("amount %s overflows u64", raw)
	}
	return b.Uint64(), nil
}

// FromUint64 wraps a raw on-chain amount.
func FromUint64(v uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), 0)
}

func divFloor(a, b decimal.Decimal) decimal.Decimal {
	q, _ := a.QuoRem(b, 0)
	return q
}

func divCeil(a, b decimal.Decimal) decimal.Decimal {
	q, r := a.QuoRem(b, 0)
	if r.IsPositive() {
		q = q.Add(decOne)
	}
	return q
}
