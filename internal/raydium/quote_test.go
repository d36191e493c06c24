package raydium

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestQuote(t *testing.T) {
	tests := []struct {
		name       string
		reserveIn  string
		reserveOut string
		amountIn   string
		want       string
		wantErr    bool
	}{
		{"fee rounds up then floor", "1000000000", "1000000", "10000000", "9876", false},
		{"no liquidity in", "0", "1000000", "10", "", true},
		{"no liquidity out", "1000", "0", "10", "", true},
		{"zero amount", "1000", "1000", "0", "", true},
		{"dust eaten by fee", "1000", "1000", "1", "", true},
		{"output rounds to zero", "1000000000000", "10", "1000000", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Quote(dec(tt.reserveIn), dec(tt.reserveOut), dec(tt.amountIn))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %s", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Quote: %v", err)
			}
			if !got.Equal(dec(tt.want)) {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestQuoteIn_IsTight(t *testing.T) {
	reserveIn, reserveOut := dec("1000000000"), dec("1000000")

	in, err := QuoteIn(reserveIn, reserveOut, dec("9876"))
	if err != nil {
		t.Fatalf("QuoteIn: %v", err)
	}
	if !in.Equal(dec("9999508")) {
		t.Fatalf("got %s, want 9999508", in)
	}

	out, err := Quote(reserveIn, reserveOut, in)
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if out.LessThan(dec("9876")) {
		t.Errorf("QuoteIn amount buys %s, less than 9876", out)
	}

	out, _ = Quote(reserveIn, reserveOut, in.Sub(decimal.NewFromInt(1)))
	if !out.LessThan(dec("9876")) {
		t.Errorf("one lamport less still buys %s", out)
	}
}

func TestQuoteIn_DrainsPool(t *testing.T) {
	_, err := QuoteIn(dec("1000"), dec("1000"), dec("1000"))
	if !errors.Is(err, ErrInsufficientLiquidity) {
		t.Errorf("expected ErrInsufficientLiquidity, got %v", err)
	}
}

func TestSlippageBounds(t *testing.T) {
	tests := []struct {
		quoted string
		bps    uint32
		minOut string
		maxIn  string
	}{
		{"9876", 100, "9777", "9975"},
		{"9999508", 100, "9899512", "10099504"},
		{"100", 0, "100", "100"},
		{"100", 10000, "0", "200"},
		{"3", 5000, "1", "5"},
	}

	for _, tt := range tests {
		q := dec(tt.quoted)
		if got := MinAmountOut(q, tt.bps); !got.Equal(dec(tt.minOut)) {
			t.Errorf("MinAmountOut(%s, %d) = %s, want %s", tt.quoted, tt.bps, got, tt.minOut)
		}
		if got := MaxAmountIn(q, tt.bps); !got.Equal(dec(tt.maxIn)) {
			t.Errorf("MaxAmountIn(%s, %d) = %s, want %s", tt.quoted, tt.bps, got, tt.maxIn)
		}
	}
}

func TestToRawAndUint64(t *testing.T) {
	raw := ToRaw(dec("1.0000000019"), 9)
	if !raw.Equal(dec("1000000001")) {
		t.Errorf("ToRaw = %s", raw)
	}

	v, err := ToUint64(raw)
	if err != nil || v != 1_000_000_001 {
		t.Errorf("ToUint64 = %d, %v", v, err)
	}

	if _, err := ToUint64(dec("-1")); err == nil {
		t.Error("expected error for negative")
	}
	if _, err := ToUint64(dec("1.5")); err == nil {
		t.Error("expected error for fraction")
	}
	if _, err := ToUint64(dec("18446744073709551616")); err == nil {
		t.Error("expected error for overflow")
	}

	if !FromUint64(18446744073709551615).Equal(dec("18446744073709551615")) {
		t.Error("FromUint64 lost precision")
	}
}
