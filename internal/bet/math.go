package bet

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
)

// ParseAmount converts a human-readable stake into raw token units, rounding
// to the token's precision first: "10.5" with 6 decimals is 10500000.
func ParseAmount(amount string, decimals int32) (*big.Int, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, amount)
	}
	raw := d.Round(decimals).Shift(decimals)
	if !raw.IsPositive() {
		return nil, fmt.Errorf("%w: %q must be positive", ErrInvalidAmount, amount)
	}
	return raw.BigInt(), nil
}

// MinOdds is the worst odds the bet accepts:
//
//	1 + (total - 1) * (100 - slippage) / 100
//
// rounded to decimals and never below 1.
func MinOdds(total, slippage decimal.Decimal, decimals int32) decimal.Decimal {
	m := one.Add(total.Sub(one).Mul(hundred.Sub(slippage)).Div(hundred)).Round(decimals)
	if m.LessThan(one) {
		return one
	}
	return m
}

// ExpiresAt returns the absolute bet deadline in unix seconds. A zero or
// negative deadline falls back to def.
func ExpiresAt(now time.Time, deadline, def time.Duration) uint64 {
	if deadline <= 0 {
		deadline = def
	}
	return uint64(now.Add(deadline).Unix())
}
