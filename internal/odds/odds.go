// Package odds obtains quoted odds for a list of selections.
//
// Odds are never computed here: a Calculator asks a collaborator (the core
// contracts or an external odds API) and converts the answer to decimals
// rounded to the configured odds precision.
package odds

import (
	"context"
	"math/big"

	"github.com/shopspring/decimal"

	"azuro-bet/pkg/types"
)

// Odds is a quote for an ordered selection list.
type Odds struct {
	PerSelection []decimal.Decimal // same order as the selections
	Total        decimal.Decimal   // combined odds of the whole bet
}

// Calculator quotes odds for selections staked with amount (raw token units).
type Calculator interface {
	Calculate(ctx context.Context, selections []types.Selection, amount *big.Int) (Odds, error)
}

// FromRaw converts a fixed-point on-chain value to a decimal.
func FromRaw(raw *big.Int, decimals int32) decimal.Decimal {
	return decimal.NewFromBigInt(raw, -decimals)
}

// ToRaw converts d to fixed-point, truncating anything beyond decimals.
func ToRaw(d decimal.Decimal, decimals int32) *big.Int {
	return d.Shift(decimals).Truncate(0).BigInt()
}
