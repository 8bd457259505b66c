package odds

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/shopspring/decimal"

	"azuro-bet/internal/chain"
	"azuro-bet/internal/contracts"
	"azuro-bet/pkg/types"
)

// ChainCalculator reads calcOdds from the core contracts: the single core for
// one selection, the combo core for several.
type ChainCalculator struct {
	backend   chain.Backend
	contracts types.Contracts
	decimals  int32
}

// NewChainCalculator creates a calculator for one chain's deployment.
func NewChainCalculator(backend chain.Backend, c types.Contracts, decimals int32) *ChainCalculator {
	return &ChainCalculator{backend: backend, contracts: c, decimals: decimals}
}

// Calculate implements Calculator.
func (c *ChainCalculator) Calculate(ctx context.Context, selections []types.Selection, amount *big.Int) (Odds, error) {
	switch len(selections) {
	case 0:
		return Odds{}, contracts.ErrNoSelections
	case 1:
		return c.single(ctx, selections[0], amount)
	default:
		return c.combo(ctx, selections, amount)
	}
}

func (c *ChainCalculator) single(ctx context.Context, s types.Selection, amount *big.Int) (Odds, error) {
	data, err := contracts.PackCalcOdds(s, amount)
	if err != nil {
		return Odds{}, err
	}
	core := c.contracts.Core
	out, err := c.backend.CallContract(ctx, ethereum.CallMsg{To: &core, Data: data}, nil)
	if err != nil {
		return Odds{}, fmt.Errorf("call calcOdds: %w", err)
	}
	raw, err := contracts.UnpackCalcOdds(out)
	if err != nil {
		return Odds{}, err
	}
	odds := FromRaw(new(big.Int).SetUint64(raw), c.decimals)
	return Odds{PerSelection: []decimal.Decimal{odds}, Total: odds}, nil
}

func (c *ChainCalculator) combo(ctx context.Context, selections []types.Selection, amount *big.Int) (Odds, error) {
	data, err := contracts.PackComboCalcOdds(selections, amount)
	if err != nil {
		return Odds{}, err
	}
	core := c.contracts.ComboCore
	out, err := c.backend.CallContract(ctx, ethereum.CallMsg{To: &core, Data: data}, nil)
	if err != nil {
		return Odds{}, fmt.Errorf("call combo calcOdds: %w", err)
	}
	per, express, err := contracts.UnpackComboCalcOdds(out)
	if err != nil {
		return Odds{}, err
	}
	if len(per) != len(selections) {
		return Odds{}, fmt.Errorf("combo calcOdds: got %d odds for %d selections", len(per), len(selections))
	}
	result := Odds{
		PerSelection: make([]decimal.Decimal, len(per)),
		Total:        FromRaw(express, c.decimals),
	}
	for i, raw := range per {
		result.PerSelection[i] = FromRaw(new(big.Int).SetUint64(raw), c.decimals)
	}
	return result, nil
}
