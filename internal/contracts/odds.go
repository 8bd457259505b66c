package contracts

import (
	"fmt"
	"math/big"

	"azuro-bet/pkg/types"
)

// PackCalcOdds encodes core.calcOdds(conditionId, amount, outcomeId).
func PackCalcOdds(s types.Selection, amount *big.Int) ([]byte, error) {
	data, err := Core.Pack("calcOdds", s.ConditionID, amount, s.OutcomeID)
	if err != nil {
		return nil, fmt.Errorf("pack calcOdds: %w", err)
	}
	return data, nil
}

// UnpackCalcOdds decodes the raw odds returned by core.calcOdds.
func UnpackCalcOdds(out []byte) (uint64, error) {
	res, err := Core.Unpack("calcOdds", out)
	if err != nil {
		return 0, fmt.Errorf("unpack calcOdds: %w", err)
	}
	odds, ok := res[0].(uint64)
	if !ok {
		return 0, fmt.Errorf("unpack calcOdds: unexpected type %T", res[0])
	}
	return odds, nil
}

// PackComboCalcOdds encodes comboCore.calcOdds(subBets, amount).
func PackComboCalcOdds(selections []types.Selection, amount *big.Int) ([]byte, error) {
	tuples, err := toTuples(selections)
	if err != nil {
		return nil, err
	}
	data, err := ComboCore.Pack("calcOdds", tuples, amount)
	if err != nil {
		return nil, fmt.Errorf("pack combo calcOdds: %w", err)
	}
	return data, nil
}

// UnpackComboCalcOdds decodes per-selection and express odds.
func UnpackComboCalcOdds(out []byte) ([]uint64, *big.Int, error) {
	res, err := ComboCore.Unpack("calcOdds", out)
	if err != nil {
		return nil, nil, fmt.Errorf("unpack combo calcOdds: %w", err)
	}
	perSelection, ok := res[0].([]uint64)
	if !ok {
		return nil, nil, fmt.Errorf("unpack combo calcOdds: unexpected type %T", res[0])
	}
	express, ok := res[1].(*big.Int)
	if !ok {
		return nil, nil, fmt.Errorf("unpack combo calcOdds: unexpected type %T", res[1])
	}
	return perSelection, express, nil
}
