package contracts

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"

	"azuro-bet/pkg/types"
)

// ErrNoSelections is returned when a payload is requested for zero selections.
var ErrNoSelections = errors.New("at least one selection is required")

// SelectionTuple is the ABI shape of a (conditionId, outcomeId) pair.
type SelectionTuple struct {
	ConditionId *big.Int
	OutcomeId   uint64
}

var (
	uint256Type = mustType("uint256", nil)
	uint64Type  = mustType("uint64", nil)
	tuplesType  = mustType("tuple[]", []abi.ArgumentMarshaling{
		{Name: "conditionId", Type: "uint256"},
		{Name: "outcomeId", Type: "uint64"},
	})

	singleArgs = abi.Arguments{{Type: uint256Type}, {Type: uint64Type}}
	comboArgs  = abi.Arguments{{Type: tuplesType}}
)

func mustType(t string, components []abi.ArgumentMarshaling) abi.Type {
	typ, err := abi.NewType(t, "", components)
	if err != nil {
		panic(fmt.Sprintf("abi type %s: %v", t, err))
	}
	return typ
}

// EncodeSelections builds the bet data payload: a single bet encodes one
// (uint256, uint64) pair, a combo encodes the ordered list as a tuple array.
func EncodeSelections(selections []types.Selection) ([]byte, error) {
	switch len(selections) {
	case 0:
		return nil, ErrNoSelections
	case 1:
		s := selections[0]
		if s.ConditionID == nil {
			return nil, fmt.Errorf("encode selection: nil condition id")
		}
		data, err := singleArgs.Pack(s.ConditionID, s.OutcomeID)
		if err != nil {
			return nil, fmt.Errorf("encode selection: %w", err)
		}
		return data, nil
	default:
		tuples, err := toTuples(selections)
		if err != nil {
			return nil, err
		}
		data, err := comboArgs.Pack(tuples)
		if err != nil {
			return nil, fmt.Errorf("encode combo: %w", err)
		}
		return data, nil
	}
}

// DecodeSingle reverses EncodeSelections for a single bet.
func DecodeSingle(data []byte) (types.Selection, error) {
	out, err := singleArgs.Unpack(data)
	if err != nil {
		return types.Selection{}, fmt.Errorf("decode selection: %w", err)
	}
	return types.Selection{
		ConditionID: out[0].(*big.Int),
		OutcomeID:   out[1].(uint64),
	}, nil
}

// DecodeCombo reverses EncodeSelections for a combo bet.
func DecodeCombo(data []byte) ([]types.Selection, error) {
	out, err := comboArgs.Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("decode combo: %w", err)
	}
	tuples := *abi.ConvertType(out[0], new([]SelectionTuple)).(*[]SelectionTuple)
	selections := make([]types.Selection, len(tuples))
	for i, t := range tuples {
		selections[i] = types.Selection{ConditionID: t.ConditionId, OutcomeID: t.OutcomeId}
	}
	return selections, nil
}

func toTuples(selections []types.Selection) ([]SelectionTuple, error) {
	tuples := make([]SelectionTuple, len(selections))
	for i, s := range selections {
		if s.ConditionID == nil {
			return nil, fmt.Errorf("encode combo: selection %d has nil condition id", i)
		}
		tuples[i] = SelectionTuple{ConditionId: s.ConditionID, OutcomeId: s.OutcomeID}
	}
	return tuples, nil
}
