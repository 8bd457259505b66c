// Package contracts holds the minimal ABIs the service calls and the packing
// helpers around them.
//
//   - ERC20:      allowance / approve on the bet token
//   - ProxyFront: bet(lp, BetData[]), the single entry point for placing bets
//   - Core:       calcOdds for one (condition, outcome) pair
//   - ComboCore:  calcOdds for a list of pairs
//
// Selection payloads (the extraData.data field of a bet) are encoded here too.
package contracts

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
)

const erc20ABI = `[
	{"name":"allowance","type":"function","stateMutability":"view","inputs":[
		{"name":"owner","type":"address"},
		{"name":"spender","type":"address"}
	],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"approve","type":"function","stateMutability":"nonpayable","inputs":[
		{"name":"spender","type":"address"},
		{"name":"amount","type":"uint256"}
	],"outputs":[{"name":"","type":"bool"}]}
]`

const proxyFrontABI = `[
	{"name":"bet","type":"function","stateMutability":"payable","inputs":[
		{"name":"lp","type":"address"},
		{"name":"data","type":"tuple[]","components":[
			{"name":"core","type":"address"},
			{"name":"amount","type":"uint128"},
			{"name":"expiresAt","type":"uint64"},
			{"name":"extraData","type":"tuple","components":[
				{"name":"affiliate","type":"address"},
				{"name":"minOdds","type":"uint64"},
				{"name":"data","type":"bytes"}
			]}
		]}
	],"outputs":[]}
]`

const coreABI = `[
	{"name":"calcOdds","type":"function","stateMutability":"view","inputs":[
		{"name":"conditionId","type":"uint256"},
		{"name":"amount","type":"uint128"},
		{"name":"outcomeId","type":"uint64"}
	],"outputs":[{"name":"odds","type":"uint64"}]}
]`

const comboCoreABI = `[
	{"name":"calcOdds","type":"function","stateMutability":"view","inputs":[
		{"name":"subBets","type":"tuple[]","components":[
			{"name":"conditionId","type":"uint256"},
			{"name":"outcomeId","type":"uint64"}
		]},
		{"name":"amount","type":"uint128"}
	],"outputs":[
		{"name":"conditionOdds","type":"uint64[]"},
		{"name":"expressOdds","type":"uint256"}
	]}
]`

var (
	ERC20      = mustParse(erc20ABI)
	ProxyFront = mustParse(proxyFrontABI)
	Core       = mustParse(coreABI)
	ComboCore  = mustParse(comboCoreABI)
)

// MaxApproval is the unlimited-allowance sentinel sent with approve().
var MaxApproval = new(big.Int).Set(math.MaxBig256)

func mustParse(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("parse abi: %v", err))
	}
	return parsed
}

// PackAllowance encodes allowance(owner, spender).
func PackAllowance(owner, spender common.Address) ([]byte, error) {
	data, err := ERC20.Pack("allowance", owner, spender)
	if err != nil {
		return nil, fmt.Errorf("pack allowance: %w", err)
	}
	return data, nil
}

// UnpackAllowance decodes the uint256 returned by allowance().
func UnpackAllowance(out []byte) (*big.Int, error) {
	res, err := ERC20.Unpack("allowance", out)
	if err != nil {
		return nil, fmt.Errorf("unpack allowance: %w", err)
	}
	v, ok := res[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unpack allowance: unexpected type %T", res[0])
	}
	return v, nil
}

// PackApprove encodes approve(spender, amount).
func PackApprove(spender common.Address, amount *big.Int) ([]byte, error) {
	data, err := ERC20.Pack("approve", spender, amount)
	if err != nil {
		return nil, fmt.Errorf("pack approve: %w", err)
	}
	return data, nil
}

// ExtraData is the per-bet payload interpreted by the core.
type ExtraData struct {
	Affiliate common.Address
	MinOdds   uint64
	Data      []byte
}

// BetData is one element of the proxy front's bet() array. Field names follow
// the ABI component names so the packer can map them.
type BetData struct {
	Core      common.Address
	Amount    *big.Int // uint128
	ExpiresAt uint64
	ExtraData ExtraData
}

// PackBet encodes bet(lp, data).
func PackBet(lp common.Address, bets []BetData) ([]byte, error) {
	data, err := ProxyFront.Pack("bet", lp, bets)
	if err != nil {
		return nil, fmt.Errorf("pack bet: %w", err)
	}
	return data, nil
}

// UnpackBet decodes the arguments of a bet() call (selector included).
func UnpackBet(input []byte) (common.Address, []BetData, error) {
	method, err := ProxyFront.MethodById(input)
	if err != nil || method.Name != "bet" {
		return common.Address{}, nil, fmt.Errorf("unpack bet: not a bet call")
	}
	args, err := method.Inputs.Unpack(input[4:])
	if err != nil {
		return common.Address{}, nil, fmt.Errorf("unpack bet: %w", err)
	}
	lp, ok := args[0].(common.Address)
	if !ok {
		return common.Address{}, nil, fmt.Errorf("unpack bet: unexpected lp type %T", args[0])
	}
	bets := *abi.ConvertType(args[1], new([]BetData)).(*[]BetData)
	return lp, bets, nil
}
