package api

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"azuro-bet/pkg/types"
)

var errBadRequest = errors.New("bad request")

// maxDeadlineSeconds caps deadline_seconds at one day.
const maxDeadlineSeconds = 24 * 60 * 60

// ————————————————————————————————————————————————————————————————————————
// Requests
// ————————————————————————————————————————————————————————————————————————

// SelectionBody is one pick in a request. ConditionID is a decimal or
// 0x-prefixed hex uint256.
type SelectionBody struct {
	ConditionID string `json:"condition_id"`
	OutcomeID   uint64 `json:"outcome_id"`
}

// BetRequestBody is the body of POST /api/quote and POST /api/bets.
type BetRequestBody struct {
	Amount          string          `json:"amount"`   // human-readable stake, e.g. "10.5"
	Slippage        decimal.Decimal `json:"slippage"` // percent
	DeadlineSeconds int64           `json:"deadline_seconds,omitempty"`
	Affiliate       string          `json:"affiliate,omitempty"`
	Selections      []SelectionBody `json:"selections"`
}

// toRequest converts the body into a workflow request. Range checks on
// amount and slippage are left to the bet package.
func (b BetRequestBody) toRequest() (types.BetRequest, error) {
	req := types.BetRequest{
		Amount:   strings.TrimSpace(b.Amount),
		Slippage: b.Slippage,
	}
	if b.DeadlineSeconds < 0 || b.DeadlineSeconds > maxDeadlineSeconds {
		return req, fmt.Errorf("%w: deadline_seconds must be in 0..%d", errBadRequest, maxDeadlineSeconds)
	}
	req.Deadline = time.Duration(b.DeadlineSeconds) * time.Second

	if b.Affiliate != "" {
		if !common.IsHexAddress(b.Affiliate) {
			return req, fmt.Errorf("%w: affiliate %q is not an address", errBadRequest, b.Affiliate)
		}
		req.Affiliate = common.HexToAddress(b.Affiliate)
	}

	for i, s := range b.Selections {
		id, err := parseConditionID(s.ConditionID)
		if err != nil {
			return req, fmt.Errorf("%w: selection %d: %v", errBadRequest, i, err)
		}
		req.Selections = append(req.Selections, types.Selection{ConditionID: id, OutcomeID: s.OutcomeID})
	}
	return req, nil
}

func parseConditionID(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	base := 10
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s, base = s[2:], 16
	}
	id, ok := new(big.Int).SetString(s, base)
	if !ok || id.Sign() < 0 || id.BitLen() > 256 {
		return nil, fmt.Errorf("condition id %q is not a uint256", s)
	}
	return id, nil
}

// ————————————————————————————————————————————————————————————————————————
// Responses
// ————————————————————————————————————————————————————————————————————————

// ChainInfo is the JSON view of the connected chain.
type ChainInfo struct {
	ChainID        int64  `json:"chain_id"`
	Name           string `json:"name"`
	NativeCurrency string `json:"native_currency"`
	ExplorerURL    string `json:"explorer_url,omitempty"`
	LP             string `json:"lp"`
	Core           string `json:"core"`
	ComboCore      string `json:"combo_core"`
	ProxyFront     string `json:"proxy_front"`
	BetToken       string `json:"bet_token,omitempty"`
	BetTokenSymbol string `json:"bet_token_symbol"`
	BetDecimals    int32  `json:"bet_token_decimals"`
	NativeBetToken bool   `json:"native_bet_token"`
}

// NewChainInfo converts chain metadata for the API.
func NewChainInfo(m types.ChainMetadata) ChainInfo {
	info := ChainInfo{
		ChainID:        m.ChainID,
		Name:           m.Name,
		NativeCurrency: m.NativeCurrency,
		ExplorerURL:    m.ExplorerURL,
		LP:             m.Contracts.LP.Hex(),
		Core:           m.Contracts.Core.Hex(),
		ComboCore:      m.Contracts.ComboCore.Hex(),
		ProxyFront:     m.Contracts.ProxyFront.Hex(),
		BetTokenSymbol: m.BetToken.Symbol,
		BetDecimals:    m.BetToken.Decimals,
		NativeBetToken: m.BetToken.Native,
	}
	if !m.BetToken.Native {
		info.BetToken = m.BetToken.Address.Hex()
	}
	return info
}

// ErrorResponse is the body of every non-2xx reply. A bet that failed after
// it was sent keeps its ledger record and explorer link.
type ErrorResponse struct {
	Error string           `json:"error"`
	Bet   *types.BetRecord `json:"bet,omitempty"`
	TxURL string           `json:"tx_url,omitempty"`
}
