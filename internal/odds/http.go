package odds

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"azuro-bet/pkg/types"
)

// HTTPCalculator asks an external odds API:
//
//	POST /odds/calculate {chainId, amount, selections:[{conditionId, outcomeId}]}
//	-> {selections:["1.85", ...], total:"3.42"}
//
// Requests are retried on transport errors and 5xx responses.
type HTTPCalculator struct {
	http     *resty.Client
	chainID  int64
	decimals int32
	logger   *slog.Logger
}

type calcSelection struct {
	ConditionID string `json:"conditionId"`
	OutcomeID   uint64 `json:"outcomeId"`
}

type calcRequest struct {
	ChainID    int64           `json:"chainId"`
	Amount     string          `json:"amount"` // raw token units
	Selections []calcSelection `json:"selections"`
}

type calcResponse struct {
	Selections []decimal.Decimal `json:"selections"`
	Total      decimal.Decimal   `json:"total"`
}

// NewHTTPCalculator creates a resty-backed calculator for chainID.
func NewHTTPCalculator(baseURL string, timeout time.Duration, chainID int64, decimals int32, logger *slog.Logger) *HTTPCalculator {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(3).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		}).
		SetHeader("Content-Type", "application/json")

	return &HTTPCalculator{
		http:     httpClient,
		chainID:  chainID,
		decimals: decimals,
		logger:   logger.With("component", "odds_http"),
	}
}

// Calculate implements Calculator.
func (c *HTTPCalculator) Calculate(ctx context.Context, selections []types.Selection, amount *big.Int) (Odds, error) {
	body := calcRequest{
		ChainID:    c.chainID,
		Amount:     amount.String(),
		Selections: make([]calcSelection, len(selections)),
	}
	for i, s := range selections {
		if s.ConditionID == nil {
			return Odds{}, fmt.Errorf("calculate odds: selection %d has nil condition id", i)
		}
		body.Selections[i] = calcSelection{ConditionID: s.ConditionID.String(), OutcomeID: s.OutcomeID}
	}

	var result calcResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&result).
		Post("/odds/calculate")
	if err != nil {
		return Odds{}, fmt.Errorf("calculate odds: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return Odds{}, fmt.Errorf("calculate odds: status %d: %s", resp.StatusCode(), resp.String())
	}
	if len(result.Selections) != len(selections) {
		return Odds{}, fmt.Errorf("calculate odds: got %d odds for %d selections", len(result.Selections), len(selections))
	}

	out := Odds{
		PerSelection: make([]decimal.Decimal, len(result.Selections)),
		Total:        result.Total.Round(c.decimals),
	}
	for i, d := range result.Selections {
		out.PerSelection[i] = d.Round(c.decimals)
	}
	c.logger.Debug("odds quoted", "selections", len(selections), "total", out.Total.String())
	return out, nil
}
