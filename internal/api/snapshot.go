package api

import (
	"context"
	"net/http"
	"time"

	"azuro-bet/internal/engine"
	"azuro-bet/internal/risk"
	"azuro-bet/pkg/types"
)

// Service is the part of the engine the API serves.
type Service interface {
	Account() types.Account
	Chain() *types.ChainMetadata
	DryRun() bool
	Risk() risk.Snapshot
	Quote(ctx context.Context, req types.BetRequest) (engine.Quote, error)
	Submit(ctx context.Context, req types.BetRequest) (engine.Result, error)
	Bet(id string) (*types.BetRecord, error)
	Bets() ([]types.BetRecord, error)
	Events() <-chan types.LifecycleEvent
	MetricsHandler() http.Handler
}

var _ Service = (*engine.Engine)(nil)

// Snapshot is the service state sent on GET /api/status and as the first
// WebSocket message.
type Snapshot struct {
	Timestamp time.Time     `json:"timestamp"`
	Account   string        `json:"account"`
	ChainID   int64         `json:"chain_id"`
	Supported bool          `json:"supported"`
	Chain     *ChainInfo    `json:"chain,omitempty"`
	DryRun    bool          `json:"dry_run"`
	Risk      risk.Snapshot `json:"risk"`
}

// BuildSnapshot aggregates state from the service into a snapshot.
func BuildSnapshot(svc Service) Snapshot {
	account := svc.Account()
	snap := Snapshot{
		Timestamp: time.Now(),
		Account:   account.Address.Hex(),
		ChainID:   account.ChainID,
		DryRun:    svc.DryRun(),
		Risk:      svc.Risk(),
	}
	if meta := svc.Chain(); meta != nil {
		info := NewChainInfo(*meta)
		snap.Chain = &info
		snap.Supported = true
	}
	return snap
}
