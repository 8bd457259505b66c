// Package engine is the central orchestrator of the betting service.
//
// It wires together all subsystems for the one configured wallet:
//
//  1. The RPC backend, wrapped in a Throttle so every call is rate-limited.
//  2. The Resolver, which maps the node's chain id to contract metadata.
//  3. A tx.Sender that signs with the wallet and confirms receipts.
//  4. An odds.Calculator (on-chain calcOdds or the external odds API).
//  5. Risk limits, the bet ledger, metrics and lifecycle event publishers.
//
// Each Quote or Submit builds a fresh bet.Preparer for the request. Submits
// are serialized so two bets never race for the same nonce.
//
// Lifecycle: New() -> Quote()/Submit() ... -> Stop()
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"

	"azuro-bet/internal/bet"
	"azuro-bet/internal/chain"
	"azuro-bet/internal/config"
	"azuro-bet/internal/metrics"
	"azuro-bet/internal/notify"
	"azuro-bet/internal/odds"
	"azuro-bet/internal/risk"
	"azuro-bet/internal/store"
	"azuro-bet/internal/tx"
	"azuro-bet/pkg/types"
)

// ErrNotFound is returned for an unknown bet id.
var ErrNotFound = errors.New("not found")

// Engine serves bet quotes and submissions for one wallet on one chain.
type Engine struct {
	cfg      config.Config
	backend  chain.Backend
	closer   io.Closer // underlying RPC client, nil in tests
	wallet   *chain.Wallet
	account  types.Account
	resolver *chain.Resolver
	meta     *types.ChainMetadata // nil when the chain is unsupported
	sender   *tx.Sender
	odds     odds.Calculator
	riskMgr  *risk.Manager
	store    *store.Store
	metrics  *metrics.Metrics
	kafka    *notify.KafkaPublisher
	pub      notify.Fanout
	logger   *slog.Logger

	// events is drained by the API hub. Sends never block.
	events chan types.LifecycleEvent

	submitMu sync.Mutex
}

// New dials the configured RPC node and wires the engine.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Engine, error) {
	wallet, err := chain.NewWallet(cfg.Wallet.PrivateKey)
	if err != nil {
		return nil, err
	}
	client, err := chain.Dial(ctx, cfg.RPC.URL)
	if err != nil {
		return nil, err
	}
	e, err := NewWithBackend(ctx, cfg, client, wallet, logger)
	if err != nil {
		client.Close()
		return nil, err
	}
	e.closer = closerFunc(func() error { client.Close(); return nil })
	return e, nil
}

// NewWithBackend wires the engine on an existing backend.
func NewWithBackend(ctx context.Context, cfg config.Config, backend chain.Backend, wallet *chain.Wallet, logger *slog.Logger) (*Engine, error) {
	throttled := chain.NewThrottle(backend, chain.NewRateLimiter(cfg.RPC.ReadRate, cfg.RPC.WriteRate))

	account, err := chain.Detect(ctx, throttled, wallet)
	if err != nil {
		return nil, err
	}
	resolver := chain.NewResolver(cfg.Chains, logger)
	meta := resolver.Active(account)

	st, err := store.Open(cfg.Store.DataDir)
	if err != nil {
		return nil, err
	}

	sender := tx.NewSender(throttled, wallet, account.ChainID, cfg.RPC.ReceiptPollInterval, cfg.RPC.GasLimit, logger)
	sender.SetDryRun(cfg.DryRun)

	e := &Engine{
		cfg:      cfg,
		backend:  throttled,
		wallet:   wallet,
		account:  account,
		resolver: resolver,
		meta:     meta,
		sender:   sender,
		riskMgr:  risk.NewManager(cfg.Risk, logger),
		store:    st,
		metrics:  metrics.New(),
		logger:   logger.With("component", "engine"),
		events:   make(chan types.LifecycleEvent, 100),
	}
	e.pub = notify.Fanout{publisherFunc(e.emit)}
	if cfg.Kafka.Brokers != "" {
		e.kafka = notify.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
		e.pub = append(e.pub, e.kafka)
	}

	if meta != nil {
		e.odds = newCalculator(cfg, throttled, *meta, logger)
		if records, err := st.ListBets(); err != nil {
			e.logger.Warn("failed to read ledger for risk restore", "error", err)
		} else {
			e.riskMgr.Restore(records, meta.BetToken.Decimals)
		}
		e.logger.Info("connected",
			"chain", meta.Name,
			"chain_id", account.ChainID,
			"account", account.Address.Hex(),
			"bet_token", meta.BetToken.Symbol,
		)
	} else {
		e.logger.Warn("connected chain is not supported, bets will be rejected",
			"chain_id", account.ChainID, "supported", resolver.Supported())
	}
	return e, nil
}

func newCalculator(cfg config.Config, backend chain.Backend, meta types.ChainMetadata, logger *slog.Logger) odds.Calculator {
	if cfg.Odds.Source == "http" {
		return odds.NewHTTPCalculator(cfg.Odds.BaseURL, cfg.Odds.Timeout, meta.ChainID, cfg.Betting.OddsDecimals, logger)
	}
	return odds.NewChainCalculator(backend, meta.Contracts, cfg.Betting.OddsDecimals)
}

// Stop closes the publishers, the ledger and the RPC client.
func (e *Engine) Stop() {
	e.logger.Info("shutting down...")

	// Wait for an in-flight bet to settle.
	e.submitMu.Lock()
	defer e.submitMu.Unlock()

	if e.kafka != nil {
		if err := e.kafka.Close(); err != nil {
			e.logger.Error("failed to close kafka publisher", "error", err)
		}
	}
	e.store.Close()
	if e.closer != nil {
		e.closer.Close()
	}
	e.logger.Info("shutdown complete")
}

// Account is the connected wallet.
func (e *Engine) Account() types.Account {
	return e.account
}

// Chain resolves the connected chain's metadata, nil when unsupported.
func (e *Engine) Chain() *types.ChainMetadata {
	return e.resolver.Active(e.account)
}

// DryRun reports whether transactions are only signed, never broadcast.
func (e *Engine) DryRun() bool {
	return e.cfg.DryRun
}

// Risk returns the current risk state.
func (e *Engine) Risk() risk.Snapshot {
	return e.riskMgr.GetSnapshot()
}

// Events returns the lifecycle event channel for the API hub.
func (e *Engine) Events() <-chan types.LifecycleEvent {
	return e.events
}

// MetricsHandler serves the Prometheus registry.
func (e *Engine) MetricsHandler() http.Handler {
	return e.metrics.Handler()
}

// Quote is a priced, unsent bet.
type Quote struct {
	ChainID         int64             `json:"chain_id"`
	Core            string            `json:"core"`
	Amount          string            `json:"amount"` // raw token units
	Odds            []decimal.Decimal `json:"odds"`
	TotalOdds       decimal.Decimal   `json:"total_odds"`
	MinOdds         decimal.Decimal   `json:"min_odds"`
	ExpiresAt       uint64            `json:"expires_at"`
	Allowance       string            `json:"allowance,omitempty"`
	ApproveRequired bool              `json:"approve_required"`
}

// Quote reads allowance and odds for req and builds the bet it would send.
func (e *Engine) Quote(ctx context.Context, req types.BetRequest) (Quote, error) {
	p, err := e.preparer(req)
	if err != nil {
		return Quote{}, err
	}
	if err := p.RefreshAllowance(ctx); err != nil {
		return Quote{}, err
	}
	if err := p.RefreshOdds(ctx); err != nil {
		return Quote{}, err
	}
	prepared, err := p.Prepare(time.Now())
	if err != nil {
		return Quote{}, err
	}

	st := p.State()
	q := Quote{
		ChainID:         e.meta.ChainID,
		Core:            prepared.Core.Hex(),
		Amount:          prepared.Amount.String(),
		Odds:            st.Odds.Odds.PerSelection,
		TotalOdds:       st.Odds.Odds.Total,
		MinOdds:         prepared.MinOdds,
		ExpiresAt:       prepared.ExpiresAt,
		ApproveRequired: st.ApproveRequired,
	}
	if st.Allowance.Loaded {
		q.Allowance = st.Allowance.Value.String()
	}
	return q, nil
}

// Stage names what a Submit call did.
type Stage string

const (
	StageApproved Stage = "approved" // allowance granted, submit again to bet
	StagePlaced   Stage = "placed"
)

// Result is the outcome of one Submit call.
type Result struct {
	Stage     Stage            `json:"stage"`
	ApproveTx string           `json:"approve_tx,omitempty"`
	Bet       *types.BetRecord `json:"bet,omitempty"`
	TxURL     string           `json:"tx_url,omitempty"`
}

// Submit checks risk limits and runs one Submit step of the bet workflow:
// either the approval or the bet itself.
func (e *Engine) Submit(ctx context.Context, req types.BetRequest) (Result, error) {
	stake, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %q", bet.ErrInvalidAmount, req.Amount)
	}
	if err := e.riskMgr.Check(req); err != nil {
		e.metrics.RecordRiskRejection()
		e.logger.Warn("bet rejected by risk limits", "error", err)
		return Result{}, err
	}

	e.submitMu.Lock()
	defer e.submitMu.Unlock()

	p, err := e.preparer(req,
		bet.WithLedger(e.store),
		bet.WithPublisher(e.pub),
		bet.WithMetrics(e.metrics),
		bet.WithOnSuccess(func(r *ethtypes.Receipt) {
			e.riskMgr.Record(stake, true)
			e.metrics.SetCooldown(e.riskMgr.IsCoolingDown())
			e.logger.Info("bet accepted", "tx", r.TxHash.Hex(), "block", r.BlockNumber)
		}),
		bet.WithOnError(func(err error) {
			e.riskMgr.Record(stake, false)
			e.metrics.SetCooldown(e.riskMgr.IsCoolingDown())
			e.logger.Warn("bet failed", "error", err)
		}),
	)
	if err != nil {
		return Result{}, err
	}

	err = p.Submit(ctx)
	st := p.State()
	var res Result
	switch {
	case st.Bet.Status != tx.StatusIdle:
		res.Stage = StagePlaced
	case st.Approve.Status != tx.StatusIdle:
		res.Stage = StageApproved
		res.ApproveTx = st.Approve.Hash.Hex()
	case err == nil:
		// the preparer skips the bet when the quote has no usable total
		return Result{}, fmt.Errorf("submit: %w", bet.ErrOddsUnavailable)
	default:
		return Result{}, err
	}
	if st.RecordID != "" {
		if rec, lerr := e.store.LoadBet(st.RecordID); lerr == nil && rec != nil {
			res.Bet = rec
		}
	}
	if st.Bet.Hash != (common.Hash{}) {
		res.TxURL = e.meta.TxURL(st.Bet.Hash)
	}
	return res, err
}

// Bet returns one ledger record.
func (e *Engine) Bet(id string) (*types.BetRecord, error) {
	rec, err := e.store.LoadBet(id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("bet %s: %w", id, ErrNotFound)
	}
	return rec, nil
}

// Bets returns every ledger record, newest first.
func (e *Engine) Bets() ([]types.BetRecord, error) {
	return e.store.ListBets()
}

func (e *Engine) preparer(req types.BetRequest, opts ...bet.Option) (*bet.Preparer, error) {
	if req.Affiliate == (common.Address{}) && e.cfg.Betting.Affiliate != "" {
		req.Affiliate = common.HexToAddress(e.cfg.Betting.Affiliate)
	}
	return bet.New(bet.Deps{
		Backend:         e.backend,
		Sender:          e.sender,
		Odds:            e.odds,
		Chain:           e.meta,
		Account:         e.account,
		OddsDecimals:    e.cfg.Betting.OddsDecimals,
		DefaultDeadline: e.cfg.Betting.DefaultDeadline,
		Logger:          e.logger,
	}, req, opts...)
}

// emit forwards an event to the API hub (non-blocking).
func (e *Engine) emit(_ context.Context, evt types.LifecycleEvent) error {
	select {
	case e.events <- evt:
	default:
		e.logger.Warn("event channel full, dropping event", "kind", evt.Kind, "to", evt.To)
	}
	return nil
}

type publisherFunc func(ctx context.Context, evt types.LifecycleEvent) error

func (f publisherFunc) Publish(ctx context.Context, evt types.LifecycleEvent) error {
	return f(ctx, evt)
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

