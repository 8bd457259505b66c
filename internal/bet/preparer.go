// Package bet prepares and submits bets against the proxy-front contract.
//
// A Preparer owns one bet request and walks it through:
//
//  1. RefreshAllowance: read the bet token allowance of the proxy front
//  2. Approve:          approve(proxyFront, MaxUint256), then re-read allowance
//  3. RefreshOdds:      quote the selections through an odds.Calculator
//  4. PlaceBet:         proxyFront.bet(lp, [{core, amount, expiresAt, extraData}])
//
// Submit chains these the way a bet button does: when approval is required it
// approves and returns, and the caller submits again to bet. Native-token
// chains skip allowance entirely and pay the stake as transaction value.
//
// Step results live on the Preparer as state (see Snapshot) and are also
// returned as errors. Steps are serialized; State may be read at any time.
package bet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"azuro-bet/internal/chain"
	"azuro-bet/internal/config"
	"azuro-bet/internal/contracts"
	"azuro-bet/internal/odds"
	"azuro-bet/internal/tx"
	"azuro-bet/pkg/types"
)

var (
	ErrNoSelections     = contracts.ErrNoSelections
	ErrUnsupportedChain = errors.New("chain is not supported")
	ErrInvalidAmount    = errors.New("invalid bet amount")
	ErrInvalidSlippage  = errors.New("slippage must be between 0 and 100")
	ErrInvalidSelection = errors.New("invalid selection")
	ErrOddsUnavailable  = errors.New("odds are not available")
)

const publishTimeout = 5 * time.Second

// Ledger persists bet records.
type Ledger interface {
	SaveBet(rec types.BetRecord) error
}

// Publisher receives every approval and bet status change.
type Publisher interface {
	Publish(ctx context.Context, evt types.LifecycleEvent) error
}

// Recorder collects step outcomes for metrics.
type Recorder interface {
	ObserveAllowanceRead(err error)
	ObserveOdds(err error)
	ObserveTx(kind string, status tx.Status, latency time.Duration)
}

// Deps are the collaborators a Preparer works with. Chain is the resolved
// metadata of Account's chain; nil means the chain is unsupported.
type Deps struct {
	Backend         chain.Backend
	Sender          *tx.Sender
	Odds            odds.Calculator
	Chain           *types.ChainMetadata
	Account         types.Account
	OddsDecimals    int32         // 0 = config.DefaultOddsDecimals
	DefaultDeadline time.Duration // 0 = config.DefaultDeadline
	Logger          *slog.Logger
}

// Option configures a Preparer.
type Option func(*Preparer)

// WithOnSuccess registers fn for the bet transaction succeeding.
func WithOnSuccess(fn func(*ethtypes.Receipt)) Option {
	return func(p *Preparer) { p.onSuccess = fn }
}

// WithOnError registers fn for the bet transaction failing.
func WithOnError(fn func(error)) Option {
	return func(p *Preparer) { p.onError = fn }
}

// WithLedger records every bet transaction in l.
func WithLedger(l Ledger) Option {
	return func(p *Preparer) { p.ledger = l }
}

// WithPublisher emits lifecycle events for both transactions to pub.
func WithPublisher(pub Publisher) Option {
	return func(p *Preparer) { p.publisher = pub }
}

// WithMetrics reports step outcomes to r.
func WithMetrics(r Recorder) Option {
	return func(p *Preparer) { p.metrics = r }
}

// WithClock overrides time.Now for deadline computation.
func WithClock(now func() time.Time) Option {
	return func(p *Preparer) { p.now = now }
}

// AllowanceState is the last allowance read.
type AllowanceState struct {
	Value   *big.Int
	Loaded  bool
	Loading bool
	Err     error
}

// OddsState is the last odds quote.
type OddsState struct {
	Odds    odds.Odds
	Loaded  bool
	Loading bool
	Err     error
}

// Snapshot is the observable state of a Preparer.
type Snapshot struct {
	Allowance       AllowanceState
	Odds            OddsState
	Approve         tx.State
	Bet             tx.State
	ApproveRequired bool
	RecordID        string // ledger id of the last bet attempt
}

// Preparer runs the bet workflow for one request.
type Preparer struct {
	deps      Deps
	req       types.BetRequest
	rawAmount *big.Int
	decimals  int32 // odds precision
	deadline  time.Duration

	onSuccess func(*ethtypes.Receipt)
	onError   func(error)
	ledger    Ledger
	publisher Publisher
	metrics   Recorder
	now       func() time.Time
	logger    *slog.Logger

	approveTx *tx.Machine
	betTx     *tx.Machine

	step sync.Mutex // serializes workflow steps

	mu        sync.Mutex // guards the fields below
	allowance AllowanceState
	odds      OddsState
	record    *types.BetRecord
}

// New validates req against the resolved chain and builds a Preparer.
func New(deps Deps, req types.BetRequest, opts ...Option) (*Preparer, error) {
	if len(req.Selections) == 0 {
		return nil, ErrNoSelections
	}
	for i, s := range req.Selections {
		if s.ConditionID == nil || s.ConditionID.Sign() < 0 {
			return nil, fmt.Errorf("%w: selection %d has no condition id", ErrInvalidSelection, i)
		}
	}
	if deps.Chain == nil {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedChain, deps.Account.ChainID)
	}
	if req.Slippage.IsNegative() || req.Slippage.GreaterThan(hundred) {
		return nil, fmt.Errorf("%w: got %s", ErrInvalidSlippage, req.Slippage)
	}
	raw, err := ParseAmount(req.Amount, deps.Chain.BetToken.Decimals)
	if err != nil {
		return nil, err
	}
	if raw.BitLen() > 128 {
		return nil, fmt.Errorf("%w: %q exceeds uint128", ErrInvalidAmount, req.Amount)
	}

	p := &Preparer{
		deps:      deps,
		req:       req,
		rawAmount: raw,
		decimals:  deps.OddsDecimals,
		deadline:  deps.DefaultDeadline,
		now:       time.Now,
		approveTx: tx.NewMachine("approve"),
		betTx:     tx.NewMachine("bet"),
	}
	if p.decimals == 0 {
		p.decimals = config.DefaultOddsDecimals
	}
	if p.deadline == 0 {
		p.deadline = config.DefaultDeadline
	}
	for _, opt := range opts {
		opt(p)
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	p.logger = logger.With("component", "bet", "chain_id", deps.Chain.ChainID, "account", deps.Account.Address.Hex())

	p.betTx.OnTerminal(
		func(st tx.State) {
			if p.onSuccess != nil {
				p.onSuccess(st.Receipt)
			}
		},
		func(st tx.State) {
			if p.onError != nil {
				p.onError(st.Err)
			}
		},
	)
	p.betTx.Subscribe(p.recordBet)
	p.watch(p.approveTx)
	p.watch(p.betTx)
	return p, nil
}

// RawAmount is the stake in token units.
func (p *Preparer) RawAmount() *big.Int {
	return new(big.Int).Set(p.rawAmount)
}

// Native reports whether the stake is paid in the chain's native asset.
func (p *Preparer) Native() bool {
	return p.deps.Chain.BetToken.Native
}

// State returns a snapshot of allowance, odds and both transactions.
func (p *Preparer) State() Snapshot {
	p.mu.Lock()
	s := Snapshot{
		Allowance:       p.allowance,
		Odds:            p.odds,
		ApproveRequired: p.approveRequiredLocked(),
	}
	if p.record != nil {
		s.RecordID = p.record.ID
	}
	p.mu.Unlock()
	s.Approve = p.approveTx.State()
	s.Bet = p.betTx.State()
	return s
}

// IsApproveRequired reports whether the bet token allowance is loaded and
// below the stake. Always false for a native bet token.
func (p *Preparer) IsApproveRequired() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.approveRequiredLocked()
}

func (p *Preparer) approveRequiredLocked() bool {
	if p.Native() || !p.allowance.Loaded {
		return false
	}
	return p.allowance.Value.Cmp(p.rawAmount) < 0
}

// RefreshAllowance reads allowance(account, proxyFront). No call is made for
// a native bet token.
func (p *Preparer) RefreshAllowance(ctx context.Context) error {
	p.step.Lock()
	defer p.step.Unlock()
	return p.refreshAllowance(ctx)
}

func (p *Preparer) refreshAllowance(ctx context.Context) error {
	if p.Native() {
		return nil
	}
	p.mu.Lock()
	p.allowance.Loading = true
	p.mu.Unlock()

	value, err := p.readAllowance(ctx)
	if p.metrics != nil {
		p.metrics.ObserveAllowanceRead(err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.allowance.Loading = false
	p.allowance.Err = err
	if err != nil {
		p.logger.Warn("allowance read failed", "error", err)
		return err
	}
	p.allowance.Value = value
	p.allowance.Loaded = true
	p.logger.Debug("allowance loaded", "allowance", value.String(), "stake", p.rawAmount.String())
	return nil
}

func (p *Preparer) readAllowance(ctx context.Context) (*big.Int, error) {
	data, err := contracts.PackAllowance(p.deps.Account.Address, p.deps.Chain.Contracts.ProxyFront)
	if err != nil {
		return nil, err
	}
	token := p.deps.Chain.BetToken.Address
	out, err := p.deps.Backend.CallContract(ctx, ethereum.CallMsg{From: p.deps.Account.Address, To: &token, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("read allowance: %w", err)
	}
	return contracts.UnpackAllowance(out)
}

// Approve grants the proxy front an unlimited allowance, waits for the
// receipt and re-reads the allowance once it succeeds. It is not retried.
func (p *Preparer) Approve(ctx context.Context) error {
	p.step.Lock()
	defer p.step.Unlock()
	return p.approve(ctx)
}

func (p *Preparer) approve(ctx context.Context) error {
	if p.Native() {
		return nil
	}
	data, err := contracts.PackApprove(p.deps.Chain.Contracts.ProxyFront, contracts.MaxApproval)
	if err != nil {
		return err
	}
	p.logger.Info("approving bet token", "token", p.deps.Chain.BetToken.Symbol, "spender", p.deps.Chain.Contracts.ProxyFront.Hex())
	if _, err := p.deps.Sender.Send(ctx, p.approveTx, tx.Call{To: p.deps.Chain.BetToken.Address, Data: data}); err != nil {
		p.logger.Warn("approval failed", "error", err)
		return fmt.Errorf("approve: %w", err)
	}
	return p.refreshAllowance(ctx)
}

// RefreshOdds quotes the selections for the stake.
func (p *Preparer) RefreshOdds(ctx context.Context) error {
	p.step.Lock()
	defer p.step.Unlock()
	return p.refreshOdds(ctx)
}

func (p *Preparer) refreshOdds(ctx context.Context) error {
	p.mu.Lock()
	p.odds.Loading = true
	p.mu.Unlock()

	quote, err := p.deps.Odds.Calculate(ctx, p.req.Selections, p.rawAmount)
	if p.metrics != nil {
		p.metrics.ObserveOdds(err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.odds.Loading = false
	p.odds.Err = err
	if err != nil {
		p.logger.Warn("odds calculation failed", "error", err)
		return fmt.Errorf("calculate odds: %w", err)
	}
	quote.Total = quote.Total.Round(p.decimals)
	for i := range quote.PerSelection {
		quote.PerSelection[i] = quote.PerSelection[i].Round(p.decimals)
	}
	p.odds.Odds = quote
	p.odds.Loaded = true
	return nil
}

// Submit approves when the allowance is short and stops there; otherwise it
// quotes odds if needed and places the bet.
func (p *Preparer) Submit(ctx context.Context) error {
	p.step.Lock()
	defer p.step.Unlock()

	if !p.Native() {
		p.mu.Lock()
		loaded := p.allowance.Loaded
		p.mu.Unlock()
		if !loaded {
			if err := p.refreshAllowance(ctx); err != nil {
				return err
			}
		}
	}
	if p.IsApproveRequired() {
		return p.approve(ctx)
	}

	p.mu.Lock()
	quoted := p.odds.Loaded
	p.mu.Unlock()
	if !quoted {
		if err := p.refreshOdds(ctx); err != nil {
			return err
		}
	}
	return p.placeBet(ctx)
}

// PlaceBet sends the bet and waits for its receipt. Without a loaded odds
// quote it does nothing.
func (p *Preparer) PlaceBet(ctx context.Context) error {
	p.step.Lock()
	defer p.step.Unlock()
	return p.placeBet(ctx)
}

func (p *Preparer) placeBet(ctx context.Context) error {
	prepared, err := p.Prepare(p.now())
	if errors.Is(err, ErrOddsUnavailable) {
		p.logger.Debug("odds not loaded, bet skipped")
		return nil
	}
	if err != nil {
		return err
	}

	rec := types.BetRecord{
		ID:         uuid.NewString(),
		ChainID:    p.deps.Chain.ChainID,
		Account:    p.deps.Account.Address.Hex(),
		Core:       prepared.Core.Hex(),
		Amount:     prepared.Amount.String(),
		MinOdds:    new(big.Int).SetUint64(prepared.MinOddsRaw).String(),
		ExpiresAt:  int64(prepared.ExpiresAt),
		Selections: p.req.Selections,
		Status:     types.BetPending,
		CreatedAt:  p.now().UTC(),
	}
	p.mu.Lock()
	p.record = &rec
	p.mu.Unlock()

	p.logger.Info("placing bet",
		"core", prepared.Core.Hex(),
		"amount", prepared.Amount.String(),
		"min_odds", prepared.MinOdds.String(),
		"selections", len(p.req.Selections),
	)
	if _, err := p.deps.Sender.Send(ctx, p.betTx, prepared.Call); err != nil {
		return fmt.Errorf("place bet: %w", err)
	}
	return nil
}

// Prepared is a fully built bet call.
type Prepared struct {
	Call       tx.Call
	Core       common.Address
	Amount     *big.Int
	MinOdds    decimal.Decimal
	MinOddsRaw uint64
	ExpiresAt  uint64
	Data       []byte // encoded selections
}

// Prepare builds the proxy-front call from the loaded odds quote as of now.
// It returns ErrOddsUnavailable when no quote is loaded.
func (p *Preparer) Prepare(now time.Time) (Prepared, error) {
	p.mu.Lock()
	quoted, total := p.odds.Loaded, p.odds.Odds.Total
	p.mu.Unlock()
	if !quoted || !total.IsPositive() {
		return Prepared{}, ErrOddsUnavailable
	}

	minOdds := MinOdds(total, p.req.Slippage, p.decimals)
	minRaw := odds.ToRaw(minOdds, p.decimals)
	if !minRaw.IsUint64() {
		return Prepared{}, fmt.Errorf("min odds %s overflow uint64", minOdds)
	}

	data, err := contracts.EncodeSelections(p.req.Selections)
	if err != nil {
		return Prepared{}, err
	}
	core := p.deps.Chain.Contracts.Core
	if p.req.IsCombo() {
		core = p.deps.Chain.Contracts.ComboCore
	}
	expiresAt := ExpiresAt(now, p.req.Deadline, p.deadline)

	betData := contracts.BetData{
		Core:      core,
		Amount:    p.RawAmount(),
		ExpiresAt: expiresAt,
		ExtraData: contracts.ExtraData{
			Affiliate: p.req.Affiliate,
			MinOdds:   minRaw.Uint64(),
			Data:      data,
		},
	}
	input, err := contracts.PackBet(p.deps.Chain.Contracts.LP, []contracts.BetData{betData})
	if err != nil {
		return Prepared{}, err
	}

	var value *big.Int
	if p.Native() {
		value = p.RawAmount()
	}
	return Prepared{
		Call:       tx.Call{To: p.deps.Chain.Contracts.ProxyFront, Data: input, Value: value},
		Core:       core,
		Amount:     betData.Amount,
		MinOdds:    minOdds,
		MinOddsRaw: minRaw.Uint64(),
		ExpiresAt:  expiresAt,
		Data:       data,
	}, nil
}

// recordBet keeps the ledger entry of the current bet in step with its
// transaction.
func (p *Preparer) recordBet(e tx.Event) {
	if p.ledger == nil {
		return
	}
	p.mu.Lock()
	if p.record == nil {
		p.mu.Unlock()
		return
	}
	switch e.To {
	case tx.StatusProcessing:
		p.record.TxHash = e.State.Hash.Hex()
	case tx.StatusSuccess:
		p.record.Status = types.BetAccepted
		if e.State.Receipt != nil && e.State.Receipt.BlockNumber != nil {
			p.record.BlockNumber = e.State.Receipt.BlockNumber.Uint64()
		}
	case tx.StatusError:
		p.record.Status = types.BetRejected
		if e.State.Err != nil {
			p.record.Error = e.State.Err.Error()
		}
	default:
		p.mu.Unlock()
		return
	}
	rec := *p.record
	p.mu.Unlock()

	if err := p.ledger.SaveBet(rec); err != nil {
		p.logger.Error("failed to save bet record", "id", rec.ID, "error", err)
	}
}

// watch publishes status changes of m and reports terminal ones to metrics.
func (p *Preparer) watch(m *tx.Machine) {
	var started time.Time
	m.Subscribe(func(e tx.Event) {
		if e.To == tx.StatusPending {
			started = e.State.UpdatedAt
		}
		if e.To.Terminal() && p.metrics != nil {
			p.metrics.ObserveTx(e.Kind, e.To, e.State.UpdatedAt.Sub(started))
		}
		if p.publisher == nil {
			return
		}
		evt := types.LifecycleEvent{
			Type:      "tx_status",
			Timestamp: e.State.UpdatedAt,
			ChainID:   p.deps.Chain.ChainID,
			Account:   p.deps.Account.Address.Hex(),
			Kind:      e.Kind,
			From:      string(e.From),
			To:        string(e.To),
		}
		if e.State.Hash != (common.Hash{}) {
			evt.TxHash = e.State.Hash.Hex()
		}
		if e.State.Err != nil {
			evt.Error = e.State.Err.Error()
		}
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := p.publisher.Publish(ctx, evt); err != nil {
			p.logger.Warn("failed to publish lifecycle event", "kind", e.Kind, "to", e.To, "error", err)
		}
	})
}
