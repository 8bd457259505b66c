// Package risk enforces betting limits before any transaction is sent.
//
// The engine asks Check before preparing a bet and reports every settled bet
// through Record. Limits:
//
//   - Max bet amount:       caps the stake of a single bet
//   - Max slippage:         caps the slippage percent a request may ask for
//   - Duplicate conditions: a combo may not pick two outcomes of one condition
//   - Daily stake:          caps the total accepted stake per UTC day
//   - Failure cooldown:     after MaxConsecutiveFailures failed bets in a row,
//     betting pauses for CooldownAfterFailures
//
// A breached limit is returned as an error wrapping ErrLimit. The cooldown
// clears itself once it expires.
package risk

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"azuro-bet/internal/config"
	"azuro-bet/pkg/types"
)

// ErrLimit is wrapped by every rejection.
var ErrLimit = errors.New("risk limit")

// Manager tracks stake and failures for one wallet. Safe for concurrent use.
type Manager struct {
	cfg    config.RiskConfig
	logger *slog.Logger
	now    func() time.Time

	mu                  sync.Mutex
	day                 string          // UTC date dailyStake belongs to
	dailyStake          decimal.Decimal // accepted stake today, token units
	consecutiveFailures int
	cooldownActive      bool
	cooldownUntil       time.Time
}

// NewManager creates a risk manager.
func NewManager(cfg config.RiskConfig, logger *slog.Logger) *Manager {
	return &Manager{
		cfg:    cfg,
		logger: logger.With("component", "risk"),
		now:    time.Now,
	}
}

// Check validates req against every limit.
func (rm *Manager) Check(req types.BetRequest) error {
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return fmt.Errorf("%w: amount %q is not a number", ErrLimit, req.Amount)
	}

	if rm.cfg.MaxBetAmount > 0 && amount.GreaterThan(decimal.NewFromFloat(rm.cfg.MaxBetAmount)) {
		return fmt.Errorf("%w: amount %s exceeds max bet %v", ErrLimit, amount, rm.cfg.MaxBetAmount)
	}
	if req.Slippage.GreaterThan(decimal.NewFromFloat(rm.cfg.MaxSlippage)) {
		return fmt.Errorf("%w: slippage %s exceeds max %v", ErrLimit, req.Slippage, rm.cfg.MaxSlippage)
	}
	seen := make(map[string]bool, len(req.Selections))
	for _, s := range req.Selections {
		if s.ConditionID == nil {
			continue
		}
		key := s.ConditionID.String()
		if seen[key] {
			return fmt.Errorf("%w: condition %s selected twice", ErrLimit, key)
		}
		seen[key] = true
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.coolingDownLocked() {
		return fmt.Errorf("%w: betting paused until %s after %d failed bets",
			ErrLimit, rm.cooldownUntil.Format(time.RFC3339), rm.cfg.MaxConsecutiveFailures)
	}
	rm.rollDayLocked()
	if rm.cfg.DailyStakeLimit > 0 {
		limit := decimal.NewFromFloat(rm.cfg.DailyStakeLimit)
		if rm.dailyStake.Add(amount).GreaterThan(limit) {
			return fmt.Errorf("%w: daily stake %s + %s exceeds %v", ErrLimit, rm.dailyStake, amount, rm.cfg.DailyStakeLimit)
		}
	}
	return nil
}

// Record reports a settled bet. An accepted bet adds its stake to today's
// total and resets the failure streak; a failed one extends the streak and
// may start the cooldown.
func (rm *Manager) Record(amount decimal.Decimal, accepted bool) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if accepted {
		rm.rollDayLocked()
		rm.dailyStake = rm.dailyStake.Add(amount)
		rm.consecutiveFailures = 0
		return
	}

	rm.consecutiveFailures++
	if rm.cfg.MaxConsecutiveFailures > 0 && rm.consecutiveFailures >= rm.cfg.MaxConsecutiveFailures {
		rm.cooldownActive = true
		rm.cooldownUntil = rm.now().Add(rm.cfg.CooldownAfterFailures)
		rm.consecutiveFailures = 0
		rm.logger.Error("BETTING PAUSED",
			"reason", "consecutive failed bets",
			"failures", rm.cfg.MaxConsecutiveFailures,
			"cooldown_until", rm.cooldownUntil,
		)
	}
}

// Restore seeds today's stake from accepted ledger records, so a restart
// does not reset the daily limit.
func (rm *Manager) Restore(records []types.BetRecord, decimals int32) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	rm.rollDayLocked()
	for _, rec := range records {
		if rec.Status != types.BetAccepted || rec.CreatedAt.UTC().Format(time.DateOnly) != rm.day {
			continue
		}
		raw, err := decimal.NewFromString(rec.Amount)
		if err != nil {
			rm.logger.Warn("skipping ledger record with bad amount", "id", rec.ID, "amount", rec.Amount)
			continue
		}
		rm.dailyStake = rm.dailyStake.Add(raw.Shift(-decimals))
	}
	if rm.dailyStake.IsPositive() {
		rm.logger.Info("restored daily stake", "stake", rm.dailyStake.String())
	}
}

// IsCoolingDown reports whether betting is paused.
func (rm *Manager) IsCoolingDown() bool {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.coolingDownLocked()
}

// Snapshot is the current risk state for the API.
type Snapshot struct {
	DailyStake          string    `json:"daily_stake"`
	DailyStakeLimit     float64   `json:"daily_stake_limit"`
	MaxBetAmount        float64   `json:"max_bet_amount"`
	MaxSlippage         float64   `json:"max_slippage"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	CooldownActive      bool      `json:"cooldown_active"`
	CooldownUntil       time.Time `json:"cooldown_until,omitempty"`
}

// GetSnapshot returns the current risk state.
func (rm *Manager) GetSnapshot() Snapshot {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.rollDayLocked()
	active := rm.coolingDownLocked()
	s := Snapshot{
		DailyStake:          rm.dailyStake.String(),
		DailyStakeLimit:     rm.cfg.DailyStakeLimit,
		MaxBetAmount:        rm.cfg.MaxBetAmount,
		MaxSlippage:         rm.cfg.MaxSlippage,
		ConsecutiveFailures: rm.consecutiveFailures,
		CooldownActive:      active,
	}
	if active {
		s.CooldownUntil = rm.cooldownUntil
	}
	return s
}

func (rm *Manager) coolingDownLocked() bool {
	if !rm.cooldownActive {
		return false
	}
	if rm.now().After(rm.cooldownUntil) {
		rm.cooldownActive = false
		rm.logger.Info("betting cooldown expired")
		return false
	}
	return true
}

// rollDayLocked resets the daily stake at UTC midnight.
func (rm *Manager) rollDayLocked() {
	today := rm.now().UTC().Format(time.DateOnly)
	if today != rm.day {
		rm.day = today
		rm.dailyStake = decimal.Zero
	}
}
