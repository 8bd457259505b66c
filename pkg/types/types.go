// Package types defines shared data structures used across all packages.
//
// It holds the service's common vocabulary: selections, bet requests, chain
// metadata, the wallet account and lifecycle events.
// It has no dependencies on internal packages, so it can be imported by any layer.
package types

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// ————————————————————————————————————————————————————————————————————————
// Ambient context
// ————————————————————————————————————————————————————————————————————————

// Account is the connected wallet: the address that signs and the chain the
// node reports. It is passed explicitly into every workflow entry point.
type Account struct {
	Address common.Address
	ChainID int64
}

// ————————————————————————————————————————————————————————————————————————
// Chain metadata
// ————————————————————————————————————————————————————————————————————————

// Contracts holds the betting contract addresses deployed on a chain.
type Contracts struct {
	LP         common.Address // liquidity pool the bets are placed against
	Core       common.Address // single-selection core
	ComboCore  common.Address // multi-selection (combo) core
	ProxyFront common.Address // entry point: bet() and token spender
}

// BetToken describes the token stakes are paid in.
type BetToken struct {
	Address  common.Address
	Symbol   string
	Decimals int32
	Native   bool // stake is paid as tx value, no allowance involved
}

// ChainMetadata is the static configuration for one supported chain.
type ChainMetadata struct {
	ChainID        int64
	Name           string
	NativeCurrency string
	ExplorerURL    string
	Contracts      Contracts
	BetToken       BetToken
}

// TxURL returns the explorer link for a transaction hash, or "" when the
// chain has no explorer configured.
func (c ChainMetadata) TxURL(hash common.Hash) string {
	if c.ExplorerURL == "" {
		return ""
	}
	return fmt.Sprintf("%s/tx/%s", c.ExplorerURL, hash.Hex())
}

// ————————————————————————————————————————————————————————————————————————
// Bets
// ————————————————————————————————————————————————————————————————————————

// Selection is one (condition, outcome) pick. A bet with more than one
// selection is a combo.
type Selection struct {
	ConditionID *big.Int `json:"conditionId"` // uint256 on-chain
	OutcomeID   uint64   `json:"outcomeId"`
}

// BetRequest is everything the caller supplies to place a bet.
type BetRequest struct {
	Amount     string          // human-readable stake, e.g. "10.5"
	Slippage   decimal.Decimal // percent, 0..100
	Deadline   time.Duration   // 0 = configured default
	Affiliate  common.Address
	Selections []Selection
}

// IsCombo reports whether the request covers more than one selection.
func (r BetRequest) IsCombo() bool {
	return len(r.Selections) > 1
}

// BetStatus is the persisted outcome of a bet transaction.
type BetStatus string

const (
	BetPending  BetStatus = "pending"
	BetAccepted BetStatus = "accepted"
	BetRejected BetStatus = "rejected"
)

// BetRecord is the ledger entry written for every submitted bet.
type BetRecord struct {
	ID          string      `json:"id"`
	ChainID     int64       `json:"chain_id"`
	Account     string      `json:"account"`
	TxHash      string      `json:"tx_hash"`
	Core        string      `json:"core"`
	Amount      string      `json:"amount"`   // raw token units
	MinOdds     string      `json:"min_odds"` // raw, scaled by odds decimals
	ExpiresAt   int64       `json:"expires_at"`
	Selections  []Selection `json:"selections"`
	Status      BetStatus   `json:"status"`
	BlockNumber uint64      `json:"block_number,omitempty"`
	Error       string      `json:"error,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
}

// ————————————————————————————————————————————————————————————————————————
// Lifecycle events
// ————————————————————————————————————————————————————————————————————————

// LifecycleEvent is emitted whenever an approval or bet transaction changes
// status. Published to the WebSocket hub and, when configured, Kafka.
type LifecycleEvent struct {
	Type      string    `json:"type"` // always "tx_status"
	Timestamp time.Time `json:"timestamp"`
	ChainID   int64     `json:"chain_id"`
	Account   string    `json:"account"`
	Kind      string    `json:"kind"` // "approve" or "bet"
	From      string    `json:"from"`
	To        string    `json:"to"`
	TxHash    string    `json:"tx_hash,omitempty"`
	Error     string    `json:"error,omitempty"`
}
