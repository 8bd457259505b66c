// Package tx tracks the lifecycle of a submitted transaction.
//
// A Machine moves through idle -> pending -> processing -> success|error.
// Pending covers signing and sending; processing starts once the node has
// accepted the transaction and lasts until a receipt is observed. A failure
// while still pending goes straight to error.
//
// Listeners are edge-triggered: they run once per status change, never when a
// poll merely observes the status the machine is already in.
package tx

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Status is one step of the transaction lifecycle.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusSuccess    Status = "success"
	StatusError      Status = "error"
)

// Terminal reports whether no further transition is expected.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusError
}

var (
	ErrReverted          = errors.New("transaction reverted")
	ErrInvalidTransition = errors.New("invalid transaction state transition")
)

// allowed lists the valid transitions. A terminal machine may start over.
var allowed = map[Status][]Status{
	StatusIdle:       {StatusPending},
	StatusPending:    {StatusProcessing, StatusError},
	StatusProcessing: {StatusSuccess, StatusError},
	StatusSuccess:    {StatusPending},
	StatusError:      {StatusPending},
}

// State is a snapshot of a Machine.
type State struct {
	Status    Status
	Hash      common.Hash
	Receipt   *types.Receipt
	Err       error
	UpdatedAt time.Time
}

func (s State) IsPending() bool    { return s.Status == StatusPending }
func (s State) IsProcessing() bool { return s.Status == StatusProcessing }
func (s State) IsSuccess() bool    { return s.Status == StatusSuccess }
func (s State) IsError() bool      { return s.Status == StatusError }

// Event describes one status change.
type Event struct {
	Kind  string // "approve" or "bet"
	From  Status
	To    Status
	State State
}

// Machine is a transition-validated transaction state. Safe for concurrent use.
type Machine struct {
	kind string
	now  func() time.Time

	mu        sync.Mutex
	state     State
	listeners []func(Event)
}

// NewMachine creates an idle machine for the given transaction kind.
func NewMachine(kind string) *Machine {
	return &Machine{
		kind:  kind,
		now:   time.Now,
		state: State{Status: StatusIdle},
	}
}

// Kind returns the transaction kind the machine tracks.
func (m *Machine) Kind() string { return m.kind }

// State returns the current snapshot.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Subscribe registers fn for every status change.
func (m *Machine) Subscribe(fn func(Event)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// OnTerminal registers callbacks for entering success or error. Either may be nil.
func (m *Machine) OnTerminal(success, failure func(State)) {
	m.Subscribe(func(e Event) {
		switch e.To {
		case StatusSuccess:
			if success != nil {
				success(e.State)
			}
		case StatusError:
			if failure != nil {
				failure(e.State)
			}
		}
	})
}

// Begin moves to pending, clearing the previous attempt.
func (m *Machine) Begin() error {
	return m.transition(StatusPending, func(s *State) {
		*s = State{}
	})
}

// Submitted records the accepted transaction hash and moves to processing.
func (m *Machine) Submitted(hash common.Hash) error {
	return m.transition(StatusProcessing, func(s *State) {
		s.Hash = hash
	})
}

// Observe applies a polled receipt. A nil receipt (not mined yet) and a
// receipt for an already terminal machine are no-ops; the return value
// reports whether a transition happened.
func (m *Machine) Observe(receipt *types.Receipt) (bool, error) {
	if receipt == nil {
		return false, nil
	}
	m.mu.Lock()
	current := m.state.Status
	m.mu.Unlock()
	if current.Terminal() {
		return false, nil
	}

	if receipt.Status == types.ReceiptStatusSuccessful {
		return true, m.transition(StatusSuccess, func(s *State) {
			s.Receipt = receipt
		})
	}
	return true, m.transition(StatusError, func(s *State) {
		s.Receipt = receipt
		s.Err = fmt.Errorf("%w: tx %s", ErrReverted, receipt.TxHash.Hex())
	})
}

// Fail moves a pending or processing machine to error.
func (m *Machine) Fail(err error) error {
	return m.transition(StatusError, func(s *State) {
		s.Err = err
	})
}

func (m *Machine) transition(to Status, apply func(*State)) error {
	m.mu.Lock()
	from := m.state.Status
	if !canTransition(from, to) {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	apply(&m.state)
	m.state.Status = to
	m.state.UpdatedAt = m.now()
	evt := Event{Kind: m.kind, From: from, To: to, State: m.state}
	listeners := slices.Clone(m.listeners)
	m.mu.Unlock()

	for _, fn := range listeners {
		fn(evt)
	}
	return nil
}

func canTransition(from, to Status) bool {
	for _, s := range allowed[from] {
		if s == to {
			return true
		}
	}
	return false
}
