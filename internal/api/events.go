package api

import (
	"time"

	"azuro-bet/pkg/types"
)

// Event is the wrapper for every message sent over the WebSocket.
type Event struct {
	Type      string      `json:"type"`      // "snapshot" or "tx_status"
	Timestamp time.Time   `json:"timestamp"` // Event time
	Data      interface{} `json:"data"`      // Event-specific payload
}

// TxStatusEvent is the payload of a "tx_status" event.
type TxStatusEvent struct {
	ChainID int64  `json:"chain_id"`
	Account string `json:"account"`
	Kind    string `json:"kind"` // "approve" or "bet"
	From    string `json:"from"`
	To      string `json:"to"`
	TxHash  string `json:"tx_hash,omitempty"`
	Error   string `json:"error,omitempty"`
}

// NewTxStatusEvent wraps a lifecycle event for the WebSocket.
func NewTxStatusEvent(evt types.LifecycleEvent) Event {
	return Event{
		Type:      "tx_status",
		Timestamp: evt.Timestamp,
		Data: TxStatusEvent{
			ChainID: evt.ChainID,
			Account: evt.Account,
			Kind:    evt.Kind,
			From:    evt.From,
			To:      evt.To,
			TxHash:  evt.TxHash,
			Error:   evt.Error,
		},
	}
}
