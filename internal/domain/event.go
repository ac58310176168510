package domain

import "time"

// EventKind names a ledger event published after a successful mutation.
type EventKind string

const (
	EventPositionOpened  EventKind = "position_opened"
	EventPositionClosed  EventKind = "position_closed"
	EventEarlyWithdrawal EventKind = "early_withdrawal"
	EventTierSet         EventKind = "tier_set"
	EventUnlockChanged   EventKind = "unlock_changed"
)

// LedgerEvent is the JSON envelope sent over the signal bus and websocket.
// Amounts are decimal wei strings.
type LedgerEvent struct {
	Kind       EventKind  `json:"event"`
	PositionID *uint64    `json:"position_id,omitempty"`
	Address    string     `json:"address,omitempty"`
	LockDays   uint32     `json:"lock_days,omitempty"`
	Rate       *uint64    `json:"rate_bps,omitempty"`
	Amount     string     `json:"amount,omitempty"`
	Interest   string     `json:"interest,omitempty"`
	UnlockAt   *time.Time `json:"unlock_at,omitempty"`
	At         time.Time  `json:"at"`
}
