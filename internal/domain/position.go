package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Position is one deposit held by the ledger. ID doubles as the position's
// index in the ledger's arena.
type Position struct {
	ID        uint64
	Owner     common.Address
	CreatedAt time.Time
	UnlockAt  time.Time
	LockDays  uint32
	Rate      uint64
	Principal *uint256.Int
	Interest  *uint256.Int
	Open      bool

	// Set once the position is closed.
	ClosedAt *time.Time
	Payout   *uint256.Int
}

// Clone returns a deep copy so callers never share the ledger's integers.
func (p Position) Clone() Position {
	out := p
	if p.Principal != nil {
		out.Principal = p.Principal.Clone()
	}
	if p.Interest != nil {
		out.Interest = p.Interest.Clone()
	}
	if p.Payout != nil {
		out.Payout = p.Payout.Clone()
	}
	if p.ClosedAt != nil {
		t := *p.ClosedAt
		out.ClosedAt = &t
	}
	return out
}

// Closure is the receipt of a successful close.
type Closure struct {
	PositionID uint64
	Owner      common.Address
	Payout     *uint256.Int
	Forfeited  *uint256.Int
	Early      bool
	ClosedAt   time.Time
}

// Summary aggregates the ledger's book.
type Summary struct {
	Positions     uint64
	OpenPositions uint64
	LockedTotal   *uint256.Int // principal of open positions
	InterestOwed  *uint256.Int // interest payable if every open position matures
	ClosedPayouts *uint256.Int
}

// Quote previews the terms a stake would receive right now.
type Quote struct {
	LockDays  uint32
	Rate      uint64
	Principal *uint256.Int
	Interest  *uint256.Int
	UnlockAt  time.Time
}
