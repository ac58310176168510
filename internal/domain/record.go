package domain

import (
	"time"

	"github.com/holiman/uint256"
)

// PositionRecord is the wire form of a Position. Amounts are decimal wei
// strings so no precision is lost in JSON.
type PositionRecord struct {
	ID        uint64     `json:"position_id"`
	Owner     string     `json:"owner"`
	CreatedAt time.Time  `json:"created_at"`
	UnlockAt  time.Time  `json:"unlock_at"`
	LockDays  uint32     `json:"lock_days"`
	Rate      uint64     `json:"rate_bps"`
	Principal string     `json:"principal"`
	Interest  string     `json:"interest"`
	Open      bool       `json:"open"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`
	Payout    string     `json:"payout,omitempty"`
}

// NewPositionRecord converts a Position for serialisation.
func NewPositionRecord(p Position) PositionRecord {
	r := PositionRecord{
		ID:        p.ID,
		Owner:     p.Owner.Hex(),
		CreatedAt: p.CreatedAt,
		UnlockAt:  p.UnlockAt,
		LockDays:  p.LockDays,
		Rate:      p.Rate,
		Principal: decOrZero(p.Principal),
		Interest:  decOrZero(p.Interest),
		Open:      p.Open,
		ClosedAt:  p.ClosedAt,
	}
	if p.Payout != nil {
		r.Payout = p.Payout.Dec()
	}
	return r
}

func decOrZero(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}
