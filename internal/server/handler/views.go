package handler

import (
	"time"

	"github.com/alanyoungcy/stakingledger/internal/domain"
)

// Amounts are rendered as decimal wei strings.

type positionView struct {
	ID        uint64     `json:"id"`
	Owner     string     `json:"owner"`
	LockDays  uint32     `json:"lock_days"`
	Rate      uint64     `json:"rate_bps"`
	Principal string     `json:"principal"`
	Interest  string     `json:"interest"`
	CreatedAt time.Time  `json:"created_at"`
	UnlockAt  time.Time  `json:"unlock_at"`
	Open      bool       `json:"open"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`
	Payout    string     `json:"payout,omitempty"`
}

func newPositionView(p domain.Position) positionView {
	v := positionView{
		ID:        p.ID,
		Owner:     p.Owner.Hex(),
		LockDays:  p.LockDays,
		Rate:      p.Rate,
		Principal: p.Principal.Dec(),
		Interest:  p.Interest.Dec(),
		CreatedAt: p.CreatedAt,
		UnlockAt:  p.UnlockAt,
		Open:      p.Open,
		ClosedAt:  p.ClosedAt,
	}
	if p.Payout != nil {
		v.Payout = p.Payout.Dec()
	}
	return v
}

type closureView struct {
	PositionID uint64    `json:"position_id"`
	Owner      string    `json:"owner"`
	Payout     string    `json:"payout"`
	Forfeited  string    `json:"forfeited"`
	Early      bool      `json:"early"`
	ClosedAt   time.Time `json:"closed_at"`
}

func newClosureView(c domain.Closure) closureView {
	return closureView{
		PositionID: c.PositionID,
		Owner:      c.Owner.Hex(),
		Payout:     c.Payout.Dec(),
		Forfeited:  c.Forfeited.Dec(),
		Early:      c.Early,
		ClosedAt:   c.ClosedAt,
	}
}

type quoteView struct {
	LockDays  uint32    `json:"lock_days"`
	Rate      uint64    `json:"rate_bps"`
	Principal string    `json:"principal"`
	Interest  string    `json:"interest"`
	UnlockAt  time.Time `json:"unlock_at"`
}

func newQuoteView(q domain.Quote) quoteView {
	return quoteView{
		LockDays:  q.LockDays,
		Rate:      q.Rate,
		Principal: q.Principal.Dec(),
		Interest:  q.Interest.Dec(),
		UnlockAt:  q.UnlockAt,
	}
}

type summaryView struct {
	Positions     uint64 `json:"positions"`
	OpenPositions uint64 `json:"open_positions"`
	LockedTotal   string `json:"locked_total"`
	InterestOwed  string `json:"interest_owed"`
	ClosedPayouts string `json:"closed_payouts"`
}

func newSummaryView(s domain.Summary) summaryView {
	return summaryView{
		Positions:     s.Positions,
		OpenPositions: s.OpenPositions,
		LockedTotal:   s.LockedTotal.Dec(),
		InterestOwed:  s.InterestOwed.Dec(),
		ClosedPayouts: s.ClosedPayouts.Dec(),
	}
}
