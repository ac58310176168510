package ledger

import (
	"time"

	"github.com/holiman/uint256"

	"github.com/alanyoungcy/stakingledger/internal/domain"
)

var rateDenominator = uint256.NewInt(domain.RateDenominator)

// Interest returns amount * rate / 10000, truncated toward zero. The
// product is computed in 512 bits, so only a quotient wider than 256 bits
// fails.
func Interest(rate uint64, amount *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).MulDivOverflow(amount, uint256.NewInt(rate), rateDenominator)
	if overflow {
		return nil, domain.ErrAmountOverflow
	}
	return z, nil
}

// UnlockAt returns now + days*86400 seconds.
func UnlockAt(now time.Time, days uint32) time.Time {
	return time.Unix(now.Unix()+int64(days)*domain.SecondsPerDay, 0).UTC()
}

// Payout applies the withdrawal rule to pos at time now. At or after the
// unlock time the owner receives principal plus interest; before it the
// interest is forfeited and only the principal is paid.
func Payout(pos domain.Position, now time.Time) (payout, forfeited *uint256.Int, early bool, err error) {
	if now.Before(pos.UnlockAt) {
		return pos.Principal.Clone(), pos.Interest.Clone(), true, nil
	}
	total, overflow := new(uint256.Int).AddOverflow(pos.Principal, pos.Interest)
	if overflow {
		return nil, nil, false, domain.ErrAmountOverflow
	}
	return total, new(uint256.Int), false, nil
}
