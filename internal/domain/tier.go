package domain

const (
	// RateDenominator is the divisor applied to a tier rate: rates are in
	// basis points, so 700 means 7.00%.
	RateDenominator = 10_000

	// SecondsPerDay converts a lock period in days to seconds.
	SecondsPerDay = 86_400
)

// Tier pairs a lock period with the interest rate a deposit of that length
// earns.
type Tier struct {
	LockDays uint32 `json:"lock_days"`
	Rate     uint64 `json:"rate_bps"`
}

// DefaultTiers returns the tiers every new registry starts with.
func DefaultTiers() []Tier {
	return []Tier{
		{LockDays: 30, Rate: 700},
		{LockDays: 90, Rate: 1000},
		{LockDays: 180, Rate: 1200},
	}
}
