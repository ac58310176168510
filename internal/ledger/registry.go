package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/stakingledger/internal/domain"
)

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithTierStore persists every SetTier through s before it takes effect.
func WithTierStore(s domain.TierStore) RegistryOption {
	return func(r *Registry) { r.store = s }
}

// WithStrictTerms enables bounds checks on operator input: SetTier refuses
// a zero rate or one above maxRate, and ChangeUnlockDate refuses dates
// before creation and closed positions.
func WithStrictTerms(maxRate uint64) RegistryOption {
	return func(r *Registry) {
		r.strict = true
		r.maxRate = maxRate
	}
}

// WithSeedTiers registers extra tiers on top of the defaults.
func WithSeedTiers(tiers []domain.Tier) RegistryOption {
	return func(r *Registry) {
		for _, t := range tiers {
			r.set(t.LockDays, t.Rate)
		}
	}
}

// Registry maps lock periods to interest rates. Only the operator may
// change it, and changes never touch existing positions: each position
// captured its rate at creation.
type Registry struct {
	operator common.Address
	store    domain.TierStore
	strict   bool
	maxRate  uint64

	mu    sync.RWMutex
	rates map[uint32]uint64
	order []uint32
}

// NewRegistry returns a registry owned by operator and pre-populated with
// domain.DefaultTiers.
func NewRegistry(operator common.Address, opts ...RegistryOption) *Registry {
	r := &Registry{
		operator: operator,
		rates:    make(map[uint32]uint64),
	}
	for _, t := range domain.DefaultTiers() {
		r.set(t.LockDays, t.Rate)
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Operator returns the privileged identity.
func (r *Registry) Operator() common.Address {
	return r.operator
}

// IsOperator reports whether caller holds the operator role. The zero
// address never does.
func (r *Registry) IsOperator(caller common.Address) bool {
	return caller != (common.Address{}) && caller == r.operator
}

// LookupRate returns the rate registered for days, or
// domain.ErrTierNotFound.
func (r *Registry) LookupRate(days uint32) (uint64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rate, ok := r.rates[days]
	if !ok {
		return 0, fmt.Errorf("%w: %d days", domain.ErrTierNotFound, days)
	}
	return rate, nil
}

// SetTier creates the tier for days or overwrites its rate. Rates are not
// range-checked unless strict terms are enabled.
func (r *Registry) SetTier(ctx context.Context, caller common.Address, days uint32, rate uint64) error {
	if inTransfer(ctx) {
		return domain.ErrReentrantCall
	}
	if !r.IsOperator(caller) {
		return domain.ErrNotAuthorized
	}
	if days == 0 {
		return fmt.Errorf("%w: lock period must be at least one day", domain.ErrInvalidTerms)
	}
	if r.strict && (rate == 0 || rate > r.maxRate) {
		return fmt.Errorf("%w: rate %d outside 1..%d", domain.ErrInvalidTerms, rate, r.maxRate)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.store != nil {
		if err := r.store.Upsert(ctx, domain.Tier{LockDays: days, Rate: rate}); err != nil {
			return fmt.Errorf("ledger: persist tier %d: %w", days, err)
		}
	}
	r.set(days, rate)
	return nil
}

// LockPeriods lists registered lock periods in registration order.
func (r *Registry) LockPeriods() []uint32 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]uint32, len(r.order))
	copy(out, r.order)
	return out
}

// Tiers lists registered tiers in registration order.
func (r *Registry) Tiers() []domain.Tier {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Tier, 0, len(r.order))
	for _, d := range r.order {
		out = append(out, domain.Tier{LockDays: d, Rate: r.rates[d]})
	}
	return out
}

// restore applies persisted tiers over the in-memory ones.
func (r *Registry) restore(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	tiers, err := r.store.List(ctx)
	if err != nil {
		return fmt.Errorf("ledger: load tiers: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range tiers {
		r.set(t.LockDays, t.Rate)
	}
	return nil
}

// set must be called with mu held (or before the registry is shared).
func (r *Registry) set(days uint32, rate uint64) {
	if _, ok := r.rates[days]; !ok {
		r.order = append(r.order, days)
	}
	r.rates[days] = rate
}
