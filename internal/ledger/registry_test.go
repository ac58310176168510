package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/stakingledger/internal/domain"
	"github.com/alanyoungcy/stakingledger/internal/store/memory"
)

func TestRegistry_Defaults(t *testing.T) {
	r := NewRegistry(operator)

	for _, tier := range domain.DefaultTiers() {
		rate, err := r.LookupRate(tier.LockDays)
		require.NoError(t, err)
		assert.Equal(t, tier.Rate, rate)
	}
	assert.Equal(t, []uint32{30, 90, 180}, r.LockPeriods())

	for _, days := range []uint32{0, 1, 29, 31, 365} {
		_, err := r.LookupRate(days)
		assert.ErrorIs(t, err, domain.ErrTierNotFound, "days=%d", days)
	}
}

func TestRegistry_SetTierLastWriteWins(t *testing.T) {
	ctx := context.Background()
	store := memory.NewTierStore()
	r := NewRegistry(operator, WithTierStore(store))

	require.NoError(t, r.SetTier(ctx, operator, 90, 1500))
	require.NoError(t, r.SetTier(ctx, operator, 365, 0))
	require.NoError(t, r.SetTier(ctx, operator, 90, 1100))

	rate, err := r.LookupRate(90)
	require.NoError(t, err)
	assert.Equal(t, uint64(1100), rate)

	rate, err = r.LookupRate(365)
	require.NoError(t, err)
	assert.Zero(t, rate, "a zero rate is still a registered tier")

	assert.Equal(t, []uint32{30, 90, 180, 365}, r.LockPeriods())

	persisted, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.Tier{{LockDays: 90, Rate: 1100}, {LockDays: 365, Rate: 0}}, persisted)
}

func TestRegistry_SetTierRejections(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(operator)

	tests := []struct {
		name   string
		caller common.Address
		days   uint32
		want   error
	}{
		{"stranger", alice, 30, domain.ErrNotAuthorized},
		{"zero address", common.Address{}, 30, domain.ErrNotAuthorized},
		{"zero days", operator, 0, domain.ErrInvalidTerms},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := r.SetTier(ctx, tt.caller, tt.days, 9999)
			require.ErrorIs(t, err, tt.want)

			rate, err := r.LookupRate(30)
			require.NoError(t, err)
			assert.Equal(t, uint64(700), rate)
		})
	}
}

func TestRegistry_StrictTerms(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(operator, WithStrictTerms(3000))

	assert.ErrorIs(t, r.SetTier(ctx, operator, 30, 0), domain.ErrInvalidTerms)
	assert.ErrorIs(t, r.SetTier(ctx, operator, 30, 3001), domain.ErrInvalidTerms)
	assert.NoError(t, r.SetTier(ctx, operator, 30, 3000))
}

type brokenTierStore struct{}

func (brokenTierStore) Upsert(context.Context, domain.Tier) error { return errors.New("offline") }
func (brokenTierStore) List(context.Context) ([]domain.Tier, error) {
	return nil, errors.New("offline")
}

func TestRegistry_StoreFailureKeepsRate(t *testing.T) {
	r := NewRegistry(operator, WithTierStore(brokenTierStore{}))

	require.Error(t, r.SetTier(context.Background(), operator, 30, 1))
	rate, err := r.LookupRate(30)
	require.NoError(t, err)
	assert.Equal(t, uint64(700), rate)

	require.Error(t, r.restore(context.Background()))
}

func TestRegistry_SeedTiers(t *testing.T) {
	r := NewRegistry(operator, WithSeedTiers([]domain.Tier{
		{LockDays: 7, Rate: 100},
		{LockDays: 30, Rate: 800},
	}))

	assert.Equal(t, []domain.Tier{
		{LockDays: 30, Rate: 800},
		{LockDays: 90, Rate: 1000},
		{LockDays: 180, Rate: 1200},
		{LockDays: 7, Rate: 100},
	}, r.Tiers())
}

func TestRegistry_IsOperator(t *testing.T) {
	r := NewRegistry(operator)
	assert.True(t, r.IsOperator(operator))
	assert.False(t, r.IsOperator(alice))

	unowned := NewRegistry(common.Address{})
	assert.False(t, unowned.IsOperator(common.Address{}))
}
