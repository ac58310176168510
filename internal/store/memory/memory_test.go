package memory

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/stakingledger/internal/domain"
)

func TestTierStore_UpsertKeepsOrder(t *testing.T) {
	ctx := context.Background()
	s := NewTierStore()
	require.NoError(t, s.Upsert(ctx, domain.Tier{LockDays: 60, Rate: 800}))
	require.NoError(t, s.Upsert(ctx, domain.Tier{LockDays: 7, Rate: 100}))
	require.NoError(t, s.Upsert(ctx, domain.Tier{LockDays: 60, Rate: 900}))

	tiers, err := s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.Tier{{LockDays: 60, Rate: 900}, {LockDays: 7, Rate: 100}}, tiers)
}

func TestPositionStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewPositionStore()
	now := time.Unix(1_700_000_000, 0).UTC()
	owner := common.HexToAddress("0x01")

	for id := uint64(0); id < 3; id++ {
		require.NoError(t, s.Insert(ctx, domain.Position{
			ID: id, Owner: owner, CreatedAt: now, Open: true,
			Principal: uint256.NewInt(10), Interest: uint256.NewInt(1),
		}))
	}
	require.ErrorIs(t, s.Insert(ctx, domain.Position{ID: 1}), domain.ErrAlreadyExists)

	closedAt := now.Add(time.Hour)
	require.NoError(t, s.Update(ctx, domain.Position{ID: 2, Owner: owner, ClosedAt: &closedAt, Payout: uint256.NewInt(10)}))
	require.ErrorIs(t, s.Update(ctx, domain.Position{ID: 9}), domain.ErrNotFound)

	all, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	for i, p := range all {
		assert.Equal(t, uint64(i), p.ID)
	}

	closed, err := s.ListClosedBefore(ctx, now.Add(2*time.Hour))
	require.NoError(t, err)
	require.Len(t, closed, 1)
	assert.Equal(t, uint64(2), closed[0].ID)

	closed, err = s.ListClosedBefore(ctx, closedAt)
	require.NoError(t, err)
	assert.Empty(t, closed)

	require.NoError(t, s.Delete(ctx, 0))
	require.ErrorIs(t, s.Delete(ctx, 0), domain.ErrNotFound)
}

func TestPositionStore_StoresCopies(t *testing.T) {
	ctx := context.Background()
	s := NewPositionStore()
	p := domain.Position{ID: 0, Principal: uint256.NewInt(10), Interest: uint256.NewInt(1), Open: true}
	require.NoError(t, s.Insert(ctx, p))

	p.Principal.SetUint64(99)
	all, err := s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), all[0].Principal.Uint64())
}

func TestAuditStore_ListNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := NewAuditStore()
	for _, ev := range []string{"a", "b", "c"} {
		require.NoError(t, s.Log(ctx, ev, map[string]any{"k": ev}))
	}

	got, err := s.List(ctx, domain.ListOpts{Limit: 2})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "c", got[0].Event)
	assert.Equal(t, "b", got[1].Event)

	got, err = s.List(ctx, domain.ListOpts{Offset: 2})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].Event)
}
