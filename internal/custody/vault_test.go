package custody

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/stakingledger/internal/domain"
)

var alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")

func TestMemoryVault_InitialCustody(t *testing.T) {
	v := NewMemoryVault(uint256.NewInt(100))
	got, err := v.Custody(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(100), got.Uint64())

	empty := NewMemoryVault(nil)
	got, err = empty.Custody(context.Background())
	require.NoError(t, err)
	assert.True(t, got.IsZero())
}

func TestMemoryVault_TransferRoundTrip(t *testing.T) {
	ctx := context.Background()
	v := NewMemoryVault(uint256.NewInt(10))
	require.NoError(t, v.Credit(alice, uint256.NewInt(50)))

	require.NoError(t, v.TransferIn(ctx, alice, uint256.NewInt(20)))
	assert.Equal(t, uint64(30), v.Balance(alice).Uint64())
	c, _ := v.Custody(ctx)
	assert.Equal(t, uint64(30), c.Uint64())

	require.NoError(t, v.TransferOut(ctx, alice, uint256.NewInt(25)))
	assert.Equal(t, uint64(55), v.Balance(alice).Uint64())
	c, _ = v.Custody(ctx)
	assert.Equal(t, uint64(5), c.Uint64())
}

func TestMemoryVault_InsufficientFundsLeavesBalances(t *testing.T) {
	ctx := context.Background()
	v := NewMemoryVault(uint256.NewInt(3))
	require.NoError(t, v.Credit(alice, uint256.NewInt(5)))

	err := v.TransferIn(ctx, alice, uint256.NewInt(6))
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)
	assert.Equal(t, uint64(5), v.Balance(alice).Uint64())

	err = v.TransferOut(ctx, alice, uint256.NewInt(4))
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)
	c, _ := v.Custody(ctx)
	assert.Equal(t, uint64(3), c.Uint64())
	assert.Equal(t, uint64(5), v.Balance(alice).Uint64())
}

func TestMemoryVault_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	v := NewMemoryVault(uint256.NewInt(3))
	require.NoError(t, v.Credit(alice, uint256.NewInt(5)))

	assert.ErrorIs(t, v.TransferIn(ctx, alice, uint256.NewInt(1)), context.Canceled)
	assert.Equal(t, uint64(5), v.Balance(alice).Uint64())
}
