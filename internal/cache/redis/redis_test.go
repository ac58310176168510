package redis

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/stakingledger/internal/domain"
)

// newTestClient connects to STAKING_TEST_REDIS_ADDR or skips.
func newTestClient(t *testing.T) (*Client, string) {
	t.Helper()
	addr := os.Getenv("STAKING_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("STAKING_TEST_REDIS_ADDR not set")
	}
	c, err := New(context.Background(), ClientConfig{Addr: addr})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, fmt.Sprintf("test:%s:", uuid.NewString())
}

func TestSlidingWindowScriptEmbedded(t *testing.T) {
	assert.Contains(t, slidingWindowLua, "ZREMRANGEBYSCORE")
	assert.Contains(t, unlockLua, "redis.call('DEL'")
}

func TestVault_Transfers(t *testing.T) {
	c, prefix := newTestClient(t)
	ctx := context.Background()
	alice := common.HexToAddress("0xa11ce")

	v, err := NewVault(ctx, c, prefix, uint256.NewInt(100))
	require.NoError(t, err)
	again, err := NewVault(ctx, c, prefix, uint256.NewInt(1))
	require.NoError(t, err)

	custody, err := again.Custody(ctx)
	require.NoError(t, err)
	assert.Equal(t, "100", custody.Dec(), "seed applies once")

	require.NoError(t, v.Credit(ctx, alice, uint256.NewInt(10)))
	require.NoError(t, v.TransferIn(ctx, alice, uint256.NewInt(7)))
	require.ErrorIs(t, v.TransferIn(ctx, alice, uint256.NewInt(4)), domain.ErrInsufficientFunds)

	bal, err := v.Balance(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, "3", bal.Dec())

	require.NoError(t, v.TransferOut(ctx, alice, uint256.NewInt(107)))
	require.ErrorIs(t, v.TransferOut(ctx, alice, uint256.NewInt(1)), domain.ErrInsufficientFunds)

	custody, err = v.Custody(ctx)
	require.NoError(t, err)
	assert.True(t, custody.IsZero())
}

func TestVault_SeedOnce(t *testing.T) {
	c, prefix := newTestClient(t)
	ctx := context.Background()
	bob := common.HexToAddress("0xb0b")

	v, err := NewVault(ctx, c, prefix, nil)
	require.NoError(t, err)

	applied, err := v.Seed(ctx, bob, uint256.NewInt(50))
	require.NoError(t, err)
	assert.True(t, applied)
	applied, err = v.Seed(ctx, bob, uint256.NewInt(50))
	require.NoError(t, err)
	assert.False(t, applied)

	bal, err := v.Balance(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, "50", bal.Dec())
}

func TestLockManager(t *testing.T) {
	c, prefix := newTestClient(t)
	ctx := context.Background()
	lm := NewLockManager(c, prefix)

	unlock, err := lm.Acquire(ctx, "archive", time.Minute)
	require.NoError(t, err)

	_, err = lm.Acquire(ctx, "archive", time.Minute)
	require.ErrorIs(t, err, domain.ErrLockHeld)

	unlock()
	unlock()

	unlock, err = lm.Acquire(ctx, "archive", time.Minute)
	require.NoError(t, err)
	unlock()
}

func TestRateLimiter(t *testing.T) {
	c, prefix := newTestClient(t)
	ctx := context.Background()
	rl := NewRateLimiter(c, prefix)

	for i := 0; i < 3; i++ {
		ok, err := rl.Allow(ctx, "client", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := rl.Allow(ctx, "client", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = rl.Allow(ctx, "client", 0, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "a zero limit disables limiting")
}

func TestSignalBus_Stream(t *testing.T) {
	c, prefix := newTestClient(t)
	ctx := context.Background()
	bus := NewSignalBus(c, 0)
	stream := prefix + "events"

	msgs, err := bus.StreamRead(ctx, stream, "0", 10)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	require.NoError(t, bus.StreamAppend(ctx, stream, []byte(`{"event":"tier_set"}`)))
	msgs, err = bus.StreamRead(ctx, stream, "0", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.JSONEq(t, `{"event":"tier_set"}`, string(msgs[0].Payload))
}

func TestSignalBus_PubSub(t *testing.T) {
	c, prefix := newTestClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	bus := NewSignalBus(c, 0)
	channel := prefix + "ledger"

	ch, err := bus.Subscribe(ctx, channel)
	require.NoError(t, err)
	require.NoError(t, bus.Publish(ctx, channel, []byte("hello")))

	select {
	case got := <-ch:
		assert.Equal(t, "hello", string(got))
	case <-ctx.Done():
		t.Fatal("no message received")
	}
}
