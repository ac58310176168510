package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_PublishSubscribe(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b := NewBus(0)

	exact, err := b.Subscribe(ctx, "ledger")
	require.NoError(t, err)
	pattern, err := b.Subscribe(ctx, "led*")
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, "ledger", []byte("a")))
	require.NoError(t, b.Publish(ctx, "other", []byte("b")))

	assert.Equal(t, "a", string(<-exact))
	assert.Equal(t, "a", string(<-pattern))
	select {
	case m := <-exact:
		t.Fatalf("unexpected message %q", m)
	default:
	}
}

func TestBus_SubscriptionClosesOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	b := NewBus(0)
	ch, err := b.Subscribe(ctx, "ledger")
	require.NoError(t, err)

	cancel()
	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("channel not closed")
	}
	require.NoError(t, b.Publish(context.Background(), "ledger", []byte("x")))
}

func TestBus_Streams(t *testing.T) {
	ctx := context.Background()
	b := NewBus(2)

	for _, p := range []string{"1", "2", "3"} {
		require.NoError(t, b.StreamAppend(ctx, "events", []byte(p)))
	}

	msgs, err := b.StreamRead(ctx, "events", "0", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2, "trimmed to max length")
	assert.Equal(t, "2", string(msgs[0].Payload))

	msgs, err = b.StreamRead(ctx, "events", msgs[0].ID, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "3", string(msgs[0].Payload))

	_, err = b.StreamRead(ctx, "events", "garbage", 1)
	require.Error(t, err)
}
