package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/stakingledger/internal/domain"
)

type stubClock struct{ now time.Time }

func (c stubClock) Now() time.Time { return c.now }

type recordingBlob struct {
	cutoffs []time.Time
	snaps   []domain.LedgerSnapshot
	err     error
}

func (b *recordingBlob) ArchiveClosedPositions(_ context.Context, before time.Time) (int64, error) {
	b.cutoffs = append(b.cutoffs, before)
	return 3, b.err
}

func (b *recordingBlob) ArchiveSnapshot(_ context.Context, snap domain.LedgerSnapshot) (string, error) {
	b.snaps = append(b.snaps, snap)
	return "staking/snapshots/" + snap.ID + ".json", nil
}

type staticLedger struct{}

func (staticLedger) Owner() common.Address { return common.HexToAddress("0xa0a0") }

func (staticLedger) Snapshot() ([]domain.Tier, []domain.Position) {
	return domain.DefaultTiers(), []domain.Position{{
		ID:        0,
		Owner:     common.HexToAddress("0xa11ce"),
		Principal: uint256.NewInt(5),
		Interest:  uint256.NewInt(0),
		Open:      true,
	}}
}

type memLocks struct {
	mu   sync.Mutex
	held map[string]bool
}

func (l *memLocks) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] {
		return nil, domain.ErrLockHeld
	}
	l.held[key] = true
	return func() {
		l.mu.Lock()
		delete(l.held, key)
		l.mu.Unlock()
	}, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestArchiver_Run(t *testing.T) {
	now := time.Date(2026, 3, 31, 4, 0, 0, 0, time.UTC)
	blob := &recordingBlob{}
	locks := &memLocks{held: map[string]bool{}}
	a := NewArchiver(blob, staticLedger{}, locks, ArchiverConfig{RetentionDays: 30, Snapshot: true}, stubClock{now}, quietLogger())

	res, err := a.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, time.Date(2026, 3, 1, 4, 0, 0, 0, time.UTC), res.Cutoff)
	assert.Equal(t, int64(3), res.Archived)
	require.Len(t, blob.snaps, 1)
	assert.Equal(t, "staking/snapshots/"+blob.snaps[0].ID+".json", res.SnapshotPath)
	assert.Equal(t, common.HexToAddress("0xa0a0").Hex(), blob.snaps[0].Operator)
	assert.Equal(t, "5", blob.snaps[0].Positions[0].Principal)
	assert.Empty(t, locks.held, "lock released")
}

func TestArchiver_RunSkipsWhenLocked(t *testing.T) {
	blob := &recordingBlob{}
	locks := &memLocks{held: map[string]bool{"archive": true}}
	a := NewArchiver(blob, staticLedger{}, locks, ArchiverConfig{}, nil, quietLogger())

	_, err := a.Run(context.Background())
	require.ErrorIs(t, err, domain.ErrLockHeld)
	assert.Empty(t, blob.cutoffs)
}

func TestArchiver_RunPropagatesFailure(t *testing.T) {
	blob := &recordingBlob{err: errors.New("bucket gone")}
	a := NewArchiver(blob, staticLedger{}, nil, ArchiverConfig{Snapshot: true}, nil, quietLogger())

	_, err := a.Run(context.Background())
	require.Error(t, err)
	assert.Empty(t, blob.snaps)
}

func TestArchiver_RunCronStopsOnCancel(t *testing.T) {
	a := NewArchiver(&recordingBlob{}, staticLedger{}, nil, ArchiverConfig{}, nil, quietLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := a.RunCron(ctx, "0 3 * * *")
	require.ErrorIs(t, err, context.Canceled)

	err = a.RunCron(context.Background(), "bad")
	require.Error(t, err)
}
