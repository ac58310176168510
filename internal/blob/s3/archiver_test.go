package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/stakingledger/internal/domain"
	"github.com/alanyoungcy/stakingledger/internal/store/memory"
)

// fakeBucket is an in-memory BlobWriter and BlobReader.
type fakeBucket struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func newFakeBucket() *fakeBucket {
	return &fakeBucket{objects: map[string][]byte{}, types: map[string]string{}}
}

func (b *fakeBucket) Put(_ context.Context, key string, data io.Reader, contentType string) error {
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[key] = raw
	b.types[key] = contentType
	return nil
}

func (b *fakeBucket) PutMultipart(ctx context.Context, key string, data io.Reader, _ int64) error {
	return b.Put(ctx, key, data, "application/json")
}

func (b *fakeBucket) Get(_ context.Context, key string) (io.ReadCloser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	raw, ok := b.objects[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

func (b *fakeBucket) List(_ context.Context, prefix string) ([]domain.BlobInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []domain.BlobInfo
	for k, v := range b.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, domain.BlobInfo{Path: k, Size: int64(len(v))})
		}
	}
	return out, nil
}

func (b *fakeBucket) Exists(_ context.Context, key string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.objects[key]
	return ok, nil
}

func seedClosed(t *testing.T, store *memory.PositionStore, closedAt time.Time, ids ...uint64) {
	t.Helper()
	for _, id := range ids {
		at := closedAt
		require.NoError(t, store.Insert(context.Background(), domain.Position{
			ID:        id,
			Owner:     common.HexToAddress("0xa11ce"),
			Principal: uint256.NewInt(1000),
			Interest:  uint256.NewInt(70),
			ClosedAt:  &at,
			Payout:    uint256.NewInt(1070),
		}))
	}
}

func TestArchiveClosedPositions(t *testing.T) {
	ctx := context.Background()
	bucket := newFakeBucket()
	store := memory.NewPositionStore()
	audit := memory.NewAuditStore()
	a := NewArchiver(bucket, bucket, store, audit, "staking")

	cutoff := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	seedClosed(t, store, cutoff.Add(-48*time.Hour), 0, 1)
	seedClosed(t, store, cutoff.Add(time.Hour), 2)

	n, err := a.ArchiveClosedPositions(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	raw := bucket.objects["staking/closed/2026-03-01.jsonl"]
	require.NotEmpty(t, raw)
	assert.Equal(t, "application/x-ndjson", bucket.types["staking/closed/2026-03-01.jsonl"])

	var lines []domain.PositionRecord
	sc := bufio.NewScanner(bytes.NewReader(raw))
	for sc.Scan() {
		var rec domain.PositionRecord
		require.NoError(t, json.Unmarshal(sc.Bytes(), &rec))
		lines = append(lines, rec)
	}
	require.Len(t, lines, 2)
	assert.Equal(t, "1070", lines[0].Payout)
	assert.False(t, lines[1].Open)

	n, err = a.ArchiveClosedPositions(ctx, cutoff)
	require.NoError(t, err)
	assert.Zero(t, n, "same cutoff day is archived once")

	entries, err := audit.List(ctx, domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "archive.closed_positions", entries[0].Event)
}

func TestArchiveClosedPositions_NothingToDo(t *testing.T) {
	bucket := newFakeBucket()
	a := NewArchiver(bucket, bucket, memory.NewPositionStore(), memory.NewAuditStore(), "staking")

	n, err := a.ArchiveClosedPositions(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, bucket.objects)
}

func TestArchiveSnapshot_RoundTrip(t *testing.T) {
	ctx := context.Background()
	bucket := newFakeBucket()
	a := NewArchiver(bucket, bucket, memory.NewPositionStore(), memory.NewAuditStore(), "staking")

	snap := domain.LedgerSnapshot{
		ID:       "abc",
		TakenAt:  time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC),
		Operator: common.HexToAddress("0xa0a0").Hex(),
		Tiers:    domain.DefaultTiers(),
		Positions: []domain.PositionRecord{
			{ID: 0, Principal: "5000000000000000000", Interest: "350000000000000000", Open: true},
		},
	}

	key, err := a.ArchiveSnapshot(ctx, snap)
	require.NoError(t, err)
	assert.Equal(t, "staking/snapshots/20260301T123000Z-abc.json", key)

	infos, err := a.ListSnapshots(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 1)

	loaded, err := a.LoadSnapshot(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, snap.Tiers, loaded.Tiers)
	assert.Equal(t, snap.Positions, loaded.Positions)

	_, err = a.LoadSnapshot(ctx, "staking/snapshots/missing.json")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestNormaliseEndpoint(t *testing.T) {
	assert.Equal(t, "https://s3.example.com", normaliseEndpoint("https://s3.example.com", false))
	assert.Equal(t, "https://minio:9000", normaliseEndpoint("minio:9000", true))
	assert.Equal(t, "http://minio:9000", normaliseEndpoint("minio:9000", false))
}
