package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"github.com/alanyoungcy/stakingledger/internal/domain"
)

// ClosedPositionSource lists closed positions for archival.
// domain.PositionStore satisfies it.
type ClosedPositionSource interface {
	ListClosedBefore(ctx context.Context, before time.Time) ([]domain.Position, error)
}

// Archiver implements domain.Archiver by writing closed positions as JSONL
// and snapshots as JSON documents under a common prefix. Positions are
// never removed from the primary store; archives are copies.
type Archiver struct {
	writer domain.BlobWriter
	reader domain.BlobReader
	source ClosedPositionSource
	audit  domain.AuditStore
	prefix string
}

// NewArchiver creates an Archiver writing under prefix (e.g. "staking").
func NewArchiver(
	writer domain.BlobWriter,
	reader domain.BlobReader,
	source ClosedPositionSource,
	audit domain.AuditStore,
	prefix string,
) *Archiver {
	return &Archiver{
		writer: writer,
		reader: reader,
		source: source,
		audit:  audit,
		prefix: prefix,
	}
}

// ArchiveClosedPositions uploads every position closed before the cutoff to
// <prefix>/closed/<cutoff date>.jsonl. A cutoff day that already has an
// object is skipped and reports zero, so reruns on the same day are free.
func (a *Archiver) ArchiveClosedPositions(ctx context.Context, before time.Time) (int64, error) {
	key := a.closedPath(before)

	exists, err := a.reader.Exists(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive closed positions: %w", err)
	}
	if exists {
		return 0, nil
	}

	positions, err := a.source.ListClosedBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive closed positions query: %w", err)
	}
	if len(positions) == 0 {
		return 0, nil
	}

	records := make([]domain.PositionRecord, len(positions))
	for i, p := range positions {
		records[i] = domain.NewPositionRecord(p)
	}
	buf, err := marshalJSONL(records)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive closed positions marshal: %w", err)
	}

	if err := a.writer.Put(ctx, key, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive closed positions upload: %w", err)
	}

	count := int64(len(records))
	if err := a.audit.Log(ctx, "archive.closed_positions", map[string]any{
		"path":   key,
		"count":  count,
		"before": before.UTC().Format(time.RFC3339),
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive closed positions audit log: %w", err)
	}
	return count, nil
}

// ArchiveSnapshot uploads snap to <prefix>/snapshots/<taken at>-<id>.json
// and returns the object path.
func (a *Archiver) ArchiveSnapshot(ctx context.Context, snap domain.LedgerSnapshot) (string, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return "", fmt.Errorf("s3blob: snapshot marshal: %w", err)
	}

	key := path.Join(a.prefix, "snapshots",
		fmt.Sprintf("%s-%s.json", snap.TakenAt.UTC().Format("20060102T150405Z"), snap.ID))
	if err := a.writer.PutMultipart(ctx, key, bytes.NewReader(data), minPartSize); err != nil {
		return "", fmt.Errorf("s3blob: snapshot upload: %w", err)
	}

	if err := a.audit.Log(ctx, "archive.snapshot", map[string]any{
		"path":      key,
		"id":        snap.ID,
		"positions": len(snap.Positions),
		"tiers":     len(snap.Tiers),
	}); err != nil {
		return key, fmt.Errorf("s3blob: snapshot audit log: %w", err)
	}
	return key, nil
}

// ListSnapshots returns the stored snapshot objects.
func (a *Archiver) ListSnapshots(ctx context.Context) ([]domain.BlobInfo, error) {
	infos, err := a.reader.List(ctx, path.Join(a.prefix, "snapshots")+"/")
	if err != nil {
		return nil, fmt.Errorf("s3blob: list snapshots: %w", err)
	}
	return infos, nil
}

// LoadSnapshot reads a snapshot written by ArchiveSnapshot.
func (a *Archiver) LoadSnapshot(ctx context.Context, key string) (domain.LedgerSnapshot, error) {
	body, err := a.reader.Get(ctx, key)
	if err != nil {
		return domain.LedgerSnapshot{}, err
	}
	defer body.Close()

	var snap domain.LedgerSnapshot
	if err := json.NewDecoder(body).Decode(&snap); err != nil {
		return domain.LedgerSnapshot{}, fmt.Errorf("s3blob: decode snapshot %s: %w", key, err)
	}
	return snap, nil
}

// closedPath partitions closed-position archives by cutoff day:
//
//	staking/closed/2026-01-31.jsonl
func (a *Archiver) closedPath(before time.Time) string {
	return path.Join(a.prefix, "closed", before.UTC().Format("2006-01-02")+".jsonl")
}

// marshalJSONL encodes each record as one compact JSON line.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

var _ domain.Archiver = (*Archiver)(nil)
