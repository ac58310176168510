package domain

import (
	"context"
	"io"
	"time"
)

// BlobInfo describes a stored object.
type BlobInfo struct {
	Path         string
	Size         int64
	ContentType  string
	LastModified time.Time
}

// BlobWriter uploads data to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// BlobReader retrieves data from object storage.
type BlobReader interface {
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]BlobInfo, error)
	Exists(ctx context.Context, path string) (bool, error)
}

// LedgerSnapshot is a point-in-time export of the whole ledger: every tier
// and every position, open or closed. Amounts travel as decimal strings in
// PositionRecord so the JSON survives readers without 256-bit integers.
type LedgerSnapshot struct {
	ID        string           `json:"id"`
	TakenAt   time.Time        `json:"taken_at"`
	Operator  string           `json:"operator"`
	Tiers     []Tier           `json:"tiers"`
	Positions []PositionRecord `json:"positions"`
}

// Archiver moves ledger history to cold storage.
type Archiver interface {
	// ArchiveClosedPositions writes positions closed before the cutoff to
	// one object per cutoff day and returns how many were written. A day
	// already archived is skipped and reports zero. Positions are never
	// removed from the ledger.
	ArchiveClosedPositions(ctx context.Context, before time.Time) (int64, error)
	// ArchiveSnapshot uploads snap and returns its object path.
	ArchiveSnapshot(ctx context.Context, snap LedgerSnapshot) (string, error)
}
