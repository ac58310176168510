package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// TierStore persists the tier registry.
type TierStore interface {
	// Upsert creates or overwrites a tier. An overwrite keeps the tier's
	// original registration slot.
	Upsert(ctx context.Context, tier Tier) error
	// List returns tiers in registration order.
	List(ctx context.Context) ([]Tier, error)
}

// PositionStore persists the position arena. Every call is atomic on its
// own; the ledger sequences them.
type PositionStore interface {
	Insert(ctx context.Context, pos Position) error
	Update(ctx context.Context, pos Position) error
	// Delete exists only to compensate an insert whose transfer-in failed.
	Delete(ctx context.Context, id uint64) error
	// List returns every position ordered by id.
	List(ctx context.Context) ([]Position, error)
	ListClosedBefore(ctx context.Context, before time.Time) ([]Position, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
