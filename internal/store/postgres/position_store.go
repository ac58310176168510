package postgres

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/stakingledger/internal/domain"
)

// PositionStore implements domain.PositionStore using PostgreSQL. Amounts
// travel as decimal text and are stored as NUMERIC(78,0).
type PositionStore struct {
	pool *pgxpool.Pool
}

// NewPositionStore creates a PositionStore backed by the given connection pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

const positionSelectCols = `id, owner, created_at, unlock_at, lock_days, rate_bps::text,
	principal::text, interest::text, is_open, closed_at, payout::text`

// positionRow mirrors a positions row before amounts are parsed.
type positionRow struct {
	id        int64
	owner     string
	createdAt time.Time
	unlockAt  time.Time
	lockDays  int64
	rate      string
	principal string
	interest  string
	open      bool
	closedAt  *time.Time
	payout    *string
}

func (r *positionRow) dest() []any {
	return []any{
		&r.id, &r.owner, &r.createdAt, &r.unlockAt, &r.lockDays, &r.rate,
		&r.principal, &r.interest, &r.open, &r.closedAt, &r.payout,
	}
}

func (r *positionRow) position() (domain.Position, error) {
	rate, err := strconv.ParseUint(r.rate, 10, 64)
	if err != nil {
		return domain.Position{}, fmt.Errorf("position %d rate: %w", r.id, err)
	}
	principal, err := uint256.FromDecimal(r.principal)
	if err != nil {
		return domain.Position{}, fmt.Errorf("position %d principal: %w", r.id, err)
	}
	interest, err := uint256.FromDecimal(r.interest)
	if err != nil {
		return domain.Position{}, fmt.Errorf("position %d interest: %w", r.id, err)
	}

	p := domain.Position{
		ID:        uint64(r.id),
		Owner:     common.HexToAddress(r.owner),
		CreatedAt: r.createdAt.UTC(),
		UnlockAt:  r.unlockAt.UTC(),
		LockDays:  uint32(r.lockDays),
		Rate:      rate,
		Principal: principal,
		Interest:  interest,
		Open:      r.open,
	}
	if r.closedAt != nil {
		t := r.closedAt.UTC()
		p.ClosedAt = &t
	}
	if r.payout != nil {
		payout, err := uint256.FromDecimal(*r.payout)
		if err != nil {
			return domain.Position{}, fmt.Errorf("position %d payout: %w", r.id, err)
		}
		p.Payout = payout
	}
	return p, nil
}

func scanPositionRows(rows pgx.Rows) ([]domain.Position, error) {
	defer rows.Close()

	var positions []domain.Position
	for rows.Next() {
		var r positionRow
		if err := rows.Scan(r.dest()...); err != nil {
			return nil, err
		}
		p, err := r.position()
		if err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

func payoutArg(p domain.Position) *string {
	if p.Payout == nil {
		return nil
	}
	s := p.Payout.Dec()
	return &s
}

// Insert adds a newly opened position.
func (s *PositionStore) Insert(ctx context.Context, p domain.Position) error {
	const query = `
		INSERT INTO positions (
			id, owner, created_at, unlock_at, lock_days, rate_bps,
			principal, interest, is_open, closed_at, payout, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6::numeric,
			$7::numeric, $8::numeric, $9, $10, $11::numeric, NOW()
		)`

	_, err := s.pool.Exec(ctx, query,
		int64(p.ID), p.Owner.Hex(), p.CreatedAt, p.UnlockAt, int64(p.LockDays),
		strconv.FormatUint(p.Rate, 10), p.Principal.Dec(), p.Interest.Dec(),
		p.Open, p.ClosedAt, payoutArg(p),
	)
	if err != nil {
		return fmt.Errorf("postgres: insert position %d: %w", p.ID, err)
	}
	return nil
}

// Update overwrites the mutable columns of a position: unlock time and the
// open/closed state with its receipt.
func (s *PositionStore) Update(ctx context.Context, p domain.Position) error {
	const query = `
		UPDATE positions SET
			unlock_at  = $2,
			is_open    = $3,
			closed_at  = $4,
			payout     = $5::numeric,
			updated_at = NOW()
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query, int64(p.ID), p.UnlockAt, p.Open, p.ClosedAt, payoutArg(p))
	if err != nil {
		return fmt.Errorf("postgres: update position %d: %w", p.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: update position %d: %w", p.ID, domain.ErrNotFound)
	}
	return nil
}

// Delete removes a position row. Only used to undo an insert.
func (s *PositionStore) Delete(ctx context.Context, id uint64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM positions WHERE id = $1`, int64(id))
	if err != nil {
		return fmt.Errorf("postgres: delete position %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: delete position %d: %w", id, domain.ErrNotFound)
	}
	return nil
}

// List returns every position ordered by id.
func (s *PositionStore) List(ctx context.Context) ([]domain.Position, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+positionSelectCols+` FROM positions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list positions: %w", err)
	}
	positions, err := scanPositionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan positions: %w", err)
	}
	return positions, nil
}

// ListClosedBefore returns closed positions whose close time precedes before.
func (s *PositionStore) ListClosedBefore(ctx context.Context, before time.Time) ([]domain.Position, error) {
	query := `SELECT ` + positionSelectCols + `
		FROM positions
		WHERE NOT is_open AND closed_at < $1
		ORDER BY id`

	rows, err := s.pool.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list closed positions: %w", err)
	}
	positions, err := scanPositionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan closed positions: %w", err)
	}
	return positions, nil
}
