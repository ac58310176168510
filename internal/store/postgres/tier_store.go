package postgres

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/stakingledger/internal/domain"
)

// TierStore implements domain.TierStore using PostgreSQL.
type TierStore struct {
	pool *pgxpool.Pool
}

// NewTierStore creates a TierStore backed by the given connection pool.
func NewTierStore(pool *pgxpool.Pool) *TierStore {
	return &TierStore{pool: pool}
}

// Upsert creates or overwrites a tier. The seq column is left alone on
// conflict so an overwritten tier keeps its slot.
func (s *TierStore) Upsert(ctx context.Context, t domain.Tier) error {
	const query = `
		INSERT INTO tiers (lock_days, rate_bps)
		VALUES ($1, $2::numeric)
		ON CONFLICT (lock_days) DO UPDATE SET
			rate_bps   = EXCLUDED.rate_bps,
			updated_at = NOW()`

	if _, err := s.pool.Exec(ctx, query, int64(t.LockDays), strconv.FormatUint(t.Rate, 10)); err != nil {
		return fmt.Errorf("postgres: upsert tier %d: %w", t.LockDays, err)
	}
	return nil
}

// List returns every persisted tier in registration order.
func (s *TierStore) List(ctx context.Context) ([]domain.Tier, error) {
	rows, err := s.pool.Query(ctx, `SELECT lock_days, rate_bps::text FROM tiers ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list tiers: %w", err)
	}
	defer rows.Close()

	var tiers []domain.Tier
	for rows.Next() {
		var days int64
		var rate string
		if err := rows.Scan(&days, &rate); err != nil {
			return nil, fmt.Errorf("postgres: scan tier: %w", err)
		}
		r, err := strconv.ParseUint(rate, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("postgres: tier %d rate %q: %w", days, rate, err)
		}
		tiers = append(tiers, domain.Tier{LockDays: uint32(days), Rate: r})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list tiers rows: %w", err)
	}
	return tiers, nil
}
