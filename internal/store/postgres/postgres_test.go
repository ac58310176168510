package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/stakingledger/internal/domain"
)

func TestDSN(t *testing.T) {
	assert.Equal(t, "postgres://u:p@db:5432/staking?sslmode=disable",
		DSN(ClientConfig{User: "u", Password: "p", Host: "db", Database: "staking"}))
	assert.Equal(t, "postgres://u:p@db:6543/staking?sslmode=require",
		DSN(ClientConfig{User: "u", Password: "p", Host: "db", Port: 6543, Database: "staking", SSLMode: "require"}))
	assert.Equal(t, "postgres://explicit", DSN(ClientConfig{DSN: "postgres://explicit", Host: "ignored"}))
}

func TestMigrationNames(t *testing.T) {
	names, err := migrationNames()
	require.NoError(t, err)
	require.NotEmpty(t, names)
	assert.Equal(t, "001_init.sql", names[0])
}

func TestAuditListQuery(t *testing.T) {
	since := time.Unix(100, 0)
	query, args := auditListQuery(domain.ListOpts{Since: &since, Limit: 10, Offset: 5})
	assert.Equal(t,
		"SELECT id, event, detail, created_at FROM audit_log WHERE created_at >= $1 ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3",
		query)
	assert.Equal(t, []any{since, 10, 5}, args)

	query, args = auditListQuery(domain.ListOpts{})
	assert.Equal(t, "SELECT id, event, detail, created_at FROM audit_log ORDER BY created_at DESC, id DESC", query)
	assert.Empty(t, args)
}

func TestPositionRow(t *testing.T) {
	closed := time.Unix(1_700_000_500, 0)
	payout := "5000000000000000000"
	r := positionRow{
		id:        3,
		owner:     "0x00000000000000000000000000000000000a11ce",
		createdAt: time.Unix(1_700_000_000, 0),
		unlockAt:  time.Unix(1_702_592_000, 0),
		lockDays:  30,
		rate:      "700",
		principal: "5000000000000000000",
		interest:  "350000000000000000",
		closedAt:  &closed,
		payout:    &payout,
	}

	p, err := r.position()
	require.NoError(t, err)
	assert.Equal(t, uint64(3), p.ID)
	assert.Equal(t, common.HexToAddress("0xa11ce"), p.Owner)
	assert.Equal(t, uint64(700), p.Rate)
	assert.Equal(t, "350000000000000000", p.Interest.Dec())
	require.NotNil(t, p.Payout)
	assert.Equal(t, payout, p.Payout.Dec())
	require.NotNil(t, p.ClosedAt)
	assert.Equal(t, time.UTC, p.ClosedAt.Location())

	r.principal = "not-a-number"
	_, err = r.position()
	require.Error(t, err)
}

// TestStores_Integration runs against a live database when
// STAKING_TEST_POSTGRES_DSN is set.
func TestStores_Integration(t *testing.T) {
	dsn := os.Getenv("STAKING_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("STAKING_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()

	client, err := New(ctx, ClientConfig{DSN: dsn})
	require.NoError(t, err)
	defer client.Close()
	require.NoError(t, client.RunMigrations(ctx))
	require.NoError(t, client.RunMigrations(ctx), "migrations are idempotent")

	_, err = client.Pool().Exec(ctx, "TRUNCATE tiers, positions, audit_log")
	require.NoError(t, err)

	tiers := NewTierStore(client.Pool())
	require.NoError(t, tiers.Upsert(ctx, domain.Tier{LockDays: 365, Rate: 2000}))
	require.NoError(t, tiers.Upsert(ctx, domain.Tier{LockDays: 7, Rate: 10}))
	require.NoError(t, tiers.Upsert(ctx, domain.Tier{LockDays: 365, Rate: 2500}))
	got, err := tiers.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.Tier{{LockDays: 365, Rate: 2500}, {LockDays: 7, Rate: 10}}, got)

	positions := NewPositionStore(client.Pool())
	created := time.Unix(1_700_000_000, 0).UTC()
	huge := new(uint256.Int).SetAllOne()
	p := domain.Position{
		ID: 0, Owner: common.HexToAddress("0xa11ce"), CreatedAt: created,
		UnlockAt: created.Add(30 * 24 * time.Hour), LockDays: 30, Rate: 700,
		Principal: huge, Interest: uint256.NewInt(1), Open: true,
	}
	require.NoError(t, positions.Insert(ctx, p))

	closedAt := created.Add(time.Hour)
	p.Open = false
	p.ClosedAt = &closedAt
	p.Payout = uint256.NewInt(42)
	require.NoError(t, positions.Update(ctx, p))

	all, err := positions.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, huge.Dec(), all[0].Principal.Dec())
	assert.False(t, all[0].Open)
	assert.Equal(t, "42", all[0].Payout.Dec())

	closed, err := positions.ListClosedBefore(ctx, closedAt.Add(time.Second))
	require.NoError(t, err)
	assert.Len(t, closed, 1)

	require.NoError(t, positions.Delete(ctx, 0))
	require.ErrorIs(t, positions.Delete(ctx, 0), domain.ErrNotFound)

	audit := NewAuditStore(client.Pool())
	require.NoError(t, audit.Log(ctx, "tier_set", map[string]any{"lock_days": 7}))
	entries, err := audit.List(ctx, domain.ListOpts{Limit: 1})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "tier_set", entries[0].Event)
}
