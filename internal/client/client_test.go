package client

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cachemem "github.com/alanyoungcy/stakingledger/internal/cache/memory"
	"github.com/alanyoungcy/stakingledger/internal/crypto"
	"github.com/alanyoungcy/stakingledger/internal/custody"
	"github.com/alanyoungcy/stakingledger/internal/domain"
	"github.com/alanyoungcy/stakingledger/internal/ledger"
	"github.com/alanyoungcy/stakingledger/internal/server"
	"github.com/alanyoungcy/stakingledger/internal/server/handler"
	"github.com/alanyoungcy/stakingledger/internal/service"
	"github.com/alanyoungcy/stakingledger/internal/store/memory"
)

const (
	operatorKey = "b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291"
	aliceKey    = "8a1f9a8f95be41cd7ccb6168179afb4504aefe388d1e14474d32c45c72ce7b7a"
)

func newTestServer(t *testing.T, apiKey string) (url string, operator, alice *crypto.Signer) {
	t.Helper()
	var err error
	operator, err = crypto.NewSigner(operatorKey)
	require.NoError(t, err)
	alice, err = crypto.NewSigner(aliceKey)
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	vault := custody.NewMemoryVault(uint256.NewInt(1_000_000))
	require.NoError(t, vault.Credit(alice.Address(), uint256.NewInt(1_000_000)))
	l := ledger.New(ledger.NewRegistry(operator.Address()), vault, memory.NewPositionStore(), nil, logger)
	audit := memory.NewAuditStore()
	svc := service.NewStakingService(l, cachemem.NewBus(0), audit, logger)

	srv := server.NewServer(server.Config{APIKey: apiKey, SignatureMaxSkew: time.Minute}, server.Handlers{
		Health:    handler.NewHealthHandler(nil, logger),
		Status:    handler.NewStatusHandler("server", time.Now(), svc, logger),
		Tiers:     handler.NewTierHandler(svc, logger),
		Positions: handler.NewPositionHandler(svc, logger),
		Events:    handler.NewEventHandler(svc, audit, logger),
	}, server.Deps{}, logger)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts.URL, operator, alice
}

func TestClientLifecycle(t *testing.T) {
	ctx := context.Background()
	url, operator, alice := newTestServer(t, "")
	staker := New(url, WithSigner(alice))
	op := New(url, WithSigner(operator))

	tiers, err := staker.Tiers(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultTiers(), tiers)

	q, err := staker.Quote(ctx, 30, uint256.NewInt(10_000))
	require.NoError(t, err)
	assert.Equal(t, "700", q.Interest)

	pos, err := staker.Stake(ctx, 30, uint256.NewInt(10_000))
	require.NoError(t, err)
	assert.Equal(t, alice.Address().Hex(), pos.Owner)
	assert.True(t, pos.Open)

	mine, err := staker.PositionsForOwner(ctx, alice.Address().Hex())
	require.NoError(t, err)
	assert.Equal(t, []uint64{pos.ID}, mine.PositionIDs)

	_, err = staker.ChangeUnlock(ctx, pos.ID, time.Now().Add(-time.Hour))
	assert.ErrorIs(t, err, domain.ErrNotAuthorized)

	moved, err := op.ChangeUnlock(ctx, pos.ID, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.True(t, moved.UnlockAt.Before(time.Now()))

	closure, err := staker.Close(ctx, pos.ID)
	require.NoError(t, err)
	assert.False(t, closure.Early)
	assert.Equal(t, "10700", closure.Payout)

	_, err = staker.Close(ctx, pos.ID)
	assert.ErrorIs(t, err, domain.ErrPositionAlreadyClosed)
	assert.True(t, IsCode(err, "position_already_closed"))
}

func TestClientSetTier(t *testing.T) {
	ctx := context.Background()
	url, operator, alice := newTestServer(t, "")

	_, err := New(url, WithSigner(alice)).SetTier(ctx, 60, 800)
	assert.ErrorIs(t, err, domain.ErrNotAuthorized)

	tier, err := New(url, WithSigner(operator)).SetTier(ctx, 60, 800)
	require.NoError(t, err)
	assert.Equal(t, Tier{LockDays: 60, Rate: 800}, tier)
}

func TestClientErrors(t *testing.T) {
	ctx := context.Background()
	url, operator, alice := newTestServer(t, "secret")

	_, err := New(url, WithSigner(alice)).Tiers(ctx)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)

	authed := New(url, WithSigner(alice), WithAPIKey("secret"))
	_, err = authed.Position(ctx, 99)
	assert.ErrorIs(t, err, domain.ErrPositionNotFound)

	_, err = New(url, WithAPIKey("secret")).Stake(ctx, 30, uint256.NewInt(1))
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	raw, err := authed.Status(ctx)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"custody":"1000000"`)
	assert.Contains(t, string(raw), operator.Address().Hex())
}
