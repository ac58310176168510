package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedgerOps(t *testing.T) {
	m := New()
	m.ObserveLedgerOp("stake", "ok")
	m.ObserveLedgerOp("stake", "ok")
	m.ObserveLedgerOp("stake", "invalid_amount")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ledgerOps.WithLabelValues("stake", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ledgerOps.WithLabelValues("stake", "invalid_amount")))
}

func TestHandlerExposesBook(t *testing.T) {
	m := New()
	m.RegisterBook(func() float64 { return 4 }, func() float64 { return 5e18 })
	m.ObserveHTTP(http.MethodGet, "/api/tiers", http.StatusOK, 3*time.Millisecond)
	m.ObserveArchiveRun("ok")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, "staking_open_positions 4")
	assert.Contains(t, body, "staking_locked_principal_wei 5e+18")
	assert.True(t, strings.Contains(body, `staking_http_request_duration_seconds_count{method="GET",route="/api/tiers",status="200"} 1`))
	assert.Contains(t, body, `staking_archive_runs_total{outcome="ok"} 1`)
}
