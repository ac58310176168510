package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/alanyoungcy/stakingledger/internal/domain"
)

// StatusService is what the status endpoint reads.
type StatusService interface {
	Owner() common.Address
	Summary() domain.Summary
	Custody(ctx context.Context) (*uint256.Int, error)
}

// StatusHandler reports the ledger's book and custody balance.
type StatusHandler struct {
	mode      string
	startedAt time.Time
	svc       StatusService
	logger    *slog.Logger
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(mode string, startedAt time.Time, svc StatusService, logger *slog.Logger) *StatusHandler {
	return &StatusHandler{mode: mode, startedAt: startedAt, svc: svc, logger: logHandler(logger, "status")}
}

type statusResponse struct {
	Mode          string      `json:"mode"`
	Operator      string      `json:"operator"`
	StartedAt     time.Time   `json:"started_at"`
	UptimeSeconds int64       `json:"uptime_seconds"`
	Summary       summaryView `json:"summary"`
	Custody       string      `json:"custody"`
}

// GetStatus returns mode, operator, book totals and custody.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	custody, err := h.svc.Custody(r.Context())
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{
		Mode:          h.mode,
		Operator:      h.svc.Owner().Hex(),
		StartedAt:     h.startedAt,
		UptimeSeconds: int64(time.Since(h.startedAt).Seconds()),
		Summary:       newSummaryView(h.svc.Summary()),
		Custody:       custody.Dec(),
	})
}
