package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/alanyoungcy/stakingledger/internal/domain"
	"github.com/alanyoungcy/stakingledger/internal/server/middleware"
)

// PositionService is what the position endpoints need from the staking
// service.
type PositionService interface {
	Stake(ctx context.Context, owner common.Address, days uint32, amount *uint256.Int) (domain.Position, error)
	Position(id uint64) (domain.Position, error)
	PositionsForOwner(owner common.Address) []uint64
	ClosePosition(ctx context.Context, caller common.Address, id uint64) (domain.Closure, error)
	ChangeUnlockDate(ctx context.Context, caller common.Address, id uint64, unlockAt time.Time) error
}

// PositionHandler serves stakes and positions.
type PositionHandler struct {
	positions PositionService
	logger    *slog.Logger
}

// NewPositionHandler creates a PositionHandler.
func NewPositionHandler(positions PositionService, logger *slog.Logger) *PositionHandler {
	return &PositionHandler{positions: positions, logger: logHandler(logger, "positions")}
}

type stakeRequest struct {
	LockDays uint32 `json:"lock_days"`
	Amount   string `json:"amount"`
}

// Stake opens a position for the signed caller.
// POST /api/positions
func (h *PositionHandler) Stake(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.Caller(r.Context())
	if !ok {
		writeDomainError(w, r, h.logger, domain.ErrUnauthorized)
		return
	}
	var req stakeRequest
	if err := decodeBody(r, &req); err != nil {
		badRequest(w, "invalid JSON body: "+err.Error())
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		badRequest(w, "amount must be a decimal wei string")
		return
	}

	pos, err := h.positions.Stake(r.Context(), caller, req.LockDays, amount)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	w.Header().Set("Location", "/api/positions/"+uintString(pos.ID))
	writeJSON(w, http.StatusCreated, newPositionView(pos))
}

// Get returns one position.
// GET /api/positions/{id}
func (h *PositionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathUint(r, "id", 64)
	if err != nil {
		badRequest(w, "id must be an unsigned integer")
		return
	}
	pos, err := h.positions.Position(id)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newPositionView(pos))
}

// Close pays out a position to its signed owner.
// POST /api/positions/{id}/close
func (h *PositionHandler) Close(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.Caller(r.Context())
	if !ok {
		writeDomainError(w, r, h.logger, domain.ErrUnauthorized)
		return
	}
	id, err := pathUint(r, "id", 64)
	if err != nil {
		badRequest(w, "id must be an unsigned integer")
		return
	}

	closure, err := h.positions.ClosePosition(r.Context(), caller, id)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newClosureView(closure))
}

type unlockRequest struct {
	UnlockAt *time.Time `json:"unlock_at"`
}

// ChangeUnlock overwrites a position's unlock time. Operator only.
// PUT /api/positions/{id}/unlock
func (h *PositionHandler) ChangeUnlock(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.Caller(r.Context())
	if !ok {
		writeDomainError(w, r, h.logger, domain.ErrUnauthorized)
		return
	}
	id, err := pathUint(r, "id", 64)
	if err != nil {
		badRequest(w, "id must be an unsigned integer")
		return
	}
	var req unlockRequest
	if err := decodeBody(r, &req); err != nil || req.UnlockAt == nil {
		badRequest(w, `body must be {"unlock_at": "<RFC3339>"}`)
		return
	}

	if err := h.positions.ChangeUnlockDate(r.Context(), caller, id, *req.UnlockAt); err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	pos, err := h.positions.Position(id)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newPositionView(pos))
}

type ownerPositionsResponse struct {
	Owner       string         `json:"owner"`
	PositionIDs []uint64       `json:"position_ids"`
	Positions   []positionView `json:"positions"`
}

// ListForOwner returns every position an address has staked, open or not.
// GET /api/owners/{address}/positions
func (h *PositionHandler) ListForOwner(w http.ResponseWriter, r *http.Request) {
	owner, ok := parseAddress(r.PathValue("address"))
	if !ok {
		badRequest(w, "address must be a 0x-prefixed hex address")
		return
	}

	ids := h.positions.PositionsForOwner(owner)
	resp := ownerPositionsResponse{
		Owner:       owner.Hex(),
		PositionIDs: ids,
		Positions:   make([]positionView, 0, len(ids)),
	}
	if resp.PositionIDs == nil {
		resp.PositionIDs = []uint64{}
	}
	for _, id := range ids {
		pos, err := h.positions.Position(id)
		if err != nil {
			writeDomainError(w, r, h.logger, err)
			return
		}
		resp.Positions = append(resp.Positions, newPositionView(pos))
	}
	writeJSON(w, http.StatusOK, resp)
}
