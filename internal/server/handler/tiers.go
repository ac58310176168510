package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/alanyoungcy/stakingledger/internal/domain"
	"github.com/alanyoungcy/stakingledger/internal/server/middleware"
)

// TierService is what the tier endpoints need from the staking service.
type TierService interface {
	Tiers() []domain.Tier
	LookupRate(days uint32) (uint64, error)
	Quote(days uint32, amount *uint256.Int) (domain.Quote, error)
	SetTier(ctx context.Context, caller common.Address, days uint32, rate uint64) error
}

// TierHandler serves the tier registry.
type TierHandler struct {
	tiers  TierService
	logger *slog.Logger
}

// NewTierHandler creates a TierHandler.
func NewTierHandler(tiers TierService, logger *slog.Logger) *TierHandler {
	return &TierHandler{tiers: tiers, logger: logHandler(logger, "tiers")}
}

type listTiersResponse struct {
	Tiers []domain.Tier `json:"tiers"`
}

// List returns every tier in registration order.
// GET /api/tiers
func (h *TierHandler) List(w http.ResponseWriter, r *http.Request) {
	tiers := h.tiers.Tiers()
	if tiers == nil {
		tiers = []domain.Tier{}
	}
	writeJSON(w, http.StatusOK, listTiersResponse{Tiers: tiers})
}

// Get returns one tier.
// GET /api/tiers/{days}
func (h *TierHandler) Get(w http.ResponseWriter, r *http.Request) {
	days, err := pathUint(r, "days", 32)
	if err != nil {
		badRequest(w, "days must be a positive integer")
		return
	}
	rate, err := h.tiers.LookupRate(uint32(days))
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.Tier{LockDays: uint32(days), Rate: rate})
}

// Quote previews a stake without creating anything.
// GET /api/tiers/{days}/quote?amount=<wei>
func (h *TierHandler) Quote(w http.ResponseWriter, r *http.Request) {
	days, err := pathUint(r, "days", 32)
	if err != nil {
		badRequest(w, "days must be a positive integer")
		return
	}
	amount, err := parseAmount(r.URL.Query().Get("amount"))
	if err != nil {
		badRequest(w, "amount must be a decimal wei string")
		return
	}
	q, err := h.tiers.Quote(uint32(days), amount)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newQuoteView(q))
}

type setTierRequest struct {
	Rate *uint64 `json:"rate_bps"`
}

// Set creates or overwrites a tier. Operator only.
// PUT /api/tiers/{days}
func (h *TierHandler) Set(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.Caller(r.Context())
	if !ok {
		writeDomainError(w, r, h.logger, domain.ErrUnauthorized)
		return
	}
	days, err := pathUint(r, "days", 32)
	if err != nil {
		badRequest(w, "days must be a positive integer")
		return
	}
	var req setTierRequest
	if err := decodeBody(r, &req); err != nil || req.Rate == nil {
		badRequest(w, `body must be {"rate_bps": <uint>}`)
		return
	}

	if err := h.tiers.SetTier(r.Context(), caller, uint32(days), *req.Rate); err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.Tier{LockDays: uint32(days), Rate: *req.Rate})
}
