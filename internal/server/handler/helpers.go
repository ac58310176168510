package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/alanyoungcy/stakingledger/internal/domain"
)

const maxBodyBytes = 1 << 20

// errorResponse is the body of every non-2xx response.
type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// statusByCode maps domain error codes to HTTP statuses.
var statusByCode = map[string]int{
	"invalid_amount":          http.StatusBadRequest,
	"tier_not_found":          http.StatusNotFound,
	"not_authorized":          http.StatusForbidden,
	"position_not_found":      http.StatusNotFound,
	"not_position_owner":      http.StatusForbidden,
	"position_already_closed": http.StatusConflict,
	"invalid_terms":           http.StatusBadRequest,
	"insufficient_funds":      http.StatusUnprocessableEntity,
	"reentrant_call":          http.StatusConflict,
	"amount_overflow":         http.StatusBadRequest,
	"unauthorized":            http.StatusUnauthorized,
	"bad_signature":           http.StatusUnauthorized,
	"rate_limited":            http.StatusTooManyRequests,
	"not_found":               http.StatusNotFound,
	"lock_held":               http.StatusConflict,
}

// StatusFor returns the HTTP status and code for err.
func StatusFor(err error) (int, string) {
	code := domain.ErrorCode(err)
	if status, ok := statusByCode[code]; ok {
		return status, code
	}
	return http.StatusInternalServerError, code
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error","code":"internal"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Error: msg, Code: code})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusBadRequest, "bad_request", msg)
}

// writeDomainError maps err onto its status. Internal errors are logged
// and their text is not leaked.
func writeDomainError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status, code := StatusFor(err)
	if status == http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "request failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		writeError(w, status, code, "internal server error")
		return
	}
	writeError(w, status, code, err.Error())
}

// decodeBody decodes a JSON body, rejecting unknown fields.
func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("trailing data after JSON body")
	}
	return nil
}

// parseListOpts reads limit/offset/since/until. Defaults: limit=50 (max
// 500), offset=0.
func parseListOpts(r *http.Request) domain.ListOpts {
	q := r.URL.Query()

	opts := domain.ListOpts{Limit: 50}
	if n, err := strconv.Atoi(q.Get("limit")); err == nil && n > 0 {
		opts.Limit = min(n, 500)
	}
	if n, err := strconv.Atoi(q.Get("offset")); err == nil && n >= 0 {
		opts.Offset = n
	}
	if t, err := time.Parse(time.RFC3339, q.Get("since")); err == nil {
		opts.Since = &t
	}
	if t, err := time.Parse(time.RFC3339, q.Get("until")); err == nil {
		opts.Until = &t
	}
	return opts
}

func pathUint(r *http.Request, name string, bits int) (uint64, error) {
	return strconv.ParseUint(r.PathValue(name), 10, bits)
}

func parseAmount(s string) (*uint256.Int, error) {
	if s == "" {
		return nil, errors.New("amount is required")
	}
	return uint256.FromDecimal(s)
}

func parseAddress(s string) (common.Address, bool) {
	if !common.IsHexAddress(s) {
		return common.Address{}, false
	}
	return common.HexToAddress(s), true
}

func logHandler(logger *slog.Logger, handler string) *slog.Logger {
	return logger.With(slog.String("handler", handler))
}

func uintString(n uint64) string {
	return strconv.FormatUint(n, 10)
}
