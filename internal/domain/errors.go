package domain

import "errors"

// Ledger rejections. Each is a deterministic, synchronous refusal of the
// operation that produced it; none of them leave partial state behind.
var (
	ErrInvalidAmount         = errors.New("invalid stake amount")
	ErrTierNotFound          = errors.New("lock period not found")
	ErrNotAuthorized         = errors.New("caller is not the operator")
	ErrPositionNotFound      = errors.New("position not found")
	ErrNotPositionOwner      = errors.New("caller does not own position")
	ErrPositionAlreadyClosed = errors.New("position already closed")
	ErrInvalidTerms          = errors.New("invalid tier or unlock terms")
	ErrAmountOverflow        = errors.New("amount overflows 256 bits")
	ErrReentrantCall         = errors.New("re-entrant ledger call during transfer")
)

// Infrastructure errors.
var (
	ErrNotFound          = errors.New("not found")
	ErrAlreadyExists     = errors.New("already exists")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrBadSignature      = errors.New("bad request signature")
	ErrRateLimited       = errors.New("rate limited")
	ErrLockHeld          = errors.New("lock already held")
)

// codes maps each error kind to a stable machine-readable code.
var codes = []struct {
	err  error
	code string
}{
	{ErrInvalidAmount, "invalid_amount"},
	{ErrTierNotFound, "tier_not_found"},
	{ErrNotAuthorized, "not_authorized"},
	{ErrPositionNotFound, "position_not_found"},
	{ErrNotPositionOwner, "not_position_owner"},
	{ErrPositionAlreadyClosed, "position_already_closed"},
	{ErrInvalidTerms, "invalid_terms"},
	{ErrInsufficientFunds, "insufficient_funds"},
	{ErrReentrantCall, "reentrant_call"},
	{ErrAmountOverflow, "amount_overflow"},
	{ErrUnauthorized, "unauthorized"},
	{ErrBadSignature, "bad_signature"},
	{ErrRateLimited, "rate_limited"},
	{ErrNotFound, "not_found"},
	{ErrLockHeld, "lock_held"},
}

// ErrorCode returns the stable code for err, "ok" for nil and "internal"
// for anything unrecognised.
func ErrorCode(err error) string {
	if err == nil {
		return "ok"
	}
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "internal"
}

// ErrorForCode is the inverse of ErrorCode. It returns nil for codes it
// does not know.
func ErrorForCode(code string) error {
	for _, c := range codes {
		if c.code == code {
			return c.err
		}
	}
	return nil
}
