package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorCode(t *testing.T) {
	assert.Equal(t, "ok", ErrorCode(nil))
	assert.Equal(t, "tier_not_found", ErrorCode(fmt.Errorf("%w: 45 days", ErrTierNotFound)))
	assert.Equal(t, "insufficient_funds",
		ErrorCode(fmt.Errorf("ledger: transfer in: %w", fmt.Errorf("custody: %w", ErrInsufficientFunds))))
	assert.Equal(t, "internal", ErrorCode(errors.New("boom")))

	seen := map[string]bool{}
	for _, c := range codes {
		assert.False(t, seen[c.code], "duplicate code %s", c.code)
		seen[c.code] = true
	}
}

func TestErrorForCode(t *testing.T) {
	for _, c := range codes {
		assert.Same(t, c.err, ErrorForCode(c.code))
	}
	assert.Nil(t, ErrorForCode("internal"))
	assert.Nil(t, ErrorForCode("bad_request"))
}
