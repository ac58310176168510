package middleware

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/stakingledger/internal/crypto"
)

const maxSignedBody = 1 << 20

type callerKey struct{}

// WithCaller attaches a verified caller to ctx.
func WithCaller(ctx context.Context, addr common.Address) context.Context {
	return context.WithValue(ctx, callerKey{}, addr)
}

// Caller returns the verified signer of the request, if any.
func Caller(ctx context.Context) (common.Address, bool) {
	addr, ok := ctx.Value(callerKey{}).(common.Address)
	return addr, ok
}

// Signature verifies X-Stake-* request signatures and attaches the signer
// as the caller. Unsigned requests pass through without a caller; a bad
// signature is rejected with 401.
func Signature(maxSkew time.Duration, now func() time.Time) func(http.Handler) http.Handler {
	if now == nil {
		now = time.Now
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get(crypto.HeaderSignature) == "" {
				next.ServeHTTP(w, r)
				return
			}

			sig, err := crypto.ParseRequestSignature(r.Header)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "bad_signature", "malformed signature headers")
				return
			}

			body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxSignedBody))
			if err != nil {
				var tooLarge *http.MaxBytesError
				if errors.As(err, &tooLarge) {
					writeError(w, http.StatusRequestEntityTooLarge, "bad_request", "request body too large")
					return
				}
				writeError(w, http.StatusBadRequest, "bad_request", "unreadable request body")
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			if err := crypto.Verify(sig, r.Method, r.URL.RequestURI(), body, now(), maxSkew); err != nil {
				writeError(w, http.StatusUnauthorized, "bad_signature", "signature verification failed")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), sig.Address)))
		})
	}
}
