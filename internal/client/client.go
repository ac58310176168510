// Package client is a Go client for the staking API. Mutating calls are
// signed with the caller's key so the server can attribute them.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/holiman/uint256"

	"github.com/alanyoungcy/stakingledger/internal/crypto"
	"github.com/alanyoungcy/stakingledger/internal/domain"
)

// APIError is a non-2xx response. Unwrap yields the domain error matching
// Code when there is one.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Status, e.Code, e.Message)
}

func (e *APIError) Unwrap() error {
	return domain.ErrorForCode(e.Code)
}

// Client talks to one staking server.
type Client struct {
	baseURL    string
	httpClient *http.Client
	signer     *crypto.Signer
	apiKey     string
	now        func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithSigner signs every request with s.
func WithSigner(s *crypto.Signer) Option {
	return func(c *Client) { c.signer = s }
}

// WithAPIKey sends key as a bearer token.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// WithHTTPClient replaces the default 30s-timeout client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

// New creates a Client for baseURL, e.g. "http://localhost:8000".
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Tier is a lock period and its rate in basis points.
type Tier = domain.Tier

// Position mirrors the server's position view. Amounts are decimal wei.
type Position struct {
	ID        uint64     `json:"id"`
	Owner     string     `json:"owner"`
	LockDays  uint32     `json:"lock_days"`
	Rate      uint64     `json:"rate_bps"`
	Principal string     `json:"principal"`
	Interest  string     `json:"interest"`
	CreatedAt time.Time  `json:"created_at"`
	UnlockAt  time.Time  `json:"unlock_at"`
	Open      bool       `json:"open"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`
	Payout    string     `json:"payout,omitempty"`
}

// Closure is the outcome of closing a position.
type Closure struct {
	PositionID uint64    `json:"position_id"`
	Owner      string    `json:"owner"`
	Payout     string    `json:"payout"`
	Forfeited  string    `json:"forfeited"`
	Early      bool      `json:"early"`
	ClosedAt   time.Time `json:"closed_at"`
}

// Quote previews the terms a stake would get.
type Quote struct {
	LockDays  uint32    `json:"lock_days"`
	Rate      uint64    `json:"rate_bps"`
	Principal string    `json:"principal"`
	Interest  string    `json:"interest"`
	UnlockAt  time.Time `json:"unlock_at"`
}

// OwnerPositions lists everything one address has staked.
type OwnerPositions struct {
	Owner       string     `json:"owner"`
	PositionIDs []uint64   `json:"position_ids"`
	Positions   []Position `json:"positions"`
}

// Tiers lists every tier.
func (c *Client) Tiers(ctx context.Context) ([]Tier, error) {
	var resp struct {
		Tiers []Tier `json:"tiers"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/tiers", nil, &resp); err != nil {
		return nil, fmt.Errorf("client: tiers: %w", err)
	}
	return resp.Tiers, nil
}

// Quote previews a stake of amount wei for days.
func (c *Client) Quote(ctx context.Context, days uint32, amount *uint256.Int) (Quote, error) {
	path := fmt.Sprintf("/api/tiers/%d/quote?amount=%s", days, url.QueryEscape(amount.Dec()))
	var q Quote
	if err := c.do(ctx, http.MethodGet, path, nil, &q); err != nil {
		return Quote{}, fmt.Errorf("client: quote: %w", err)
	}
	return q, nil
}

// SetTier creates or overwrites a tier. Requires the operator's key.
func (c *Client) SetTier(ctx context.Context, days uint32, rate uint64) (Tier, error) {
	body := map[string]uint64{"rate_bps": rate}
	var t Tier
	if err := c.do(ctx, http.MethodPut, fmt.Sprintf("/api/tiers/%d", days), body, &t); err != nil {
		return Tier{}, fmt.Errorf("client: set tier %d: %w", days, err)
	}
	return t, nil
}

// Stake opens a position for the signer.
func (c *Client) Stake(ctx context.Context, days uint32, amount *uint256.Int) (Position, error) {
	body := map[string]any{"lock_days": days, "amount": amount.Dec()}
	var p Position
	if err := c.do(ctx, http.MethodPost, "/api/positions", body, &p); err != nil {
		return Position{}, fmt.Errorf("client: stake: %w", err)
	}
	return p, nil
}

// Position fetches one position.
func (c *Client) Position(ctx context.Context, id uint64) (Position, error) {
	var p Position
	if err := c.do(ctx, http.MethodGet, "/api/positions/"+strconv.FormatUint(id, 10), nil, &p); err != nil {
		return Position{}, fmt.Errorf("client: position %d: %w", id, err)
	}
	return p, nil
}

// PositionsForOwner lists an address's positions.
func (c *Client) PositionsForOwner(ctx context.Context, owner string) (OwnerPositions, error) {
	var resp OwnerPositions
	if err := c.do(ctx, http.MethodGet, "/api/owners/"+url.PathEscape(owner)+"/positions", nil, &resp); err != nil {
		return OwnerPositions{}, fmt.Errorf("client: positions for %s: %w", owner, err)
	}
	return resp, nil
}

// Close closes one of the signer's positions.
func (c *Client) Close(ctx context.Context, id uint64) (Closure, error) {
	var cl Closure
	path := "/api/positions/" + strconv.FormatUint(id, 10) + "/close"
	if err := c.do(ctx, http.MethodPost, path, nil, &cl); err != nil {
		return Closure{}, fmt.Errorf("client: close %d: %w", id, err)
	}
	return cl, nil
}

// ChangeUnlock moves a position's unlock time. Requires the operator's key.
func (c *Client) ChangeUnlock(ctx context.Context, id uint64, unlockAt time.Time) (Position, error) {
	body := map[string]time.Time{"unlock_at": unlockAt.UTC()}
	var p Position
	path := "/api/positions/" + strconv.FormatUint(id, 10) + "/unlock"
	if err := c.do(ctx, http.MethodPut, path, body, &p); err != nil {
		return Position{}, fmt.Errorf("client: change unlock %d: %w", id, err)
	}
	return p, nil
}

// Status returns the server's status document as raw JSON.
func (c *Client) Status(ctx context.Context) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/api/status", nil, &raw); err != nil {
		return nil, fmt.Errorf("client: status: %w", err)
	}
	return raw, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if c.signer != nil {
		sig, err := c.signer.SignRequest(c.now(), method, req.URL.RequestURI(), payload)
		if err != nil {
			return fmt.Errorf("sign request: %w", err)
		}
		sig.Apply(req.Header)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeAPIError(resp.StatusCode, respBody)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeAPIError(status int, body []byte) error {
	apiErr := &APIError{Status: status, Message: string(body)}
	var payload struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	if json.Unmarshal(body, &payload) == nil && payload.Code != "" {
		apiErr.Code = payload.Code
		apiErr.Message = payload.Error
	}
	return apiErr
}

// IsCode reports whether err is an APIError carrying code.
func IsCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}
