// Package client is a Go client for the score ledger HTTP API.
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
	"strings"
	"time"

	"github.com/okian/scorenft/internal/adapters/auth"
	"github.com/okian/scorenft/internal/domain/ledger"
	"github.com/okian/scorenft/internal/domain/model"
	"github.com/okian/scorenft/internal/domain/types"
)

const (
	defaultTimeout  = 30 * time.Second
	defaultTokenTTL = time.Minute
)

// Client calls the ledger API, signing each request with a fresh token when
// a signer is configured.
type Client struct {
	baseURL  string
	http     *http.Client
	signer   *auth.Signer
	tokenTTL time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithSigner authenticates calls as the signer's identity.
func WithSigner(s *auth.Signer) Option {
	return func(c *Client) { c.signer = s }
}

// WithTokenTTL sets the lifetime of issued call tokens.
func WithTokenTTL(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.tokenTTL = d
		}
	}
}

// New creates a client for the API at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     &http.Client{Timeout: defaultTimeout},
		tokenTTL: defaultTokenTTL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Initialize installs admin.
func (c *Client) Initialize(ctx context.Context, admin model.Identity) (types.ContractInfo, error) {
	var out types.ContractInfo
	err := c.do(ctx, http.MethodPost, "/v1/initialize", map[string]string{"admin": admin.String()}, &out)
	return out, err
}

// Contract returns the registry summary.
func (c *Client) Contract(ctx context.Context) (types.ContractInfo, error) {
	var out types.ContractInfo
	err := c.do(ctx, http.MethodGet, "/v1/contract", nil, &out)
	return out, err
}

// Mint creates the record of id.
func (c *Client) Mint(ctx context.Context, id model.Identity, score uint64, hash model.HistoryHash) (types.Metadata, error) {
	body := struct {
		Identity    model.Identity    `json:"identity"`
		Score       uint64            `json:"score"`
		HistoryHash model.HistoryHash `json:"history_hash"`
	}{id, score, hash}
	var out types.Metadata
	err := c.do(ctx, http.MethodPost, "/v1/records", body, &out)
	return out, err
}

// Repay applies a repayment of amount. repaymentID may be empty.
func (c *Client) Repay(ctx context.Context, id model.Identity, amount uint64, repaymentID string) (types.RepaymentResult, error) {
	body := struct {
		Amount      uint64 `json:"amount"`
		RepaymentID string `json:"repayment_id,omitempty"`
	}{amount, repaymentID}
	var out types.RepaymentResult
	err := c.do(ctx, http.MethodPost, recordPath(id, "repayments"), body, &out)
	return out, err
}

// UpdateHistoryHash replaces the history hash of id.
func (c *Client) UpdateHistoryHash(ctx context.Context, id model.Identity, hash model.HistoryHash) (types.Metadata, error) {
	body := struct {
		HistoryHash model.HistoryHash `json:"history_hash"`
	}{hash}
	var out types.Metadata
	err := c.do(ctx, http.MethodPut, recordPath(id, "history-hash"), body, &out)
	return out, err
}

// Score returns the score of id, 0 when no record exists.
func (c *Client) Score(ctx context.Context, id model.Identity) (types.ScoreView, error) {
	var out types.ScoreView
	err := c.do(ctx, http.MethodGet, recordPath(id, "score"), nil, &out)
	return out, err
}

// Metadata returns the record of id and whether it exists.
func (c *Client) Metadata(ctx context.Context, id model.Identity) (types.Metadata, bool, error) {
	var out types.Metadata
	err := c.do(ctx, http.MethodGet, recordPath(id, ""), nil, &out)
	if errors.Is(err, ledger.ErrNoRecord) {
		return types.Metadata{}, false, nil
	}
	if err != nil {
		return types.Metadata{}, false, err
	}
	return out, true, nil
}

// AuthorizeMinter grants id the right to mint.
func (c *Client) AuthorizeMinter(ctx context.Context, id model.Identity) (types.MinterView, error) {
	return c.minter(ctx, http.MethodPut, id)
}

// RevokeMinter withdraws the right to mint from id.
func (c *Client) RevokeMinter(ctx context.Context, id model.Identity) (types.MinterView, error) {
	return c.minter(ctx, http.MethodDelete, id)
}

// IsAuthorizedMinter reports whether id may mint.
func (c *Client) IsAuthorizedMinter(ctx context.Context, id model.Identity) (types.MinterView, error) {
	return c.minter(ctx, http.MethodGet, id)
}

func (c *Client) minter(ctx context.Context, method string, id model.Identity) (types.MinterView, error) {
	var out types.MinterView
	err := c.do(ctx, method, "/v1/minters/"+url.PathEscape(id.String()), nil, &out)
	return out, err
}

func recordPath(id model.Identity, sub string) string {
	p := "/v1/records/" + url.PathEscape(id.String())
	if sub != "" {
		p += "/" + sub
	}
	return p
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		payload = b
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.signer != nil {
		token, err := c.signer.Issue(c.tokenTTL, auth.Request{Method: method, Path: req.URL.Path, Body: payload})
		if err != nil {
			return fmt.Errorf("failed to issue token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{Status: resp.StatusCode}
		if jsonErr := json.Unmarshal(data, apiErr); jsonErr != nil || apiErr.Code == "" {
			apiErr.Code = "http_error"
			apiErr.Message = strings.TrimSpace(string(data))
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
