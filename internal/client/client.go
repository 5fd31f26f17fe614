// Package client is the HTTP client for an approver server.
//
// Mutations and approval requests are signed with the configured key (see
// package auth). Rejections come back as the same typed errors the decision
// engine returns, so callers can errors.As on them.
package client

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/gipsh/safe-approver-go/internal/api"
	"github.com/gipsh/safe-approver-go/internal/auth"
	"github.com/gipsh/safe-approver-go/internal/config"
	"github.com/gipsh/safe-approver-go/internal/types"
)

// ErrNoKey is returned by signed calls on a client without a private key.
var ErrNoKey = errors.New("no private key configured")

// Client talks to one approver server.
type Client struct {
	host    string
	key     *ecdsa.PrivateKey
	address common.Address
	httpCli *http.Client
	now     func() time.Time
}

// New creates a client for host. key may be nil for read-only use.
func New(host string, key *ecdsa.PrivateKey) *Client {
	c := &Client{
		host:    strings.TrimRight(host, "/"),
		key:     key,
		httpCli: &http.Client{Timeout: 30 * time.Second},
		now:     time.Now,
	}
	if key != nil {
		c.address = auth.AddressFromKey(key)
	}
	return c
}

// NewFromConfig creates a client from APPROVER_URL and PRIVATE_KEY.
func NewFromConfig() (*Client, error) {
	var key *ecdsa.PrivateKey
	if config.PrivateKey != "" {
		var err error
		key, err = auth.ParsePrivateKey(config.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("invalid PRIVATE_KEY: %w", err)
		}
	}
	return New(config.ApproverURL, key), nil
}

// Address is the caller address requests are signed as.
func (c *Client) Address() common.Address { return c.address }

// EventsURL is the websocket URL of the server's event stream.
func (c *Client) EventsURL() string {
	u := c.host
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + "/v1/events"
}

// ── Reads ────────────────────────────────────────────────────────────────

// Policy returns the server's current policy.
func (c *Client) Policy(ctx context.Context) (*api.PolicyResponse, error) {
	var out api.PolicyResponse
	if err := c.do(ctx, http.MethodGet, "/v1/policy", nil, &out, false); err != nil {
		return nil, err
	}
	return &out, nil
}

// IsWhitelisted asks whether protocol is whitelisted.
func (c *Client) IsWhitelisted(ctx context.Context, protocol common.Address) (bool, error) {
	var out api.WhitelistResponse
	if err := c.do(ctx, http.MethodGet, "/v1/whitelist/"+protocol.Hex(), nil, &out, false); err != nil {
		return false, err
	}
	return out.Whitelisted, nil
}

// ── Signed calls ─────────────────────────────────────────────────────────

// SetLimit replaces the spend limit (wei).
func (c *Client) SetLimit(ctx context.Context, limit *big.Int) (*api.PolicyResponse, error) {
	var out api.PolicyResponse
	if err := c.do(ctx, http.MethodPut, "/v1/limit", api.LimitRequest{Limit: limit.String()}, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// AddToWhitelist whitelists protocol.
func (c *Client) AddToWhitelist(ctx context.Context, protocol common.Address) error {
	return c.do(ctx, http.MethodPost, "/v1/whitelist/"+protocol.Hex(), nil, nil, true)
}

// RemoveFromWhitelist removes protocol from the whitelist.
func (c *Client) RemoveFromWhitelist(ctx context.Context, protocol common.Address) error {
	return c.do(ctx, http.MethodDelete, "/v1/whitelist/"+protocol.Hex(), nil, nil, true)
}

// TransferAdmin hands administration to newAdmin.
func (c *Client) TransferAdmin(ctx context.Context, newAdmin common.Address) (*api.PolicyResponse, error) {
	var out api.PolicyResponse
	if err := c.do(ctx, http.MethodPut, "/v1/admin", api.AdminRequest{Admin: newAdmin}, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// Approve submits tx for approval and returns its Safe transaction hash.
func (c *Client) Approve(ctx context.Context, tx types.SafeTx) (common.Hash, error) {
	var out api.ApproveResponse
	if err := c.do(ctx, http.MethodPost, "/v1/approve", tx, &out, true); err != nil {
		return common.Hash{}, err
	}
	return out.SafeTxHash, nil
}

// ── Transport ────────────────────────────────────────────────────────────

func (c *Client) do(ctx context.Context, method, path string, payload, out interface{}, signed bool) error {
	if signed && c.key == nil {
		return fmt.Errorf("%s %s: %w", method, path, ErrNoKey)
	}
	var body []byte
	if payload != nil {
		var err error
		if body, err = json.Marshal(payload); err != nil {
			return fmt.Errorf("encode %s body: %w", path, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.host+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if signed {
		if err := auth.SignRequest(req, body, c.key, c.now()); err != nil {
			return err
		}
	}

	resp, err := c.httpCli.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		var apiErr api.ErrorResponse
		if err := json.Unmarshal(respBody, &apiErr); err != nil || apiErr.Error == "" {
			return fmt.Errorf("%s %s: HTTP %d: %s", method, path, resp.StatusCode, respBody)
		}
		return fmt.Errorf("%s %s: %w", method, path, apiErr.Err())
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("parse %s response: %w", path, err)
	}
	return nil
}
