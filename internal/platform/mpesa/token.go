package mpesa

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/sereniyou/payments/pkg/metrics"
)

const defaultTokenTTL = 3599 * time.Second

// Token is a Daraja OAuth access token and the moment it stops being valid.
type Token struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type tokenResponse struct {
	AccessToken string      `json:"access_token"`
	ExpiresIn   json.Number `json:"expires_in"`
}

// TokenProvider hands out a valid access token for Daraja calls.
type TokenProvider interface {
	AccessToken(ctx context.Context) (string, error)
}

// TokenFetcher performs the client-credential exchange.
type TokenFetcher interface {
	FetchToken(ctx context.Context) (*Token, error)
}

// FetchToken exchanges consumer key and secret for a fresh access token.
func (c *Client) FetchToken(ctx context.Context) (*Token, error) {
	if c.consumerKey == "" || c.consumerSecret == "" {
		return nil, ErrConfiguration
	}
	start := time.Now()
	defer metrics.ObserveBusinessProcess("mpesa", "token", start)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+tokenPath, nil)
	if err != nil {
		return nil, fmt.Errorf("build token request: %w", err)
	}
	req.SetBasicAuth(c.consumerKey, c.consumerSecret)
	req.Header.Set("Content-Type", "application/json")

	status, body, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamAuth, err)
	}
	if !isSuccess(status) {
		var apiErr apiError
		_ = json.Unmarshal(body, &apiErr)
		c.logger(ctx).Warnw("mpesa_token_rejected", "status", status, "error_code", apiErr.ErrorCode)
		return nil, fmt.Errorf("%w: %s", ErrUpstreamAuth, apiErr.message())
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, fmt.Errorf("%w: decode token response: %v", ErrUpstreamAuth, err)
	}
	if tr.AccessToken == "" {
		return nil, fmt.Errorf("%w: empty access_token", ErrUpstreamAuth)
	}
	ttl := defaultTokenTTL
	if secs, err := strconv.ParseInt(tr.ExpiresIn.String(), 10, 64); err == nil && secs > 0 {
		ttl = time.Duration(secs) * time.Second
	}
	return &Token{AccessToken: tr.AccessToken, ExpiresAt: c.now().Add(ttl)}, nil
}

// AccessToken fetches a fresh token on every call. Used when caching is disabled.
func (c *Client) AccessToken(ctx context.Context) (string, error) {
	tok, err := c.FetchToken(ctx)
	if err != nil {
		return "", err
	}
	metrics.IncMpesaTokenFetch("upstream")
	return tok.AccessToken, nil
}
