// Package paymentclient talks to the payment endpoints the way the mobile and
// web clients do: initiate an STK push, then poll its status.
package paymentclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type Client struct {
	baseURL     string
	accessToken string
	http        *http.Client
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New returns a client for the deployment at baseURL, which includes the
// route prefix (e.g. https://host/functions/v1 or https://host/api).
func New(baseURL, accessToken string, opts ...Option) *Client {
	c := &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		accessToken: accessToken,
		http:        &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type InitiateResponse struct {
	Success           bool   `json:"success"`
	Message           string `json:"message"`
	CheckoutRequestID string `json:"checkoutRequestId"`
}

type StatusResponse struct {
	Status            string     `json:"status"`
	ResultCode        *int       `json:"resultCode"`
	ResultDescription *string    `json:"resultDescription"`
	TransactionID     *string    `json:"transactionId"`
	Subscribed        bool       `json:"subscribed"`
	SubscriptionTier  *string    `json:"subscriptionTier"`
	SubscriptionEnd   *time.Time `json:"subscriptionEnd"`
}

func (s *StatusResponse) Succeeded() bool {
	return s.Status == "completed" && s.ResultCode != nil && *s.ResultCode == 0
}

func (s *StatusResponse) Failed() bool {
	return s.Status == "failed"
}

// APIError is a non-2xx answer carrying the server's {error} message.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("payment api: %d: %s", e.StatusCode, e.Message)
}

func (c *Client) Initiate(ctx context.Context, phoneNumber, planID string) (*InitiateResponse, error) {
	var out InitiateResponse
	err := c.post(ctx, "/initiate-payment", map[string]string{"phoneNumber": phoneNumber, "planId": planID}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CheckStatus(ctx context.Context, checkoutRequestID string) (*StatusResponse, error) {
	var out StatusResponse
	err := c.post(ctx, "/check-payment-status", map[string]string{"checkoutRequestId": checkoutRequestID}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(raw, &e) == nil && e.Error != "" {
			apiErr.Message = e.Error
		} else {
			apiErr.Message = strings.TrimSpace(string(raw))
		}
		return apiErr
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
