package mpesa

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/sereniyou/payments/pkg/config"
	"github.com/sereniyou/payments/pkg/logctx"
)

const (
	tokenPath    = "/oauth/v1/generate?grant_type=client_credentials"
	stkPushPath  = "/mpesa/stkpush/v1/processrequest"
	stkQueryPath = "/mpesa/stkpushquery/v1/query"

	defaultTimeout = 30 * time.Second
	// maxBodySize bounds how much of an upstream response is read.
	maxBodySize = 1 << 20
)

// Client talks to the Safaricom Daraja API.
type Client struct {
	baseURL         string
	consumerKey     string
	consumerSecret  string
	shortcode       string
	passkey         string
	callbackURL     string
	transactionDesc string
	loc             *time.Location

	http *http.Client
	now  func() time.Time
	log  *zap.SugaredLogger
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

func NewClient(cfg config.MpesaConfig, log *zap.SugaredLogger, opts ...Option) *Client {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	c := &Client{
		baseURL:         cfg.ResolvedBaseURL(),
		consumerKey:     cfg.ConsumerKey,
		consumerSecret:  cfg.ConsumerSecret,
		shortcode:       cfg.Shortcode,
		passkey:         cfg.Passkey,
		callbackURL:     cfg.ResolvedCallbackURL(),
		transactionDesc: cfg.TransactionDesc,
		loc:             LoadLocation(cfg.TimestampLocation),
		http:            &http.Client{Timeout: timeout},
		now:             time.Now,
		log:             log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// apiError is the error body shape Daraja uses across endpoints. Both spellings
// of the description field occur in the wild.
type apiError struct {
	RequestID             string `json:"requestId"`
	ErrorCode             string `json:"errorCode"`
	ErrorMessage          string `json:"errorMessage"`
	ErrorDescription      string `json:"errorDescription"`
	OAuthErrorDescription string `json:"error_description"`
}

func (e apiError) message() string {
	return lo.CoalesceOrEmpty(e.ErrorMessage, e.OAuthErrorDescription, e.ErrorDescription, "Unknown error")
}

func (e apiError) present() bool {
	return e.ErrorCode != "" || e.ErrorMessage != ""
}

// do sends req and returns the status code and the (bounded) body.
func (c *Client) do(req *http.Request) (int, []byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read body: %w", err)
	}
	return resp.StatusCode, body, nil
}

func (c *Client) postJSON(ctx context.Context, path, accessToken string, in any) (int, []byte, error) {
	payload, err := json.Marshal(in)
	if err != nil {
		return 0, nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *Client) logger(ctx context.Context) *zap.SugaredLogger {
	return logctx.FromCtx(ctx, c.log)
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}
