package mpesa

import "errors"

var (
	// ErrConfiguration means consumer key/secret or shortcode/passkey are not set.
	ErrConfiguration = errors.New("M-Pesa credentials not configured")
	// ErrUpstreamAuth means Daraja rejected the client-credential exchange.
	ErrUpstreamAuth = errors.New("Failed to get access token")
	// ErrPushFailed carries the provider message of a rejected STK push.
	ErrPushFailed = errors.New("STK Push failed")
	// ErrQueryFailed carries the provider message of a rejected STK query.
	ErrQueryFailed = errors.New("STK Query failed")
	// ErrStillProcessing is returned by STKQuery while the customer has not answered the prompt.
	ErrStillProcessing = errors.New("transaction is still being processed")
	// ErrMalformedCallback means the body lacks the Body.stkCallback envelope or its required fields.
	ErrMalformedCallback = errors.New("Invalid callback format")
)
