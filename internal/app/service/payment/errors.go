package payment

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/sereniyou/payments/internal/platform/identity"
	"github.com/sereniyou/payments/internal/platform/mpesa"
)

var (
	ErrUnauthenticated    = errors.New("User not authenticated")
	ErrMissingFields      = errors.New("Phone number and plan ID are required")
	ErrMissingCheckoutID  = errors.New("Checkout request ID is required")
	ErrInvalidPhoneNumber = errors.New("Invalid phone number. Use format: 254XXXXXXXXX")
	ErrInvalidPlan        = errors.New("Invalid plan selected")
	ErrNotFound           = errors.New("Payment request not found")
	ErrStorage            = errors.New("Database error")
	ErrUpstream           = errors.New("upstream error")
	// ErrUnknownCheckout means a callback named a CheckoutRequestID with no stored request.
	ErrUnknownCheckout = errors.New("unknown CheckoutRequestID")
)

// kindError tags err with a taxonomy sentinel without changing its message.
type kindError struct {
	kind error
	err  error
}

func (e *kindError) Error() string   { return e.err.Error() }
func (e *kindError) Unwrap() []error { return []error{e.kind, e.err} }

func withKind(kind, err error) error {
	if err == nil || errors.Is(err, kind) {
		return err
	}
	return &kindError{kind: kind, err: err}
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrStorage, op, err)
}

// IsInvalidInput reports whether err is a client input error.
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrMissingFields) ||
		errors.Is(err, ErrMissingCheckoutID) ||
		errors.Is(err, ErrInvalidPhoneNumber) ||
		errors.Is(err, ErrInvalidPlan) ||
		errors.Is(err, mpesa.ErrMalformedCallback)
}

// HTTPStatus maps an error returned by this package to a response status.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrUnauthenticated),
		errors.Is(err, identity.ErrMissingToken),
		errors.Is(err, identity.ErrInvalidToken):
		return http.StatusUnauthorized
	case IsInvalidInput(err):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
