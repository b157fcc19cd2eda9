package payment

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sereniyou/payments/pkg/logctx"
	"github.com/sereniyou/payments/pkg/types"
)

type StatusRequest struct {
	AuthToken         string
	CheckoutRequestID string
}

// StatusView combines the caller's payment request with their subscription.
type StatusView struct {
	Status            types.PaymentStatus `json:"status"`
	ResultCode        *int                `json:"resultCode"`
	ResultDescription *string             `json:"resultDescription"`
	TransactionID     *string             `json:"transactionId"`
	Subscribed        bool                `json:"subscribed"`
	SubscriptionTier  *string             `json:"subscriptionTier"`
	SubscriptionEnd   *time.Time          `json:"subscriptionEnd"`
}

// Terminal reports whether polling can stop.
func (v *StatusView) Terminal() bool {
	return (v.Status == types.PaymentStatusCompleted && v.ResultCode != nil && *v.ResultCode == 0) ||
		v.Status == types.PaymentStatusFailed
}

// CheckStatus reads the caller's own payment request. Another user's
// CheckoutRequestID is reported as not found.
func (s *Service) CheckStatus(ctx context.Context, req *StatusRequest) (*StatusView, error) {
	userID, err := s.authenticate(ctx, req.AuthToken)
	if err != nil {
		return nil, err
	}
	ctx = logctx.WithUserID(ctx, userID)

	checkoutID := strings.TrimSpace(req.CheckoutRequestID)
	if checkoutID == "" {
		return nil, ErrMissingCheckoutID
	}

	pr, err := s.store.FindPaymentRequest(ctx, userID, checkoutID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, storageErr("find payment request", err)
	}

	view := &StatusView{
		Status:            pr.Status,
		ResultCode:        pr.ResultCode,
		ResultDescription: pr.ResultDescription,
		TransactionID:     pr.TransactionID,
	}

	sub, err := s.store.FindSubscriber(ctx, userID)
	if err != nil {
		// The payment outcome is still worth returning.
		logctx.FromCtx(ctx, s.log).Warnw("subscriber_lookup_failed", "err", err)
		return view, nil
	}
	if sub != nil {
		view.Subscribed = sub.Subscribed
		view.SubscriptionTier = &sub.SubscriptionTier
		view.SubscriptionEnd = sub.SubscriptionEnd
	}
	return view, nil
}
