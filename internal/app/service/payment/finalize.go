package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/samber/lo"
	"gorm.io/gorm"

	"github.com/sereniyou/payments/internal/models"
	"github.com/sereniyou/payments/internal/platform/events"
	"github.com/sereniyou/payments/internal/platform/mpesa"
	"github.com/sereniyou/payments/pkg/logctx"
	"github.com/sereniyou/payments/pkg/types"
)

// Outcome is the final provider verdict on one push, from a callback or a status query.
type Outcome struct {
	CheckoutRequestID string
	ResultCode        int
	ResultDesc        string
	ReceiptNumber     *string
	TransactionDate   *string
	PhoneNumber       *string
}

func (o *Outcome) Status() types.PaymentStatus {
	if o.ResultCode == 0 {
		return types.PaymentStatusCompleted
	}
	return types.PaymentStatusFailed
}

func OutcomeFromCallback(cb *mpesa.CallbackResult) *Outcome {
	return &Outcome{
		CheckoutRequestID: cb.CheckoutRequestID,
		ResultCode:        cb.ResultCode,
		ResultDesc:        cb.ResultDesc,
		ReceiptNumber:     cb.ReceiptNumber,
		TransactionDate:   cb.TransactionDate,
		PhoneNumber:       cb.PhoneNumber,
	}
}

// OutcomeFromQuery carries no receipt metadata; the query endpoint does not
// return it. A later callback fills it in.
func OutcomeFromQuery(q *mpesa.QueryResult) *Outcome {
	return &Outcome{
		CheckoutRequestID: q.CheckoutRequestID,
		ResultCode:        q.ResultCode,
		ResultDesc:        q.ResultDesc,
	}
}

// TransitionHook runs inside the finalizing transaction, only when the row left pending.
type TransitionHook func(ctx context.Context, tx *gorm.DB, pr *models.PaymentRequest) error

type FinalizeResult struct {
	Payment *models.PaymentRequest
	// Transitioned is false when the row was already terminal.
	Transitioned bool
	// Backfilled is set when a terminal completed row only received its
	// missing receipt metadata.
	Backfilled bool
	// Subscriber is set when a completed payment activated a subscription.
	Subscriber *models.Subscriber
}

// ApplyCallback finalizes the payment named by a provider callback.
func (s *Service) ApplyCallback(ctx context.Context, cb *mpesa.CallbackResult) (*FinalizeResult, error) {
	return s.ApplyOutcome(ctx, OutcomeFromCallback(cb), types.SubscriberChangeReasonPurchase)
}

// ApplyOutcome moves a pending payment to completed or failed and, on success,
// activates the subscription in the same transaction. Applying an outcome to a
// row that is already terminal changes nothing.
func (s *Service) ApplyOutcome(ctx context.Context, o *Outcome, reason types.SubscriberChangeReason) (*FinalizeResult, error) {
	log := logctx.FromCtx(ctx, s.log).With("checkout_request_id", o.CheckoutRequestID)

	var sub *models.Subscriber
	res, err := s.store.Finalize(ctx, o, func(ctx context.Context, tx *gorm.DB, pr *models.PaymentRequest) error {
		if pr.Status != types.PaymentStatusCompleted {
			return nil
		}
		plan := s.cfg.GetPlan(pr.PlanID)
		if plan == nil {
			return fmt.Errorf("%w: %s", ErrInvalidPlan, pr.PlanID)
		}
		var err error
		sub, err = s.activator.Activate(ctx, tx, pr, plan, reason)
		if err != nil {
			return fmt.Errorf("failed to activate subscription: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrUnknownCheckout) {
			log.Errorw("mpesa_callback_unknown_checkout", "result_code", o.ResultCode)
			return nil, err
		}
		log.Errorw("payment_finalize_failed", "err", err)
		if errors.Is(err, ErrInvalidPlan) {
			return nil, err
		}
		return nil, storageErr("finalize payment request", err)
	}
	res.Subscriber = sub

	if res.Backfilled {
		log.Infow("payment_receipt_backfilled", "transaction_id", lo.FromPtr(res.Payment.TransactionID))
		return res, nil
	}
	if !res.Transitioned {
		log.Infow("mpesa_callback_duplicate", "status", res.Payment.Status, "result_code", o.ResultCode)
		return res, nil
	}

	log.Infow("payment_finalized",
		"user_id", res.Payment.UserID,
		"status", res.Payment.Status,
		"result_code", o.ResultCode,
		"reason", reason,
	)
	s.publish(ctx, res)
	return res, nil
}

func (s *Service) publish(ctx context.Context, res *FinalizeResult) {
	pr := res.Payment
	evt := &events.PaymentEvent{
		CheckoutRequestID: pr.CheckoutRequestID,
		UserID:            pr.UserID,
		PlanID:            pr.PlanID,
		Amount:            pr.Amount,
		Status:            pr.Status,
		TransactionID:     pr.TransactionID,
		OccurredAt:        s.now(),
	}
	if pr.ResultCode != nil {
		evt.ResultCode = *pr.ResultCode
	}
	if res.Subscriber != nil {
		evt.SubscriptionEnd = res.Subscriber.SubscriptionEnd
	}
	if err := s.events.PublishPayment(ctx, evt); err != nil {
		logctx.FromCtx(ctx, s.log).Warnw("payment_event_publish_failed", "topic", evt.Topic(), "err", err)
	}
}
