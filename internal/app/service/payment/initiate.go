package payment

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/sereniyou/payments/internal/models"
	"github.com/sereniyou/payments/internal/platform/mpesa"
	"github.com/sereniyou/payments/pkg/logctx"
	"github.com/sereniyou/payments/pkg/metrics"
	"github.com/sereniyou/payments/pkg/tool"
	"github.com/sereniyou/payments/pkg/types"
)

// phonePattern accepts 254 followed by a 7xx or 1xx Safaricom/Airtel number.
var phonePattern = regexp.MustCompile(`^254[17]\d{8}$`)

const initiatedMessage = "Payment request sent. Please check your phone and enter your M-Pesa PIN."

type InitiateRequest struct {
	// AuthToken is the raw Authorization header value.
	AuthToken   string
	PhoneNumber string
	PlanID      types.PlanID
}

type InitiateResult struct {
	Success           bool   `json:"success"`
	Message           string `json:"message"`
	CheckoutRequestID string `json:"checkoutRequestId"`
}

func ValidatePhoneNumber(phone string) error {
	if !phonePattern.MatchString(phone) {
		return ErrInvalidPhoneNumber
	}
	return nil
}

// AccountReference links a push to an account without exposing the full user id.
func AccountReference(userID string, plan types.PlanID) string {
	return tool.ShortPrefix(userID, 8) + "-" + string(plan)
}

// Initiate validates the request, sends an STK push and records it as pending.
// Success means the prompt reached the provider, not that the customer paid.
func (s *Service) Initiate(ctx context.Context, req *InitiateRequest) (res *InitiateResult, err error) {
	// Labelled by configured plan only; request input never becomes a label value.
	planLabel := metrics.UnknownLabel
	defer func() {
		metrics.IncPaymentInitiation(planLabel, initiationResult(err))
	}()

	userID, err := s.authenticate(ctx, req.AuthToken)
	if err != nil {
		return nil, err
	}
	ctx = logctx.WithUserID(ctx, userID)
	log := logctx.FromCtx(ctx, s.log)

	phone := strings.TrimSpace(req.PhoneNumber)
	if phone == "" || req.PlanID == "" {
		return nil, ErrMissingFields
	}
	if err := ValidatePhoneNumber(phone); err != nil {
		return nil, err
	}
	plan := s.cfg.GetPlan(req.PlanID)
	if plan == nil || plan.Amount <= 0 {
		return nil, ErrInvalidPlan
	}
	planLabel = string(plan.ID)

	token, err := s.tokens.AccessToken(ctx)
	if err != nil {
		log.Errorw("mpesa_token_failed", "err", err)
		return nil, withKind(ErrUpstream, err)
	}

	push, err := s.pusher.STKPush(ctx, token, mpesa.PushInput{
		PhoneNumber:      phone,
		Amount:           plan.Amount,
		AccountReference: AccountReference(userID, plan.ID),
	})
	if err != nil {
		log.Errorw("mpesa_stkpush_failed", "plan_id", plan.ID, "err", err)
		return nil, withKind(ErrUpstream, err)
	}

	pr := &models.PaymentRequest{
		ID:                tool.GenerateUUIDV7(),
		UserID:            userID,
		CheckoutRequestID: push.CheckoutRequestID,
		MerchantRequestID: push.MerchantRequestID,
		PhoneNumber:       phone,
		Amount:            plan.Amount,
		PlanID:            plan.ID,
		Status:            types.PaymentStatusPending,
		CreatedAt:         s.now(),
	}
	if err := s.store.CreatePaymentRequest(ctx, pr); err != nil {
		// The prompt is already on the customer's phone; the reconciler cannot see this one.
		log.Errorw("payment_request_persist_failed",
			"checkout_request_id", push.CheckoutRequestID,
			"merchant_request_id", push.MerchantRequestID,
			"amount", plan.Amount,
			"err", err,
		)
		return nil, storageErr("insert payment request", err)
	}

	log.Infow("payment_initiated",
		"checkout_request_id", pr.CheckoutRequestID,
		"plan_id", pr.PlanID,
		"amount", pr.Amount,
		"phone", tool.Mask(phone, 4),
	)
	return &InitiateResult{Success: true, Message: initiatedMessage, CheckoutRequestID: pr.CheckoutRequestID}, nil
}

func initiationResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrUnauthenticated):
		return "unauthenticated"
	case IsInvalidInput(err):
		return "invalid"
	case errors.Is(err, ErrStorage):
		return "storage_error"
	default:
		return "upstream_error"
	}
}
