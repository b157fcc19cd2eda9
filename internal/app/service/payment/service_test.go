package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sereniyou/payments/internal/platform/identity"
	"github.com/sereniyou/payments/internal/platform/mpesa"
	"github.com/sereniyou/payments/pkg/config"
	"github.com/sereniyou/payments/pkg/metrics"
	"github.com/sereniyou/payments/pkg/types"
)

const (
	aliceID = "a1b2c3d4-1111-2222-3333-444455556666"
	bobID   = "b0b0b0b0-1111-2222-3333-444455556666"
)

type fixture struct {
	svc       *Service
	store     *memStore
	tokens    *stubTokens
	pusher    *stubPusher
	activator *stubActivator
	events    *recordingPublisher
	now       time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:  newMemStore(),
		tokens: &stubTokens{},
		pusher: &stubPusher{checkout: "ws_CO_1"},
		events: &recordingPublisher{},
		now:    time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC),
	}
	f.activator = &stubActivator{store: f.store}
	f.svc = NewService(Deps{
		Config:    &config.Config{Plans: types.DefaultPlans()},
		Log:       zap.NewNop().Sugar(),
		Verifier:  stubVerifier{"alice-token": aliceID, "bob-token": bobID},
		Tokens:    f.tokens,
		Pusher:    f.pusher,
		Store:     f.store,
		Activator: f.activator,
		Events:    f.events,
		Now:       func() time.Time { return f.now },
	})
	return f
}

func (f *fixture) initiate(t *testing.T, plan types.PlanID) string {
	t.Helper()
	res, err := f.svc.Initiate(context.Background(), &InitiateRequest{AuthToken: "Bearer alice-token", PhoneNumber: "254712345678", PlanID: plan})
	require.NoError(t, err)
	return res.CheckoutRequestID
}

func TestInitiate_Success(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.Initiate(context.Background(), &InitiateRequest{
		AuthToken:   "Bearer alice-token",
		PhoneNumber: "254712345678",
		PlanID:      types.PlanMonthly,
	})
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Equal(t, "ws_CO_1", res.CheckoutRequestID)
	require.Equal(t, "Payment request sent. Please check your phone and enter your M-Pesa PIN.", res.Message)

	require.Equal(t, mpesa.PushInput{PhoneNumber: "254712345678", Amount: 2000, AccountReference: "a1b2c3d4-monthly"}, f.pusher.last)

	stored := f.store.requests["ws_CO_1"]
	require.NotNil(t, stored)
	require.Equal(t, aliceID, stored.UserID)
	require.Equal(t, int64(2000), stored.Amount)
	require.Equal(t, types.PaymentStatusPending, stored.Status)
	require.Equal(t, "m-1", stored.MerchantRequestID)
	require.Equal(t, res.CheckoutRequestID, stored.CheckoutRequestID)
	require.NotEmpty(t, stored.ID)
}

func TestInitiate_AnnualAmountFromTable(t *testing.T) {
	f := newFixture(t)
	f.initiate(t, types.PlanAnnual)
	require.Equal(t, int64(10000), f.pusher.last.Amount)
	require.Equal(t, "a1b2c3d4-annual", f.pusher.last.AccountReference)
}

func TestInitiate_ValidationFailsBeforeUpstream(t *testing.T) {
	tests := []struct {
		name    string
		req     InitiateRequest
		wantErr error
		status  int
	}{
		{name: "no auth", req: InitiateRequest{PhoneNumber: "254712345678", PlanID: types.PlanMonthly}, wantErr: ErrUnauthenticated, status: http.StatusUnauthorized},
		{name: "bad token", req: InitiateRequest{AuthToken: "Bearer nope", PhoneNumber: "254712345678", PlanID: types.PlanMonthly}, wantErr: ErrUnauthenticated, status: http.StatusUnauthorized},
		{name: "missing phone", req: InitiateRequest{AuthToken: "Bearer alice-token", PlanID: types.PlanMonthly}, wantErr: ErrMissingFields, status: http.StatusBadRequest},
		{name: "missing plan", req: InitiateRequest{AuthToken: "Bearer alice-token", PhoneNumber: "254712345678"}, wantErr: ErrMissingFields, status: http.StatusBadRequest},
		{name: "local format", req: InitiateRequest{AuthToken: "Bearer alice-token", PhoneNumber: "0712345678", PlanID: types.PlanMonthly}, wantErr: ErrInvalidPhoneNumber, status: http.StatusBadRequest},
		{name: "plus prefix", req: InitiateRequest{AuthToken: "Bearer alice-token", PhoneNumber: "+254712345678", PlanID: types.PlanMonthly}, wantErr: ErrInvalidPhoneNumber, status: http.StatusBadRequest},
		{name: "landline range", req: InitiateRequest{AuthToken: "Bearer alice-token", PhoneNumber: "254212345678", PlanID: types.PlanMonthly}, wantErr: ErrInvalidPhoneNumber, status: http.StatusBadRequest},
		{name: "too long", req: InitiateRequest{AuthToken: "Bearer alice-token", PhoneNumber: "2547123456789", PlanID: types.PlanMonthly}, wantErr: ErrInvalidPhoneNumber, status: http.StatusBadRequest},
		{name: "unknown plan", req: InitiateRequest{AuthToken: "Bearer alice-token", PhoneNumber: "254712345678", PlanID: "weekly"}, wantErr: ErrInvalidPlan, status: http.StatusBadRequest},
		{name: "plan case", req: InitiateRequest{AuthToken: "Bearer alice-token", PhoneNumber: "254712345678", PlanID: "Monthly"}, wantErr: ErrInvalidPlan, status: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.svc.Initiate(context.Background(), &tt.req)
			require.ErrorIs(t, err, tt.wantErr)
			require.Equal(t, tt.status, HTTPStatus(err))
			require.Zero(t, f.tokens.calls)
			require.Zero(t, f.pusher.calls)
			require.Empty(t, f.store.requests)
		})
	}
}

func initiationSeries() int {
	ch := make(chan prometheus.Metric, 4096)
	metrics.MetricsPaymentInitiations.MetricCollector.Collect(ch)
	close(ch)
	return len(ch)
}

func TestInitiate_MetricLabelsStayBounded(t *testing.T) {
	f := newFixture(t)
	f.initiate(t, types.PlanMonthly)
	before := initiationSeries()

	for i := 0; i < 50; i++ {
		plan := types.PlanID(fmt.Sprintf("junk-%d", i))
		_, err := f.svc.Initiate(context.Background(), &InitiateRequest{PhoneNumber: "254712345678", PlanID: plan})
		require.ErrorIs(t, err, ErrUnauthenticated)
		_, err = f.svc.Initiate(context.Background(), &InitiateRequest{AuthToken: "Bearer alice-token", PhoneNumber: "254712345678", PlanID: plan})
		require.ErrorIs(t, err, ErrInvalidPlan)
	}
	// at most ("unknown","unauthenticated") and ("unknown","invalid") are new
	require.LessOrEqual(t, initiationSeries()-before, 2)
}

func TestInitiate_AirtelPrefixAccepted(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Initiate(context.Background(), &InitiateRequest{AuthToken: "Bearer alice-token", PhoneNumber: "254112345678", PlanID: types.PlanMonthly})
	require.NoError(t, err)
}

func TestInitiate_UpstreamFailures(t *testing.T) {
	t.Run("token", func(t *testing.T) {
		f := newFixture(t)
		f.tokens.err = mpesa.ErrConfiguration
		_, err := f.svc.Initiate(context.Background(), &InitiateRequest{AuthToken: "Bearer alice-token", PhoneNumber: "254712345678", PlanID: types.PlanMonthly})
		require.ErrorIs(t, err, ErrUpstream)
		require.ErrorIs(t, err, mpesa.ErrConfiguration)
		require.Equal(t, http.StatusInternalServerError, HTTPStatus(err))
		require.Zero(t, f.pusher.calls)
	})
	t.Run("push", func(t *testing.T) {
		f := newFixture(t)
		f.pusher.err = fmt.Errorf("%w: %s", mpesa.ErrPushFailed, "Bad Request - Invalid PhoneNumber")
		_, err := f.svc.Initiate(context.Background(), &InitiateRequest{AuthToken: "Bearer alice-token", PhoneNumber: "254712345678", PlanID: types.PlanMonthly})
		require.ErrorIs(t, err, ErrUpstream)
		require.ErrorIs(t, err, mpesa.ErrPushFailed)
		require.Equal(t, "STK Push failed: Bad Request - Invalid PhoneNumber", err.Error())
		require.Empty(t, f.store.requests)
	})
	t.Run("identity down", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Initiate(context.Background(), &InitiateRequest{AuthToken: "Bearer down", PhoneNumber: "254712345678", PlanID: types.PlanMonthly})
		require.ErrorIs(t, err, ErrUpstream)
		require.Equal(t, http.StatusInternalServerError, HTTPStatus(err))
	})
}

func TestInitiate_StorageFailureAfterPush(t *testing.T) {
	f := newFixture(t)
	f.store.createErr = errors.New("connection reset")

	_, err := f.svc.Initiate(context.Background(), &InitiateRequest{AuthToken: "Bearer alice-token", PhoneNumber: "254712345678", PlanID: types.PlanMonthly})
	require.ErrorIs(t, err, ErrStorage)
	require.Contains(t, err.Error(), "Database error")
	require.Equal(t, http.StatusInternalServerError, HTTPStatus(err))
	require.Equal(t, 1, f.pusher.calls)
}

func successCallback(checkoutID string, receipt string) *mpesa.CallbackResult {
	return &mpesa.CallbackResult{
		CheckoutRequestID: checkoutID,
		ResultCode:        0,
		ResultDesc:        "The service request is processed successfully.",
		ReceiptNumber:     lo.ToPtr(receipt),
	}
}

func TestApplyCallback_Success(t *testing.T) {
	f := newFixture(t)
	id := f.initiate(t, types.PlanMonthly)

	res, err := f.svc.ApplyCallback(context.Background(), successCallback(id, "ABC123"))
	require.NoError(t, err)
	require.True(t, res.Transitioned)
	require.Equal(t, types.PaymentStatusCompleted, res.Payment.Status)
	require.Equal(t, "ABC123", *res.Payment.TransactionID)
	require.Nil(t, res.Payment.TransactionDate)

	sub := f.store.subscribers[aliceID]
	require.NotNil(t, sub)
	require.True(t, sub.Subscribed)
	require.Equal(t, "Monthly Premium", sub.SubscriptionTier)
	require.Equal(t, time.Date(2024, 2, 15, 10, 0, 0, 0, time.UTC), *sub.SubscriptionEnd)

	require.Len(t, f.events.events, 1)
	require.Equal(t, "payment.completed", f.events.events[0].Topic())
	require.Equal(t, sub.SubscriptionEnd, f.events.events[0].SubscriptionEnd)
}

func TestApplyCallback_AnnualEnd(t *testing.T) {
	f := newFixture(t)
	id := f.initiate(t, types.PlanAnnual)

	_, err := f.svc.ApplyCallback(context.Background(), successCallback(id, "ABC123"))
	require.NoError(t, err)
	require.Equal(t, time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC), *f.store.subscribers[aliceID].SubscriptionEnd)
}

func TestApplyCallback_Failed(t *testing.T) {
	f := newFixture(t)
	id := f.initiate(t, types.PlanMonthly)

	res, err := f.svc.ApplyCallback(context.Background(), &mpesa.CallbackResult{CheckoutRequestID: id, ResultCode: 1032, ResultDesc: "Request cancelled by user"})
	require.NoError(t, err)
	require.True(t, res.Transitioned)
	require.Equal(t, types.PaymentStatusFailed, res.Payment.Status)
	require.Equal(t, 1032, *res.Payment.ResultCode)
	require.Zero(t, f.activator.calls)
	require.Empty(t, f.store.subscribers)
	require.Equal(t, "payment.failed", f.events.events[0].Topic())
}

func TestApplyCallback_DuplicateIsIdempotent(t *testing.T) {
	f := newFixture(t)
	id := f.initiate(t, types.PlanMonthly)

	_, err := f.svc.ApplyCallback(context.Background(), successCallback(id, "ABC123"))
	require.NoError(t, err)
	firstPayment := *f.store.requests[id]
	firstSub := *f.store.subscribers[aliceID]

	f.now = f.now.Add(time.Hour)
	res, err := f.svc.ApplyCallback(context.Background(), successCallback(id, "ABC123"))
	require.NoError(t, err)
	require.False(t, res.Transitioned)

	require.Equal(t, firstPayment, *f.store.requests[id])
	require.Equal(t, firstSub, *f.store.subscribers[aliceID])
	require.Equal(t, 1, f.activator.calls)
	require.Len(t, f.events.events, 1)
}

func TestApplyCallback_ConflictingLateCallbackIgnored(t *testing.T) {
	f := newFixture(t)
	id := f.initiate(t, types.PlanMonthly)

	_, err := f.svc.ApplyCallback(context.Background(), successCallback(id, "ABC123"))
	require.NoError(t, err)
	_, err = f.svc.ApplyCallback(context.Background(), &mpesa.CallbackResult{CheckoutRequestID: id, ResultCode: 1, ResultDesc: "late failure"})
	require.NoError(t, err)
	require.Equal(t, types.PaymentStatusCompleted, f.store.requests[id].Status)
}

func TestApplyCallback_BackfillsReceiptAfterQueryCompleted(t *testing.T) {
	f := newFixture(t)
	id := f.initiate(t, types.PlanMonthly)

	res, err := f.svc.ApplyOutcome(context.Background(),
		OutcomeFromQuery(&mpesa.QueryResult{CheckoutRequestID: id, ResultCode: 0, ResultDesc: "processed"}),
		types.SubscriberChangeReasonReconcile)
	require.NoError(t, err)
	require.True(t, res.Transitioned)
	require.Nil(t, f.store.requests[id].TransactionID)
	sub := *f.store.subscribers[aliceID]

	cb := successCallback(id, "ABC123")
	cb.TransactionDate = lo.ToPtr("20240115100102")
	cb.PhoneNumber = lo.ToPtr("254712345678")
	res, err = f.svc.ApplyCallback(context.Background(), cb)
	require.NoError(t, err)
	require.False(t, res.Transitioned)
	require.True(t, res.Backfilled)
	require.Equal(t, "ABC123", *f.store.requests[id].TransactionID)
	require.Equal(t, "20240115100102", *f.store.requests[id].TransactionDate)
	require.Equal(t, 1, f.activator.calls)
	require.Equal(t, sub, *f.store.subscribers[aliceID])
	require.Len(t, f.events.events, 1)

	view, err := f.svc.CheckStatus(context.Background(), &StatusRequest{AuthToken: "Bearer alice-token", CheckoutRequestID: id})
	require.NoError(t, err)
	require.Equal(t, "ABC123", *view.TransactionID)

	// a redelivery after the backfill is a plain duplicate
	res, err = f.svc.ApplyCallback(context.Background(), successCallback(id, "OTHER"))
	require.NoError(t, err)
	require.False(t, res.Backfilled)
	require.Equal(t, "ABC123", *f.store.requests[id].TransactionID)
}

func TestApplyCallback_UnknownCheckout(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.ApplyCallback(context.Background(), successCallback("ws_CO_missing", "X"))
	require.ErrorIs(t, err, ErrUnknownCheckout)
	require.Equal(t, http.StatusInternalServerError, HTTPStatus(err))
	require.Empty(t, f.events.events)
}

func TestApplyCallback_ActivationFailureLeavesPending(t *testing.T) {
	f := newFixture(t)
	id := f.initiate(t, types.PlanMonthly)
	f.activator.err = errors.New("deadlock")

	_, err := f.svc.ApplyCallback(context.Background(), successCallback(id, "ABC123"))
	require.ErrorIs(t, err, ErrStorage)
	require.Equal(t, types.PaymentStatusPending, f.store.requests[id].Status)

	// provider redelivery succeeds once the store recovers
	f.activator.err = nil
	res, err := f.svc.ApplyCallback(context.Background(), successCallback(id, "ABC123"))
	require.NoError(t, err)
	require.True(t, res.Transitioned)
}

func TestApplyCallback_PublishErrorDoesNotFail(t *testing.T) {
	f := newFixture(t)
	id := f.initiate(t, types.PlanMonthly)
	f.events.err = errors.New("nsqd down")

	_, err := f.svc.ApplyCallback(context.Background(), successCallback(id, "ABC123"))
	require.NoError(t, err)
}

func TestCheckStatus(t *testing.T) {
	f := newFixture(t)
	id := f.initiate(t, types.PlanMonthly)

	view, err := f.svc.CheckStatus(context.Background(), &StatusRequest{AuthToken: "Bearer alice-token", CheckoutRequestID: id})
	require.NoError(t, err)
	require.Equal(t, types.PaymentStatusPending, view.Status)
	require.False(t, view.Subscribed)
	require.Nil(t, view.SubscriptionTier)
	require.False(t, view.Terminal())

	_, err = f.svc.ApplyCallback(context.Background(), successCallback(id, "ABC123"))
	require.NoError(t, err)

	view, err = f.svc.CheckStatus(context.Background(), &StatusRequest{AuthToken: "Bearer alice-token", CheckoutRequestID: id})
	require.NoError(t, err)
	require.Equal(t, types.PaymentStatusCompleted, view.Status)
	require.Equal(t, 0, *view.ResultCode)
	require.Equal(t, "ABC123", *view.TransactionID)
	require.True(t, view.Subscribed)
	require.Equal(t, "Monthly Premium", *view.SubscriptionTier)
	require.True(t, view.Terminal())
}

func TestCheckStatus_OtherUsersCheckoutIsNotFound(t *testing.T) {
	f := newFixture(t)
	id := f.initiate(t, types.PlanMonthly)

	_, err := f.svc.CheckStatus(context.Background(), &StatusRequest{AuthToken: "Bearer bob-token", CheckoutRequestID: id})
	require.ErrorIs(t, err, ErrNotFound)
	require.Equal(t, http.StatusNotFound, HTTPStatus(err))
}

func TestCheckStatus_Errors(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CheckStatus(context.Background(), &StatusRequest{CheckoutRequestID: "x"})
	require.ErrorIs(t, err, identity.ErrMissingToken)
	require.Equal(t, http.StatusUnauthorized, HTTPStatus(err))

	_, err = f.svc.CheckStatus(context.Background(), &StatusRequest{AuthToken: "Bearer alice-token"})
	require.ErrorIs(t, err, ErrMissingCheckoutID)
	require.Equal(t, http.StatusBadRequest, HTTPStatus(err))

	_, err = f.svc.CheckStatus(context.Background(), &StatusRequest{AuthToken: "Bearer alice-token", CheckoutRequestID: "ws_CO_nope"})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestStatusView_Terminal(t *testing.T) {
	require.False(t, (&StatusView{Status: types.PaymentStatusCompleted}).Terminal())
	require.True(t, (&StatusView{Status: types.PaymentStatusFailed}).Terminal())
	require.True(t, (&StatusView{Status: types.PaymentStatusCompleted, ResultCode: lo.ToPtr(0)}).Terminal())
}

func TestHTTPStatus(t *testing.T) {
	require.Equal(t, http.StatusOK, HTTPStatus(nil))
	require.Equal(t, http.StatusBadRequest, HTTPStatus(mpesa.ErrMalformedCallback))
	require.Equal(t, http.StatusInternalServerError, HTTPStatus(ErrStorage))
	require.Equal(t, http.StatusInternalServerError, HTTPStatus(errors.New("boom")))
}

func TestAccountReference(t *testing.T) {
	require.Equal(t, "a1b2c3d4-monthly", AccountReference(aliceID, types.PlanMonthly))
	require.Equal(t, "short-annual", AccountReference("short", types.PlanAnnual))
}

var (
	_ Store = (*memStore)(nil)
	_ Store = (*GormStore)(nil)
)
