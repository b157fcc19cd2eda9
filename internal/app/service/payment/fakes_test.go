package payment

import (
	"context"
	"errors"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/sereniyou/payments/internal/models"
	"github.com/sereniyou/payments/internal/platform/events"
	"github.com/sereniyou/payments/internal/platform/identity"
	"github.com/sereniyou/payments/internal/platform/mpesa"
	"github.com/sereniyou/payments/pkg/types"
)

// memStore mimics the conditional update of GormStore in memory.
type memStore struct {
	mu          sync.Mutex
	requests    map[string]*models.PaymentRequest
	subscribers map[string]*models.Subscriber
	createErr   error
}

func newMemStore() *memStore {
	return &memStore{requests: map[string]*models.PaymentRequest{}, subscribers: map[string]*models.Subscriber{}}
}

func (m *memStore) CreatePaymentRequest(_ context.Context, pr *models.PaymentRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	cp := *pr
	m.requests[pr.CheckoutRequestID] = &cp
	return nil
}

func (m *memStore) FindPaymentRequest(_ context.Context, userID, checkoutRequestID string) (*models.PaymentRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pr, ok := m.requests[checkoutRequestID]
	if !ok || pr.UserID != userID {
		return nil, ErrNotFound
	}
	cp := *pr
	return &cp, nil
}

func (m *memStore) FindSubscriber(_ context.Context, userID string) (*models.Subscriber, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.subscribers[userID]
	if !ok {
		return nil, nil
	}
	cp := *sub
	return &cp, nil
}

func (m *memStore) Finalize(ctx context.Context, o *Outcome, hook TransitionHook) (*FinalizeResult, error) {
	m.mu.Lock()
	pr, ok := m.requests[o.CheckoutRequestID]
	if !ok {
		m.mu.Unlock()
		return nil, ErrUnknownCheckout
	}
	if pr.Status != types.PaymentStatusPending {
		res := &FinalizeResult{}
		if pr.Status == types.PaymentStatusCompleted && o.Status() == types.PaymentStatusCompleted &&
			pr.TransactionID == nil && o.ReceiptNumber != nil {
			pr.TransactionID = o.ReceiptNumber
			pr.TransactionDate = o.TransactionDate
			pr.SettledPhoneNumber = o.PhoneNumber
			res.Backfilled = true
		}
		cp := *pr
		m.mu.Unlock()
		res.Payment = &cp
		return res, nil
	}
	next := *pr
	next.Status = o.Status()
	next.ResultCode = &o.ResultCode
	next.ResultDescription = &o.ResultDesc
	if next.Status == types.PaymentStatusCompleted {
		next.TransactionID = o.ReceiptNumber
		next.TransactionDate = o.TransactionDate
		next.SettledPhoneNumber = o.PhoneNumber
	}
	m.mu.Unlock()

	if hook != nil {
		if err := hook(ctx, nil, &next); err != nil {
			return nil, err
		}
	}
	m.mu.Lock()
	m.requests[o.CheckoutRequestID] = &next
	m.mu.Unlock()
	cp := next
	return &FinalizeResult{Payment: &cp, Transitioned: true}, nil
}

func (m *memStore) ListStalePending(_ context.Context, createdBefore time.Time, limit int) ([]*models.PaymentRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.PaymentRequest
	for _, pr := range m.requests {
		if pr.Status == types.PaymentStatusPending && pr.CreatedAt.Before(createdBefore) && len(out) < limit {
			cp := *pr
			out = append(out, &cp)
		}
	}
	return out, nil
}

// stubActivator stores the subscriber in memStore the way the subscription service would.
type stubActivator struct {
	store *memStore
	calls int
	err   error
}

func (a *stubActivator) Activate(_ context.Context, _ *gorm.DB, pr *models.PaymentRequest, plan *types.Plan, _ types.SubscriberChangeReason) (*models.Subscriber, error) {
	a.calls++
	if a.err != nil {
		return nil, a.err
	}
	end := plan.End(pr.CreatedAt)
	sub := &models.Subscriber{UserID: pr.UserID, Subscribed: true, SubscriptionTier: plan.Tier, SubscriptionEnd: &end}
	a.store.mu.Lock()
	a.store.subscribers[pr.UserID] = sub
	a.store.mu.Unlock()
	return sub, nil
}

type stubVerifier map[string]string

func (v stubVerifier) Authenticate(_ context.Context, token string) (string, error) {
	if token == "down" {
		return "", identity.ErrUnavailable
	}
	uid, ok := v[token]
	if !ok {
		return "", identity.ErrInvalidToken
	}
	return uid, nil
}

type stubTokens struct {
	calls int
	err   error
}

func (s *stubTokens) AccessToken(context.Context) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return "access-token", nil
}

type stubPusher struct {
	calls    int
	last     mpesa.PushInput
	checkout string
	err      error
}

func (p *stubPusher) STKPush(_ context.Context, token string, in mpesa.PushInput) (*mpesa.STKPushResponse, error) {
	p.calls++
	p.last = in
	if p.err != nil {
		return nil, p.err
	}
	if token != "access-token" {
		return nil, errors.New("unexpected token")
	}
	return &mpesa.STKPushResponse{MerchantRequestID: "m-1", CheckoutRequestID: p.checkout, ResponseCode: "0"}, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []*events.PaymentEvent
	err    error
}

func (r *recordingPublisher) PublishPayment(_ context.Context, evt *events.PaymentEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return r.err
}
