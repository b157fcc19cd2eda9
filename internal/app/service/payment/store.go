package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/sereniyou/payments/internal/models"
	"github.com/sereniyou/payments/pkg/types"
)

// Store is the persistence the payment flow relies on. Finalize must update
// the row only while it is pending, atomically. A completed row without a
// receipt may have its receipt filled in by a later successful outcome.
type Store interface {
	CreatePaymentRequest(ctx context.Context, pr *models.PaymentRequest) error
	// FindPaymentRequest returns ErrNotFound unless the request exists and belongs to userID.
	FindPaymentRequest(ctx context.Context, userID, checkoutRequestID string) (*models.PaymentRequest, error)
	// FindSubscriber returns nil without error when the user never subscribed.
	FindSubscriber(ctx context.Context, userID string) (*models.Subscriber, error)
	Finalize(ctx context.Context, o *Outcome, hook TransitionHook) (*FinalizeResult, error)
	ListStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]*models.PaymentRequest, error)
}

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) CreatePaymentRequest(ctx context.Context, pr *models.PaymentRequest) error {
	return s.db.WithContext(ctx).Create(pr).Error
}

func (s *GormStore) FindPaymentRequest(ctx context.Context, userID, checkoutRequestID string) (*models.PaymentRequest, error) {
	var pr models.PaymentRequest
	err := s.db.WithContext(ctx).
		Where("checkout_request_id = ? AND user_id = ?", checkoutRequestID, userID).
		First(&pr).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &pr, nil
}

// FindByCheckout looks a request up without an owner check; admin use only.
func (s *GormStore) FindByCheckout(ctx context.Context, checkoutRequestID string) (*models.PaymentRequest, error) {
	var pr models.PaymentRequest
	err := s.db.WithContext(ctx).Where("checkout_request_id = ?", checkoutRequestID).First(&pr).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &pr, nil
}

func (s *GormStore) FindSubscriber(ctx context.Context, userID string) (*models.Subscriber, error) {
	var sub models.Subscriber
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (s *GormStore) Finalize(ctx context.Context, o *Outcome, hook TransitionHook) (*FinalizeResult, error) {
	status := o.Status()
	updates := map[string]any{
		"status":             status,
		"result_code":        o.ResultCode,
		"result_description": o.ResultDesc,
	}
	receipt := receiptUpdates(o)
	if status == types.PaymentStatusCompleted {
		for k, v := range receipt {
			updates[k] = v
		}
	}

	var res FinalizeResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		upd := tx.Model(&models.PaymentRequest{}).
			Where("checkout_request_id = ? AND status = ?", o.CheckoutRequestID, types.PaymentStatusPending).
			Updates(updates)
		if upd.Error != nil {
			return fmt.Errorf("failed to update payment request: %w", upd.Error)
		}
		res.Transitioned = upd.RowsAffected > 0

		// A status query can complete the row before the callback delivers the
		// receipt; fill it in once without touching the subscription.
		if !res.Transitioned && status == types.PaymentStatusCompleted && len(receipt) > 0 {
			bf := tx.Model(&models.PaymentRequest{}).
				Where("checkout_request_id = ? AND status = ? AND transaction_id IS NULL", o.CheckoutRequestID, types.PaymentStatusCompleted).
				Updates(receipt)
			if bf.Error != nil {
				return fmt.Errorf("failed to backfill payment receipt: %w", bf.Error)
			}
			res.Backfilled = bf.RowsAffected > 0
		}

		var pr models.PaymentRequest
		if err := tx.Where("checkout_request_id = ?", o.CheckoutRequestID).First(&pr).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUnknownCheckout
			}
			return fmt.Errorf("failed to load payment request: %w", err)
		}
		res.Payment = &pr

		if res.Transitioned && hook != nil {
			return hook(ctx, tx, &pr)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// receiptUpdates holds the success metadata only a callback carries.
func receiptUpdates(o *Outcome) map[string]any {
	m := map[string]any{}
	if o.ReceiptNumber == nil {
		return m
	}
	m["transaction_id"] = *o.ReceiptNumber
	if o.TransactionDate != nil {
		m["transaction_date"] = *o.TransactionDate
	}
	if o.PhoneNumber != nil {
		m["settled_phone_number"] = *o.PhoneNumber
	}
	return m
}

func (s *GormStore) ListStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]*models.PaymentRequest, error) {
	var rows []*models.PaymentRequest
	err := s.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", types.PaymentStatusPending, createdBefore).
		Order("created_at").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// filtersAnd combines CommonFilters into a single clause.Expression.
type filtersAnd struct{ filters []*types.CommonFilter }

func (w filtersAnd) Build(builder clause.Builder) {
	if len(w.filters) == 0 {
		builder.WriteString("1=1")
		return
	}
	exprs := make([]clause.Expression, 0, len(w.filters))
	for _, f := range w.filters {
		exprs = append(exprs, f)
	}
	clause.And(exprs...).Build(builder)
}

type ScanRequest struct {
	Filters   []*types.CommonFilter `json:"filters"`
	From      int                   `json:"from"`
	Size      int                   `json:"size"`
	SortBy    string                `json:"sort_by"`
	SortOrder string                `json:"sort_order"`
}

type ScanResponse struct {
	Items []*models.PaymentRequest `json:"items"`
	Total int64                    `json:"total"`
}

var sortableColumns = map[string]bool{
	"created_at": true,
	"updated_at": true,
	"amount":     true,
	"status":     true,
	"plan_id":    true,
}

// Scan implements the admin listing with filters, pagination and sorting.
func (s *GormStore) Scan(ctx context.Context, req *ScanRequest) (*ScanResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("nil request")
	}
	if req.Size <= 0 {
		req.Size = 10
	}
	if req.Size > 500 {
		req.Size = 500
	}
	if req.From < 0 {
		req.From = 0
	}

	tx := s.db.WithContext(ctx).Model(&models.PaymentRequest{})
	if len(req.Filters) > 0 {
		tx = tx.Where(clause.Where{Exprs: []clause.Expression{filtersAnd{filters: req.Filters}}})
	}

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count payment requests: %w", err)
	}

	q := tx.Limit(req.Size)
	if req.From > 0 {
		q = q.Offset(req.From)
	}
	sortBy := req.SortBy
	if !sortableColumns[sortBy] {
		sortBy = "created_at"
	}
	q = q.Order(clause.OrderBy{Columns: []clause.OrderByColumn{{Column: clause.Column{Name: sortBy}, Desc: req.SortOrder != "asc"}}})

	var rows []*models.PaymentRequest
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list payment requests: %w", err)
	}
	return &ScanResponse{Items: rows, Total: total}, nil
}
