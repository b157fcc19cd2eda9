package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	models "github.com/sereniyou/payments/internal/models"
	"github.com/sereniyou/payments/pkg/config"
	"github.com/sereniyou/payments/pkg/logctx"
	"github.com/sereniyou/payments/pkg/tool"
	types "github.com/sereniyou/payments/pkg/types"
)

type Service struct {
	cfg *config.Config
	db  *gorm.DB
	log *zap.SugaredLogger
	now func() time.Time
	// saveLog persists a change log entry in the activating transaction.
	saveLog func(ctx context.Context, tx *gorm.DB, entry *models.SubscriberLog) error
}

func NewService(cfg *config.Config, db *gorm.DB, log *zap.SugaredLogger) *Service {
	s := &Service{cfg: cfg, db: db, log: log, now: time.Now}
	s.saveLog = saveLogTx
	return s
}

// Activate upserts the subscriber row for a completed payment. The period is
// anchored at the payment's creation time so that redelivered callbacks and
// the reconciler compute the same end. A renewal replaces the previous end
// rather than extending it.
func (s *Service) Activate(ctx context.Context, tx *gorm.DB, pr *models.PaymentRequest, plan *types.Plan, reason types.SubscriberChangeReason) (*models.Subscriber, error) {
	if tx == nil {
		tx = s.db
	}
	end := plan.End(pr.CreatedAt)
	m := &models.Subscriber{
		UserID:           pr.UserID,
		Subscribed:       true,
		SubscriptionTier: plan.Tier,
		SubscriptionEnd:  &end,
	}
	logctx.FromCtx(ctx, s.log).Infof("activate subscription, user_id=%s, plan_id=%s, end=%s, reason=%s",
		pr.UserID, plan.ID, end.Format(time.RFC3339), reason)

	if err := s.upsertSubscriber(ctx, tx, m, reason, pr.CheckoutRequestID); err != nil {
		return nil, err
	}
	return m, nil
}

// GetSubscriber returns nil when the user never subscribed.
func (s *Service) GetSubscriber(ctx context.Context, userID string) (*models.Subscriber, error) {
	var sub models.Subscriber
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&sub).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get subscriber: %w", err)
	}
	return &sub, nil
}

func (s *Service) upsertSubscriber(ctx context.Context, tx *gorm.DB, m *models.Subscriber, reason types.SubscriberChangeReason, checkoutRequestID string) error {
	// Load existing subscriber by user_id
	var original models.Subscriber
	if err := tx.WithContext(ctx).Where("user_id = ?", m.UserID).First(&original).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("failed to get original subscriber: %w", err)
		}
	}

	now := s.now()
	if original.ID != "" {
		m.ID = original.ID
		m.CreatedAt = original.CreatedAt
	} else {
		m.ID = tool.GenerateUUIDV7()
		m.CreatedAt = now
	}
	m.UpdatedAt = now

	before := func() *models.Subscriber {
		if original.ID == "" {
			return nil
		}
		cp := original
		return &cp
	}()

	// ON CONFLICT keeps concurrent first purchases of the same user from failing on the unique key.
	err := tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"subscribed", "subscription_tier", "subscription_end", "updated_at"}),
	}).Create(m).Error
	if err != nil {
		return fmt.Errorf("failed to upsert subscriber: %w", err)
	}

	return s.saveLog(ctx, tx, &models.SubscriberLog{
		ID:                tool.GenerateUUIDV7(),
		UserID:            m.UserID,
		Reason:            reason,
		CheckoutRequestID: checkoutRequestID,
		Before:            datatypes.NewJSONType(before),
		After:             datatypes.NewJSONType(m),
		Extra:             datatypes.JSONMap{},
	})
}

// saveLogTx writes through tx so a rolled-back activation leaves no entry.
func saveLogTx(ctx context.Context, tx *gorm.DB, entry *models.SubscriberLog) error {
	if err := tx.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to save subscriber log: %w", err)
	}
	return nil
}
