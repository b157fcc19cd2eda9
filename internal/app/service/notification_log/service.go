package notification_log

import (
	"context"

	"github.com/sereniyou/payments/internal/models"
	"github.com/sereniyou/payments/pkg/logctx"
	"github.com/sereniyou/payments/pkg/tool"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db  *gorm.DB
	log *zap.SugaredLogger
}

func New(db *gorm.DB, log *zap.SugaredLogger) *Service { return &Service{db: db, log: log} }

// Save asynchronously persists a payment notification log. Nil input is ignored.
// The write outlives the request, so ctx only contributes log fields.
func (s *Service) Save(ctx context.Context, entry *models.PaymentNotificationLog) {
	if entry == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	go func() {
		if err := s.SaveSync(ctx, entry); err != nil {
			logctx.FromCtx(ctx, s.log).Errorw("failed to save notification log",
				"checkout_request_id", entry.CheckoutRequestID,
				"status", entry.Status,
				"err", err,
			)
		}
	}()
}

func (s *Service) SaveSync(ctx context.Context, entry *models.PaymentNotificationLog) error {
	if entry.ID == "" {
		entry.ID = tool.GenerateUUIDV7()
	}
	return s.db.WithContext(ctx).Create(entry).Error
}

// ListByCheckout returns the notification trail of one checkout, oldest first.
func (s *Service) ListByCheckout(ctx context.Context, checkoutRequestID string) ([]*models.PaymentNotificationLog, error) {
	var rows []*models.PaymentNotificationLog
	err := s.db.WithContext(ctx).
		Where("checkout_request_id = ?", checkoutRequestID).
		Order("created_at").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
