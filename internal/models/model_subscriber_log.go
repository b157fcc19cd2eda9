package models

import (
	"time"

	"gorm.io/datatypes"

	"github.com/sereniyou/payments/pkg/types"
)

// SubscriberLog records every change to a Subscriber row.
// Use case: troubleshooting disputed payments.
type SubscriberLog struct {
	ID     string                       `gorm:"column:id;type:uuid;primary_key" json:"id"`
	UserID string                       `gorm:"column:user_id;type:varchar(64);index:idx_subscriber_log_user_id;not null"`
	Reason types.SubscriberChangeReason `gorm:"column:reason;type:varchar(64);not null"`
	// CheckoutRequestID links the change to the payment that caused it.
	CheckoutRequestID string                          `gorm:"column:checkout_request_id;type:varchar(128)"`
	Before            datatypes.JSONType[*Subscriber] `gorm:"column:before;type:jsonb"`
	After             datatypes.JSONType[*Subscriber] `gorm:"column:after;type:jsonb"`
	Extra             datatypes.JSONMap               `gorm:"column:extra;type:jsonb"`
	CreatedAt         time.Time
}

func (SubscriberLog) TableName() string {
	return "subscriber_log"
}
