package models

import (
	"time"

	"github.com/sereniyou/payments/pkg/types"
)

// PaymentRequest is one STK push transaction lifecycle, keyed by the
// provider's CheckoutRequestID.
type PaymentRequest struct {
	ID                string              `gorm:"column:id;type:uuid;primary_key" json:"id"`
	UserID            string              `gorm:"column:user_id;type:varchar(64);not null;index:idx_payment_request_user_id" json:"user_id"`
	CheckoutRequestID string              `gorm:"column:checkout_request_id;type:varchar(128);not null;uniqueIndex" json:"checkout_request_id"`
	MerchantRequestID string              `gorm:"column:merchant_request_id;type:varchar(128)" json:"merchant_request_id"`
	PhoneNumber       string              `gorm:"column:phone_number;type:varchar(32);not null" json:"phone_number"`
	Amount            int64               `gorm:"column:amount;type:bigint;not null" json:"amount"`
	PlanID            types.PlanID        `gorm:"column:plan_id;type:varchar(32);not null" json:"plan_id"`
	Status            types.PaymentStatus `gorm:"column:status;type:varchar(32);not null;index:idx_payment_request_status_created,priority:1" json:"status"`
	// ResultCode and ResultDescription are set only by the callback or the reconciler.
	ResultCode        *int    `gorm:"column:result_code" json:"result_code"`
	ResultDescription *string `gorm:"column:result_description;type:text" json:"result_description"`
	// TransactionID, TransactionDate and SettledPhoneNumber are set only on success.
	TransactionID      *string   `gorm:"column:transaction_id;type:varchar(64)" json:"transaction_id"`
	TransactionDate    *string   `gorm:"column:transaction_date;type:varchar(32)" json:"transaction_date"`
	SettledPhoneNumber *string   `gorm:"column:settled_phone_number;type:varchar(32)" json:"settled_phone_number"`
	CreatedAt          time.Time `gorm:"index:idx_payment_request_status_created,priority:2" json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

func (PaymentRequest) TableName() string {
	return "payment_requests"
}

func (p *PaymentRequest) Succeeded() bool {
	return p != nil && p.Status == types.PaymentStatusCompleted && p.ResultCode != nil && *p.ResultCode == 0
}
