package models

import "time"

// Subscriber is the per-user subscription state, upserted on every completed payment.
type Subscriber struct {
	ID               string     `gorm:"column:id;type:uuid;primary_key" json:"id"`
	UserID           string     `gorm:"column:user_id;type:varchar(64);not null;uniqueIndex" json:"user_id"`
	Subscribed       bool       `gorm:"column:subscribed;not null" json:"subscribed"`
	SubscriptionTier string     `gorm:"column:subscription_tier;type:varchar(64)" json:"subscription_tier"`
	SubscriptionEnd  *time.Time `gorm:"column:subscription_end" json:"subscription_end"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func (Subscriber) TableName() string {
	return "subscribers"
}

// Active reports whether the subscription is in force at t.
func (s *Subscriber) Active(t time.Time) bool {
	return s != nil && s.Subscribed && s.SubscriptionEnd != nil && s.SubscriptionEnd.After(t)
}
