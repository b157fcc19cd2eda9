package types

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
)

func (s PaymentStatus) Terminal() bool {
	return s == PaymentStatusCompleted || s == PaymentStatusFailed
}

type PaymentProvider string

const (
	PaymentProviderMpesa PaymentProvider = "mpesa"
)

type SubscriberChangeReason string

const (
	SubscriberChangeReasonPurchase  SubscriberChangeReason = "purchase"
	SubscriberChangeReasonReconcile SubscriberChangeReason = "reconcile"
)
