package types

import "time"

type PlanID string

const (
	PlanMonthly PlanID = "monthly"
	PlanAnnual  PlanID = "annual"
)

type BillingPeriod string

const (
	BillingPeriodMonth BillingPeriod = "month"
	BillingPeriodYear  BillingPeriod = "year"
)

// Plan is a purchasable subscription plan. Amount is in whole KES.
type Plan struct {
	ID     PlanID        `json:"id" mapstructure:"id"`
	Amount int64         `json:"amount" mapstructure:"amount"`
	Period BillingPeriod `json:"period" mapstructure:"period"`
	// Tier is the display label stored on the subscriber row, e.g. "Monthly Premium".
	Tier string `json:"tier" mapstructure:"tier"`
}

// End returns the subscription end for a purchase anchored at from.
// Calendar arithmetic clamps to the last day of the target month, so
// Jan 31 + 1 month is Feb 28 (or 29) and Feb 29 + 1 year is Feb 28.
func (p *Plan) End(from time.Time) time.Time {
	switch p.Period {
	case BillingPeriodYear:
		return addMonthsClamped(from, 12)
	default:
		return addMonthsClamped(from, 1)
	}
}

func addMonthsClamped(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(months), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	last := first.AddDate(0, 1, -1).Day()
	if d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

// DefaultPlans is the built-in price table used when configuration does not override it.
func DefaultPlans() []*Plan {
	return []*Plan{
		{ID: PlanMonthly, Amount: 2000, Period: BillingPeriodMonth, Tier: "Monthly Premium"},
		{ID: PlanAnnual, Amount: 10000, Period: BillingPeriodYear, Tier: "Annual Premium"},
	}
}
