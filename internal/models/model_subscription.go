package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"github.com/himnu2025-blip/synka-billing/pkg/types"
)

// Subscription is one recurring billing agreement of a user, mirrored from the
// gateway's subscription entity.
type Subscription struct {
	ID                     string                   `gorm:"column:id;type:uuid;primary_key" json:"id"`
	UserID                 string                   `gorm:"column:user_id;type:uuid;not null;index" json:"user_id"`
	PlanType               types.PlanType           `gorm:"column:plan_type;type:varchar(32);not null" json:"plan_type"`
	Status                 types.SubscriptionStatus `gorm:"column:status;type:varchar(32);not null" json:"status"`
	PaymentStatus          types.PaymentStatus      `gorm:"column:payment_status;type:varchar(32);not null" json:"payment_status"`
	BillingCycle           *string                  `gorm:"column:billing_cycle;type:varchar(32)" json:"billing_cycle"`
	Amount                 decimal.Decimal          `gorm:"column:amount;type:numeric(12,2);not null" json:"amount"`
	StartDate              *time.Time               `gorm:"column:start_date" json:"start_date"`
	EndDate                *time.Time               `gorm:"column:end_date" json:"end_date"`
	CurrentPeriodStart     *time.Time               `gorm:"column:current_period_start" json:"current_period_start"`
	CurrentPeriodEnd       *time.Time               `gorm:"column:current_period_end" json:"current_period_end"`
	AutoRenew              bool                     `gorm:"column:auto_renew;not null;default:false" json:"auto_renew"`
	MandateCreated         bool                     `gorm:"column:mandate_created;not null;default:false" json:"mandate_created"`
	MandateID              *string                  `gorm:"column:mandate_id;type:varchar(64)" json:"mandate_id"`
	RazorpaySubscriptionID *string                  `gorm:"column:razorpay_subscription_id;type:varchar(64);uniqueIndex" json:"razorpay_subscription_id"`
	RazorpayPaymentID      *string                  `gorm:"column:razorpay_payment_id;type:varchar(64)" json:"razorpay_payment_id"`
	CancelledAt            *time.Time               `gorm:"column:cancelled_at" json:"cancelled_at"`
	CancellationReason     *string                  `gorm:"column:cancellation_reason;type:text" json:"cancellation_reason"`
	Notes                  datatypes.JSONMap        `gorm:"column:notes;type:jsonb;default:'{}'" json:"notes"`
	// LastEventAt is the gateway timestamp of the newest event applied to the row.
	LastEventAt *time.Time `gorm:"column:last_event_at" json:"last_event_at"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (Subscription) TableName() string {
	return "subscriptions"
}

// Entitled reports whether the row grants paid access at now. A cancelled
// subscription stays entitled until its end date.
func (s *Subscription) Entitled(now time.Time) bool {
	if s == nil || s.Status.Terminal() || s.Status == types.SubscriptionStatusReplaced || s.Status == types.SubscriptionStatusPending {
		return false
	}
	return s.EndDate != nil && s.EndDate.After(now)
}
