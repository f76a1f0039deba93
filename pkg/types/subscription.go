package types

type SubscriptionStatus string

const (
	SubscriptionStatusPending   SubscriptionStatus = "pending"
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusPaused    SubscriptionStatus = "paused"
	SubscriptionStatusHalted    SubscriptionStatus = "halted"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
	SubscriptionStatusCompleted SubscriptionStatus = "completed"
	SubscriptionStatusExpired   SubscriptionStatus = "expired"
	SubscriptionStatusReplaced  SubscriptionStatus = "replaced"
)

// Terminal reports whether the status ends entitlement. Rows in a terminal
// status only move again on a strictly newer gateway event.
func (s SubscriptionStatus) Terminal() bool {
	switch s {
	case SubscriptionStatusHalted, SubscriptionStatusCompleted, SubscriptionStatusExpired:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusFailed   PaymentStatus = "failed"
	PaymentStatusRefunded PaymentStatus = "refunded"
	PaymentStatusAdmin    PaymentStatus = "admin"
)

type OrderStatus string

const (
	OrderStatusCreated OrderStatus = "created"
	OrderStatusPaid    OrderStatus = "paid"
	OrderStatusFailed  OrderStatus = "failed"
)

// PaymentRecordStatus is the status of a row in the payments ledger.
type PaymentRecordStatus string

const (
	PaymentRecordStatusCaptured PaymentRecordStatus = "captured"
	PaymentRecordStatusFailed   PaymentRecordStatus = "failed"
)

type PlanType string

const (
	PlanTypeMonthly  PlanType = "monthly"
	PlanTypeAnnually PlanType = "annually"
)

// Cancellation reasons recorded on the subscription row.
const (
	CancellationReasonHalted  = "Payment failed after all retries"
	CancellationReasonBank    = "E-mandate cancelled by bank"
	CancellationReasonUser    = "Cancelled by user"
	CancellationReasonGateway = "E-mandate cancelled via Razorpay"
	CancellationReasonExpired = "Subscription ended after cancellation"
)

const PendingReasonRetryInProgress = "Payment retry in progress"
