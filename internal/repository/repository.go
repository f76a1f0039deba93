package repository

import (
	"context"
	"errors"
	"time"

	"github.com/himnu2025-blip/synka-billing/internal/models"
	"github.com/himnu2025-blip/synka-billing/pkg/types"
)

var (
	ErrNotFound  = errors.New("repository: record not found")
	ErrDuplicate = errors.New("repository: duplicate record")
)

// SubscriptionUpdate is a set-to-target update of one subscription row. Nil
// fields are left untouched.
type SubscriptionUpdate struct {
	Status             *types.SubscriptionStatus
	PaymentStatus      *types.PaymentStatus
	AutoRenew          *bool
	MandateCreated     *bool
	EndDate            *time.Time
	CurrentPeriodStart *time.Time
	CurrentPeriodEnd   *time.Time
	RazorpayPaymentID  *string
	CancelledAt        *time.Time
	CancellationReason *string
	// ClearCancellation nulls cancelled_at and cancellation_reason.
	ClearCancellation bool
	// MergeNotes is merged into the notes object, keys in MergeNotes win.
	MergeNotes map[string]interface{}
	// EventAt is the gateway time of the causing event. Rows in a terminal
	// status, and updates into one, only apply when EventAt is newer than the
	// row's last_event_at.
	EventAt *time.Time
	// LapsedBefore restricts the update to rows with auto_renew off whose
	// end_date is before it.
	LapsedBefore *time.Time
}

// ListQuery is a paginated, filtered listing request.
type ListQuery struct {
	Filters   types.Filters
	From      int
	Size      int
	SortBy    string
	SortOrder string
}

// Repository is the billing persistence boundary. Every method is a single
// short statement; Transaction groups them atomically.
type Repository interface {
	// Transaction runs fn with a Repository bound to one database transaction.
	// fn's error rolls everything back.
	Transaction(ctx context.Context, fn func(tx Repository) error) error

	FindOrderByGatewayID(ctx context.Context, razorpayOrderID string) (*models.Order, error)
	MarkOrder(ctx context.Context, orderID string, status types.OrderStatus, razorpayPaymentID string) error

	FindSubscriptionByGatewayID(ctx context.Context, razorpaySubscriptionID string) (*models.Subscription, error)
	// ApplySubscriptionUpdate reports whether the row was changed; false means
	// the terminal or lapse guard filtered it out.
	ApplySubscriptionUpdate(ctx context.Context, id string, u *SubscriptionUpdate) (bool, error)
	ListLapsedSubscriptions(ctx context.Context, now time.Time, limit int) ([]*models.Subscription, error)
	HasEntitledSubscription(ctx context.Context, userID, excludeID string, now time.Time) (bool, error)

	// InsertPayment returns ErrDuplicate when the gateway payment id is
	// already recorded.
	InsertPayment(ctx context.Context, p *models.Payment) error
	ListPayments(ctx context.Context, q *ListQuery) ([]*models.Payment, int64, error)

	// ActivateUserSubscription calls the activate_user_subscription procedure.
	ActivateUserSubscription(ctx context.Context, userID string, planType types.PlanType, endDate *time.Time) error
	GetProfilePlan(ctx context.Context, userID string) (types.Plan, error)
	// SetProfilePlan reports whether the stored plan differed from plan.
	SetProfilePlan(ctx context.Context, userID string, plan types.Plan) (bool, error)
	DeleteUserRole(ctx context.Context, userID string, role types.Role) error
	EnsureUserRole(ctx context.Context, userID string, role types.Role) error
	InsertPlanHistory(ctx context.Context, h *models.PlanHistory) error

	SaveWebhookLog(ctx context.Context, l *models.PaymentWebhookLog) error
	ListWebhookLogs(ctx context.Context, q *ListQuery) ([]*models.PaymentWebhookLog, int64, error)
}

// Columns accepted in admin list filters and sorting.
var (
	PaymentListFields = []string{
		"user_id", "order_id", "subscription_id", "razorpay_payment_id", "razorpay_order_id",
		"amount", "currency", "status", "method", "created_at",
	}
	WebhookLogListFields = []string{
		"event_id", "event", "status", "razorpay_payment_id", "razorpay_subscription_id",
		"razorpay_order_id", "event_created_at", "created_at",
	}
)

// Statuses whose rows can still grant access until end_date.
var EntitlingStatuses = []types.SubscriptionStatus{
	types.SubscriptionStatusActive,
	types.SubscriptionStatusPaused,
	types.SubscriptionStatusCancelled,
}

var terminalStatuses = []types.SubscriptionStatus{
	types.SubscriptionStatusHalted,
	types.SubscriptionStatusCompleted,
	types.SubscriptionStatusExpired,
}

// UpdateApplies reports whether u may be written to s. It is the in-memory
// form of the WHERE clause built by subscriptionUpdateQuery.
//
// A row in a terminal status, and any update moving a row into one, needs a
// gateway event strictly newer than the last one applied. Updates without an
// event time never touch terminal rows.
func UpdateApplies(s *models.Subscription, u *SubscriptionUpdate) bool {
	toTerminal := u.Status != nil && u.Status.Terminal()
	if u.EventAt == nil {
		if s.Status.Terminal() {
			return false
		}
	} else if s.Status.Terminal() || toTerminal {
		if s.LastEventAt != nil && !s.LastEventAt.Before(*u.EventAt) {
			return false
		}
	}
	if u.LapsedBefore != nil && (s.AutoRenew || s.EndDate == nil || !s.EndDate.Before(*u.LapsedBefore)) {
		return false
	}
	return true
}
