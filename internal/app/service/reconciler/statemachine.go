package reconciler

import (
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"

	"github.com/himnu2025-blip/synka-billing/internal/app/service/events"
	"github.com/himnu2025-blip/synka-billing/internal/models"
	"github.com/himnu2025-blip/synka-billing/internal/platform/razorpay"
	"github.com/himnu2025-blip/synka-billing/internal/repository"
	"github.com/himnu2025-blip/synka-billing/pkg/types"
)

var (
	ErrIllegalTransition = errors.New("illegal subscription transition")
	ErrInvariant         = errors.New("subscription invariant violated")
)

type effect int

const (
	effectNone effect = iota
	effectActivate
	effectDowngrade
)

// transition is the planned effect of one event on one subscription row.
type transition struct {
	update *repository.SubscriptionUpdate
	effect effect
	reason string
}

// allowedTransitions lists, per current status, the statuses an event may
// move the row to. Replaced rows are frozen.
var allowedTransitions = map[types.SubscriptionStatus][]types.SubscriptionStatus{
	types.SubscriptionStatusPending: {
		types.SubscriptionStatusPending, types.SubscriptionStatusActive, types.SubscriptionStatusPaused,
		types.SubscriptionStatusHalted, types.SubscriptionStatusCancelled, types.SubscriptionStatusCompleted,
		types.SubscriptionStatusExpired,
	},
	types.SubscriptionStatusActive: {
		types.SubscriptionStatusActive, types.SubscriptionStatusPaused, types.SubscriptionStatusHalted,
		types.SubscriptionStatusCancelled, types.SubscriptionStatusCompleted, types.SubscriptionStatusExpired,
	},
	types.SubscriptionStatusPaused: {
		types.SubscriptionStatusPaused, types.SubscriptionStatusActive, types.SubscriptionStatusHalted,
		types.SubscriptionStatusCancelled, types.SubscriptionStatusCompleted, types.SubscriptionStatusExpired,
	},
	types.SubscriptionStatusCancelled: {
		types.SubscriptionStatusCancelled, types.SubscriptionStatusActive, types.SubscriptionStatusPaused,
		types.SubscriptionStatusHalted, types.SubscriptionStatusCompleted, types.SubscriptionStatusExpired,
	},
	types.SubscriptionStatusHalted: {
		types.SubscriptionStatusHalted, types.SubscriptionStatusActive, types.SubscriptionStatusCompleted,
		types.SubscriptionStatusExpired,
	},
	types.SubscriptionStatusCompleted: {types.SubscriptionStatusCompleted},
	types.SubscriptionStatusExpired: {
		types.SubscriptionStatusExpired, types.SubscriptionStatusActive, types.SubscriptionStatusHalted,
		types.SubscriptionStatusCompleted,
	},
	types.SubscriptionStatusReplaced: {types.SubscriptionStatusReplaced},
}

func checkTransition(from types.SubscriptionStatus, u *repository.SubscriptionUpdate) error {
	if from == types.SubscriptionStatusReplaced {
		return fmt.Errorf("%w: subscription was replaced", ErrIllegalTransition)
	}
	if u.Status == nil {
		return nil
	}
	allowed, known := allowedTransitions[from]
	if !known {
		return fmt.Errorf("%w: unknown status %q", ErrIllegalTransition, from)
	}
	if !lo.Contains(allowed, *u.Status) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, *u.Status)
	}
	return nil
}

// merge returns the row as it will look after u.
func merge(cur *models.Subscription, u *repository.SubscriptionUpdate) *models.Subscription {
	m := *cur
	if u.Status != nil {
		m.Status = *u.Status
	}
	if u.PaymentStatus != nil {
		m.PaymentStatus = *u.PaymentStatus
	}
	if u.AutoRenew != nil {
		m.AutoRenew = *u.AutoRenew
	}
	if u.MandateCreated != nil {
		m.MandateCreated = *u.MandateCreated
	}
	if u.EndDate != nil {
		m.EndDate = u.EndDate
	}
	if u.CurrentPeriodStart != nil {
		m.CurrentPeriodStart = u.CurrentPeriodStart
	}
	if u.CurrentPeriodEnd != nil {
		m.CurrentPeriodEnd = u.CurrentPeriodEnd
	}
	if u.RazorpayPaymentID != nil {
		m.RazorpayPaymentID = u.RazorpayPaymentID
	}
	if u.ClearCancellation {
		m.CancelledAt, m.CancellationReason = nil, nil
	} else {
		if u.CancelledAt != nil {
			m.CancelledAt = u.CancelledAt
		}
		if u.CancellationReason != nil {
			m.CancellationReason = u.CancellationReason
		}
	}
	return &m
}

// checkInvariants rejects field combinations no event may produce.
func checkInvariants(s *models.Subscription) error {
	switch s.Status {
	case types.SubscriptionStatusHalted, types.SubscriptionStatusCompleted,
		types.SubscriptionStatusExpired, types.SubscriptionStatusPaused:
		if s.AutoRenew {
			return fmt.Errorf("%w: %s with auto_renew", ErrInvariant, s.Status)
		}
	}
	if s.Status == types.SubscriptionStatusHalted && s.PaymentStatus != types.PaymentStatusFailed {
		return fmt.Errorf("%w: halted with payment_status %s", ErrInvariant, s.PaymentStatus)
	}
	if s.CancelledAt != nil && s.AutoRenew {
		return fmt.Errorf("%w: cancelled with auto_renew", ErrInvariant)
	}
	return nil
}

// planSubscriptionEvent maps a subscription.* event onto the row. at is the
// event time, or the processing time when the gateway sent none.
func planSubscriptionEvent(ev *razorpay.SubscriptionEvent, cur *models.Subscription, at time.Time) (*transition, bool) {
	u := &repository.SubscriptionUpdate{EventAt: ev.CreatedAt}
	entity := &ev.Subscription
	if ev.Payment != nil {
		u.RazorpayPaymentID = lo.ToPtr(ev.Payment.ID)
	}

	switch ev.Type {
	case razorpay.EventSubscriptionAuthenticated:
		// also sent right after a resume, before the first paid cycle
		u.Status = lo.ToPtr(types.SubscriptionStatusActive)
		u.MandateCreated = lo.ToPtr(true)
		u.AutoRenew = lo.ToPtr(true)
		u.ClearCancellation = true
		return &transition{update: u, effect: effectActivate}, true

	case razorpay.EventSubscriptionActivated:
		u.Status = lo.ToPtr(types.SubscriptionStatusActive)
		u.PaymentStatus = lo.ToPtr(types.PaymentStatusPaid)
		u.MandateCreated = lo.ToPtr(true)
		u.AutoRenew = lo.ToPtr(true)
		u.ClearCancellation = true
		if end := entity.CurrentEndTime(); end != nil {
			u.EndDate, u.CurrentPeriodEnd = end, end
		}
		u.CurrentPeriodStart = entity.CurrentStartTime()
		return &transition{update: u, effect: effectActivate}, true

	case razorpay.EventSubscriptionCharged:
		u.Status = lo.ToPtr(types.SubscriptionStatusActive)
		u.PaymentStatus = lo.ToPtr(types.PaymentStatusPaid)
		if end := chargedEndDate(cur, entity, ev.CreatedAt, at); end != nil {
			u.EndDate, u.CurrentPeriodEnd = end, end
		}
		u.CurrentPeriodStart = entity.CurrentStartTime()
		return &transition{update: u, effect: effectActivate}, true

	case razorpay.EventSubscriptionPending:
		u.PaymentStatus = lo.ToPtr(types.PaymentStatusPending)
		u.MergeNotes = map[string]interface{}{"pending_reason": types.PendingReasonRetryInProgress}
		return &transition{update: u, effect: effectNone}, true

	case razorpay.EventSubscriptionPaused:
		u.Status = lo.ToPtr(types.SubscriptionStatusPaused)
		u.AutoRenew = lo.ToPtr(false)
		return &transition{update: u, effect: effectNone}, true

	case razorpay.EventSubscriptionResumed:
		u.Status = lo.ToPtr(types.SubscriptionStatusActive)
		u.AutoRenew = lo.ToPtr(true)
		u.ClearCancellation = true
		return &transition{update: u, effect: effectActivate}, true

	case razorpay.EventSubscriptionHalted:
		u.Status = lo.ToPtr(types.SubscriptionStatusHalted)
		u.PaymentStatus = lo.ToPtr(types.PaymentStatusFailed)
		u.AutoRenew = lo.ToPtr(false)
		u.CancelledAt = lo.ToPtr(at)
		u.CancellationReason = lo.ToPtr(types.CancellationReasonHalted)
		return &transition{update: u, effect: effectDowngrade, reason: events.ReasonHalted}, true

	case razorpay.EventSubscriptionCancelled:
		// access continues until end_date; the expiry sweep downgrades later
		u.AutoRenew = lo.ToPtr(false)
		u.CancelledAt = lo.ToPtr(at)
		u.CancellationReason = lo.ToPtr(cancellationReason(entity.CancelledBy))
		return &transition{update: u, effect: effectNone}, true

	case razorpay.EventSubscriptionCompleted:
		u.Status = lo.ToPtr(types.SubscriptionStatusCompleted)
		u.AutoRenew = lo.ToPtr(false)
		return &transition{update: u, effect: effectDowngrade, reason: events.ReasonCompleted}, true
	}
	return nil, false
}

// planPaymentEvent maps payment.captured / payment.failed onto the linked
// subscription row.
func planPaymentEvent(ev *razorpay.PaymentEvent) *transition {
	u := &repository.SubscriptionUpdate{
		EventAt:           ev.CreatedAt,
		RazorpayPaymentID: lo.ToPtr(ev.Payment.ID),
	}
	if ev.Type == razorpay.EventPaymentCaptured {
		u.Status = lo.ToPtr(types.SubscriptionStatusActive)
		u.PaymentStatus = lo.ToPtr(types.PaymentStatusPaid)
		return &transition{update: u, effect: effectActivate}
	}
	// a single failed attempt never costs access; halted does
	u.PaymentStatus = lo.ToPtr(types.PaymentStatusFailed)
	return &transition{update: u, effect: effectNone}
}

func cancellationReason(cancelledBy *string) string {
	switch lo.FromPtr(cancelledBy) {
	case "bank":
		return types.CancellationReasonBank
	case "user":
		return types.CancellationReasonUser
	default:
		return types.CancellationReasonGateway
	}
}

// chargedEndDate returns the gateway's current_end as is. Without it the
// period is extended from the stored end date, unless the event is a replay
// of one already applied.
func chargedEndDate(cur *models.Subscription, entity *razorpay.Subscription, eventAt *time.Time, at time.Time) *time.Time {
	if end := entity.CurrentEndTime(); end != nil {
		return end
	}
	if eventAt != nil && cur.LastEventAt != nil && !eventAt.After(*cur.LastEventAt) {
		return nil
	}
	base := at
	if cur.EndDate != nil {
		base = *cur.EndDate
	}
	next := addPeriod(base, cur.PlanType)
	return &next
}

func addPeriod(t time.Time, plan types.PlanType) time.Time {
	if plan == types.PlanTypeAnnually {
		return t.AddDate(1, 0, 0)
	}
	return t.AddDate(0, 1, 0)
}
