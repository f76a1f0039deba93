package reconciler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/himnu2025-blip/synka-billing/internal/app/service/events"
	"github.com/himnu2025-blip/synka-billing/internal/models"
	"github.com/himnu2025-blip/synka-billing/internal/platform/razorpay"
	"github.com/himnu2025-blip/synka-billing/internal/repository"
	"github.com/himnu2025-blip/synka-billing/pkg/logctx"
	"github.com/himnu2025-blip/synka-billing/pkg/tool"
	"github.com/himnu2025-blip/synka-billing/pkg/types"
)

// Outcome summarizes what an event did to stored state.
type Outcome string

const (
	// OutcomeApplied means at least one row changed.
	OutcomeApplied Outcome = "applied"
	// OutcomeDuplicate means the payment was already recorded.
	OutcomeDuplicate Outcome = "duplicate"
	// OutcomeIgnored means no local row matched the event.
	OutcomeIgnored Outcome = "ignored"
	// OutcomeStale means the event arrived after a newer one it may not
	// override: it would end access, or the row is already terminal.
	OutcomeStale Outcome = "stale"
	// OutcomeRejected means the event would break the subscription state
	// machine and was not applied.
	OutcomeRejected Outcome = "rejected"
)

// Result describes a handled event.
type Result struct {
	Outcome Outcome
	Detail  string
	// Changes are the entitlement changes committed by the event.
	Changes []*events.EntitlementChanged
}

// EntitlementPublisher receives committed entitlement changes.
type EntitlementPublisher interface {
	Publish(ctx context.Context, changes ...*events.EntitlementChanged)
}

// errDuplicatePayment aborts the transaction of an already recorded payment.
var errDuplicatePayment = errors.New("payment already recorded")

// Service applies verified gateway events to subscriptions, orders,
// payments and user entitlements. Each event is handled in one transaction;
// an error means nothing was written and the gateway should redeliver.
type Service struct {
	repo      repository.Repository
	publisher EntitlementPublisher
	log       *zap.SugaredLogger
	now       func() time.Time
}

func NewService(repo repository.Repository, publisher *events.Dispatcher, log *zap.SugaredLogger) *Service {
	return newService(repo, publisher, log, time.Now)
}

func newService(repo repository.Repository, publisher EntitlementPublisher, log *zap.SugaredLogger, now func() time.Time) *Service {
	return &Service{repo: repo, publisher: publisher, log: log, now: now}
}

// Handle dispatches a parsed event. Unknown event types are ignored.
func (s *Service) Handle(ctx context.Context, ev razorpay.Event) (*Result, error) {
	switch e := ev.(type) {
	case *razorpay.PaymentEvent:
		return s.HandlePayment(ctx, e)
	case *razorpay.SubscriptionEvent:
		return s.HandleSubscription(ctx, e)
	case *razorpay.OrderEvent:
		// payment.captured carries everything order.paid would
		return &Result{Outcome: OutcomeIgnored, Detail: "order events are settled by payment events"}, nil
	default:
		return &Result{Outcome: OutcomeIgnored, Detail: fmt.Sprintf("unhandled event %q", ev.EventHeader().Type)}, nil
	}
}

// HandlePayment records payment.captured and payment.failed. The gateway
// payment id is the idempotency key: a redelivered payment changes nothing.
func (s *Service) HandlePayment(ctx context.Context, ev *razorpay.PaymentEvent) (*Result, error) {
	p := &ev.Payment
	at := s.eventTime(ev.Header)
	captured := ev.Type == razorpay.EventPaymentCaptured
	lg := logctx.FromCtx(ctx, s.log).With("event", ev.Type, "razorpay_payment_id", p.ID)
	res := &Result{Outcome: OutcomeApplied}

	err := s.repo.Transaction(ctx, func(tx repository.Repository) error {
		order, err := findOrder(ctx, tx, p.OrderID)
		if err != nil {
			return err
		}
		sub, err := findSubscription(ctx, tx, p.SubscriptionID)
		if err != nil {
			return err
		}
		if order == nil && sub == nil {
			res.Outcome = OutcomeIgnored
			res.Detail = "no order or subscription matches the payment"
			return nil
		}

		row := paymentRow(p, captured, order, sub)
		if err := tx.InsertPayment(ctx, row); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return errDuplicatePayment
			}
			return fmt.Errorf("failed to insert payment: %w", err)
		}

		if order != nil {
			status := types.OrderStatusFailed
			if captured {
				status = types.OrderStatusPaid
			}
			if err := tx.MarkOrder(ctx, order.ID, status, p.ID); err != nil {
				return fmt.Errorf("failed to mark order %s: %w", order.ID, err)
			}
		}

		if sub != nil {
			applied, change, err := s.apply(ctx, tx, sub, planPaymentEvent(ev), ev.Header, at)
			var rej *rejection
			if errors.As(err, &rej) {
				// the ledger row stands even when the subscription cannot move
				res.Detail = "payment recorded, " + rej.Error()
				return nil
			}
			if err != nil {
				return err
			}
			if !applied {
				res.Detail = "payment recorded, subscription left unchanged"
			}
			if change != nil {
				res.Changes = append(res.Changes, change)
			}
		}
		return nil
	})
	if errors.Is(err, errDuplicatePayment) {
		lg.Infow("payment already recorded, skipping")
		return &Result{Outcome: OutcomeDuplicate, Detail: "payment already recorded"}, nil
	}
	if err != nil {
		return nil, err
	}

	if res.Outcome == OutcomeIgnored {
		lg.Warnw("payment matches no order or subscription", "order_id", lo.FromPtr(p.OrderID), "subscription_id", lo.FromPtr(p.SubscriptionID))
	}
	s.publisher.Publish(ctx, res.Changes...)
	return res, nil
}

// HandleSubscription applies a subscription.* lifecycle event.
func (s *Service) HandleSubscription(ctx context.Context, ev *razorpay.SubscriptionEvent) (*Result, error) {
	at := s.eventTime(ev.Header)
	lg := logctx.FromCtx(ctx, s.log).With("event", ev.Type, "razorpay_subscription_id", ev.Subscription.ID)
	res := &Result{}

	err := s.repo.Transaction(ctx, func(tx repository.Repository) error {
		sub, err := findSubscription(ctx, tx, &ev.Subscription.ID)
		if err != nil {
			return err
		}
		if sub == nil {
			res.Outcome = OutcomeIgnored
			res.Detail = "subscription not found"
			return nil
		}
		tr, ok := planSubscriptionEvent(ev, sub, at)
		if !ok {
			res.Outcome = OutcomeIgnored
			res.Detail = fmt.Sprintf("unhandled event %q", ev.Type)
			return nil
		}

		applied, change, err := s.apply(ctx, tx, sub, tr, ev.Header, at)
		if err != nil {
			var rej *rejection
			if errors.As(err, &rej) {
				res.Outcome = OutcomeRejected
				res.Detail = rej.Error()
				return nil
			}
			return err
		}
		res.Outcome = OutcomeStale
		if applied {
			res.Outcome = OutcomeApplied
		}
		if change != nil {
			res.Changes = append(res.Changes, change)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	switch res.Outcome {
	case OutcomeIgnored:
		lg.Warnw("subscription event ignored", "detail", res.Detail)
	case OutcomeRejected:
		lg.Errorw("subscription event rejected", "detail", res.Detail)
	case OutcomeStale:
		lg.Infow("stale subscription event, skipping")
	default:
		lg.Infow("subscription event applied", "changes", len(res.Changes))
	}
	s.publisher.Publish(ctx, res.Changes...)
	return res, nil
}

// rejection wraps a state machine violation so callers can tell it from
// storage errors.
type rejection struct{ err error }

func (r *rejection) Error() string { return r.err.Error() }
func (r *rejection) Unwrap() error { return r.err }

// apply validates tr against the current row, writes it and runs its
// entitlement effect. It reports whether the row changed.
func (s *Service) apply(ctx context.Context, tx repository.Repository, sub *models.Subscription, tr *transition, h razorpay.Header, at time.Time) (bool, *events.EntitlementChanged, error) {
	lg := logctx.FromCtx(ctx, s.log)
	if err := checkTransition(sub.Status, tr.update); err != nil {
		lg.Errorw("refusing subscription transition", "subscription_id", sub.ID, "err", err)
		return false, nil, &rejection{err: err}
	}
	merged := merge(sub, tr.update)
	if err := checkInvariants(merged); err != nil {
		lg.Errorw("refusing subscription update", "subscription_id", sub.ID, "err", err)
		return false, nil, &rejection{err: err}
	}

	applied, err := tx.ApplySubscriptionUpdate(ctx, sub.ID, tr.update)
	if err != nil {
		return false, nil, fmt.Errorf("failed to update subscription %s: %w", sub.ID, err)
	}
	if !applied {
		return false, nil, nil
	}

	var change *events.EntitlementChanged
	switch tr.effect {
	case effectActivate:
		change, err = s.activate(ctx, tx, merged, h, at)
	case effectDowngrade:
		change, err = s.Downgrade(ctx, tx, merged.UserID, tr.reason, at)
		if change != nil {
			change.SubscriptionID = lo.FromPtr(merged.RazorpaySubscriptionID)
			change.Event = string(h.Type)
		}
	}
	if err != nil {
		return false, nil, err
	}
	return true, change, nil
}

func (s *Service) activate(ctx context.Context, tx repository.Repository, sub *models.Subscription, h razorpay.Header, at time.Time) (*events.EntitlementChanged, error) {
	old, err := profilePlan(ctx, tx, sub.UserID)
	if err != nil {
		return nil, err
	}
	if err := tx.ActivateUserSubscription(ctx, sub.UserID, sub.PlanType, sub.EndDate); err != nil {
		return nil, fmt.Errorf("failed to activate user subscription: %w", err)
	}
	return &events.EntitlementChanged{
		UserID:         sub.UserID,
		OldPlan:        old,
		NewPlan:        types.PlanOrange,
		Reason:         events.ReasonActivated,
		SubscriptionID: lo.FromPtr(sub.RazorpaySubscriptionID),
		Event:          string(h.Type),
		EndDate:        sub.EndDate,
		OccurredAt:     at,
	}, nil
}

// Downgrade moves userID to the Free plan inside tx: the plan is reset, the
// orange role replaced by free, and plan_history written when the plan
// actually changed. It is idempotent.
func (s *Service) Downgrade(ctx context.Context, tx repository.Repository, userID, reason string, at time.Time) (*events.EntitlementChanged, error) {
	old, err := profilePlan(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	changed, err := tx.SetProfilePlan(ctx, userID, types.PlanFree)
	if err != nil {
		return nil, fmt.Errorf("failed to set profile plan: %w", err)
	}
	if err := tx.DeleteUserRole(ctx, userID, types.RoleOrange); err != nil {
		return nil, fmt.Errorf("failed to remove orange role: %w", err)
	}
	if err := tx.EnsureUserRole(ctx, userID, types.RoleFree); err != nil {
		return nil, fmt.Errorf("failed to grant free role: %w", err)
	}
	if changed {
		h := &models.PlanHistory{
			ID:        tool.GenerateUUIDV7(),
			UserID:    userID,
			OldPlan:   old,
			NewPlan:   types.PlanFree,
			ChangedAt: at,
		}
		if err := tx.InsertPlanHistory(ctx, h); err != nil {
			return nil, fmt.Errorf("failed to insert plan history: %w", err)
		}
	}
	logctx.FromCtx(ctx, s.log).Infow("user downgraded", "user_id", userID, "old_plan", old, "reason", reason, "plan_changed", changed)
	return &events.EntitlementChanged{
		UserID:     userID,
		OldPlan:    old,
		NewPlan:    types.PlanFree,
		Reason:     reason,
		OccurredAt: at,
	}, nil
}

// Publish forwards committed changes to the configured sinks.
func (s *Service) Publish(ctx context.Context, changes ...*events.EntitlementChanged) {
	s.publisher.Publish(ctx, changes...)
}

// Now is the service clock.
func (s *Service) Now() time.Time { return s.now().UTC() }

func (s *Service) eventTime(h razorpay.Header) time.Time {
	if h.CreatedAt != nil {
		return h.CreatedAt.UTC()
	}
	return s.Now()
}

func findOrder(ctx context.Context, tx repository.Repository, razorpayOrderID *string) (*models.Order, error) {
	if lo.FromPtr(razorpayOrderID) == "" {
		return nil, nil
	}
	o, err := tx.FindOrderByGatewayID(ctx, *razorpayOrderID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find order %s: %w", *razorpayOrderID, err)
	}
	return o, nil
}

func findSubscription(ctx context.Context, tx repository.Repository, razorpaySubscriptionID *string) (*models.Subscription, error) {
	if lo.FromPtr(razorpaySubscriptionID) == "" {
		return nil, nil
	}
	sub, err := tx.FindSubscriptionByGatewayID(ctx, *razorpaySubscriptionID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find subscription %s: %w", *razorpaySubscriptionID, err)
	}
	return sub, nil
}

// profilePlan returns "" for users without a profile row.
func profilePlan(ctx context.Context, tx repository.Repository, userID string) (types.Plan, error) {
	plan, err := tx.GetProfilePlan(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read profile plan: %w", err)
	}
	return plan, nil
}

func paymentRow(p *razorpay.Payment, captured bool, order *models.Order, sub *models.Subscription) *models.Payment {
	row := &models.Payment{
		ID:                tool.GenerateUUIDV7(),
		RazorpayPaymentID: p.ID,
		RazorpayOrderID:   p.OrderID,
		Amount:            p.Major(),
		Currency:          lo.Ternary(p.Currency == "", "INR", p.Currency),
		Status:            types.PaymentRecordStatusFailed,
		Method:            p.Method,
		Metadata:          datatypes.JSONMap{},
	}
	if captured {
		row.Status = types.PaymentRecordStatusCaptured
	} else {
		row.ErrorCode = p.ErrorCode
		row.ErrorDescription = p.ErrorDescription
		if p.ErrorReason != nil {
			row.Metadata["error_reason"] = *p.ErrorReason
		}
	}
	if p.InvoiceID != nil {
		row.Metadata["invoice_id"] = *p.InvoiceID
	}
	if order != nil {
		row.OrderID = lo.ToPtr(order.ID)
		row.UserID = order.UserID
	}
	if sub != nil {
		row.SubscriptionID = lo.ToPtr(sub.ID)
		row.UserID = sub.UserID
	}
	return row
}
