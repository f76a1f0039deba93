package reconciler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/himnu2025-blip/synka-billing/internal/app/service/events"
	"github.com/himnu2025-blip/synka-billing/internal/models"
	"github.com/himnu2025-blip/synka-billing/internal/platform/razorpay"
	"github.com/himnu2025-blip/synka-billing/internal/repository"
	"github.com/himnu2025-blip/synka-billing/internal/repository/repotest"
	"github.com/himnu2025-blip/synka-billing/pkg/types"
)

var (
	clock = time.Date(2024, 12, 1, 10, 0, 0, 0, time.UTC)
	t1    = time.Date(2024, 12, 1, 9, 0, 0, 0, time.UTC)
	t2    = time.Date(2024, 12, 2, 9, 0, 0, 0, time.UTC)
	t3    = time.Date(2024, 12, 3, 9, 0, 0, 0, time.UTC)
)

type recorder struct {
	changes []*events.EntitlementChanged
}

func (r *recorder) Publish(_ context.Context, changes ...*events.EntitlementChanged) {
	r.changes = append(r.changes, changes...)
}

func newTestService(t *testing.T) (*Service, *repotest.Fake, *recorder) {
	t.Helper()
	repo := repotest.New()
	rec := &recorder{}
	return newService(repo, rec, zap.NewNop().Sugar(), func() time.Time { return clock }), repo, rec
}

func seedSubscription(repo *repotest.Fake, mutate func(s *models.Subscription)) models.Subscription {
	s := models.Subscription{
		ID:                     "row-1",
		UserID:                 "user-1",
		PlanType:               types.PlanTypeMonthly,
		Status:                 types.SubscriptionStatusPending,
		PaymentStatus:          types.PaymentStatusPending,
		Amount:                 decimal.RequireFromString("499"),
		RazorpaySubscriptionID: lo.ToPtr("sub_1"),
		Notes:                  datatypes.JSONMap{},
	}
	if mutate != nil {
		mutate(&s)
	}
	repo.AddSubscription(s)
	return s
}

func activeSubscription(s *models.Subscription) {
	s.Status = types.SubscriptionStatusActive
	s.PaymentStatus = types.PaymentStatusPaid
	s.AutoRenew = true
	s.MandateCreated = true
	s.EndDate = lo.ToPtr(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
}

func subEvent(typ razorpay.EventType, at *time.Time, mutate func(s *razorpay.Subscription)) *razorpay.SubscriptionEvent {
	ev := &razorpay.SubscriptionEvent{
		Header:       razorpay.Header{Type: typ, CreatedAt: at},
		Subscription: razorpay.Subscription{ID: "sub_1", Status: "active"},
	}
	if mutate != nil {
		mutate(&ev.Subscription)
	}
	return ev
}

func paymentEvent(typ razorpay.EventType, id string, mutate func(p *razorpay.Payment)) *razorpay.PaymentEvent {
	ev := &razorpay.PaymentEvent{
		Header:  razorpay.Header{Type: typ, CreatedAt: lo.ToPtr(t1)},
		Payment: razorpay.Payment{ID: id, Amount: 49900, Currency: "INR", Method: lo.ToPtr("upi")},
	}
	if mutate != nil {
		mutate(&ev.Payment)
	}
	return ev
}

func TestPaymentCapturedIsIdempotent(t *testing.T) {
	svc, repo, rec := newTestService(t)
	seedSubscription(repo, nil)
	repo.AddProfile("user-1", types.PlanFree)
	ctx := context.Background()

	ev := paymentEvent(razorpay.EventPaymentCaptured, "pay_1", func(p *razorpay.Payment) {
		p.SubscriptionID = lo.ToPtr("sub_1")
	})

	res, err := svc.HandlePayment(ctx, ev)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, res.Outcome)

	res, err = svc.HandlePayment(ctx, ev)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, res.Outcome)

	payments := repo.Payments()
	require.Len(t, payments, 1)
	assert.Equal(t, types.PaymentRecordStatusCaptured, payments[0].Status)
	assert.Equal(t, "user-1", payments[0].UserID)
	assert.Equal(t, "row-1", lo.FromPtr(payments[0].SubscriptionID))
	assert.True(t, payments[0].Amount.Equal(decimal.RequireFromString("499")))

	require.Len(t, repo.Activations(), 1)
	sub := repo.Subscription("row-1")
	assert.Equal(t, types.SubscriptionStatusActive, sub.Status)
	assert.Equal(t, types.PaymentStatusPaid, sub.PaymentStatus)
	assert.Equal(t, "pay_1", lo.FromPtr(sub.RazorpayPaymentID))
	assert.Equal(t, types.PlanOrange, repo.ProfilePlan("user-1"))
	assert.Contains(t, repo.Roles("user-1"), types.RoleOrange)

	require.Len(t, rec.changes, 1)
	assert.Equal(t, events.ReasonActivated, rec.changes[0].Reason)
	assert.Equal(t, types.PlanFree, rec.changes[0].OldPlan)
}

func TestPaymentCapturedMarksOrderPaid(t *testing.T) {
	svc, repo, _ := newTestService(t)
	repo.AddOrder(models.Order{
		ID:              "order-row-1",
		UserID:          "user-2",
		OrderNumber:     "SYN-0001",
		ProductType:     "nfc_card",
		Amount:          decimal.RequireFromString("499"),
		Currency:        "INR",
		Status:          types.OrderStatusCreated,
		RazorpayOrderID: lo.ToPtr("order_1"),
	})

	res, err := svc.HandlePayment(context.Background(), paymentEvent(razorpay.EventPaymentCaptured, "pay_2", func(p *razorpay.Payment) {
		p.OrderID = lo.ToPtr("order_1")
	}))
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, res.Outcome)

	order := repo.Order("order-row-1")
	assert.Equal(t, types.OrderStatusPaid, order.Status)
	assert.Equal(t, "pay_2", lo.FromPtr(order.RazorpayPaymentID))

	payments := repo.Payments()
	require.Len(t, payments, 1)
	assert.Equal(t, "order-row-1", lo.FromPtr(payments[0].OrderID))
	assert.Equal(t, "user-2", payments[0].UserID)
	assert.Nil(t, payments[0].SubscriptionID)
	assert.Empty(t, repo.Activations())
}

func TestPaymentFailedKeepsAccess(t *testing.T) {
	svc, repo, rec := newTestService(t)
	seedSubscription(repo, activeSubscription)
	repo.AddProfile("user-1", types.PlanOrange)

	_, err := svc.HandlePayment(context.Background(), paymentEvent(razorpay.EventPaymentFailed, "pay_3", func(p *razorpay.Payment) {
		p.SubscriptionID = lo.ToPtr("sub_1")
		p.ErrorCode = lo.ToPtr("BAD_REQUEST_ERROR")
		p.ErrorDescription = lo.ToPtr("Payment was declined by the bank")
	}))
	require.NoError(t, err)

	sub := repo.Subscription("row-1")
	assert.Equal(t, types.SubscriptionStatusActive, sub.Status)
	assert.Equal(t, types.PaymentStatusFailed, sub.PaymentStatus)
	assert.True(t, sub.AutoRenew)

	payments := repo.Payments()
	require.Len(t, payments, 1)
	assert.Equal(t, types.PaymentRecordStatusFailed, payments[0].Status)
	assert.Equal(t, "BAD_REQUEST_ERROR", lo.FromPtr(payments[0].ErrorCode))
	assert.Equal(t, types.PlanOrange, repo.ProfilePlan("user-1"))
	assert.Empty(t, rec.changes)
}

func TestPaymentWithoutMatchIsIgnored(t *testing.T) {
	svc, repo, _ := newTestService(t)

	res, err := svc.HandlePayment(context.Background(), paymentEvent(razorpay.EventPaymentCaptured, "pay_4", func(p *razorpay.Payment) {
		p.OrderID = lo.ToPtr("order_missing")
	}))
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, res.Outcome)
	assert.Empty(t, repo.Payments())
	assert.Zero(t, repo.Writes())
}

func TestChargedAdoptsGatewayPeriodEnd(t *testing.T) {
	svc, repo, _ := newTestService(t)
	seedSubscription(repo, func(s *models.Subscription) {
		activeSubscription(s)
		s.EndDate = lo.ToPtr(time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC))
	})
	repo.AddProfile("user-1", types.PlanOrange)

	body := []byte(`{"entity":"event","event":"subscription.charged","created_at":1733050000,
		"payload":{"subscription":{"entity":{"id":"sub_1","status":"active","current_start":1733011200,"current_end":1735689600}}}}`)
	ev, err := razorpay.ParseEvent(body)
	require.NoError(t, err)

	res, err := svc.Handle(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, res.Outcome)

	want := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	sub := repo.Subscription("row-1")
	require.NotNil(t, sub.EndDate)
	assert.True(t, want.Equal(*sub.EndDate), "end_date %s", sub.EndDate)
	assert.True(t, want.Equal(*sub.CurrentPeriodEnd))
	assert.True(t, time.Unix(1733011200, 0).Equal(*sub.CurrentPeriodStart))

	acts := repo.Activations()
	require.Len(t, acts, 1)
	assert.True(t, want.Equal(*acts[0].EndDate))
}

func TestChargedWithoutPeriodEndExtendsOnce(t *testing.T) {
	svc, repo, _ := newTestService(t)
	seedSubscription(repo, func(s *models.Subscription) {
		activeSubscription(s)
		s.PlanType = types.PlanTypeAnnually
		s.EndDate = lo.ToPtr(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	})
	repo.AddProfile("user-1", types.PlanOrange)
	ctx := context.Background()

	_, err := svc.HandleSubscription(ctx, subEvent(razorpay.EventSubscriptionCharged, lo.ToPtr(t1), nil))
	require.NoError(t, err)
	want := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	assert.True(t, want.Equal(*repo.Subscription("row-1").EndDate))

	// redelivery of the same event
	_, err = svc.HandleSubscription(ctx, subEvent(razorpay.EventSubscriptionCharged, lo.ToPtr(t1), nil))
	require.NoError(t, err)
	assert.True(t, want.Equal(*repo.Subscription("row-1").EndDate))
}

func TestChargedMonthlyWithoutEndDateStartsFromEventTime(t *testing.T) {
	svc, repo, _ := newTestService(t)
	seedSubscription(repo, nil)
	repo.AddProfile("user-1", types.PlanFree)

	_, err := svc.HandleSubscription(context.Background(), subEvent(razorpay.EventSubscriptionCharged, lo.ToPtr(t1), nil))
	require.NoError(t, err)
	assert.True(t, t1.AddDate(0, 1, 0).Equal(*repo.Subscription("row-1").EndDate))
	assert.Equal(t, types.PlanOrange, repo.ProfilePlan("user-1"))
}

func TestChargedGatewayPeriodEndReplacesStoredEndDate(t *testing.T) {
	svc, repo, _ := newTestService(t)
	seedSubscription(repo, func(s *models.Subscription) {
		activeSubscription(s)
		s.EndDate = lo.ToPtr(time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC))
	})
	repo.AddProfile("user-1", types.PlanOrange)

	_, err := svc.HandleSubscription(context.Background(), subEvent(razorpay.EventSubscriptionCharged, lo.ToPtr(t1), func(s *razorpay.Subscription) {
		s.CurrentEnd = lo.ToPtr(int64(1735689600))
	}))
	require.NoError(t, err)

	want := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	sub := repo.Subscription("row-1")
	assert.True(t, want.Equal(*sub.EndDate), "end_date %s", sub.EndDate)
	assert.True(t, want.Equal(*sub.CurrentPeriodEnd))
	acts := repo.Activations()
	require.Len(t, acts, 1)
	assert.True(t, want.Equal(*acts[0].EndDate))
}

func TestActivatedReplacesProvisionalEndDate(t *testing.T) {
	svc, repo, _ := newTestService(t)
	seedSubscription(repo, func(s *models.Subscription) {
		// written when the checkout was created, before the gateway confirmed
		s.EndDate = lo.ToPtr(time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC))
	})
	repo.AddProfile("user-1", types.PlanFree)

	_, err := svc.HandleSubscription(context.Background(), subEvent(razorpay.EventSubscriptionActivated, lo.ToPtr(t1), func(s *razorpay.Subscription) {
		s.CurrentEnd = lo.ToPtr(int64(1740700800))
	}))
	require.NoError(t, err)

	want := time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC)
	sub := repo.Subscription("row-1")
	assert.Equal(t, types.SubscriptionStatusActive, sub.Status)
	assert.True(t, want.Equal(*sub.EndDate), "end_date %s", sub.EndDate)
	assert.True(t, want.Equal(*sub.CurrentPeriodEnd))
}

func TestCancelledKeepsAccessUntilEndDate(t *testing.T) {
	svc, repo, rec := newTestService(t)
	seedSubscription(repo, activeSubscription)
	repo.AddProfile("user-1", types.PlanOrange)
	repo.AddRole("user-1", types.RoleOrange)

	_, err := svc.HandleSubscription(context.Background(), subEvent(razorpay.EventSubscriptionCancelled, lo.ToPtr(t1), func(s *razorpay.Subscription) {
		s.CancelledBy = lo.ToPtr("user")
	}))
	require.NoError(t, err)

	sub := repo.Subscription("row-1")
	assert.Equal(t, types.SubscriptionStatusActive, sub.Status)
	assert.False(t, sub.AutoRenew)
	require.NotNil(t, sub.CancelledAt)
	assert.True(t, t1.Equal(*sub.CancelledAt))
	assert.Equal(t, types.CancellationReasonUser, lo.FromPtr(sub.CancellationReason))
	assert.True(t, sub.Entitled(clock))

	assert.Equal(t, types.PlanOrange, repo.ProfilePlan("user-1"))
	assert.Empty(t, repo.PlanHistory("user-1"))
	assert.Empty(t, rec.changes)
}

func TestCancellationReasonByActor(t *testing.T) {
	assert.Equal(t, types.CancellationReasonBank, cancellationReason(lo.ToPtr("bank")))
	assert.Equal(t, types.CancellationReasonUser, cancellationReason(lo.ToPtr("user")))
	assert.Equal(t, types.CancellationReasonGateway, cancellationReason(lo.ToPtr("admin")))
	assert.Equal(t, types.CancellationReasonGateway, cancellationReason(nil))
}

func TestHaltedDowngradesUser(t *testing.T) {
	svc, repo, rec := newTestService(t)
	seedSubscription(repo, activeSubscription)
	repo.AddProfile("user-1", types.PlanOrange)
	repo.AddRole("user-1", types.RoleOrange)
	ctx := context.Background()

	res, err := svc.HandleSubscription(ctx, subEvent(razorpay.EventSubscriptionHalted, lo.ToPtr(t2), nil))
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, res.Outcome)

	sub := repo.Subscription("row-1")
	assert.Equal(t, types.SubscriptionStatusHalted, sub.Status)
	assert.Equal(t, types.PaymentStatusFailed, sub.PaymentStatus)
	assert.False(t, sub.AutoRenew)
	assert.Equal(t, types.CancellationReasonHalted, lo.FromPtr(sub.CancellationReason))

	assert.Equal(t, types.PlanFree, repo.ProfilePlan("user-1"))
	assert.Equal(t, []types.Role{types.RoleFree}, repo.Roles("user-1"))
	history := repo.PlanHistory("user-1")
	require.Len(t, history, 1)
	assert.Equal(t, types.PlanOrange, history[0].OldPlan)
	assert.Equal(t, types.PlanFree, history[0].NewPlan)
	assert.Nil(t, history[0].ChangedBy)

	require.Len(t, rec.changes, 1)
	assert.Equal(t, events.ReasonHalted, rec.changes[0].Reason)
	assert.Equal(t, "sub_1", rec.changes[0].SubscriptionID)

	res, err = svc.HandleSubscription(ctx, subEvent(razorpay.EventSubscriptionHalted, lo.ToPtr(t2), nil))
	require.NoError(t, err)
	assert.Equal(t, OutcomeStale, res.Outcome)
	assert.Len(t, repo.PlanHistory("user-1"), 1)
	assert.Len(t, rec.changes, 1)
}

func TestStaleChargedDoesNotResurrectHaltedSubscription(t *testing.T) {
	svc, repo, _ := newTestService(t)
	seedSubscription(repo, activeSubscription)
	repo.AddProfile("user-1", types.PlanOrange)
	ctx := context.Background()

	_, err := svc.HandleSubscription(ctx, subEvent(razorpay.EventSubscriptionHalted, lo.ToPtr(t2), nil))
	require.NoError(t, err)

	res, err := svc.HandleSubscription(ctx, subEvent(razorpay.EventSubscriptionCharged, lo.ToPtr(t1), func(s *razorpay.Subscription) {
		s.CurrentEnd = lo.ToPtr(int64(1767225600))
	}))
	require.NoError(t, err)
	assert.Equal(t, OutcomeStale, res.Outcome)

	sub := repo.Subscription("row-1")
	assert.Equal(t, types.SubscriptionStatusHalted, sub.Status)
	assert.Equal(t, types.PlanFree, repo.ProfilePlan("user-1"))
	assert.Empty(t, repo.Activations())
}

func TestStaleHaltedDoesNotDowngradeAfterNewerCharge(t *testing.T) {
	svc, repo, rec := newTestService(t)
	seedSubscription(repo, activeSubscription)
	repo.AddProfile("user-1", types.PlanOrange)
	repo.AddRole("user-1", types.RoleOrange)
	ctx := context.Background()

	res, err := svc.HandleSubscription(ctx, subEvent(razorpay.EventSubscriptionCharged, lo.ToPtr(t3), func(s *razorpay.Subscription) {
		s.CurrentEnd = lo.ToPtr(int64(1767225600))
	}))
	require.NoError(t, err)
	require.Equal(t, OutcomeApplied, res.Outcome)

	for _, typ := range []razorpay.EventType{razorpay.EventSubscriptionHalted, razorpay.EventSubscriptionCompleted} {
		res, err = svc.HandleSubscription(ctx, subEvent(typ, lo.ToPtr(t2), nil))
		require.NoError(t, err)
		assert.Equal(t, OutcomeStale, res.Outcome, typ)
	}

	sub := repo.Subscription("row-1")
	assert.Equal(t, types.SubscriptionStatusActive, sub.Status)
	assert.Equal(t, types.PaymentStatusPaid, sub.PaymentStatus)
	assert.True(t, sub.AutoRenew)
	assert.Nil(t, sub.CancelledAt)
	assert.True(t, t3.Equal(*sub.LastEventAt))
	assert.Equal(t, types.PlanOrange, repo.ProfilePlan("user-1"))
	assert.Empty(t, repo.PlanHistory("user-1"))
	for _, c := range rec.changes {
		assert.NotEqual(t, types.PlanFree, c.NewPlan)
	}
}

func TestNewerResumeReactivatesHaltedSubscription(t *testing.T) {
	svc, repo, _ := newTestService(t)
	seedSubscription(repo, activeSubscription)
	repo.AddProfile("user-1", types.PlanOrange)
	ctx := context.Background()

	_, err := svc.HandleSubscription(ctx, subEvent(razorpay.EventSubscriptionHalted, lo.ToPtr(t2), nil))
	require.NoError(t, err)
	res, err := svc.HandleSubscription(ctx, subEvent(razorpay.EventSubscriptionResumed, lo.ToPtr(t3), nil))
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, res.Outcome)

	sub := repo.Subscription("row-1")
	assert.Equal(t, types.SubscriptionStatusActive, sub.Status)
	assert.True(t, sub.AutoRenew)
	assert.Nil(t, sub.CancelledAt)
	assert.Nil(t, sub.CancellationReason)
	assert.Equal(t, types.PlanOrange, repo.ProfilePlan("user-1"))
	assert.Len(t, repo.Activations(), 1)
}

func TestCompletedDowngradesUser(t *testing.T) {
	svc, repo, rec := newTestService(t)
	seedSubscription(repo, activeSubscription)
	repo.AddProfile("user-1", types.PlanOrange)
	repo.AddRole("user-1", types.RoleOrange)

	_, err := svc.HandleSubscription(context.Background(), subEvent(razorpay.EventSubscriptionCompleted, lo.ToPtr(t1), nil))
	require.NoError(t, err)

	sub := repo.Subscription("row-1")
	assert.Equal(t, types.SubscriptionStatusCompleted, sub.Status)
	assert.False(t, sub.AutoRenew)
	assert.Equal(t, types.PlanFree, repo.ProfilePlan("user-1"))
	assert.Equal(t, []types.Role{types.RoleFree}, repo.Roles("user-1"))
	assert.Len(t, repo.PlanHistory("user-1"), 1)
	require.Len(t, rec.changes, 1)
	assert.Equal(t, events.ReasonCompleted, rec.changes[0].Reason)
}

func TestDowngradeOfFreeUserWritesNoHistory(t *testing.T) {
	svc, repo, _ := newTestService(t)
	repo.AddProfile("user-1", types.PlanFree)
	repo.AddRole("user-1", types.RoleFree)

	err := repo.Transaction(context.Background(), func(tx repository.Repository) error {
		_, err := svc.Downgrade(context.Background(), tx, "user-1", events.ReasonExpired, clock)
		return err
	})
	require.NoError(t, err)
	assert.Empty(t, repo.PlanHistory("user-1"))
	assert.Equal(t, []types.Role{types.RoleFree}, repo.Roles("user-1"))
}

func TestAuthenticatedActivatesWithMandate(t *testing.T) {
	svc, repo, _ := newTestService(t)
	seedSubscription(repo, nil)
	repo.AddProfile("user-1", types.PlanFree)

	_, err := svc.HandleSubscription(context.Background(), subEvent(razorpay.EventSubscriptionAuthenticated, lo.ToPtr(t1), nil))
	require.NoError(t, err)

	sub := repo.Subscription("row-1")
	assert.Equal(t, types.SubscriptionStatusActive, sub.Status)
	assert.True(t, sub.MandateCreated)
	assert.True(t, sub.AutoRenew)
	assert.Equal(t, types.PaymentStatusPending, sub.PaymentStatus)
	assert.Len(t, repo.Activations(), 1)
}

func TestActivatedRecordsPeriod(t *testing.T) {
	svc, repo, _ := newTestService(t)
	seedSubscription(repo, nil)
	repo.AddProfile("user-1", types.PlanFree)

	ev := subEvent(razorpay.EventSubscriptionActivated, lo.ToPtr(t1), func(s *razorpay.Subscription) {
		s.CurrentStart = lo.ToPtr(int64(1733011200))
		s.CurrentEnd = lo.ToPtr(int64(1735689600))
	})
	ev.Payment = &razorpay.Payment{ID: "pay_5", Amount: 49900}
	_, err := svc.HandleSubscription(context.Background(), ev)
	require.NoError(t, err)

	sub := repo.Subscription("row-1")
	assert.Equal(t, types.PaymentStatusPaid, sub.PaymentStatus)
	assert.Equal(t, "pay_5", lo.FromPtr(sub.RazorpayPaymentID))
	assert.True(t, time.Unix(1735689600, 0).Equal(*sub.EndDate))
	assert.True(t, time.Unix(1733011200, 0).Equal(*sub.CurrentPeriodStart))
	// subscription events never write the ledger; payment.captured does
	assert.Empty(t, repo.Payments())
}

func TestPendingMergesNotes(t *testing.T) {
	svc, repo, _ := newTestService(t)
	seedSubscription(repo, func(s *models.Subscription) {
		activeSubscription(s)
		s.Notes = datatypes.JSONMap{"source": "web"}
	})

	_, err := svc.HandleSubscription(context.Background(), subEvent(razorpay.EventSubscriptionPending, lo.ToPtr(t1), nil))
	require.NoError(t, err)

	sub := repo.Subscription("row-1")
	assert.Equal(t, types.PaymentStatusPending, sub.PaymentStatus)
	assert.Equal(t, types.SubscriptionStatusActive, sub.Status)
	assert.Equal(t, "web", sub.Notes["source"])
	assert.Equal(t, types.PendingReasonRetryInProgress, sub.Notes["pending_reason"])
}

func TestPausedThenResumed(t *testing.T) {
	svc, repo, _ := newTestService(t)
	seedSubscription(repo, activeSubscription)
	repo.AddProfile("user-1", types.PlanOrange)
	ctx := context.Background()

	_, err := svc.HandleSubscription(ctx, subEvent(razorpay.EventSubscriptionPaused, lo.ToPtr(t1), nil))
	require.NoError(t, err)
	sub := repo.Subscription("row-1")
	assert.Equal(t, types.SubscriptionStatusPaused, sub.Status)
	assert.False(t, sub.AutoRenew)
	assert.Equal(t, types.PlanOrange, repo.ProfilePlan("user-1"))

	_, err = svc.HandleSubscription(ctx, subEvent(razorpay.EventSubscriptionResumed, lo.ToPtr(t2), nil))
	require.NoError(t, err)
	sub = repo.Subscription("row-1")
	assert.Equal(t, types.SubscriptionStatusActive, sub.Status)
	assert.True(t, sub.AutoRenew)
	assert.Len(t, repo.Activations(), 1)
}

func TestReplacedSubscriptionIsFrozen(t *testing.T) {
	svc, repo, _ := newTestService(t)
	seedSubscription(repo, func(s *models.Subscription) {
		s.Status = types.SubscriptionStatusReplaced
	})

	res, err := svc.HandleSubscription(context.Background(), subEvent(razorpay.EventSubscriptionCharged, lo.ToPtr(t1), nil))
	require.NoError(t, err)
	assert.Equal(t, OutcomeRejected, res.Outcome)
	assert.Equal(t, types.SubscriptionStatusReplaced, repo.Subscription("row-1").Status)
	assert.Zero(t, repo.Writes())
}

func TestInvariantViolationIsRejected(t *testing.T) {
	svc, repo, _ := newTestService(t)
	seedSubscription(repo, func(s *models.Subscription) {
		s.Status = types.SubscriptionStatusHalted
		s.PaymentStatus = types.PaymentStatusFailed
		s.LastEventAt = lo.ToPtr(t1)
	})

	res, err := svc.HandleSubscription(context.Background(), subEvent(razorpay.EventSubscriptionPending, lo.ToPtr(t2), nil))
	require.NoError(t, err)
	assert.Equal(t, OutcomeRejected, res.Outcome)
	assert.Equal(t, types.PaymentStatusFailed, repo.Subscription("row-1").PaymentStatus)
}

func TestUnknownSubscriptionIsIgnored(t *testing.T) {
	svc, repo, _ := newTestService(t)

	res, err := svc.HandleSubscription(context.Background(), subEvent(razorpay.EventSubscriptionHalted, nil, nil))
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, res.Outcome)
	assert.Zero(t, repo.Writes())
}

func TestDownstreamFailureRollsBack(t *testing.T) {
	svc, repo, rec := newTestService(t)
	seed := seedSubscription(repo, nil)
	repo.AddProfile("user-1", types.PlanFree)
	ctx := context.Background()
	ev := paymentEvent(razorpay.EventPaymentCaptured, "pay_6", func(p *razorpay.Payment) {
		p.SubscriptionID = lo.ToPtr("sub_1")
	})

	repo.FailOn("ActivateUserSubscription", errors.New("procedure unavailable"))
	_, err := svc.HandlePayment(ctx, ev)
	require.Error(t, err)
	assert.Empty(t, repo.Payments())
	assert.Equal(t, seed.Status, repo.Subscription("row-1").Status)
	assert.Equal(t, types.PlanFree, repo.ProfilePlan("user-1"))
	assert.Empty(t, rec.changes)

	// the gateway redelivers once the dependency recovers
	repo.FailOn("ActivateUserSubscription", nil)
	res, err := svc.HandlePayment(ctx, ev)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, res.Outcome)
	assert.Len(t, repo.Payments(), 1)
	assert.Equal(t, types.PlanOrange, repo.ProfilePlan("user-1"))
}

func TestOrderPaidIsNoop(t *testing.T) {
	svc, repo, _ := newTestService(t)

	res, err := svc.Handle(context.Background(), &razorpay.OrderEvent{
		Header: razorpay.Header{Type: razorpay.EventOrderPaid},
		Order:  razorpay.Order{ID: "order_1"},
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, res.Outcome)
	assert.Zero(t, repo.Writes())
}
