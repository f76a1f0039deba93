package reconciler

import (
	"errors"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"

	"github.com/himnu2025-blip/synka-billing/internal/models"
	"github.com/himnu2025-blip/synka-billing/internal/repository"
	"github.com/himnu2025-blip/synka-billing/pkg/types"
)

func TestCheckTransition(t *testing.T) {
	cases := []struct {
		from types.SubscriptionStatus
		to   *types.SubscriptionStatus
		ok   bool
	}{
		{types.SubscriptionStatusPending, lo.ToPtr(types.SubscriptionStatusActive), true},
		{types.SubscriptionStatusActive, lo.ToPtr(types.SubscriptionStatusHalted), true},
		{types.SubscriptionStatusCancelled, lo.ToPtr(types.SubscriptionStatusActive), true},
		{types.SubscriptionStatusHalted, lo.ToPtr(types.SubscriptionStatusActive), true},
		{types.SubscriptionStatusHalted, lo.ToPtr(types.SubscriptionStatusPaused), false},
		{types.SubscriptionStatusCompleted, lo.ToPtr(types.SubscriptionStatusActive), false},
		{types.SubscriptionStatusCompleted, lo.ToPtr(types.SubscriptionStatusCompleted), true},
		{types.SubscriptionStatusExpired, lo.ToPtr(types.SubscriptionStatusActive), true},
		{types.SubscriptionStatusExpired, lo.ToPtr(types.SubscriptionStatusPaused), false},
		{types.SubscriptionStatusReplaced, lo.ToPtr(types.SubscriptionStatusActive), false},
		{types.SubscriptionStatusReplaced, nil, false},
		{types.SubscriptionStatusActive, nil, true},
	}
	for _, c := range cases {
		err := checkTransition(c.from, &repository.SubscriptionUpdate{Status: c.to})
		if c.ok {
			assert.NoError(t, err, "%s -> %v", c.from, lo.FromPtr(c.to))
		} else {
			assert.True(t, errors.Is(err, ErrIllegalTransition), "%s -> %v", c.from, lo.FromPtr(c.to))
		}
	}
}

func TestCheckInvariants(t *testing.T) {
	now := time.Now()
	cases := []struct {
		name string
		sub  models.Subscription
		ok   bool
	}{
		{"active renewing", models.Subscription{Status: types.SubscriptionStatusActive, AutoRenew: true}, true},
		{"paused renewing", models.Subscription{Status: types.SubscriptionStatusPaused, AutoRenew: true}, false},
		{"completed renewing", models.Subscription{Status: types.SubscriptionStatusCompleted, AutoRenew: true}, false},
		{"halted paid", models.Subscription{Status: types.SubscriptionStatusHalted, PaymentStatus: types.PaymentStatusPaid}, false},
		{"halted failed", models.Subscription{Status: types.SubscriptionStatusHalted, PaymentStatus: types.PaymentStatusFailed}, true},
		{"cancelled renewing", models.Subscription{Status: types.SubscriptionStatusActive, AutoRenew: true, CancelledAt: &now}, false},
		{"cancelled in grace", models.Subscription{Status: types.SubscriptionStatusActive, CancelledAt: &now}, true},
	}
	for _, c := range cases {
		err := checkInvariants(&c.sub)
		if c.ok {
			assert.NoError(t, err, c.name)
		} else {
			assert.True(t, errors.Is(err, ErrInvariant), c.name)
		}
	}
}

func TestMergeClearsCancellation(t *testing.T) {
	now := time.Now()
	cur := &models.Subscription{
		Status:             types.SubscriptionStatusHalted,
		CancelledAt:        &now,
		CancellationReason: lo.ToPtr(types.CancellationReasonHalted),
	}
	m := merge(cur, &repository.SubscriptionUpdate{
		Status:            lo.ToPtr(types.SubscriptionStatusActive),
		AutoRenew:         lo.ToPtr(true),
		ClearCancellation: true,
	})
	assert.Equal(t, types.SubscriptionStatusActive, m.Status)
	assert.Nil(t, m.CancelledAt)
	assert.Nil(t, m.CancellationReason)
	// the current row is untouched
	assert.NotNil(t, cur.CancelledAt)
}

func TestAddPeriod(t *testing.T) {
	base := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC), addPeriod(base, types.PlanTypeMonthly))
	assert.Equal(t, time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC), addPeriod(base, types.PlanTypeAnnually))
}
