package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/himnu2025-blip/synka-billing/pkg/types"
)

func TestTableNames(t *testing.T) {
	require.Equal(t, "subscriptions", Subscription{}.TableName())
	require.Equal(t, "payments", Payment{}.TableName())
	require.Equal(t, "orders", Order{}.TableName())
	require.Equal(t, "profiles", Profile{}.TableName())
	require.Equal(t, "user_roles", UserRole{}.TableName())
	require.Equal(t, "plan_history", PlanHistory{}.TableName())
	require.Equal(t, "payment_webhook_log", PaymentWebhookLog{}.TableName())
}

func TestSubscriptionEntitled(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	future := now.Add(24 * time.Hour)
	past := now.Add(-time.Hour)

	cases := []struct {
		name string
		sub  *Subscription
		want bool
	}{
		{"nil", nil, false},
		{"active before end", &Subscription{Status: types.SubscriptionStatusActive, EndDate: &future}, true},
		{"active after end", &Subscription{Status: types.SubscriptionStatusActive, EndDate: &past}, false},
		{"active without end", &Subscription{Status: types.SubscriptionStatusActive}, false},
		{"cancelled keeps access until end", &Subscription{Status: types.SubscriptionStatusCancelled, EndDate: &future}, true},
		{"paused keeps access until end", &Subscription{Status: types.SubscriptionStatusPaused, EndDate: &future}, true},
		{"halted", &Subscription{Status: types.SubscriptionStatusHalted, EndDate: &future}, false},
		{"completed", &Subscription{Status: types.SubscriptionStatusCompleted, EndDate: &future}, false},
		{"replaced", &Subscription{Status: types.SubscriptionStatusReplaced, EndDate: &future}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, tc.sub.Entitled(now))
		})
	}
}
