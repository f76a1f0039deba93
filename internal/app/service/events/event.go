package events

import (
	"context"
	"time"

	"github.com/himnu2025-blip/synka-billing/pkg/types"
)

// Reasons for an entitlement change.
const (
	ReasonActivated = "activated"
	ReasonHalted    = "halted"
	ReasonCompleted = "completed"
	ReasonExpired   = "expired"
)

// EntitlementChanged is published after a committed plan activation or
// downgrade.
type EntitlementChanged struct {
	UserID         string     `json:"user_id"`
	OldPlan        types.Plan `json:"old_plan,omitempty"`
	NewPlan        types.Plan `json:"new_plan"`
	Reason         string     `json:"reason"`
	SubscriptionID string     `json:"subscription_id,omitempty"`
	Event          string     `json:"event,omitempty"`
	EndDate        *time.Time `json:"end_date,omitempty"`
	OccurredAt     time.Time  `json:"occurred_at"`
}

// Publisher delivers entitlement changes to one sink.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, ev *EntitlementChanged) error
	Close() error
}
