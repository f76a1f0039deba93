package repository

import (
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/himnu2025-blip/synka-billing/internal/models"
	"github.com/himnu2025-blip/synka-billing/pkg/types"
)

var (
	earlier = time.Date(2024, 12, 1, 9, 0, 0, 0, time.UTC)
	eventAt = time.Date(2024, 12, 2, 9, 0, 0, 0, time.UTC)
	newer   = time.Date(2024, 12, 3, 9, 0, 0, 0, time.UTC)
)

// dryRunDB renders postgres SQL without a server.
func dryRunDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN: "host=localhost user=billing dbname=billing sslmode=disable",
	}), &gorm.Config{DryRun: true, DisableAutomaticPing: true})
	require.NoError(t, err)
	return db
}

func updateSQL(t *testing.T, u *SubscriptionUpdate) string {
	t.Helper()
	db := dryRunDB(t)
	return db.ToSQL(func(tx *gorm.DB) *gorm.DB {
		q, values, err := subscriptionUpdateQuery(tx, "row-1", u, eventAt)
		require.NoError(t, err)
		return q.Updates(values)
	})
}

func TestSubscriptionUpdateQueryGuards(t *testing.T) {
	const terminal = "status NOT IN ('halted','completed','expired')"
	const ordered = "last_event_at IS NULL OR last_event_at < '2024-12-02 09:00:00"

	tests := []struct {
		name    string
		update  *SubscriptionUpdate
		want    []string
		notWant []string
	}{
		{
			name:    "no event time skips terminal rows",
			update:  &SubscriptionUpdate{Status: lo.ToPtr(types.SubscriptionStatusExpired)},
			want:    []string{terminal},
			notWant: []string{"last_event_at"},
		},
		{
			name:   "event into live status may revive terminal rows with a newer event",
			update: &SubscriptionUpdate{Status: lo.ToPtr(types.SubscriptionStatusActive), EventAt: lo.ToPtr(eventAt)},
			want:   []string{terminal + " OR " + ordered, "GREATEST(last_event_at, '2024-12-02 09:00:00"},
		},
		{
			name:    "event into terminal status needs a newer event on any row",
			update:  &SubscriptionUpdate{Status: lo.ToPtr(types.SubscriptionStatusHalted), EventAt: lo.ToPtr(eventAt)},
			want:    []string{ordered},
			notWant: []string{"status NOT IN"},
		},
		{
			name: "lapse sweep",
			update: &SubscriptionUpdate{
				Status:       lo.ToPtr(types.SubscriptionStatusExpired),
				LapsedBefore: lo.ToPtr(newer),
			},
			want: []string{terminal, "auto_renew = false AND end_date < '2024-12-03 09:00:00"},
		},
		{
			name:   "notes merge",
			update: &SubscriptionUpdate{MergeNotes: map[string]interface{}{"pending_reason": "retry"}},
			want:   []string{`COALESCE(notes, '{}'::jsonb) || '{"pending_reason":"retry"}'::jsonb`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql := updateSQL(t, tt.update)
			assert.Contains(t, sql, `UPDATE "subscriptions" SET`)
			assert.Contains(t, sql, "id = 'row-1'")
			for _, w := range tt.want {
				assert.Contains(t, sql, w)
			}
			for _, w := range tt.notWant {
				assert.NotContains(t, sql, w)
			}
		})
	}
}

func TestUpdateApplies(t *testing.T) {
	row := func(status types.SubscriptionStatus, last *time.Time) *models.Subscription {
		return &models.Subscription{Status: status, LastEventAt: last, EndDate: lo.ToPtr(earlier)}
	}
	halted := lo.ToPtr(types.SubscriptionStatusHalted)
	active := lo.ToPtr(types.SubscriptionStatusActive)

	tests := []struct {
		name string
		sub  *models.Subscription
		u    *SubscriptionUpdate
		want bool
	}{
		{"live row, live update", row(types.SubscriptionStatusActive, lo.ToPtr(newer)), &SubscriptionUpdate{Status: active, EventAt: lo.ToPtr(eventAt)}, true},
		{"live row, older terminal update", row(types.SubscriptionStatusActive, lo.ToPtr(newer)), &SubscriptionUpdate{Status: halted, EventAt: lo.ToPtr(eventAt)}, false},
		{"live row, same-time terminal update", row(types.SubscriptionStatusActive, lo.ToPtr(eventAt)), &SubscriptionUpdate{Status: halted, EventAt: lo.ToPtr(eventAt)}, false},
		{"live row, newer terminal update", row(types.SubscriptionStatusActive, lo.ToPtr(earlier)), &SubscriptionUpdate{Status: halted, EventAt: lo.ToPtr(eventAt)}, true},
		{"live row without history, terminal update", row(types.SubscriptionStatusActive, nil), &SubscriptionUpdate{Status: halted, EventAt: lo.ToPtr(eventAt)}, true},
		{"terminal row, older update", row(types.SubscriptionStatusHalted, lo.ToPtr(newer)), &SubscriptionUpdate{Status: active, EventAt: lo.ToPtr(eventAt)}, false},
		{"terminal row, newer update", row(types.SubscriptionStatusHalted, lo.ToPtr(earlier)), &SubscriptionUpdate{Status: active, EventAt: lo.ToPtr(eventAt)}, true},
		{"terminal row, no event time", row(types.SubscriptionStatusExpired, nil), &SubscriptionUpdate{Status: active}, false},
		{"lapsed row", row(types.SubscriptionStatusActive, nil), &SubscriptionUpdate{LapsedBefore: lo.ToPtr(newer)}, true},
		{"not yet lapsed", row(types.SubscriptionStatusActive, nil), &SubscriptionUpdate{LapsedBefore: lo.ToPtr(earlier)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, UpdateApplies(tt.sub, tt.u))
		})
	}
}
