package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/fx"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/himnu2025-blip/synka-billing/internal/models"
	"github.com/himnu2025-blip/synka-billing/pkg/tool"
	"github.com/himnu2025-blip/synka-billing/pkg/types"
)

type gormRepository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewGorm returns the postgres-backed Repository.
func NewGorm(db *gorm.DB) Repository {
	return &gormRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

var Module = fx.Options(
	fx.Provide(NewGorm),
)

func (r *gormRepository) Transaction(ctx context.Context, fn func(tx Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormRepository{db: tx, now: r.now})
	})
}

func (r *gormRepository) FindOrderByGatewayID(ctx context.Context, razorpayOrderID string) (*models.Order, error) {
	var o models.Order
	if err := r.db.WithContext(ctx).Where("razorpay_order_id = ?", razorpayOrderID).Take(&o).Error; err != nil {
		return nil, notFound(err)
	}
	return &o, nil
}

func (r *gormRepository) MarkOrder(ctx context.Context, orderID string, status types.OrderStatus, razorpayPaymentID string) error {
	return r.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ?", orderID).
		Updates(map[string]interface{}{
			"status":              status,
			"razorpay_payment_id": razorpayPaymentID,
			"updated_at":          r.now(),
		}).Error
}

func (r *gormRepository) FindSubscriptionByGatewayID(ctx context.Context, razorpaySubscriptionID string) (*models.Subscription, error) {
	var s models.Subscription
	if err := r.db.WithContext(ctx).Where("razorpay_subscription_id = ?", razorpaySubscriptionID).Take(&s).Error; err != nil {
		return nil, notFound(err)
	}
	return &s, nil
}

func (r *gormRepository) ApplySubscriptionUpdate(ctx context.Context, id string, u *SubscriptionUpdate) (bool, error) {
	q, values, err := subscriptionUpdateQuery(r.db.WithContext(ctx), id, u, r.now())
	if err != nil {
		return false, err
	}
	res := q.Updates(values)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// subscriptionUpdateQuery builds the guarded update for one row. The WHERE
// clause matches UpdateApplies.
func subscriptionUpdateQuery(db *gorm.DB, id string, u *SubscriptionUpdate, now time.Time) (*gorm.DB, map[string]interface{}, error) {
	values := map[string]interface{}{"updated_at": now}
	if u.Status != nil {
		values["status"] = *u.Status
	}
	if u.PaymentStatus != nil {
		values["payment_status"] = *u.PaymentStatus
	}
	if u.AutoRenew != nil {
		values["auto_renew"] = *u.AutoRenew
	}
	if u.MandateCreated != nil {
		values["mandate_created"] = *u.MandateCreated
	}
	if u.EndDate != nil {
		values["end_date"] = *u.EndDate
	}
	if u.CurrentPeriodStart != nil {
		values["current_period_start"] = *u.CurrentPeriodStart
	}
	if u.CurrentPeriodEnd != nil {
		values["current_period_end"] = *u.CurrentPeriodEnd
	}
	if u.RazorpayPaymentID != nil {
		values["razorpay_payment_id"] = *u.RazorpayPaymentID
	}
	if u.ClearCancellation {
		values["cancelled_at"] = nil
		values["cancellation_reason"] = nil
	} else {
		if u.CancelledAt != nil {
			values["cancelled_at"] = *u.CancelledAt
		}
		if u.CancellationReason != nil {
			values["cancellation_reason"] = *u.CancellationReason
		}
	}
	if len(u.MergeNotes) > 0 {
		b, err := json.Marshal(u.MergeNotes)
		if err != nil {
			return nil, nil, fmt.Errorf("encode notes: %w", err)
		}
		values["notes"] = gorm.Expr("COALESCE(notes, '{}'::jsonb) || ?::jsonb", string(b))
	}

	q := db.Model(&models.Subscription{}).Where("id = ?", id)
	switch {
	case u.EventAt == nil:
		q = q.Where("status NOT IN ?", terminalStatuses)
	case u.Status != nil && u.Status.Terminal():
		// an older event must not end access granted by a newer one
		q = q.Where("(last_event_at IS NULL OR last_event_at < ?)", *u.EventAt)
	default:
		q = q.Where("(status NOT IN ? OR last_event_at IS NULL OR last_event_at < ?)", terminalStatuses, *u.EventAt)
	}
	if u.EventAt != nil {
		// GREATEST ignores NULL, so the first event initialises the column.
		values["last_event_at"] = gorm.Expr("GREATEST(last_event_at, ?)", *u.EventAt)
	}
	if u.LapsedBefore != nil {
		q = q.Where("auto_renew = ? AND end_date < ?", false, *u.LapsedBefore)
	}
	return q, values, nil
}

func (r *gormRepository) ListLapsedSubscriptions(ctx context.Context, now time.Time, limit int) ([]*models.Subscription, error) {
	var subs []*models.Subscription
	err := r.db.WithContext(ctx).
		Where("auto_renew = ? AND end_date < ? AND status IN ?", false, now, EntitlingStatuses).
		Order("end_date").
		Limit(limit).
		Find(&subs).Error
	return subs, err
}

func (r *gormRepository) HasEntitledSubscription(ctx context.Context, userID, excludeID string, now time.Time) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.Subscription{}).
		Where("user_id = ? AND id <> ? AND status IN ? AND end_date > ?", userID, excludeID, EntitlingStatuses, now).
		Count(&n).Error
	return n > 0, err
}

func (r *gormRepository) InsertPayment(ctx context.Context, p *models.Payment) error {
	if p.ID == "" {
		p.ID = tool.GenerateUUIDV7()
	}
	if err := r.db.WithContext(ctx).Create(p).Error; err != nil {
		if IsUniqueViolation(err) {
			return fmt.Errorf("payment %s: %w", p.RazorpayPaymentID, ErrDuplicate)
		}
		return err
	}
	return nil
}

func (r *gormRepository) ListPayments(ctx context.Context, q *ListQuery) ([]*models.Payment, int64, error) {
	var items []*models.Payment
	total, err := list(r.db.WithContext(ctx).Model(&models.Payment{}), q, PaymentListFields, &items)
	return items, total, err
}

func (r *gormRepository) ActivateUserSubscription(ctx context.Context, userID string, planType types.PlanType, endDate *time.Time) error {
	return r.db.WithContext(ctx).
		Exec("SELECT activate_user_subscription(?, ?, ?)", userID, string(planType), endDate).Error
}

func (r *gormRepository) GetProfilePlan(ctx context.Context, userID string) (types.Plan, error) {
	var p models.Profile
	if err := r.db.WithContext(ctx).Select("plan").Where("user_id = ?", userID).Take(&p).Error; err != nil {
		return "", notFound(err)
	}
	return p.Plan, nil
}

func (r *gormRepository) SetProfilePlan(ctx context.Context, userID string, plan types.Plan) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Profile{}).
		Where("user_id = ? AND plan <> ?", userID, plan).
		Updates(map[string]interface{}{"plan": plan, "updated_at": r.now()})
	return res.RowsAffected > 0, res.Error
}

func (r *gormRepository) DeleteUserRole(ctx context.Context, userID string, role types.Role) error {
	return r.db.WithContext(ctx).Where("user_id = ? AND role = ?", userID, role).Delete(&models.UserRole{}).Error
}

func (r *gormRepository) EnsureUserRole(ctx context.Context, userID string, role types.Role) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}, {Name: "role"}}, DoNothing: true}).
		Create(&models.UserRole{ID: tool.GenerateUUIDV7(), UserID: userID, Role: role, CreatedAt: r.now()}).Error
}

func (r *gormRepository) InsertPlanHistory(ctx context.Context, h *models.PlanHistory) error {
	if h.ID == "" {
		h.ID = tool.GenerateUUIDV7()
	}
	return r.db.WithContext(ctx).Create(h).Error
}

func (r *gormRepository) SaveWebhookLog(ctx context.Context, l *models.PaymentWebhookLog) error {
	if l.ID == "" {
		l.ID = tool.GenerateUUIDV7()
	}
	return r.db.WithContext(ctx).Save(l).Error
}

func (r *gormRepository) ListWebhookLogs(ctx context.Context, q *ListQuery) ([]*models.PaymentWebhookLog, int64, error) {
	var items []*models.PaymentWebhookLog
	total, err := list(r.db.WithContext(ctx).Model(&models.PaymentWebhookLog{}), q, WebhookLogListFields, &items)
	return items, total, err
}

func list(db *gorm.DB, q *ListQuery, allowed []string, dst interface{}) (int64, error) {
	if err := q.Filters.Validate(allowed); err != nil {
		return 0, err
	}
	sortBy := q.SortBy
	if sortBy == "" {
		sortBy = "created_at"
	}
	allowedSort := false
	for _, f := range allowed {
		if f == sortBy {
			allowedSort = true
			break
		}
	}
	if !allowedSort {
		return 0, fmt.Errorf("sort on field %q is not allowed", sortBy)
	}

	db = db.Where(clause.Where{Exprs: []clause.Expression{q.Filters}})
	var total int64
	if err := db.Count(&total).Error; err != nil {
		return 0, err
	}
	size := q.Size
	if size <= 0 || size > 500 {
		size = 100
	}
	err := db.Order(clause.OrderByColumn{Column: clause.Column{Name: sortBy}, Desc: q.SortOrder != "asc"}).
		Offset(max(q.From, 0)).Limit(size).Find(dst).Error
	return total, err
}
