// Package repotest provides an in-memory repository.Repository for tests.
package repotest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/himnu2025-blip/synka-billing/internal/models"
	"github.com/himnu2025-blip/synka-billing/internal/repository"
	"github.com/himnu2025-blip/synka-billing/pkg/tool"
	"github.com/himnu2025-blip/synka-billing/pkg/types"
)

// Activation records one activate_user_subscription call.
type Activation struct {
	UserID   string
	PlanType types.PlanType
	EndDate  *time.Time
}

type state struct {
	orders        map[string]models.Order
	subscriptions map[string]models.Subscription
	payments      []models.Payment
	profiles      map[string]models.Profile
	roles         []models.UserRole
	planHistory   []models.PlanHistory
	webhookLogs   map[string]models.PaymentWebhookLog
	activations   []Activation
}

func (s *state) clone() *state {
	c := &state{
		orders:        lo.Assign(s.orders),
		subscriptions: lo.Assign(s.subscriptions),
		payments:      append([]models.Payment(nil), s.payments...),
		profiles:      lo.Assign(s.profiles),
		roles:         append([]models.UserRole(nil), s.roles...),
		planHistory:   append([]models.PlanHistory(nil), s.planHistory...),
		webhookLogs:   lo.Assign(s.webhookLogs),
		activations:   append([]Activation(nil), s.activations...),
	}
	return c
}

// Fake is a goroutine-safe in-memory Repository. Transactions are serialized
// and roll back every change when fn fails.
type Fake struct {
	txMu sync.Mutex
	mu   sync.Mutex
	st   *state

	writes int
	fail   map[string]error
}

var _ repository.Repository = (*Fake)(nil)

func New() *Fake {
	return &Fake{
		st: &state{
			orders:        map[string]models.Order{},
			subscriptions: map[string]models.Subscription{},
			profiles:      map[string]models.Profile{},
			webhookLogs:   map[string]models.PaymentWebhookLog{},
		},
		fail: map[string]error{},
	}
}

// FailOn makes the named method return err until cleared with a nil err.
func (f *Fake) FailOn(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.fail, method)
		return
	}
	f.fail[method] = err
}

// Writes counts mutating statements, including rolled back ones.
func (f *Fake) Writes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writes
}

func (f *Fake) write(method string) error {
	if err := f.fail[method]; err != nil {
		return err
	}
	f.writes++
	return nil
}

// Seeding helpers.

func (f *Fake) AddOrder(o models.Order) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.st.orders[o.ID] = o
}

func (f *Fake) AddSubscription(s models.Subscription) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.st.subscriptions[s.ID] = s
}

func (f *Fake) AddProfile(userID string, plan types.Plan) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.st.profiles[userID] = models.Profile{ID: tool.GenerateUUIDV7(), UserID: userID, Plan: plan}
}

func (f *Fake) AddRole(userID string, role types.Role) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.st.roles = append(f.st.roles, models.UserRole{ID: tool.GenerateUUIDV7(), UserID: userID, Role: role})
}

// Inspection helpers.

func (f *Fake) Order(id string) models.Order {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.st.orders[id]
}

func (f *Fake) Subscription(id string) models.Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.st.subscriptions[id]
}

func (f *Fake) Payments() []models.Payment {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Payment(nil), f.st.payments...)
}

func (f *Fake) ProfilePlan(userID string) types.Plan {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.st.profiles[userID].Plan
}

// Roles returns userID's roles in grant order.
func (f *Fake) Roles(userID string) []types.Role {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []types.Role
	for _, r := range f.st.roles {
		if r.UserID == userID {
			out = append(out, r.Role)
		}
	}
	return out
}

func (f *Fake) PlanHistory(userID string) []models.PlanHistory {
	f.mu.Lock()
	defer f.mu.Unlock()
	return lo.Filter(f.st.planHistory, func(h models.PlanHistory, _ int) bool { return h.UserID == userID })
}

func (f *Fake) Activations() []Activation {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Activation(nil), f.st.activations...)
}

func (f *Fake) WebhookLogs() []models.PaymentWebhookLog {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := lo.Values(f.st.webhookLogs)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Repository implementation.

func (f *Fake) Transaction(ctx context.Context, fn func(tx repository.Repository) error) error {
	f.txMu.Lock()
	defer f.txMu.Unlock()

	f.mu.Lock()
	if err := f.fail["Transaction"]; err != nil {
		f.mu.Unlock()
		return err
	}
	snapshot := f.st.clone()
	f.mu.Unlock()

	if err := fn(f); err != nil {
		f.mu.Lock()
		// webhook logs are written outside transactions and survive rollback
		snapshot.webhookLogs = f.st.webhookLogs
		f.st = snapshot
		f.mu.Unlock()
		return err
	}
	return nil
}

func (f *Fake) FindOrderByGatewayID(_ context.Context, razorpayOrderID string) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail["FindOrderByGatewayID"]; err != nil {
		return nil, err
	}
	for _, o := range f.st.orders {
		if o.RazorpayOrderID != nil && *o.RazorpayOrderID == razorpayOrderID {
			return &o, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *Fake) MarkOrder(_ context.Context, orderID string, status types.OrderStatus, razorpayPaymentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.write("MarkOrder"); err != nil {
		return err
	}
	o, ok := f.st.orders[orderID]
	if !ok {
		return nil
	}
	o.Status = status
	o.RazorpayPaymentID = &razorpayPaymentID
	f.st.orders[orderID] = o
	return nil
}

func (f *Fake) FindSubscriptionByGatewayID(_ context.Context, razorpaySubscriptionID string) (*models.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail["FindSubscriptionByGatewayID"]; err != nil {
		return nil, err
	}
	for _, s := range f.st.subscriptions {
		if s.RazorpaySubscriptionID != nil && *s.RazorpaySubscriptionID == razorpaySubscriptionID {
			return &s, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *Fake) ApplySubscriptionUpdate(_ context.Context, id string, u *repository.SubscriptionUpdate) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.write("ApplySubscriptionUpdate"); err != nil {
		return false, err
	}
	s, ok := f.st.subscriptions[id]
	if !ok {
		return false, nil
	}
	if !repository.UpdateApplies(&s, u) {
		return false, nil
	}

	if u.Status != nil {
		s.Status = *u.Status
	}
	if u.PaymentStatus != nil {
		s.PaymentStatus = *u.PaymentStatus
	}
	if u.AutoRenew != nil {
		s.AutoRenew = *u.AutoRenew
	}
	if u.MandateCreated != nil {
		s.MandateCreated = *u.MandateCreated
	}
	if u.EndDate != nil {
		s.EndDate = lo.ToPtr(*u.EndDate)
	}
	if u.CurrentPeriodStart != nil {
		s.CurrentPeriodStart = lo.ToPtr(*u.CurrentPeriodStart)
	}
	if u.CurrentPeriodEnd != nil {
		s.CurrentPeriodEnd = lo.ToPtr(*u.CurrentPeriodEnd)
	}
	if u.RazorpayPaymentID != nil {
		s.RazorpayPaymentID = lo.ToPtr(*u.RazorpayPaymentID)
	}
	if u.ClearCancellation {
		s.CancelledAt, s.CancellationReason = nil, nil
	} else {
		if u.CancelledAt != nil {
			s.CancelledAt = lo.ToPtr(*u.CancelledAt)
		}
		if u.CancellationReason != nil {
			s.CancellationReason = lo.ToPtr(*u.CancellationReason)
		}
	}
	if len(u.MergeNotes) > 0 {
		notes := lo.Assign(map[string]interface{}(s.Notes), u.MergeNotes)
		s.Notes = notes
	}
	if u.EventAt != nil && (s.LastEventAt == nil || s.LastEventAt.Before(*u.EventAt)) {
		s.LastEventAt = lo.ToPtr(*u.EventAt)
	}
	s.UpdatedAt = time.Now().UTC()
	f.st.subscriptions[id] = s
	return true, nil
}

func (f *Fake) ListLapsedSubscriptions(_ context.Context, now time.Time, limit int) ([]*models.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail["ListLapsedSubscriptions"]; err != nil {
		return nil, err
	}
	var out []*models.Subscription
	for _, s := range f.st.subscriptions {
		if !s.AutoRenew && s.EndDate != nil && s.EndDate.Before(now) && lo.Contains(repository.EntitlingStatuses, s.Status) {
			out = append(out, lo.ToPtr(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EndDate.Before(*out[j].EndDate) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *Fake) HasEntitledSubscription(_ context.Context, userID, excludeID string, now time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.st.subscriptions {
		if s.UserID == userID && s.ID != excludeID && lo.Contains(repository.EntitlingStatuses, s.Status) &&
			s.EndDate != nil && s.EndDate.After(now) {
			return true, nil
		}
	}
	return false, nil
}

func (f *Fake) InsertPayment(_ context.Context, p *models.Payment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.write("InsertPayment"); err != nil {
		return err
	}
	for _, existing := range f.st.payments {
		if existing.RazorpayPaymentID == p.RazorpayPaymentID {
			return fmt.Errorf("payment %s: %w", p.RazorpayPaymentID, repository.ErrDuplicate)
		}
	}
	if p.ID == "" {
		p.ID = tool.GenerateUUIDV7()
	}
	f.st.payments = append(f.st.payments, *p)
	return nil
}

func (f *Fake) ListPayments(_ context.Context, q *repository.ListQuery) ([]*models.Payment, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := q.Filters.Validate(repository.PaymentListFields); err != nil {
		return nil, 0, err
	}
	items := lo.Map(f.st.payments, func(p models.Payment, _ int) *models.Payment { return lo.ToPtr(p) })
	return page(items, q), int64(len(items)), nil
}

func (f *Fake) ActivateUserSubscription(_ context.Context, userID string, planType types.PlanType, endDate *time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.write("ActivateUserSubscription"); err != nil {
		return err
	}
	f.st.activations = append(f.st.activations, Activation{UserID: userID, PlanType: planType, EndDate: endDate})
	// mirrors the procedure: Orange plan plus orange role
	if p, ok := f.st.profiles[userID]; ok {
		p.Plan = types.PlanOrange
		f.st.profiles[userID] = p
	}
	if !lo.ContainsBy(f.st.roles, func(r models.UserRole) bool { return r.UserID == userID && r.Role == types.RoleOrange }) {
		f.st.roles = append(f.st.roles, models.UserRole{ID: tool.GenerateUUIDV7(), UserID: userID, Role: types.RoleOrange})
	}
	return nil
}

func (f *Fake) GetProfilePlan(_ context.Context, userID string) (types.Plan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.st.profiles[userID]
	if !ok {
		return "", repository.ErrNotFound
	}
	return p.Plan, nil
}

func (f *Fake) SetProfilePlan(_ context.Context, userID string, plan types.Plan) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.write("SetProfilePlan"); err != nil {
		return false, err
	}
	p, ok := f.st.profiles[userID]
	if !ok || p.Plan == plan {
		return false, nil
	}
	p.Plan = plan
	f.st.profiles[userID] = p
	return true, nil
}

func (f *Fake) DeleteUserRole(_ context.Context, userID string, role types.Role) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.write("DeleteUserRole"); err != nil {
		return err
	}
	f.st.roles = lo.Reject(f.st.roles, func(r models.UserRole, _ int) bool { return r.UserID == userID && r.Role == role })
	return nil
}

func (f *Fake) EnsureUserRole(_ context.Context, userID string, role types.Role) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.write("EnsureUserRole"); err != nil {
		return err
	}
	if lo.ContainsBy(f.st.roles, func(r models.UserRole) bool { return r.UserID == userID && r.Role == role }) {
		return nil
	}
	f.st.roles = append(f.st.roles, models.UserRole{ID: tool.GenerateUUIDV7(), UserID: userID, Role: role})
	return nil
}

func (f *Fake) InsertPlanHistory(_ context.Context, h *models.PlanHistory) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.write("InsertPlanHistory"); err != nil {
		return err
	}
	if h.ID == "" {
		h.ID = tool.GenerateUUIDV7()
	}
	f.st.planHistory = append(f.st.planHistory, *h)
	return nil
}

func (f *Fake) SaveWebhookLog(_ context.Context, l *models.PaymentWebhookLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.write("SaveWebhookLog"); err != nil {
		return err
	}
	if l.ID == "" {
		l.ID = tool.GenerateUUIDV7()
	}
	f.st.webhookLogs[l.ID] = *l
	return nil
}

func (f *Fake) ListWebhookLogs(_ context.Context, q *repository.ListQuery) ([]*models.PaymentWebhookLog, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := q.Filters.Validate(repository.WebhookLogListFields); err != nil {
		return nil, 0, err
	}
	items := lo.MapToSlice(f.st.webhookLogs, func(_ string, l models.PaymentWebhookLog) *models.PaymentWebhookLog { return lo.ToPtr(l) })
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return page(items, q), int64(len(items)), nil
}

func page[T any](items []T, q *repository.ListQuery) []T {
	from := max(q.From, 0)
	if from >= len(items) {
		return nil
	}
	size := q.Size
	if size <= 0 {
		size = 100
	}
	return items[from:min(from+size, len(items))]
}
