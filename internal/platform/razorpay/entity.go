package razorpay

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Payment is the payment entity of payment.* webhooks.
type Payment struct {
	ID               string          `json:"id" validate:"required"`
	Amount           int64           `json:"amount" validate:"gte=0"`
	Currency         string          `json:"currency" validate:"omitempty,len=3"`
	Status           string          `json:"status"`
	OrderID          *string         `json:"order_id"`
	InvoiceID        *string         `json:"invoice_id"`
	SubscriptionID   *string         `json:"subscription_id"`
	Method           *string         `json:"method"`
	Email            *string         `json:"email"`
	Contact          *string         `json:"contact"`
	ErrorCode        *string         `json:"error_code"`
	ErrorDescription *string         `json:"error_description"`
	ErrorReason      *string         `json:"error_reason"`
	Notes            json.RawMessage `json:"notes"`
	CreatedAt        int64           `json:"created_at"`
}

// Major converts the amount from paise to rupees.
func (p *Payment) Major() decimal.Decimal {
	return decimal.New(p.Amount, -2)
}

// Order is the order entity of order.paid.
type Order struct {
	ID         string          `json:"id" validate:"required"`
	Amount     int64           `json:"amount" validate:"gte=0"`
	AmountPaid int64           `json:"amount_paid"`
	Currency   string          `json:"currency"`
	Receipt    *string         `json:"receipt"`
	Status     string          `json:"status"`
	Attempts   int             `json:"attempts"`
	Notes      json.RawMessage `json:"notes"`
	CreatedAt  int64           `json:"created_at"`
}

// Subscription is the subscription entity of subscription.* webhooks.
// Timestamps are unix seconds and null until the gateway knows them.
type Subscription struct {
	ID             string          `json:"id" validate:"required"`
	PlanID         string          `json:"plan_id"`
	CustomerID     *string         `json:"customer_id"`
	Status         string          `json:"status"`
	CurrentStart   *int64          `json:"current_start"`
	CurrentEnd     *int64          `json:"current_end"`
	EndedAt        *int64          `json:"ended_at"`
	ChargeAt       *int64          `json:"charge_at"`
	StartAt        *int64          `json:"start_at"`
	EndAt          *int64          `json:"end_at"`
	TotalCount     int             `json:"total_count"`
	PaidCount      int             `json:"paid_count"`
	PaymentMethod  *string         `json:"payment_method"`
	CancelledBy    *string         `json:"cancelled_by"`
	Notes          json.RawMessage `json:"notes"`
	CreatedAt      int64           `json:"created_at"`
}

func (s *Subscription) CurrentStartTime() *time.Time { return unixTime(s.CurrentStart) }

func (s *Subscription) CurrentEndTime() *time.Time { return unixTime(s.CurrentEnd) }

func unixTime(sec *int64) *time.Time {
	if sec == nil || *sec <= 0 {
		return nil
	}
	t := time.Unix(*sec, 0).UTC()
	return &t
}
