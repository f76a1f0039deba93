package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"github.com/himnu2025-blip/synka-billing/pkg/types"
)

// Payment is the immutable ledger row of one gateway payment attempt.
// RazorpayPaymentID is unique and doubles as the webhook idempotency key.
type Payment struct {
	ID                string                    `gorm:"column:id;type:uuid;primary_key" json:"id"`
	UserID            string                    `gorm:"column:user_id;type:uuid;not null;index" json:"user_id"`
	OrderID           *string                   `gorm:"column:order_id;type:uuid" json:"order_id"`
	SubscriptionID    *string                   `gorm:"column:subscription_id;type:uuid" json:"subscription_id"`
	RazorpayPaymentID string                    `gorm:"column:razorpay_payment_id;type:varchar(64);not null;uniqueIndex" json:"razorpay_payment_id"`
	RazorpayOrderID   *string                   `gorm:"column:razorpay_order_id;type:varchar(64)" json:"razorpay_order_id"`
	Amount            decimal.Decimal           `gorm:"column:amount;type:numeric(12,2);not null" json:"amount"`
	Currency          string                    `gorm:"column:currency;type:varchar(8);not null;default:'INR'" json:"currency"`
	Status            types.PaymentRecordStatus `gorm:"column:status;type:varchar(32);not null" json:"status"`
	Method            *string                   `gorm:"column:method;type:varchar(32)" json:"method"`
	ErrorCode         *string                   `gorm:"column:error_code;type:varchar(128)" json:"error_code"`
	ErrorDescription  *string                   `gorm:"column:error_description;type:text" json:"error_description"`
	Metadata          datatypes.JSONMap         `gorm:"column:metadata;type:jsonb;default:'{}'" json:"metadata"`
	CreatedAt         time.Time                 `json:"created_at"`
	UpdatedAt         time.Time                 `json:"updated_at"`
}

func (Payment) TableName() string { return "payments" }
