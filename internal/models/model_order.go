package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"github.com/himnu2025-blip/synka-billing/pkg/types"
)

// Order is a one-time purchase such as a physical card.
type Order struct {
	ID                string            `gorm:"column:id;type:uuid;primary_key" json:"id"`
	UserID            string            `gorm:"column:user_id;type:uuid;not null;index" json:"user_id"`
	OrderNumber       string            `gorm:"column:order_number;type:varchar(64);not null" json:"order_number"`
	ProductType       string            `gorm:"column:product_type;type:varchar(64);not null" json:"product_type"`
	CardVariant       *string           `gorm:"column:card_variant;type:varchar(64)" json:"card_variant"`
	Quantity          int               `gorm:"column:quantity;not null;default:1" json:"quantity"`
	Amount            decimal.Decimal   `gorm:"column:amount;type:numeric(12,2);not null" json:"amount"`
	Currency          string            `gorm:"column:currency;type:varchar(8);not null;default:'INR'" json:"currency"`
	Status            types.OrderStatus `gorm:"column:status;type:varchar(32);not null" json:"status"`
	RazorpayOrderID   *string           `gorm:"column:razorpay_order_id;type:varchar(64);uniqueIndex" json:"razorpay_order_id"`
	RazorpayPaymentID *string           `gorm:"column:razorpay_payment_id;type:varchar(64)" json:"razorpay_payment_id"`
	Notes             datatypes.JSONMap `gorm:"column:notes;type:jsonb;default:'{}'" json:"notes"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

func (Order) TableName() string { return "orders" }
