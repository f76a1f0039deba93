package models

import (
	"time"

	"gorm.io/datatypes"
)

type PaymentWebhookLogStatus string

const (
	PaymentWebhookLogStatusReceived     PaymentWebhookLogStatus = "received"
	PaymentWebhookLogStatusHandled      PaymentWebhookLogStatus = "handled"
	PaymentWebhookLogStatusIgnored      PaymentWebhookLogStatus = "ignored"
	PaymentWebhookLogStatusHandleFailed PaymentWebhookLogStatus = "handle_failed"
)

// PaymentWebhookLog records every verified webhook delivery and its outcome.
type PaymentWebhookLog struct {
	ID                     string                  `gorm:"column:id;type:uuid;primary_key" json:"id"`
	EventID                *string                 `gorm:"column:event_id;type:varchar(128);index" json:"event_id"`
	Event                  string                  `gorm:"column:event;type:varchar(64);not null;index" json:"event"`
	TraceID                string                  `gorm:"column:trace_id;type:varchar(128)" json:"trace_id"`
	RazorpayPaymentID      *string                 `gorm:"column:razorpay_payment_id;type:varchar(64)" json:"razorpay_payment_id"`
	RazorpaySubscriptionID *string                 `gorm:"column:razorpay_subscription_id;type:varchar(64)" json:"razorpay_subscription_id"`
	RazorpayOrderID        *string                 `gorm:"column:razorpay_order_id;type:varchar(64)" json:"razorpay_order_id"`
	EventCreatedAt         *time.Time              `gorm:"column:event_created_at" json:"event_created_at"`
	Data                   datatypes.JSON          `gorm:"column:data;type:jsonb" json:"data"`
	Result                 *datatypes.JSON         `gorm:"column:result;type:jsonb" json:"result"`
	Status                 PaymentWebhookLogStatus `gorm:"column:status;type:varchar(32);not null" json:"status"`
	CreatedAt              time.Time               `json:"created_at"`
	UpdatedAt              time.Time               `json:"updated_at"`
}

func (PaymentWebhookLog) TableName() string { return "payment_webhook_log" }
