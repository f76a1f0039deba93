package handlers

import (
	"github.com/himnu2025-blip/synka-billing/internal/app/service/expiry"
	"github.com/himnu2025-blip/synka-billing/internal/app/service/statistics"
	"github.com/himnu2025-blip/synka-billing/internal/models"
	"github.com/himnu2025-blip/synka-billing/pkg/response"
)

// RespOK is a generic OK envelope for endpoints returning no specific data.
type RespOK struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    interface{}              `json:"data"`
}

// RespListPayments wraps ListPaymentsResponse in the standard envelope.
type RespListPayments struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    ListPaymentsResponse     `json:"data"`
}

// RespListWebhookLogs wraps ListWebhookLogsResponse in the standard envelope.
type RespListWebhookLogs struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    ListWebhookLogsResponse  `json:"data"`
}

// RespSubscription wraps a subscription row in the standard envelope.
type RespSubscription struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    models.Subscription      `json:"data"`
}

// RespStatistics wraps statistics.Response in the standard envelope.
type RespStatistics struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    statistics.Response      `json:"data"`
}

// RespExpiryReport wraps expiry.Report in the standard envelope.
type RespExpiryReport struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    expiry.Report            `json:"data"`
}
