package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/himnu2025-blip/synka-billing/internal/app/service/expiry"
	"github.com/himnu2025-blip/synka-billing/internal/app/service/statistics"
	"github.com/himnu2025-blip/synka-billing/internal/models"
	"github.com/himnu2025-blip/synka-billing/internal/repository"
	"github.com/himnu2025-blip/synka-billing/pkg/response"
	"github.com/himnu2025-blip/synka-billing/pkg/types"
)

type ListRequest struct {
	Filters   types.Filters `json:"filters"`
	From      int           `json:"from"`
	Size      int           `json:"size"`
	SortBy    string        `json:"sort_by"`
	SortOrder string        `json:"sort_order" binding:"omitempty,oneof=asc desc"`
}

func (r *ListRequest) query() *repository.ListQuery {
	return &repository.ListQuery{Filters: r.Filters, From: r.From, Size: r.Size, SortBy: r.SortBy, SortOrder: r.SortOrder}
}

type ListPaymentsResponse struct {
	Items []*models.Payment `json:"items"`
	Total int64             `json:"total"`
}

type ListWebhookLogsResponse struct {
	Items []*models.PaymentWebhookLog `json:"items"`
	Total int64                       `json:"total"`
}

// StatisticsProvider computes dashboard statistics.
type StatisticsProvider interface {
	GetStatistics(ctx context.Context, request *statistics.Request) (*statistics.Response, error)
}

// ExpiryRunner runs one grace period sweep.
type ExpiryRunner interface {
	Run(ctx context.Context) (*expiry.Report, error)
}

// @Summary      List Payments (Admin)
// @Description  Retrieves a paginated and filterable list of recorded gateway payments.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body ListRequest true "List request with filters, pagination, and sorting"
// @Success      200  {object}  handlers.RespListPayments
// @Router       /api/v1/admin/payments/list [post]
func ApiListPayments(repo repository.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ListRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		if err := req.Filters.Validate(repository.PaymentListFields); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		items, total, err := repo.ListPayments(c.Request.Context(), req.query())
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(&ListPaymentsResponse{Items: items, Total: total}))
	}
}

// @Summary      List Webhook Logs (Admin)
// @Description  Retrieves the audit trail of verified webhook deliveries.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body ListRequest true "List request with filters, pagination, and sorting"
// @Success      200  {object}  handlers.RespListWebhookLogs
// @Router       /api/v1/admin/webhook_logs/list [post]
func ApiListWebhookLogs(repo repository.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ListRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		if err := req.Filters.Validate(repository.WebhookLogListFields); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		items, total, err := repo.ListWebhookLogs(c.Request.Context(), req.query())
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(&ListWebhookLogsResponse{Items: items, Total: total}))
	}
}

// @Summary      Get Subscription (Admin)
// @Description  Returns the stored subscription row for a gateway subscription id.
// @Tags         Admin
// @Produce      json
// @Security     BearerAuth
// @Param        razorpay_subscription_id path string true "Gateway subscription id"
// @Success      200  {object}  handlers.RespSubscription
// @Router       /api/v1/admin/subscriptions/{razorpay_subscription_id} [get]
func ApiGetSubscription(repo repository.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		sub, err := repo.FindSubscriptionByGatewayID(c.Request.Context(), c.Param("razorpay_subscription_id"))
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeNotFound, nil))
			return
		}
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(sub))
	}
}

// @Summary      Get Billing Statistics (Admin)
// @Description  Retrieves payment, revenue and subscription statistics.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body statistics.Request true "Statistic request parameters"
// @Success      200  {object}  handlers.RespStatistics
// @Router       /api/v1/admin/statistics [post]
func ApiGetStatistics(svc StatisticsProvider) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req statistics.Request
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		if err := req.Validate(); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		res, err := svc.GetStatistics(c.Request.Context(), &req)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

// @Summary      Run Expiry Sweep (Admin)
// @Description  Expires cancelled subscriptions whose paid period has ended and downgrades their users.
// @Tags         Admin
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  handlers.RespExpiryReport
// @Router       /api/v1/admin/expiry/run [post]
func ApiRunExpiry(runner ExpiryRunner) gin.HandlerFunc {
	return func(c *gin.Context) {
		report, err := runner.Run(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(report))
	}
}

func RegisterAdminRoutes(r gin.IRouter, repo repository.Repository, stats StatisticsProvider, runner ExpiryRunner) {
	r.POST("/payments/list", ApiListPayments(repo))
	r.POST("/webhook_logs/list", ApiListWebhookLogs(repo))
	r.GET("/subscriptions/:razorpay_subscription_id", ApiGetSubscription(repo))
	r.POST("/statistics", ApiGetStatistics(stats))
	r.POST("/expiry/run", ApiRunExpiry(runner))
}
