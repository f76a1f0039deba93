package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	mw "github.com/himnu2025-blip/synka-billing/internal/app/api/middleware"
	"github.com/himnu2025-blip/synka-billing/internal/app/service/reconciler"
	"github.com/himnu2025-blip/synka-billing/internal/app/service/webhook"
	"github.com/himnu2025-blip/synka-billing/internal/platform/razorpay"
	"github.com/himnu2025-blip/synka-billing/pkg/logctx"
	"github.com/himnu2025-blip/synka-billing/pkg/response"
)

const (
	msgNoSignature      = "No signature"
	msgInvalidSignature = "Invalid signature"
	msgProcessingFailed = "Webhook processing failed"
)

// WebhookProcessor handles one authenticated delivery.
type WebhookProcessor interface {
	Process(ctx context.Context, d *webhook.Delivery) (*reconciler.Result, error)
}

// @Summary      Razorpay Webhook
// @Description  Receives Razorpay payment and subscription events. The raw body is authenticated with the X-Razorpay-Signature header (hex HMAC-SHA256 keyed with the webhook secret).
// @Tags         Webhook
// @Accept       json
// @Produce      json
// @Param        X-Razorpay-Signature header string true "hex HMAC-SHA256 of the raw body"
// @Param        payload body object true "Razorpay webhook event"
// @Success      200  {object}  response.WebhookAck
// @Failure      400  {object}  response.WebhookError
// @Failure      500  {object}  response.WebhookError
// @Router       /api/v1/payment/webhook/razorpay [post]
// ApiRazorpayWebhook acknowledges with 200 whenever the event is applied or
// deliberately skipped, and with 500 when the gateway should redeliver.
func ApiRazorpayWebhook(p WebhookProcessor, maxBody int64, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		lg := logctx.FromGin(c, log)
		signature := c.GetHeader(razorpay.HeaderSignature)
		if signature == "" {
			lg.Warnw("webhook_razorpay_no_signature")
			c.JSON(http.StatusBadRequest, response.WebhookError{Error: msgNoSignature})
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxBody))
		if err != nil {
			// an unreadable body cannot be authenticated
			lg.Warnw("webhook_razorpay_unreadable_body", "error", err.Error())
			c.JSON(http.StatusBadRequest, response.WebhookError{Error: msgInvalidSignature})
			return
		}

		_, err = p.Process(c.Request.Context(), &webhook.Delivery{
			Body:      body,
			Signature: signature,
			EventID:   c.GetHeader(razorpay.HeaderEventID),
		})
		switch {
		case errors.Is(err, razorpay.ErrMissingSignature):
			c.JSON(http.StatusBadRequest, response.WebhookError{Error: msgNoSignature})
		case errors.Is(err, razorpay.ErrInvalidSignature):
			c.JSON(http.StatusBadRequest, response.WebhookError{Error: msgInvalidSignature})
		case err != nil:
			c.JSON(http.StatusInternalServerError, response.WebhookError{Error: msgProcessingFailed})
		default:
			c.JSON(http.StatusOK, response.WebhookAck{Received: true})
		}
	}
}

// @Summary      Razorpay Webhook preflight
// @Tags         Webhook
// @Success      200
// @Router       /api/v1/payment/webhook/razorpay [options]
func ApiWebhookPreflight(c *gin.Context) {
	c.Status(http.StatusOK)
}

// RegisterPaymentWebhookRoutes mounts the webhook under r, expected at
// "/api/v1/payment/webhook".
func RegisterPaymentWebhookRoutes(r gin.IRouter, p WebhookProcessor, maxBody int64, log *zap.SugaredLogger) {
	g := r.Group("", mw.CORSMiddleware())
	g.POST("/razorpay", ApiRazorpayWebhook(p, maxBody, log))
	g.OPTIONS("/razorpay", ApiWebhookPreflight)
}
