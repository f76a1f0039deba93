package webhook

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/samber/lo"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/himnu2025-blip/synka-billing/internal/app/service/reconciler"
	webhooklog "github.com/himnu2025-blip/synka-billing/internal/app/service/webhook_log"
	"github.com/himnu2025-blip/synka-billing/internal/models"
	"github.com/himnu2025-blip/synka-billing/internal/platform/razorpay"
	"github.com/himnu2025-blip/synka-billing/pkg/config"
	"github.com/himnu2025-blip/synka-billing/pkg/logctx"
	"github.com/himnu2025-blip/synka-billing/pkg/metrics"
)

// Delivery is one webhook request as received from the gateway.
type Delivery struct {
	Body      []byte
	Signature string
	EventID   string
}

// EventHandler applies a parsed event to stored state.
type EventHandler interface {
	Handle(ctx context.Context, ev razorpay.Event) (*reconciler.Result, error)
}

// AuditLog persists webhook log rows.
type AuditLog interface {
	Save(ctx context.Context, entry *models.PaymentWebhookLog)
}

// Service authenticates deliveries and hands them to the reconciler.
type Service struct {
	verifier *razorpay.Verifier
	handler  EventHandler
	audit    AuditLog
	metrics  *metrics.Billing
	log      *zap.SugaredLogger
}

func NewService(cfg *config.Config, rec *reconciler.Service, audit *webhooklog.Service, m *metrics.Billing, log *zap.SugaredLogger) *Service {
	return New(razorpay.NewVerifier(cfg.Razorpay.WebhookSecret), rec, audit, m, log)
}

func New(verifier *razorpay.Verifier, handler EventHandler, audit AuditLog, m *metrics.Billing, log *zap.SugaredLogger) *Service {
	return &Service{verifier: verifier, handler: handler, audit: audit, metrics: m, log: log}
}

// Process verifies, parses and applies one delivery.
//
// Signature failures wrap razorpay.ErrMissingSignature or
// razorpay.ErrInvalidSignature and nothing is written. Any other error means
// no state changed and the gateway should redeliver.
func (s *Service) Process(ctx context.Context, d *Delivery) (*reconciler.Result, error) {
	lg := logctx.FromCtx(ctx, s.log)
	if err := s.verifier.Verify(d.Body, d.Signature); err != nil {
		s.metrics.WebhookEvent("", metrics.OutcomeUnauthenticated)
		lg.Warnw("webhook signature rejected", "err", err)
		return nil, err
	}

	ev, err := razorpay.ParseEvent(d.Body)
	if err != nil {
		s.metrics.WebhookEvent("", metrics.OutcomeMalformed)
		lg.Errorw("malformed webhook payload", "err", err)
		s.audit.Save(ctx, &models.PaymentWebhookLog{
			EventID: lo.EmptyableToPtr(d.EventID),
			TraceID: logctx.TraceID(ctx),
			Data:    rawPayload(d.Body),
			Result:  resultJSON(nil, err),
			Status:  models.PaymentWebhookLogStatusHandleFailed,
		})
		return nil, err
	}
	h := ev.EventHeader()
	ctx, lg = logctx.With(ctx, s.log, "event", h.Type, "event_id", d.EventID)
	lg.Infow("webhook received")

	s.audit.Save(ctx, s.logEntry(ctx, ev, d, models.PaymentWebhookLogStatusReceived, nil))

	res, err := s.handler.Handle(ctx, ev)
	s.audit.Save(ctx, s.logEntry(ctx, ev, d, logStatus(res, err), resultJSON(res, err)))
	if err != nil {
		s.metrics.WebhookEvent(string(h.Type), metrics.OutcomeFailed)
		lg.Errorw("webhook processing failed", "err", err)
		return nil, fmt.Errorf("failed to handle %s: %w", h.Type, err)
	}

	s.metrics.WebhookEvent(string(h.Type), string(res.Outcome))
	lg.Infow("webhook processed", "outcome", res.Outcome, "detail", res.Detail)
	return res, nil
}

func (s *Service) logEntry(ctx context.Context, ev razorpay.Event, d *Delivery, status models.PaymentWebhookLogStatus, result *datatypes.JSON) *models.PaymentWebhookLog {
	h := ev.EventHeader()
	entry := &models.PaymentWebhookLog{
		EventID:        lo.EmptyableToPtr(d.EventID),
		Event:          string(h.Type),
		TraceID:        logctx.TraceID(ctx),
		EventCreatedAt: h.CreatedAt,
		Data:           rawPayload(d.Body),
		Result:         result,
		Status:         status,
	}
	switch e := ev.(type) {
	case *razorpay.PaymentEvent:
		entry.RazorpayPaymentID = lo.ToPtr(e.Payment.ID)
		entry.RazorpayOrderID = e.Payment.OrderID
		entry.RazorpaySubscriptionID = e.Payment.SubscriptionID
	case *razorpay.OrderEvent:
		entry.RazorpayOrderID = lo.ToPtr(e.Order.ID)
		if e.Payment != nil {
			entry.RazorpayPaymentID = lo.ToPtr(e.Payment.ID)
		}
	case *razorpay.SubscriptionEvent:
		entry.RazorpaySubscriptionID = lo.ToPtr(e.Subscription.ID)
		if e.Payment != nil {
			entry.RazorpayPaymentID = lo.ToPtr(e.Payment.ID)
		}
	}
	return entry
}

func logStatus(res *reconciler.Result, err error) models.PaymentWebhookLogStatus {
	switch {
	case err != nil:
		return models.PaymentWebhookLogStatusHandleFailed
	case res.Outcome == reconciler.OutcomeRejected:
		return models.PaymentWebhookLogStatusHandleFailed
	case res.Outcome == reconciler.OutcomeApplied:
		return models.PaymentWebhookLogStatusHandled
	default:
		return models.PaymentWebhookLogStatusIgnored
	}
}

func resultJSON(res *reconciler.Result, err error) *datatypes.JSON {
	m := map[string]any{}
	if res != nil {
		m["outcome"] = res.Outcome
		if res.Detail != "" {
			m["detail"] = res.Detail
		}
		if len(res.Changes) > 0 {
			m["changes"] = res.Changes
		}
	}
	if err != nil {
		m["error"] = err.Error()
	}
	b, _ := json.Marshal(m)
	j := datatypes.JSON(b)
	return &j
}

// rawPayload keeps the body in the jsonb column even when it is not valid
// JSON.
func rawPayload(body []byte) datatypes.JSON {
	if json.Valid(body) {
		return datatypes.JSON(body)
	}
	b, _ := json.Marshal(string(body))
	return datatypes.JSON(b)
}
