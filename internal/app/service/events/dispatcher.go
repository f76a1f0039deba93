package events

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/himnu2025-blip/synka-billing/pkg/logctx"
	"github.com/himnu2025-blip/synka-billing/pkg/metrics"
)

const publishTimeout = 3 * time.Second

// Dispatcher fans entitlement changes out to every configured sink. Delivery
// is best effort: failures are logged and counted, never returned.
type Dispatcher struct {
	publishers []Publisher
	log        *zap.SugaredLogger
	metrics    *metrics.Billing
}

func NewDispatcher(log *zap.SugaredLogger, m *metrics.Billing, publishers ...Publisher) *Dispatcher {
	return &Dispatcher{publishers: publishers, log: log, metrics: m}
}

func (d *Dispatcher) Publish(ctx context.Context, changes ...*EntitlementChanged) {
	if len(d.publishers) == 0 || len(changes) == 0 {
		return
	}
	// the webhook response must not depend on sink latency or cancellation
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	lg := logctx.FromCtx(ctx, d.log)
	for _, ev := range changes {
		for _, p := range d.publishers {
			if err := p.Publish(ctx, ev); err != nil {
				d.metrics.PublishFailed(p.Name())
				lg.Warnw("entitlement event not delivered", "sink", p.Name(), "user_id", ev.UserID, "reason", ev.Reason, "err", err)
			}
		}
	}
}

func (d *Dispatcher) Close() error {
	var errs []error
	for _, p := range d.publishers {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
