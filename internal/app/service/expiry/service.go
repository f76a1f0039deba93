package expiry

import (
	"context"
	"errors"
	"fmt"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/himnu2025-blip/synka-billing/internal/app/service/events"
	"github.com/himnu2025-blip/synka-billing/internal/app/service/reconciler"
	"github.com/himnu2025-blip/synka-billing/internal/repository"
	"github.com/himnu2025-blip/synka-billing/pkg/logctx"
	"github.com/himnu2025-blip/synka-billing/pkg/metrics"
	"github.com/himnu2025-blip/synka-billing/pkg/types"
)

const batchSize = 500

// Report summarizes one sweep.
type Report struct {
	Scanned    int `json:"scanned"`
	Expired    int `json:"expired"`
	Downgraded int `json:"downgraded"`
}

// Service ends the grace period of cancelled subscriptions: rows that no
// longer renew and whose end date has passed move to expired, and their
// users lose paid access unless another subscription still grants it.
type Service struct {
	repo       repository.Repository
	reconciler *reconciler.Service
	metrics    *metrics.Billing
	log        *zap.SugaredLogger
}

func NewService(repo repository.Repository, rec *reconciler.Service, m *metrics.Billing, log *zap.SugaredLogger) *Service {
	return &Service{repo: repo, reconciler: rec, metrics: m, log: log}
}

// Run sweeps one batch of lapsed subscriptions. A failing row is logged and
// retried on the next run; it does not stop the others.
func (s *Service) Run(ctx context.Context) (*Report, error) {
	now := s.reconciler.Now()
	lg := logctx.FromCtx(ctx, s.log)

	lapsed, err := s.repo.ListLapsedSubscriptions(ctx, now, batchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list lapsed subscriptions: %w", err)
	}

	report := &Report{Scanned: len(lapsed)}
	var changes []*events.EntitlementChanged
	var errs []error
	for _, sub := range lapsed {
		var expired bool
		var change *events.EntitlementChanged
		err := s.repo.Transaction(ctx, func(tx repository.Repository) error {
			u := &repository.SubscriptionUpdate{
				Status:       lo.ToPtr(types.SubscriptionStatusExpired),
				LapsedBefore: &now,
			}
			if sub.CancellationReason == nil {
				u.CancellationReason = lo.ToPtr(types.CancellationReasonExpired)
			}
			applied, err := tx.ApplySubscriptionUpdate(ctx, sub.ID, u)
			if err != nil {
				return fmt.Errorf("failed to expire subscription: %w", err)
			}
			if !applied {
				// renewed since it was listed
				return nil
			}
			expired = true

			entitled, err := tx.HasEntitledSubscription(ctx, sub.UserID, sub.ID, now)
			if err != nil {
				return fmt.Errorf("failed to check other subscriptions: %w", err)
			}
			if entitled {
				return nil
			}
			change, err = s.reconciler.Downgrade(ctx, tx, sub.UserID, events.ReasonExpired, now)
			if err != nil {
				return err
			}
			change.SubscriptionID = lo.FromPtr(sub.RazorpaySubscriptionID)
			return nil
		})
		if err != nil {
			lg.Errorw("failed to expire subscription", "subscription_id", sub.ID, "user_id", sub.UserID, "err", err)
			errs = append(errs, fmt.Errorf("subscription %s: %w", sub.ID, err))
			continue
		}
		if expired {
			report.Expired++
		}
		if change != nil {
			report.Downgraded++
			changes = append(changes, change)
		}
	}

	s.metrics.Expired(report.Expired)
	s.reconciler.Publish(ctx, changes...)
	if report.Scanned > 0 {
		lg.Infow("expiry sweep finished", "scanned", report.Scanned, "expired", report.Expired, "downgraded", report.Downgraded)
	}
	return report, errors.Join(errs...)
}
