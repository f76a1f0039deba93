package webhook_log

import (
	"context"
	"sync"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/himnu2025-blip/synka-billing/internal/models"
	"github.com/himnu2025-blip/synka-billing/internal/repository"
	"github.com/himnu2025-blip/synka-billing/pkg/logctx"
	"github.com/himnu2025-blip/synka-billing/pkg/tool"
)

type Service struct {
	repo repository.Repository
	log  *zap.SugaredLogger
	wg   sync.WaitGroup
}

func New(repo repository.Repository, log *zap.SugaredLogger) *Service {
	return &Service{repo: repo, log: log}
}

// Save asynchronously persists a webhook log. Nil input is ignored. The log
// is written outside the event transaction so failed deliveries stay audited.
func (s *Service) Save(ctx context.Context, entry *models.PaymentWebhookLog) {
	if entry == nil {
		return
	}
	if entry.ID == "" {
		entry.ID = tool.GenerateUUIDV7()
	}
	lg := logctx.FromCtx(ctx, s.log)
	ctx = context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.repo.SaveWebhookLog(ctx, entry); err != nil {
			lg.Errorf("failed to save webhook log: %v", err)
		}
	}()
}

// Wait blocks until every pending Save has finished.
func (s *Service) Wait() { s.wg.Wait() }

func register(lc fx.Lifecycle, s *Service) {
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			s.Wait()
			return nil
		},
	})
}

// Module exposes the webhook log service via Fx and drains pending writes on
// shutdown.
var Module = fx.Options(
	fx.Provide(New),
	fx.Invoke(register),
)
