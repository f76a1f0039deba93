package expiry

import (
	"context"

	"github.com/robfig/cron/v3"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/himnu2025-blip/synka-billing/pkg/config"
	"github.com/himnu2025-blip/synka-billing/pkg/logctx"
	"github.com/himnu2025-blip/synka-billing/pkg/tool"
)

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	log *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Errorw(msg, append(keysAndValues, "err", err)...)
}

// NewScheduler returns a cron running the sweep on spec. Overlapping runs are
// skipped.
func NewScheduler(spec string, svc *Service, log *zap.SugaredLogger) (*cron.Cron, error) {
	l := cronLogger{log: log.Named("expiry")}
	c := cron.New(
		cron.WithLogger(l),
		cron.WithChain(cron.Recover(l), cron.SkipIfStillRunning(l)),
	)
	_, err := c.AddFunc(spec, func() {
		ctx := logctx.WithTraceID(context.Background(), tool.GenerateUUIDV7())
		if _, err := svc.Run(ctx); err != nil {
			logctx.FromCtx(ctx, log).Errorw("expiry sweep failed", "err", err)
		}
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

func registerScheduler(lc fx.Lifecycle, cfg *config.Config, svc *Service, log *zap.SugaredLogger) error {
	if !cfg.Expiry.Enabled {
		log.Infow("expiry sweep disabled")
		return nil
	}
	c, err := NewScheduler(cfg.Expiry.Cron, svc, log)
	if err != nil {
		return err
	}
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			c.Start()
			log.Infow("expiry sweep scheduled", "cron", cfg.Expiry.Cron)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			select {
			case <-c.Stop().Done():
			case <-ctx.Done():
			}
			return nil
		},
	})
	return nil
}

// Module exposes the expiry service via Fx and schedules it when enabled.
var Module = fx.Options(
	fx.Provide(NewService),
	fx.Invoke(registerScheduler),
)
