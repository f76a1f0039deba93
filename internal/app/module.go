package app

import (
	"time"

	"go.uber.org/fx"

	"github.com/himnu2025-blip/synka-billing/internal/app/api/server"
	"github.com/himnu2025-blip/synka-billing/internal/app/service/events"
	"github.com/himnu2025-blip/synka-billing/internal/app/service/expiry"
	"github.com/himnu2025-blip/synka-billing/internal/app/service/reconciler"
	"github.com/himnu2025-blip/synka-billing/internal/app/service/statistics"
	"github.com/himnu2025-blip/synka-billing/internal/app/service/webhook"
	webhooklog "github.com/himnu2025-blip/synka-billing/internal/app/service/webhook_log"
	"github.com/himnu2025-blip/synka-billing/internal/platform/db"
	"github.com/himnu2025-blip/synka-billing/internal/repository"
	"github.com/himnu2025-blip/synka-billing/pkg/config"
	"github.com/himnu2025-blip/synka-billing/pkg/logger"
	"github.com/himnu2025-blip/synka-billing/pkg/metrics"
)

const (
	DefaultStartTimeout = 15 * time.Second
	DefaultStopTimeout  = 10 * time.Second
)

var Module = fx.Options(
	logger.Module,
	config.Module,
	metrics.Module,
	db.Module,
	repository.Module,
	events.Module,
	reconciler.Module,
	webhooklog.Module,
	webhook.Module,
	expiry.Module,
	statistics.Module,
	server.Module,
)
