package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/himnu2025-blip/synka-billing/docs"
	"github.com/himnu2025-blip/synka-billing/internal/app/api/handlers"
	mw "github.com/himnu2025-blip/synka-billing/internal/app/api/middleware"
	"github.com/himnu2025-blip/synka-billing/internal/app/service/expiry"
	"github.com/himnu2025-blip/synka-billing/internal/app/service/statistics"
	"github.com/himnu2025-blip/synka-billing/internal/app/service/webhook"
	"github.com/himnu2025-blip/synka-billing/internal/repository"
	cfgpkg "github.com/himnu2025-blip/synka-billing/pkg/config"
	"github.com/himnu2025-blip/synka-billing/pkg/metrics"
)

func newEngine(cfg *cfgpkg.Config) *gin.Engine {
	if cfg.Env == cfgpkg.EnvProd {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	// Add request tracing middleware only; request logger & access log are attached per group in registerRoutes
	r.Use(mw.TraceMiddleware())
	return r
}

func newPrometheus(reg prometheus.Registerer, gatherer prometheus.Gatherer, log *zap.SugaredLogger) *metrics.Prometheus {
	return metrics.NewPrometheus(metrics.NewPrometheusOptions{
		Subsystem:  "http",
		Registerer: reg,
		Gatherer:   gatherer,
		Logger:     log,
	})
}

func registerRoutes(r *gin.Engine, log *zap.SugaredLogger, cfg *cfgpkg.Config, prom *metrics.Prometheus, repo repository.Repository, hook *webhook.Service, stats *statistics.Service, exp *expiry.Service) {
	prom.Use(r)

	// Public group: request logger + access log
	pub := r.Group("/")
	pub.Use(mw.RequestLoggerMiddleware(log), mw.AccessLogMiddleware(log))
	handlers.RegisterHealthRoutes(pub)
	// Swagger UI
	docs.SwaggerInfo.BasePath = "/"
	pub.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	apiV1 := r.Group("/api/v1")
	apiV1.Use(mw.RequestLoggerMiddleware(log), mw.AccessLogMiddleware(log))

	// Gateway webhook, authenticated by its body signature
	handlers.RegisterPaymentWebhookRoutes(apiV1.Group("/payment/webhook"), hook, cfg.Server.MaxBodyBytes, log)

	// Admin APIs, service tokens only
	admin := apiV1.Group("/admin", mw.AdminAuthMiddleware(cfg.Admin.JWTSecret, log))
	handlers.RegisterAdminRoutes(admin, repo, stats, exp)
}

func runServer(lc fx.Lifecycle, log *zap.SugaredLogger, cfg *cfgpkg.Config, r *gin.Engine) {
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}
	serve(lc, log, "HTTP server", srv)
}

// runMetricsServer exposes /metrics on its own listener.
func runMetricsServer(lc fx.Lifecycle, log *zap.SugaredLogger, cfg *cfgpkg.Config, prom *metrics.Prometheus) {
	if cfg.MetricsAddr == "" {
		return
	}
	srv := &http.Server{Addr: cfg.MetricsAddr, Handler: prom.Router(), ReadHeaderTimeout: 5 * time.Second}
	serve(lc, log, "metrics server", srv)
}

func serve(lc fx.Lifecycle, log *zap.SugaredLogger, name string, srv *http.Server) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Infow("starting "+name, "addr", srv.Addr)
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Errorf("%s error: %v", name, err)
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Infow("stopping " + name)
			shutdownCtx, cancel := context.WithTimeout(ctx, 120*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

var Module = fx.Options(
	fx.Provide(newEngine, newPrometheus),
	fx.Invoke(registerRoutes),
	fx.Invoke(runServer),
	fx.Invoke(runMetricsServer),
)
