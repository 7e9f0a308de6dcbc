package app

import (
	"context"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/yungbote/lineflow-backend/internal/data/reporting"
	"github.com/yungbote/lineflow-backend/internal/http"
	httpH "github.com/yungbote/lineflow-backend/internal/http/handlers"
	httpMW "github.com/yungbote/lineflow-backend/internal/http/middleware"
	"github.com/yungbote/lineflow-backend/internal/observability"
	"github.com/yungbote/lineflow-backend/internal/platform/logger"
)

type Handlers struct {
	Health  *httpH.HealthHandler
	Webhook *httpH.WebhookHandler
	Ops     *httpH.OpsHandler
}

type Middleware struct {
	Auth *httpMW.AuthMiddleware
}

func wireHandlers(log *logger.Logger, cfg Config, db *gorm.DB, svc Services, funnel reporting.FunnelRepo) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Health:  httpH.NewHealthHandler(dbPinger(db)),
		Webhook: httpH.NewWebhookHandler(log, svc.Router, cfg.WebhookTimeout),
		Ops:     httpH.NewOpsHandler(svc.Scheduler, svc.FollowerSync, funnel),
	}
}

func wireMiddleware(log *logger.Logger, cfg Config) Middleware {
	log.Info("Wiring middleware...")
	return Middleware{
		Auth: httpMW.NewAuthMiddleware(log, cfg.InternalAPISecret),
	}
}

func wireRouter(log *logger.Logger, cfg Config, handlers Handlers, middleware Middleware, metrics *observability.Metrics) *gin.Engine {
	return http.NewRouter(http.RouterConfig{
		Log:            log,
		ServiceName:    cfg.ServiceName,
		ChannelSecret:  cfg.LINE.ChannelSecret,
		AllowedOrigins: cfg.AllowedOrigins,
		Metrics:        metrics,
		AuthMiddleware: middleware.Auth,
		WebhookHandler: handlers.Webhook,
		OpsHandler:     handlers.Ops,
		HealthHandler:  handlers.Health,
	})
}

func dbPinger(db *gorm.DB) httpH.Pinger {
	if db == nil {
		return nil
	}
	return func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	}
}
