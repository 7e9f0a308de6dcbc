package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/lineflow-backend/internal/http/handlers"
	httpMW "github.com/yungbote/lineflow-backend/internal/http/middleware"
	"github.com/yungbote/lineflow-backend/internal/observability"
	"github.com/yungbote/lineflow-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log            *logger.Logger
	ServiceName    string
	ChannelSecret  string
	AllowedOrigins []string
	Metrics        *observability.Metrics

	AuthMiddleware *httpMW.AuthMiddleware

	WebhookHandler *httpH.WebhookHandler
	OpsHandler     *httpH.OpsHandler
	HealthHandler  *httpH.HealthHandler
}

const metricsPath = "/metrics"

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.TraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.HTTPMetrics(cfg.Metrics, metricsPath))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
		r.GET("/readyz", cfg.HealthHandler.Ready)
	}
	if cfg.Metrics != nil {
		r.GET(metricsPath, gin.WrapH(cfg.Metrics.Handler()))
	}

	// LINE webhook
	if cfg.WebhookHandler != nil {
		r.POST("/webhook", httpMW.LineSignature(cfg.Log, cfg.ChannelSecret), cfg.WebhookHandler.Receive)
	}

	internal := r.Group("/internal")
	internal.Use(httpMW.CORS(cfg.AllowedOrigins))
	internal.OPTIONS("/*path", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	if cfg.AuthMiddleware != nil {
		internal.Use(cfg.AuthMiddleware.RequireInternal())
	}
	if cfg.OpsHandler != nil {
		internal.POST("/sweep", cfg.OpsHandler.Sweep)
		internal.POST("/followers/sync", cfg.OpsHandler.SyncFollowers)
		internal.GET("/reports/surveys/:id/funnel", cfg.OpsHandler.SurveyFunnel)
	}

	return r
}
