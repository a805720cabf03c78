package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/careline-backend/internal/http/handlers"
	httpMW "github.com/yungbote/careline-backend/internal/http/middleware"
	"github.com/yungbote/careline-backend/internal/observability"
	"github.com/yungbote/careline-backend/internal/platform/logger"
)

const metricsPath = "/metrics"

type RouterConfig struct {
	Log         *logger.Logger
	Metrics     *observability.Metrics
	ServiceName string
	CORSOrigins []string

	AuthMiddleware *httpMW.AuthMiddleware

	ChatHandler       *httpH.ChatHandler
	ConsentHandler    *httpH.ConsentHandler
	EscalationHandler *httpH.EscalationHandler
	HealthHandler     *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics, metricsPath))
	r.Use(httpMW.CORS(cfg.CORSOrigins))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}
	if cfg.Metrics != nil {
		r.GET(metricsPath, gin.WrapH(cfg.Metrics.Handler()))
	}

	api := r.Group("/api")
	{
		if cfg.ChatHandler != nil {
			api.POST("/chat/turn", cfg.ChatHandler.Turn)
		}

		if cfg.ConsentHandler != nil {
			api.GET("/consent/:userId/:consentType", cfg.ConsentHandler.GetStatus)
			api.DELETE("/consent/:userId/:consentType", cfg.ConsentHandler.Withdraw)
			api.GET("/consent/:userId/:consentType/history", cfg.ConsentHandler.History)
		}
	}

	staff := api.Group("/staff")
	{
		if cfg.AuthMiddleware != nil {
			staff.Use(cfg.AuthMiddleware.RequireRole(httpMW.RoleStaff))
		}
		if cfg.EscalationHandler != nil && cfg.AuthMiddleware != nil {
			staff.GET("/escalations", cfg.EscalationHandler.ListActive)
		}
	}

	return r
}
