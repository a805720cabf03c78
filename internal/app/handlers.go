package app

import (
	"gorm.io/gorm"

	httpH "github.com/yungbote/careline-backend/internal/http/handlers"
	httpMW "github.com/yungbote/careline-backend/internal/http/middleware"
	"github.com/yungbote/careline-backend/internal/platform/logger"
)

type Handlers struct {
	Chat       *httpH.ChatHandler
	Consent    *httpH.ConsentHandler
	Escalation *httpH.EscalationHandler
	Health     *httpH.HealthHandler
}

type Middleware struct {
	Auth *httpMW.AuthMiddleware
}

func wireHandlers(log *logger.Logger, theDB *gorm.DB, services Services) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Chat:       httpH.NewChatHandler(services.Engine),
		Consent:    httpH.NewConsentHandler(services.Ledger),
		Escalation: httpH.NewEscalationHandler(services.Coordinator),
		Health:     httpH.NewHealthHandler(theDB),
	}
}

func wireMiddleware(log *logger.Logger, cfg Config) Middleware {
	log.Info("Wiring middleware...")
	return Middleware{
		Auth: httpMW.NewAuthMiddleware(log, cfg.StaffJWTSecret, cfg.StaffJWTIssuer),
	}
}
