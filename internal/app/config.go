package app

import (
	"time"

	"github.com/yungbote/careline-backend/internal/platform/envutil"
	"github.com/yungbote/careline-backend/internal/platform/logger"
)

type Config struct {
	Env         string
	Port        string
	ServiceName string

	DBDriver  string
	SQLiteDSN string

	CORSOrigins []string

	StaffJWTSecret string
	StaffJWTIssuer string

	LockTTL time.Duration

	NotifyEmails      []string
	NotifyStream      string
	NotifyStreamLimit int64

	ShutdownTimeout time.Duration
}

func LoadConfig(log *logger.Logger) Config {
	cfg := Config{
		Env:               envutil.String("APP_ENV", "development"),
		Port:              envutil.String("PORT", "8080"),
		ServiceName:       envutil.String("SERVICE_NAME", "careline-backend"),
		DBDriver:          envutil.String("DB_DRIVER", "postgres"),
		SQLiteDSN:         envutil.String("SQLITE_DSN", "file:careline.db?_pragma=busy_timeout(5000)"),
		CORSOrigins:       envutil.List("CORS_ALLOWED_ORIGINS", nil),
		StaffJWTSecret:    envutil.String("STAFF_JWT_SECRET", ""),
		StaffJWTIssuer:    envutil.String("STAFF_JWT_ISSUER", ""),
		LockTTL:           envutil.Duration("CONVERSATION_LOCK_TTL", 30*time.Second),
		NotifyEmails:      envutil.List("ESCALATION_NOTIFY_EMAILS", nil),
		NotifyStream:      envutil.String("ESCALATION_STREAM", ""),
		NotifyStreamLimit: int64(envutil.Int("ESCALATION_STREAM_MAXLEN", 10000)),
		ShutdownTimeout:   envutil.Duration("SHUTDOWN_TIMEOUT", 15*time.Second),
	}
	if cfg.StaffJWTSecret == "" {
		log.Warn("STAFF_JWT_SECRET not set; staff endpoints will reject every request")
	}
	return cfg
}
