package app

import (
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/careline-backend/internal/platform/logger"
	"github.com/yungbote/careline-backend/internal/platform/openai"
	"github.com/yungbote/careline-backend/internal/platform/redisx"
	"github.com/yungbote/careline-backend/internal/platform/sendgrid"
)

// Clients are the optional outbound integrations. Each is nil when its
// environment is not configured.
type Clients struct {
	Redis    *goredis.Client
	SendGrid sendgrid.Client
	OpenAI   openai.Client
}

func wireClients(log *logger.Logger) (Clients, error) {
	log.Info("Wiring clients...")
	var out Clients

	// Redis
	if rc := redisx.ConfigFromEnv(); rc.Enabled() {
		rdb, err := redisx.New(log, rc)
		if err != nil {
			return Clients{}, fmt.Errorf("init redis: %w", err)
		}
		out.Redis = rdb
	}

	// SendGrid
	if sc := sendgrid.ConfigFromEnv(); sc.Enabled() {
		sg, err := sendgrid.New(log, sc)
		if err != nil {
			out.Close()
			return Clients{}, fmt.Errorf("init sendgrid: %w", err)
		}
		out.SendGrid = sg
	}

	// OpenAI
	if oc := openai.ConfigFromEnv(); oc.Enabled() {
		oa, err := openai.New(log, oc)
		if err != nil {
			out.Close()
			return Clients{}, fmt.Errorf("init openai: %w", err)
		}
		out.OpenAI = oa
	} else {
		log.Warn("OPENAI_API_KEY not set; health answers use the source text directly")
	}

	return out, nil
}

func (c *Clients) Close() {
	if c == nil {
		return
	}
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
}
