package shutdown

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/yungbote/careline-backend/internal/platform/logger"
)

func NotifyContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

type Step struct {
	Name string
	Fn   func(ctx context.Context) error
}

// Drain runs steps in order under one shared deadline. A failed step is
// logged and the remaining steps still run; the failed names are returned.
func Drain(log *logger.Logger, timeout time.Duration, steps ...Step) []string {
	if log == nil {
		log = logger.Nop()
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var failed []string
	for _, s := range steps {
		if s.Fn == nil {
			continue
		}
		start := time.Now()
		if err := s.Fn(ctx); err != nil {
			failed = append(failed, s.Name)
			log.Warn("shutdown step failed", "step", s.Name, "error", err)
			continue
		}
		log.Debug("shutdown step done", "step", s.Name, "duration_ms", time.Since(start).Milliseconds())
	}
	return failed
}
