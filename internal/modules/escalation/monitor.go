package escalation

import (
	"context"
	"time"

	"github.com/yungbote/careline-backend/internal/data/repos"
	"github.com/yungbote/careline-backend/internal/observability"
	"github.com/yungbote/careline-backend/internal/pkg/dbctx"
	"github.com/yungbote/careline-backend/internal/platform/logger"
)

const StaleSweepReason = "stale_sweep"

// Monitor closes escalations nobody finished within the staleness window.
type Monitor struct {
	repo       repos.EscalationRepo
	log        *logger.Logger
	metrics    *observability.Metrics
	interval   time.Duration
	staleAfter time.Duration
	now        func() time.Time
}

func NewMonitor(repo repos.EscalationRepo, baseLog *logger.Logger, metrics *observability.Metrics, interval, staleAfter time.Duration) *Monitor {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if staleAfter <= 0 {
		staleAfter = 30 * time.Minute
	}
	return &Monitor{
		repo:       repo,
		log:        baseLog.With("component", "EscalationMonitor"),
		metrics:    metrics,
		interval:   interval,
		staleAfter: staleAfter,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Run blocks until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	m.log.Info("Escalation monitor started", "interval", m.interval.String(), "stale_after", m.staleAfter.String())

	for {
		select {
		case <-ctx.Done():
			m.log.Info("Escalation monitor stopped")
			return
		case <-ticker.C:
			m.sweepSafe(ctx)
		}
	}
}

func (m *Monitor) sweepSafe(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("Escalation sweep panic", "panic", r)
		}
	}()
	if _, err := m.Sweep(ctx); err != nil {
		m.log.Warn("Escalation sweep failed", "error", err)
	}
}

func (m *Monitor) Sweep(ctx context.Context) (int64, error) {
	n, err := m.repo.CompleteStale(dbctx.From(ctx), m.now().Add(-m.staleAfter), StaleSweepReason)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		m.metrics.AddEscalationsSwept(n)
		m.log.Info("Stale escalations completed", "count", n)
	}
	return n, nil
}
