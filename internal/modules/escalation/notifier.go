package escalation

import (
	"context"
	"errors"
	"time"

	"github.com/yungbote/careline-backend/internal/config"
	"github.com/yungbote/careline-backend/internal/data/repos"
	types "github.com/yungbote/careline-backend/internal/domain/triage"
	"github.com/yungbote/careline-backend/internal/observability"
	"github.com/yungbote/careline-backend/internal/pkg/dbctx"
	"github.com/yungbote/careline-backend/internal/platform/httpx"
	"github.com/yungbote/careline-backend/internal/platform/logger"
)

// Notifier delivers at most one notification per escalation, retrying with
// capped exponential backoff.
type Notifier struct {
	gw      NotificationGateway
	repo    repos.EscalationRepo
	log     *logger.Logger
	metrics *observability.Metrics
	cfg     config.Notify
	sleep   func(ctx context.Context, d time.Duration) error
}

func NewNotifier(gw NotificationGateway, repo repos.EscalationRepo, baseLog *logger.Logger, metrics *observability.Metrics, cfg config.Notify) *Notifier {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	return &Notifier{
		gw:      gw,
		repo:    repo,
		log:     baseLog.With("service", "EscalationNotifier"),
		metrics: metrics,
		cfg:     cfg,
		sleep:   httpx.Sleep,
	}
}

// Notify returns false with a nil error when the escalation was already
// notified. Exhausted retries, or running past cfg.Timeout, return a
// *NotificationDeliveryError and flag the record.
func (n *Notifier) Notify(ctx context.Context, note Notification) (bool, error) {
	dbc := dbctx.From(ctx)
	rec, err := n.repo.GetByID(dbc, note.EscalationID)
	if err != nil {
		return false, err
	}
	if rec != nil && rec.NotifiedAt != nil {
		n.log.Debug("escalation already notified", "escalation_id", note.EscalationID)
		return false, nil
	}

	sendCtx := ctx
	if n.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(ctx, n.cfg.Timeout)
		defer cancel()
	}

	var lastErr error
	attempts := 0
	for attempt := 0; attempt < n.cfg.MaxAttempts; attempt++ {
		attempts++
		ok, err := n.gw.Send(sendCtx, note)
		if err == nil && ok {
			n.metrics.IncNotifyAttempt("delivered")
			if _, err := n.repo.MarkNotified(dbc, note.EscalationID, time.Now().UTC()); err != nil {
				n.log.Warn("mark notified failed", "escalation_id", note.EscalationID, "error", err)
			}
			return true, nil
		}
		if err == nil {
			err = errors.New("gateway declined notification")
		}
		lastErr = err
		n.metrics.IncNotifyAttempt("failed")
		n.log.Warn("escalation notification attempt failed",
			"escalation_id", note.EscalationID,
			"attempt", attempts,
			"max_attempts", n.cfg.MaxAttempts,
			"error", err,
		)
		if attempt == n.cfg.MaxAttempts-1 {
			break
		}
		if cerr := sendCtx.Err(); cerr != nil {
			lastErr = cerr
			break
		}
		if serr := n.sleep(sendCtx, httpx.JitterSleep(httpx.Backoff(attempt, n.cfg.BaseDelay, n.cfg.MaxDelay))); serr != nil {
			lastErr = serr
			break
		}
	}

	n.metrics.IncNotifyExhausted()
	n.log.Error("escalation notification exhausted retries",
		"severity", "critical",
		"escalation_id", note.EscalationID,
		"type", note.Type,
		"priority", note.Priority,
		"attempts", attempts,
		"error", lastErr,
	)
	if err := n.repo.MarkNotificationFailed(dbc, note.EscalationID); err != nil {
		n.log.Warn("mark notification failed", "escalation_id", note.EscalationID, "error", err)
	}
	return false, &NotificationDeliveryError{EscalationID: note.EscalationID, Attempts: attempts, Err: lastErr}
}

func notificationFor(rec *types.EscalationRecord) Notification {
	return Notification{
		EscalationID:   rec.EscalationID,
		ConversationID: rec.ConversationID,
		UserID:         rec.UserID,
		Type:           rec.Type,
		Priority:       rec.Priority,
		Reasoning:      rec.Reasoning,
		CallbackETA:    rec.CallbackETA,
		CreatedAt:      rec.StartTime,
	}
}
