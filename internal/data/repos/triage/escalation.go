package triage

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/careline-backend/internal/domain/triage"
	"github.com/yungbote/careline-backend/internal/pkg/dbctx"
	"github.com/yungbote/careline-backend/internal/platform/logger"
)

type EscalationRepo interface {
	Create(dbc dbctx.Context, row *types.EscalationRecord) error
	GetByID(dbc dbctx.Context, escalationID string) (*types.EscalationRecord, error)
	LatestOpenByConversation(dbc dbctx.Context, conversationID string) (*types.EscalationRecord, error)
	ListActive(dbc dbctx.Context, limit int) ([]*types.EscalationRecord, error)

	// AdvanceStatus moves the record forward only; a same-or-lower status is a no-op.
	AdvanceStatus(dbc dbctx.Context, escalationID string, next types.EscalationStatus, updates map[string]any) (bool, error)
	// ScheduleCallback stores the contact and callback window and moves the
	// record to callback_scheduled. Returns false when it is already there or beyond.
	ScheduleCallback(dbc dbctx.Context, escalationID string, contact *types.ContactDetails, eta string, due time.Time) (bool, error)
	// MarkNotified sets notified_at once. Returns false when already set.
	MarkNotified(dbc dbctx.Context, escalationID string, at time.Time) (bool, error)
	MarkNotificationFailed(dbc dbctx.Context, escalationID string) error
	// Touch records activity on an open escalation so the stale sweep skips it.
	Touch(dbc dbctx.Context, escalationID string) error
	// CompleteStale closes open escalations with no activity since idleBefore.
	CompleteStale(dbc dbctx.Context, idleBefore time.Time, reason string) (int64, error)
}

type escalationRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewEscalationRepo(db *gorm.DB, baseLog *logger.Logger) EscalationRepo {
	return &escalationRepo{
		db:  db,
		log: baseLog.With("repo", "EscalationRepo"),
	}
}

func (r *escalationRepo) Create(dbc dbctx.Context, row *types.EscalationRecord) error {
	if row == nil {
		return errors.New("nil escalation record")
	}
	if row.EscalationID == "" {
		row.EscalationID = uuid.NewString()
	}
	now := time.Now().UTC()
	if row.StartTime.IsZero() {
		row.StartTime = now
	}
	if row.Status == "" {
		row.Status = types.EscalationInitiated
	}
	row.CreatedAt = now
	row.UpdatedAt = now
	return dbc.Conn(r.db).Create(row).Error
}

func (r *escalationRepo) GetByID(dbc dbctx.Context, escalationID string) (*types.EscalationRecord, error) {
	if escalationID == "" {
		return nil, nil
	}
	var rows []*types.EscalationRecord
	if err := dbc.Conn(r.db).
		Where("escalation_id = ?", escalationID).
		Limit(1).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (r *escalationRepo) LatestOpenByConversation(dbc dbctx.Context, conversationID string) (*types.EscalationRecord, error) {
	if conversationID == "" {
		return nil, nil
	}
	var rows []*types.EscalationRecord
	if err := dbc.Conn(r.db).
		Where("conversation_id = ? AND status <> ?", conversationID, types.EscalationCompleted).
		Order("start_time DESC").
		Limit(1).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (r *escalationRepo) ListActive(dbc dbctx.Context, limit int) ([]*types.EscalationRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	var out []*types.EscalationRecord
	if err := dbc.Conn(r.db).
		Where("status <> ?", types.EscalationCompleted).
		Order("start_time ASC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *escalationRepo) AdvanceStatus(dbc dbctx.Context, escalationID string, next types.EscalationStatus, updates map[string]any) (bool, error) {
	if escalationID == "" {
		return false, errors.New("escalation id required")
	}
	lower := statusesBelow(next)
	if len(lower) == 0 {
		return false, nil
	}
	fields := map[string]any{}
	for k, v := range updates {
		fields[k] = v
	}
	now := time.Now().UTC()
	fields["status"] = next
	fields["updated_at"] = now
	if next == types.EscalationCompleted {
		if _, ok := fields["completed_at"]; !ok {
			fields["completed_at"] = now
		}
	}
	res := dbc.Conn(r.db).
		Model(&types.EscalationRecord{}).
		Where("escalation_id = ? AND status IN ?", escalationID, lower).
		Updates(fields)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *escalationRepo) ScheduleCallback(dbc dbctx.Context, escalationID string, contact *types.ContactDetails, eta string, due time.Time) (bool, error) {
	if escalationID == "" {
		return false, errors.New("escalation id required")
	}
	due = due.UTC()
	res := dbc.Conn(r.db).
		Model(&types.EscalationRecord{}).
		Where("escalation_id = ? AND status IN ?", escalationID, statusesBelow(types.EscalationCallbackScheduled)).
		Select("status", "contact_details", "callback_eta", "callback_due_at", "updated_at").
		Updates(&types.EscalationRecord{
			Status:         types.EscalationCallbackScheduled,
			ContactDetails: contact.Clone(),
			CallbackETA:    eta,
			CallbackDueAt:  &due,
			UpdatedAt:      time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *escalationRepo) MarkNotified(dbc dbctx.Context, escalationID string, at time.Time) (bool, error) {
	res := dbc.Conn(r.db).
		Model(&types.EscalationRecord{}).
		Where("escalation_id = ? AND notified_at IS NULL", escalationID).
		Updates(map[string]any{
			"notified_at":         at.UTC(),
			"notification_failed": false,
			"updated_at":          time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *escalationRepo) MarkNotificationFailed(dbc dbctx.Context, escalationID string) error {
	return dbc.Conn(r.db).
		Model(&types.EscalationRecord{}).
		Where("escalation_id = ? AND notified_at IS NULL", escalationID).
		Updates(map[string]any{
			"notification_failed": true,
			"updated_at":          time.Now().UTC(),
		}).Error
}

func (r *escalationRepo) Touch(dbc dbctx.Context, escalationID string) error {
	if escalationID == "" {
		return nil
	}
	return dbc.Conn(r.db).
		Model(&types.EscalationRecord{}).
		Where("escalation_id = ? AND status <> ?", escalationID, types.EscalationCompleted).
		Update("updated_at", time.Now().UTC()).Error
}

func (r *escalationRepo) CompleteStale(dbc dbctx.Context, idleBefore time.Time, reason string) (int64, error) {
	now := time.Now().UTC()
	res := dbc.Conn(r.db).
		Model(&types.EscalationRecord{}).
		Where("status <> ? AND updated_at < ?", types.EscalationCompleted, idleBefore.UTC()).
		Updates(map[string]any{
			"status":            types.EscalationCompleted,
			"completed_at":      now,
			"completion_reason": reason,
			"updated_at":        now,
		})
	return res.RowsAffected, res.Error
}

func statusesBelow(next types.EscalationStatus) []types.EscalationStatus {
	all := []types.EscalationStatus{
		types.EscalationInitiated,
		types.EscalationContactCollecting,
		types.EscalationCallbackScheduled,
		types.EscalationCompleted,
	}
	var out []types.EscalationStatus
	for _, s := range all {
		if s.Rank() < next.Rank() {
			out = append(out, s)
		}
	}
	return out
}
