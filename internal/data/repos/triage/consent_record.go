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

type ConsentRecordRepo interface {
	Create(dbc dbctx.Context, row *types.ConsentRecord) error
	Latest(dbc dbctx.Context, userID, consentType string) (*types.ConsentRecord, error)
	ListByUser(dbc dbctx.Context, userID, consentType string) ([]*types.ConsentRecord, error)
}

type consentRecordRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewConsentRecordRepo(db *gorm.DB, baseLog *logger.Logger) ConsentRecordRepo {
	return &consentRecordRepo{
		db:  db,
		log: baseLog.With("repo", "ConsentRecordRepo"),
	}
}

func (r *consentRecordRepo) Create(dbc dbctx.Context, row *types.ConsentRecord) error {
	if row == nil {
		return errors.New("nil consent record")
	}
	if row.UserID == "" || row.ConsentType == "" {
		return errors.New("consent record requires user id and consent type")
	}
	if row.ConsentID == "" {
		row.ConsentID = uuid.NewString()
	}
	now := time.Now().UTC()
	if row.Timestamp.IsZero() {
		row.Timestamp = now
	}
	row.CreatedAt = now
	if row.DataCategories == nil {
		row.DataCategories = types.CategoriesJSON(nil)
	}
	return dbc.Conn(r.db).Create(row).Error
}

func (r *consentRecordRepo) Latest(dbc dbctx.Context, userID, consentType string) (*types.ConsentRecord, error) {
	if userID == "" || consentType == "" {
		return nil, nil
	}
	var rows []*types.ConsentRecord
	if err := dbc.Conn(r.db).
		Where("user_id = ? AND consent_type = ?", userID, consentType).
		Order("id DESC").
		Limit(1).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// ListByUser returns the ledger oldest first. An empty consentType lists all types.
func (r *consentRecordRepo) ListByUser(dbc dbctx.Context, userID, consentType string) ([]*types.ConsentRecord, error) {
	var out []*types.ConsentRecord
	if userID == "" {
		return out, nil
	}
	q := dbc.Conn(r.db).Where("user_id = ?", userID)
	if consentType != "" {
		q = q.Where("consent_type = ?", consentType)
	}
	if err := q.Order("id ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
