package triage

import (
	"errors"
	"time"

	"gorm.io/gorm"

	types "github.com/yungbote/careline-backend/internal/domain/triage"
	"github.com/yungbote/careline-backend/internal/pkg/dbctx"
	"github.com/yungbote/careline-backend/internal/platform/logger"
)

type ContactAuditRepo interface {
	Create(dbc dbctx.Context, row *types.ContactAudit) error
	ListByUser(dbc dbctx.Context, userID string) ([]*types.ContactAudit, error)
}

type contactAuditRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewContactAuditRepo(db *gorm.DB, baseLog *logger.Logger) ContactAuditRepo {
	return &contactAuditRepo{
		db:  db,
		log: baseLog.With("repo", "ContactAuditRepo"),
	}
}

func (r *contactAuditRepo) Create(dbc dbctx.Context, row *types.ContactAudit) error {
	if row == nil {
		return errors.New("nil contact audit")
	}
	if len(row.Contacts) == 0 {
		return errors.New("contact audit requires contacts")
	}
	if row.CollectedAt.IsZero() {
		row.CollectedAt = time.Now().UTC()
	}
	return dbc.Conn(r.db).Create(row).Error
}

func (r *contactAuditRepo) ListByUser(dbc dbctx.Context, userID string) ([]*types.ContactAudit, error) {
	var out []*types.ContactAudit
	if err := dbc.Conn(r.db).
		Where("user_id = ?", userID).
		Order("id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
