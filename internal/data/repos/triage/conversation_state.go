package triage

import (
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/careline-backend/internal/domain/triage"
	"github.com/yungbote/careline-backend/internal/pkg/dbctx"
	"github.com/yungbote/careline-backend/internal/platform/logger"
)

type ConversationStateRepo interface {
	GetByID(dbc dbctx.Context, conversationID string) (*types.ConversationState, error)
	GetOrCreate(dbc dbctx.Context, conversationID, userID string) (*types.ConversationState, bool, error)
	Save(dbc dbctx.Context, row *types.ConversationState) error
	DeleteIdleBefore(dbc dbctx.Context, cutoff time.Time) (int64, error)
}

type conversationStateRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewConversationStateRepo(db *gorm.DB, baseLog *logger.Logger) ConversationStateRepo {
	return &conversationStateRepo{
		db:  db,
		log: baseLog.With("repo", "ConversationStateRepo"),
	}
}

func (r *conversationStateRepo) GetByID(dbc dbctx.Context, conversationID string) (*types.ConversationState, error) {
	if conversationID == "" {
		return nil, nil
	}
	var row types.ConversationState
	if err := dbc.Conn(r.db).
		Where("conversation_id = ?", conversationID).
		Limit(1).
		Find(&row).Error; err != nil {
		return nil, err
	}
	if row.ConversationID == "" {
		return nil, nil
	}
	return &row, nil
}

// GetOrCreate returns the existing row or inserts the default one. A racing
// insert from another writer is absorbed by ON CONFLICT DO NOTHING and the
// winner's row is returned.
func (r *conversationStateRepo) GetOrCreate(dbc dbctx.Context, conversationID, userID string) (*types.ConversationState, bool, error) {
	if conversationID == "" {
		return nil, false, errors.New("conversation id required")
	}
	existing, err := r.GetByID(dbc, conversationID)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	row := types.NewConversationState(conversationID, userID, time.Now().UTC())
	res := dbc.Conn(r.db).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(row)
	if res.Error != nil {
		return nil, false, res.Error
	}
	if res.RowsAffected == 1 {
		return row, true, nil
	}

	r.log.Debug("conversation state created concurrently", "conversation_id", conversationID)
	existing, err = r.GetByID(dbc, conversationID)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		return nil, false, errors.New("conversation state vanished after conflict")
	}
	return existing, false, nil
}

func (r *conversationStateRepo) Save(dbc dbctx.Context, row *types.ConversationState) error {
	if row == nil || row.ConversationID == "" {
		return errors.New("conversation state requires id")
	}
	row.UpdatedAt = time.Now().UTC()
	return dbc.Conn(r.db).Save(row).Error
}

func (r *conversationStateRepo) DeleteIdleBefore(dbc dbctx.Context, cutoff time.Time) (int64, error) {
	res := dbc.Conn(r.db).
		Where("updated_at < ?", cutoff).
		Delete(&types.ConversationState{})
	return res.RowsAffected, res.Error
}
