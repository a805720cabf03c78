package statestore

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/careline-backend/internal/data/repos"
	types "github.com/yungbote/careline-backend/internal/domain/triage"
	"github.com/yungbote/careline-backend/internal/pkg/dbctx"
	"github.com/yungbote/careline-backend/internal/platform/logger"
)

type Store interface {
	// GetOrCreate never reports a missing conversation; unknown ids get the
	// default frame. It does not touch MessageCount.
	GetOrCreate(ctx context.Context, conversationID, userID string) (*types.ConversationState, error)
	// Update applies patch and increments MessageCount by exactly one.
	Update(ctx context.Context, conversationID string, patch StatePatch) (*types.ConversationState, error)
}

type store struct {
	db   *gorm.DB
	log  *logger.Logger
	repo repos.ConversationStateRepo
	now  func() time.Time
}

func New(db *gorm.DB, baseLog *logger.Logger, repo repos.ConversationStateRepo) Store {
	return &store{
		db:   db,
		log:  baseLog.With("service", "StateStore"),
		repo: repo,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *store) GetOrCreate(ctx context.Context, conversationID, userID string) (*types.ConversationState, error) {
	row, created, err := s.repo.GetOrCreate(dbctx.From(ctx), conversationID, userID)
	if err != nil {
		return nil, fmt.Errorf("get or create state: %w", err)
	}
	if created {
		s.log.Debug("conversation state created", "conversation_id", conversationID)
	}
	return row, nil
}

func (s *store) Update(ctx context.Context, conversationID string, patch StatePatch) (*types.ConversationState, error) {
	var out *types.ConversationState
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inner := dbctx.Context{Ctx: ctx, Tx: tx}
		row, _, err := s.repo.GetOrCreate(inner, conversationID, "")
		if err != nil {
			return err
		}
		if err := patch.Apply(row, s.now()); err != nil {
			return err
		}
		if err := s.repo.Save(inner, row); err != nil {
			return err
		}
		out = row
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("update state: %w", err)
	}
	return out, nil
}
