package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/careline-backend/internal/domain/triage"
)

func SeedConversation(tb testing.TB, ctx context.Context, tx *gorm.DB, topic types.Topic, stage string) *types.ConversationState {
	tb.Helper()
	row := types.NewConversationState("conv-"+uuid.NewString(), "user-"+uuid.NewString(), time.Now().UTC())
	row.CurrentTopic = topic
	row.CurrentStage = stage
	if err := tx.WithContext(ctx).Create(row).Error; err != nil {
		tb.Fatalf("seed conversation: %v", err)
	}
	return row
}

func SeedEscalation(tb testing.TB, ctx context.Context, tx *gorm.DB, conversationID string, status types.EscalationStatus, started time.Time) *types.EscalationRecord {
	tb.Helper()
	row := &types.EscalationRecord{
		EscalationID:   uuid.NewString(),
		ConversationID: conversationID,
		UserID:         "user-1",
		Type:           types.EscalationNurseCallback,
		Priority:       types.PriorityStandard,
		Status:         status,
		StartTime:      started,
		CreatedAt:      started,
		UpdatedAt:      started,
	}
	if err := tx.WithContext(ctx).Create(row).Error; err != nil {
		tb.Fatalf("seed escalation: %v", err)
	}
	return row
}
