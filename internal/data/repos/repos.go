package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/careline-backend/internal/data/repos/triage"
	"github.com/yungbote/careline-backend/internal/platform/logger"
)

type ConversationStateRepo = triage.ConversationStateRepo
type ConsentRecordRepo = triage.ConsentRecordRepo
type EscalationRepo = triage.EscalationRepo
type ContactAuditRepo = triage.ContactAuditRepo

type Repos struct {
	ConversationState ConversationStateRepo
	ConsentRecord     ConsentRecordRepo
	Escalation        EscalationRepo
	ContactAudit      ContactAuditRepo
}

func New(db *gorm.DB, log *logger.Logger) Repos {
	return Repos{
		ConversationState: triage.NewConversationStateRepo(db, log),
		ConsentRecord:     triage.NewConsentRecordRepo(db, log),
		Escalation:        triage.NewEscalationRepo(db, log),
		ContactAudit:      triage.NewContactAuditRepo(db, log),
	}
}
