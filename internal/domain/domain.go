package domain

import "github.com/yungbote/careline-backend/internal/domain/triage"

// Models lists every table the service owns, in migration order.
func Models() []any {
	return []any{
		&triage.ConversationState{},
		&triage.ConsentRecord{},
		&triage.EscalationRecord{},
		&triage.ContactAudit{},
	}
}
