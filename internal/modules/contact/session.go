package contact

import (
	"strings"
	"time"

	types "github.com/yungbote/careline-backend/internal/domain/triage"
)

// ContextKey is where a live session is kept inside ConversationState.Context.
const ContextKey = "contact_collection"

type Stage string

const (
	StageCollecting   Stage = "collecting"
	StageConfirmation Stage = "confirmation"
	StageFinalized    Stage = "finalized"
	// StageEscalated means collection gave up and the person gets direct
	// contact guidance instead.
	StageEscalated Stage = "escalated"
	StageCancelled Stage = "cancelled"
)

func (s Stage) Terminal() bool {
	return s == StageFinalized || s == StageEscalated || s == StageCancelled
}

type Session struct {
	Purpose        string               `json:"purpose"`
	ConsentType    string               `json:"consentType"`
	UserID         string               `json:"userId"`
	ConversationID string               `json:"conversationId"`
	EscalationID   string               `json:"escalationId,omitempty"`
	Stage          Stage                `json:"stage"`
	CurrentField   types.ContactField   `json:"currentField,omitempty"`
	Attempts       int                  `json:"attempts"`
	Collected      types.ContactDetails `json:"collected"`
	SkipOffered    bool                 `json:"skipOffered,omitempty"`
	Skipped        []types.ContactField `json:"skipped,omitempty"`
	StartedAt      time.Time            `json:"startedAt"`
}

func (s *Session) skipped(f types.ContactField) bool {
	for _, x := range s.Skipped {
		if x == f {
			return true
		}
	}
	return false
}

func (s *Session) unskip(f types.ContactField) {
	out := s.Skipped[:0]
	for _, x := range s.Skipped {
		if x != f {
			out = append(out, x)
		}
	}
	s.Skipped = out
}

// nextMissing is the first field, required before optional, that is neither
// collected nor skipped.
func (s *Session) nextMissing(p Purpose) (types.ContactField, bool) {
	for _, f := range p.Fields() {
		if !s.Collected.Has(f) && !s.skipped(f) {
			return f, true
		}
	}
	return "", false
}

// FieldStage is the conversation stage name shown while a field is collected.
func FieldStage(f types.ContactField) string {
	switch f {
	case types.FieldPreferredContact:
		return "collect_preferred_contact"
	case types.FieldBestTimeToCall:
		return "collect_best_time"
	case types.FieldAlternativeContact:
		return "collect_alternative_contact"
	}
	return "collect_" + strings.ToLower(string(f))
}

// ConversationStage maps the session onto the owning conversation's stage.
func (s *Session) ConversationStage() string {
	switch s.Stage {
	case StageCollecting:
		return FieldStage(s.CurrentField)
	case StageConfirmation:
		return types.StageConfirmation
	case StageEscalated:
		return types.StageDirectContact
	}
	return string(s.Stage)
}
