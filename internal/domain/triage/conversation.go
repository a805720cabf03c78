package triage

import (
	"time"

	"gorm.io/datatypes"
)

type Topic string

const (
	TopicConversationStart Topic = "conversation_start"
	TopicHealthInformation Topic = "health_information"
	TopicNurseEscalation   Topic = "nurse_escalation"
	TopicCrisisSupport     Topic = "crisis_support"
)

func (t Topic) Valid() bool {
	switch t {
	case TopicConversationStart, TopicHealthInformation, TopicNurseEscalation, TopicCrisisSupport:
		return true
	}
	return false
}

// Stages are scoped to a topic; the same string can appear under several.
const (
	StageGreeting            = "greeting"
	StageReadyForQuestions   = "ready_for_questions"
	StageInformationProvided = "information_provided"
	StageNoContentFound      = "no_content_found"
	StageConversationClosed  = "conversation_closed"

	StageConsentCapture    = "consent_capture"
	StageConfirmation      = "confirmation"
	StageCallbackScheduled = "callback_scheduled"
	StageDirectContact     = "direct_contact"
	StageEmergencyReferral = "emergency_referral"

	StageCrisisResponse    = "crisis_response"
	StageSupportTransition = "support_transition"
)

type ConsentState string

const (
	ConsentNone      ConsentState = "none"
	ConsentGranted   ConsentState = "granted"
	ConsentRefused   ConsentState = "refused"
	ConsentWithdrawn ConsentState = "withdrawn"
)

// ConversationState is the durable per-conversation frame. Exactly one row
// exists per ConversationID.
type ConversationState struct {
	ConversationID    string            `gorm:"column:conversation_id;primaryKey;size:128" json:"conversation_id"`
	UserID            string            `gorm:"column:user_id;size:128;index" json:"user_id"`
	CurrentTopic      Topic             `gorm:"column:current_topic;size:64;not null" json:"current_topic"`
	CurrentStage      string            `gorm:"column:current_stage;size:64;not null" json:"current_stage"`
	MessageCount      int64             `gorm:"column:message_count;not null" json:"message_count"`
	LastMessageTimeMs int64             `gorm:"column:last_message_time_ms;not null" json:"last_message_time_ms"`
	ConsentStatus     ConsentState      `gorm:"column:consent_status;size:32;not null" json:"consent_status"`
	ContactInfo       *ContactDetails   `gorm:"column:contact_info;type:text;serializer:json" json:"contact_info,omitempty"`
	Context           datatypes.JSONMap `gorm:"column:context" json:"context,omitempty"`
	CreatedAt         time.Time         `gorm:"not null" json:"created_at"`
	UpdatedAt         time.Time         `gorm:"not null;index" json:"updated_at"`
}

func (ConversationState) TableName() string { return "conversation_state" }

// NewConversationState returns the default frame for an unseen conversation.
func NewConversationState(conversationID, userID string, now time.Time) *ConversationState {
	return &ConversationState{
		ConversationID: conversationID,
		UserID:         userID,
		CurrentTopic:   TopicConversationStart,
		CurrentStage:   StageGreeting,
		ConsentStatus:  ConsentNone,
		Context:        datatypes.JSONMap{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// ContextValue reads a key from Context without allocating a map.
func (s *ConversationState) ContextValue(key string) (any, bool) {
	if s == nil || s.Context == nil {
		return nil, false
	}
	v, ok := s.Context[key]
	return v, ok
}
