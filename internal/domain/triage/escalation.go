package triage

import "time"

type EscalationType string

const (
	EscalationEmergencyReferral EscalationType = "emergency_referral"
	EscalationNurseCallback     EscalationType = "nurse_callback"
	EscalationGPReferral        EscalationType = "gp_referral"
	EscalationSupportResources  EscalationType = "support_resources"
)

type Priority string

const (
	PriorityImmediate Priority = "immediate"
	PriorityUrgent    Priority = "urgent"
	PriorityStandard  Priority = "standard"
)

func (p Priority) Rank() int {
	switch p {
	case PriorityImmediate:
		return 3
	case PriorityUrgent:
		return 2
	case PriorityStandard:
		return 1
	}
	return 0
}

type EscalationStatus string

const (
	EscalationInitiated         EscalationStatus = "initiated"
	EscalationContactCollecting EscalationStatus = "contact_collecting"
	EscalationCallbackScheduled EscalationStatus = "callback_scheduled"
	EscalationCompleted         EscalationStatus = "completed"
)

func (s EscalationStatus) Rank() int {
	switch s {
	case EscalationInitiated:
		return 1
	case EscalationContactCollecting:
		return 2
	case EscalationCallbackScheduled:
		return 3
	case EscalationCompleted:
		return 4
	}
	return 0
}

// CanAdvanceTo enforces the monotonic status order.
func (s EscalationStatus) CanAdvanceTo(next EscalationStatus) bool {
	return next.Rank() > s.Rank()
}

type EscalationRecord struct {
	EscalationID       string           `gorm:"column:escalation_id;primaryKey;size:64" json:"escalation_id"`
	ConversationID     string           `gorm:"column:conversation_id;size:128;index" json:"conversation_id"`
	UserID             string           `gorm:"column:user_id;size:128;index" json:"user_id"`
	Type               EscalationType   `gorm:"column:type;size:32;not null" json:"type"`
	Priority           Priority         `gorm:"column:priority;size:16;not null" json:"priority"`
	Status             EscalationStatus `gorm:"column:status;size:32;not null;index" json:"status"`
	Reasoning          string           `gorm:"column:reasoning;type:text" json:"reasoning,omitempty"`
	StartTime          time.Time        `gorm:"column:start_time;not null;index" json:"start_time"`
	ContactDetails     *ContactDetails  `gorm:"column:contact_details;type:text;serializer:json" json:"contact_details,omitempty"`
	CallbackETA        string           `gorm:"column:callback_eta;size:64" json:"callback_eta,omitempty"`
	CallbackDueAt      *time.Time       `gorm:"column:callback_due_at" json:"callback_due_at,omitempty"`
	NotifiedAt         *time.Time       `gorm:"column:notified_at" json:"notified_at,omitempty"`
	NotificationFailed bool             `gorm:"column:notification_failed;not null" json:"notification_failed"`
	CompletedAt        *time.Time       `gorm:"column:completed_at" json:"completed_at,omitempty"`
	CompletionReason   string           `gorm:"column:completion_reason;size:64" json:"completion_reason,omitempty"`
	CreatedAt          time.Time        `gorm:"not null" json:"created_at"`
	UpdatedAt          time.Time        `gorm:"not null" json:"updated_at"`
}

func (EscalationRecord) TableName() string { return "escalation_record" }
