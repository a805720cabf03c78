package triage

import (
	"time"

	"gorm.io/datatypes"
)

// ContactAudit is written once when a collection session is finalized.
type ContactAudit struct {
	ID             uint64         `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	UserID         string         `gorm:"column:user_id;size:128;index" json:"user_id"`
	ConversationID string         `gorm:"column:conversation_id;size:128;index" json:"conversation_id"`
	Purpose        string         `gorm:"column:purpose;size:64;not null" json:"purpose"`
	ConsentType    string         `gorm:"column:consent_type;size:64" json:"consent_type"`
	Contacts       datatypes.JSON `gorm:"column:contacts" json:"contacts"`
	CollectedAt    time.Time      `gorm:"column:collected_at;not null" json:"collected_at"`
}

func (ContactAudit) TableName() string { return "contact_audit" }
