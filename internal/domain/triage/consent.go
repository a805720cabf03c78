package triage

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

type ConsentRecordStatus string

const (
	ConsentRecordActive    ConsentRecordStatus = "active"
	ConsentRecordWithdrawn ConsentRecordStatus = "withdrawn"
)

// ConsentRecord rows are append-only. ID orders history; the newest row for
// (UserID, ConsentType) is the current consent.
type ConsentRecord struct {
	ID             uint64              `gorm:"column:id;primaryKey;autoIncrement" json:"-"`
	ConsentID      string              `gorm:"column:consent_id;size:64;uniqueIndex" json:"consent_id"`
	UserID         string              `gorm:"column:user_id;size:128;not null;index:idx_consent_user_type,priority:1" json:"user_id"`
	ConsentType    string              `gorm:"column:consent_type;size:64;not null;index:idx_consent_user_type,priority:2" json:"consent_type"`
	Purpose        string              `gorm:"column:purpose;size:128" json:"purpose"`
	DataCategories datatypes.JSON      `gorm:"column:data_categories" json:"data_categories,omitempty"`
	LegalBasis     string              `gorm:"column:legal_basis;size:64" json:"legal_basis"`
	ConsentText    string              `gorm:"column:consent_text;type:text" json:"consent_text,omitempty"`
	Status         ConsentRecordStatus `gorm:"column:status;size:16;not null" json:"status"`
	Timestamp      time.Time           `gorm:"column:timestamp;not null" json:"timestamp"`
	CreatedAt      time.Time           `gorm:"not null" json:"created_at"`
}

func (ConsentRecord) TableName() string { return "consent_record" }

func (r *ConsentRecord) Categories() []string {
	if r == nil || len(r.DataCategories) == 0 {
		return nil
	}
	var out []string
	if err := json.Unmarshal(r.DataCategories, &out); err != nil {
		return nil
	}
	return out
}

func CategoriesJSON(categories []string) datatypes.JSON {
	if len(categories) == 0 {
		return datatypes.JSON("[]")
	}
	b, err := json.Marshal(categories)
	if err != nil {
		return datatypes.JSON("[]")
	}
	return datatypes.JSON(b)
}
