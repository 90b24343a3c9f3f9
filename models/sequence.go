package models

import "time"

// Sequence holds the last number handed out for one document scope. Rows
// only ever move forward.
type Sequence struct {
	Scope     string    `gorm:"primaryKey;size:32" json:"scope"`
	LastValue int64     `gorm:"not null;default:0" json:"last_value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName overrides the table name
func (Sequence) TableName() string {
	return "document_sequences"
}
