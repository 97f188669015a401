package domain

import "time"

// Credential is one stored configuration value. Secret values are kept
// encrypted at rest (Encrypted true, "enc:"-prefixed Value); plain settings
// are stored as-is.
type Credential struct {
	ID        uint   `gorm:"primaryKey"`
	Key       string `gorm:"uniqueIndex;size:255;not null"`
	Value     string `gorm:"type:text"`
	Encrypted bool
	Category  string `gorm:"size:64;index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
