package models

import "time"

// Page maps (document, index) to the ciphertext file holding that page.
type Page struct {
	DocumentID string `gorm:"primaryKey;type:text"`
	PageIndex  int    `gorm:"primaryKey;autoIncrement:false"`
	Path       string `gorm:"type:text;not null;uniqueIndex"`
	SizeBytes  int64  `gorm:"not null"`

	CreatedAt time.Time
	UpdatedAt time.Time
}
