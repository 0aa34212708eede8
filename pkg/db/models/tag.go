package models

import "time"

// Tag is a named, colored label shared between documents
type Tag struct {
	ID    string `gorm:"primaryKey;type:text"`
	Name  string `gorm:"type:text;not null;uniqueIndex"`
	Color string `gorm:"type:text;not null"`

	CreatedAt time.Time

	// Relationships
	DocumentLinks []DocumentTag `gorm:"foreignKey:TagID;constraint:OnDelete:CASCADE"`
}

// DocumentTag is the many-to-many join between documents and tags
type DocumentTag struct {
	DocumentID string `gorm:"primaryKey;type:text"`
	TagID      string `gorm:"primaryKey;type:text;index"`

	CreatedAt time.Time
}

func (DocumentTag) TableName() string {
	return "document_tags"
}
