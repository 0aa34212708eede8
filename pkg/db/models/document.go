package models

import "time"

const (
	OcrStatusPending    = "pending"
	OcrStatusProcessing = "processing"
	OcrStatusCompleted  = "completed"
	OcrStatusFailed     = "failed"
)

// Document is the metadata row of a stored document. Page contents live in
// encrypted blobs referenced by Pages.
type Document struct {
	ID               string  `gorm:"primaryKey;type:text"`
	Title            string  `gorm:"type:text;not null"`
	Description      *string `gorm:"type:text"`
	ThumbnailPath    *string `gorm:"type:text"`
	OriginalFilename string  `gorm:"type:text;not null"`
	SizeBytes        int64   `gorm:"not null"`
	MimeType         string  `gorm:"type:text;not null"`

	OcrStatus string  `gorm:"type:text;not null;index"`
	OcrText   *string `gorm:"type:text"`

	FolderID   *string `gorm:"type:text;index"`
	IsFavorite bool    `gorm:"not null;index"`
	PageCount  int     `gorm:"not null"`

	CreatedAt time.Time `gorm:"index"`
	UpdatedAt time.Time

	// Relationships
	Pages    []Page        `gorm:"foreignKey:DocumentID;constraint:OnDelete:CASCADE"`
	TagLinks []DocumentTag `gorm:"foreignKey:DocumentID;constraint:OnDelete:CASCADE"`
}

// PagePaths returns the page paths ordered by page index. Pages must be
// loaded in order.
func (d *Document) PagePaths() []string {
	paths := make([]string, len(d.Pages))
	for i, p := range d.Pages {
		paths[i] = p.Path
	}
	return paths
}

func (d *Document) TagIDs() []string {
	ids := make([]string, len(d.TagLinks))
	for i, l := range d.TagLinks {
		ids[i] = l.TagID
	}
	return ids
}
