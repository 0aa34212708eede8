package vault

import (
	"time"

	"github.com/mwantia/docvault/pkg/db/models"
	"github.com/mwantia/docvault/pkg/db/store"
)

type OcrStatus string

const (
	OcrPending    OcrStatus = models.OcrStatusPending
	OcrProcessing OcrStatus = models.OcrStatusProcessing
	OcrCompleted  OcrStatus = models.OcrStatusCompleted
	OcrFailed     OcrStatus = models.OcrStatusFailed
)

func (s OcrStatus) Valid() bool {
	switch s {
	case OcrPending, OcrProcessing, OcrCompleted, OcrFailed:
		return true
	}
	return false
}

// Document is a stored document as seen by callers of the repository.
type Document struct {
	ID               string
	Title            string
	Description      *string
	PagesPaths       []string
	PageSizes        []int64
	ThumbnailPath    *string
	OriginalFilename string
	SizeBytes        int64
	MimeType         string
	OcrStatus        OcrStatus
	OcrText          *string
	FolderID         *string
	IsFavorite       bool
	TagIDs           []string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (d *Document) PageCount() int {
	return len(d.PagesPaths)
}

func (d *Document) HasThumbnail() bool {
	return d.ThumbnailPath != nil && *d.ThumbnailPath != ""
}

func fromModel(m *models.Document) *Document {
	doc := &Document{
		ID:               m.ID,
		Title:            m.Title,
		Description:      m.Description,
		PagesPaths:       m.PagePaths(),
		PageSizes:        make([]int64, len(m.Pages)),
		ThumbnailPath:    m.ThumbnailPath,
		OriginalFilename: m.OriginalFilename,
		SizeBytes:        m.SizeBytes,
		MimeType:         m.MimeType,
		OcrStatus:        OcrStatus(m.OcrStatus),
		OcrText:          m.OcrText,
		FolderID:         m.FolderID,
		IsFavorite:       m.IsFavorite,
		TagIDs:           m.TagIDs(),
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
	for i, p := range m.Pages {
		doc.PageSizes[i] = p.SizeBytes
	}
	return doc
}

func fromModels(ms []models.Document) []*Document {
	docs := make([]*Document, len(ms))
	for i := range ms {
		docs[i] = fromModel(&ms[i])
	}
	return docs
}

// CreateCommand describes a new document. PagePaths are plaintext source
// files in page order.
type CreateCommand struct {
	Title            string
	Description      *string
	PagePaths        []string
	OriginalFilename string
	MimeType         string
	OcrStatus        OcrStatus
	OcrText          *string
	FolderID         *string
	IsFavorite       bool
	TagIDs           []string

	// Thumbnail or ThumbnailPath supply an optional plaintext thumbnail.
	Thumbnail     []byte
	ThumbnailPath string
}

// UpdateCommand changes metadata only. Nil fields are left untouched.
type UpdateCommand struct {
	Title            *string
	Description      *string
	ClearDescription bool
	OcrStatus        *OcrStatus
	OcrText          *string
	FolderID         *string
	ClearFolder      bool
	IsFavorite       *bool
	TagIDs           []string
}

type ListOptions = store.ListOptions

type Tag struct {
	ID        string
	Name      string
	Color     string
	CreatedAt time.Time
}

func tagFromModel(m *models.Tag) *Tag {
	return &Tag{
		ID:        m.ID,
		Name:      m.Name,
		Color:     m.Color,
		CreatedAt: m.CreatedAt,
	}
}

// StorageInfo summarizes disk usage of the store.
type StorageInfo struct {
	DocumentCount       int64
	DocumentsSizeBytes  int64
	ThumbnailsSizeBytes int64
	TempSizeBytes       int64
}

// OrphanReport lists ciphertext files removed by SweepOrphans.
type OrphanReport struct {
	Deleted []string
	Failed  []string
	Skipped int
}
