package store

import (
	"context"
	"errors"

	"github.com/mwantia/docvault/pkg/db/models"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("record already exists")
)

// ListOptions filters and pages ListDocuments. Zero values disable a filter.
type ListOptions struct {
	FolderID      *string
	FavoritesOnly bool
	TagID         string
	OcrStatus     string

	Limit  int
	Offset int
}

// MetadataStore defines the interface for database operations
type MetadataStore interface {
	// Lifecycle
	Connect(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error
	Health(ctx context.Context) error

	// Document operations
	CreateDocument(ctx context.Context, doc *models.Document, pages []models.Page, tagIDs []string) error
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	ListDocuments(ctx context.Context, opts ListOptions) ([]models.Document, error)
	UpdateDocument(ctx context.Context, doc *models.Document) error
	ReplacePage(ctx context.Context, page *models.Page) error
	AppendPages(ctx context.Context, documentID string, pages []models.Page) error
	SetThumbnail(ctx context.Context, documentID string, path *string) error
	DeleteDocument(ctx context.Context, id string) error
	SearchDocuments(ctx context.Context, query string, limit int) ([]models.Document, error)
	CountDocuments(ctx context.Context) (int64, error)
	ListBlobPaths(ctx context.Context) ([]string, error)

	// Tag operations
	CreateTag(ctx context.Context, tag *models.Tag) error
	GetTag(ctx context.Context, id string) (*models.Tag, error)
	ListTags(ctx context.Context) ([]models.Tag, error)
	UpdateTag(ctx context.Context, tag *models.Tag) error
	DeleteTag(ctx context.Context, id string) error

	// Document tag operations
	AddDocumentTag(ctx context.Context, documentID, tagID string) error
	RemoveDocumentTag(ctx context.Context, documentID, tagID string) error
	SetDocumentTags(ctx context.Context, documentID string, tagIDs []string) error
	GetDocumentTags(ctx context.Context, documentID string) ([]models.Tag, error)
	GetDocumentsByTag(ctx context.Context, tagID string, limit, offset int) ([]models.Document, error)
}
