package store

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/mwantia/docvault/pkg/db/migrations"
	"github.com/mwantia/docvault/pkg/db/models"
	"github.com/mwantia/docvault/pkg/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// SQLiteStore implements MetadataStore using SQLite
type SQLiteStore struct {
	db   *gorm.DB
	path string
	log  log.LoggerService
}

// DB returns the underlying GORM database instance
func (s *SQLiteStore) DB() *gorm.DB {
	return s.db
}

// SQLiteConfig holds SQLite-specific configuration
type SQLiteConfig struct {
	Path        string
	BusyTimeout int
	Debug       bool
	Logger      log.LoggerService
}

// NewSQLiteStore creates a new SQLite-backed metadata store
func NewSQLiteStore(cfg SQLiteConfig) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Discard()
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	level := logger.Warn
	if cfg.Debug {
		level = logger.Info
	}

	db, err := gorm.Open(sqlite.Open(dsn(cfg)), &gorm.Config{
		Logger:         newGormLogger(cfg.Logger, level),
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	return &SQLiteStore{
		db:   db,
		path: cfg.Path,
		log:  cfg.Logger,
	}, nil
}

func dsn(cfg SQLiteConfig) string {
	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5000
	}

	params := url.Values{}
	params.Add("_pragma", "foreign_keys(1)")
	params.Add("_pragma", "journal_mode(WAL)")
	params.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busy))

	return cfg.Path + "?" + params.Encode()
}

// Connect initializes the database connection
func (s *SQLiteStore) Connect(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}

	// One connection serializes every statement and transaction
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return sqlDB.PingContext(ctx)
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}
	return sqlDB.Close()
}

// Migrate runs database migrations
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	return migrations.NewMigrator(s.db, s.log).Migrate(ctx)
}

// Health checks database connectivity
func (s *SQLiteStore) Health(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey),
		strings.Contains(err.Error(), "UNIQUE constraint failed"):
		return fmt.Errorf("%w: %w", ErrDuplicate, err)
	}
	return err
}

func preloadDocument(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Pages", func(db *gorm.DB) *gorm.DB {
			return db.Order("page_index ASC")
		}).
		Preload("TagLinks")
}

// Document operations

func (s *SQLiteStore) CreateDocument(ctx context.Context, doc *models.Document, pages []models.Page, tagIDs []string) error {
	return translate(s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(doc).Error; err != nil {
			return err
		}
		if len(pages) > 0 {
			for i := range pages {
				pages[i].DocumentID = doc.ID
			}
			if err := tx.Create(&pages).Error; err != nil {
				return err
			}
		}
		return linkTags(tx, doc.ID, tagIDs)
	}))
}

func linkTags(tx *gorm.DB, documentID string, tagIDs []string) error {
	if len(tagIDs) == 0 {
		return nil
	}

	var found int64
	if err := tx.Model(&models.Tag{}).Where("id IN ?", tagIDs).Count(&found).Error; err != nil {
		return err
	}
	if int(found) != len(uniqueStrings(tagIDs)) {
		return fmt.Errorf("unknown tag id: %w", ErrNotFound)
	}

	links := make([]models.DocumentTag, 0, len(tagIDs))
	for _, id := range uniqueStrings(tagIDs) {
		links = append(links, models.DocumentTag{DocumentID: documentID, TagID: id})
	}
	return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&links).Error
}

func uniqueStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func (s *SQLiteStore) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	var doc models.Document
	err := preloadDocument(s.db.WithContext(ctx)).Where("id = ?", id).First(&doc).Error
	if err != nil {
		return nil, translate(err)
	}
	return &doc, nil
}

func (s *SQLiteStore) ListDocuments(ctx context.Context, opts ListOptions) ([]models.Document, error) {
	var docs []models.Document
	query := preloadDocument(s.db.WithContext(ctx)).Model(&models.Document{})

	if opts.FolderID != nil {
		query = query.Where("folder_id = ?", *opts.FolderID)
	}
	if opts.FavoritesOnly {
		query = query.Where("is_favorite = ?", true)
	}
	if opts.OcrStatus != "" {
		query = query.Where("ocr_status = ?", opts.OcrStatus)
	}
	if opts.TagID != "" {
		query = query.Where("id IN (?)",
			s.db.Model(&models.DocumentTag{}).Select("document_id").Where("tag_id = ?", opts.TagID))
	}

	if opts.Limit > 0 {
		query = query.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		query = query.Offset(opts.Offset)
	}

	err := query.Order("created_at DESC").Order("id").Find(&docs).Error
	return docs, err
}

// UpdateDocument writes the mutable metadata columns of doc. Pages,
// thumbnail and size are changed through their dedicated operations.
func (s *SQLiteStore) UpdateDocument(ctx context.Context, doc *models.Document) error {
	result := s.db.WithContext(ctx).
		Model(&models.Document{ID: doc.ID}).
		Omit(clause.Associations).
		Select("title", "description", "original_filename", "mime_type",
			"ocr_status", "ocr_text", "folder_id", "is_favorite", "updated_at").
		Updates(doc)
	if result.Error != nil {
		return translate(result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ReplacePage points an existing page at a new blob and recomputes the
// document size.
func (s *SQLiteStore) ReplacePage(ctx context.Context, page *models.Page) error {
	return translate(s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Page{}).
			Where("document_id = ? AND page_index = ?", page.DocumentID, page.PageIndex).
			Updates(map[string]any{
				"path":       page.Path,
				"size_bytes": page.SizeBytes,
				"updated_at": tx.NowFunc(),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		return refreshTotals(tx, page.DocumentID)
	}))
}

func (s *SQLiteStore) AppendPages(ctx context.Context, documentID string, pages []models.Page) error {
	if len(pages) == 0 {
		return nil
	}
	return translate(s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Document{}).Where("id = ?", documentID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrNotFound
		}

		for i := range pages {
			pages[i].DocumentID = documentID
		}
		if err := tx.Create(&pages).Error; err != nil {
			return err
		}
		return refreshTotals(tx, documentID)
	}))
}

// refreshTotals recomputes page_count and size_bytes from the pages table.
func refreshTotals(tx *gorm.DB, documentID string) error {
	var totals struct {
		Count int
		Size  int64
	}
	err := tx.Model(&models.Page{}).
		Select("COUNT(*) AS count, COALESCE(SUM(size_bytes), 0) AS size").
		Where("document_id = ?", documentID).
		Scan(&totals).Error
	if err != nil {
		return err
	}

	return tx.Model(&models.Document{ID: documentID}).Updates(map[string]any{
		"page_count": totals.Count,
		"size_bytes": totals.Size,
		"updated_at": tx.NowFunc(),
	}).Error
}

func (s *SQLiteStore) SetThumbnail(ctx context.Context, documentID string, path *string) error {
	result := s.db.WithContext(ctx).
		Model(&models.Document{ID: documentID}).
		Updates(map[string]any{
			"thumbnail_path": path,
			"updated_at":     s.db.NowFunc(),
		})
	if result.Error != nil {
		return translate(result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteDocument removes the document together with its pages and tag links.
func (s *SQLiteStore) DeleteDocument(ctx context.Context, id string) error {
	return translate(s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("document_id = ?", id).Delete(&models.DocumentTag{}).Error; err != nil {
			return err
		}
		if err := tx.Where("document_id = ?", id).Delete(&models.Page{}).Error; err != nil {
			return err
		}
		result := tx.Where("id = ?", id).Delete(&models.Document{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	}))
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func (s *SQLiteStore) SearchDocuments(ctx context.Context, query string, limit int) ([]models.Document, error) {
	var docs []models.Document
	pattern := "%" + likeEscaper.Replace(strings.TrimSpace(query)) + "%"

	q := preloadDocument(s.db.WithContext(ctx)).
		Where(`title LIKE ? ESCAPE '\' OR description LIKE ? ESCAPE '\' OR ocr_text LIKE ? ESCAPE '\'`,
			pattern, pattern, pattern).
		Order("updated_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	err := q.Find(&docs).Error
	return docs, err
}

func (s *SQLiteStore) CountDocuments(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Document{}).Count(&count).Error
	return count, err
}

// ListBlobPaths returns every ciphertext path referenced by metadata.
func (s *SQLiteStore) ListBlobPaths(ctx context.Context) ([]string, error) {
	var pages []string
	if err := s.db.WithContext(ctx).Model(&models.Page{}).Pluck("path", &pages).Error; err != nil {
		return nil, err
	}

	var thumbnails []string
	err := s.db.WithContext(ctx).Model(&models.Document{}).
		Where("thumbnail_path IS NOT NULL").
		Pluck("thumbnail_path", &thumbnails).Error
	if err != nil {
		return nil, err
	}

	return append(pages, thumbnails...), nil
}

// Tag operations

func (s *SQLiteStore) CreateTag(ctx context.Context, tag *models.Tag) error {
	return translate(s.db.WithContext(ctx).Omit(clause.Associations).Create(tag).Error)
}

func (s *SQLiteStore) GetTag(ctx context.Context, id string) (*models.Tag, error) {
	var tag models.Tag
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&tag).Error; err != nil {
		return nil, translate(err)
	}
	return &tag, nil
}

func (s *SQLiteStore) ListTags(ctx context.Context) ([]models.Tag, error) {
	var tags []models.Tag
	err := s.db.WithContext(ctx).Order("name").Find(&tags).Error
	return tags, err
}

func (s *SQLiteStore) UpdateTag(ctx context.Context, tag *models.Tag) error {
	result := s.db.WithContext(ctx).
		Model(&models.Tag{ID: tag.ID}).
		Select("name", "color").
		Updates(tag)
	if result.Error != nil {
		return translate(result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteTag removes the tag and its document links; documents are untouched.
func (s *SQLiteStore) DeleteTag(ctx context.Context, id string) error {
	return translate(s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("tag_id = ?", id).Delete(&models.DocumentTag{}).Error; err != nil {
			return err
		}
		result := tx.Where("id = ?", id).Delete(&models.Tag{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	}))
}

// Document tag operations

func (s *SQLiteStore) AddDocumentTag(ctx context.Context, documentID, tagID string) error {
	return translate(s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := requireDocument(tx, documentID); err != nil {
			return err
		}
		return linkTags(tx, documentID, []string{tagID})
	}))
}

func (s *SQLiteStore) RemoveDocumentTag(ctx context.Context, documentID, tagID string) error {
	return s.db.WithContext(ctx).
		Where("document_id = ? AND tag_id = ?", documentID, tagID).
		Delete(&models.DocumentTag{}).Error
}

func (s *SQLiteStore) SetDocumentTags(ctx context.Context, documentID string, tagIDs []string) error {
	return translate(s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := requireDocument(tx, documentID); err != nil {
			return err
		}
		if err := tx.Where("document_id = ?", documentID).Delete(&models.DocumentTag{}).Error; err != nil {
			return err
		}
		return linkTags(tx, documentID, tagIDs)
	}))
}

func requireDocument(tx *gorm.DB, id string) error {
	var count int64
	if err := tx.Model(&models.Document{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) GetDocumentTags(ctx context.Context, documentID string) ([]models.Tag, error) {
	var tags []models.Tag
	err := s.db.WithContext(ctx).
		Joins("JOIN document_tags ON document_tags.tag_id = tags.id").
		Where("document_tags.document_id = ?", documentID).
		Order("tags.name").
		Find(&tags).Error
	return tags, err
}

func (s *SQLiteStore) GetDocumentsByTag(ctx context.Context, tagID string, limit, offset int) ([]models.Document, error) {
	return s.ListDocuments(ctx, ListOptions{TagID: tagID, Limit: limit, Offset: offset})
}
