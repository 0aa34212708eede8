package store

import (
	"context"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/google/uuid"
	"github.com/mwantia/docvault/pkg/db/migrations"
	"github.com/mwantia/docvault/pkg/db/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	ctx := context.Background()

	s, err := NewSQLiteStore(SQLiteConfig{Path: filepath.Join(t.TempDir(), "meta.db")})
	require.NoError(t, err)
	require.NoError(t, s.Connect(ctx))
	require.NoError(t, s.Migrate(ctx))
	t.Cleanup(func() { s.Close() })
	return s
}

func strPtr(s string) *string { return &s }

func newDocument(t *testing.T, s *SQLiteStore, title string, sizes ...int64) *models.Document {
	t.Helper()

	doc := &models.Document{
		ID:               uuid.NewString(),
		Title:            title,
		OriginalFilename: title + ".jpg",
		MimeType:         "image/jpeg",
		OcrStatus:        models.OcrStatusPending,
		PageCount:        len(sizes),
	}
	var pages []models.Page
	for i, size := range sizes {
		doc.SizeBytes += size
		pages = append(pages, models.Page{
			PageIndex: i,
			Path:      filepath.Join("/vault/documents", doc.ID+"."+strconv.Itoa(i)+".enc"),
			SizeBytes: size,
		})
	}

	require.NoError(t, s.CreateDocument(context.Background(), doc, pages, nil))
	doc.Pages = pages
	return doc
}

func TestMigrate_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Migrate(ctx))
	require.NoError(t, s.Health(ctx))

	statuses, err := migrations.NewMigrator(s.DB(), nil).Status(ctx)
	require.NoError(t, err)
	for _, st := range statuses {
		assert.True(t, st.Applied, "migration %d", st.Version)
	}
}

func TestMigrator_Rollback(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	m := migrations.NewMigrator(s.DB(), nil)

	// Rows in every table, so dropping parents before children would trip
	// foreign keys.
	tag := &models.Tag{ID: uuid.NewString(), Name: "tax", Color: "red"}
	require.NoError(t, s.CreateTag(ctx, tag))
	doc := newDocument(t, s, "Lease", 10, 20)
	require.NoError(t, s.SetDocumentTags(ctx, doc.ID, []string{tag.ID}))

	require.NoError(t, m.Rollback(ctx))
	require.NoError(t, m.Rollback(ctx))
	assert.False(t, s.DB().Migrator().HasTable(&models.Document{}))
	assert.ErrorIs(t, m.Rollback(ctx), migrations.ErrNothingToRollback)

	pending, err := m.Pending(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	require.NoError(t, m.Migrate(ctx))
	assert.True(t, s.DB().Migrator().HasTable(&models.Document{}))
}

func TestCreateAndGetDocument(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tag := &models.Tag{ID: uuid.NewString(), Name: "invoices", Color: "#ff0000"}
	require.NoError(t, s.CreateTag(ctx, tag))

	doc := &models.Document{
		ID:               uuid.NewString(),
		Title:            "Scan",
		OriginalFilename: "scan.jpg",
		MimeType:         "image/jpeg",
		OcrStatus:        models.OcrStatusPending,
		PageCount:        2,
		SizeBytes:        30,
	}
	pages := []models.Page{
		{PageIndex: 1, Path: "/v/documents/b.enc", SizeBytes: 20},
		{PageIndex: 0, Path: "/v/documents/a.enc", SizeBytes: 10},
	}
	require.NoError(t, s.CreateDocument(ctx, doc, pages, []string{tag.ID, tag.ID}))

	got, err := s.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "Scan", got.Title)
	assert.Equal(t, []string{"/v/documents/a.enc", "/v/documents/b.enc"}, got.PagePaths())
	assert.Equal(t, []string{tag.ID}, got.TagIDs())
	assert.Equal(t, 2, got.PageCount)

	_, err = s.GetDocument(ctx, uuid.NewString())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateDocument_RollsBackOnUnknownTag(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc := &models.Document{ID: uuid.NewString(), Title: "x", MimeType: "image/jpeg", OcrStatus: "pending", PageCount: 1}
	pages := []models.Page{{PageIndex: 0, Path: "/v/x.enc", SizeBytes: 1}}

	err := s.CreateDocument(ctx, doc, pages, []string{uuid.NewString()})
	assert.ErrorIs(t, err, ErrNotFound)

	count, err := s.CountDocuments(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	paths, err := s.ListBlobPaths(ctx)
	require.NoError(t, err)
	assert.Empty(t, paths)
}

func TestUpdateDocument(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	doc := newDocument(t, s, "Before", 10)

	doc.Title = "After"
	doc.Description = strPtr("desc")
	doc.IsFavorite = true
	doc.OcrStatus = models.OcrStatusCompleted
	doc.OcrText = strPtr("hello world")
	doc.SizeBytes = 999 // not written by UpdateDocument
	require.NoError(t, s.UpdateDocument(ctx, doc))

	got, err := s.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "After", got.Title)
	assert.Equal(t, "desc", *got.Description)
	assert.True(t, got.IsFavorite)
	assert.Equal(t, int64(10), got.SizeBytes)

	got.IsFavorite = false
	got.Description = nil
	require.NoError(t, s.UpdateDocument(ctx, got))

	again, err := s.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.False(t, again.IsFavorite)
	assert.Nil(t, again.Description)

	missing := &models.Document{ID: uuid.NewString(), Title: "x"}
	assert.ErrorIs(t, s.UpdateDocument(ctx, missing), ErrNotFound)
}

func TestReplaceAndAppendPages(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	doc := newDocument(t, s, "Doc", 10, 20)

	require.NoError(t, s.ReplacePage(ctx, &models.Page{
		DocumentID: doc.ID, PageIndex: 1, Path: "/v/replaced.enc", SizeBytes: 50,
	}))
	require.NoError(t, s.AppendPages(ctx, doc.ID, []models.Page{
		{PageIndex: 2, Path: "/v/appended.enc", SizeBytes: 5},
	}))

	got, err := s.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.PageCount)
	assert.Equal(t, int64(65), got.SizeBytes)
	assert.Equal(t, "/v/replaced.enc", got.Pages[1].Path)
	assert.Equal(t, "/v/appended.enc", got.Pages[2].Path)

	err = s.ReplacePage(ctx, &models.Page{DocumentID: doc.ID, PageIndex: 9, Path: "/v/z.enc"})
	assert.ErrorIs(t, err, ErrNotFound)

	err = s.AppendPages(ctx, uuid.NewString(), []models.Page{{PageIndex: 0, Path: "/v/q.enc"}})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSetThumbnailAndListBlobPaths(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	doc := newDocument(t, s, "Doc", 10)

	require.NoError(t, s.SetThumbnail(ctx, doc.ID, strPtr("/v/thumbnails/t.enc")))

	paths, err := s.ListBlobPaths(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{doc.Pages[0].Path, "/v/thumbnails/t.enc"}, paths)

	require.NoError(t, s.SetThumbnail(ctx, doc.ID, nil))
	got, err := s.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Nil(t, got.ThumbnailPath)

	assert.ErrorIs(t, s.SetThumbnail(ctx, uuid.NewString(), nil), ErrNotFound)
}

func TestDeleteDocument_CascadesAndReportsMissing(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tag := &models.Tag{ID: uuid.NewString(), Name: "keep", Color: "blue"}
	require.NoError(t, s.CreateTag(ctx, tag))
	doc := newDocument(t, s, "Doc", 10, 20)
	require.NoError(t, s.AddDocumentTag(ctx, doc.ID, tag.ID))

	require.NoError(t, s.DeleteDocument(ctx, doc.ID))
	assert.ErrorIs(t, s.DeleteDocument(ctx, doc.ID), ErrNotFound)

	paths, err := s.ListBlobPaths(ctx)
	require.NoError(t, err)
	assert.Empty(t, paths)

	_, err = s.GetTag(ctx, tag.ID)
	assert.NoError(t, err)
	docs, err := s.GetDocumentsByTag(ctx, tag.ID, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestSearchDocuments(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := newDocument(t, s, "Electricity invoice", 1)
	b := newDocument(t, s, "Passport", 1)
	b.OcrText = strPtr("issued by the invoice office")
	require.NoError(t, s.UpdateDocument(ctx, b))
	newDocument(t, s, "100% cotton receipt", 1)

	docs, err := s.SearchDocuments(ctx, "invoice", 0)
	require.NoError(t, err)
	ids := []string{}
	for _, d := range docs {
		ids = append(ids, d.ID)
	}
	assert.ElementsMatch(t, []string{a.ID, b.ID}, ids)

	docs, err = s.SearchDocuments(ctx, "100%", 0)
	require.NoError(t, err)
	assert.Len(t, docs, 1)

	docs, err = s.SearchDocuments(ctx, "_", 0)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestListDocuments_Filters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tag := &models.Tag{ID: uuid.NewString(), Name: "work", Color: "green"}
	require.NoError(t, s.CreateTag(ctx, tag))

	a := newDocument(t, s, "A", 1)
	b := newDocument(t, s, "B", 1)
	newDocument(t, s, "C", 1)

	a.FolderID = strPtr("folder-1")
	a.IsFavorite = true
	require.NoError(t, s.UpdateDocument(ctx, a))
	require.NoError(t, s.SetDocumentTags(ctx, b.ID, []string{tag.ID}))

	all, err := s.ListDocuments(ctx, ListOptions{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	favs, err := s.ListDocuments(ctx, ListOptions{FavoritesOnly: true})
	require.NoError(t, err)
	require.Len(t, favs, 1)
	assert.Equal(t, a.ID, favs[0].ID)

	inFolder, err := s.ListDocuments(ctx, ListOptions{FolderID: strPtr("folder-1")})
	require.NoError(t, err)
	require.Len(t, inFolder, 1)
	assert.Equal(t, a.ID, inFolder[0].ID)

	tagged, err := s.ListDocuments(ctx, ListOptions{TagID: tag.ID})
	require.NoError(t, err)
	require.Len(t, tagged, 1)
	assert.Equal(t, b.ID, tagged[0].ID)

	page, err := s.ListDocuments(ctx, ListOptions{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, page, 2)
}

func TestTags(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tag := &models.Tag{ID: uuid.NewString(), Name: "tax", Color: "red"}
	require.NoError(t, s.CreateTag(ctx, tag))

	dup := &models.Tag{ID: uuid.NewString(), Name: "tax", Color: "blue"}
	assert.ErrorIs(t, s.CreateTag(ctx, dup), ErrDuplicate)

	tag.Name = "taxes"
	require.NoError(t, s.UpdateTag(ctx, tag))
	got, err := s.GetTag(ctx, tag.ID)
	require.NoError(t, err)
	assert.Equal(t, "taxes", got.Name)

	doc := newDocument(t, s, "Doc", 1)
	require.NoError(t, s.AddDocumentTag(ctx, doc.ID, tag.ID))
	require.NoError(t, s.AddDocumentTag(ctx, doc.ID, tag.ID))

	tags, err := s.GetDocumentTags(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, tags, 1)

	require.NoError(t, s.RemoveDocumentTag(ctx, doc.ID, tag.ID))
	tags, err = s.GetDocumentTags(ctx, doc.ID)
	require.NoError(t, err)
	assert.Empty(t, tags)

	require.NoError(t, s.AddDocumentTag(ctx, doc.ID, tag.ID))
	require.NoError(t, s.DeleteTag(ctx, tag.ID))
	assert.ErrorIs(t, s.DeleteTag(ctx, tag.ID), ErrNotFound)

	got2, err := s.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Empty(t, got2.TagLinks)

	assert.ErrorIs(t, s.AddDocumentTag(ctx, uuid.NewString(), uuid.NewString()), ErrNotFound)

	list, err := s.ListTags(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}
