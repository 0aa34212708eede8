package vault

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/mwantia/docvault/pkg/db/models"
)

func (r *Repository) CreateTag(ctx context.Context, name, color string) (*Tag, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, invalid("create tag", "", "tag name must not be empty")
	}

	m := &models.Tag{ID: uuid.NewString(), Name: name, Color: color}
	if err := r.meta.CreateTag(ctx, m); err != nil {
		return nil, newError("create tag", "", err)
	}
	return tagFromModel(m), nil
}

func (r *Repository) ListTags(ctx context.Context) ([]*Tag, error) {
	ms, err := r.meta.ListTags(ctx)
	if err != nil {
		return nil, newError("list tags", "", err)
	}
	tags := make([]*Tag, len(ms))
	for i := range ms {
		tags[i] = tagFromModel(&ms[i])
	}
	return tags, nil
}

// UpdateTag renames or recolors a tag. Nil fields are left untouched.
func (r *Repository) UpdateTag(ctx context.Context, id string, name, color *string) (*Tag, error) {
	const op = "update tag"

	m, err := r.meta.GetTag(ctx, id)
	if err != nil {
		return nil, newError(op, id, err)
	}
	if name != nil {
		if strings.TrimSpace(*name) == "" {
			return nil, invalid(op, id, "tag name must not be empty")
		}
		m.Name = strings.TrimSpace(*name)
	}
	if color != nil {
		m.Color = *color
	}

	if err := r.meta.UpdateTag(ctx, m); err != nil {
		return nil, newError(op, id, err)
	}
	return tagFromModel(m), nil
}

// DeleteTag removes the tag from every document; documents are kept.
func (r *Repository) DeleteTag(ctx context.Context, id string) error {
	return newError("delete tag", id, r.meta.DeleteTag(ctx, id))
}

func (r *Repository) GetDocumentTags(ctx context.Context, id string) ([]*Tag, error) {
	ms, err := r.meta.GetDocumentTags(ctx, id)
	if err != nil {
		return nil, newError("document tags", id, err)
	}
	tags := make([]*Tag, len(ms))
	for i := range ms {
		tags[i] = tagFromModel(&ms[i])
	}
	return tags, nil
}

func (r *Repository) AddDocumentTag(ctx context.Context, id, tagID string) error {
	unlock := r.locks.Lock(id)
	defer unlock()

	return newError("add tag", id, r.meta.AddDocumentTag(ctx, id, tagID))
}

// RemoveDocumentTag unlinks a tag. Removing a tag the document does not
// carry is a no-op.
func (r *Repository) RemoveDocumentTag(ctx context.Context, id, tagID string) error {
	unlock := r.locks.Lock(id)
	defer unlock()

	return newError("remove tag", id, r.meta.RemoveDocumentTag(ctx, id, tagID))
}

func (r *Repository) GetDocumentsByTag(ctx context.Context, tagID string, limit, offset int) ([]*Document, error) {
	ms, err := r.meta.GetDocumentsByTag(ctx, tagID, limit, offset)
	if err != nil {
		return nil, newError("documents by tag", "", err)
	}
	return fromModels(ms), nil
}
