package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/and161185/loandocs/internal/errs"
	"github.com/and161185/loandocs/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// ArtifactRepo implements ArtifactRepository using PostgreSQL.
// File columns and text_content are mutually exclusive (CHECK in the schema).
type ArtifactRepo struct{ db *DB }

// NewArtifactRepo constructs an artifact repository.
func NewArtifactRepo(db *DB) *ArtifactRepo { return &ArtifactRepo{db: db} }

const artifactColumns = `id, order_id, material_item_id, file_name, storage_key, file_size, kind, text_content, uploader_id, uploaded_at`

var errNoPayload = errors.New("artifact without payload")

func scanArtifact(row pgx.Row) (*model.Artifact, error) {
	var (
		a       model.Artifact
		name    *string
		key     *string
		size    *int64
		kind    string
		content *string
	)
	if err := row.Scan(&a.ID, &a.OrderID, &a.MaterialItemID, &name, &key, &size, &kind, &content, &a.UploaderID, &a.UploadedAt); err != nil {
		return nil, mapNoRows(err)
	}
	switch {
	case key != nil:
		b := model.BinaryPayload{StorageKey: *key, FileKind: model.ArtifactKind(kind)}
		if name != nil {
			b.Name = *name
		}
		if size != nil {
			b.Size = *size
		}
		a.Payload = b
	case content != nil:
		a.Payload = model.TextPayload{Content: *content}
	default:
		return nil, fmt.Errorf("artifact %s: %w", a.ID, errNoPayload)
	}
	return &a, nil
}

// Create inserts an artifact record.
func (r *ArtifactRepo) Create(ctx context.Context, a *model.Artifact) error {
	const q = `
INSERT INTO artifacts (id, order_id, material_item_id, file_name, storage_key, file_size, kind, text_content, uploader_id)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING uploaded_at`
	var (
		name, key, content *string
		size               *int64
	)
	switch p := a.Payload.(type) {
	case model.BinaryPayload:
		name, key, size = &p.Name, &p.StorageKey, &p.Size
	case model.TextPayload:
		content = &p.Content
	default:
		return fmt.Errorf("create artifact: %w", errs.ErrInvalidInput)
	}
	err := r.db.Pool.QueryRow(ctx, q,
		a.ID, a.OrderID, a.MaterialItemID, name, key, size, string(a.Kind()), content, a.UploaderID,
	).Scan(&a.UploadedAt)
	if isForeignKeyViolation(err) {
		return fmt.Errorf("create artifact: %w", errs.ErrNotFound)
	}
	return err
}

// Get loads an artifact by ID.
func (r *ArtifactRepo) Get(ctx context.Context, id uuid.UUID) (*model.Artifact, error) {
	const q = `SELECT ` + artifactColumns + ` FROM artifacts WHERE id=$1`
	return scanArtifact(r.db.Pool.QueryRow(ctx, q, id))
}

// ListByOrder returns the artifacts of an order, newest first.
func (r *ArtifactRepo) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]model.Artifact, error) {
	const q = `
SELECT ` + artifactColumns + `
FROM artifacts
WHERE order_id=$1
ORDER BY uploaded_at DESC, id DESC`
	rows, err := r.db.Pool.Query(ctx, q, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Artifact{}
	for rows.Next() {
		a, err := scanArtifact(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// Delete removes an artifact record.
func (r *ArtifactRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM artifacts WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}
