package postgres

import (
	"context"
	"fmt"

	"github.com/and161185/loandocs/internal/errs"
	"github.com/and161185/loandocs/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// MaterialRepo implements MaterialRepository using PostgreSQL.
// Rows carry a seq column so equal sort orders enumerate in insertion order.
type MaterialRepo struct{ db *DB }

// NewMaterialRepo constructs a material taxonomy repository.
func NewMaterialRepo(db *DB) *MaterialRepo { return &MaterialRepo{db: db} }

const (
	categoryColumns = `id, name, sort_order, active, created_at`
	itemColumns     = `id, category_id, name, kinds, required, sort_order, active, created_at`
)

func scanCategory(row pgx.Row) (*model.MaterialCategory, error) {
	var c model.MaterialCategory
	if err := row.Scan(&c.ID, &c.Name, &c.SortOrder, &c.Active, &c.CreatedAt); err != nil {
		return nil, mapNoRows(err)
	}
	return &c, nil
}

func scanItem(row pgx.Row) (*model.MaterialItem, error) {
	var (
		it    model.MaterialItem
		kinds []string
	)
	if err := row.Scan(&it.ID, &it.CategoryID, &it.Name, &kinds, &it.Required, &it.SortOrder, &it.Active, &it.CreatedAt); err != nil {
		return nil, mapNoRows(err)
	}
	it.Kinds = toKinds(kinds)
	return &it, nil
}

func toKinds(ss []string) []model.ArtifactKind {
	out := make([]model.ArtifactKind, 0, len(ss))
	for _, s := range ss {
		out = append(out, model.ArtifactKind(s))
	}
	return out
}

func fromKinds(ks []model.ArtifactKind) []string {
	if ks == nil {
		return nil
	}
	out := make([]string, 0, len(ks))
	for _, k := range ks {
		out = append(out, string(k))
	}
	return out
}

// CreateCategory inserts an active category.
func (r *MaterialRepo) CreateCategory(ctx context.Context, c *model.MaterialCategory) error {
	const q = `
INSERT INTO material_categories (id, name, sort_order, active)
VALUES ($1, $2, $3, $4)
RETURNING created_at`
	return r.db.Pool.QueryRow(ctx, q, c.ID, c.Name, c.SortOrder, c.Active).Scan(&c.CreatedAt)
}

// GetCategory loads a category regardless of its active flag.
func (r *MaterialRepo) GetCategory(ctx context.Context, id uuid.UUID) (*model.MaterialCategory, error) {
	const q = `SELECT ` + categoryColumns + ` FROM material_categories WHERE id=$1`
	return scanCategory(r.db.Pool.QueryRow(ctx, q, id))
}

// UpdateCategory applies the non-nil fields of p.
func (r *MaterialRepo) UpdateCategory(ctx context.Context, id uuid.UUID, p model.CategoryPatch) (*model.MaterialCategory, error) {
	const q = `
UPDATE material_categories SET
  name=COALESCE($2, name),
  sort_order=COALESCE($3, sort_order)
WHERE id=$1
RETURNING ` + categoryColumns
	return scanCategory(r.db.Pool.QueryRow(ctx, q, id, p.Name, p.SortOrder))
}

// SetCategoryActive flips the soft-delete flag of a category.
func (r *MaterialRepo) SetCategoryActive(ctx context.Context, id uuid.UUID, active bool) error {
	const q = `UPDATE material_categories SET active=$2 WHERE id=$1`
	tag, err := r.db.Pool.Exec(ctx, q, id, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// ActiveCategories returns active categories in enumeration order.
func (r *MaterialRepo) ActiveCategories(ctx context.Context) ([]model.MaterialCategory, error) {
	const q = `
SELECT ` + categoryColumns + `
FROM material_categories
WHERE active
ORDER BY sort_order ASC, seq ASC`
	rows, err := r.db.Pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.MaterialCategory
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// CreateItem inserts an item. An unknown category yields errs.ErrNotFound.
func (r *MaterialRepo) CreateItem(ctx context.Context, it *model.MaterialItem) error {
	const q = `
INSERT INTO material_items (id, category_id, name, kinds, required, sort_order, active)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING created_at`
	kinds := fromKinds(it.Kinds)
	if kinds == nil {
		kinds = []string{}
	}
	err := r.db.Pool.QueryRow(ctx, q, it.ID, it.CategoryID, it.Name, kinds, it.Required, it.SortOrder, it.Active).
		Scan(&it.CreatedAt)
	if isForeignKeyViolation(err) {
		return fmt.Errorf("category %s: %w", it.CategoryID, errs.ErrNotFound)
	}
	return err
}

// GetItem loads an item regardless of its active flag.
func (r *MaterialRepo) GetItem(ctx context.Context, id uuid.UUID) (*model.MaterialItem, error) {
	const q = `SELECT ` + itemColumns + ` FROM material_items WHERE id=$1`
	return scanItem(r.db.Pool.QueryRow(ctx, q, id))
}

// UpdateItem applies the non-nil fields of p.
func (r *MaterialRepo) UpdateItem(ctx context.Context, id uuid.UUID, p model.ItemPatch) (*model.MaterialItem, error) {
	const q = `
UPDATE material_items SET
  name=COALESCE($2, name),
  kinds=COALESCE($3::text[], kinds),
  required=COALESCE($4, required),
  sort_order=COALESCE($5, sort_order)
WHERE id=$1
RETURNING ` + itemColumns
	return scanItem(r.db.Pool.QueryRow(ctx, q, id, p.Name, fromKinds(p.Kinds), p.Required, p.SortOrder))
}

// SetItemActive flips the soft-delete flag of an item.
func (r *MaterialRepo) SetItemActive(ctx context.Context, id uuid.UUID, active bool) error {
	const q = `UPDATE material_items SET active=$2 WHERE id=$1`
	tag, err := r.db.Pool.Exec(ctx, q, id, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// ActiveItems returns active items whose category is active too, in enumeration order.
func (r *MaterialRepo) ActiveItems(ctx context.Context) ([]model.MaterialItem, error) {
	const q = `
SELECT i.id, i.category_id, i.name, i.kinds, i.required, i.sort_order, i.active, i.created_at
FROM material_items i
JOIN material_categories c ON c.id = i.category_id
WHERE i.active AND c.active
ORDER BY i.sort_order ASC, i.seq ASC`
	rows, err := r.db.Pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.MaterialItem
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *it)
	}
	return out, rows.Err()
}
