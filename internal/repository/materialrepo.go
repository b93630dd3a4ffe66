package repository

import (
	"context"

	"github.com/and161185/loandocs/internal/model"
	"github.com/gofrs/uuid/v5"
)

// MaterialRepository persists the checklist taxonomy. Rows are never deleted.
type MaterialRepository interface {
	CreateCategory(ctx context.Context, c *model.MaterialCategory) error
	GetCategory(ctx context.Context, id uuid.UUID) (*model.MaterialCategory, error)
	UpdateCategory(ctx context.Context, id uuid.UUID, p model.CategoryPatch) (*model.MaterialCategory, error)
	SetCategoryActive(ctx context.Context, id uuid.UUID, active bool) error
	// ActiveCategories returns active categories by sort order, then insertion order.
	ActiveCategories(ctx context.Context) ([]model.MaterialCategory, error)

	CreateItem(ctx context.Context, it *model.MaterialItem) error
	GetItem(ctx context.Context, id uuid.UUID) (*model.MaterialItem, error)
	UpdateItem(ctx context.Context, id uuid.UUID, p model.ItemPatch) (*model.MaterialItem, error)
	SetItemActive(ctx context.Context, id uuid.UUID, active bool) error
	// ActiveItems returns active items of active categories by sort order, then insertion order.
	ActiveItems(ctx context.Context) ([]model.MaterialItem, error)
}
