package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/loandocs/internal/access"
	"github.com/and161185/loandocs/internal/errs"
	"github.com/and161185/loandocs/internal/model"
	"github.com/and161185/loandocs/internal/repository"
)

// MaterialService manages the checklist taxonomy. Removal is always a soft delete.
type MaterialService interface {
	// Checklist enumerates active categories with their active items.
	Checklist(ctx context.Context, p access.Principal) ([]model.ChecklistCategory, error)
	// ChecklistForOrder is the checklist as part of an order summary, so any
	// principal allowed to read the order (collaboration tokens included) sees it.
	ChecklistForOrder(ctx context.Context, p access.Principal, o *model.Order) ([]model.ChecklistCategory, error)

	CreateCategory(ctx context.Context, p access.Principal, name string, sortOrder int) (model.MaterialCategory, error)
	UpdateCategory(ctx context.Context, p access.Principal, id uuid.UUID, patch model.CategoryPatch) (model.MaterialCategory, error)
	DeactivateCategory(ctx context.Context, p access.Principal, id uuid.UUID) error

	CreateItem(ctx context.Context, p access.Principal, categoryID uuid.UUID, in model.NewMaterialItem) (model.MaterialItem, error)
	UpdateItem(ctx context.Context, p access.Principal, id uuid.UUID, patch model.ItemPatch) (model.MaterialItem, error)
	DeactivateItem(ctx context.Context, p access.Principal, id uuid.UUID) error
}

type MaterialServiceImpl struct {
	repo  repository.MaterialRepository
	guard *access.Guard
}

// NewMaterialService constructs MaterialService.
func NewMaterialService(repo repository.MaterialRepository, guard *access.Guard) *MaterialServiceImpl {
	return &MaterialServiceImpl{repo: repo, guard: orDefault(guard)}
}

// Checklist requires the checklist read capability.
func (s *MaterialServiceImpl) Checklist(ctx context.Context, p access.Principal) ([]model.ChecklistCategory, error) {
	if err := s.guard.Check(p, access.ActionReadChecklist, nil); err != nil {
		return nil, err
	}
	return s.checklist(ctx)
}

// ChecklistForOrder requires read access to o.
func (s *MaterialServiceImpl) ChecklistForOrder(ctx context.Context, p access.Principal, o *model.Order) ([]model.ChecklistCategory, error) {
	if err := s.guard.Check(p, access.ActionReadOrder, o); err != nil {
		return nil, err
	}
	return s.checklist(ctx)
}

// checklist groups active items under their categories, keeping both orders.
func (s *MaterialServiceImpl) checklist(ctx context.Context) ([]model.ChecklistCategory, error) {
	cats, err := s.repo.ActiveCategories(ctx)
	if err != nil {
		return nil, err
	}
	items, err := s.repo.ActiveItems(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.ChecklistCategory, len(cats))
	idx := make(map[uuid.UUID]int, len(cats))
	for i, c := range cats {
		out[i] = model.ChecklistCategory{Category: c, Items: []model.MaterialItem{}}
		idx[c.ID] = i
	}
	for _, it := range items {
		if i, ok := idx[it.CategoryID]; ok {
			out[i].Items = append(out[i].Items, it)
		}
	}
	return out, nil
}

func (s *MaterialServiceImpl) CreateCategory(ctx context.Context, p access.Principal, name string, sortOrder int) (model.MaterialCategory, error) {
	if err := s.guard.Check(p, access.ActionManageMaterials, nil); err != nil {
		return model.MaterialCategory{}, err
	}
	name, err := cleanName("category name", name)
	if err != nil {
		return model.MaterialCategory{}, err
	}
	if err := validSortOrder(sortOrder); err != nil {
		return model.MaterialCategory{}, err
	}
	id, err := uuid.NewV4()
	if err != nil {
		return model.MaterialCategory{}, err
	}
	c := model.MaterialCategory{ID: id, Name: name, SortOrder: sortOrder, Active: true}
	if err := s.repo.CreateCategory(ctx, &c); err != nil {
		return model.MaterialCategory{}, err
	}
	return c, nil
}

// UpdateCategory changes only the supplied fields.
func (s *MaterialServiceImpl) UpdateCategory(
	ctx context.Context, p access.Principal, id uuid.UUID, patch model.CategoryPatch,
) (model.MaterialCategory, error) {
	if err := s.guard.Check(p, access.ActionManageMaterials, nil); err != nil {
		return model.MaterialCategory{}, err
	}
	if patch.Name != nil {
		name, err := cleanName("category name", *patch.Name)
		if err != nil {
			return model.MaterialCategory{}, err
		}
		patch.Name = &name
	}
	if patch.SortOrder != nil {
		if err := validSortOrder(*patch.SortOrder); err != nil {
			return model.MaterialCategory{}, err
		}
	}
	if patch.Name == nil && patch.SortOrder == nil {
		c, err := s.repo.GetCategory(ctx, id)
		if err != nil {
			return model.MaterialCategory{}, err
		}
		return *c, nil
	}
	c, err := s.repo.UpdateCategory(ctx, id, patch)
	if err != nil {
		return model.MaterialCategory{}, err
	}
	return *c, nil
}

// DeactivateCategory hides the category and, through it, its items from the checklist.
// Artifacts referencing its items are untouched.
func (s *MaterialServiceImpl) DeactivateCategory(ctx context.Context, p access.Principal, id uuid.UUID) error {
	if err := s.guard.Check(p, access.ActionManageMaterials, nil); err != nil {
		return err
	}
	return s.repo.SetCategoryActive(ctx, id, false)
}

func (s *MaterialServiceImpl) CreateItem(
	ctx context.Context, p access.Principal, categoryID uuid.UUID, in model.NewMaterialItem,
) (model.MaterialItem, error) {
	if err := s.guard.Check(p, access.ActionManageMaterials, nil); err != nil {
		return model.MaterialItem{}, err
	}
	name, err := cleanName("item name", in.Name)
	if err != nil {
		return model.MaterialItem{}, err
	}
	kinds, err := cleanKinds(in.Kinds)
	if err != nil {
		return model.MaterialItem{}, err
	}
	if err := validSortOrder(in.SortOrder); err != nil {
		return model.MaterialItem{}, err
	}
	cat, err := s.repo.GetCategory(ctx, categoryID)
	if err != nil {
		return model.MaterialItem{}, err
	}
	if !cat.Active {
		return model.MaterialItem{}, fmt.Errorf("category %s is inactive: %w", cat.Name, errs.ErrInvalidState)
	}
	id, err := uuid.NewV4()
	if err != nil {
		return model.MaterialItem{}, err
	}
	it := model.MaterialItem{
		ID:         id,
		CategoryID: categoryID,
		Name:       name,
		Kinds:      kinds,
		Required:   in.Required,
		SortOrder:  in.SortOrder,
		Active:     true,
	}
	if err := s.repo.CreateItem(ctx, &it); err != nil {
		return model.MaterialItem{}, err
	}
	return it, nil
}

// UpdateItem changes only the supplied fields; a nil Kinds slice keeps the kinds.
func (s *MaterialServiceImpl) UpdateItem(
	ctx context.Context, p access.Principal, id uuid.UUID, patch model.ItemPatch,
) (model.MaterialItem, error) {
	if err := s.guard.Check(p, access.ActionManageMaterials, nil); err != nil {
		return model.MaterialItem{}, err
	}
	if patch.Name != nil {
		name, err := cleanName("item name", *patch.Name)
		if err != nil {
			return model.MaterialItem{}, err
		}
		patch.Name = &name
	}
	if patch.Kinds != nil {
		kinds, err := cleanKinds(patch.Kinds)
		if err != nil {
			return model.MaterialItem{}, err
		}
		patch.Kinds = kinds
	}
	if patch.SortOrder != nil {
		if err := validSortOrder(*patch.SortOrder); err != nil {
			return model.MaterialItem{}, err
		}
	}
	if patch.Name == nil && patch.Kinds == nil && patch.Required == nil && patch.SortOrder == nil {
		it, err := s.repo.GetItem(ctx, id)
		if err != nil {
			return model.MaterialItem{}, err
		}
		return *it, nil
	}
	it, err := s.repo.UpdateItem(ctx, id, patch)
	if err != nil {
		return model.MaterialItem{}, err
	}
	return *it, nil
}

func (s *MaterialServiceImpl) DeactivateItem(ctx context.Context, p access.Principal, id uuid.UUID) error {
	if err := s.guard.Check(p, access.ActionManageMaterials, nil); err != nil {
		return err
	}
	return s.repo.SetItemActive(ctx, id, false)
}

// itemForArtifact returns the referenced item when it can take an artifact of kind k.
func itemForArtifact(ctx context.Context, repo repository.MaterialRepository, id uuid.UUID, k model.ArtifactKind) (*model.MaterialItem, error) {
	it, err := repo.GetItem(ctx, id)
	if errors.Is(err, errs.ErrNotFound) {
		return nil, invalid("material item %s does not exist", id)
	}
	if err != nil {
		return nil, err
	}
	if !it.Active {
		return nil, invalid("material item %q is no longer collected", it.Name)
	}
	cat, err := repo.GetCategory(ctx, it.CategoryID)
	if err != nil && !errors.Is(err, errs.ErrNotFound) {
		return nil, err
	}
	if cat == nil || !cat.Active {
		return nil, invalid("material item %q is no longer collected", it.Name)
	}
	if !it.Accepts(k) {
		return nil, invalid("material item %q does not accept %s", it.Name, k)
	}
	return it, nil
}

// cleanKinds requires at least one known kind and drops duplicates.
func cleanKinds(ks []model.ArtifactKind) ([]model.ArtifactKind, error) {
	if len(ks) == 0 {
		return nil, invalid("at least one accepted kind is required")
	}
	seen := make(map[model.ArtifactKind]bool, len(ks))
	out := make([]model.ArtifactKind, 0, len(ks))
	for _, k := range ks {
		if !k.Valid() {
			return nil, invalid("unknown kind %q", k)
		}
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	return out, nil
}
