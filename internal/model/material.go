package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// ArtifactKind classifies an uploaded artifact.
type ArtifactKind string

// Artifact kinds.
const (
	KindImage    ArtifactKind = "image"
	KindVideo    ArtifactKind = "video"
	KindDocument ArtifactKind = "document"
	KindText     ArtifactKind = "text"
)

// Valid reports whether k is a known kind.
func (k ArtifactKind) Valid() bool {
	switch k {
	case KindImage, KindVideo, KindDocument, KindText:
		return true
	}
	return false
}

// MaterialCategory groups checklist items. Never physically removed once referenced.
type MaterialCategory struct {
	ID        uuid.UUID
	Name      string
	SortOrder int
	Active    bool
	CreatedAt time.Time
}

// CategoryPatch is a partial category update.
type CategoryPatch struct {
	Name      *string
	SortOrder *int
}

// MaterialItem is one checklist entry under a category.
type MaterialItem struct {
	ID         uuid.UUID
	CategoryID uuid.UUID
	Name       string
	Kinds      []ArtifactKind // accepted artifact kinds
	Required   bool
	SortOrder  int
	Active     bool
	CreatedAt  time.Time
}

// Accepts reports whether an artifact of kind k may be filed under the item.
// An item without kinds accepts everything.
func (it MaterialItem) Accepts(k ArtifactKind) bool {
	if len(it.Kinds) == 0 {
		return true
	}
	for _, ak := range it.Kinds {
		if ak == k {
			return true
		}
	}
	return false
}

// NewMaterialItem is the input for item creation.
type NewMaterialItem struct {
	Name      string
	Kinds     []ArtifactKind
	Required  bool
	SortOrder int
}

// ItemPatch is a partial item update; nil fields (and a nil Kinds slice) are unchanged.
type ItemPatch struct {
	Name      *string
	Kinds     []ArtifactKind
	Required  *bool
	SortOrder *int
}

// ChecklistCategory is an active category with its active items, in enumeration order.
type ChecklistCategory struct {
	Category MaterialCategory
	Items    []MaterialItem
}
