package repository

import (
	"context"

	"github.com/and161185/loandocs/internal/model"
	"github.com/gofrs/uuid/v5"
)

// ArtifactRepository persists artifact records (not their binary content).
type ArtifactRepository interface {
	Create(ctx context.Context, a *model.Artifact) error
	Get(ctx context.Context, id uuid.UUID) (*model.Artifact, error)
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]model.Artifact, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
