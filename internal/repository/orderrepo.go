package repository

import (
	"context"

	"github.com/and161185/loandocs/internal/model"
	"github.com/gofrs/uuid/v5"
)

// OrderRepository persists orders.
type OrderRepository interface {
	// Create inserts an order; a taken order number yields errs.ErrConflict.
	Create(ctx context.Context, o *model.Order) error
	// NumberExists reports whether an order number is already taken.
	NumberExists(ctx context.Context, number string) (bool, error)
	// Get loads an order by ID.
	Get(ctx context.Context, id uuid.UUID) (*model.Order, error)
	// List returns one page and the total matching the same predicate.
	List(ctx context.Context, f model.OrderFilter) ([]model.Order, int, error)
	// Update applies a partial update atomically and returns the new state.
	Update(ctx context.Context, id uuid.UUID, p model.OrderPatch) (*model.Order, error)
	// DeleteInProgress deletes an in-progress order with its artifacts and tokens,
	// returning the storage keys of the deleted binary artifacts.
	// A completed order yields errs.ErrInvalidState.
	DeleteInProgress(ctx context.Context, id uuid.UUID) ([]string, error)
}
