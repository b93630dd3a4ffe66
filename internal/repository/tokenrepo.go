package repository

import (
	"context"
	"time"

	"github.com/and161185/loandocs/internal/model"
	"github.com/gofrs/uuid/v5"
)

// TokenRepository persists collaboration tokens.
type TokenRepository interface {
	// GetOrCreateLive returns the order's token that is live at now, or inserts
	// candidate when there is none. The decision is atomic per order; created
	// reports whether candidate was inserted.
	GetOrCreateLive(ctx context.Context, candidate model.CollabToken, now time.Time) (tok model.CollabToken, created bool, err error)
	// GetByToken loads a token by its opaque string regardless of expiry.
	GetByToken(ctx context.Context, token string) (*model.CollabToken, error)
	// ListByOrder returns all tokens of an order, newest first.
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]model.CollabToken, error)
	// Delete removes one token of an order.
	Delete(ctx context.Context, orderID, id uuid.UUID) error
	// DeleteExpired removes tokens expired at now and returns their count.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
