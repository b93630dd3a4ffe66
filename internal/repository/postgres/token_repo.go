package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/and161185/loandocs/internal/errs"
	"github.com/and161185/loandocs/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// TokenRepo implements TokenRepository using PostgreSQL.
type TokenRepo struct{ db *DB }

// NewTokenRepo constructs a collaboration token repository.
func NewTokenRepo(db *DB) *TokenRepo { return &TokenRepo{db: db} }

const tokenColumns = `id, order_id, token, expires_at, created_by, created_at`

func scanToken(row pgx.Row) (*model.CollabToken, error) {
	var t model.CollabToken
	if err := row.Scan(&t.ID, &t.OrderID, &t.Token, &t.ExpiresAt, &t.CreatedBy, &t.CreatedAt); err != nil {
		return nil, mapNoRows(err)
	}
	return &t, nil
}

// GetOrCreateLive locks the order row, so concurrent mints of one order serialize
// and at most one live token is ever inserted.
func (r *TokenRepo) GetOrCreateLive(
	ctx context.Context, candidate model.CollabToken, now time.Time,
) (tok model.CollabToken, created bool, err error) {
	err = r.db.inTx(ctx, func(tx pgx.Tx) error {
		const lock = `SELECT id FROM orders WHERE id=$1 FOR UPDATE`
		var id uuid.UUID
		if err := tx.QueryRow(ctx, lock, candidate.OrderID).Scan(&id); err != nil {
			return mapNoRows(err)
		}

		const live = `
SELECT ` + tokenColumns + `
FROM collab_tokens
WHERE order_id=$1 AND expires_at > $2
ORDER BY expires_at DESC
LIMIT 1`
		existing, err := scanToken(tx.QueryRow(ctx, live, candidate.OrderID, now))
		switch {
		case err == nil:
			tok = *existing
			return nil
		case !errors.Is(err, errs.ErrNotFound):
			return err
		}

		const ins = `
INSERT INTO collab_tokens (id, order_id, token, expires_at, created_by)
VALUES ($1, $2, $3, $4, $5)
RETURNING created_at`
		tok = candidate
		if err := tx.QueryRow(ctx, ins, tok.ID, tok.OrderID, tok.Token, tok.ExpiresAt, tok.CreatedBy).Scan(&tok.CreatedAt); err != nil {
			if isUniqueViolation(err) {
				return errs.ErrConflict
			}
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		return model.CollabToken{}, false, err
	}
	return tok, created, nil
}

// GetByToken loads a token by its opaque string, expired or not.
func (r *TokenRepo) GetByToken(ctx context.Context, token string) (*model.CollabToken, error) {
	const q = `SELECT ` + tokenColumns + ` FROM collab_tokens WHERE token=$1`
	return scanToken(r.db.Pool.QueryRow(ctx, q, token))
}

// ListByOrder returns all tokens of an order, newest first.
func (r *TokenRepo) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]model.CollabToken, error) {
	const q = `
SELECT ` + tokenColumns + `
FROM collab_tokens
WHERE order_id=$1
ORDER BY created_at DESC, id DESC`
	rows, err := r.db.Pool.Query(ctx, q, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.CollabToken{}
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// Delete removes one token of an order.
func (r *TokenRepo) Delete(ctx context.Context, orderID, id uuid.UUID) error {
	const q = `DELETE FROM collab_tokens WHERE id=$1 AND order_id=$2`
	tag, err := r.db.Pool.Exec(ctx, q, id, orderID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// DeleteExpired removes tokens whose expiry is not after now.
func (r *TokenRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM collab_tokens WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
