package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/and161185/loandocs/internal/errs"
	"github.com/and161185/loandocs/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// OrderRepo implements OrderRepository using PostgreSQL.
type OrderRepo struct{ db *DB }

// NewOrderRepo constructs an order repository.
func NewOrderRepo(db *DB) *OrderRepo { return &OrderRepo{db: db} }

const orderColumns = `id, order_number, customer_name, customer_id_card, status, creator_id, created_at, updated_at`

func scanOrder(row pgx.Row) (*model.Order, error) {
	var (
		o      model.Order
		status string
	)
	if err := row.Scan(&o.ID, &o.Number, &o.CustomerName, &o.CustomerIDCard, &status, &o.CreatorID, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, mapNoRows(err)
	}
	o.Status = model.OrderStatus(status)
	return &o, nil
}

// Create inserts an order. A taken order number yields errs.ErrConflict.
func (r *OrderRepo) Create(ctx context.Context, o *model.Order) error {
	const q = `
INSERT INTO orders (id, order_number, customer_name, customer_id_card, status, creator_id)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING created_at, updated_at`
	err := r.db.Pool.QueryRow(ctx, q, o.ID, o.Number, o.CustomerName, o.CustomerIDCard, string(o.Status), o.CreatorID).
		Scan(&o.CreatedAt, &o.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("order number %s: %w", o.Number, errs.ErrConflict)
	}
	return err
}

// NumberExists reports whether the order number is taken.
func (r *OrderRepo) NumberExists(ctx context.Context, number string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM orders WHERE order_number=$1)`
	var ok bool
	if err := r.db.Pool.QueryRow(ctx, q, number).Scan(&ok); err != nil {
		return false, err
	}
	return ok, nil
}

// Get loads an order by ID.
func (r *OrderRepo) Get(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	const q = `SELECT ` + orderColumns + ` FROM orders WHERE id=$1`
	return scanOrder(r.db.Pool.QueryRow(ctx, q, id))
}

// orderWhere builds the predicate shared by the page and count queries.
func orderWhere(f model.OrderFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if f.CreatorID != uuid.Nil {
		args = append(args, f.CreatorID)
		conds = append(conds, fmt.Sprintf("creator_id=$%d", len(args)))
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		args = append(args, "%"+escapeLike(s)+"%")
		n := len(args)
		conds = append(conds, fmt.Sprintf("(order_number ILIKE $%d OR customer_name ILIKE $%d)", n, n))
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		conds = append(conds, fmt.Sprintf("status=$%d", len(args)))
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }

// List returns one page of orders matching f and the total over the same predicate.
func (r *OrderRepo) List(ctx context.Context, f model.OrderFilter) ([]model.Order, int, error) {
	where, args := orderWhere(f)

	var total int
	if err := r.db.Pool.QueryRow(ctx, `SELECT count(*) FROM orders`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	q := `SELECT ` + orderColumns + ` FROM orders` + where +
		fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	pageArgs := append(append([]any{}, args...), f.Size, f.Offset())
	rows, err := r.db.Pool.Query(ctx, q, pageArgs...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]model.Order, 0, f.Size)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// Update applies the non-nil fields of p in one statement and returns the new row.
func (r *OrderRepo) Update(ctx context.Context, id uuid.UUID, p model.OrderPatch) (*model.Order, error) {
	const q = `
UPDATE orders SET
  customer_name=COALESCE($2, customer_name),
  customer_id_card=COALESCE($3, customer_id_card),
  status=COALESCE($4, status),
  updated_at=now()
WHERE id=$1
RETURNING ` + orderColumns
	var status *string
	if p.Status != nil {
		s := string(*p.Status)
		status = &s
	}
	return scanOrder(r.db.Pool.QueryRow(ctx, q, id, p.CustomerName, p.CustomerIDCard, status))
}

// DeleteInProgress removes an in-progress order. Artifacts and tokens go with it
// through ON DELETE CASCADE; the storage keys of binary artifacts are returned so
// the caller can reclaim blobs after commit.
func (r *OrderRepo) DeleteInProgress(ctx context.Context, id uuid.UUID) (keys []string, err error) {
	err = r.db.inTx(ctx, func(tx pgx.Tx) error {
		const sel = `SELECT status FROM orders WHERE id=$1 FOR UPDATE`
		var status string
		if err := tx.QueryRow(ctx, sel, id).Scan(&status); err != nil {
			return mapNoRows(err)
		}
		if model.OrderStatus(status) != model.StatusInProgress {
			return fmt.Errorf("order is %s: %w", status, errs.ErrInvalidState)
		}

		const keysQ = `SELECT storage_key FROM artifacts WHERE order_id=$1 AND storage_key IS NOT NULL`
		rows, err := tx.Query(ctx, keysQ, id)
		if err != nil {
			return err
		}
		for rows.Next() {
			var k string
			if err := rows.Scan(&k); err != nil {
				rows.Close()
				return err
			}
			keys = append(keys, k)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `DELETE FROM orders WHERE id=$1`, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}
