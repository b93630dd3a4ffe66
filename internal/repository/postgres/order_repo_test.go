package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/and161185/loandocs/internal/errs"
	"github.com/and161185/loandocs/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"
)

var orderCols = []string{"id", "order_number", "customer_name", "customer_id_card", "status", "creator_id", "created_at", "updated_at"}

func TestOrderRepo_Create_OK_and_Conflict(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewOrderRepo(db)
	ctx := context.Background()
	ts := time.Now()
	o := &model.Order{
		ID:           uuid.Must(uuid.NewV4()),
		Number:       "ORD20260504ABCDEF01",
		CustomerName: "Jane Roe",
		Status:       model.StatusInProgress,
		CreatorID:    uuid.Must(uuid.NewV4()),
	}

	mock.ExpectQuery(`INSERT INTO orders \(id, order_number, customer_name, customer_id_card, status, creator_id\) VALUES \(\$1, \$2, \$3, \$4, \$5, \$6\) RETURNING created_at, updated_at`).
		WithArgs(o.ID, o.Number, o.CustomerName, "", "in_progress", o.CreatorID).
		WillReturnRows(pgxmock.NewRows([]string{"created_at", "updated_at"}).AddRow(ts, ts))
	require.NoError(t, r.Create(ctx, o))
	require.Equal(t, ts, o.CreatedAt)

	mock.ExpectQuery(`INSERT INTO orders`).
		WithArgs(o.ID, o.Number, o.CustomerName, "", "in_progress", o.CreatorID).
		WillReturnError(&pgconn.PgError{Code: "23505"})
	require.ErrorIs(t, r.Create(ctx, o), errs.ErrConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepo_NumberExists(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewOrderRepo(db)

	mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM orders WHERE order_number=\$1\)`).
		WithArgs("ORD1").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	ok, err := r.NumberExists(context.Background(), "ORD1")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestOrderRepo_Get_NotFound(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewOrderRepo(db)
	id := uuid.Must(uuid.NewV4())

	mock.ExpectQuery(`SELECT id, order_number, .* FROM orders WHERE id=\$1`).
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)
	_, err := r.Get(context.Background(), id)
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestOrderRepo_List_FiltersAndCountShareThePredicate(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewOrderRepo(db)
	creator := uuid.Must(uuid.NewV4())
	ts := time.Now()
	f := model.OrderFilter{CreatorID: creator, Search: "50%", Status: model.StatusInProgress, Page: 2, Size: 10}

	mock.ExpectQuery(`SELECT count\(\*\) FROM orders WHERE creator_id=\$1 AND \(order_number ILIKE \$2 OR customer_name ILIKE \$2\) AND status=\$3`).
		WithArgs(creator, `%50\%%`, "in_progress").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(11))
	mock.ExpectQuery(`FROM orders WHERE creator_id=\$1 AND .* AND status=\$3 ORDER BY created_at DESC, id DESC LIMIT \$4 OFFSET \$5`).
		WithArgs(creator, `%50\%%`, "in_progress", 10, 10).
		WillReturnRows(pgxmock.NewRows(orderCols).
			AddRow(uuid.Must(uuid.NewV4()), "ORD2", "Ann", "", "in_progress", creator, ts, ts))

	items, total, err := r.List(context.Background(), f)
	require.NoError(t, err)
	require.Equal(t, 11, total)
	require.Len(t, items, 1)
	require.Equal(t, creator, items[0].CreatorID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepo_List_NoFilter(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewOrderRepo(db)

	mock.ExpectQuery(`^SELECT count\(\*\) FROM orders$`).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(`FROM orders ORDER BY created_at DESC, id DESC LIMIT \$1 OFFSET \$2`).
		WithArgs(20, 0).
		WillReturnRows(pgxmock.NewRows(orderCols))

	items, total, err := r.List(context.Background(), model.OrderFilter{Page: 1, Size: 20})
	require.NoError(t, err)
	require.Zero(t, total)
	require.Empty(t, items)
}

func TestOrderRepo_Update(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewOrderRepo(db)
	id := uuid.Must(uuid.NewV4())
	creator := uuid.Must(uuid.NewV4())
	ts := time.Now()
	st := model.StatusCompleted

	mock.ExpectQuery(`UPDATE orders SET customer_name=COALESCE\(\$2, customer_name\), .* WHERE id=\$1 RETURNING`).
		WithArgs(id, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows(orderCols).
			AddRow(id, "ORD3", "Bob", "X1", "completed", creator, ts, ts))

	o, err := r.Update(context.Background(), id, model.OrderPatch{Status: &st})
	require.NoError(t, err)
	require.Equal(t, model.StatusCompleted, o.Status)
	require.Equal(t, "Bob", o.CustomerName)
}

func TestOrderRepo_DeleteInProgress_OK(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewOrderRepo(db)
	id := uuid.Must(uuid.NewV4())

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT status FROM orders WHERE id=\$1 FOR UPDATE`).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow("in_progress"))
	mock.ExpectQuery(`SELECT storage_key FROM artifacts WHERE order_id=\$1 AND storage_key IS NOT NULL`).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"storage_key"}).AddRow("a/1.pdf").AddRow("a/2.jpg"))
	mock.ExpectExec(`DELETE FROM orders WHERE id=\$1`).
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectCommit()

	keys, err := r.DeleteInProgress(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, []string{"a/1.pdf", "a/2.jpg"}, keys)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepo_DeleteInProgress_CompletedRollsBack(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewOrderRepo(db)
	id := uuid.Must(uuid.NewV4())

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT status FROM orders WHERE id=\$1 FOR UPDATE`).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow("completed"))
	mock.ExpectRollback()

	_, err := r.DeleteInProgress(context.Background(), id)
	require.ErrorIs(t, err, errs.ErrInvalidState)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepo_DeleteInProgress_Missing(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewOrderRepo(db)
	id := uuid.Must(uuid.NewV4())

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT status FROM orders`).
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	_, err := r.DeleteInProgress(context.Background(), id)
	require.ErrorIs(t, err, errs.ErrNotFound)
}
