package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/port"
)

var inventoryColumns = []string{"product_id", "quantity", "version", "updated_at"}

func newMockMySQLStore(t *testing.T) (*MySQLStore, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := NewMySQLStore(sqlx.NewDb(db, "mysql"))
	store.now = fixedClock(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC))
	store.newID = func() string { return "purchase-1" }
	return store, mock
}

func TestMySQLStore_GetAbsent(t *testing.T) {
	store, mock := newMockMySQLStore(t)

	mock.ExpectQuery(selectInventorySQL).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows(inventoryColumns))

	rec, err := store.Get(context.Background(), 7)
	require.NoError(t, err)
	assert.Nil(t, rec)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLStore_GetFound(t *testing.T) {
	store, mock := newMockMySQLStore(t)
	at := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(selectInventorySQL).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows(inventoryColumns).AddRow(int64(7), int64(12), int64(3), at))

	rec, err := store.Get(context.Background(), 7)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, domain.InventoryRecord{ProductID: 7, Quantity: 12, Version: 3, UpdatedAt: at}, *rec)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLStore_SetAbsolute(t *testing.T) {
	store, mock := newMockMySQLStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(upsertInventorySQL).
		WithArgs(int64(5), 10, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(selectInventorySQL).
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows(inventoryColumns).AddRow(int64(5), int64(10), int64(1), store.now()))
	mock.ExpectCommit()

	rec, err := store.SetAbsolute(context.Background(), 5, 10)
	require.NoError(t, err)
	assert.Equal(t, 10, rec.Quantity)
	assert.Equal(t, 1, rec.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLStore_SetAbsoluteReadBackMissing(t *testing.T) {
	store, mock := newMockMySQLStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(upsertInventorySQL).
		WithArgs(int64(5), 10, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(selectInventorySQL).
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows(inventoryColumns))
	mock.ExpectRollback()

	_, err := store.SetAbsolute(context.Background(), 5, 10)
	assert.ErrorIs(t, err, domain.ErrInternalInconsistency)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLStore_SetAbsoluteNegativeSkipsDatabase(t *testing.T) {
	store, mock := newMockMySQLStore(t)

	_, err := store.SetAbsolute(context.Background(), 5, -3)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLStore_DecrementAndRecord(t *testing.T) {
	store, mock := newMockMySQLStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(decrementInventorySQL).
		WithArgs(2, sqlmock.AnyArg(), int64(7), 2).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(selectInventorySQL).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows(inventoryColumns).AddRow(int64(7), int64(8), int64(4), store.now()))
	mock.ExpectExec(insertPurchaseSQL).
		WithArgs("purchase-1", int64(7), 2, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	var (
		stock    domain.InventoryRecord
		purchase domain.PurchaseRecord
	)
	err := store.WithinTx(context.Background(), 7, func(ctx context.Context, tx port.Tx) error {
		var err error
		if stock, err = tx.DecrementIfSufficient(ctx, 7, 2); err != nil {
			return err
		}
		purchase, err = tx.Append(ctx, 7, 2)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 8, stock.Quantity)
	assert.Equal(t, "purchase-1", purchase.ID)
	assert.Equal(t, 2, purchase.Quantity)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLStore_DecrementInsufficient(t *testing.T) {
	store, mock := newMockMySQLStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(decrementInventorySQL).
		WithArgs(5, sqlmock.AnyArg(), int64(7), 5).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(lockInventorySQL).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows(inventoryColumns).AddRow(int64(7), int64(1), int64(4), store.now()))
	mock.ExpectRollback()

	_, err := store.DecrementIfSufficient(context.Background(), 7, 5)
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLStore_DecrementMissingProduct(t *testing.T) {
	store, mock := newMockMySQLStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(decrementInventorySQL).
		WithArgs(1, sqlmock.AnyArg(), int64(99), 1).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(lockInventorySQL).
		WithArgs(int64(99)).
		WillReturnRows(sqlmock.NewRows(inventoryColumns))
	mock.ExpectRollback()

	_, err := store.DecrementIfSufficient(context.Background(), 99, 1)
	assert.ErrorIs(t, err, domain.ErrProductNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLStore_RecordFailureRollsBack(t *testing.T) {
	store, mock := newMockMySQLStore(t)
	dbErr := errors.New("disk full")

	mock.ExpectBegin()
	mock.ExpectExec(decrementInventorySQL).
		WithArgs(1, sqlmock.AnyArg(), int64(7), 1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(selectInventorySQL).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows(inventoryColumns).AddRow(int64(7), int64(9), int64(2), store.now()))
	mock.ExpectExec(insertPurchaseSQL).
		WithArgs("purchase-1", int64(7), 1, sqlmock.AnyArg()).
		WillReturnError(dbErr)
	mock.ExpectRollback()

	err := store.WithinTx(context.Background(), 7, func(ctx context.Context, tx port.Tx) error {
		if _, err := tx.DecrementIfSufficient(ctx, 7, 1); err != nil {
			return err
		}
		_, err := tx.Append(ctx, 7, 1)
		return err
	})
	assert.ErrorIs(t, err, dbErr)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLStore_ListPurchases(t *testing.T) {
	store, mock := newMockMySQLStore(t)
	at := store.now()

	mock.ExpectQuery(selectPurchasesSQL).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "product_id", "quantity", "created_at"}).
			AddRow("a", int64(7), int64(1), at).
			AddRow("b", int64(7), int64(3), at))

	purchases, err := store.ListPurchases(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, purchases, 2)
	assert.Equal(t, "b", purchases[1].ID)
	assert.Equal(t, 3, purchases[1].Quantity)
	assert.NoError(t, mock.ExpectationsWereMet())
}
