package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/port"
)

const (
	selectInventorySQL = `SELECT product_id, quantity, version, updated_at FROM inventory WHERE product_id = ?`

	lockInventorySQL = selectInventorySQL + ` FOR UPDATE`

	upsertInventorySQL = `INSERT INTO inventory (product_id, quantity, version, updated_at) VALUES (?, ?, 1, ?)
		ON DUPLICATE KEY UPDATE quantity = VALUES(quantity), version = version + 1, updated_at = VALUES(updated_at)`

	decrementInventorySQL = `UPDATE inventory
		SET quantity = quantity - ?, version = version + 1, updated_at = ?
		WHERE product_id = ? AND quantity >= ?`

	insertPurchaseSQL = `INSERT INTO purchases (id, product_id, quantity, created_at) VALUES (?, ?, ?, ?)`

	selectPurchasesSQL = `SELECT id, product_id, quantity, created_at FROM purchases
		WHERE product_id = ? ORDER BY created_at, id`
)

type inventoryRow struct {
	ProductID int64     `db:"product_id"`
	Quantity  int       `db:"quantity"`
	Version   int       `db:"version"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r inventoryRow) toDomain() domain.InventoryRecord {
	return domain.InventoryRecord{
		ProductID: r.ProductID,
		Quantity:  r.Quantity,
		Version:   r.Version,
		UpdatedAt: r.UpdatedAt,
	}
}

type purchaseRow struct {
	ID        string    `db:"id"`
	ProductID int64     `db:"product_id"`
	Quantity  int       `db:"quantity"`
	CreatedAt time.Time `db:"created_at"`
}

// MySQLStore persists the ledger in MySQL. A unit of work is one database
// transaction that row-locks the product's inventory row.
type MySQLStore struct {
	db    *sqlx.DB
	now   func() time.Time
	newID func() string
}

func NewMySQLStore(db *sqlx.DB) *MySQLStore {
	return &MySQLStore{db: db, now: utcNow, newID: newPurchaseID}
}

func (m *MySQLStore) Get(ctx context.Context, productID int64) (*domain.InventoryRecord, error) {
	return getInventory(ctx, m.db, selectInventorySQL, productID)
}

func (m *MySQLStore) SetAbsolute(ctx context.Context, productID int64, quantity int) (domain.InventoryRecord, error) {
	return setAbsolute(ctx, m, productID, quantity)
}

func (m *MySQLStore) DecrementIfSufficient(ctx context.Context, productID int64, amount int) (domain.InventoryRecord, error) {
	return decrementIfSufficient(ctx, m, productID, amount)
}

func (m *MySQLStore) ListPurchases(ctx context.Context, productID int64) ([]domain.PurchaseRecord, error) {
	var rows []purchaseRow
	if err := m.db.SelectContext(ctx, &rows, selectPurchasesSQL, productID); err != nil {
		return nil, fmt.Errorf("query purchases: %w", err)
	}

	out := make([]domain.PurchaseRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.PurchaseRecord{
			ID:        r.ID,
			ProductID: r.ProductID,
			Quantity:  r.Quantity,
			CreatedAt: r.CreatedAt,
		})
	}
	return out, nil
}

func (m *MySQLStore) Ping(ctx context.Context) error {
	return m.db.PingContext(ctx)
}

func (m *MySQLStore) WithinTx(ctx context.Context, productID int64, fn func(ctx context.Context, tx port.Tx) error) error {
	tx, err := m.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(ctx, &mysqlTx{tx: tx, now: m.now, newID: m.newID}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type mysqlTx struct {
	tx    *sqlx.Tx
	now   func() time.Time
	newID func() string
}

func (t *mysqlTx) Get(ctx context.Context, productID int64) (*domain.InventoryRecord, error) {
	return getInventory(ctx, t.tx, lockInventorySQL, productID)
}

func (t *mysqlTx) SetAbsolute(ctx context.Context, productID int64, quantity int) (domain.InventoryRecord, error) {
	if err := checkSetQuantity(quantity); err != nil {
		return domain.InventoryRecord{}, err
	}

	if _, err := t.tx.ExecContext(ctx, upsertInventorySQL, productID, quantity, t.now()); err != nil {
		return domain.InventoryRecord{}, fmt.Errorf("upsert inventory: %w", err)
	}
	return t.readBack(ctx, productID)
}

func (t *mysqlTx) DecrementIfSufficient(ctx context.Context, productID int64, amount int) (domain.InventoryRecord, error) {
	if err := checkAmount(amount); err != nil {
		return domain.InventoryRecord{}, err
	}

	result, err := t.tx.ExecContext(ctx, decrementInventorySQL, amount, t.now(), productID, amount)
	if err != nil {
		return domain.InventoryRecord{}, fmt.Errorf("update inventory: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return domain.InventoryRecord{}, fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		current, err := t.Get(ctx, productID)
		if err != nil {
			return domain.InventoryRecord{}, err
		}
		if current == nil {
			return domain.InventoryRecord{}, productNotFound(productID)
		}
		return domain.InventoryRecord{}, insufficientStock(productID, current.Quantity, amount)
	}

	return t.readBack(ctx, productID)
}

func (t *mysqlTx) Append(ctx context.Context, productID int64, quantity int) (domain.PurchaseRecord, error) {
	if err := checkAmount(quantity); err != nil {
		return domain.PurchaseRecord{}, err
	}

	rec := domain.PurchaseRecord{
		ID:        t.newID(),
		ProductID: productID,
		Quantity:  quantity,
		CreatedAt: t.now(),
	}
	_, err := t.tx.ExecContext(ctx, insertPurchaseSQL, rec.ID, rec.ProductID, rec.Quantity, rec.CreatedAt)
	if err != nil {
		return domain.PurchaseRecord{}, fmt.Errorf("insert purchase: %w", err)
	}
	return rec, nil
}

// readBack returns the row a write just touched. A missing row means the
// write and the read disagree, which is never a client error.
func (t *mysqlTx) readBack(ctx context.Context, productID int64) (domain.InventoryRecord, error) {
	rec, err := getInventory(ctx, t.tx, selectInventorySQL, productID)
	if err != nil {
		return domain.InventoryRecord{}, err
	}
	if rec == nil {
		return domain.InventoryRecord{}, fmt.Errorf("%w: inventory row for product %d vanished after write",
			domain.ErrInternalInconsistency, productID)
	}
	return *rec, nil
}

func getInventory(ctx context.Context, q sqlx.QueryerContext, query string, productID int64) (*domain.InventoryRecord, error) {
	var row inventoryRow
	err := sqlx.GetContext(ctx, q, &row, query, productID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query inventory: %w", err)
	}

	rec := row.toDomain()
	return &rec, nil
}
