package port

import (
	"context"

	"github.com/rl1809/stock-ledger/internal/core/domain"
)

type StockLedger interface {
	// Get returns the stored record, or nil when the product was never stocked
	Get(ctx context.Context, productID int64) (*domain.InventoryRecord, error)

	// SetAbsolute overwrites (or creates) the record; negative quantities are rejected before any write
	SetAbsolute(ctx context.Context, productID int64, quantity int) (domain.InventoryRecord, error)

	// DecrementIfSufficient subtracts amount, failing with ErrInsufficientStock instead of going below zero
	DecrementIfSufficient(ctx context.Context, productID int64, amount int) (domain.InventoryRecord, error)
}

type PurchaseRecorder interface {
	// Append adds a purchase to the log with a generated id and the store's clock
	Append(ctx context.Context, productID int64, quantity int) (domain.PurchaseRecord, error)
}

// Tx is a ledger and a recorder bound to one atomic unit of work.
type Tx interface {
	StockLedger
	PurchaseRecorder
}

type Transactor interface {
	// WithinTx runs fn in a unit of work scoped to productID. Units for the same
	// product are serialized; writes made through tx become visible only if fn
	// returns nil. fn may be invoked more than once when the store retries on conflict.
	WithinTx(ctx context.Context, productID int64, fn func(ctx context.Context, tx Tx) error) error
}

// Ledger is the slice of a store the services depend on.
type Ledger interface {
	StockLedger
	Transactor
}

// Store is what every storage driver provides.
type Store interface {
	Ledger

	// ListPurchases returns the purchase log of one product, oldest first
	ListPurchases(ctx context.Context, productID int64) ([]domain.PurchaseRecord, error)

	Ping(ctx context.Context) error
}
