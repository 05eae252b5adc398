package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/port"
)

var (
	ErrOptimisticLock = errors.New("optimistic lock conflict")
	ErrOutOfScope     = errors.New("product is outside the unit of work")
)

var (
	_ port.Store = (*MemoryStore)(nil)
	_ port.Store = (*MySQLStore)(nil)
	_ port.Store = (*RedisStore)(nil)
)

func utcNow() time.Time { return time.Now().UTC() }

func newPurchaseID() string { return uuid.New().String() }

func checkSetQuantity(quantity int) error {
	if quantity < 0 || quantity > domain.MaxQuantity {
		return fmt.Errorf("%w: quantity must be within [0, %d], got %d", domain.ErrInvalidArgument, domain.MaxQuantity, quantity)
	}
	return nil
}

func checkAmount(amount int) error {
	if amount <= 0 || amount > domain.MaxQuantity {
		return fmt.Errorf("%w: amount must be within [1, %d], got %d", domain.ErrInvalidArgument, domain.MaxQuantity, amount)
	}
	return nil
}

func checkScope(scoped, productID int64) error {
	if scoped != productID {
		return fmt.Errorf("%w: scoped to %d, got %d", ErrOutOfScope, scoped, productID)
	}
	return nil
}

func productNotFound(productID int64) error {
	return fmt.Errorf("%w: no stock record for product %d", domain.ErrProductNotFound, productID)
}

func insufficientStock(productID int64, available, requested int) error {
	return fmt.Errorf("%w: product %d has %d, requested %d",
		domain.ErrInsufficientStock, productID, available, requested)
}

// setAbsolute and decrementIfSufficient give every store single-operation
// units of work, so the standalone ledger calls share the transactional path.
func setAbsolute(ctx context.Context, t port.Transactor, productID int64, quantity int) (domain.InventoryRecord, error) {
	if err := checkSetQuantity(quantity); err != nil {
		return domain.InventoryRecord{}, err
	}

	var rec domain.InventoryRecord
	err := t.WithinTx(ctx, productID, func(ctx context.Context, tx port.Tx) error {
		var err error
		rec, err = tx.SetAbsolute(ctx, productID, quantity)
		return err
	})
	return rec, err
}

func decrementIfSufficient(ctx context.Context, t port.Transactor, productID int64, amount int) (domain.InventoryRecord, error) {
	if err := checkAmount(amount); err != nil {
		return domain.InventoryRecord{}, err
	}

	var rec domain.InventoryRecord
	err := t.WithinTx(ctx, productID, func(ctx context.Context, tx port.Tx) error {
		var err error
		rec, err = tx.DecrementIfSufficient(ctx, productID, amount)
		return err
	})
	return rec, err
}
