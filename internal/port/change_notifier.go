package port

import (
	"context"

	"github.com/rl1809/stock-ledger/internal/core/domain"
)

// ChangeNotifier emits inventory change signals without any delivery guarantee.
type ChangeNotifier interface {
	NotifyInventoryChanged(ctx context.Context, productID int64, newQuantity int) error
}

// EventPublisher pushes one event to a concrete sink (broker, pub/sub, log).
type EventPublisher interface {
	Publish(ctx context.Context, event domain.InventoryChanged) error
}
