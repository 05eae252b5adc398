package notifier

import (
	"context"

	"go.uber.org/zap"

	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/port"
)

var _ port.EventPublisher = (*LogPublisher)(nil)

// LogPublisher only logs events. Used when no broker is configured.
type LogPublisher struct {
	logger *zap.Logger
}

func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogPublisher{logger: logger.Named("events")}
}

func (p *LogPublisher) Publish(ctx context.Context, event domain.InventoryChanged) error {
	p.logger.Info("inventory changed",
		zap.String("event_id", event.EventID),
		zap.String("event_type", event.Type()),
		zap.Int64("product_id", event.ProductID),
		zap.Int("new_quantity", event.NewQuantity),
		zap.Time("occurred_at", event.OccurredAt),
	)
	return nil
}
