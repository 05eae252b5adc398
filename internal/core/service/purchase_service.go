package service

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/port"
)

// PurchaseService checks, decrements and records a purchase in one unit of
// work, then signals the new quantity.
type PurchaseService struct {
	store    port.Transactor
	notifier port.ChangeNotifier
	logger   *zap.Logger
}

func NewPurchaseService(store port.Transactor, notifier port.ChangeNotifier, logger *zap.Logger) *PurchaseService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PurchaseService{
		store:    store,
		notifier: notifier,
		logger:   logger.Named("purchase"),
	}
}

// ProcessPurchase buys quantity units of a product. Existence is inferred from
// the stock record; the catalog is not consulted.
func (s *PurchaseService) ProcessPurchase(ctx context.Context, productID int64, quantity int) (domain.PurchaseRecord, error) {
	ctx, span := tracer.Start(ctx, "PurchaseService.ProcessPurchase", trace.WithAttributes(
		attribute.Int64("product.id", productID),
		attribute.Int("purchase.quantity", quantity),
	))
	defer span.End()

	err := runStage(ctx, StageValidatingInput, func(ctx context.Context) error {
		return validatePurchase(productID, quantity)
	})
	if err != nil {
		return s.fail(span, productID, quantity, err)
	}

	var (
		record    domain.PurchaseRecord
		remaining int
	)
	err = s.store.WithinTx(ctx, productID, func(ctx context.Context, tx port.Tx) error {
		err := runStage(ctx, StageCheckingStock, func(ctx context.Context) error {
			current, err := tx.Get(ctx, productID)
			if err != nil {
				return err
			}
			if current == nil {
				return fmt.Errorf("%w: no stock record for product %d", domain.ErrProductNotFound, productID)
			}
			if current.Quantity < quantity {
				return fmt.Errorf("%w: product %d has %d, requested %d",
					domain.ErrInsufficientStock, productID, current.Quantity, quantity)
			}
			return nil
		})
		if err != nil {
			return err
		}

		err = runStage(ctx, StageDecrementing, func(ctx context.Context) error {
			updated, err := tx.DecrementIfSufficient(ctx, productID, quantity)
			if err != nil {
				return err
			}
			remaining = updated.Quantity
			return nil
		})
		if err != nil {
			return err
		}

		return runStage(ctx, StageRecording, func(ctx context.Context) error {
			var err error
			record, err = tx.Append(ctx, productID, quantity)
			return err
		})
	})
	if err != nil {
		return s.fail(span, productID, quantity, err)
	}

	notifyChange(ctx, s.notifier, s.logger, productID, remaining)

	span.SetAttributes(attribute.String("purchase.id", record.ID), attribute.String("purchase.stage", string(StageDone)))
	s.logger.Info("purchase completed",
		zap.String("purchase_id", record.ID),
		zap.Int64("product_id", productID),
		zap.Int("quantity", quantity),
		zap.Int("remaining", remaining),
	)
	return record, nil
}

func (s *PurchaseService) fail(span trace.Span, productID int64, quantity int, err error) (domain.PurchaseRecord, error) {
	recordSpanError(span, err)

	fields := []zap.Field{
		zap.Int64("product_id", productID),
		zap.Int("quantity", quantity),
		zap.Error(err),
	}
	if isRejection(err) {
		s.logger.Info("purchase rejected", fields...)
	} else {
		s.logger.Error("purchase failed", fields...)
	}
	return domain.PurchaseRecord{}, err
}

func validatePurchase(productID int64, quantity int) error {
	if productID <= 0 {
		return fmt.Errorf("%w: product id must be > 0, got %d", domain.ErrInvalidArgument, productID)
	}
	if quantity <= 0 || quantity > domain.MaxQuantity {
		return fmt.Errorf("%w: quantity must be within [1, %d], got %d", domain.ErrInvalidArgument, domain.MaxQuantity, quantity)
	}
	return nil
}

// isRejection reports errors caused by the request rather than the system.
func isRejection(err error) bool {
	return errors.Is(err, domain.ErrInvalidArgument) ||
		errors.Is(err, domain.ErrProductNotFound) ||
		errors.Is(err, domain.ErrInsufficientStock)
}
