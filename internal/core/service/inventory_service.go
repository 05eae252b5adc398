package service

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/port"
)

type InventoryService struct {
	store    port.Ledger
	catalog  port.ProductCatalog
	notifier port.ChangeNotifier
	logger   *zap.Logger
}

func NewInventoryService(store port.Ledger, catalog port.ProductCatalog, notifier port.ChangeNotifier, logger *zap.Logger) *InventoryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InventoryService{
		store:    store,
		catalog:  catalog,
		notifier: notifier,
		logger:   logger.Named("inventory"),
	}
}

// GetByProduct returns the stock of a product merged with its catalog data.
// A product that was never stocked reads as quantity 0; nothing is written.
func (s *InventoryService) GetByProduct(ctx context.Context, productID int64) (domain.InventoryWithProduct, error) {
	ctx, span := tracer.Start(ctx, "InventoryService.GetByProduct",
		trace.WithAttributes(attribute.Int64("product.id", productID)))
	defer span.End()

	if productID <= 0 {
		err := fmt.Errorf("%w: product id must be > 0, got %d", domain.ErrInvalidArgument, productID)
		recordSpanError(span, err)
		return domain.InventoryWithProduct{}, err
	}

	rec, err := s.store.Get(ctx, productID)
	if err != nil {
		recordSpanError(span, err)
		return domain.InventoryWithProduct{}, fmt.Errorf("read stock: %w", err)
	}
	if rec == nil {
		empty := domain.EmptyInventory(productID)
		rec = &empty
	}

	product, err := s.catalog.Fetch(ctx, productID)
	if err != nil {
		err = productLookupFailed(productID, err)
		recordSpanError(span, err)
		s.logger.Info("inventory read rejected", zap.Int64("product_id", productID), zap.Error(err))
		return domain.InventoryWithProduct{}, err
	}

	return domain.InventoryWithProduct{Inventory: *rec, Product: product}, nil
}

// SetQuantity overwrites the stock of a catalog product.
func (s *InventoryService) SetQuantity(ctx context.Context, productID int64, quantity int) (domain.InventoryRecord, error) {
	ctx, span := tracer.Start(ctx, "InventoryService.SetQuantity", trace.WithAttributes(
		attribute.Int64("product.id", productID),
		attribute.Int("inventory.quantity", quantity),
	))
	defer span.End()

	if err := validateSet(productID, quantity); err != nil {
		recordSpanError(span, err)
		return domain.InventoryRecord{}, err
	}

	if _, err := s.catalog.Fetch(ctx, productID); err != nil {
		err = productLookupFailed(productID, err)
		recordSpanError(span, err)
		s.logger.Info("inventory update rejected", zap.Int64("product_id", productID), zap.Error(err))
		return domain.InventoryRecord{}, err
	}

	var rec domain.InventoryRecord
	err := s.store.WithinTx(ctx, productID, func(ctx context.Context, tx port.Tx) error {
		var err error
		rec, err = tx.SetAbsolute(ctx, productID, quantity)
		return err
	})
	if err != nil {
		recordSpanError(span, err)
		s.logger.Error("inventory update failed", zap.Int64("product_id", productID), zap.Error(err))
		return domain.InventoryRecord{}, fmt.Errorf("set stock: %w", err)
	}

	notifyChange(ctx, s.notifier, s.logger, productID, rec.Quantity)

	s.logger.Info("inventory updated",
		zap.Int64("product_id", productID),
		zap.Int("quantity", rec.Quantity),
		zap.Int("version", rec.Version),
	)
	return rec, nil
}

func validateSet(productID int64, quantity int) error {
	if productID <= 0 {
		return fmt.Errorf("%w: product id must be > 0, got %d", domain.ErrInvalidArgument, productID)
	}
	if quantity < 0 || quantity > domain.MaxQuantity {
		return fmt.Errorf("%w: quantity must be within [0, %d], got %d", domain.ErrInvalidArgument, domain.MaxQuantity, quantity)
	}
	return nil
}

// productLookupFailed folds every catalog failure into ErrProductNotFound,
// keeping the cause in the chain.
func productLookupFailed(productID int64, cause error) error {
	return fmt.Errorf("%w: product %d could not be resolved: %w", domain.ErrProductNotFound, productID, cause)
}
