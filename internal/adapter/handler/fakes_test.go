package handler

import (
	"context"
	"time"

	"github.com/rl1809/stock-ledger/internal/core/domain"
)

type fakeInventory struct {
	view   domain.InventoryWithProduct
	record domain.InventoryRecord
	err    error

	gotID       int64
	gotQuantity int
}

func (f *fakeInventory) GetByProduct(ctx context.Context, productID int64) (domain.InventoryWithProduct, error) {
	f.gotID = productID
	return f.view, f.err
}

func (f *fakeInventory) SetQuantity(ctx context.Context, productID int64, quantity int) (domain.InventoryRecord, error) {
	f.gotID, f.gotQuantity = productID, quantity
	return f.record, f.err
}

type fakePurchases struct {
	record domain.PurchaseRecord
	err    error

	gotID       int64
	gotQuantity int
}

func (f *fakePurchases) ProcessPurchase(ctx context.Context, productID int64, quantity int) (domain.PurchaseRecord, error) {
	f.gotID, f.gotQuantity = productID, quantity
	return f.record, f.err
}

var (
	createdAt = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	widgetView = domain.InventoryWithProduct{
		Inventory: domain.InventoryRecord{ProductID: 7, Quantity: 12, Version: 3},
		Product:   domain.ProductRef{ID: 7, Name: "Widget", Price: 9.5, Description: "blue"},
	}

	purchase = domain.PurchaseRecord{ID: "p-1", ProductID: 7, Quantity: 2, CreatedAt: createdAt}
)
