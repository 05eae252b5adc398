package port

import (
	"context"

	"github.com/rl1809/stock-ledger/internal/core/domain"
)

type ProductCatalog interface {
	// Fetch fails with ErrProductNotFound or ErrExternalService
	Fetch(ctx context.Context, productID int64) (domain.ProductRef, error)
}
