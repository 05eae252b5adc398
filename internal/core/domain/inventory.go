package domain

import (
	"math"
	"time"
)

// MaxQuantity is the largest stock level or purchase amount accepted. Stored
// columns and gRPC messages carry quantities as 32-bit integers.
const MaxQuantity = math.MaxInt32

type InventoryRecord struct {
	ProductID int64
	Quantity  int
	Version   int // bumped on every write
	UpdatedAt time.Time
}

// EmptyInventory is the virtual record returned for products that have never been stocked.
// It is never persisted.
func EmptyInventory(productID int64) InventoryRecord {
	return InventoryRecord{ProductID: productID}
}

type InventoryWithProduct struct {
	Inventory InventoryRecord
	Product   ProductRef
}
