package domain

import "time"

// PurchaseRecord is an immutable entry of the purchase log.
type PurchaseRecord struct {
	ID        string
	ProductID int64
	Quantity  int
	CreatedAt time.Time
}
