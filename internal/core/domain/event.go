package domain

import "time"

const InventoryChangedType = "inventory.changed"

type InventoryChanged struct {
	EventID     string
	ProductID   int64
	NewQuantity int
	OccurredAt  time.Time
}

func (e InventoryChanged) Type() string { return InventoryChangedType }
