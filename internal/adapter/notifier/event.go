package notifier

import (
	"encoding/json"
	"time"

	"github.com/rl1809/stock-ledger/internal/core/domain"
)

const eventVersion = 1

type eventPayload struct {
	EventID      string `json:"event_id"`
	EventType    string `json:"event_type"`
	EventVersion int    `json:"event_version"`
	OccurredAt   string `json:"occurred_at"`
	ProductID    int64  `json:"product_id"`
	NewQuantity  int    `json:"new_quantity"`
}

func encodeEvent(event domain.InventoryChanged) ([]byte, error) {
	return json.Marshal(eventPayload{
		EventID:      event.EventID,
		EventType:    event.Type(),
		EventVersion: eventVersion,
		OccurredAt:   event.OccurredAt.UTC().Format(time.RFC3339Nano),
		ProductID:    event.ProductID,
		NewQuantity:  event.NewQuantity,
	})
}
