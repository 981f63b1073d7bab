package events

import (
	"encoding/json"
	"time"

	"github.com/abgdnv/storefront/pkg/messaging"
	"github.com/shopspring/decimal"
)

// OrderPlacedEvent is emitted once an order record has been written.
// Carrier holds the propagated trace context.
type OrderPlacedEvent struct {
	Carrier   map[string]string `json:"carrier,omitempty"`
	OrderID   string            `json:"order_id"`
	UserID    string            `json:"user_id"`
	Total     decimal.Decimal   `json:"total"`
	ItemCount int               `json:"item_count"`
	CreatedAt time.Time         `json:"created_at"`
}

func (o OrderPlacedEvent) Subject() string {
	return messaging.OrdersPlacedSubject
}

func (o OrderPlacedEvent) Payload() ([]byte, error) {
	return json.Marshal(o)
}
