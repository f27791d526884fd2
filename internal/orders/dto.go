package orders

import (
	"time"

	"github.com/google/uuid"

	"github.com/castlemart/castlemart-backend/pkg/enums"
)

// OrderFilters describe the inputs supported by the order lists.
type OrderFilters struct {
	Status   *enums.OrderStatus
	DateFrom *time.Time
	DateTo   *time.Time
	Query    string
}

// OrderSummary exposes the aggregated fields returned in order lists.
type OrderSummary struct {
	ID            uuid.UUID          `json:"id"`
	OrderNumber   string             `json:"order_number"`
	Status        enums.OrderStatus  `json:"status"`
	RefundStatus  enums.RefundStatus `json:"refund_status"`
	SubtotalCents int64              `json:"subtotal_cents"`
	TotalCents    int64              `json:"total_cents"`
	Currency      enums.Currency     `json:"currency"`
	TotalItems    int64              `json:"total_items"`
	PlacedAt      time.Time          `json:"placed_at"`
}

// OrderList wraps the paginated orders plus the next page cursor.
type OrderList struct {
	Orders     []OrderSummary `json:"orders"`
	NextCursor string         `json:"next_cursor,omitempty"`
}
