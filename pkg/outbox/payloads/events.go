package payloads

import (
	"time"

	"github.com/castlemart/castlemart-backend/pkg/enums"
	"github.com/google/uuid"
)

// OrderCreatedEvent signals a checkout that produced a pending order.
type OrderCreatedEvent struct {
	OrderID     uuid.UUID `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	UserID      uuid.UUID `json:"user_id"`
	TotalCents  int64     `json:"total_cents"`
	Currency    string    `json:"currency"`
	ItemCount   int       `json:"item_count"`
}

// OrderPaidEvent is emitted when a payment is verified and the order moves to paid.
type OrderPaidEvent struct {
	OrderID          uuid.UUID `json:"order_id"`
	UserID           uuid.UUID `json:"user_id"`
	PaymentReference string    `json:"payment_reference"`
	TotalCents       int64     `json:"total_cents"`
	PaidAt           time.Time `json:"paid_at"`
}

// OrderShippedEvent is emitted when fulfillment marks the order shipped.
type OrderShippedEvent struct {
	OrderID   uuid.UUID `json:"order_id"`
	UserID    uuid.UUID `json:"user_id"`
	ShippedAt time.Time `json:"shipped_at"`
}

// OrderDeliveredEvent closes out the fulfillment flow.
type OrderDeliveredEvent struct {
	OrderID     uuid.UUID `json:"order_id"`
	UserID      uuid.UUID `json:"user_id"`
	DeliveredAt time.Time `json:"delivered_at"`
}

// OrderCanceledEvent is emitted whenever a pending or paid order is canceled.
type OrderCanceledEvent struct {
	OrderID    uuid.UUID `json:"order_id"`
	UserID     uuid.UUID `json:"user_id"`
	CanceledBy string    `json:"canceled_by"`
	CanceledAt time.Time `json:"canceled_at"`
	Reason     string    `json:"reason,omitempty"`
}

// OrderExpiredEvent describes the payload when a stale pending order is reaped.
type OrderExpiredEvent struct {
	OrderID      uuid.UUID `json:"orderId"`
	UserID       uuid.UUID `json:"userId"`
	ExpiredAt    time.Time `json:"expiredAt"`
	PendingHours int       `json:"pendingHours"`
}

// RefundResultEvent reports the outcome of a refund attempt after cancellation.
type RefundResultEvent struct {
	OrderID          uuid.UUID `json:"order_id"`
	PaymentReference string    `json:"payment_reference"`
	RefundReference  string    `json:"refund_reference,omitempty"`
	AmountCents      int64     `json:"amount_cents"`
	Failure          string    `json:"failure,omitempty"`
}

// InventoryAdjustedEvent mirrors a ledger row written for a product.
type InventoryAdjustedEvent struct {
	ProductID     uuid.UUID             `json:"product_id"`
	OrderID       *uuid.UUID            `json:"order_id,omitempty"`
	Reason        enums.InventoryReason `json:"reason"`
	QuantityDelta int64                 `json:"quantity_delta"`
	StockBefore   int64                 `json:"stock_before"`
	StockAfter    int64                 `json:"stock_after"`
}

// InventoryLevelEvent carries the payload for depletion and restock signals.
type InventoryLevelEvent struct {
	ProductID uuid.UUID `json:"product_id"`
	StockQty  int64     `json:"stock_qty"`
}
