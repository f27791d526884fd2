package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/castlemart/castlemart-backend/pkg/enums"
	"github.com/castlemart/castlemart-backend/pkg/types"
)

// Order is an immutable priced snapshot of a checked-out cart. Totals and item
// rows are written once at creation; only status, payment correlation, refund
// fields, and lifecycle stamps change afterwards.
type Order struct {
	ID               uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	OrderNumber      string             `gorm:"column:order_number;not null;uniqueIndex"`
	UserID           uuid.UUID          `gorm:"column:user_id;type:uuid;not null;index"`
	Status           enums.OrderStatus  `gorm:"column:status;type:text;not null;default:'pending'"`
	Currency         enums.Currency     `gorm:"column:currency;type:text;not null;default:'USD'"`
	SubtotalCents    int64              `gorm:"column:subtotal_cents;not null"`
	TaxCents         int64              `gorm:"column:tax_cents;not null;default:0"`
	ShippingCents    int64              `gorm:"column:shipping_cents;not null;default:0"`
	TotalCents       int64              `gorm:"column:total_cents;not null"`
	PaymentReference *string            `gorm:"column:payment_reference"`
	RefundStatus     enums.RefundStatus `gorm:"column:refund_status;type:text;not null;default:'none'"`
	RefundReference  *string            `gorm:"column:refund_reference"`
	ShippingAddress  types.Address      `gorm:"column:shipping_address;type:jsonb;serializer:json"`
	BillingAddress   types.Address      `gorm:"column:billing_address;type:jsonb;serializer:json"`
	PlacedAt         time.Time          `gorm:"column:placed_at;not null"`
	PaidAt           *time.Time         `gorm:"column:paid_at"`
	ShippedAt        *time.Time         `gorm:"column:shipped_at"`
	DeliveredAt      *time.Time         `gorm:"column:delivered_at"`
	CanceledAt       *time.Time         `gorm:"column:canceled_at"`
	CanceledBy       *string            `gorm:"column:canceled_by"`
	Items            []OrderItem        `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt        time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}
