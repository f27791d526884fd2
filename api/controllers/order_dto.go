package controllers

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/castlemart/castlemart-backend/pkg/db/models"
	"github.com/castlemart/castlemart-backend/pkg/enums"
	"github.com/castlemart/castlemart-backend/pkg/types"
)

// orderResponse is the wire shape shared by every endpoint that returns a
// full order. Models stay JSON-free, so the mapping lives here.
type orderResponse struct {
	ID               uuid.UUID           `json:"id"`
	OrderNumber      string              `json:"order_number"`
	Status           enums.OrderStatus   `json:"status"`
	Currency         enums.Currency      `json:"currency"`
	SubtotalCents    int64               `json:"subtotal_cents"`
	TaxCents         int64               `json:"tax_cents"`
	ShippingCents    int64               `json:"shipping_cents"`
	TotalCents       int64               `json:"total_cents"`
	PaymentReference *string             `json:"payment_reference,omitempty"`
	RefundStatus     enums.RefundStatus  `json:"refund_status"`
	RefundReference  *string             `json:"refund_reference,omitempty"`
	ShippingAddress  types.Address       `json:"shipping_address"`
	BillingAddress   types.Address       `json:"billing_address"`
	Items            []orderItemResponse `json:"items"`
	PlacedAt         time.Time           `json:"placed_at"`
	PaidAt           *time.Time          `json:"paid_at,omitempty"`
	ShippedAt        *time.Time          `json:"shipped_at,omitempty"`
	DeliveredAt      *time.Time          `json:"delivered_at,omitempty"`
	CanceledAt       *time.Time          `json:"canceled_at,omitempty"`
	CanceledBy       *string             `json:"canceled_by,omitempty"`
}

type orderItemResponse struct {
	ID             uuid.UUID `json:"id"`
	ProductID      uuid.UUID `json:"product_id"`
	ProductSKU     string    `json:"product_sku"`
	ProductName    string    `json:"product_name"`
	UnitPriceCents int64     `json:"unit_price_cents"`
	Quantity       int64     `json:"quantity"`
	LineTotalCents int64     `json:"line_total_cents"`
}

func newOrderResponse(order *models.Order) orderResponse {
	items := make([]orderItemResponse, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemResponse{
			ID:             item.ID,
			ProductID:      item.ProductID,
			ProductSKU:     item.ProductSKU,
			ProductName:    item.ProductName,
			UnitPriceCents: item.UnitPriceCents,
			Quantity:       item.Quantity,
			LineTotalCents: item.LineTotalCents,
		})
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].ProductSKU < items[j].ProductSKU
	})

	return orderResponse{
		ID:               order.ID,
		OrderNumber:      order.OrderNumber,
		Status:           order.Status,
		Currency:         order.Currency,
		SubtotalCents:    order.SubtotalCents,
		TaxCents:         order.TaxCents,
		ShippingCents:    order.ShippingCents,
		TotalCents:       order.TotalCents,
		PaymentReference: order.PaymentReference,
		RefundStatus:     order.RefundStatus,
		RefundReference:  order.RefundReference,
		ShippingAddress:  order.ShippingAddress,
		BillingAddress:   order.BillingAddress,
		Items:            items,
		PlacedAt:         order.PlacedAt,
		PaidAt:           order.PaidAt,
		ShippedAt:        order.ShippedAt,
		DeliveredAt:      order.DeliveredAt,
		CanceledAt:       order.CanceledAt,
		CanceledBy:       order.CanceledBy,
	}
}
