package checkout

import (
	"github.com/google/uuid"

	"github.com/castlemart/castlemart-backend/pkg/db/models"
)

// Invalid line reasons reported inside CartInvalid details.
const (
	lineReasonUnavailable  = "product_unavailable"
	lineReasonInsufficient = "insufficient_stock"
)

// SnapshotLine freezes one cart line at checkout time. Later stages work only
// from the snapshot; cart or catalog edits after this point change nothing.
type SnapshotLine struct {
	ProductID      uuid.UUID
	ProductSKU     string
	ProductName    string
	UnitPriceCents int64
	Quantity       int64
	LineTotalCents int64
}

// InvalidLine describes one rejected cart line.
type InvalidLine struct {
	ProductID uuid.UUID `json:"product_id"`
	Reason    string    `json:"reason"`
	Requested int64     `json:"requested,omitempty"`
	Available *int64    `json:"available,omitempty"`
}

// CartInvalidDetails is the payload attached to CartInvalid rejections.
type CartInvalidDetails struct {
	InvalidItems []InvalidLine `json:"invalid_items"`
}

// buildSnapshot prices every cart line against the current catalog. It always
// inspects the whole cart so a rejection carries the complete invalid list,
// not just the first failure. The stock check here is advisory; the ledger
// decrement inside the checkout transaction is the authority.
func buildSnapshot(items []models.CartItem, products map[uuid.UUID]models.Product) ([]SnapshotLine, []InvalidLine) {
	lines := make([]SnapshotLine, 0, len(items))
	var invalid []InvalidLine

	for _, item := range items {
		product, ok := products[item.ProductID]
		if !ok || !product.IsActive {
			invalid = append(invalid, InvalidLine{
				ProductID: item.ProductID,
				Reason:    lineReasonUnavailable,
				Requested: item.Quantity,
			})
			continue
		}
		if product.StockQty < item.Quantity {
			available := product.StockQty
			invalid = append(invalid, InvalidLine{
				ProductID: item.ProductID,
				Reason:    lineReasonInsufficient,
				Requested: item.Quantity,
				Available: &available,
			})
			continue
		}
		lines = append(lines, SnapshotLine{
			ProductID:      product.ID,
			ProductSKU:     product.SKU,
			ProductName:    product.Name,
			UnitPriceCents: product.PriceCents,
			Quantity:       item.Quantity,
			LineTotalCents: product.PriceCents * item.Quantity,
		})
	}
	return lines, invalid
}
