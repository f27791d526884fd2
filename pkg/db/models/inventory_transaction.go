package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/castlemart/castlemart-backend/pkg/enums"
)

// InventoryTransaction is one append-only ledger entry. Rows are never updated
// or deleted; replaying QuantityDelta in created_at order reproduces the
// current stock from any StockBefore.
type InventoryTransaction struct {
	ID            uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	ProductID     uuid.UUID             `gorm:"column:product_id;type:uuid;not null;index;uniqueIndex:uq_inventory_txn_reference"`
	OrderID       *uuid.UUID            `gorm:"column:order_id;type:uuid;uniqueIndex:uq_inventory_txn_reference"`
	Reason        enums.InventoryReason `gorm:"column:reason;type:text;not null;uniqueIndex:uq_inventory_txn_reference"`
	QuantityDelta int64                 `gorm:"column:quantity_delta;not null"`
	StockBefore   int64                 `gorm:"column:stock_before;not null"`
	StockAfter    int64                 `gorm:"column:stock_after;not null"`
	Actor         string                `gorm:"column:actor;not null"`
	Note          *string               `gorm:"column:note"`
	CreatedAt     time.Time             `gorm:"column:created_at;autoCreateTime"`
}
