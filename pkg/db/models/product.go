package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/castlemart/castlemart-backend/pkg/enums"
)

// Product is the canonical catalog listing. StockQty is mutated exclusively
// through the inventory ledger.
type Product struct {
	ID          uuid.UUID      `gorm:"column:id;type:uuid;primaryKey"`
	SKU         string         `gorm:"column:sku;not null;uniqueIndex"`
	Name        string         `gorm:"column:name;not null"`
	Description *string        `gorm:"column:description"`
	PriceCents  int64          `gorm:"column:price_cents;not null"`
	Currency    enums.Currency `gorm:"column:currency;type:text;not null;default:'USD'"`
	StockQty    int64          `gorm:"column:stock_qty;not null;default:0"`
	Tags        pq.StringArray `gorm:"column:tags;type:text[]"`
	IsActive    bool           `gorm:"column:is_active;not null;default:true"`
	CreatedAt   time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}
