package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/castlemart/castlemart-backend/pkg/enums"
	"github.com/castlemart/castlemart-backend/pkg/types"
)

// UserAddress is a saved shipping or billing address. Orders copy the fields
// at checkout; later edits never touch placed orders.
type UserAddress struct {
	ID        uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	UserID    uuid.UUID         `gorm:"column:user_id;type:uuid;not null;index"`
	Kind      enums.AddressKind `gorm:"column:kind;type:text;not null"`
	Address   types.Address     `gorm:"embedded"`
	IsDefault bool              `gorm:"column:is_default;not null;default:false"`
	CreatedAt time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}
