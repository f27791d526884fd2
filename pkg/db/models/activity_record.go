package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ActivityRecord is a best-effort audit trail entry. Writes are fire-and-forget
// and must never block or fail the operation that produced them.
type ActivityRecord struct {
	ID          uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	Actor       string          `gorm:"column:actor;not null"`
	Action      string          `gorm:"column:action;not null"`
	SubjectType string          `gorm:"column:subject_type;not null"`
	SubjectID   *uuid.UUID      `gorm:"column:subject_id;type:uuid"`
	Details     json.RawMessage `gorm:"column:details;type:jsonb"`
	CreatedAt   time.Time       `gorm:"column:created_at;autoCreateTime"`
}
