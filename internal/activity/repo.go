package activity

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/castlemart/castlemart-backend/pkg/db/models"
)

// Repository persists audit trail rows.
type Repository interface {
	Create(ctx context.Context, record *models.ActivityRecord) error
	ListBySubject(ctx context.Context, subjectType string, subjectID uuid.UUID, limit int) ([]models.ActivityRecord, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an activity repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, record *models.ActivityRecord) error {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *repository) ListBySubject(ctx context.Context, subjectType string, subjectID uuid.UUID, limit int) ([]models.ActivityRecord, error) {
	query := r.db.WithContext(ctx).
		Where("subject_type = ? AND subject_id = ?", subjectType, subjectID).
		Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var rows []models.ActivityRecord
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
