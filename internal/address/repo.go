package address

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/castlemart/castlemart-backend/pkg/db/models"
	"github.com/castlemart/castlemart-backend/pkg/enums"
)

// Repository manages the saved address book.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, addr *models.UserAddress) (*models.UserAddress, error)
	FindByIDForUser(ctx context.Context, id, userID uuid.UUID) (*models.UserAddress, error)
	FindDefault(ctx context.Context, userID uuid.UUID, kind enums.AddressKind) (*models.UserAddress, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.UserAddress, error)
	ClearDefault(ctx context.Context, userID uuid.UUID, kind enums.AddressKind) error
	SetDefault(ctx context.Context, id, userID uuid.UUID) error
	Delete(ctx context.Context, id, userID uuid.UUID) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an address repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, addr *models.UserAddress) (*models.UserAddress, error) {
	if addr.ID == uuid.Nil {
		addr.ID = uuid.New()
	}
	if err := r.db.WithContext(ctx).Create(addr).Error; err != nil {
		return nil, err
	}
	return addr, nil
}

func (r *repository) FindByIDForUser(ctx context.Context, id, userID uuid.UUID) (*models.UserAddress, error) {
	var addr models.UserAddress
	if err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&addr).Error; err != nil {
		return nil, err
	}
	return &addr, nil
}

func (r *repository) FindDefault(ctx context.Context, userID uuid.UUID, kind enums.AddressKind) (*models.UserAddress, error) {
	var addr models.UserAddress
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND kind = ? AND is_default = ?", userID, kind, true).
		Order("updated_at DESC").
		First(&addr).Error; err != nil {
		return nil, err
	}
	return &addr, nil
}

func (r *repository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.UserAddress, error) {
	var rows []models.UserAddress
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) ClearDefault(ctx context.Context, userID uuid.UUID, kind enums.AddressKind) error {
	return r.db.WithContext(ctx).
		Model(&models.UserAddress{}).
		Where("user_id = ? AND kind = ? AND is_default = ?", userID, kind, true).
		Update("is_default", false).Error
}

func (r *repository) SetDefault(ctx context.Context, id, userID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.UserAddress{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("is_default", true).Error
}

func (r *repository) Delete(ctx context.Context, id, userID uuid.UUID) (bool, error) {
	result := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		Delete(&models.UserAddress{})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
