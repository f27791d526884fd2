package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/castlemart/castlemart-backend/pkg/db/models"
	"github.com/castlemart/castlemart-backend/pkg/enums"
	"github.com/castlemart/castlemart-backend/pkg/pagination"
)

// Repository defines persistence operations for order records.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) (*models.Order, error)
	CreateItems(ctx context.Context, items []models.OrderItem) error
	FindByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	FindByIDForUser(ctx context.Context, orderID, userID uuid.UUID) (*models.Order, error)
	FindByPaymentReference(ctx context.Context, reference string) (*models.Order, error)
	FindPendingOrdersBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
	List(ctx context.Context, userID *uuid.UUID, params pagination.Params, filters OrderFilters) (*OrderList, error)
	UpdateStatusGuarded(ctx context.Context, orderID uuid.UUID, from, to enums.OrderStatus, extra map[string]any) (bool, error)
	AttachPaymentReferenceGuarded(ctx context.Context, orderID uuid.UUID, reference string) (bool, error)
	Update(ctx context.Context, orderID uuid.UUID, updates map[string]any) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, order *models.Order) (*models.Order, error) {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	if err := r.db.WithContext(ctx).Create(order).Error; err != nil {
		return nil, err
	}
	return order, nil
}

func (r *repository) CreateItems(ctx context.Context, items []models.OrderItem) error {
	if len(items) == 0 {
		return nil
	}
	for i := range items {
		if items[i].ID == uuid.Nil {
			items[i].ID = uuid.New()
		}
	}
	return r.db.WithContext(ctx).Create(&items).Error
}

func (r *repository) FindByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("order_items.created_at ASC")
		}).
		Where("id = ?", orderID).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindByIDForUser(ctx context.Context, orderID, userID uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("order_items.created_at ASC")
		}).
		Where("id = ? AND user_id = ?", orderID, userID).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindByPaymentReference(ctx context.Context, reference string) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Where("payment_reference = ?", reference).
		Order("placed_at DESC").
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// FindPendingOrdersBefore returns pending orders placed before the cutoff,
// oldest first, capped at limit.
func (r *repository) FindPendingOrdersBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error) {
	query := r.db.WithContext(ctx).
		Where("status = ? AND placed_at < ?", enums.OrderStatusPending, cutoff).
		Order("placed_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var rows []models.Order
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

type orderSummaryRow struct {
	ID            uuid.UUID
	OrderNumber   string
	Status        enums.OrderStatus
	RefundStatus  enums.RefundStatus
	SubtotalCents int64
	TotalCents    int64
	Currency      enums.Currency
	TotalItems    int64
	PlacedAt      time.Time
}

// List returns order summaries using cursor pagination on placed_at. A nil
// userID lists every order (admin surface).
func (r *repository) List(ctx context.Context, userID *uuid.UUID, params pagination.Params, filters OrderFilters) (*OrderList, error) {
	limit := pagination.NormalizeLimit(params.Limit)

	query := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Select(`orders.id, orders.order_number, orders.status, orders.refund_status,
			orders.subtotal_cents, orders.total_cents, orders.currency,
			COALESCE(SUM(order_items.quantity), 0) AS total_items, orders.placed_at`).
		Joins("LEFT JOIN order_items ON order_items.order_id = orders.id").
		Group("orders.id")

	if userID != nil {
		query = query.Where("orders.user_id = ?", *userID)
	}
	if filters.Status != nil {
		query = query.Where("orders.status = ?", *filters.Status)
	}
	if filters.DateFrom != nil {
		query = query.Where("orders.placed_at >= ?", *filters.DateFrom)
	}
	if filters.DateTo != nil {
		query = query.Where("orders.placed_at <= ?", *filters.DateTo)
	}
	if filters.Query != "" {
		query = query.Where("orders.order_number LIKE ?", "%"+filters.Query+"%")
	}

	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, err
		}
		if cursor != nil {
			query = query.Where("(orders.placed_at < ?) OR (orders.placed_at = ? AND orders.id < ?)",
				cursor.Timestamp, cursor.Timestamp, cursor.ID)
		}
	}

	query = query.Order("orders.placed_at DESC").Order("orders.id DESC").Limit(limit + 1)

	var rows []orderSummaryRow
	if err := query.Scan(&rows).Error; err != nil {
		return nil, err
	}

	nextCursor := ""
	if len(rows) > limit {
		rows = rows[:limit]
		last := rows[limit-1]
		nextCursor = pagination.EncodeCursor(pagination.Cursor{
			Timestamp: last.PlacedAt,
			ID:        last.ID,
		})
	}

	summaries := make([]OrderSummary, len(rows))
	for i, row := range rows {
		summaries[i] = OrderSummary{
			ID:            row.ID,
			OrderNumber:   row.OrderNumber,
			Status:        row.Status,
			RefundStatus:  row.RefundStatus,
			SubtotalCents: row.SubtotalCents,
			TotalCents:    row.TotalCents,
			Currency:      row.Currency,
			TotalItems:    row.TotalItems,
			PlacedAt:      row.PlacedAt,
		}
	}

	return &OrderList{Orders: summaries, NextCursor: nextCursor}, nil
}

// UpdateStatusGuarded performs the conditional status transition. The WHERE
// clause pins the expected source status; a false return means another writer
// moved the order first and nothing was changed.
func (r *repository) UpdateStatusGuarded(ctx context.Context, orderID uuid.UUID, from, to enums.OrderStatus, extra map[string]any) (bool, error) {
	updates := map[string]any{"status": to}
	if column := timestampColumn(to); column != "" {
		if _, overridden := extra[column]; !overridden {
			updates[column] = time.Now().UTC()
		}
	}
	for key, value := range extra {
		updates[key] = value
	}

	result := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ?", orderID, from).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// AttachPaymentReferenceGuarded stores the gateway reference while the order
// is still pending. Zero rows affected means the order is missing or has left
// pending.
func (r *repository) AttachPaymentReferenceGuarded(ctx context.Context, orderID uuid.UUID, reference string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ?", orderID, enums.OrderStatusPending).
		Update("payment_reference", reference)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) Update(ctx context.Context, orderID uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", orderID).
		Updates(updates).Error
}
