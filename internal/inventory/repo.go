package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/castlemart/castlemart-backend/pkg/db/models"
	"github.com/castlemart/castlemart-backend/pkg/enums"
)

// Repository manages product stock counters and the append-only ledger.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	DecrementStockGuarded(ctx context.Context, productID uuid.UUID, qty int64) (bool, error)
	IncrementStock(ctx context.Context, productID uuid.UUID, qty int64) (bool, error)
	GetProduct(ctx context.Context, productID uuid.UUID) (*models.Product, error)
	CreateTransaction(ctx context.Context, txn *models.InventoryTransaction) error
	FindTransactionByReference(ctx context.Context, productID, orderID uuid.UUID, reason enums.InventoryReason) (*models.InventoryTransaction, error)
	ListTransactions(ctx context.Context, opts ledgerQuery) ([]models.InventoryTransaction, error)
	ReplayAggregate(ctx context.Context, productID uuid.UUID) (*LedgerAggregate, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an inventory repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// DecrementStockGuarded subtracts qty from the product's stock only when
// enough remains. Zero rows affected means the product is missing or the
// stock check failed; the caller distinguishes the two by reloading.
func (r *repository) DecrementStockGuarded(ctx context.Context, productID uuid.UUID, qty int64) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ? AND stock_qty >= ?", productID, qty).
		Updates(map[string]any{
			"stock_qty":  gorm.Expr("stock_qty - ?", qty),
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// IncrementStock adds qty back to the product's stock. Returns false when the
// product row does not exist.
func (r *repository) IncrementStock(ctx context.Context, productID uuid.UUID, qty int64) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ?", productID).
		Updates(map[string]any{
			"stock_qty":  gorm.Expr("stock_qty + ?", qty),
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) GetProduct(ctx context.Context, productID uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).
		Where("id = ?", productID).
		First(&product).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *repository) CreateTransaction(ctx context.Context, txn *models.InventoryTransaction) error {
	if txn.ID == uuid.Nil {
		txn.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(txn).Error
}

// FindTransactionByReference looks up the ledger row keyed by the movement
// reference. A nil result with nil error means no movement was recorded yet.
func (r *repository) FindTransactionByReference(ctx context.Context, productID, orderID uuid.UUID, reason enums.InventoryReason) (*models.InventoryTransaction, error) {
	var txn models.InventoryTransaction
	err := r.db.WithContext(ctx).
		Where("product_id = ? AND order_id = ? AND reason = ?", productID, orderID, reason).
		First(&txn).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &txn, nil
}

type ledgerQuery struct {
	productID *uuid.UUID
	orderID   *uuid.UUID
	reason    *enums.InventoryReason
	limit     int
	cursor    *ledgerCursor
}

type ledgerCursor struct {
	createdAt time.Time
	id        uuid.UUID
}

func (r *repository) ListTransactions(ctx context.Context, opts ledgerQuery) ([]models.InventoryTransaction, error) {
	query := r.db.WithContext(ctx).Model(&models.InventoryTransaction{})

	if opts.productID != nil {
		query = query.Where("product_id = ?", *opts.productID)
	}
	if opts.orderID != nil {
		query = query.Where("order_id = ?", *opts.orderID)
	}
	if opts.reason != nil {
		query = query.Where("reason = ?", *opts.reason)
	}
	if opts.cursor != nil {
		query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)",
			opts.cursor.createdAt, opts.cursor.createdAt, opts.cursor.id)
	}

	query = query.Order("created_at DESC").Order("id DESC")
	if opts.limit > 0 {
		query = query.Limit(opts.limit)
	}

	var rows []models.InventoryTransaction
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// LedgerAggregate summarizes a product's ledger for replay checks.
type LedgerAggregate struct {
	Count    int64
	DeltaSum int64
	Baseline int64
}

// ReplayAggregate returns the transaction count, the summed deltas, and the
// stock recorded before the oldest entry.
func (r *repository) ReplayAggregate(ctx context.Context, productID uuid.UUID) (*LedgerAggregate, error) {
	var agg struct {
		Count    int64
		DeltaSum int64
	}
	err := r.db.WithContext(ctx).
		Model(&models.InventoryTransaction{}).
		Select("COUNT(*) AS count, COALESCE(SUM(quantity_delta), 0) AS delta_sum").
		Where("product_id = ?", productID).
		Scan(&agg).Error
	if err != nil {
		return nil, err
	}

	result := &LedgerAggregate{Count: agg.Count, DeltaSum: agg.DeltaSum}
	if agg.Count == 0 {
		return result, nil
	}

	var oldest models.InventoryTransaction
	err = r.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Order("created_at ASC").Order("id ASC").
		First(&oldest).Error
	if err != nil {
		return nil, err
	}
	result.Baseline = oldest.StockBefore
	return result, nil
}
