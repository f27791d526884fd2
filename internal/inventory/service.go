package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	pkgdb "github.com/castlemart/castlemart-backend/pkg/db"
	"github.com/castlemart/castlemart-backend/pkg/db/models"
	"github.com/castlemart/castlemart-backend/pkg/enums"
	pkgerrors "github.com/castlemart/castlemart-backend/pkg/errors"
	"github.com/castlemart/castlemart-backend/pkg/logger"
	"github.com/castlemart/castlemart-backend/pkg/metrics"
	"github.com/castlemart/castlemart-backend/pkg/outbox"
	"github.com/castlemart/castlemart-backend/pkg/outbox/payloads"
	"github.com/castlemart/castlemart-backend/pkg/pagination"
)

// ledgerReferenceConstraint backs the ledger's one-row-per-movement rule.
const ledgerReferenceConstraint = "uq_inventory_txn_reference"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service owns every stock movement. Checkout and cancellation call the
// tx-scoped Decrement and Increment inside their own transactions so the
// counter update, the ledger row, and the caller's writes commit together.
type Service interface {
	Decrement(ctx context.Context, tx *gorm.DB, input MovementInput) (*MovementResult, error)
	Increment(ctx context.Context, tx *gorm.DB, input MovementInput) (*MovementResult, error)
	ManualAdjust(ctx context.Context, input ManualAdjustInput) (*MovementResult, error)
	ListTransactions(ctx context.Context, params LedgerListParams) (*LedgerPage, error)
	Replay(ctx context.Context, productID uuid.UUID) (*ReplayResult, error)
}

type service struct {
	repo    Repository
	tx      txRunner
	outbox  outboxPublisher
	logg    *logger.Logger
	metrics *metrics.OrderFlowMetrics
}

// NewService builds the inventory service.
func NewService(repo Repository, tx txRunner, outbox outboxPublisher, logg *logger.Logger, flow *metrics.OrderFlowMetrics) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("inventory repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{repo: repo, tx: tx, outbox: outbox, logg: logg, metrics: flow}, nil
}

// MovementInput describes one stock movement tied to an order.
type MovementInput struct {
	ProductID uuid.UUID
	OrderID   *uuid.UUID
	Quantity  int64
	Reason    enums.InventoryReason
	Actor     string
	Note      *string
}

// MovementResult reports the movement outcome. Applied is false when the
// ledger already held a row for the same reference and nothing was changed.
type MovementResult struct {
	ProductID   uuid.UUID                    `json:"product_id"`
	StockBefore int64                        `json:"stock_before"`
	StockAfter  int64                        `json:"stock_after"`
	Applied     bool                         `json:"applied"`
	Transaction *models.InventoryTransaction `json:"transaction"`
}

// StockShortage details an insufficient stock rejection.
type StockShortage struct {
	ProductID uuid.UUID `json:"product_id"`
	Requested int64     `json:"requested"`
	Available int64     `json:"available"`
}

func validateMovement(input MovementInput) error {
	if input.ProductID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}
	if input.Quantity <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	if !input.Reason.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "unknown inventory reason")
	}
	if input.Actor == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "actor required")
	}
	return nil
}

// Decrement removes stock for an order line. The ledger reference
// (product, order, reason) makes retries no-ops: a reference that already
// has a row returns the recorded movement without touching the counter.
func (s *service) Decrement(ctx context.Context, tx *gorm.DB, input MovementInput) (*MovementResult, error) {
	if err := validateMovement(input); err != nil {
		return nil, err
	}
	repo := s.repo.WithTx(tx)

	if input.OrderID != nil {
		existing, err := repo.FindTransactionByReference(ctx, input.ProductID, *input.OrderID, input.Reason)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check ledger reference")
		}
		if existing != nil {
			return replayedResult(existing), nil
		}
	}

	removed, err := repo.DecrementStockGuarded(ctx, input.ProductID, input.Quantity)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decrement stock")
	}
	if !removed {
		product, err := repo.GetProduct(ctx, input.ProductID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
		}
		return nil, pkgerrors.New(pkgerrors.CodeInsufficientStock, "insufficient stock").
			WithDetails(StockShortage{
				ProductID: input.ProductID,
				Requested: input.Quantity,
				Available: product.StockQty,
			})
	}

	product, err := repo.GetProduct(ctx, input.ProductID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload product")
	}

	stockAfter := product.StockQty
	stockBefore := stockAfter + input.Quantity
	txn, err := s.appendLedgerRow(ctx, repo, input, -input.Quantity, stockBefore, stockAfter)
	if err != nil {
		return nil, err
	}

	if err := s.emitMovement(ctx, tx, txn); err != nil {
		return nil, err
	}
	if stockAfter == 0 {
		if err := s.emitLevel(ctx, tx, enums.EventInventoryDepleted, input.ProductID, stockAfter); err != nil {
			return nil, err
		}
	}

	s.metrics.IncInventoryAdjustment(string(input.Reason))
	return &MovementResult{
		ProductID:   input.ProductID,
		StockBefore: stockBefore,
		StockAfter:  stockAfter,
		Applied:     true,
		Transaction: txn,
	}, nil
}

// Increment returns stock to the shelf. Unlike Decrement there is no floor
// check; restocks always succeed for an existing product.
func (s *service) Increment(ctx context.Context, tx *gorm.DB, input MovementInput) (*MovementResult, error) {
	if err := validateMovement(input); err != nil {
		return nil, err
	}
	repo := s.repo.WithTx(tx)

	if input.OrderID != nil {
		existing, err := repo.FindTransactionByReference(ctx, input.ProductID, *input.OrderID, input.Reason)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check ledger reference")
		}
		if existing != nil {
			return replayedResult(existing), nil
		}
	}

	added, err := repo.IncrementStock(ctx, input.ProductID, input.Quantity)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "increment stock")
	}
	if !added {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}

	product, err := repo.GetProduct(ctx, input.ProductID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload product")
	}

	stockAfter := product.StockQty
	stockBefore := stockAfter - input.Quantity
	txn, err := s.appendLedgerRow(ctx, repo, input, input.Quantity, stockBefore, stockAfter)
	if err != nil {
		return nil, err
	}

	if err := s.emitMovement(ctx, tx, txn); err != nil {
		return nil, err
	}
	if stockBefore == 0 && stockAfter > 0 {
		if err := s.emitLevel(ctx, tx, enums.EventInventoryRestocked, input.ProductID, stockAfter); err != nil {
			return nil, err
		}
	}

	s.metrics.IncInventoryAdjustment(string(input.Reason))
	return &MovementResult{
		ProductID:   input.ProductID,
		StockBefore: stockBefore,
		StockAfter:  stockAfter,
		Applied:     true,
		Transaction: txn,
	}, nil
}

// ManualAdjustInput is the admin correction surface. Delta may be negative.
type ManualAdjustInput struct {
	ProductID uuid.UUID
	Delta     int64
	Actor     string
	Note      *string
}

// ManualAdjust applies an admin stock correction in its own transaction.
func (s *service) ManualAdjust(ctx context.Context, input ManualAdjustInput) (*MovementResult, error) {
	if input.Delta == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "delta must be non-zero")
	}

	movement := MovementInput{
		ProductID: input.ProductID,
		Quantity:  input.Delta,
		Reason:    enums.InventoryReasonManualAdjustment,
		Actor:     input.Actor,
		Note:      input.Note,
	}

	var result *MovementResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var terr error
		if input.Delta < 0 {
			movement.Quantity = -input.Delta
			result, terr = s.Decrement(ctx, tx, movement)
		} else {
			result, terr = s.Increment(ctx, tx, movement)
		}
		return terr
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// LedgerListParams filters the transaction history.
type LedgerListParams struct {
	ProductID *uuid.UUID
	OrderID   *uuid.UUID
	Reason    *enums.InventoryReason
	Params    pagination.Params
}

// LedgerPage is one page of ledger rows, newest first.
type LedgerPage struct {
	Transactions []models.InventoryTransaction `json:"transactions"`
	NextCursor   string                        `json:"next_cursor,omitempty"`
}

// ListTransactions returns the movement history for audit views.
func (s *service) ListTransactions(ctx context.Context, params LedgerListParams) (*LedgerPage, error) {
	if params.Reason != nil && !params.Reason.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown inventory reason")
	}

	limit := pagination.NormalizeLimit(params.Params.Limit)
	query := ledgerQuery{
		productID: params.ProductID,
		orderID:   params.OrderID,
		reason:    params.Reason,
		limit:     limit + 1,
	}
	if params.Params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		if cursor != nil {
			query.cursor = &ledgerCursor{createdAt: cursor.Timestamp, id: cursor.ID}
		}
	}

	rows, err := s.repo.ListTransactions(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list inventory transactions")
	}

	nextCursor := ""
	if len(rows) > limit {
		rows = rows[:limit]
		last := rows[limit-1]
		nextCursor = pagination.EncodeCursor(pagination.Cursor{
			Timestamp: last.CreatedAt,
			ID:        last.ID,
		})
	}
	return &LedgerPage{Transactions: rows, NextCursor: nextCursor}, nil
}

// ReplayResult compares the ledger-derived stock with the counter.
type ReplayResult struct {
	ProductID    uuid.UUID `json:"product_id"`
	LedgerStock  int64     `json:"ledger_stock"`
	CounterStock int64     `json:"counter_stock"`
	Transactions int64     `json:"transactions"`
	Consistent   bool      `json:"consistent"`
}

// Replay recomputes a product's stock from the ledger baseline plus every
// delta and reports whether the counter matches. A mismatch means a write
// bypassed the ledger and needs manual investigation.
func (s *service) Replay(ctx context.Context, productID uuid.UUID) (*ReplayResult, error) {
	if productID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}

	product, err := s.repo.GetProduct(ctx, productID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}

	agg, err := s.repo.ReplayAggregate(ctx, productID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "aggregate ledger")
	}

	ledgerStock := product.StockQty
	if agg.Count > 0 {
		ledgerStock = agg.Baseline + agg.DeltaSum
	}

	result := &ReplayResult{
		ProductID:    productID,
		LedgerStock:  ledgerStock,
		CounterStock: product.StockQty,
		Transactions: agg.Count,
		Consistent:   ledgerStock == product.StockQty,
	}
	if !result.Consistent {
		ctx = s.logg.WithField(ctx, "product_id", productID.String())
		s.logg.Warn(ctx, "inventory ledger diverges from stock counter")
	}
	return result, nil
}

func (s *service) appendLedgerRow(ctx context.Context, repo Repository, input MovementInput, delta, stockBefore, stockAfter int64) (*models.InventoryTransaction, error) {
	txn := &models.InventoryTransaction{
		ID:            uuid.New(),
		ProductID:     input.ProductID,
		OrderID:       input.OrderID,
		Reason:        input.Reason,
		QuantityDelta: delta,
		StockBefore:   stockBefore,
		StockAfter:    stockAfter,
		Actor:         input.Actor,
		Note:          input.Note,
	}
	if err := repo.CreateTransaction(ctx, txn); err != nil {
		if pkgdb.IsUniqueViolation(err, ledgerReferenceConstraint) {
			// A concurrent writer recorded the same movement after our
			// pre-check. Abort so this transaction's counter change rolls
			// back; the retry will hit the no-op path.
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "stock movement already recorded")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append inventory transaction")
	}
	return txn, nil
}

func (s *service) emitMovement(ctx context.Context, tx *gorm.DB, txn *models.InventoryTransaction) error {
	event := outbox.DomainEvent{
		AggregateType: enums.AggregateInventory,
		AggregateID:   txn.ProductID,
		EventType:     enums.EventInventoryAdjusted,
		Version:       1,
		OccurredAt:    txn.CreatedAt,
		Data: payloads.InventoryAdjustedEvent{
			ProductID:     txn.ProductID,
			OrderID:       txn.OrderID,
			Reason:        txn.Reason,
			QuantityDelta: txn.QuantityDelta,
			StockBefore:   txn.StockBefore,
			StockAfter:    txn.StockAfter,
		},
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit inventory event")
	}
	return nil
}

func (s *service) emitLevel(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, productID uuid.UUID, stockQty int64) error {
	event := outbox.DomainEvent{
		AggregateType: enums.AggregateInventory,
		AggregateID:   productID,
		EventType:     eventType,
		Version:       1,
		Data: payloads.InventoryLevelEvent{
			ProductID: productID,
			StockQty:  stockQty,
		},
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit inventory level event")
	}
	return nil
}

func replayedResult(txn *models.InventoryTransaction) *MovementResult {
	return &MovementResult{
		ProductID:   txn.ProductID,
		StockBefore: txn.StockBefore,
		StockAfter:  txn.StockAfter,
		Applied:     false,
		Transaction: txn,
	}
}
