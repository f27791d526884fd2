package inventory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/castlemart/castlemart-backend/pkg/db/models"
	"github.com/castlemart/castlemart-backend/pkg/enums"
	pkgerrors "github.com/castlemart/castlemart-backend/pkg/errors"
	"github.com/castlemart/castlemart-backend/pkg/logger"
	"github.com/castlemart/castlemart-backend/pkg/outbox"
	"github.com/castlemart/castlemart-backend/pkg/pagination"
)

func setupInventoryTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := "file:inventory_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	products := `
CREATE TABLE IF NOT EXISTS products (
  id TEXT PRIMARY KEY,
  sku TEXT NOT NULL UNIQUE,
  name TEXT NOT NULL,
  description TEXT,
  price_cents INTEGER NOT NULL,
  currency TEXT NOT NULL DEFAULT 'USD',
  stock_qty INTEGER NOT NULL DEFAULT 0,
  tags TEXT,
  is_active INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME
);`
	ledger := `
CREATE TABLE IF NOT EXISTS inventory_transactions (
  id TEXT PRIMARY KEY,
  product_id TEXT NOT NULL,
  order_id TEXT,
  reason TEXT NOT NULL,
  quantity_delta INTEGER NOT NULL,
  stock_before INTEGER NOT NULL,
  stock_after INTEGER NOT NULL,
  actor TEXT NOT NULL,
  note TEXT,
  created_at DATETIME,
  UNIQUE (product_id, order_id, reason)
);`
	require.NoError(t, db.Exec(products).Error)
	require.NoError(t, db.Exec(ledger).Error)
	return db
}

func seedStock(t *testing.T, db *gorm.DB, qty int64) uuid.UUID {
	t.Helper()
	product := models.Product{
		ID:         uuid.New(),
		SKU:        "SKU-" + uuid.NewString(),
		Name:       "Castle Mug",
		PriceCents: 1299,
		Currency:   enums.CurrencyUSD,
		StockQty:   qty,
		IsActive:   true,
	}
	require.NoError(t, db.Create(&product).Error)
	return product.ID
}

func currentStock(t *testing.T, db *gorm.DB, productID uuid.UUID) int64 {
	t.Helper()
	var product models.Product
	require.NoError(t, db.First(&product, "id = ?", productID).Error)
	return product.StockQty
}

type sinkOutbox struct {
	events []outbox.DomainEvent
}

func (s *sinkOutbox) Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	s.events = append(s.events, event)
	return nil
}

type dbTxRunner struct {
	db *gorm.DB
}

func (r dbTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		return fn(tx)
	})
}

func newInventoryService(t *testing.T, db *gorm.DB) (Service, *sinkOutbox) {
	t.Helper()
	sink := &sinkOutbox{}
	svc, err := NewService(
		NewRepository(db),
		dbTxRunner{db: db},
		sink,
		logger.New(logger.Options{ServiceName: "test"}),
		nil,
	)
	require.NoError(t, err)
	return svc, sink
}

func eventTypes(sink *sinkOutbox) []enums.OutboxEventType {
	types := make([]enums.OutboxEventType, len(sink.events))
	for i, event := range sink.events {
		types[i] = event.EventType
	}
	return types
}

func TestDecrementMovesStockAndWritesLedger(t *testing.T) {
	t.Parallel()

	db := setupInventoryTestDB(t)
	svc, sink := newInventoryService(t, db)
	productID := seedStock(t, db, 5)
	orderID := uuid.New()

	result, err := svc.Decrement(context.Background(), db, MovementInput{
		ProductID: productID,
		OrderID:   &orderID,
		Quantity:  3,
		Reason:    enums.InventoryReasonOrderCreate,
		Actor:     "user:" + uuid.NewString(),
	})
	require.NoError(t, err)
	assert.True(t, result.Applied)
	assert.Equal(t, int64(5), result.StockBefore)
	assert.Equal(t, int64(2), result.StockAfter)
	assert.Equal(t, int64(2), currentStock(t, db, productID))

	var rows []models.InventoryTransaction
	require.NoError(t, db.Find(&rows, "product_id = ?", productID).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(-3), rows[0].QuantityDelta)
	assert.Equal(t, int64(5), rows[0].StockBefore)
	assert.Equal(t, int64(2), rows[0].StockAfter)
	require.NotNil(t, rows[0].OrderID)
	assert.Equal(t, orderID, *rows[0].OrderID)

	assert.Equal(t, []enums.OutboxEventType{enums.EventInventoryAdjusted}, eventTypes(sink))
}

func TestDecrementInsufficientStockLeavesRowUntouched(t *testing.T) {
	t.Parallel()

	db := setupInventoryTestDB(t)
	svc, sink := newInventoryService(t, db)
	productID := seedStock(t, db, 2)
	orderID := uuid.New()

	_, err := svc.Decrement(context.Background(), db, MovementInput{
		ProductID: productID,
		OrderID:   &orderID,
		Quantity:  3,
		Reason:    enums.InventoryReasonOrderCreate,
		Actor:     "user:test",
	})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeInsufficientStock, typed.Code())

	shortage, ok := typed.Details().(StockShortage)
	require.True(t, ok)
	assert.Equal(t, int64(3), shortage.Requested)
	assert.Equal(t, int64(2), shortage.Available)

	assert.Equal(t, int64(2), currentStock(t, db, productID))
	var count int64
	require.NoError(t, db.Model(&models.InventoryTransaction{}).Count(&count).Error)
	assert.Zero(t, count)
	assert.Empty(t, sink.events)
}

func TestDecrementUnknownProduct(t *testing.T) {
	t.Parallel()

	db := setupInventoryTestDB(t)
	svc, _ := newInventoryService(t, db)

	_, err := svc.Decrement(context.Background(), db, MovementInput{
		ProductID: uuid.New(),
		Quantity:  1,
		Reason:    enums.InventoryReasonOrderCreate,
		Actor:     "user:test",
	})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeNotFound, typed.Code())
}

func TestDecrementRepeatReferenceIsNoOp(t *testing.T) {
	t.Parallel()

	db := setupInventoryTestDB(t)
	svc, sink := newInventoryService(t, db)
	productID := seedStock(t, db, 5)
	orderID := uuid.New()

	input := MovementInput{
		ProductID: productID,
		OrderID:   &orderID,
		Quantity:  2,
		Reason:    enums.InventoryReasonOrderCreate,
		Actor:     "user:test",
	}

	first, err := svc.Decrement(context.Background(), db, input)
	require.NoError(t, err)
	require.True(t, first.Applied)

	second, err := svc.Decrement(context.Background(), db, input)
	require.NoError(t, err)
	assert.False(t, second.Applied)
	assert.Equal(t, first.StockAfter, second.StockAfter)

	assert.Equal(t, int64(3), currentStock(t, db, productID))
	var count int64
	require.NoError(t, db.Model(&models.InventoryTransaction{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
	assert.Len(t, sink.events, 1, "replayed movement must not emit again")
}

func TestDecrementToZeroEmitsDepleted(t *testing.T) {
	t.Parallel()

	db := setupInventoryTestDB(t)
	svc, sink := newInventoryService(t, db)
	productID := seedStock(t, db, 3)
	orderID := uuid.New()

	result, err := svc.Decrement(context.Background(), db, MovementInput{
		ProductID: productID,
		OrderID:   &orderID,
		Quantity:  3,
		Reason:    enums.InventoryReasonOrderCreate,
		Actor:     "user:test",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), result.StockAfter)
	assert.Equal(t, []enums.OutboxEventType{
		enums.EventInventoryAdjusted,
		enums.EventInventoryDepleted,
	}, eventTypes(sink))
}

func TestIncrementFromZeroEmitsRestocked(t *testing.T) {
	t.Parallel()

	db := setupInventoryTestDB(t)
	svc, sink := newInventoryService(t, db)
	productID := seedStock(t, db, 0)
	orderID := uuid.New()

	result, err := svc.Increment(context.Background(), db, MovementInput{
		ProductID: productID,
		OrderID:   &orderID,
		Quantity:  4,
		Reason:    enums.InventoryReasonOrderCancel,
		Actor:     "system",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), result.StockBefore)
	assert.Equal(t, int64(4), result.StockAfter)
	assert.Equal(t, []enums.OutboxEventType{
		enums.EventInventoryAdjusted,
		enums.EventInventoryRestocked,
	}, eventTypes(sink))
}

func TestSequentialDrainNeverOversells(t *testing.T) {
	t.Parallel()

	db := setupInventoryTestDB(t)
	svc, _ := newInventoryService(t, db)
	productID := seedStock(t, db, 10)

	granted := int64(0)
	var lastErr error
	for i := 0; i < 6; i++ {
		orderID := uuid.New()
		result, err := svc.Decrement(context.Background(), db, MovementInput{
			ProductID: productID,
			OrderID:   &orderID,
			Quantity:  3,
			Reason:    enums.InventoryReasonOrderCreate,
			Actor:     fmt.Sprintf("user:%d", i),
		})
		if err != nil {
			lastErr = err
			continue
		}
		granted += 3
		require.GreaterOrEqual(t, result.StockAfter, int64(0))
	}

	assert.Equal(t, int64(9), granted)
	assert.Equal(t, int64(1), currentStock(t, db, productID))

	typed := pkgerrors.As(lastErr)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeInsufficientStock, typed.Code())
	shortage, ok := typed.Details().(StockShortage)
	require.True(t, ok)
	assert.Equal(t, int64(1), shortage.Available)
}

func TestManualAdjust(t *testing.T) {
	t.Parallel()

	db := setupInventoryTestDB(t)
	svc, _ := newInventoryService(t, db)
	productID := seedStock(t, db, 5)

	down, err := svc.ManualAdjust(context.Background(), ManualAdjustInput{
		ProductID: productID,
		Delta:     -2,
		Actor:     "admin:test",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), down.StockAfter)

	up, err := svc.ManualAdjust(context.Background(), ManualAdjustInput{
		ProductID: productID,
		Delta:     4,
		Actor:     "admin:test",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(7), up.StockAfter)

	var rows []models.InventoryTransaction
	require.NoError(t, db.Order("created_at ASC").Find(&rows, "product_id = ?", productID).Error)
	require.Len(t, rows, 2)
	for _, row := range rows {
		assert.Equal(t, enums.InventoryReasonManualAdjustment, row.Reason)
		assert.Nil(t, row.OrderID)
	}

	_, err = svc.ManualAdjust(context.Background(), ManualAdjustInput{ProductID: productID, Delta: 0, Actor: "admin:test"})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
}

func TestReplayDetectsBypassedWrites(t *testing.T) {
	t.Parallel()

	db := setupInventoryTestDB(t)
	svc, _ := newInventoryService(t, db)
	productID := seedStock(t, db, 8)

	orderA := uuid.New()
	down, err := svc.Decrement(context.Background(), db, MovementInput{
		ProductID: productID, OrderID: &orderA, Quantity: 3,
		Reason: enums.InventoryReasonOrderCreate, Actor: "user:a",
	})
	require.NoError(t, err)
	// Keep the ledger order unambiguous for the baseline lookup.
	require.NoError(t, db.Exec(
		"UPDATE inventory_transactions SET created_at = ? WHERE id = ?",
		time.Now().UTC().Add(-time.Minute), down.Transaction.ID,
	).Error)

	_, err = svc.Increment(context.Background(), db, MovementInput{
		ProductID: productID, OrderID: &orderA, Quantity: 3,
		Reason: enums.InventoryReasonOrderCancel, Actor: "system",
	})
	require.NoError(t, err)

	replay, err := svc.Replay(context.Background(), productID)
	require.NoError(t, err)
	assert.True(t, replay.Consistent)
	assert.Equal(t, int64(8), replay.LedgerStock)
	assert.Equal(t, int64(2), replay.Transactions)

	// Bypass the ledger and corrupt the counter.
	require.NoError(t, db.Exec("UPDATE products SET stock_qty = stock_qty + 5 WHERE id = ?", productID).Error)

	replay, err = svc.Replay(context.Background(), productID)
	require.NoError(t, err)
	assert.False(t, replay.Consistent)
	assert.Equal(t, int64(8), replay.LedgerStock)
	assert.Equal(t, int64(13), replay.CounterStock)
}

func TestListTransactionsPagination(t *testing.T) {
	t.Parallel()

	db := setupInventoryTestDB(t)
	svc, _ := newInventoryService(t, db)
	productID := seedStock(t, db, 10)

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		orderID := uuid.New()
		result, err := svc.Decrement(context.Background(), db, MovementInput{
			ProductID: productID, OrderID: &orderID, Quantity: 1,
			Reason: enums.InventoryReasonOrderCreate, Actor: "user:test",
		})
		require.NoError(t, err)
		// Space the rows out so cursor ordering is deterministic.
		stamp := base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, db.Exec(
			"UPDATE inventory_transactions SET created_at = ? WHERE id = ?",
			stamp, result.Transaction.ID,
		).Error)
	}

	page, err := svc.ListTransactions(context.Background(), LedgerListParams{
		ProductID: &productID,
		Params:    pagination.Params{Limit: 2},
	})
	require.NoError(t, err)
	require.Len(t, page.Transactions, 2)
	require.NotEmpty(t, page.NextCursor)

	rest, err := svc.ListTransactions(context.Background(), LedgerListParams{
		ProductID: &productID,
		Params:    pagination.Params{Limit: 2, Cursor: page.NextCursor},
	})
	require.NoError(t, err)
	require.Len(t, rest.Transactions, 1)
	assert.Empty(t, rest.NextCursor)

	seen := map[uuid.UUID]bool{}
	for _, row := range append(page.Transactions, rest.Transactions...) {
		require.False(t, seen[row.ID], "row %s returned twice", row.ID)
		seen[row.ID] = true
	}
	require.Len(t, seen, 3)
}
