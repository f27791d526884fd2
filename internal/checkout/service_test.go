package checkout

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/castlemart/castlemart-backend/internal/activity"
	"github.com/castlemart/castlemart-backend/internal/cart"
	"github.com/castlemart/castlemart-backend/internal/inventory"
	"github.com/castlemart/castlemart-backend/internal/orders"
	"github.com/castlemart/castlemart-backend/pkg/config"
	"github.com/castlemart/castlemart-backend/pkg/db/models"
	"github.com/castlemart/castlemart-backend/pkg/enums"
	pkgerrors "github.com/castlemart/castlemart-backend/pkg/errors"
	"github.com/castlemart/castlemart-backend/pkg/logger"
	"github.com/castlemart/castlemart-backend/pkg/outbox"
	"github.com/castlemart/castlemart-backend/pkg/outbox/payloads"
	"github.com/castlemart/castlemart-backend/pkg/pagination"
	"github.com/castlemart/castlemart-backend/pkg/types"
)

func TestCheckoutCreatesOrderFromActiveCart(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	lampID := uuid.New()
	coasterID := uuid.New()

	record := &models.CartRecord{
		ID:     uuid.New(),
		UserID: userID,
		Status: enums.CartStatusActive,
		Items: []models.CartItem{
			{ID: uuid.New(), ProductID: lampID, Quantity: 2},
			{ID: uuid.New(), ProductID: coasterID, Quantity: 1},
		},
	}
	products := map[uuid.UUID]models.Product{
		lampID:    {ID: lampID, SKU: "LAMP-01", Name: "Maple Desk Lamp", PriceCents: 1500, StockQty: 10, IsActive: true},
		coasterID: {ID: coasterID, SKU: "OAK-CST", Name: "Oak Coaster Set", PriceCents: 1200, StockQty: 5, IsActive: true},
	}

	fx := newCheckoutFixture(t, record, products)
	shippingID := uuid.New()

	placed, err := fx.svc.Checkout(context.Background(), userID, CheckoutInput{ShippingAddressID: &shippingID})
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}

	if placed.Status != enums.OrderStatusPending {
		t.Fatalf("expected pending order, got %s", placed.Status)
	}
	if !strings.HasPrefix(placed.OrderNumber, "CM-") {
		t.Fatalf("unexpected order number %q", placed.OrderNumber)
	}
	if placed.PlacedAt.IsZero() {
		t.Fatal("placed_at not stamped")
	}
	if placed.Currency != enums.CurrencyUSD {
		t.Fatalf("unexpected currency %s", placed.Currency)
	}
	if placed.SubtotalCents != 4200 || placed.TaxCents != 420 || placed.ShippingCents != 799 || placed.TotalCents != 5419 {
		t.Fatalf("unexpected totals: %d/%d/%d/%d",
			placed.SubtotalCents, placed.TaxCents, placed.ShippingCents, placed.TotalCents)
	}
	if placed.ShippingAddress.Line1 != "12 Keep Road" {
		t.Fatalf("shipping address not denormalized: %+v", placed.ShippingAddress)
	}
	if placed.BillingAddress.Line1 != "4 Ledger Way" {
		t.Fatalf("billing address not denormalized: %+v", placed.BillingAddress)
	}

	if len(placed.Items) != 2 {
		t.Fatalf("expected 2 order items, got %d", len(placed.Items))
	}
	byProduct := map[uuid.UUID]models.OrderItem{}
	for _, item := range placed.Items {
		byProduct[item.ProductID] = item
	}
	lamp := byProduct[lampID]
	if lamp.ProductSKU != "LAMP-01" || lamp.ProductName != "Maple Desk Lamp" {
		t.Fatalf("lamp snapshot mismatch: %+v", lamp)
	}
	if lamp.UnitPriceCents != 1500 || lamp.Quantity != 2 || lamp.LineTotalCents != 3000 {
		t.Fatalf("lamp pricing mismatch: %+v", lamp)
	}

	if got := len(fx.stock.calls); got != 2 {
		t.Fatalf("expected 2 stock decrements, got %d", got)
	}
	for _, call := range fx.stock.calls {
		if call.Reason != enums.InventoryReasonOrderCreate {
			t.Fatalf("unexpected movement reason %s", call.Reason)
		}
		if call.OrderID == nil || *call.OrderID != placed.ID {
			t.Fatalf("movement not referenced to order: %+v", call)
		}
		if call.Actor != userID.String() {
			t.Fatalf("unexpected movement actor %s", call.Actor)
		}
	}

	if fx.cartRepo.convertCalls != 1 {
		t.Fatalf("expected 1 cart conversion, got %d", fx.cartRepo.convertCalls)
	}

	if len(fx.outbox.events) != 1 {
		t.Fatalf("expected 1 outbox event, got %d", len(fx.outbox.events))
	}
	event := fx.outbox.events[0]
	if event.EventType != enums.EventOrderCreated || event.AggregateID != placed.ID {
		t.Fatalf("unexpected event: %+v", event)
	}
	if event.Actor == nil || event.Actor.UserID != userID {
		t.Fatalf("event actor missing: %+v", event.Actor)
	}
	payload, ok := event.Data.(payloads.OrderCreatedEvent)
	if !ok {
		t.Fatalf("unexpected payload type %T", event.Data)
	}
	if payload.OrderNumber != placed.OrderNumber || payload.TotalCents != 5419 || payload.ItemCount != 2 {
		t.Fatalf("payload mismatch: %+v", payload)
	}

	if len(fx.activity.entries) != 1 {
		t.Fatalf("expected 1 activity entry, got %d", len(fx.activity.entries))
	}
	entry := fx.activity.entries[0]
	if entry.Action != "order.placed" || entry.SubjectID == nil || *entry.SubjectID != placed.ID {
		t.Fatalf("unexpected activity entry: %+v", entry)
	}

	if got := fx.addresses.explicit[enums.AddressKindShipping]; got == nil || *got != shippingID {
		t.Fatalf("explicit shipping id not passed through: %v", got)
	}
	if got := fx.addresses.explicit[enums.AddressKindBilling]; got != nil {
		t.Fatalf("billing should fall back to default, got %v", got)
	}
}

func TestCheckoutEmptyCart(t *testing.T) {
	t.Parallel()

	userID := uuid.New()

	fx := newCheckoutFixture(t, nil, nil)
	_, err := fx.svc.Checkout(context.Background(), userID, CheckoutInput{})
	assertCode(t, err, pkgerrors.CodeCartInvalid)

	record := &models.CartRecord{ID: uuid.New(), UserID: userID, Status: enums.CartStatusActive}
	fx = newCheckoutFixture(t, record, nil)
	_, err = fx.svc.Checkout(context.Background(), userID, CheckoutInput{})
	assertCode(t, err, pkgerrors.CodeCartInvalid)
}

func TestCheckoutReportsEveryInvalidLine(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	okID := uuid.New()
	missingID := uuid.New()
	lowStockID := uuid.New()
	retiredID := uuid.New()

	record := &models.CartRecord{
		ID:     uuid.New(),
		UserID: userID,
		Status: enums.CartStatusActive,
		Items: []models.CartItem{
			{ID: uuid.New(), ProductID: okID, Quantity: 1},
			{ID: uuid.New(), ProductID: missingID, Quantity: 2},
			{ID: uuid.New(), ProductID: lowStockID, Quantity: 5},
			{ID: uuid.New(), ProductID: retiredID, Quantity: 1},
		},
	}
	products := map[uuid.UUID]models.Product{
		okID:       {ID: okID, SKU: "OK-1", Name: "Walnut Tray", PriceCents: 900, StockQty: 4, IsActive: true},
		lowStockID: {ID: lowStockID, SKU: "LOW-1", Name: "Cedar Chest", PriceCents: 25000, StockQty: 1, IsActive: true},
		retiredID:  {ID: retiredID, SKU: "OLD-1", Name: "Retired Stool", PriceCents: 4000, StockQty: 9, IsActive: false},
	}

	fx := newCheckoutFixture(t, record, products)
	_, err := fx.svc.Checkout(context.Background(), userID, CheckoutInput{})
	appErr := assertCode(t, err, pkgerrors.CodeCartInvalid)

	details, ok := appErr.Details().(CartInvalidDetails)
	if !ok {
		t.Fatalf("unexpected details type %T", appErr.Details())
	}
	if len(details.InvalidItems) != 3 {
		t.Fatalf("expected 3 invalid lines, got %d", len(details.InvalidItems))
	}
	byProduct := map[uuid.UUID]InvalidLine{}
	for _, line := range details.InvalidItems {
		byProduct[line.ProductID] = line
	}
	if byProduct[missingID].Reason != lineReasonUnavailable {
		t.Fatalf("missing product line: %+v", byProduct[missingID])
	}
	if byProduct[retiredID].Reason != lineReasonUnavailable {
		t.Fatalf("inactive product line: %+v", byProduct[retiredID])
	}
	low := byProduct[lowStockID]
	if low.Reason != lineReasonInsufficient || low.Requested != 5 {
		t.Fatalf("low stock line: %+v", low)
	}
	if low.Available == nil || *low.Available != 1 {
		t.Fatalf("low stock availability missing: %+v", low)
	}

	if fx.orders.created != nil {
		t.Fatal("no order should be created for an invalid cart")
	}
	if len(fx.stock.calls) != 0 {
		t.Fatalf("no stock should move, got %d calls", len(fx.stock.calls))
	}
	if fx.cartRepo.convertCalls != 0 {
		t.Fatal("cart must stay active")
	}
	if len(fx.outbox.events) != 0 {
		t.Fatal("no events for a rejected checkout")
	}
}

func TestCheckoutStockRaceAbortsWholeOrder(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	firstID := uuid.New()
	contestedID := uuid.New()

	record := &models.CartRecord{
		ID:     uuid.New(),
		UserID: userID,
		Status: enums.CartStatusActive,
		Items: []models.CartItem{
			{ID: uuid.New(), ProductID: firstID, Quantity: 1},
			{ID: uuid.New(), ProductID: contestedID, Quantity: 2},
		},
	}
	products := map[uuid.UUID]models.Product{
		firstID:     {ID: firstID, SKU: "A-1", Name: "Ash Bench", PriceCents: 8000, StockQty: 3, IsActive: true},
		contestedID: {ID: contestedID, SKU: "B-1", Name: "Birch Shelf", PriceCents: 6000, StockQty: 2, IsActive: true},
	}

	fx := newCheckoutFixture(t, record, products)
	fx.stock.failOn = map[uuid.UUID]error{
		contestedID: pkgerrors.New(pkgerrors.CodeInsufficientStock, "insufficient stock").
			WithDetails(inventory.StockShortage{ProductID: contestedID, Requested: 2, Available: 1}),
	}

	_, err := fx.svc.Checkout(context.Background(), userID, CheckoutInput{})
	assertCode(t, err, pkgerrors.CodeInsufficientStock)

	// Both decrements ran; the second lost. Conversion and the event sit
	// after the decrements, so a losing line leaves the cart active and
	// nothing announced.
	if got := len(fx.stock.calls); got != 2 {
		t.Fatalf("expected both decrements attempted, got %d", got)
	}
	if fx.cartRepo.convertCalls != 0 {
		t.Fatal("cart must not convert on a lost stock race")
	}
	if len(fx.outbox.events) != 0 {
		t.Fatal("no events on a lost stock race")
	}
	if len(fx.activity.entries) != 0 {
		t.Fatal("no activity on a lost stock race")
	}
}

func TestCheckoutCartAlreadyProcessed(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	productID := uuid.New()

	record := &models.CartRecord{
		ID:     uuid.New(),
		UserID: userID,
		Status: enums.CartStatusActive,
		Items: []models.CartItem{
			{ID: uuid.New(), ProductID: productID, Quantity: 1},
		},
	}
	products := map[uuid.UUID]models.Product{
		productID: {ID: productID, SKU: "P-1", Name: "Pine Stool", PriceCents: 2000, StockQty: 8, IsActive: true},
	}

	fx := newCheckoutFixture(t, record, products)
	fx.cartRepo.convertDenied = true

	_, err := fx.svc.Checkout(context.Background(), userID, CheckoutInput{})
	assertCode(t, err, pkgerrors.CodeConflict)

	if len(fx.outbox.events) != 0 {
		t.Fatal("no events when the cart was already processed")
	}
}

func TestCheckoutFreeShippingOverThreshold(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	productID := uuid.New()

	record := &models.CartRecord{
		ID:     uuid.New(),
		UserID: userID,
		Status: enums.CartStatusActive,
		Items: []models.CartItem{
			{ID: uuid.New(), ProductID: productID, Quantity: 2},
		},
	}
	products := map[uuid.UUID]models.Product{
		productID: {ID: productID, SKU: "T-1", Name: "Teak Table", PriceCents: 5000, StockQty: 4, IsActive: true},
	}

	fx := newCheckoutFixture(t, record, products)
	placed, err := fx.svc.Checkout(context.Background(), userID, CheckoutInput{})
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if placed.SubtotalCents != 10000 || placed.ShippingCents != 0 {
		t.Fatalf("free shipping not applied: %d/%d", placed.SubtotalCents, placed.ShippingCents)
	}
	if placed.TotalCents != 11000 {
		t.Fatalf("unexpected total %d", placed.TotalCents)
	}
}

func assertCode(t *testing.T, err error, code pkgerrors.Code) *pkgerrors.Error {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", code)
	}
	appErr := pkgerrors.As(err)
	if appErr == nil {
		t.Fatalf("expected app error, got %v", err)
	}
	if appErr.Code() != code {
		t.Fatalf("expected %s, got %s (%v)", code, appErr.Code(), err)
	}
	return appErr
}

type checkoutFixture struct {
	cartRepo  *stubCartRepo
	orders    *stubOrdersRepo
	stock     *stubStockMover
	addresses *stubAddressResolver
	outbox    *sinkOutbox
	activity  *recordedActivity
	svc       Service
}

func newCheckoutFixture(t *testing.T, record *models.CartRecord, products map[uuid.UUID]models.Product) *checkoutFixture {
	t.Helper()

	fx := &checkoutFixture{
		cartRepo: &stubCartRepo{record: record},
		orders:   &stubOrdersRepo{},
		stock:    &stubStockMover{},
		addresses: &stubAddressResolver{byKind: map[enums.AddressKind]types.Address{
			enums.AddressKindShipping: {Recipient: "Rowan Pike", Line1: "12 Keep Road", City: "Armagh", PostalCode: "BT60 1AB", Country: "GB"},
			enums.AddressKindBilling:  {Recipient: "Rowan Pike", Line1: "4 Ledger Way", City: "Armagh", PostalCode: "BT60 2CD", Country: "GB"},
		}},
		outbox:   &sinkOutbox{},
		activity: &recordedActivity{},
	}

	svc, err := NewService(
		stubTxRunner{},
		fx.cartRepo,
		fx.orders,
		stubProductLoader{products: products},
		fx.stock,
		fx.addresses,
		fx.outbox,
		fx.activity,
		config.PricingConfig{TaxRate: "0.10", ShippingFlatCents: 799, ShippingFreeOverCents: 10000, Currency: "USD"},
		logger.New(logger.Options{ServiceName: "test"}),
		nil,
	)
	if err != nil {
		t.Fatalf("build service: %v", err)
	}
	fx.svc = svc
	return fx
}

type stubTxRunner struct{}

func (stubTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type stubCartRepo struct {
	record        *models.CartRecord
	convertCalls  int
	convertDenied bool
}

func (s *stubCartRepo) WithTx(tx *gorm.DB) cart.CartRepository { return s }

func (s *stubCartRepo) FindActiveByUser(ctx context.Context, userID uuid.UUID) (*models.CartRecord, error) {
	if s.record == nil || s.record.UserID != userID {
		return nil, gorm.ErrRecordNotFound
	}
	return s.record, nil
}

func (s *stubCartRepo) FindByIDAndUser(ctx context.Context, id, userID uuid.UUID) (*models.CartRecord, error) {
	return nil, gorm.ErrRecordNotFound
}

func (s *stubCartRepo) Create(ctx context.Context, record *models.CartRecord) (*models.CartRecord, error) {
	return record, nil
}

func (s *stubCartRepo) FindItem(ctx context.Context, cartID, productID uuid.UUID) (*models.CartItem, error) {
	return nil, gorm.ErrRecordNotFound
}

func (s *stubCartRepo) SaveItem(ctx context.Context, item *models.CartItem) error { return nil }

func (s *stubCartRepo) DeleteItem(ctx context.Context, cartID, productID uuid.UUID) error {
	return nil
}

func (s *stubCartRepo) DeleteItems(ctx context.Context, cartID uuid.UUID) error { return nil }

func (s *stubCartRepo) UpdateStatus(ctx context.Context, id, userID uuid.UUID, status enums.CartStatus) error {
	return nil
}

func (s *stubCartRepo) MarkConverted(ctx context.Context, id, userID uuid.UUID) (bool, error) {
	if s.convertDenied {
		return false, nil
	}
	s.convertCalls++
	return true, nil
}

type stubOrdersRepo struct {
	created *models.Order
	items   []models.OrderItem
}

func (s *stubOrdersRepo) WithTx(tx *gorm.DB) orders.Repository { return s }

func (s *stubOrdersRepo) Create(ctx context.Context, order *models.Order) (*models.Order, error) {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	s.created = order
	return order, nil
}

func (s *stubOrdersRepo) CreateItems(ctx context.Context, items []models.OrderItem) error {
	s.items = items
	return nil
}

func (s *stubOrdersRepo) FindByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	if s.created == nil || s.created.ID != orderID {
		return nil, gorm.ErrRecordNotFound
	}
	found := *s.created
	found.Items = s.items
	return &found, nil
}

func (s *stubOrdersRepo) FindByIDForUser(ctx context.Context, orderID, userID uuid.UUID) (*models.Order, error) {
	return nil, gorm.ErrRecordNotFound
}

func (s *stubOrdersRepo) FindByPaymentReference(ctx context.Context, reference string) (*models.Order, error) {
	return nil, gorm.ErrRecordNotFound
}

func (s *stubOrdersRepo) FindPendingOrdersBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error) {
	return nil, nil
}

func (s *stubOrdersRepo) List(ctx context.Context, userID *uuid.UUID, params pagination.Params, filters orders.OrderFilters) (*orders.OrderList, error) {
	return nil, nil
}

func (s *stubOrdersRepo) UpdateStatusGuarded(ctx context.Context, orderID uuid.UUID, from, to enums.OrderStatus, extra map[string]any) (bool, error) {
	return false, nil
}

func (s *stubOrdersRepo) AttachPaymentReferenceGuarded(ctx context.Context, orderID uuid.UUID, reference string) (bool, error) {
	return false, nil
}

func (s *stubOrdersRepo) Update(ctx context.Context, orderID uuid.UUID, updates map[string]any) error {
	return nil
}

type stubProductLoader struct {
	products map[uuid.UUID]models.Product
}

func (s stubProductLoader) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Product, error) {
	out := make([]models.Product, 0, len(ids))
	for _, id := range ids {
		if product, ok := s.products[id]; ok {
			out = append(out, product)
		}
	}
	return out, nil
}

type stubStockMover struct {
	calls  []inventory.MovementInput
	failOn map[uuid.UUID]error
}

func (s *stubStockMover) Decrement(ctx context.Context, tx *gorm.DB, input inventory.MovementInput) (*inventory.MovementResult, error) {
	s.calls = append(s.calls, input)
	if err, ok := s.failOn[input.ProductID]; ok {
		return nil, err
	}
	return &inventory.MovementResult{ProductID: input.ProductID, Applied: true}, nil
}

type stubAddressResolver struct {
	byKind   map[enums.AddressKind]types.Address
	explicit map[enums.AddressKind]*uuid.UUID
}

func (s *stubAddressResolver) Resolve(ctx context.Context, userID uuid.UUID, kind enums.AddressKind, explicit *uuid.UUID) (types.Address, error) {
	if s.explicit == nil {
		s.explicit = map[enums.AddressKind]*uuid.UUID{}
	}
	s.explicit[kind] = explicit
	return s.byKind[kind], nil
}

type sinkOutbox struct {
	events []outbox.DomainEvent
}

func (s *sinkOutbox) Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	s.events = append(s.events, event)
	return nil
}

type recordedActivity struct {
	entries []activity.Entry
}

func (r *recordedActivity) Record(ctx context.Context, entry activity.Entry) {
	r.entries = append(r.entries, entry)
}
