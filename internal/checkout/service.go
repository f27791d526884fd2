package checkout

import (
	"context"
	"errors"
	"fmt"
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
	"github.com/castlemart/castlemart-backend/pkg/metrics"
	"github.com/castlemart/castlemart-backend/pkg/outbox"
	"github.com/castlemart/castlemart-backend/pkg/outbox/payloads"
	"github.com/castlemart/castlemart-backend/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type productLoader interface {
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Product, error)
}

type stockMover interface {
	Decrement(ctx context.Context, tx *gorm.DB, input inventory.MovementInput) (*inventory.MovementResult, error)
}

type addressResolver interface {
	Resolve(ctx context.Context, userID uuid.UUID, kind enums.AddressKind, explicit *uuid.UUID) (types.Address, error)
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type activityRecorder interface {
	Record(ctx context.Context, entry activity.Entry)
}

// Service converts a user's active cart into a pending order.
type Service interface {
	Checkout(ctx context.Context, userID uuid.UUID, input CheckoutInput) (*models.Order, error)
}

// CheckoutInput selects the addresses for the order. Nil ids fall back to the
// user's default address of each kind.
type CheckoutInput struct {
	ShippingAddressID *uuid.UUID
	BillingAddressID  *uuid.UUID
}

type service struct {
	tx         txRunner
	cartRepo   cart.CartRepository
	ordersRepo orders.Repository
	products   productLoader
	stock      stockMover
	addresses  addressResolver
	outbox     outboxPublisher
	activity   activityRecorder
	pricing    PricingPolicy
	currency   enums.Currency
	logg       *logger.Logger
	metrics    *metrics.OrderFlowMetrics
}

// NewService builds the checkout service.
func NewService(
	tx txRunner,
	cartRepo cart.CartRepository,
	ordersRepo orders.Repository,
	products productLoader,
	stock stockMover,
	addresses addressResolver,
	publisher outboxPublisher,
	recorder activityRecorder,
	pricingCfg config.PricingConfig,
	logg *logger.Logger,
	flow *metrics.OrderFlowMetrics,
) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if cartRepo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if ordersRepo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if products == nil {
		return nil, fmt.Errorf("product loader required")
	}
	if stock == nil {
		return nil, fmt.Errorf("stock mover required")
	}
	if addresses == nil {
		return nil, fmt.Errorf("address resolver required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	policy, err := NewPricingPolicy(pricingCfg)
	if err != nil {
		return nil, err
	}
	currency, err := enums.ParseCurrency(pricingCfg.Currency)
	if err != nil {
		return nil, err
	}
	return &service{
		tx:         tx,
		cartRepo:   cartRepo,
		ordersRepo: ordersRepo,
		products:   products,
		stock:      stock,
		addresses:  addresses,
		outbox:     publisher,
		activity:   recorder,
		pricing:    policy,
		currency:   currency,
		logg:       logg,
		metrics:    flow,
	}, nil
}

// Checkout snapshots the active cart, prices it, and creates the order in one
// transaction together with the stock decrements, the cart conversion, and the
// order_created outbox row. Any failure rolls the whole thing back; the cart
// stays active and no stock moves.
func (s *service) Checkout(ctx context.Context, userID uuid.UUID, input CheckoutInput) (*models.Order, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}

	now := time.Now().UTC()

	var placed *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		cartRepo := s.cartRepo.WithTx(tx)
		ordersRepo := s.ordersRepo.WithTx(tx)

		record, err := cartRepo.FindActiveByUser(ctx, userID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeCartInvalid, "cart is empty")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
		}
		if len(record.Items) == 0 {
			return pkgerrors.New(pkgerrors.CodeCartInvalid, "cart is empty")
		}

		lines, err := s.snapshotCart(ctx, record.Items)
		if err != nil {
			return err
		}

		quote, err := s.pricing.Quote(quoteLines(lines))
		if err != nil {
			return err
		}

		shipping, err := s.addresses.Resolve(ctx, userID, enums.AddressKindShipping, input.ShippingAddressID)
		if err != nil {
			return err
		}
		billing, err := s.addresses.Resolve(ctx, userID, enums.AddressKindBilling, input.BillingAddressID)
		if err != nil {
			return err
		}

		number, err := newOrderNumber(now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate order number")
		}

		created, err := ordersRepo.Create(ctx, &models.Order{
			OrderNumber:     number,
			UserID:          userID,
			Status:          enums.OrderStatusPending,
			Currency:        s.currency,
			SubtotalCents:   quote.SubtotalCents,
			TaxCents:        quote.TaxCents,
			ShippingCents:   quote.ShippingCents,
			TotalCents:      quote.TotalCents,
			ShippingAddress: shipping,
			BillingAddress:  billing,
			PlacedAt:        now,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}

		items := make([]models.OrderItem, 0, len(lines))
		for _, line := range lines {
			items = append(items, models.OrderItem{
				OrderID:        created.ID,
				ProductID:      line.ProductID,
				ProductSKU:     line.ProductSKU,
				ProductName:    line.ProductName,
				UnitPriceCents: line.UnitPriceCents,
				Quantity:       line.Quantity,
				LineTotalCents: line.LineTotalCents,
			})
		}
		if err := ordersRepo.CreateItems(ctx, items); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order items")
		}

		// The guarded decrement is the real stock check. The snapshot pass
		// above only shapes the error; a line that lost the race since then
		// fails here and rolls back the whole order.
		orderID := created.ID
		for _, line := range lines {
			if _, err := s.stock.Decrement(ctx, tx, inventory.MovementInput{
				ProductID: line.ProductID,
				OrderID:   &orderID,
				Quantity:  line.Quantity,
				Reason:    enums.InventoryReasonOrderCreate,
				Actor:     userID.String(),
			}); err != nil {
				return err
			}
		}

		converted, err := cartRepo.MarkConverted(ctx, record.ID, userID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "convert cart")
		}
		if !converted {
			return pkgerrors.New(pkgerrors.CodeConflict, "cart already processed")
		}

		event := outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   created.ID,
			Actor:         &outbox.ActorRef{UserID: userID, Role: string(enums.ActorRoleCustomer)},
			Data: payloads.OrderCreatedEvent{
				OrderID:     created.ID,
				OrderNumber: created.OrderNumber,
				UserID:      userID,
				TotalCents:  created.TotalCents,
				Currency:    created.Currency.String(),
				ItemCount:   len(items),
			},
			OccurredAt: now,
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return err
		}

		placed, err = ordersRepo.FindByID(ctx, created.ID)
		return err
	})
	if err != nil {
		s.metrics.IncCheckoutFailure(failureReason(err))
		return nil, err
	}

	s.afterCheckout(ctx, userID, placed)
	return placed, nil
}

// snapshotCart validates and freezes every cart line. It returns CartInvalid
// with the complete invalid list when any line fails.
func (s *service) snapshotCart(ctx context.Context, items []models.CartItem) ([]SnapshotLine, error) {
	ids := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ProductID)
	}
	products, err := s.products.FindByIDs(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load products")
	}
	byID := make(map[uuid.UUID]models.Product, len(products))
	for _, product := range products {
		byID[product.ID] = product
	}

	lines, invalid := buildSnapshot(items, byID)
	if len(invalid) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeCartInvalid, "cart contains invalid items").
			WithDetails(CartInvalidDetails{InvalidItems: invalid})
	}
	return lines, nil
}

func quoteLines(lines []SnapshotLine) []QuoteLine {
	out := make([]QuoteLine, 0, len(lines))
	for _, line := range lines {
		out = append(out, QuoteLine{UnitPriceCents: line.UnitPriceCents, Quantity: line.Quantity})
	}
	return out
}

func (s *service) afterCheckout(ctx context.Context, userID uuid.UUID, order *models.Order) {
	s.metrics.IncPlaced()

	ctx = s.logg.WithField(ctx, "order_id", order.ID.String())
	ctx = s.logg.WithField(ctx, "order_number", order.OrderNumber)
	s.logg.Info(ctx, "checkout completed")

	if s.activity == nil {
		return
	}
	orderID := order.ID
	s.activity.Record(ctx, activity.Entry{
		Actor:       userID.String(),
		Action:      "order.placed",
		SubjectType: activity.SubjectOrder,
		SubjectID:   &orderID,
		Details: map[string]any{
			"order_number": order.OrderNumber,
			"total_cents":  order.TotalCents,
			"item_count":   len(order.Items),
		},
	})
}

func failureReason(err error) string {
	appErr := pkgerrors.As(err)
	if appErr == nil {
		return "internal"
	}
	switch appErr.Code() {
	case pkgerrors.CodeCartInvalid:
		return "cart_invalid"
	case pkgerrors.CodeInsufficientStock:
		return "insufficient_stock"
	case pkgerrors.CodeValidation:
		return "validation"
	case pkgerrors.CodeConflict, pkgerrors.CodeStateConflict:
		return "conflict"
	case pkgerrors.CodeNotFound:
		return "not_found"
	default:
		return string(appErr.Code())
	}
}
