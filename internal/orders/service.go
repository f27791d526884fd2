package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/castlemart/castlemart-backend/pkg/db/models"
	"github.com/castlemart/castlemart-backend/pkg/enums"
	pkgerrors "github.com/castlemart/castlemart-backend/pkg/errors"
	"github.com/castlemart/castlemart-backend/pkg/metrics"
	"github.com/castlemart/castlemart-backend/pkg/outbox"
	"github.com/castlemart/castlemart-backend/pkg/outbox/payloads"
	"github.com/castlemart/castlemart-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service defines order read and fulfillment operations. Paid and canceled
// transitions live in the payments and cancellation services; this surface
// covers the lookups plus the ship/deliver legs.
type Service interface {
	GetOrder(ctx context.Context, orderID uuid.UUID, requester Requester) (*models.Order, error)
	ListOrders(ctx context.Context, input ListOrdersInput) (*OrderList, error)
	UpdateStatus(ctx context.Context, input UpdateStatusInput) (*models.Order, error)
}

type service struct {
	repo    Repository
	tx      txRunner
	outbox  outboxPublisher
	metrics *metrics.OrderFlowMetrics
}

// NewService builds an order service with the required dependencies.
func NewService(repo Repository, tx txRunner, outbox outboxPublisher, flow *metrics.OrderFlowMetrics) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &service{repo: repo, tx: tx, outbox: outbox, metrics: flow}, nil
}

// Requester scopes reads. Admin requesters see every order; customers only
// their own.
type Requester struct {
	UserID uuid.UUID
	Role   enums.ActorRole
}

// ListOrdersInput captures the inputs for the paginated order list.
type ListOrdersInput struct {
	Requester Requester
	Params    pagination.Params
	Filters   OrderFilters
}

// UpdateStatusInput carries the admin fulfillment transition request.
type UpdateStatusInput struct {
	OrderID     uuid.UUID
	Target      enums.OrderStatus
	ActorUserID uuid.UUID
	ActorRole   enums.ActorRole
}

// GetOrder loads one order with its items, enforcing ownership for customers.
func (s *service) GetOrder(ctx context.Context, orderID uuid.UUID, requester Requester) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if requester.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}

	var (
		order *models.Order
		err   error
	)
	if requester.Role == enums.ActorRoleAdmin {
		order, err = s.repo.FindByID(ctx, orderID)
	} else {
		order, err = s.repo.FindByIDForUser(ctx, orderID, requester.UserID)
	}
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

// ListOrders returns a page of order summaries.
func (s *service) ListOrders(ctx context.Context, input ListOrdersInput) (*OrderList, error) {
	if input.Requester.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if input.Filters.Status != nil && !input.Filters.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid status filter")
	}

	var scope *uuid.UUID
	if input.Requester.Role != enums.ActorRoleAdmin {
		userID := input.Requester.UserID
		scope = &userID
	}

	list, err := s.repo.List(ctx, scope, input.Params, input.Filters)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	return list, nil
}

// UpdateStatus moves an order along the fulfillment legs. Only shipped and
// delivered targets are allowed here; payment confirmation and cancellation
// own the other edges because they carry side effects.
func (s *service) UpdateStatus(ctx context.Context, input UpdateStatusInput) (*models.Order, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if input.ActorUserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if !input.Target.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown order status")
	}
	switch input.Target {
	case enums.OrderStatusShipped, enums.OrderStatusDelivered:
	case enums.OrderStatusPaid:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "orders are marked paid through payment confirmation")
	case enums.OrderStatusCanceled:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "orders are canceled through the cancellation endpoint")
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "status cannot be set directly")
	}

	var updated *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		order, err := repo.FindByID(ctx, input.OrderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		if order.Status == input.Target {
			updated = order
			return nil
		}
		if err := GuardTransition(order.Status, input.Target); err != nil {
			return err
		}

		now := time.Now().UTC()
		moved, err := repo.UpdateStatusGuarded(ctx, order.ID, order.Status, input.Target, map[string]any{
			timestampColumn(input.Target): now,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}
		if !moved {
			current, err := repo.FindByID(ctx, order.ID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload order")
			}
			if current.Status == input.Target {
				updated = current
				return nil
			}
			return GuardTransition(current.Status, input.Target)
		}

		from := order.Status
		order.Status = input.Target
		switch input.Target {
		case enums.OrderStatusShipped:
			order.ShippedAt = &now
		case enums.OrderStatusDelivered:
			order.DeliveredAt = &now
		}
		updated = order

		s.metrics.IncTransition(string(from), string(input.Target))
		return s.outbox.Emit(ctx, tx, fulfillmentEvent(order, input, now))
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func fulfillmentEvent(order *models.Order, input UpdateStatusInput, stampedAt time.Time) outbox.DomainEvent {
	event := outbox.DomainEvent{
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Version:       1,
		OccurredAt:    stampedAt,
		Actor:         &outbox.ActorRef{UserID: input.ActorUserID, Role: string(input.ActorRole)},
	}
	switch input.Target {
	case enums.OrderStatusDelivered:
		event.EventType = enums.EventOrderDelivered
		event.Data = payloads.OrderDeliveredEvent{
			OrderID:     order.ID,
			UserID:      order.UserID,
			DeliveredAt: stampedAt,
		}
	default:
		event.EventType = enums.EventOrderShipped
		event.Data = payloads.OrderShippedEvent{
			OrderID:   order.ID,
			UserID:    order.UserID,
			ShippedAt: stampedAt,
		}
	}
	return event
}
