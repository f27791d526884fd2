package cancellation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/castlemart/castlemart-backend/internal/activity"
	"github.com/castlemart/castlemart-backend/internal/inventory"
	"github.com/castlemart/castlemart-backend/internal/orders"
	"github.com/castlemart/castlemart-backend/internal/payments"
	"github.com/castlemart/castlemart-backend/pkg/db/models"
	"github.com/castlemart/castlemart-backend/pkg/enums"
	pkgerrors "github.com/castlemart/castlemart-backend/pkg/errors"
	"github.com/castlemart/castlemart-backend/pkg/logger"
	"github.com/castlemart/castlemart-backend/pkg/metrics"
	"github.com/castlemart/castlemart-backend/pkg/outbox"
	"github.com/castlemart/castlemart-backend/pkg/outbox/payloads"
)

const defaultRefundTimeout = 10 * time.Second

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type stockRestocker interface {
	Increment(ctx context.Context, tx *gorm.DB, input inventory.MovementInput) (*inventory.MovementResult, error)
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type activityRecorder interface {
	Record(ctx context.Context, entry activity.Entry)
}

// Service cancels orders: restock, status flip, and the refund compensator
// for orders that were already paid.
type Service interface {
	Cancel(ctx context.Context, params CancelParams) (*CancelResult, error)
}

// CancelParams identify the order and who is canceling it. Expired marks the
// reaper path for stale pending orders.
type CancelParams struct {
	OrderID   uuid.UUID
	Requester orders.Requester
	Expired   bool
}

// RefundWarning reports a failed refund attempt. The cancellation itself
// already committed when this is set.
type RefundWarning struct {
	GatewayReason string `json:"gateway_reason"`
}

// CancelResult carries the canceled order and, for paid orders whose refund
// attempt failed, a warning the caller should surface.
type CancelResult struct {
	Order         *models.Order  `json:"order"`
	RefundWarning *RefundWarning `json:"refund_warning,omitempty"`
}

type service struct {
	repo     orders.Repository
	tx       txRunner
	stock    stockRestocker
	gateway  payments.Gateway
	outbox   outboxPublisher
	activity activityRecorder
	timeout  time.Duration
	logg     *logger.Logger
	metrics  *metrics.OrderFlowMetrics
}

// NewService builds the cancellation service.
func NewService(
	repo orders.Repository,
	tx txRunner,
	stock stockRestocker,
	gateway payments.Gateway,
	publisher outboxPublisher,
	recorder activityRecorder,
	timeout time.Duration,
	logg *logger.Logger,
	flow *metrics.OrderFlowMetrics,
) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if stock == nil {
		return nil, fmt.Errorf("stock restocker required")
	}
	if gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if timeout <= 0 {
		timeout = defaultRefundTimeout
	}
	return &service{
		repo:     repo,
		tx:       tx,
		stock:    stock,
		gateway:  gateway,
		outbox:   publisher,
		activity: recorder,
		timeout:  timeout,
		logg:     logg,
		metrics:  flow,
	}, nil
}

// Cancel restores stock for every line and flips the order to canceled in one
// transaction. For paid orders a refund runs after commit; a refund failure
// never unwinds the cancellation.
func (s *service) Cancel(ctx context.Context, params CancelParams) (*CancelResult, error) {
	if params.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if params.Requester.Role == enums.ActorRoleCustomer && params.Requester.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}

	now := time.Now().UTC()
	canceledBy := cancelActor(params)

	var (
		canceled  *models.Order
		wasPaid   bool
		movedHere bool
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		order, err := s.loadOrder(ctx, repo, params)
		if err != nil {
			return err
		}
		if err := orders.GuardTransition(order.Status, enums.OrderStatusCanceled); err != nil {
			return err
		}
		from := order.Status
		wasPaid = from == enums.OrderStatusPaid

		// Restock first so the row locks taken here serialize against
		// checkouts. The movement reference makes retried cancels no-ops.
		orderID := order.ID
		for _, item := range order.Items {
			if _, err := s.stock.Increment(ctx, tx, inventory.MovementInput{
				ProductID: item.ProductID,
				OrderID:   &orderID,
				Quantity:  item.Quantity,
				Reason:    enums.InventoryReasonOrderCancel,
				Actor:     canceledBy,
			}); err != nil {
				return err
			}
		}

		moved, err := repo.UpdateStatusGuarded(ctx, order.ID, from, enums.OrderStatusCanceled, map[string]any{
			"canceled_at": now,
			"canceled_by": canceledBy,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel order")
		}
		if !moved {
			current, err := repo.FindByID(ctx, order.ID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload order")
			}
			return orders.GuardTransition(current.Status, enums.OrderStatusCanceled)
		}
		movedHere = true

		order.Status = enums.OrderStatusCanceled
		order.CanceledAt = &now
		order.CanceledBy = &canceledBy
		canceled = order

		s.metrics.IncTransition(string(from), string(enums.OrderStatusCanceled))
		return s.outbox.Emit(ctx, tx, cancelEvent(order, params, now))
	})
	if err != nil {
		return nil, err
	}

	result := &CancelResult{Order: canceled}
	if movedHere {
		if wasPaid {
			result.RefundWarning = s.refund(ctx, canceled)
		}
		s.afterCancel(ctx, params, canceled)
	}
	return result, nil
}

func (s *service) loadOrder(ctx context.Context, repo orders.Repository, params CancelParams) (*models.Order, error) {
	var (
		order *models.Order
		err   error
	)
	if params.Requester.Role == enums.ActorRoleCustomer {
		order, err = repo.FindByIDForUser(ctx, params.OrderID, params.Requester.UserID)
	} else {
		order, err = repo.FindByID(ctx, params.OrderID)
	}
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

// refund attempts the full-amount gateway refund for a paid order. Returns a
// warning instead of an error: the cancellation stands either way.
func (s *service) refund(ctx context.Context, order *models.Order) *RefundWarning {
	if order.PaymentReference == nil {
		return s.refundFailed(ctx, order, "no payment reference on record")
	}

	rctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	result, err := s.gateway.Refund(rctx, payments.RefundParams{
		Reference:      *order.PaymentReference,
		AmountCents:    order.TotalCents,
		Currency:       order.Currency.String(),
		Reason:         "order canceled",
		IdempotencyKey: "refund-" + order.ID.String(),
	})
	if err != nil {
		return s.refundFailed(ctx, order, refundReason(err))
	}

	s.refundSucceeded(ctx, order, result)
	return nil
}

func (s *service) refundSucceeded(ctx context.Context, order *models.Order, result payments.RefundResult) {
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		updates := map[string]any{"refund_status": enums.RefundStatusFull}
		if result.RefundID != "" {
			updates["refund_reference"] = result.RefundID
		}
		if err := repo.Update(ctx, order.ID, updates); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, refundEvent(order, enums.EventRefundSucceeded, result.RefundID, ""))
	})
	if err != nil {
		// The gateway already moved the money; the idempotency key keeps a
		// later retry from refunding twice.
		ectx := s.logg.WithField(ctx, "order_id", order.ID.String())
		s.logg.Error(ectx, "persist refund result", err)
		return
	}

	order.RefundStatus = enums.RefundStatusFull
	if result.RefundID != "" {
		refundRef := result.RefundID
		order.RefundReference = &refundRef
	}
}

func (s *service) refundFailed(ctx context.Context, order *models.Order, reason string) *RefundWarning {
	wctx := s.logg.WithField(ctx, "order_id", order.ID.String())
	wctx = s.logg.WithField(wctx, "reason", reason)
	s.logg.Warn(wctx, "refund failed after cancellation")
	s.metrics.IncRefundFailure()

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.Update(ctx, order.ID, map[string]any{"refund_status": enums.RefundStatusFailed}); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, refundEvent(order, enums.EventRefundFailed, "", reason))
	})
	if err != nil {
		s.logg.Error(wctx, "persist refund failure", err)
	} else {
		order.RefundStatus = enums.RefundStatusFailed
	}

	if s.activity != nil {
		orderID := order.ID
		s.activity.Record(ctx, activity.Entry{
			Actor:       enums.ActorRoleSystem.String(),
			Action:      "order.refund_failed",
			SubjectType: activity.SubjectOrder,
			SubjectID:   &orderID,
			Details:     map[string]any{"reason": reason},
		})
	}

	return &RefundWarning{GatewayReason: reason}
}

func (s *service) afterCancel(ctx context.Context, params CancelParams, order *models.Order) {
	ctx = s.logg.WithField(ctx, "order_id", order.ID.String())
	if params.Expired {
		s.logg.Info(ctx, "pending order expired")
	} else {
		s.logg.Info(ctx, "order canceled")
	}

	if s.activity == nil {
		return
	}
	action := "order.canceled"
	if params.Expired {
		action = "order.expired"
	}
	orderID := order.ID
	s.activity.Record(ctx, activity.Entry{
		Actor:       cancelActor(params),
		Action:      action,
		SubjectType: activity.SubjectOrder,
		SubjectID:   &orderID,
		Details: map[string]any{
			"order_number":  order.OrderNumber,
			"refund_status": order.RefundStatus,
		},
	})
}

func cancelEvent(order *models.Order, params CancelParams, now time.Time) outbox.DomainEvent {
	event := outbox.DomainEvent{
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		OccurredAt:    now,
	}
	if params.Requester.UserID != uuid.Nil {
		event.Actor = &outbox.ActorRef{UserID: params.Requester.UserID, Role: params.Requester.Role.String()}
	}
	if params.Expired {
		event.EventType = enums.EventOrderExpired
		event.Data = payloads.OrderExpiredEvent{
			OrderID:      order.ID,
			UserID:       order.UserID,
			ExpiredAt:    now,
			PendingHours: int(now.Sub(order.PlacedAt).Hours()),
		}
		return event
	}
	event.EventType = enums.EventOrderCanceled
	event.Data = payloads.OrderCanceledEvent{
		OrderID:    order.ID,
		UserID:     order.UserID,
		CanceledBy: cancelActor(params),
		CanceledAt: now,
	}
	return event
}

func refundEvent(order *models.Order, eventType enums.OutboxEventType, refundID, failure string) outbox.DomainEvent {
	reference := ""
	if order.PaymentReference != nil {
		reference = *order.PaymentReference
	}
	return outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Data: payloads.RefundResultEvent{
			OrderID:          order.ID,
			PaymentReference: reference,
			RefundReference:  refundID,
			AmountCents:      order.TotalCents,
			Failure:          failure,
		},
		OccurredAt: time.Now().UTC(),
	}
}

func refundReason(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "refund timed out"
	}
	if appErr := pkgerrors.As(err); appErr != nil {
		return appErr.Message()
	}
	return "gateway error"
}

func cancelActor(params CancelParams) string {
	if params.Expired || params.Requester.UserID == uuid.Nil {
		return enums.ActorRoleSystem.String()
	}
	return params.Requester.UserID.String()
}
