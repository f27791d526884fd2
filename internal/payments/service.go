package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/castlemart/castlemart-backend/internal/activity"
	"github.com/castlemart/castlemart-backend/internal/orders"
	"github.com/castlemart/castlemart-backend/pkg/db/models"
	"github.com/castlemart/castlemart-backend/pkg/enums"
	pkgerrors "github.com/castlemart/castlemart-backend/pkg/errors"
	"github.com/castlemart/castlemart-backend/pkg/logger"
	"github.com/castlemart/castlemart-backend/pkg/metrics"
	"github.com/castlemart/castlemart-backend/pkg/outbox"
	"github.com/castlemart/castlemart-backend/pkg/outbox/payloads"
)

const defaultVerifyTimeout = 10 * time.Second

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type activityRecorder interface {
	Record(ctx context.Context, entry activity.Entry)
}

// Service correlates orders with gateway payments. Attach records the
// reference a client obtained from the gateway; Confirm verifies the charge
// and moves the order to paid exactly once.
type Service interface {
	AttachPaymentReference(ctx context.Context, input AttachInput) (*models.Order, error)
	ConfirmPayment(ctx context.Context, input ConfirmInput) (*models.Order, error)
}

// AttachInput pins a gateway payment reference to a pending order.
type AttachInput struct {
	OrderID   uuid.UUID
	Reference string
	Requester orders.Requester
}

// ConfirmInput requests payment verification for an order.
type ConfirmInput struct {
	OrderID   uuid.UUID
	Reference string
	Requester orders.Requester
}

// PaymentFailureDetails is attached to PaymentFailed errors.
type PaymentFailureDetails struct {
	GatewayReason string `json:"gateway_reason"`
}

type service struct {
	repo     orders.Repository
	tx       txRunner
	gateway  Gateway
	outbox   outboxPublisher
	activity activityRecorder
	timeout  time.Duration
	logg     *logger.Logger
	metrics  *metrics.OrderFlowMetrics
}

// NewService builds the payments service.
func NewService(
	repo orders.Repository,
	tx txRunner,
	gateway Gateway,
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
		timeout = defaultVerifyTimeout
	}
	return &service{
		repo:     repo,
		tx:       tx,
		gateway:  gateway,
		outbox:   publisher,
		activity: recorder,
		timeout:  timeout,
		logg:     logg,
		metrics:  flow,
	}, nil
}

// AttachPaymentReference stores the gateway reference on a pending order.
// Re-attaching the same reference is a no-op; a different reference may
// replace it while the order is still pending (the client retried with a new
// gateway attempt). Once the order leaves pending the reference is pinned.
func (s *service) AttachPaymentReference(ctx context.Context, input AttachInput) (*models.Order, error) {
	reference, err := validatePaymentInput(input.OrderID, input.Reference, input.Requester)
	if err != nil {
		return nil, err
	}

	order, err := s.loadOrder(ctx, input.OrderID, input.Requester)
	if err != nil {
		return nil, err
	}

	if order.PaymentReference != nil && *order.PaymentReference == reference {
		return order, nil
	}
	if err := orders.GuardTransition(order.Status, enums.OrderStatusPaid); err != nil {
		return nil, err
	}

	attached, err := s.repo.AttachPaymentReferenceGuarded(ctx, order.ID, reference)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "attach payment reference")
	}
	if !attached {
		// The order left pending between the read and the update. A confirm
		// that raced us with the same reference counts as success.
		current, err := s.repo.FindByID(ctx, order.ID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload order")
		}
		if current.PaymentReference != nil && *current.PaymentReference == reference {
			return current, nil
		}
		return nil, orders.GuardTransition(current.Status, enums.OrderStatusPaid)
	}

	order.PaymentReference = &reference
	return order, nil
}

// ConfirmPayment verifies the charge with the gateway and moves the order
// pending → paid. Confirming an already paid order is a no-op success, so
// client retries and webhook deliveries converge on one paid_at.
func (s *service) ConfirmPayment(ctx context.Context, input ConfirmInput) (*models.Order, error) {
	reference, err := validatePaymentInput(input.OrderID, input.Reference, input.Requester)
	if err != nil {
		return nil, err
	}

	order, err := s.loadOrder(ctx, input.OrderID, input.Requester)
	if err != nil {
		return nil, err
	}

	if order.Status == enums.OrderStatusPaid {
		if order.PaymentReference == nil || *order.PaymentReference != reference {
			wctx := s.logg.WithField(ctx, "order_id", order.ID.String())
			s.logg.Warn(wctx, "confirmation reference differs from the recorded payment")
		}
		return order, nil
	}
	if err := orders.GuardTransition(order.Status, enums.OrderStatusPaid); err != nil {
		return nil, err
	}

	verified, err := s.verify(ctx, reference)
	if err != nil {
		return nil, err
	}
	if reason := verificationFailure(verified, order); reason != "" {
		return nil, pkgerrors.New(pkgerrors.CodePaymentFailed, "payment not confirmed").
			WithDetails(PaymentFailureDetails{GatewayReason: reason})
	}

	now := time.Now().UTC()
	var (
		confirmed *models.Order
		movedHere bool
	)
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		moved, err := repo.UpdateStatusGuarded(ctx, order.ID, enums.OrderStatusPending, enums.OrderStatusPaid, map[string]any{
			"paid_at":           now,
			"payment_reference": reference,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order paid")
		}
		if !moved {
			current, err := repo.FindByID(ctx, order.ID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload order")
			}
			if current.Status == enums.OrderStatusPaid {
				confirmed = current
				return nil
			}
			return orders.GuardTransition(current.Status, enums.OrderStatusPaid)
		}
		movedHere = true

		order.Status = enums.OrderStatusPaid
		order.PaidAt = &now
		order.PaymentReference = &reference
		confirmed = order

		s.metrics.IncTransition(string(enums.OrderStatusPending), string(enums.OrderStatusPaid))
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderPaid,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         requesterRef(input.Requester),
			Data: payloads.OrderPaidEvent{
				OrderID:          order.ID,
				UserID:           order.UserID,
				PaymentReference: reference,
				TotalCents:       order.TotalCents,
				PaidAt:           now,
			},
			OccurredAt: now,
		})
	})
	if err != nil {
		return nil, err
	}

	if movedHere {
		s.afterConfirm(ctx, input.Requester, confirmed)
	}
	return confirmed, nil
}

func (s *service) loadOrder(ctx context.Context, orderID uuid.UUID, requester orders.Requester) (*models.Order, error) {
	var (
		order *models.Order
		err   error
	)
	if requester.Role == enums.ActorRoleCustomer {
		order, err = s.repo.FindByIDForUser(ctx, orderID, requester.UserID)
	} else {
		order, err = s.repo.FindByID(ctx, orderID)
	}
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

func (s *service) verify(ctx context.Context, reference string) (VerifyResult, error) {
	vctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	result, err := s.gateway.Verify(vctx, reference)
	if err != nil {
		return VerifyResult{}, pkgerrors.Wrap(pkgerrors.CodePaymentFailed, err, "payment verification failed").
			WithDetails(PaymentFailureDetails{GatewayReason: gatewayReason(err)})
	}
	return result, nil
}

func (s *service) afterConfirm(ctx context.Context, requester orders.Requester, order *models.Order) {
	ctx = s.logg.WithField(ctx, "order_id", order.ID.String())
	s.logg.Info(ctx, "payment confirmed")

	if s.activity == nil {
		return
	}
	orderID := order.ID
	s.activity.Record(ctx, activity.Entry{
		Actor:       requesterActor(requester),
		Action:      "order.paid",
		SubjectType: activity.SubjectOrder,
		SubjectID:   &orderID,
		Details: map[string]any{
			"order_number": order.OrderNumber,
			"total_cents":  order.TotalCents,
		},
	})
}

func validatePaymentInput(orderID uuid.UUID, reference string, requester orders.Requester) (string, error) {
	if orderID == uuid.Nil {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	trimmed := strings.TrimSpace(reference)
	if trimmed == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "payment reference required")
	}
	if requester.Role == enums.ActorRoleCustomer && requester.UserID == uuid.Nil {
		return "", pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	return trimmed, nil
}

// verificationFailure inspects a successful gateway response against the
// order. Any mismatch leaves the order pending and retryable.
func verificationFailure(result VerifyResult, order *models.Order) string {
	if !result.Completed {
		if result.Status == "" {
			return "payment not found"
		}
		return fmt.Sprintf("payment status %s", result.Status)
	}
	if result.AmountCents != order.TotalCents {
		return fmt.Sprintf("charged amount %d does not match order total %d", result.AmountCents, order.TotalCents)
	}
	if result.Currency != "" && result.Currency != order.Currency.String() {
		return fmt.Sprintf("charged currency %s does not match order currency %s", result.Currency, order.Currency)
	}
	return ""
}

func gatewayReason(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "verification timed out"
	}
	if appErr := pkgerrors.As(err); appErr != nil {
		return appErr.Message()
	}
	return "gateway error"
}

func requesterRef(requester orders.Requester) *outbox.ActorRef {
	if requester.UserID == uuid.Nil {
		return nil
	}
	return &outbox.ActorRef{UserID: requester.UserID, Role: requester.Role.String()}
}

func requesterActor(requester orders.Requester) string {
	if requester.UserID == uuid.Nil {
		return enums.ActorRoleSystem.String()
	}
	return requester.UserID.String()
}
