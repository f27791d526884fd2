package squarewebhook

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/castlemart/castlemart-backend/internal/orders"
	"github.com/castlemart/castlemart-backend/internal/payments"
	"github.com/castlemart/castlemart-backend/pkg/db/models"
	"github.com/castlemart/castlemart-backend/pkg/enums"
	pkgerrors "github.com/castlemart/castlemart-backend/pkg/errors"
	"github.com/castlemart/castlemart-backend/pkg/logger"
)

const paymentStatusCompleted = "COMPLETED"

type orderFinder interface {
	FindByPaymentReference(ctx context.Context, reference string) (*models.Order, error)
}

type paymentConfirmer interface {
	ConfirmPayment(ctx context.Context, input payments.ConfirmInput) (*models.Order, error)
}

type ServiceParams struct {
	Orders   orderFinder
	Payments paymentConfirmer
	Logger   *logger.Logger
}

// Service reconciles Square payment webhooks against local orders. It is the
// backstop for clients that attach a payment reference and then drop offline
// before confirming.
type Service struct {
	orders   orderFinder
	payments paymentConfirmer
	logg     *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "order finder required")
	}
	if params.Payments == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payments service required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Service{
		orders:   params.Orders,
		payments: params.Payments,
		logg:     params.Logger,
	}, nil
}

type SquareWebhookEvent struct {
	EventID string            `json:"event_id"`
	Type    string            `json:"type"`
	Data    SquareWebhookData `json:"data"`
}

type SquareWebhookData struct {
	Type   string              `json:"type"`
	ID     string              `json:"id"`
	Object SquareWebhookObject `json:"object"`
}

type SquareWebhookObject struct {
	Payment *PaymentPayload `json:"payment"`
}

// PaymentPayload is the slice of Square's payment object the reconciler needs.
type PaymentPayload struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// HandleEvent processes Square payment events. Unknown event types are
// acknowledged without action so the gateway stops retrying them.
func (s *Service) HandleEvent(ctx context.Context, event *SquareWebhookEvent) error {
	if event == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "square event required")
	}

	switch strings.ToLower(event.Type) {
	case "payment.created", "payment.updated":
		return s.reconcilePayment(ctx, event)
	default:
		return nil
	}
}

func (s *Service) reconcilePayment(ctx context.Context, event *SquareWebhookEvent) error {
	payment := event.Data.Object.Payment
	if payment == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment payload missing")
	}
	if !strings.EqualFold(payment.Status, paymentStatusCompleted) {
		return nil
	}

	reference := strings.TrimSpace(payment.ID)
	if reference == "" {
		reference = strings.TrimSpace(event.Data.ID)
	}
	if reference == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment id missing")
	}

	order, err := s.orders.FindByPaymentReference(ctx, reference)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// The client may not have attached the reference yet. Failing the
			// delivery clears the replay guard so the gateway retry can land
			// after the attach.
			return pkgerrors.New(pkgerrors.CodeNotFound, "no order for payment reference")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find order by payment reference")
	}

	_, err = s.payments.ConfirmPayment(ctx, payments.ConfirmInput{
		OrderID:   order.ID,
		Reference: reference,
		Requester: orders.Requester{Role: enums.ActorRoleSystem},
	})
	if err != nil {
		if appErr := pkgerrors.As(err); appErr != nil && appErr.Code() == pkgerrors.CodeStateConflict {
			// The order reached a terminal state before the webhook landed.
			// Retrying cannot change that, so acknowledge and leave a trail.
			wctx := s.logg.WithField(ctx, "order_id", order.ID.String())
			s.logg.Warn(wctx, "completed payment for order no longer pending")
			return nil
		}
		return err
	}
	return nil
}
