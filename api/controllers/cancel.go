package controllers

import (
	"net/http"

	"github.com/castlemart/castlemart-backend/api/responses"
	"github.com/castlemart/castlemart-backend/internal/cancellation"
	pkgerrors "github.com/castlemart/castlemart-backend/pkg/errors"
	"github.com/castlemart/castlemart-backend/pkg/logger"
)

type cancelResponse struct {
	Order         orderResponse               `json:"order"`
	RefundWarning *cancellation.RefundWarning `json:"refund_warning,omitempty"`
}

// CancelOrder handles POST /api/v1/orders/{orderId}/cancel. Paid orders are
// refunded; a failed refund still cancels and surfaces a warning.
func CancelOrder(svc cancellation.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cancellation service unavailable"))
			return
		}

		requester, err := requesterFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		orderID, err := parseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Cancel(r.Context(), cancellation.CancelParams{
			OrderID:   orderID,
			Requester: requester,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if result.RefundWarning != nil && logg != nil {
			wctx := logg.WithFields(r.Context(), map[string]any{
				"order_id":       result.Order.ID.String(),
				"gateway_reason": result.RefundWarning.GatewayReason,
			})
			logg.Warn(wctx, "order canceled but refund failed")
		}

		responses.WriteSuccess(w, cancelResponse{
			Order:         newOrderResponse(result.Order),
			RefundWarning: result.RefundWarning,
		})
	}
}
