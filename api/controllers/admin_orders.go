package controllers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/castlemart/castlemart-backend/api/responses"
	"github.com/castlemart/castlemart-backend/api/validators"
	"github.com/castlemart/castlemart-backend/internal/activity"
	"github.com/castlemart/castlemart-backend/internal/cancellation"
	"github.com/castlemart/castlemart-backend/internal/orders"
	"github.com/castlemart/castlemart-backend/pkg/enums"
	pkgerrors "github.com/castlemart/castlemart-backend/pkg/errors"
	"github.com/castlemart/castlemart-backend/pkg/logger"
	"github.com/castlemart/castlemart-backend/pkg/pagination"
)

type updateOrderStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// AdminUpdateOrderStatus handles POST /api/v1/admin/orders/{orderId}/status.
// Fulfillment moves forward only: paid to shipped, shipped to delivered.
func AdminUpdateOrderStatus(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
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

		var req updateOrderStatusRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		target, err := enums.ParseOrderStatus(req.Status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "unknown order status"))
			return
		}

		order, err := svc.UpdateStatus(r.Context(), orders.UpdateStatusInput{
			OrderID:     orderID,
			Target:      target,
			ActorUserID: requester.UserID,
			ActorRole:   requester.Role,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if logg != nil {
			wctx := logg.WithFields(r.Context(), map[string]any{
				"order_id": order.ID.String(),
				"status":   string(order.Status),
			})
			logg.Info(wctx, "order status updated")
		}

		responses.WriteSuccess(w, newOrderResponse(order))
	}
}

// AdminCancelOrder handles POST /api/v1/admin/orders/{orderId}/cancel. Admins
// can cancel any cancelable order regardless of owner.
func AdminCancelOrder(svc cancellation.Service, logg *logger.Logger) http.HandlerFunc {
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

		responses.WriteSuccess(w, cancelResponse{
			Order:         newOrderResponse(result.Order),
			RefundWarning: result.RefundWarning,
		})
	}
}

type activityRecordResponse struct {
	ID        uuid.UUID       `json:"id"`
	Actor     string          `json:"actor"`
	Action    string          `json:"action"`
	Details   json.RawMessage `json:"details,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

type orderActivityResponse struct {
	OrderID uuid.UUID                `json:"order_id"`
	Records []activityRecordResponse `json:"records"`
}

// AdminOrderActivity handles GET /api/v1/admin/orders/{orderId}/activity.
// The trail reads newest first.
func AdminOrderActivity(svc activity.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "activity service unavailable"))
			return
		}

		if _, err := requesterFromContext(r); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		orderID, err := parseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		records, err := svc.History(r.Context(), activity.SubjectOrder, orderID, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order activity"))
			return
		}

		out := make([]activityRecordResponse, 0, len(records))
		for _, record := range records {
			out = append(out, activityRecordResponse{
				ID:        record.ID,
				Actor:     record.Actor,
				Action:    record.Action,
				Details:   record.Details,
				CreatedAt: record.CreatedAt,
			})
		}

		responses.WriteSuccess(w, orderActivityResponse{OrderID: orderID, Records: out})
	}
}
