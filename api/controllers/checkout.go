package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/castlemart/castlemart-backend/api/responses"
	"github.com/castlemart/castlemart-backend/api/validators"
	"github.com/castlemart/castlemart-backend/internal/checkout"
	pkgerrors "github.com/castlemart/castlemart-backend/pkg/errors"
	"github.com/castlemart/castlemart-backend/pkg/logger"
)

type checkoutRequest struct {
	ShippingAddressID *string `json:"shipping_address_id" validate:"omitempty,uuid4"`
	BillingAddressID  *string `json:"billing_address_id" validate:"omitempty,uuid4"`
}

// Checkout handles POST /api/v1/checkout. It converts the caller's active
// cart into a priced pending order.
func Checkout(svc checkout.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		requester, err := requesterFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req checkoutRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := checkout.CheckoutInput{}
		if req.ShippingAddressID != nil {
			addressID, err := uuid.Parse(*req.ShippingAddressID)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "shipping address id must be a valid UUID"))
				return
			}
			input.ShippingAddressID = &addressID
		}
		if req.BillingAddressID != nil {
			addressID, err := uuid.Parse(*req.BillingAddressID)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "billing address id must be a valid UUID"))
				return
			}
			input.BillingAddressID = &addressID
		}

		order, err := svc.Checkout(r.Context(), requester.UserID, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if logg != nil {
			wctx := logg.WithFields(r.Context(), map[string]any{
				"order_id":     order.ID.String(),
				"order_number": order.OrderNumber,
				"total_cents":  order.TotalCents,
			})
			logg.Info(wctx, "checkout completed")
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, newOrderResponse(order))
	}
}
