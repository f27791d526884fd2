package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/castlemart/castlemart-backend/api/middleware"
	"github.com/castlemart/castlemart-backend/internal/orders"
	"github.com/castlemart/castlemart-backend/pkg/enums"
	pkgerrors "github.com/castlemart/castlemart-backend/pkg/errors"
)

// requesterFromContext rebuilds the authenticated identity from the request
// context. The auth middleware seeds both values, so failures here mean the
// route is wired outside the authed group.
func requesterFromContext(r *http.Request) (orders.Requester, error) {
	userID, err := uuid.Parse(middleware.UserIDFromContext(r.Context()))
	if err != nil {
		return orders.Requester{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}

	role, err := enums.ParseActorRole(middleware.RoleFromContext(r.Context()))
	if err != nil {
		return orders.Requester{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "actor role missing")
	}

	return orders.Requester{UserID: userID, Role: role}, nil
}

func parseOrderID(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "orderId"))
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	orderID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "order id must be a valid UUID")
	}
	return orderID, nil
}

func parseProductID(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "productId"))
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	productID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "product id must be a valid UUID")
	}
	return productID, nil
}
