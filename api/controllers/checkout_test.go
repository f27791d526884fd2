package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/castlemart/castlemart-backend/api/middleware"
	checkoutsvc "github.com/castlemart/castlemart-backend/internal/checkout"
	"github.com/castlemart/castlemart-backend/pkg/db/models"
	"github.com/castlemart/castlemart-backend/pkg/enums"
)

type stubCheckoutService struct {
	order *models.Order
	err   error

	gotUserID uuid.UUID
	gotInput  checkoutsvc.CheckoutInput
}

func (s *stubCheckoutService) Checkout(ctx context.Context, userID uuid.UUID, input checkoutsvc.CheckoutInput) (*models.Order, error) {
	s.gotUserID = userID
	s.gotInput = input
	return s.order, s.err
}

func authedRequest(r *http.Request, userID uuid.UUID, role enums.ActorRole) *http.Request {
	ctx := middleware.WithUserID(r.Context(), userID.String())
	ctx = middleware.WithRole(ctx, string(role))
	return r.WithContext(ctx)
}

func sampleOrder(userID uuid.UUID) *models.Order {
	return &models.Order{
		ID:            uuid.New(),
		OrderNumber:   "CM-20260314-7GK2QX",
		UserID:        userID,
		Status:        enums.OrderStatusPending,
		Currency:      enums.CurrencyUSD,
		SubtotalCents: 5000,
		TaxCents:      413,
		ShippingCents: 599,
		TotalCents:    6012,
		PlacedAt:      time.Now().UTC(),
		Items: []models.OrderItem{
			{
				ID:             uuid.New(),
				ProductID:      uuid.New(),
				ProductSKU:     "SWORD-FOAM-01",
				ProductName:    "Foam Longsword",
				UnitPriceCents: 2500,
				Quantity:       2,
				LineTotalCents: 5000,
			},
		},
	}
}

func TestCheckoutSuccess(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	order := sampleOrder(userID)
	svc := &stubCheckoutService{order: order}
	handler := Checkout(svc, nil)

	shippingID := uuid.New()
	body := `{"shipping_address_id":"` + shippingID.String() + `"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req = authedRequest(req, userID, enums.ActorRoleCustomer)

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.gotUserID != userID {
		t.Fatalf("checkout ran for wrong user: %s", svc.gotUserID)
	}
	if svc.gotInput.ShippingAddressID == nil || *svc.gotInput.ShippingAddressID != shippingID {
		t.Fatal("shipping address id did not reach the service")
	}

	var envelope struct {
		Data orderResponse `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.ID != order.ID {
		t.Fatalf("unexpected order id: %s", envelope.Data.ID)
	}
	if envelope.Data.OrderNumber != order.OrderNumber {
		t.Fatalf("unexpected order number: %s", envelope.Data.OrderNumber)
	}
	if len(envelope.Data.Items) != 1 || envelope.Data.Items[0].ProductSKU != "SWORD-FOAM-01" {
		t.Fatalf("unexpected items: %+v", envelope.Data.Items)
	}
}

func TestCheckoutRejectsMalformedAddressID(t *testing.T) {
	t.Parallel()

	handler := Checkout(&stubCheckoutService{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(`{"shipping_address_id":"not-a-uuid"}`))
	req.Header.Set("Content-Type", "application/json")
	req = authedRequest(req, uuid.New(), enums.ActorRoleCustomer)

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestCheckoutRequiresIdentity(t *testing.T) {
	t.Parallel()

	handler := Checkout(&stubCheckoutService{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}
