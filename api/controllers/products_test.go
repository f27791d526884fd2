package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/castlemart/castlemart-backend/internal/products"
	"github.com/castlemart/castlemart-backend/pkg/db/models"
	"github.com/castlemart/castlemart-backend/pkg/enums"
	pkgerrors "github.com/castlemart/castlemart-backend/pkg/errors"
)

type stubProductService struct {
	product *models.Product
	list    *products.ListResult
	err     error

	gotList          products.ListParams
	gotCreate        products.CreateProductInput
	gotUpdateID      uuid.UUID
	gotUpdate        products.UpdateProductInput
	gotDeactivateID  uuid.UUID
	deactivateCalled bool
}

func (s *stubProductService) GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.product, nil
}

func (s *stubProductService) GetBySKU(ctx context.Context, sku string) (*models.Product, error) {
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
}

func (s *stubProductService) ListProducts(ctx context.Context, params products.ListParams) (*products.ListResult, error) {
	s.gotList = params
	return s.list, s.err
}

func (s *stubProductService) CreateProduct(ctx context.Context, input products.CreateProductInput) (*models.Product, error) {
	s.gotCreate = input
	return s.product, s.err
}

func (s *stubProductService) UpdateProduct(ctx context.Context, id uuid.UUID, input products.UpdateProductInput) (*models.Product, error) {
	s.gotUpdateID = id
	s.gotUpdate = input
	return s.product, s.err
}

func (s *stubProductService) DeactivateProduct(ctx context.Context, id uuid.UUID) error {
	s.deactivateCalled = true
	s.gotDeactivateID = id
	return s.err
}

func TestListProductsParsesFilters(t *testing.T) {
	t.Parallel()

	svc := &stubProductService{list: &products.ListResult{
		Products: []models.Product{
			{ID: uuid.New(), SKU: "SKU-1", Name: "Widget", Currency: enums.CurrencyUSD, StockQty: 3, IsActive: true},
		},
		NextCursor: "cursor-9",
	}}
	handler := ListProducts(svc, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products?q=widget&tag=Tools&in_stock=true&limit=25", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.gotList.Filters.IncludeAll {
		t.Fatal("storefront listing must never include inactive rows")
	}
	if !svc.gotList.Filters.OnlyInStock {
		t.Fatal("in_stock filter did not reach the service")
	}
	if svc.gotList.Filters.Query != "widget" || svc.gotList.Filters.Tag != "Tools" {
		t.Fatalf("unexpected filters: %+v", svc.gotList.Filters)
	}
	if svc.gotList.Limit != 25 {
		t.Fatalf("unexpected limit: %d", svc.gotList.Limit)
	}

	var envelope struct {
		Data productListResponse `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(envelope.Data.Products) != 1 || envelope.Data.NextCursor != "cursor-9" {
		t.Fatalf("unexpected list payload: %+v", envelope.Data)
	}
}

func TestProductDetailHidesInactiveListing(t *testing.T) {
	t.Parallel()

	productID := uuid.New()
	svc := &stubProductService{product: &models.Product{ID: productID, SKU: "SKU-2", Name: "Retired", IsActive: false}}
	handler := ProductDetail(svc, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products/"+productID.String(), nil)
	req = requestWithURLParam(req, "productId", productID.String())
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for inactive product got %d", resp.Code)
	}
}

func TestProductDetailReturnsActiveListing(t *testing.T) {
	t.Parallel()

	productID := uuid.New()
	svc := &stubProductService{product: &models.Product{
		ID:       productID,
		SKU:      "SKU-3",
		Name:     "Widget",
		Currency: enums.CurrencyUSD,
		StockQty: 7,
		IsActive: true,
	}}
	handler := ProductDetail(svc, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products/"+productID.String(), nil)
	req = requestWithURLParam(req, "productId", productID.String())
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}

	var envelope struct {
		Data productResponse `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.ID != productID || envelope.Data.StockQty != 7 {
		t.Fatalf("unexpected product payload: %+v", envelope.Data)
	}
}

func TestAdminListProductsIncludesInactive(t *testing.T) {
	t.Parallel()

	svc := &stubProductService{list: &products.ListResult{}}
	handler := AdminListProducts(svc, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/products", nil)
	req = authedRequest(req, uuid.New(), enums.ActorRoleAdmin)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if !svc.gotList.Filters.IncludeAll {
		t.Fatal("admin listing should include inactive rows")
	}
}

func TestAdminCreateProduct(t *testing.T) {
	t.Parallel()

	created := &models.Product{
		ID:       uuid.New(),
		SKU:      "SKU-9",
		Name:     "Castle Kit",
		Currency: enums.CurrencyUSD,
		StockQty: 12,
		IsActive: true,
	}
	svc := &stubProductService{product: created}
	handler := AdminCreateProduct(svc, nil)

	body := `{"sku":"SKU-9","name":"Castle Kit","price_cents":4999,"currency":"usd","stock_qty":12,"tags":["kits","castle"]}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/products", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req = authedRequest(req, uuid.New(), enums.ActorRoleAdmin)

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.gotCreate.SKU != "SKU-9" || svc.gotCreate.StockQty != 12 {
		t.Fatalf("unexpected create input: %+v", svc.gotCreate)
	}
	if svc.gotCreate.Currency != enums.CurrencyUSD {
		t.Fatalf("currency should parse case-insensitively, got %q", svc.gotCreate.Currency)
	}
	if len(svc.gotCreate.Tags) != 2 {
		t.Fatalf("tags did not reach the service: %+v", svc.gotCreate.Tags)
	}
}

func TestAdminCreateProductRejectsMissingSKU(t *testing.T) {
	t.Parallel()

	svc := &stubProductService{}
	handler := AdminCreateProduct(svc, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/products", strings.NewReader(`{"name":"No SKU","price_cents":100}`))
	req.Header.Set("Content-Type", "application/json")
	req = authedRequest(req, uuid.New(), enums.ActorRoleAdmin)

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestAdminCreateProductRejectsUnknownCurrency(t *testing.T) {
	t.Parallel()

	svc := &stubProductService{}
	handler := AdminCreateProduct(svc, nil)

	body := `{"sku":"SKU-10","name":"Kit","price_cents":100,"currency":"doubloons"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/products", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req = authedRequest(req, uuid.New(), enums.ActorRoleAdmin)

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestAdminUpdateProductPassesOnlyProvidedFields(t *testing.T) {
	t.Parallel()

	productID := uuid.New()
	svc := &stubProductService{product: &models.Product{ID: productID, SKU: "SKU-4", Name: "Renamed", IsActive: true}}
	handler := AdminUpdateProduct(svc, nil)

	req := httptest.NewRequest(http.MethodPatch, "/api/v1/admin/products/"+productID.String(), strings.NewReader(`{"name":"Renamed","price_cents":1299}`))
	req.Header.Set("Content-Type", "application/json")
	req = authedRequest(req, uuid.New(), enums.ActorRoleAdmin)
	req = requestWithURLParam(req, "productId", productID.String())

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.gotUpdateID != productID {
		t.Fatalf("unexpected product id: %s", svc.gotUpdateID)
	}
	if svc.gotUpdate.Name == nil || *svc.gotUpdate.Name != "Renamed" {
		t.Fatalf("name update missing: %+v", svc.gotUpdate)
	}
	if svc.gotUpdate.PriceCents == nil || *svc.gotUpdate.PriceCents != 1299 {
		t.Fatalf("price update missing: %+v", svc.gotUpdate)
	}
	if svc.gotUpdate.Description != nil || svc.gotUpdate.IsActive != nil || svc.gotUpdate.Tags != nil {
		t.Fatalf("absent fields should stay nil: %+v", svc.gotUpdate)
	}
}

func TestAdminDeactivateProduct(t *testing.T) {
	t.Parallel()

	productID := uuid.New()
	svc := &stubProductService{}
	handler := AdminDeactivateProduct(svc, nil)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/admin/products/"+productID.String(), nil)
	req = authedRequest(req, uuid.New(), enums.ActorRoleAdmin)
	req = requestWithURLParam(req, "productId", productID.String())

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if !svc.deactivateCalled || svc.gotDeactivateID != productID {
		t.Fatalf("deactivate did not reach the service: called=%v id=%s", svc.deactivateCalled, svc.gotDeactivateID)
	}
}
