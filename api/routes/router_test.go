package routes

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	activitysvc "github.com/castlemart/castlemart-backend/internal/activity"
	"github.com/castlemart/castlemart-backend/internal/cancellation"
	cartsvc "github.com/castlemart/castlemart-backend/internal/cart"
	checkoutsvc "github.com/castlemart/castlemart-backend/internal/checkout"
	"github.com/castlemart/castlemart-backend/internal/inventory"
	ordersvc "github.com/castlemart/castlemart-backend/internal/orders"
	paymentsvc "github.com/castlemart/castlemart-backend/internal/payments"
	productsvc "github.com/castlemart/castlemart-backend/internal/products"
	pkgauth "github.com/castlemart/castlemart-backend/pkg/auth"
	"github.com/castlemart/castlemart-backend/pkg/config"
	"github.com/castlemart/castlemart-backend/pkg/db/models"
	"github.com/castlemart/castlemart-backend/pkg/enums"
	pkgerrors "github.com/castlemart/castlemart-backend/pkg/errors"
	"github.com/castlemart/castlemart-backend/pkg/logger"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error {
	return nil
}

type memIdempotencyStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemIdempotencyStore() *memIdempotencyStore {
	return &memIdempotencyStore{data: make(map[string]string)}
}

func (s *memIdempotencyStore) Get(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data[key], nil
}

func (s *memIdempotencyStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.data[key]; exists {
		return false, nil
	}
	s.data[key] = fmt.Sprintf("%v", value)
	return true, nil
}

func (s *memIdempotencyStore) IdempotencyKey(scope, id string) string {
	return fmt.Sprintf("cm:idempotency:%s:%s", scope, id)
}

func (s *memIdempotencyStore) Del(ctx context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.data, key)
	}
	return nil
}

type stubProductsService struct{}

func (stubProductsService) GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	return &models.Product{ID: id, SKU: "SKU-1", Name: "Widget", Currency: enums.CurrencyUSD, IsActive: true}, nil
}

func (stubProductsService) GetBySKU(ctx context.Context, sku string) (*models.Product, error) {
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
}

func (stubProductsService) ListProducts(ctx context.Context, params productsvc.ListParams) (*productsvc.ListResult, error) {
	return &productsvc.ListResult{}, nil
}

func (stubProductsService) CreateProduct(ctx context.Context, input productsvc.CreateProductInput) (*models.Product, error) {
	return nil, pkgerrors.New(pkgerrors.CodeInternal, "not implemented")
}

func (stubProductsService) UpdateProduct(ctx context.Context, id uuid.UUID, input productsvc.UpdateProductInput) (*models.Product, error) {
	return nil, pkgerrors.New(pkgerrors.CodeInternal, "not implemented")
}

func (stubProductsService) DeactivateProduct(ctx context.Context, id uuid.UUID) error {
	return pkgerrors.New(pkgerrors.CodeInternal, "not implemented")
}

type stubCartService struct{}

func (stubCartService) GetActiveCart(ctx context.Context, userID uuid.UUID) (*models.CartRecord, error) {
	return &models.CartRecord{ID: uuid.New(), UserID: userID, Status: enums.CartStatusActive}, nil
}

func (stubCartService) AddItem(ctx context.Context, userID uuid.UUID, input cartsvc.AddItemInput) (*models.CartRecord, error) {
	return nil, pkgerrors.New(pkgerrors.CodeInternal, "not implemented")
}

func (stubCartService) UpdateItemQuantity(ctx context.Context, userID, productID uuid.UUID, quantity int64) (*models.CartRecord, error) {
	return nil, pkgerrors.New(pkgerrors.CodeInternal, "not implemented")
}

func (stubCartService) RemoveItem(ctx context.Context, userID, productID uuid.UUID) (*models.CartRecord, error) {
	return nil, pkgerrors.New(pkgerrors.CodeInternal, "not implemented")
}

func (stubCartService) ClearCart(ctx context.Context, userID uuid.UUID) error {
	return nil
}

type stubCheckoutService struct{}

func (stubCheckoutService) Checkout(ctx context.Context, userID uuid.UUID, input checkoutsvc.CheckoutInput) (*models.Order, error) {
	return nil, pkgerrors.New(pkgerrors.CodeCartInvalid, "cart is empty")
}

type stubOrdersService struct{}

func (stubOrdersService) GetOrder(ctx context.Context, orderID uuid.UUID, requester ordersvc.Requester) (*models.Order, error) {
	return &models.Order{
		ID:          orderID,
		OrderNumber: "CM-20260314-7GK2QX",
		UserID:      requester.UserID,
		Status:      enums.OrderStatusPending,
		Currency:    enums.CurrencyUSD,
		PlacedAt:    time.Now().UTC(),
	}, nil
}

func (stubOrdersService) ListOrders(ctx context.Context, input ordersvc.ListOrdersInput) (*ordersvc.OrderList, error) {
	return &ordersvc.OrderList{}, nil
}

func (stubOrdersService) UpdateStatus(ctx context.Context, input ordersvc.UpdateStatusInput) (*models.Order, error) {
	return nil, pkgerrors.New(pkgerrors.CodeInternal, "not implemented")
}

type stubPaymentsService struct{}

func (stubPaymentsService) AttachPaymentReference(ctx context.Context, input paymentsvc.AttachInput) (*models.Order, error) {
	return nil, pkgerrors.New(pkgerrors.CodeInternal, "not implemented")
}

func (stubPaymentsService) ConfirmPayment(ctx context.Context, input paymentsvc.ConfirmInput) (*models.Order, error) {
	return nil, pkgerrors.New(pkgerrors.CodeInternal, "not implemented")
}

type stubCancellationService struct{}

func (stubCancellationService) Cancel(ctx context.Context, params cancellation.CancelParams) (*cancellation.CancelResult, error) {
	return nil, pkgerrors.New(pkgerrors.CodeInternal, "not implemented")
}

type stubInventoryService struct{}

func (stubInventoryService) Decrement(ctx context.Context, tx *gorm.DB, input inventory.MovementInput) (*inventory.MovementResult, error) {
	return nil, pkgerrors.New(pkgerrors.CodeInternal, "not implemented")
}

func (stubInventoryService) Increment(ctx context.Context, tx *gorm.DB, input inventory.MovementInput) (*inventory.MovementResult, error) {
	return nil, pkgerrors.New(pkgerrors.CodeInternal, "not implemented")
}

func (stubInventoryService) ManualAdjust(ctx context.Context, input inventory.ManualAdjustInput) (*inventory.MovementResult, error) {
	return nil, pkgerrors.New(pkgerrors.CodeInternal, "not implemented")
}

func (stubInventoryService) ListTransactions(ctx context.Context, params inventory.LedgerListParams) (*inventory.LedgerPage, error) {
	return &inventory.LedgerPage{}, nil
}

func (stubInventoryService) Replay(ctx context.Context, productID uuid.UUID) (*inventory.ReplayResult, error) {
	return nil, pkgerrors.New(pkgerrors.CodeInternal, "not implemented")
}

type stubActivityService struct{}

func (stubActivityService) Record(ctx context.Context, entry activitysvc.Entry) {}

func (stubActivityService) History(ctx context.Context, subjectType string, subjectID uuid.UUID, limit int) ([]models.ActivityRecord, error) {
	return nil, nil
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "test", Port: "0"},
		JWT: config.JWTConfig{
			Secret:            "secret",
			Issuer:            "castlemart",
			ExpirationMinutes: 60,
		},
	}
}

func newTestRouter(cfg *config.Config) http.Handler {
	logg := logger.New(logger.Options{ServiceName: "test-routing", Level: logger.ParseLevel("debug"), Output: io.Discard})
	return NewRouter(
		cfg,
		logg,
		stubPinger{},
		stubPinger{},
		newMemIdempotencyStore(),
		stubProductsService{},
		stubCartService{},
		stubCheckoutService{},
		stubOrdersService{},
		stubPaymentsService{},
		stubCancellationService{},
		stubInventoryService{},
		stubActivityService{},
		nil, // square client, webhook route is not exercised here
		nil,
		nil,
	)
}

func buildToken(t *testing.T, cfg *config.Config, role enums.ActorRole) string {
	t.Helper()
	return buildTokenWithUserID(t, cfg, role, uuid.New())
}

func buildTokenWithUserID(t *testing.T, cfg *config.Config, role enums.ActorRole, userID uuid.UUID) string {
	t.Helper()
	token, err := pkgauth.MintAccessToken(cfg.JWT, time.Now(), pkgauth.AccessTokenPayload{
		UserID: userID,
		Role:   role,
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

func TestPublicRoutesNeedNoToken(t *testing.T) {
	router := newTestRouter(testConfig())

	for _, path := range []string{"/healthz", "/healthz/ready", "/metrics", "/api/v1/ping", "/api/v1/products"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, req)
		if resp.Code != http.StatusOK {
			t.Fatalf("expected 200 for %s got %d", path, resp.Code)
		}
	}
}

func TestAuthedGroupRejectsMissingJWT(t *testing.T) {
	router := newTestRouter(testConfig())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token got %d", resp.Code)
	}
}

func TestAuthedGroupAcceptsValidJWT(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)
	req.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.ActorRoleCustomer))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 with token got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestOrderDetailRouteBindsOrderID(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg)

	orderID := uuid.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders/"+orderID.String(), nil)
	req.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.ActorRoleCustomer))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestAdminGroupRequiresAdminRole(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg)

	nonAdmin := httptest.NewRequest(http.MethodGet, "/api/v1/admin/ping", nil)
	nonAdmin.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.ActorRoleCustomer))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, nonAdmin)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-admin got %d", resp.Code)
	}

	admin := httptest.NewRequest(http.MethodGet, "/api/v1/admin/ping", nil)
	admin.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.ActorRoleAdmin))
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, admin)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin got %d", resp.Code)
	}
}

func TestCheckoutRequiresIdempotencyKey(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", nil)
	req.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.ActorRoleCustomer))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without Idempotency-Key got %d: %s", resp.Code, resp.Body.String())
	}
}
