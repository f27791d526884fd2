package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/castlemart/castlemart-backend/api/controllers"
	webhookcontrollers "github.com/castlemart/castlemart-backend/api/controllers/webhooks"
	"github.com/castlemart/castlemart-backend/api/middleware"
	"github.com/castlemart/castlemart-backend/internal/activity"
	"github.com/castlemart/castlemart-backend/internal/cancellation"
	"github.com/castlemart/castlemart-backend/internal/cart"
	checkoutsvc "github.com/castlemart/castlemart-backend/internal/checkout"
	"github.com/castlemart/castlemart-backend/internal/inventory"
	"github.com/castlemart/castlemart-backend/internal/orders"
	"github.com/castlemart/castlemart-backend/internal/payments"
	"github.com/castlemart/castlemart-backend/internal/products"
	squarewebhook "github.com/castlemart/castlemart-backend/internal/webhooks/square"
	"github.com/castlemart/castlemart-backend/pkg/config"
	"github.com/castlemart/castlemart-backend/pkg/db"
	"github.com/castlemart/castlemart-backend/pkg/logger"
	"github.com/castlemart/castlemart-backend/pkg/redis"
	"github.com/castlemart/castlemart-backend/pkg/square"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	cache redis.Pinger,
	idemStore redis.IdempotencyStore,
	productsService products.Service,
	cartService cart.Service,
	checkoutService checkoutsvc.Service,
	ordersService orders.Service,
	paymentsService payments.Service,
	cancellationService cancellation.Service,
	inventoryService inventory.Service,
	activityService activity.Service,
	squareClient *square.Client,
	squareWebhookService *squarewebhook.Service,
	squareWebhookGuard *squarewebhook.IdempotencyGuard,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.Recoverer(logg),
		middleware.CORS(),
	)

	r.Get("/healthz", controllers.HealthLive(cfg))
	r.Get("/healthz/ready", controllers.HealthReady(cfg, logg, dbP, cache))
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/ping", controllers.PublicPing())
		r.Get("/products", controllers.ListProducts(productsService, logg))
		r.Get("/products/{productId}", controllers.ProductDetail(productsService, logg))
		r.Post("/webhooks/square", webhookcontrollers.SquareWebhook(squareWebhookService, squareClient, squareWebhookGuard, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, logg))
			r.Use(middleware.Idempotency(idemStore, logg))

			r.Post("/checkout", controllers.Checkout(checkoutService, logg))

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", controllers.CartFetch(cartService, logg))
				r.Put("/", controllers.CartUpdateItem(cartService, logg))
				r.Delete("/", controllers.CartClear(cartService, logg))
				r.Post("/items", controllers.CartAddItem(cartService, logg))
			})

			r.Route("/orders", func(r chi.Router) {
				r.Get("/", controllers.ListOrders(ordersService, logg))
				r.Get("/{orderId}", controllers.OrderDetail(ordersService, logg))
				r.Post("/{orderId}/payment-reference", controllers.AttachPaymentReference(paymentsService, logg))
				r.Post("/{orderId}/confirm-payment", controllers.ConfirmPayment(paymentsService, logg))
				r.Post("/{orderId}/cancel", controllers.CancelOrder(cancellationService, logg))
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(middleware.RequireRole("admin", logg))
				r.Get("/ping", controllers.AdminPing())
				r.Route("/orders", func(r chi.Router) {
					r.Post("/{orderId}/status", controllers.AdminUpdateOrderStatus(ordersService, logg))
					r.Post("/{orderId}/cancel", controllers.AdminCancelOrder(cancellationService, logg))
					r.Get("/{orderId}/activity", controllers.AdminOrderActivity(activityService, logg))
				})
				r.Route("/products", func(r chi.Router) {
					r.Get("/", controllers.AdminListProducts(productsService, logg))
					r.Post("/", controllers.AdminCreateProduct(productsService, logg))
					r.Patch("/{productId}", controllers.AdminUpdateProduct(productsService, logg))
					r.Delete("/{productId}", controllers.AdminDeactivateProduct(productsService, logg))
				})
				r.Route("/inventory", func(r chi.Router) {
					r.Post("/{productId}/adjust", controllers.AdminAdjustInventory(inventoryService, logg))
					r.Get("/{productId}/ledger", controllers.AdminInventoryLedger(inventoryService, logg))
					r.Get("/{productId}/replay", controllers.AdminInventoryReplay(inventoryService, logg))
				})
			})
		})
	})

	return r
}
