package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/castlemart/castlemart-backend/api/routes"
	"github.com/castlemart/castlemart-backend/internal/activity"
	"github.com/castlemart/castlemart-backend/internal/address"
	"github.com/castlemart/castlemart-backend/internal/cancellation"
	"github.com/castlemart/castlemart-backend/internal/cart"
	"github.com/castlemart/castlemart-backend/internal/checkout"
	"github.com/castlemart/castlemart-backend/internal/inventory"
	"github.com/castlemart/castlemart-backend/internal/orders"
	"github.com/castlemart/castlemart-backend/internal/payments"
	"github.com/castlemart/castlemart-backend/internal/products"
	squarewebhook "github.com/castlemart/castlemart-backend/internal/webhooks/square"
	"github.com/castlemart/castlemart-backend/pkg/config"
	"github.com/castlemart/castlemart-backend/pkg/db"
	"github.com/castlemart/castlemart-backend/pkg/instance"
	"github.com/castlemart/castlemart-backend/pkg/logger"
	"github.com/castlemart/castlemart-backend/pkg/metrics"
	"github.com/castlemart/castlemart-backend/pkg/migrate"
	"github.com/castlemart/castlemart-backend/pkg/outbox"
	"github.com/castlemart/castlemart-backend/pkg/redis"
	"github.com/castlemart/castlemart-backend/pkg/square"
)

const webhookGuardScope = "square-webhook"

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	squareClient, err := square.NewClient(context.Background(), cfg.Square, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap square client", err)
		os.Exit(1)
	}

	gdb := dbClient.DB()
	cartRepo := cart.NewRepository(gdb)
	ordersRepo := orders.NewRepository(gdb)
	inventoryRepo := inventory.NewRepository(gdb)
	productsRepo := products.NewRepository(gdb)
	addressRepo := address.NewRepository(gdb)
	activityRepo := activity.NewRepository(gdb)
	outboxRepo := outbox.NewRepository(gdb)

	outboxService := outbox.NewService(outboxRepo, logg)
	flow := metrics.NewOrderFlowMetrics(prometheus.DefaultRegisterer)

	activityService, err := activity.NewService(activityRepo, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create activity service", err)
		os.Exit(1)
	}

	addressService, err := address.NewService(addressRepo, dbClient)
	if err != nil {
		logg.Error(context.Background(), "failed to create address service", err)
		os.Exit(1)
	}

	inventoryService, err := inventory.NewService(inventoryRepo, dbClient, outboxService, logg, flow)
	if err != nil {
		logg.Error(context.Background(), "failed to create inventory service", err)
		os.Exit(1)
	}

	cartService, err := cart.NewService(cartRepo, dbClient, productsRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create cart service", err)
		os.Exit(1)
	}

	productsService, err := products.NewService(productsRepo, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create products service", err)
		os.Exit(1)
	}

	checkoutService, err := checkout.NewService(
		dbClient,
		cartRepo,
		ordersRepo,
		productsRepo,
		inventoryService,
		addressService,
		outboxService,
		activityService,
		cfg.Pricing,
		logg,
		flow,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create checkout service", err)
		os.Exit(1)
	}

	ordersService, err := orders.NewService(ordersRepo, dbClient, outboxService, flow)
	if err != nil {
		logg.Error(context.Background(), "failed to create orders service", err)
		os.Exit(1)
	}

	gateway, err := payments.NewSquareGateway(squareClient)
	if err != nil {
		logg.Error(context.Background(), "failed to create payment gateway", err)
		os.Exit(1)
	}

	paymentsService, err := payments.NewService(
		ordersRepo,
		dbClient,
		gateway,
		outboxService,
		activityService,
		cfg.Square.Timeout,
		logg,
		flow,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create payments service", err)
		os.Exit(1)
	}

	cancellationService, err := cancellation.NewService(
		ordersRepo,
		dbClient,
		inventoryService,
		gateway,
		outboxService,
		activityService,
		cfg.Square.Timeout,
		logg,
		flow,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create cancellation service", err)
		os.Exit(1)
	}

	webhookService, err := squarewebhook.NewService(squarewebhook.ServiceParams{
		Orders:   ordersRepo,
		Payments: paymentsService,
		Logger:   logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create square webhook service", err)
		os.Exit(1)
	}

	webhookGuard, err := squarewebhook.NewIdempotencyGuard(redisClient, cfg.Eventing.ConsumerIdempotencyTTL, webhookGuardScope)
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook idempotency guard", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": instance.GetID(),
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			redisClient,
			productsService,
			cartService,
			checkoutService,
			ordersService,
			paymentsService,
			cancellationService,
			inventoryService,
			activityService,
			squareClient,
			webhookService,
			webhookGuard,
		),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
