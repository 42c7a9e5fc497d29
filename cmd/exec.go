package cmd

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/plugins/migratecmd"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	pubnub "github.com/pubnub/go"

	"ticket-shop/config"
	"ticket-shop/internal/gateway"
	"ticket-shop/internal/handlers"
	"ticket-shop/internal/orders"
	"ticket-shop/internal/services"
	"ticket-shop/internal/status"
	"ticket-shop/internal/store"
	"ticket-shop/monitoring"
	"ticket-shop/security"
	"ticket-shop/utils"

	_ "ticket-shop/migrations"
)

func Start() error {
	app := pocketbase.New()

	// Load configuration
	cfg := config.LoadConfig()

	// Initialize Redis
	redisClient, err := utils.NewRedisClient(cfg.RedisURL)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	// Initialize PubNub for buyer notifications
	pnConfig := pubnub.NewConfig()
	pnConfig.PublishKey = cfg.PubNubPublishKey
	pnConfig.SubscribeKey = cfg.PubNubSubscribeKey
	pnConfig.SecretKey = cfg.PubNubSecretKey

	pn := pubnub.NewPubNub(pnConfig)
	notifier := services.NewNotifier(pn)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize payment gateway
	provider, err := gateway.New(ctx, &cfg.Gateway)
	if err != nil {
		return err
	}
	defer provider.Close(ctx)

	// Initialize services
	sqlStore := store.New(app)
	orderService := orders.NewService(sqlStore, cfg.IdempotencyTTL)
	reconciler := orders.NewReconciler(sqlStore, provider.Name(), notifier)
	checkoutService := services.NewCheckoutService(redisClient, provider, orderService, cfg.CheckoutTTL, cfg.BaseURL)

	// Initialize handlers
	orderHandler := handlers.NewOrderHandler(app, orderService, checkoutService, notifier, reconciler)
	webhookHandler := handlers.NewWebhookHandler(provider, reconciler, checkoutService)

	rateLimiter := security.NewRateLimiter(redisClient)

	// The provider pushes settled transactions over its stream as well
	// as the webhook. Both paths converge on the reconciler, which makes
	// replays harmless.
	txChannel := make(chan *status.Transaction, 1)
	provider.SetTransactionChannel(txChannel)
	go func() {
		for {
			select {
			case t := <-txChannel:
				slog.Info("provider stream transaction",
					"order_id", t.UUID, "provider_ref", t.RefID, "status", t.Status)
				if !t.Final() {
					continue
				}
				if _, err := reconciler.Reconcile(ctx, t.UUID, t.RefID); err != nil {
					slog.Error("stream reconciliation failed",
						"order_id", t.UUID, "provider_ref", t.RefID, "error", err)
				}

			case <-ctx.Done():
				return
			}
		}
	}()

	// Enable migrations
	migratecmd.MustRegister(app, app.RootCmd, migratecmd.Config{
		Automigrate: true,
	})

	// Start metrics collection and exporter
	if cfg.EnableMetrics {
		monitoring.NewMonitor(redisClient)
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(":"+cfg.MetricsPort, mux); err != nil {
				slog.Error("metrics server stopped", "error", err)
			}
		}()
	}

	// Setup graceful shutdown
	go handleShutdown(cancel)

	app.OnServe().BindFunc(func(e *core.ServeEvent) error {
		e.Router.BindFunc(rateLimiter.AntiBotMiddleware())

		// Order endpoints
		e.Router.POST("/api/v1/events/{eventId}/orders", orderHandler.CreateOrder).
			BindFunc(rateLimiter.OrderRateLimit(cfg.CreateOrderRate))
		e.Router.GET("/api/v1/orders", orderHandler.ListOrders)
		e.Router.GET("/api/v1/orders/{orderId}", orderHandler.GetOrder)
		e.Router.POST("/api/v1/orders/{orderId}/cancel", orderHandler.CancelOrder)
		e.Router.POST("/api/v1/orders/{orderId}/checkout", orderHandler.Checkout)
		e.Router.GET("/api/v1/orders/{orderId}/checkout", orderHandler.GetCheckoutSession)

		// Catalog endpoints
		e.Router.GET("/api/v1/events/{eventId}/ticket-types", orderHandler.ListTicketTypes)

		// Payment provider webhook
		e.Router.POST("/api/v1/payments/webhook", webhookHandler.ConfirmationPayment)

		// Health check
		e.Router.GET("/health", func(e *core.RequestEvent) error {
			if err := utils.RedisHealthCheck(redisClient); err != nil {
				return e.JSON(503, map[string]string{
					"status": "unhealthy",
					"error":  err.Error(),
				})
			}
			return e.JSON(200, map[string]string{"status": "healthy"})
		})

		log.Println("Server routes registered")

		return e.Next()
	})

	// Start server
	if err := app.Start(); err != nil {
		log.Fatal(err)
	}
	return nil
}

// handleShutdown handles graceful shutdown
func handleShutdown(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	log.Println("Shutdown signal received, cleaning up...")
	cancel()
}
