package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tickethub/config"
	"tickethub/internal/handlers"
	"tickethub/internal/services"
	"tickethub/internal/services/gateway"
	"tickethub/internal/status"
	"tickethub/monitoring"
	"tickethub/security"
	"tickethub/utils"

	_ "tickethub/migrations"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/plugins/migratecmd"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	pubnub "github.com/pubnub/go"
)

func main() {
	app := pocketbase.New()

	cfg := config.LoadConfig()

	redisClient, err := utils.NewRedisClient(cfg.RedisURL, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	defer redisClient.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Outbound sale lifecycle events (email/SMS dispatchers subscribe on
	// the other side).
	var notifier services.Notifier = services.NopNotifier{}
	if cfg.PubNubPublishKey != "" {
		pnConfig := pubnub.NewConfig()
		pnConfig.PublishKey = cfg.PubNubPublishKey
		pnConfig.SubscribeKey = cfg.PubNubSubscribeKey
		pnConfig.SecretKey = cfg.PubNubSecretKey
		notifier = services.NewPubNubNotifier(pubnub.NewPubNub(pnConfig), "sale-events")
	}

	// Payment gateways
	registry := gateway.NewRegistry(gateway.NewFactory())
	if cfg.StripePay.BaseURL != "" {
		if err := registry.Register(ctx, gateway.ProviderStripePay, &cfg.StripePay, "card"); err != nil {
			log.Fatalf("failed to register stripepay gateway: %v", err)
		}
	}
	if cfg.PSEBank.BaseURL != "" {
		if err := registry.Register(ctx, gateway.ProviderPSEBank, &cfg.PSEBank, "pse", "bank_debit"); err != nil {
			log.Fatalf("failed to register psebank gateway: %v", err)
		}
	}
	defer registry.Close(context.Background())

	// Services
	reservationService := services.NewReservationService(app)
	ticketService := services.NewTicketService(app, cfg.TicketSigningKey)
	saleService := services.NewSaleService(app, reservationService, ticketService, notifier, cfg.AdminKeyHash)
	seatHoldService := services.NewSeatHoldService(redisClient, cfg.SeatHoldTTL)
	paymentService := services.NewPaymentService(app, redisClient, saleService, registry)

	// Handlers
	saleHandler := handlers.NewSaleHandler(app, saleService, paymentService, seatHoldService)
	seatHandler := handlers.NewSeatHandler(app, reservationService, seatHoldService)
	ticketHandler := handlers.NewTicketHandler(app, ticketService)
	adminHandler := handlers.NewAdminHandler(app, saleService, cfg.AdminKeyHash, func() (int, error) {
		return saleService.ExpirePendingSales(cfg.PendingSaleTTL)
	})

	migratecmd.MustRegister(app, app.RootCmd, migratecmd.Config{
		Automigrate: cfg.Environment == "development",
	})

	// Background workers
	go saleService.RunPendingSweep(ctx, cfg.SweepInterval, cfg.PendingSaleTTL)

	// Asynchronous provider confirmations pushed over PubNub share the
	// webhook reconciler.
	if gw, err := registry.Get(gateway.ProviderPSEBank); err == nil {
		tranCh := make(chan *status.Transaction, 64)
		gw.SetTransactionChannel(tranCh)
		go paymentService.ProcessTransactions(ctx, gateway.ProviderPSEBank, tranCh)
	}

	// Standalone webhook listener for provider HTTP notifications.
	limiter := security.NewRateLimiter(redisClient, 120, time.Minute)
	webhookHandler := handlers.NewWebhookHandler(paymentService, limiter)
	go func() {
		router := webhookHandler.Router()
		slog.Info("webhook listener starting", "addr", cfg.WebhookAddr)
		if err := http.ListenAndServe(cfg.WebhookAddr, router); err != nil && err != http.ErrServerClosed {
			log.Fatalf("webhook listener failed: %v", err)
		}
	}()

	if cfg.EnableMetrics {
		monitoring.NewMonitor(app)
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			slog.Info("metrics server starting", "port", cfg.MetricsPort)
			if err := http.ListenAndServe(":"+cfg.MetricsPort, mux); err != nil && err != http.ErrServerClosed {
				slog.Error("metrics server failed", "error", err)
			}
		}()
	}

	go handleShutdown(cancel)

	app.OnServe().BindFunc(func(e *core.ServeEvent) error {
		// Availability + seats
		e.Router.GET("/api/events/{eventId}/ticket-types/{ticketTypeId}/availability", seatHandler.CheckAvailability)
		e.Router.GET("/api/events/{eventId}/seats", seatHandler.GetSeats)
		e.Router.POST("/api/seats/hold", seatHandler.HoldSeats)
		e.Router.POST("/api/seats/release", seatHandler.ReleaseSeats)

		// Sales
		e.Router.POST("/api/checkout", saleHandler.Checkout)
		e.Router.GET("/api/sales/{saleId}", saleHandler.GetSale)
		e.Router.POST("/api/sales/{saleId}/cancel", saleHandler.CancelSale)

		// Tickets
		e.Router.GET("/api/tickets/{ticketId}/qr", ticketHandler.RefreshQR)
		e.Router.POST("/api/tickets/check-in", ticketHandler.CheckIn)

		// Admin
		e.Router.GET("/api/admin/pending-sales", adminHandler.PendingSales)
		e.Router.POST("/api/admin/force-sweep", adminHandler.ForceSweep)

		// Health check
		e.Router.GET("/health", func(e *core.RequestEvent) error {
			if err := utils.RedisHealthCheck(redisClient); err != nil {
				return e.JSON(http.StatusServiceUnavailable, map[string]string{
					"status": "unhealthy",
					"error":  err.Error(),
				})
			}
			return e.JSON(http.StatusOK, map[string]string{"status": "healthy"})
		})

		log.Println("Server routes registered")

		return e.Next()
	})

	if err := app.Start(); err != nil {
		log.Fatal(err)
	}
}

func handleShutdown(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	slog.Info("shutting down background workers")
	cancel()
}
