package cmd

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/plugins/migratecmd"
	pubnub "github.com/pubnub/go"
	"github.com/redis/go-redis/v9"

	"planora/config"
	"planora/handlers"
	"planora/internal/services/gateway"
	"planora/monitoring"
	"planora/security"
	"planora/services"
	"planora/utils"

	_ "planora/migrations"
)

func Start() error {
	app := pocketbase.New()

	// Load configuration
	cfg := config.LoadConfig()

	// Initialize Redis
	redisClient := utils.NewRedisClient(cfg.RedisURL)
	defer redisClient.Close()

	// Initialize PubNub
	pnConfig := pubnub.NewConfig()
	pnConfig.PublishKey = cfg.PubNubPublishKey
	pnConfig.SubscribeKey = cfg.PubNubSubscribeKey
	pnConfig.SecretKey = cfg.PubNubSecretKey

	pn := pubnub.NewPubNub(pnConfig)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Payment gateways
	registry := gateway.NewRegistry(gateway.NewFactory())
	if err := registry.Register(ctx, gateway.ProviderESewa, &cfg.ESewaConfig); err != nil {
		return err
	}
	if cfg.KhaltiConfig.SecretKey != "" {
		if err := registry.Register(ctx, gateway.ProviderKhalti, &cfg.KhaltiConfig); err != nil {
			slog.Warn("khalti gateway not registered", "error", err)
		}
	}
	if err := registry.SetPrimary(gateway.Provider(cfg.PrimaryGateway)); err != nil {
		slog.Warn("primary gateway fallback", "requested", cfg.PrimaryGateway, "error", err)
	}
	defer registry.Close(ctx)

	monitor := monitoring.NewMonitor(redisClient, cfg.MetricsInterval)
	defer monitor.Stop()

	// Initialize services
	eventService := services.NewEventService(app, redisClient)
	ticketService := services.NewTicketService(app, redisClient)
	notificationService := services.NewNotificationService(pn)
	paymentService := services.NewPaymentService(
		app, redisClient, registry,
		eventService, ticketService, notificationService, monitor,
		cfg.PaymentTimeout, cfg.SweepInterval, cfg.DefaultCurrency,
	)
	feedbackService := services.NewFeedbackService(app)
	recommendService := services.NewRecommendService(
		cfg.CFBaseURL, cfg.CFRequestTimeout, redisClient,
		utils.NewTokenSource(cfg.CFTokenKey, "planora-api", cfg.CFTokenTTL),
		monitor, cfg.CFCacheTTL,
	)

	// Initialize handlers
	eventHandler := handlers.NewEventHandler(app, eventService, recommendService, notificationService)
	registrationHandler := handlers.NewRegistrationHandler(app, eventService, paymentService, ticketService, notificationService, monitor)
	paymentHandler := handlers.NewPaymentHandler(app, paymentService, cfg.Environment)
	ticketHandler := handlers.NewTicketHandler(app, ticketService)
	feedbackHandler := handlers.NewFeedbackHandler(app, feedbackService)
	recommendHandler := handlers.NewRecommendHandler(app, recommendService)
	profileHandler := handlers.NewProfileHandler(app)
	adminHandler := handlers.NewAdminHandler(app, eventService, paymentService, redisClient)

	rateLimiter := security.NewRateLimiter(redisClient, cfg.RateLimitWindow, cfg.RateLimitRequests)

	// Enable migrations
	migratecmd.MustRegister(app, app.RootCmd, migratecmd.Config{
		Automigrate: cfg.Environment == "development",
	})

	// Expiry sweeper and async gateway confirmations
	paymentService.Start()
	defer paymentService.Stop()

	// Setup graceful shutdown
	go handleShutdown(cancel)

	app.OnServe().BindFunc(func(e *core.ServeEvent) error {
		// Catalog
		e.Router.GET("/api/v1/events", eventHandler.ListEvents)
		e.Router.GET("/api/v1/events/search", eventHandler.SearchEvents)
		e.Router.GET("/api/v1/events/recommended", eventHandler.RecommendedEvents)
		e.Router.GET("/api/v1/events/mine", eventHandler.MyEvents)
		e.Router.GET("/api/v1/events/{eventId}", eventHandler.GetEvent)
		e.Router.POST("/api/v1/events", eventHandler.CreateEvent)
		e.Router.PATCH("/api/v1/events/{eventId}", eventHandler.UpdateEvent)
		e.Router.DELETE("/api/v1/events/{eventId}", eventHandler.DeleteEvent)

		// Registration
		e.Router.POST("/api/v1/events/{eventId}/register", registrationHandler.Register).
			BindFunc(rateLimiter.Middleware())
		e.Router.GET("/api/v1/registrations", registrationHandler.MyRegistrations)

		// Payments
		e.Router.POST("/api/v1/payments/{transactionUuid}/initiate", paymentHandler.InitiatePayment).
			BindFunc(rateLimiter.Middleware())
		e.Router.GET("/api/v1/payments/esewa/callback", paymentHandler.ESewaCallback)
		e.Router.GET("/api/v1/payments/{transactionUuid}/status", paymentHandler.PaymentStatus)
		e.Router.POST("/api/v1/payments/{transactionUuid}/cancel", paymentHandler.CancelPayment)

		// Tickets
		e.Router.GET("/api/v1/tickets", ticketHandler.ListTickets)
		e.Router.GET("/api/v1/tickets/{ticketId}", ticketHandler.GetTicket)
		e.Router.POST("/api/v1/tickets/{ticketId}/cancel", ticketHandler.CancelTicket)
		e.Router.POST("/api/v1/tickets/{ticketId}/use", ticketHandler.MarkTicketUsed)

		// Feedback
		e.Router.GET("/api/v1/events/{eventId}/feedback", feedbackHandler.ListFeedback)
		e.Router.POST("/api/v1/events/{eventId}/feedback", feedbackHandler.CreateFeedback)

		// Recommendations (CF proxy)
		e.Router.GET("/api/v1/cf/recommendations", recommendHandler.Recommendations)
		e.Router.POST("/api/v1/cf/interactions", recommendHandler.TrackInteraction)
		e.Router.GET("/api/v1/cf/predict/{eventId}", recommendHandler.PredictAttendance)
		e.Router.GET("/api/v1/cf/models/compare", recommendHandler.CompareModels)

		// Profile
		e.Router.GET("/api/v1/profile", profileHandler.Me)
		e.Router.POST("/api/v1/profile/switch-role", profileHandler.SwitchRole)
		e.Router.PUT("/api/v1/profile/interests", profileHandler.UpdateInterests)

		// Admin endpoints
		e.Router.GET("/api/v1/admin/dashboard", adminHandler.GetDashboard)
		e.Router.GET("/api/v1/admin/payment-sessions", adminHandler.GetPaymentSessions)

		// Test endpoint for payment simulation
		if cfg.Environment == "development" {
			e.Router.POST("/api/v1/test/payments/{transactionUuid}/simulate", paymentHandler.SimulatePayment)
		}

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

		setupEventHooks(app, redisClient)

		return e.Next()
	})

	// Start server
	if err := app.Start(); err != nil {
		log.Fatal(err)
	}
	return nil
}

// setupEventHooks keeps the Redis registration sets aligned with event
// lifecycle changes made through the record API.
func setupEventHooks(app *pocketbase.PocketBase, redisClient *redis.Client) {
	app.OnRecordDeleteRequest("events").BindFunc(func(e *core.RecordRequestEvent) error {
		ctx := e.Request.Context()
		eventID := e.Record.Id

		if err := redisClient.Del(ctx, "event:registrants:"+eventID).Err(); err != nil {
			slog.Error("failed to drop registrant set for deleted event",
				"eventID", eventID, "error", err)
		}
		return e.Next()
	})

	app.OnRecordUpdateRequest("events").BindFunc(func(e *core.RecordRequestEvent) error {
		ctx := e.Request.Context()
		eventID := e.Record.Id
		newStatus := e.Record.GetString("status")

		if newStatus == "cancelled" {
			if err := redisClient.Del(ctx, "event:registrants:"+eventID).Err(); err != nil {
				slog.Error("failed to drop registrant set for cancelled event",
					"eventID", eventID, "error", err)
			}
		}
		return e.Next()
	})
}

// handleShutdown handles graceful shutdown
func handleShutdown(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	log.Println("Shutdown signal received, cleaning up...")
	cancel()
}
