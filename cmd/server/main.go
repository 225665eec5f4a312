package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/ticket-bot/internal/config"
	"github.com/smarttransit/ticket-bot/internal/database"
	"github.com/smarttransit/ticket-bot/internal/handlers"
	"github.com/smarttransit/ticket-bot/internal/messaging"
	"github.com/smarttransit/ticket-bot/internal/middleware"
	"github.com/smarttransit/ticket-bot/internal/services"
	"github.com/smarttransit/ticket-bot/pkg/cryptopay"
	"github.com/smarttransit/ticket-bot/pkg/jwt"
	"github.com/smarttransit/ticket-bot/pkg/telegram"
	"golang.org/x/sync/errgroup"
)

var (
	version   = "1.0.0"
	buildTime = "unknown"
)

const sweepJobID = "expiration_sweep"

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	logger.Info("Starting ticket booking bot")
	logger.Infof("Version: %s, Build Time: %s", version, buildTime)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	// Set log level
	logLevel, err := logrus.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		logger.Warn("Invalid log level, using INFO")
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	// Set Gin mode
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize database connection
	logger.Info("Connecting to database...")
	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	if err := database.EnsureSchema(ctx, db.DB); err != nil {
		logger.Fatalf("Failed to prepare schema: %v", err)
	}
	logger.Info("Database connection established")

	// Optional Redis: shared broker and sessions across replicas
	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatalf("Failed to connect to redis: %v", err)
		}
		defer redisClient.Close()
		logger.WithField("addr", cfg.Redis.Addr).Info("Redis connection established")
	} else {
		logger.Info("REDIS_ADDR not set, using in-process broker and sessions")
	}

	// Broker
	wmLogger := watermill.NewStdLogger(logLevel >= logrus.DebugLevel, false)
	pub, sub, err := messaging.NewPubSub(redisClient, wmLogger)
	if err != nil {
		logger.Fatalf("Failed to create broker: %v", err)
	}
	publisher := messaging.NewPublisher(pub)
	defer publisher.Close()

	// Repositories
	bookingRepository := database.NewBookingRepository(db.DB)
	routeRepository := database.NewRouteRepository(db.DB)
	userRepository := database.NewUserRepository(db.DB)
	paymentRepository := database.NewPaymentRepository(db.DB)
	auditRepository := database.NewPaymentAuditRepository(db.DB, logger)
	offerRepository := database.NewOfferRepository(db.DB)
	passRepository := database.NewPassRepository(db.DB)

	// External APIs
	telegramClient := telegram.NewClient(telegram.Config{
		APIURL: cfg.Telegram.APIURL,
		Token:  cfg.Telegram.BotToken,
	})
	cryptoPayClient := cryptopay.NewClient(cryptopay.Config{
		Token:   cfg.CryptoPay.Token,
		Network: cfg.CryptoPay.Network,
	})
	logger.WithField("network", cfg.CryptoPay.Network).Info("Crypto Pay client initialized")

	// Services
	logger.Info("Initializing services...")
	var sessions services.SessionStore
	if redisClient != nil {
		sessions = services.NewRedisSessionStore(redisClient, cfg.Booking.SessionTTL)
	} else {
		sessions = services.NewMemorySessionStore(cfg.Booking.SessionTTL, time.Now)
	}

	cronService := services.NewCronService(logger)
	messenger := services.NewTelegramMessenger(telegramClient)
	invoices := services.NewCryptoPayInvoices(cryptoPayClient, cfg.CryptoPay.Asset, cfg.Booking.InvoiceTimeout, logger)
	notifier := services.NewNotificationService(messenger, publisher, userRepository, cfg.Telegram.AdminIDs, logger)
	auditService := services.NewAuditService(auditRepository, logger)
	fareService := services.NewFareService(routeRepository)

	offerService := services.NewOfferService(offerRepository, passRepository, notifier, time.Now, logger)
	followUpService := services.NewFollowUpService(notifier, cronService, services.DefaultFollowUps, logger)

	conversationService := services.NewConversationService(
		sessions, fareService, bookingRepository, userRepository, offerService, notifier, publisher, logger,
	)
	reconciliationService := services.NewReconciliationService(
		bookingRepository, invoices, notifier, cronService, auditService,
		services.ReconciliationConfig{
			PollInterval:   cfg.Booking.InvoicePollInterval,
			InvoiceTimeout: cfg.Booking.InvoiceTimeout,
			UnpaidExpiry:   cfg.Booking.UnpaidExpiry,
		},
		time.Now, logger,
	)
	paymentService := services.NewPaymentService(
		bookingRepository, invoices, notifier, publisher, auditService, cfg.CryptoPay.Asset, logger,
	)
	adminService := services.NewAdminService(
		bookingRepository, routeRepository, paymentRepository, invoices, notifier,
		reconciliationService, auditService, cfg.Telegram.IsAdmin, logger,
	)
	jwtService := jwt.NewService(cfg.JWT.Secret, cfg.JWT.TokenExpiry)

	// Background topics
	messageRouter, err := messaging.NewRouter(messaging.RouterDeps{
		Subscriber:  sub,
		Logger:      wmLogger,
		AppLogger:   logger,
		Admins:      notifier,
		Invoices:    reconciliationService,
		Expirations: reconciliationService,
		FollowUps:   followUpService,
	})
	if err != nil {
		logger.Fatalf("Failed to create message router: %v", err)
	}

	// Scheduler: global sweep plus the per-booking timers lost on restart
	if err := cronService.AddSchedule(sweepJobID, cfg.Booking.SweepSchedule, func(ctx context.Context) {
		reconciliationService.SweepExpired(ctx)
	}); err != nil {
		logger.Fatalf("Failed to schedule expiration sweep: %v", err)
	}
	cronService.Start()
	if err := reconciliationService.Resume(ctx); err != nil {
		logger.WithError(err).Error("Failed to resume reconciliation timers")
	}

	// Handlers
	botHandler := handlers.NewBotHandler(
		conversationService, paymentService, adminService, offerService, messenger, telegramClient,
		cfg.Telegram.WebhookSecret, cfg.Telegram.Supports, logger,
	)
	adminHandler := handlers.NewAdminHandler(adminService, cronService, logger)

	// Initialize Gin router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(logger))

	// CORS configuration
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/health", healthCheckHandler(db))
	router.POST("/webhook", botHandler.Webhook)

	v1 := router.Group("/api/v1")
	admin := v1.Group("/admin")
	admin.Use(middleware.AdminAuth(jwtService, cfg.Telegram.IsAdmin, logger))
	adminHandler.RegisterRoutes(admin)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return messageRouter.Run(gctx)
	})

	g.Go(func() error {
		select {
		case <-messageRouter.Running():
		case <-gctx.Done():
			return nil
		}
		if cfg.Telegram.WebhookURL == "" {
			logger.Warn("WEBHOOK_URL not set, skipping webhook registration")
			return nil
		}
		err := telegramClient.SetWebhook(gctx, telegram.SetWebhookRequest{
			URL:            cfg.Telegram.WebhookURL,
			SecretToken:    cfg.Telegram.WebhookSecret,
			AllowedUpdates: []string{"message", "callback_query"},
		})
		if err != nil {
			logger.WithError(err).Error("Failed to register webhook")
			return nil
		}
		logger.WithField("url", cfg.Telegram.WebhookURL).Info("Webhook registered")
		return nil
	})

	g.Go(func() error {
		logger.Infof("Server starting on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server...")

		cronService.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Errorf("Server forced to shutdown: %v", err)
		}
		return messageRouter.Close()
	})

	if err := g.Wait(); err != nil {
		logger.Errorf("Server stopped with error: %v", err)
	}
	logger.Info("Server exited successfully")
}

// healthCheckHandler returns a health check endpoint
func healthCheckHandler(db database.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := db.PingContext(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"database": "unhealthy",
				"error":    err.Error(),
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"database":  "healthy",
			"version":   version,
			"timestamp": time.Now().Unix(),
		})
	}
}
