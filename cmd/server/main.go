package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ctmsgb/booking-backend/internal/config"
	"github.com/ctmsgb/booking-backend/internal/database"
	"github.com/ctmsgb/booking-backend/internal/events"
	"github.com/ctmsgb/booking-backend/internal/handlers"
	"github.com/ctmsgb/booking-backend/internal/scheduler"
	"github.com/ctmsgb/booking-backend/internal/services"
	"github.com/ctmsgb/booking-backend/internal/storage"
	"github.com/ctmsgb/booking-backend/pkg/jwt"
	"github.com/gin-gonic/gin"
	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

var (
	version   = "1.0.0"
	buildTime = "unknown"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	logger.Info("Starting booking backend")
	logger.Infof("Version: %s, Build Time: %s", version, buildTime)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	logLevel, err := logrus.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		logger.Warn("Invalid log level, using INFO")
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// Database
	logger.Info("Connecting to database...")
	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	logger.WithField("driver", cfg.Database.Driver).Info("Database connection established")

	if cfg.Database.AutoMigrate {
		migrateCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
		err := database.Migrate(migrateCtx, db, logger)
		cancel()
		if err != nil {
			logger.Fatalf("Failed to apply migrations: %v", err)
		}
	}

	// Redis backs the reset store, the sweep lock and delayed expiry jobs
	var (
		redisClient   *redis.Client
		locker        *redsync.Redsync
		holdScheduler services.HoldScheduler = scheduler.Noop{}
		schedClient   *scheduler.Client
	)
	if cfg.Redis.Enabled() {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := redisClient.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			logger.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer redisClient.Close()

		locker = redsync.New(goredis.NewPool(redisClient))
		schedClient = scheduler.NewClient(cfg.Redis, logger)
		defer schedClient.Close()
		holdScheduler = schedClient
		logger.Info("Redis connected, delayed hold expiry enabled")
	} else {
		logger.Warn("REDIS_ADDR not set: holds expire by cron sweep only, password reset disabled")
	}

	// Events
	bus, err := events.NewBus(cfg.Events, logger)
	if err != nil {
		logger.Fatalf("Failed to create event publisher: %v", err)
	}
	defer bus.Close()

	// Payment proof storage
	proofStore, err := storage.NewStore(cfg.Storage)
	if err != nil {
		logger.Fatalf("Failed to initialize proof storage: %v", err)
	}

	// Services
	logger.Info("Initializing services...")
	jwtService := jwt.NewService(cfg.JWT.Secret, cfg.JWT.AccessTokenExpiry)
	repos := services.NewRepositories(db, logger)

	syncService := services.NewStatusSyncService(repos, bus, logger)
	reservationService := services.NewReservationService(
		repos,
		cfg.Booking,
		storage.NewProofProcessor(cfg.Storage.MaxDimension),
		proofStore,
		holdScheduler,
		bus,
		logger,
	)
	availabilityService := services.NewAvailabilityService(repos)
	queryService := services.NewBookingQueryService(repos)
	expiryService := services.NewHoldExpiryService(syncService, repos, cfg.Booking.SweepBatchSize, logger)
	webhookService := services.NewPaymentWebhookService(
		syncService,
		repos,
		services.NewSignatureVerifier(cfg.Stripe.WebhookSecret, cfg.Stripe.WebhookTolerance),
		logger,
	)

	var checkoutProvider services.CheckoutProvider
	if cfg.Stripe.CheckoutEnabled() {
		checkoutProvider = services.NewStripeClient(cfg.Stripe)
	} else {
		logger.Warn("STRIPE_SECRET_KEY not set: card checkout disabled")
	}
	checkoutService := services.NewCheckoutService(repos, checkoutProvider, logger)

	var resetStore *services.PasswordResetStore
	if redisClient != nil {
		resetStore = services.NewPasswordResetStore(services.NewRedisKV(redisClient), cfg.PasswordReset, logger)
	}

	// Background expiry: cron sweep everywhere, asynq worker when Redis is present
	cronService := services.NewCronService(cfg.Booking.SweepCron, expiryService, locker, logger)
	if err := cronService.Start(); err != nil {
		logger.Fatalf("Failed to start cron service: %v", err)
	}

	var worker *scheduler.Worker
	if cfg.Redis.Enabled() {
		worker = scheduler.NewWorker(cfg.Redis, expiryService, logger)
		if err := worker.Start(); err != nil {
			logger.Fatalf("Failed to start hold expiry worker: %v", err)
		}
	}

	if err := handlers.RegisterValidators(); err != nil {
		logger.Fatalf("Failed to register validators: %v", err)
	}

	router := setupRouter(routerDeps{
		cfg:           cfg,
		db:            db,
		logger:        logger,
		jwtService:    jwtService,
		booking:       handlers.NewBookingHandler(reservationService, availabilityService, queryService, checkoutService, logger),
		adminBooking:  handlers.NewAdminBookingHandler(syncService, queryService, logger),
		webhook:       handlers.NewPaymentWebhookHandler(webhookService, logger),
		ticket:        handlers.NewTicketHandler(queryService, syncService, services.NewTicketPDFService(), logger),
		passwordReset: resetHandler(resetStore, logger),
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Infof("Server starting on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	cronService.Stop()
	if worker != nil {
		worker.Shutdown()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited successfully")
}

func resetHandler(store *services.PasswordResetStore, logger *logrus.Logger) *handlers.PasswordResetHandler {
	if store == nil {
		return nil
	}
	return handlers.NewPasswordResetHandler(store, logger)
}
