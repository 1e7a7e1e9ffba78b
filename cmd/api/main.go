package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gocomet/carpool/internal/api/handlers"
	"github.com/gocomet/carpool/internal/api/routes"
	"github.com/gocomet/carpool/internal/config"
	"github.com/gocomet/carpool/internal/ledger"
	"github.com/gocomet/carpool/internal/repository/postgres"
	"github.com/gocomet/carpool/internal/service/accounts"
	"github.com/gocomet/carpool/internal/service/metrics"
	"github.com/gocomet/carpool/internal/service/notify"
	"github.com/gocomet/carpool/internal/service/pricing"
	"github.com/gocomet/carpool/internal/service/rides"
	"github.com/gocomet/carpool/pkg/auth"
	"github.com/gocomet/carpool/pkg/broker"
	"github.com/gocomet/carpool/pkg/cache"
	"github.com/gocomet/carpool/pkg/database"
	"github.com/gocomet/carpool/pkg/logger"
	"github.com/gocomet/carpool/pkg/monitoring"
	"github.com/gocomet/carpool/pkg/websocket"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"
)

const redisStatsInterval = 30 * time.Second

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	appLogger, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting carpool seat reservation service",
		logger.String("env", cfg.Server.Env),
		logger.String("port", cfg.Server.Port),
	)

	// Initialize New Relic
	nrApp, err := monitoring.New(monitoring.Config{
		LicenseKey: cfg.NewRelic.LicenseKey,
		AppName:    cfg.NewRelic.AppName,
		Enabled:    cfg.NewRelic.Enabled,
	})
	if err != nil {
		appLogger.Warn("Failed to initialize New Relic", logger.Err(err))
		nrApp, _ = monitoring.New(monitoring.Config{})
	} else if nrApp.IsEnabled() {
		appLogger.Info("New Relic APM initialized", logger.String("app_name", cfg.NewRelic.AppName))
	} else {
		appLogger.Info("New Relic APM disabled")
	}
	defer nrApp.Shutdown(10 * time.Second)

	// Initialize PostgreSQL
	postgresDB, err := database.NewPostgresDB(database.Config{
		Host:        cfg.Database.Host,
		Port:        cfg.Database.Port,
		User:        cfg.Database.User,
		Password:    cfg.Database.Password,
		DBName:      cfg.Database.Name,
		SSLMode:     cfg.Database.SSLMode,
		MaxConns:    cfg.Database.MaxConnections,
		MaxIdle:     cfg.Database.MaxIdleConns,
		MaxLifetime: cfg.Database.MaxLifetime,
	})
	if err != nil {
		appLogger.Fatal("Failed to connect to PostgreSQL", logger.Err(err))
	}
	defer postgresDB.Close()

	if cfg.Database.AutoMigrate {
		migrateCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := database.Migrate(migrateCtx, postgresDB)
		cancel()
		if err != nil {
			appLogger.Fatal("Failed to apply schema", logger.Err(err))
		}
	}
	appLogger.Info("Connected to PostgreSQL successfully")

	// Initialize Redis
	redisClient, err := cache.NewRedisClient(cache.Config{
		Host:        cfg.Redis.Host,
		Port:        cfg.Redis.Port,
		Password:    cfg.Redis.Password,
		DB:          cfg.Redis.DB,
		MaxRetries:  cfg.Redis.MaxRetries,
		PoolSize:    cfg.Redis.PoolSize,
		MinIdleConn: cfg.Redis.MinIdleConn,
		DialTimeout: cfg.Redis.DialTimeout,
		ReadTimeout: cfg.Redis.ReadTimeout,
	})
	if err != nil {
		appLogger.Fatal("Failed to connect to Redis", logger.Err(err))
	}
	defer cache.Close(redisClient)
	cacheStore := cache.NewStore(redisClient, cfg.Redis.KeyPrefix)

	appLogger.Info("Connected to Redis successfully")

	// Initialize RabbitMQ; a nil broker drops events
	eventBroker, err := broker.NewBroker(broker.Config{
		URL:      cfg.Broker.URL,
		Exchange: cfg.Broker.Exchange,
	}, appLogger)
	if err != nil {
		appLogger.Warn("RabbitMQ unavailable, booking events will not be published", logger.Err(err))
	}
	defer eventBroker.Close()

	bgCtx, stopBackground := context.WithCancel(context.Background())
	defer stopBackground()

	// Initialize WebSocket hub
	wsHub := websocket.NewHub(appLogger)
	go wsHub.Run(bgCtx)

	go reportRedisStats(bgCtx, redisClient, nrApp)

	// Repositories
	rideRepo := postgres.NewRideRepository(postgresDB)
	bookingRepo := postgres.NewBookingRepository(postgresDB)
	userRepo := postgres.NewUserRepository(postgresDB)
	vehicleRepo := postgres.NewVehicleRepository(postgresDB)
	ledgerStore := postgres.NewStore(postgresDB, cfg.Ledger.LockTimeout)

	// Services
	pricingService := pricing.NewService(pricing.Config{
		BaseFare:        cfg.Pricing.BaseFare,
		PerKMRate:       cfg.Pricing.PerKMRate,
		MinPricePerSeat: cfg.Pricing.MinPricePerSeat,
		CO2GramsPerKM:   cfg.Pricing.CO2GramsPerKM,
	})
	tokens := auth.NewJWTService(auth.Config{Secret: cfg.JWT.Secret, Expiry: cfg.JWT.Expiry})

	rideService := rides.NewService(rideRepo, vehicleRepo, bookingRepo, cacheStore, pricingService, nrApp, appLogger,
		rides.Config{SnapshotTTL: cfg.Cache.TTLRideSnapshot, InvalidationHold: cfg.Cache.TTLInvalidationHold})
	accountService := accounts.NewService(userRepo, vehicleRepo, tokens,
		accounts.PasswordFuncs{HashFunc: auth.HashPassword, CheckFunc: auth.CheckPassword}, appLogger)
	metricsService := metrics.NewService(userRepo, rideRepo, bookingRepo, pricingService)

	notifier := notify.New(rideService, wsHub, eventBroker, nrApp, appLogger, notify.Config{
		QueueSize: cfg.WebSocket.NotifyQueueSize,
	})
	notifier.Start(bgCtx)

	seatLedger := ledger.NewService(ledgerStore, notifier, appLogger, ledger.Config{
		MaxAttempts:  cfg.Ledger.MaxAttempts,
		RetryBackoff: cfg.Ledger.RetryBackoff,
	})

	// Initialize handlers with dependencies
	h := handlers.NewHandlers(handlers.Dependencies{
		Accounts:     accountService,
		Rides:        rideService,
		Ledger:       seatLedger,
		Metrics:      metricsService,
		Pricing:      pricingService,
		Idempotency:  cacheStore,
		Hub:          wsHub,
		Tokens:       tokens,
		HealthChecks: map[string]handlers.HealthCheck{
			"postgres": postgresDB.PingContext,
			"redis":    cacheStore.Ping,
		},
	}, appLogger, handlers.Config{
		IdempotencyTTL:    cfg.Cache.TTLIdempotency,
		WSReadBufferSize:  cfg.WebSocket.ReadBufferSize,
		WSWriteBufferSize: cfg.WebSocket.WriteBufferSize,
		WSAllowedOrigins:  cfg.CORS.AllowedOrigins,
	})

	// Initialize Gin router
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	var nrApplication *newrelic.Application
	if nrApp.IsEnabled() {
		nrApplication = nrApp.Application
	}
	routes.SetupRoutes(router, h, tokens, routes.CORSConfig{
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		AllowedMethods: cfg.CORS.AllowedMethods,
		AllowedHeaders: cfg.CORS.AllowedHeaders,
	}, nrApplication)

	appLogger.Info("Routes configured successfully")

	// Create HTTP server
	srv := &http.Server{
		Addr:           fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:        router,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   15 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	// Start server in a goroutine
	go func() {
		appLogger.Info("Server starting", logger.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Fatal("Failed to start server", logger.Err(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error("Server forced to shutdown", logger.Err(err))
	}

	// Stop background workers and flush queued seat changes before the
	// broker and Redis connections close.
	stopBackground()
	notifier.Wait()

	appLogger.Info("Server stopped gracefully")
}

func reportRedisStats(ctx context.Context, client *redis.Client, nrApp *monitoring.NewRelicApp) {
	if !nrApp.IsEnabled() {
		return
	}
	ticker := time.NewTicker(redisStatsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			nrApp.RecordRedisPoolStats(cache.GetClientStats(client))
		}
	}
}
