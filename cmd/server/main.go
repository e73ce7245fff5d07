package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"

	"payflow/internal/app"
	"payflow/internal/config"
	"payflow/internal/handler"
	"payflow/internal/provider"
	internalRedis "payflow/internal/redis"
	"payflow/internal/repository/postgres"
	"payflow/internal/service"
)

func main() {
	// Load configuration.
	cfg := config.Load()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Initialize New Relic FIRST (before database so we can instrument DB).
	var nrApp *newrelic.Application
	var err error
	if cfg.NewRelic.Enabled && cfg.NewRelic.LicenseKey != "" {
		nrApp, err = newrelic.NewApplication(
			newrelic.ConfigAppName(cfg.NewRelic.AppName),
			newrelic.ConfigLicense(cfg.NewRelic.LicenseKey),
			newrelic.ConfigDistributedTracerEnabled(true),
			newrelic.ConfigAppLogForwardingEnabled(true),
		)
		if err != nil {
			log.Printf("failed to initialize New Relic: %v", err)
		} else {
			log.Printf("New Relic enabled: app=%s (with DB instrumentation)", cfg.NewRelic.AppName)
		}
	}

	// Initialize database with New Relic instrumentation.
	db, err := app.NewDatabase(ctx, cfg.Database, nrApp)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Connected to PostgreSQL")

	// Initialize Redis with New Relic instrumentation.
	redisClient, err := app.NewRedisClient(ctx, cfg.Redis, nrApp)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	defer redisClient.Close()
	log.Println("Connected to Redis")

	// Wire dependencies.
	server, sweeper, err := wireServer(db, redisClient, nrApp, cfg)
	if err != nil {
		log.Fatalf("failed to wire server: %v", err)
	}

	// Start the background sweeper.
	sweeper.Start()

	// Start server in goroutine.
	go func() {
		log.Printf("Starting server on port %s", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	sweeper.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}

// wireServer wires all dependencies and returns the HTTP server and sweeper.
func wireServer(db *sql.DB, redisClient *redis.Client, nrApp *newrelic.Application, cfg *config.Config) (*http.Server, *service.Sweeper, error) {
	// Initialize Redis stores.
	sessionStore := internalRedis.NewSessionStore(redisClient)
	lockStore := internalRedis.NewLockStore(redisClient)

	// Initialize provider adapters.
	providers, err := provider.NewRegistry(cfg.QPay, cfg.CardGate)
	if err != nil {
		return nil, nil, err
	}

	// Initialize repositories.
	orderRepo := postgres.NewOrderRepository(db)

	// Initialize services.
	notificationService := service.NewNotificationService()
	materializer := service.NewRepositoryMaterializer(orderRepo)

	var ebarimtService *service.EbarimtService
	if cfg.Ebarimt.Enabled && cfg.Ebarimt.BaseURL != "" {
		ebarimtService = service.NewEbarimtService(cfg.Ebarimt, sessionStore)
		log.Printf("Ebarimt registration enabled: merchant=%s", cfg.Ebarimt.MerchantNo)
	}

	engine := service.NewReconciliationEngine(
		sessionStore,
		lockStore,
		providers,
		materializer,
		ebarimtService,
		notificationService,
		cfg.Session,
	)

	sweeper := service.NewSweeper(engine, cfg.Session.SweepInterval)

	// Initialize handlers.
	paymentHandler := handler.NewPaymentHandler(engine)

	// Create router.
	router := app.NewRouter(app.RouterDeps{
		PaymentHandler: paymentHandler,
		RedisClient:    redisClient,
		NewRelicApp:    nrApp,
	})

	// Create HTTP server.
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return server, sweeper, nil
}
