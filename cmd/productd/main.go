package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/llNABSll/product-api/internal/config"
	"github.com/llNABSll/product-api/internal/db"
	"github.com/llNABSll/product-api/internal/events"
	"github.com/llNABSll/product-api/internal/httpapi"
	"github.com/llNABSll/product-api/internal/metrics"
	"github.com/llNABSll/product-api/internal/repo"
	"github.com/llNABSll/product-api/internal/service"
	"github.com/llNABSll/product-api/pkg/logger"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	log := logger.NewLogger(cfg.ServiceName, cfg.LogLevel)
	defer log.Sync()

	log.Info("Product service starting")

	// Connect to database
	log.Info("Connecting to database")
	database, err := db.Connect(cfg.PGDSN)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer database.Close()

	// Run migrations
	log.Info("Running database migrations")
	if err := db.RunMigrations(database); err != nil {
		log.Fatal("Failed to run migrations", zap.Error(err))
	}

	// Initialize repository
	productRepo := repo.NewProductRepository(database, log)

	// Connect to RabbitMQ
	log.Info("Connecting to RabbitMQ")
	publisher, err := events.NewPublisher(cfg.RabbitMQURL, cfg.RabbitMQExchange, log)
	if err != nil {
		log.Fatal("Failed to connect to RabbitMQ", zap.Error(err))
	}
	defer publisher.Close()

	// Metrics registry
	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	// Business layer
	productService := service.NewProductService(productRepo, publisher, log)

	// Event consumer: order lifecycle events drive stock reservations
	handlers := events.NewOrderHandlers(productService, publisher, log)
	router := events.NewRouter(handlers, log)
	consumer, err := events.NewConsumer(
		cfg.RabbitMQURL,
		cfg.RabbitMQExchange,
		cfg.RabbitMQQueue,
		events.DefaultBindingPatterns,
		cfg.Prefetch,
		cfg.RequeueOnError,
		router,
		m,
		log,
	)
	if err != nil {
		log.Fatal("Failed to initialize event consumer", zap.Error(err))
	}
	defer consumer.Close()

	consumerCtx, stopConsumer := context.WithCancel(context.Background())
	defer stopConsumer()

	go func() {
		if err := consumer.Start(consumerCtx); err != nil {
			log.Error("Consumer stopped", zap.Error(err))
		}
	}()

	// REST API server
	api := httpapi.NewAPI(productService, log)
	apiServer := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler:      httpapi.NewRouter(api, m, promhttp.HandlerFor(registry, promhttp.HandlerOpts{})),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info("Starting HTTP server", zap.String("address", apiServer.Addr))
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to serve HTTP", zap.Error(err))
		}
	}()

	// Health server
	healthMux := http.NewServeMux()
	healthMux.HandleFunc("/healthz", healthHandler(database, publisher, log))

	healthServer := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.HTTPHealthPort),
		Handler:      healthMux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("Starting health server", zap.String("address", healthServer.Addr))
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Health server error", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := apiServer.Shutdown(ctx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}
	if err := healthServer.Shutdown(ctx); err != nil {
		log.Error("Health server shutdown error", zap.Error(err))
	}
	stopConsumer()

	log.Info("Server stopped")
}

func healthHandler(database *db.DB, publisher *events.Publisher, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := database.Ping(); err != nil {
			log.Error("Database health check failed", zap.Error(err))
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("unhealthy: database connection failed"))
			return
		}

		if !publisher.IsHealthy() {
			log.Error("RabbitMQ health check failed")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("unhealthy: rabbitmq connection failed"))
			return
		}

		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	}
}
