package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/tmalik/banking-core/internal/api"
	"github.com/tmalik/banking-core/internal/cache"
	"github.com/tmalik/banking-core/internal/config"
	"github.com/tmalik/banking-core/internal/db"
	"github.com/tmalik/banking-core/internal/queue"
	"github.com/tmalik/banking-core/internal/service"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logrus.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("failed to load config: %v", err)
	}

	// Connecting to Postgres
	logrus.Info("connecting to PostgreSQL...")
	postgres, err := db.NewPostgres(cfg.PostgresURI)
	if err != nil {
		logrus.Fatalf("failed to connect to PostgreSQL: %v", err)
	}
	defer postgres.Close()

	logrus.Info("creating the schema...")
	if err := postgres.InitSchema(ctx); err != nil {
		logrus.Fatalf("failed to create schema: %v", err)
	}

	// Connect to MongoDB
	logrus.Info("connecting to MongoDB...")
	journal, err := db.NewJournal(cfg.MongoURI, cfg.MongoDBName)
	if err != nil {
		logrus.Fatalf("failed to connect to MongoDB: %v", err)
	}
	defer journal.Close(ctx)

	// Connect to Redis
	logrus.Info("connecting to Redis...")
	redisClient, err := cache.NewRedisClient(cfg.RedisAddr)
	if err != nil {
		logrus.Fatalf("failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()

	// Connect to RabbitMQ
	logrus.Info("connecting to RabbitMQ...")
	rabbitmq, err := queue.NewRabbitMQ(cfg.RabbitMQURI)
	if err != nil {
		logrus.Fatalf("failed to connect to RabbitMQ: %v", err)
	}
	defer rabbitmq.Close()

	// Create services
	idempotency := cache.NewIdempotencyCache(redisClient, cfg.IdempotencyTTL)
	lockout := cache.NewLockoutTracker(redisClient, cfg.LockoutWindow)

	userService := service.NewUserService(postgres, cfg.JWTSecret, cfg.TokenTTL)
	accountService := service.NewAccountService(postgres, journal)
	engine := service.NewEngine(postgres, journal, idempotency, lockout, rabbitmq, userService, cfg.MaxPinAttempts)

	// Create router and set up routes
	router := mux.NewRouter()
	api.SetupRoutes(router, userService, accountService, engine)

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logrus.Infof("starting server on port %s...", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logrus.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logrus.Fatalf("server shutdown failed: %v", err)
	}

	logrus.Info("server shut down successfully")
}
