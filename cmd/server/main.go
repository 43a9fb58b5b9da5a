package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/climbing-points/internal/config"
	"github.com/climbing-points/internal/handler"
	"github.com/climbing-points/internal/kafka"
	"github.com/climbing-points/internal/postgres"
	"github.com/climbing-points/internal/redis"
	"github.com/climbing-points/internal/remoteconfig"
	"github.com/climbing-points/internal/service"
	"github.com/climbing-points/internal/storage"
	"github.com/climbing-points/internal/websocket"
	"github.com/climbing-points/internal/worker"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	// A missing .env is fine; the config file falls back to the environment
	_ = godotenv.Load()

	// Load configuration
	cfg, cfgErr := config.Load(*configPath)
	if cfgErr != nil {
		cfg = config.DefaultConfig()
	}

	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.Log.SlogLevel(),
	}))
	slog.SetDefault(logger)
	if cfgErr != nil {
		logger.Warn("failed to load config file, using defaults", "error", cfgErr)
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize PostgreSQL
	logger.Info("connecting to PostgreSQL", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
	repo, err := postgres.NewRepository(&cfg.Postgres, logger)
	if err != nil {
		logger.Error("failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	logger.Info("connected to PostgreSQL")

	// Run database migrations
	if err := repo.RunMigrations(ctx); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	// Initialize Redis
	logger.Info("connecting to Redis", "addr", cfg.Redis.Addr)
	redisClient, err := redis.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Error("failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()
	logger.Info("connected to Redis")

	sessions := redis.NewSessionStore(redisClient, cfg.Auth.SessionPrefix, cfg.Auth.SessionTTL, logger)

	// Resolve accounting configuration once at startup
	var source remoteconfig.Source
	if cfg.RemoteConfig.Enabled {
		source = redis.NewRemoteConfigSource(redisClient, cfg.RemoteConfig.RedisKey)
	}
	resolver := remoteconfig.NewResolver(
		source,
		remoteconfig.DefaultValues(cfg.Points.DefaultPointsPerTicket),
		cfg.RemoteConfig.FetchTimeout,
		logger,
	)
	resolver.Load(ctx)

	// Initialize photo storage
	var blobs service.BlobStore
	if cfg.Storage.Enabled {
		s3Store, err := storage.NewS3Store(ctx, &cfg.Storage, logger)
		if err != nil {
			logger.Error("failed to initialize photo storage", "error", err)
			os.Exit(1)
		}
		blobs = s3Store
		logger.Info("photo storage initialized", "bucket", cfg.Storage.Bucket)
	} else {
		logger.Warn("photo storage disabled, photo submissions will be rejected")
	}

	// Initialize WebSocket hub
	wsHub := websocket.NewHub(logger)
	go wsHub.Run()
	logger.Info("WebSocket hub initialized")

	// Initialize services
	pointsService := service.NewPointsService(repo, blobs, resolver, &cfg.Leaderboard, logger)
	pointsService.SetHub(wsHub)

	// Periodically push stats and leaderboard to subscribers
	refreshWorker := worker.NewRefreshWorker(pointsService, &cfg.Refresh, logger)
	if cfg.Refresh.Enabled {
		if err := refreshWorker.Start(ctx); err != nil {
			logger.Error("failed to start refresh worker", "error", err)
			os.Exit(1)
		}
	}

	// Initialize Kafka consumer for kiosk route submissions
	var kafkaConsumer *kafka.Consumer
	if cfg.Kafka.Enabled {
		logger.Info("initializing Kafka consumer",
			"brokers", cfg.Kafka.Brokers,
			"topic", cfg.Kafka.Topic,
		)
		kafkaConsumer, err = kafka.NewConsumer(&cfg.Kafka, pointsService, logger)
		if err != nil {
			logger.Warn("failed to create Kafka consumer, continuing without Kafka", "error", err)
		} else if err := kafkaConsumer.Start(); err != nil {
			logger.Warn("failed to start Kafka consumer, continuing without Kafka", "error", err)
			kafkaConsumer = nil
		} else {
			logger.Info("Kafka consumer started successfully")
		}
	}

	// Initialize HTTP handler
	httpHandler := handler.NewHandler(pointsService, sessions, resolver, wsHub, cfg, logger)
	httpHandler.AddReadinessCheck("postgres", repo.Ping)
	httpHandler.AddReadinessCheck("redis", func(ctx context.Context) error {
		return redisClient.Ping(ctx).Err()
	})
	if cfg.Refresh.Enabled {
		httpHandler.AddReadinessCheck("refresh", func(context.Context) error {
			if !refreshWorker.IsRunning() {
				return errors.New("refresh worker is not running")
			}
			return nil
		})
	}

	if providers, err := handler.EnabledProviders(&cfg.Auth); err != nil {
		logger.Error("invalid auth configuration", "error", err)
		os.Exit(1)
	} else {
		logger.Info("identity providers enabled", "providers", providers, "dev_mode", cfg.Auth.DevMode)
	}

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      httpHandler.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Info("starting HTTP server", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Stop accepting requests before tearing down what they use
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown server", "error", err)
	}

	// Stop Kafka consumer
	if kafkaConsumer != nil {
		if err := kafkaConsumer.Stop(); err != nil {
			logger.Error("failed to stop Kafka consumer", "error", err)
		}
	}

	// Stop refresh worker
	if err := refreshWorker.Stop(); err != nil {
		logger.Error("failed to stop refresh worker", "error", err)
	}

	// Stop WebSocket hub
	wsHub.Stop()

	logger.Info("server stopped")
}
