package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/hookrelay/internal/cache"
	"github.com/kursadbilgin/hookrelay/internal/config"
	"github.com/kursadbilgin/hookrelay/internal/handler"
	"github.com/kursadbilgin/hookrelay/internal/infra/postgresql"
	"github.com/kursadbilgin/hookrelay/internal/infra/postgresql/migrations"
	infraredis "github.com/kursadbilgin/hookrelay/internal/infra/redis"
	"github.com/kursadbilgin/hookrelay/internal/observability"
	"github.com/kursadbilgin/hookrelay/internal/queue"
	"github.com/kursadbilgin/hookrelay/internal/repository"
	"github.com/kursadbilgin/hookrelay/internal/service"
	"github.com/kursadbilgin/hookrelay/internal/transport"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config: ", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel, "api")
	if err != nil {
		log.Fatal("failed to initialize logger: ", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("api exited with error", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	db, err := postgresql.NewPostgres(ctx, cfg.DatabaseDSN, logger)
	if err != nil {
		return fmt.Errorf("postgres initialization failed: %w", err)
	}

	if err := migrations.Migrate(db); err != nil {
		return fmt.Errorf("database migrations failed: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("postgres underlying db init failed: %w", err)
	}
	defer sqlDB.Close()

	rdb, err := infraredis.NewRedis(ctx, cfg.RedisURL, logger)
	if err != nil {
		return fmt.Errorf("redis initialization failed: %w", err)
	}
	defer rdb.Close()

	metrics := observability.NewMetrics()

	subscriptionRepo := repository.NewGormSubscriptionRepo(db)
	deliveryRepo := repository.NewGormDeliveryRepo(db)
	attemptRepo := repository.NewGormAttemptRepo(db)

	subscriptionCache, err := cache.NewSubscriptionCache(
		rdb,
		subscriptionRepo,
		cfg.SubscriptionCacheTTL,
		cfg.SubscriptionLocalCacheSize,
		logger,
	)
	if err != nil {
		return fmt.Errorf("subscription cache init failed: %w", err)
	}

	publisher, err := newPublisher(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer publisher.Close()

	ingestion, err := service.NewIngestionService(deliveryRepo, attemptRepo, subscriptionCache, publisher, logger)
	if err != nil {
		return fmt.Errorf("ingestion service init failed: %w", err)
	}
	ingestion.SetMetrics(metrics)

	subscriptions, err := service.NewSubscriptionService(subscriptionRepo, subscriptionCache, logger)
	if err != nil {
		return fmt.Errorf("subscription service init failed: %w", err)
	}

	app := fiber.New(fiber.Config{
		AppName:               "hookrelay-api",
		DisableStartupMessage: true,
		ErrorHandler:          transport.ErrorHandler(logger),
	})
	app.Use(transport.RequestID())
	app.Use(metrics.HTTPMiddleware())

	handler.RegisterHealthRoutes(app, sqlDB, rdb)
	handler.RegisterMetricsRoute(app, metrics.Handler())
	if err := handler.RegisterDeliveryRoutes(app, ingestion); err != nil {
		return fmt.Errorf("delivery routes init failed: %w", err)
	}
	if err := handler.RegisterSubscriptionRoutes(app, subscriptions); err != nil {
		return fmt.Errorf("subscription routes init failed: %w", err)
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- app.Listen(fmt.Sprintf(":%d", cfg.APIPort))
	}()
	logger.Info("hookrelay api started", zap.Int("port", cfg.APIPort))

	select {
	case err := <-serveErr:
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down api")
	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("http server shutdown failed: %w", err)
	}
	return nil
}

// newPublisher connects to RabbitMQ when configured. Without a broker, workers rely on polling alone.
func newPublisher(ctx context.Context, cfg *config.Config, logger *zap.Logger) (queue.Publisher, error) {
	if cfg.RabbitMQURL == "" {
		logger.Info("RABBITMQ_URL not set, delivery nudges disabled")
		return queue.NopPublisher{}, nil
	}

	client, err := queue.NewRabbitMQ(ctx, cfg.RabbitMQURL, logger)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq initialization failed: %w", err)
	}
	return queue.NewRabbitMQPublisher(client), nil
}
