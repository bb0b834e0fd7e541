package main

import (
	"context"
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
	"github.com/kursadbilgin/hookrelay/internal/webhook"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config: ", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel, "worker")
	if err != nil {
		log.Fatal("failed to initialize logger: ", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("worker exited with error", zap.Error(err))
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

	sender, err := webhook.NewRestySender(cfg.HTTPTimeout)
	if err != nil {
		return fmt.Errorf("webhook sender init failed: %w", err)
	}

	dispatcher, err := service.NewDispatcher(
		deliveryRepo,
		subscriptionCache,
		sender,
		cfg.RetryPolicy(),
		cfg.DispatcherConfig(),
		logger,
	)
	if err != nil {
		return fmt.Errorf("dispatcher init failed: %w", err)
	}
	dispatcher.SetMetrics(metrics)

	if cfg.RateLimitPerSec > 0 {
		limiter, err := infraredis.NewSubscriptionRateLimiter(rdb, cfg.RateLimitPerSec)
		if err != nil {
			return fmt.Errorf("rate limiter init failed: %w", err)
		}
		dispatcher.SetRateLimiter(limiter)
	}

	sweeper, err := service.NewSweeper(deliveryRepo, cfg.StuckSweepInterval, cfg.StuckThreshold, logger)
	if err != nil {
		return fmt.Errorf("sweeper init failed: %w", err)
	}
	sweeper.SetMetrics(metrics)

	reaper, err := service.NewReaper(deliveryRepo, cfg.ReaperConfig(), logger)
	if err != nil {
		return fmt.Errorf("reaper init failed: %w", err)
	}
	reaper.SetMetrics(metrics)

	app := fiber.New(fiber.Config{
		AppName:               "hookrelay-worker",
		DisableStartupMessage: true,
		ErrorHandler:          transport.ErrorHandler(logger),
	})
	handler.RegisterHealthRoutes(app, sqlDB, rdb)
	handler.RegisterMetricsRoute(app, metrics.Handler())

	g, groupCtx := errgroup.WithContext(ctx)

	g.Go(func() error { return dispatcher.Start(groupCtx) })
	g.Go(func() error { return sweeper.Start(groupCtx) })
	g.Go(func() error { return reaper.Start(groupCtx) })

	if cfg.RabbitMQURL != "" {
		client, err := queue.NewRabbitMQ(ctx, cfg.RabbitMQURL, logger)
		if err != nil {
			return fmt.Errorf("rabbitmq initialization failed: %w", err)
		}
		consumer := queue.NewRabbitMQConsumer(client, cfg.WorkerConcurrency, logger)
		defer consumer.Close()

		g.Go(func() error {
			return consumer.Consume(groupCtx, func(ctx context.Context, msg queue.DeliveryMessage) error {
				dispatcher.Wake()
				return nil
			})
		})
	} else {
		logger.Info("RABBITMQ_URL not set, dispatcher relies on polling only")
	}

	g.Go(func() error {
		if err := app.Listen(fmt.Sprintf(":%d", cfg.MetricsPort)); err != nil {
			return fmt.Errorf("metrics server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-groupCtx.Done()
		return app.ShutdownWithTimeout(shutdownTimeout)
	})

	logger.Info("hookrelay worker started",
		zap.Int("concurrency", cfg.WorkerConcurrency),
		zap.Int("metricsPort", cfg.MetricsPort),
		zap.Int("rateLimitPerSec", cfg.RateLimitPerSec),
	)

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("worker stopped")
	return nil
}
