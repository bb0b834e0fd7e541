package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Netflix/go-env"
	"github.com/kursadbilgin/hookrelay/internal/retry"
	"github.com/kursadbilgin/hookrelay/internal/service"
)

// recordMargin covers writing an attempt result after the request returns.
const recordMargin = 5 * time.Second

type Config struct {
	DatabaseDSN string `env:"DATABASE_DSN,required=true"`
	RedisURL    string `env:"REDIS_URL,required=true"`
	RabbitMQURL string `env:"RABBITMQ_URL"`
	APIPort     int    `env:"API_PORT,default=8080"`
	MetricsPort int    `env:"METRICS_PORT,default=9090"`
	LogLevel    string `env:"LOG_LEVEL,default=info"`

	MaxRetryAttempts   int           `env:"MAX_RETRY_ATTEMPTS,default=5"`
	RetryBackoffFactor float64       `env:"RETRY_BACKOFF_FACTOR,default=2"`
	InitialRetryDelay  time.Duration `env:"INITIAL_RETRY_DELAY,default=10s"`
	MaxRetryDelay      time.Duration `env:"MAX_RETRY_DELAY,default=900s"`
	RetryJitter        float64       `env:"RETRY_JITTER,default=0.2"`

	LogRetentionHours int           `env:"LOG_RETENTION_HOURS,default=72"`
	ReaperInterval    time.Duration `env:"REAPER_INTERVAL,default=1h"`
	ReaperBatchSize   int           `env:"REAPER_BATCH_SIZE,default=500"`

	SubscriptionCacheTTL       time.Duration `env:"SUBSCRIPTION_CACHE_TTL,default=60s"`
	SubscriptionLocalCacheSize int           `env:"SUBSCRIPTION_LOCAL_CACHE_SIZE,default=1000"`

	WorkerConcurrency    int           `env:"WORKER_CONCURRENCY,default=16"`
	DispatchBatchSize    int           `env:"DISPATCH_BATCH_SIZE,default=10"`
	DispatchPollInterval time.Duration `env:"DISPATCH_POLL_INTERVAL,default=1s"`
	HTTPTimeout          time.Duration `env:"HTTP_TIMEOUT,default=10s"`
	StuckThreshold       time.Duration `env:"STUCK_THRESHOLD,default=30s"`
	StuckSweepInterval   time.Duration `env:"STUCK_SWEEP_INTERVAL,default=30s"`

	// RateLimitPerSec caps outbound requests per subscription. Zero disables it.
	RateLimitPerSec int `env:"RATE_LIMIT_PER_SEC,default=0"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	cfg.DatabaseDSN = strings.TrimSpace(cfg.DatabaseDSN)
	cfg.RedisURL = strings.TrimSpace(cfg.RedisURL)
	cfg.RabbitMQURL = strings.TrimSpace(cfg.RabbitMQURL)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.DatabaseDSN == "" {
		errs = append(errs, errors.New("DATABASE_DSN is required"))
	}
	if c.RedisURL == "" {
		errs = append(errs, errors.New("REDIS_URL is required"))
	}
	if c.APIPort <= 0 || c.APIPort > 65535 {
		errs = append(errs, fmt.Errorf("API_PORT must be a valid port (got %d)", c.APIPort))
	}
	if c.MetricsPort <= 0 || c.MetricsPort > 65535 {
		errs = append(errs, fmt.Errorf("METRICS_PORT must be a valid port (got %d)", c.MetricsPort))
	}
	if err := c.RetryPolicy().Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.LogRetentionHours <= 0 {
		errs = append(errs, fmt.Errorf("LOG_RETENTION_HOURS must be positive (got %d)", c.LogRetentionHours))
	}
	if c.ReaperInterval <= 0 {
		errs = append(errs, fmt.Errorf("REAPER_INTERVAL must be positive (got %s)", c.ReaperInterval))
	}
	if c.ReaperBatchSize <= 0 {
		errs = append(errs, fmt.Errorf("REAPER_BATCH_SIZE must be positive (got %d)", c.ReaperBatchSize))
	}
	if c.SubscriptionCacheTTL <= 0 {
		errs = append(errs, fmt.Errorf("SUBSCRIPTION_CACHE_TTL must be positive (got %s)", c.SubscriptionCacheTTL))
	}
	if c.SubscriptionLocalCacheSize < 0 {
		errs = append(errs, fmt.Errorf("SUBSCRIPTION_LOCAL_CACHE_SIZE must not be negative (got %d)", c.SubscriptionLocalCacheSize))
	}
	if c.WorkerConcurrency <= 0 {
		errs = append(errs, fmt.Errorf("WORKER_CONCURRENCY must be positive (got %d)", c.WorkerConcurrency))
	}
	if c.DispatchBatchSize <= 0 {
		errs = append(errs, fmt.Errorf("DISPATCH_BATCH_SIZE must be positive (got %d)", c.DispatchBatchSize))
	}
	if c.DispatchPollInterval <= 0 {
		errs = append(errs, fmt.Errorf("DISPATCH_POLL_INTERVAL must be positive (got %s)", c.DispatchPollInterval))
	}
	if c.HTTPTimeout <= 0 {
		errs = append(errs, fmt.Errorf("HTTP_TIMEOUT must be positive (got %s)", c.HTTPTimeout))
	}
	// Workers renew a claim right before sending, so a live claim is never older than
	// one request plus the time to record its result.
	if c.StuckThreshold <= c.HTTPTimeout+recordMargin {
		errs = append(errs, fmt.Errorf("STUCK_THRESHOLD (%s) must exceed HTTP_TIMEOUT (%s) plus %s",
			c.StuckThreshold, c.HTTPTimeout, recordMargin))
	}
	if c.StuckSweepInterval <= 0 {
		errs = append(errs, fmt.Errorf("STUCK_SWEEP_INTERVAL must be positive (got %s)", c.StuckSweepInterval))
	}
	if c.RateLimitPerSec < 0 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_PER_SEC must not be negative (got %d)", c.RateLimitPerSec))
	}

	return errors.Join(errs...)
}

func (c *Config) RetryPolicy() retry.Policy {
	return retry.Policy{
		BaseDelay:   c.InitialRetryDelay,
		Factor:      c.RetryBackoffFactor,
		MaxDelay:    c.MaxRetryDelay,
		MaxAttempts: c.MaxRetryAttempts,
		Jitter:      c.RetryJitter,
	}
}

func (c *Config) LogRetention() time.Duration {
	return time.Duration(c.LogRetentionHours) * time.Hour
}

func (c *Config) DispatcherConfig() service.DispatcherConfig {
	return service.DispatcherConfig{
		Concurrency:  c.WorkerConcurrency,
		BatchSize:    c.DispatchBatchSize,
		PollInterval: c.DispatchPollInterval,
	}
}

func (c *Config) ReaperConfig() service.ReaperConfig {
	return service.ReaperConfig{
		Retention: c.LogRetention(),
		Interval:  c.ReaperInterval,
		BatchSize: c.ReaperBatchSize,
	}
}
