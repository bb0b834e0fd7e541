package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/cache/v9"
	"github.com/kursadbilgin/hookrelay/internal/domain"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	keyPrefix   = "subscription:"
	maxLocalTTL = 10 * time.Second
)

// SubscriptionLoader is the source of truth consulted on a cache miss.
type SubscriptionLoader interface {
	GetByID(ctx context.Context, id string) (*domain.Subscription, error)
}

// SubscriptionCache is a read-through cache over the subscription store. Redis is the
// shared tier; an optional TinyLFU tier keeps hot entries in process for a short while.
type SubscriptionCache struct {
	cache  *cache.Cache
	loader SubscriptionLoader
	ttl    time.Duration
	logger *zap.Logger
}

func NewSubscriptionCache(
	client *goredis.Client,
	loader SubscriptionLoader,
	ttl time.Duration,
	localSize int,
	logger *zap.Logger,
) (*SubscriptionCache, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if loader == nil {
		return nil, errors.New("subscription loader is required")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("cache ttl must be positive (got %s)", ttl)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := &cache.Options{Redis: client}
	if localSize > 0 {
		opts.LocalCache = cache.NewTinyLFU(localSize, min(ttl, maxLocalTTL))
	}

	return &SubscriptionCache{
		cache:  cache.New(opts),
		loader: loader,
		ttl:    ttl,
		logger: logger,
	}, nil
}

// Get returns the subscription, loading it from the store at most once per key across
// concurrent callers. Lookup failures, including not found, are not cached.
func (c *SubscriptionCache) Get(ctx context.Context, id string) (*domain.Subscription, error) {
	var sub domain.Subscription
	err := c.cache.Once(&cache.Item{
		Ctx:   ctx,
		Key:   cacheKey(id),
		Value: &sub,
		TTL:   c.ttl,
		Do: func(item *cache.Item) (any, error) {
			loaded, err := c.loader.GetByID(item.Context(), id)
			if err != nil {
				return nil, err
			}
			c.logger.Debug("subscription cache filled", zap.String("subscription_id", id))
			return loaded, nil
		},
	})
	if err != nil {
		return nil, err
	}

	return &sub, nil
}

// Invalidate drops the entry from both tiers. A missing key is not an error.
func (c *SubscriptionCache) Invalidate(ctx context.Context, id string) error {
	err := c.cache.Delete(ctx, cacheKey(id))
	if err != nil && !errors.Is(err, cache.ErrCacheMiss) {
		return fmt.Errorf("failed to invalidate subscription %s: %w", id, err)
	}
	return nil
}

func cacheKey(id string) string {
	return keyPrefix + id
}
