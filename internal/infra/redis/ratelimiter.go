package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/hookrelay/internal/ratelimit"
	goredis "github.com/redis/go-redis/v9"
)

const (
	waitStep      = 10 * time.Millisecond
	waitMax       = 100 * time.Millisecond
	windowSeconds = 1
	keyPrefix     = "ratelimit:subscription"
)

// Fixed one-second window counter shared by every worker process.
var allowScript = goredis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("EXPIRE", KEYS[1], ARGV[2])
end
if current > tonumber(ARGV[1]) then
  return 0
end
return 1
`)

var _ ratelimit.RateLimiter = (*SubscriptionRateLimiter)(nil)

// SubscriptionRateLimiter limits POSTs per subscription per second across all workers.
type SubscriptionRateLimiter struct {
	client      *goredis.Client
	limitPerSec int64
	now         func() time.Time
	sleep       func(ctx context.Context, d time.Duration) error
}

func NewSubscriptionRateLimiter(client *goredis.Client, limitPerSec int) (*SubscriptionRateLimiter, error) {
	return newSubscriptionRateLimiter(client, int64(limitPerSec), time.Now, sleepWithContext)
}

func newSubscriptionRateLimiter(
	client *goredis.Client,
	limitPerSec int64,
	nowFn func() time.Time,
	sleepFn func(ctx context.Context, d time.Duration) error,
) (*SubscriptionRateLimiter, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if limitPerSec <= 0 {
		return nil, fmt.Errorf("rate limit must be positive (got %d)", limitPerSec)
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	if sleepFn == nil {
		sleepFn = sleepWithContext
	}

	return &SubscriptionRateLimiter{
		client:      client,
		limitPerSec: limitPerSec,
		now:         nowFn,
		sleep:       sleepFn,
	}, nil
}

func (r *SubscriptionRateLimiter) Allow(ctx context.Context, subscriptionID string) (bool, error) {
	id := strings.TrimSpace(subscriptionID)
	if id == "" {
		return false, errors.New("subscription id is required")
	}

	key := fmt.Sprintf("%s:%s:%d", keyPrefix, id, r.now().UTC().Unix())
	result, err := allowScript.Run(ctx, r.client, []string{key}, r.limitPerSec, windowSeconds).Int()
	if err != nil {
		return false, fmt.Errorf("failed to evaluate rate limit: %w", err)
	}

	return result == 1, nil
}

// Wait blocks until a slot in the current window is free or ctx ends.
func (r *SubscriptionRateLimiter) Wait(ctx context.Context, subscriptionID string) error {
	step := waitStep
	for {
		allowed, err := r.Allow(ctx, subscriptionID)
		if err != nil {
			return err
		}
		if allowed {
			return nil
		}

		if err := r.sleep(ctx, step); err != nil {
			return err
		}

		step = min(step+waitStep, waitMax)
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
