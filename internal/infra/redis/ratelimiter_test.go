package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
)

func TestSubscriptionRateLimiterAllowWindow(t *testing.T) {
	t.Parallel()

	rdb := newTestRedisClient(t)
	now := time.Unix(1_700_000_000, 0)
	limiter, err := newSubscriptionRateLimiter(rdb, 2, func() time.Time { return now }, sleepWithContext)
	if err != nil {
		t.Fatalf("newSubscriptionRateLimiter() error = %v", err)
	}

	want := []bool{true, true, false}
	for i, w := range want {
		allowed, err := limiter.Allow(context.Background(), "sub-1")
		if err != nil {
			t.Fatalf("Allow() call %d error = %v", i+1, err)
		}
		if allowed != w {
			t.Fatalf("Allow() call %d = %v, want %v", i+1, allowed, w)
		}
	}

	now = now.Add(time.Second)
	allowed, err := limiter.Allow(context.Background(), "sub-1")
	if err != nil {
		t.Fatalf("Allow() error = %v", err)
	}
	if !allowed {
		t.Fatal("next window should allow the call")
	}
}

func TestSubscriptionRateLimiterIsolatesSubscriptions(t *testing.T) {
	t.Parallel()

	rdb := newTestRedisClient(t)
	now := time.Unix(1_700_000_100, 0)
	limiter, err := newSubscriptionRateLimiter(rdb, 1, func() time.Time { return now }, sleepWithContext)
	if err != nil {
		t.Fatalf("newSubscriptionRateLimiter() error = %v", err)
	}

	for _, id := range []string{"sub-a", "sub-b"} {
		allowed, err := limiter.Allow(context.Background(), id)
		if err != nil {
			t.Fatalf("Allow(%s) error = %v", id, err)
		}
		if !allowed {
			t.Fatalf("Allow(%s) should pass on first request", id)
		}
	}

	allowed, err := limiter.Allow(context.Background(), "sub-a")
	if err != nil {
		t.Fatalf("Allow(sub-a) error = %v", err)
	}
	if allowed {
		t.Fatal("second sub-a request should be rejected")
	}
}

func TestSubscriptionRateLimiterRejectsInvalidInput(t *testing.T) {
	t.Parallel()

	rdb := newTestRedisClient(t)
	if _, err := NewSubscriptionRateLimiter(rdb, 0); err == nil {
		t.Fatal("NewSubscriptionRateLimiter(0) expected error")
	}
	if _, err := NewSubscriptionRateLimiter(nil, 5); err == nil {
		t.Fatal("NewSubscriptionRateLimiter(nil client) expected error")
	}

	limiter, err := NewSubscriptionRateLimiter(rdb, 5)
	if err != nil {
		t.Fatalf("NewSubscriptionRateLimiter() error = %v", err)
	}
	if _, err := limiter.Allow(context.Background(), "  "); err == nil {
		t.Fatal("Allow(blank) expected error")
	}
}

func TestSubscriptionRateLimiterWait(t *testing.T) {
	t.Parallel()

	rdb := newTestRedisClient(t)
	now := time.Unix(1_700_000_200, 0)
	sleepCalls := 0
	limiter, err := newSubscriptionRateLimiter(
		rdb,
		1,
		func() time.Time { return now },
		func(ctx context.Context, d time.Duration) error {
			sleepCalls++
			if sleepCalls == 1 {
				now = now.Add(time.Second)
			}
			return nil
		},
	)
	if err != nil {
		t.Fatalf("newSubscriptionRateLimiter() error = %v", err)
	}

	if err := limiter.Wait(context.Background(), "sub-1"); err != nil {
		t.Fatalf("first Wait() error = %v", err)
	}
	if sleepCalls != 0 {
		t.Fatalf("first Wait() slept %d times, want 0", sleepCalls)
	}

	if err := limiter.Wait(context.Background(), "sub-1"); err != nil {
		t.Fatalf("second Wait() error = %v", err)
	}
	if sleepCalls != 1 {
		t.Fatalf("second Wait() slept %d times, want 1", sleepCalls)
	}
}

func TestSubscriptionRateLimiterWaitHonoursDeadline(t *testing.T) {
	t.Parallel()

	rdb := newTestRedisClient(t)
	now := time.Unix(1_700_000_300, 0)
	limiter, err := newSubscriptionRateLimiter(rdb, 1, func() time.Time { return now }, sleepWithContext)
	if err != nil {
		t.Fatalf("newSubscriptionRateLimiter() error = %v", err)
	}

	if err := limiter.Wait(context.Background(), "sub-1"); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 25*time.Millisecond)
	defer cancel()

	err = limiter.Wait(ctx, "sub-1")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Wait() error = %v, want %v", err, context.DeadlineExceeded)
	}
}

func TestNewRedisRejectsBadURL(t *testing.T) {
	t.Parallel()

	if _, err := NewRedis(context.Background(), "not-a-url", nil); err == nil {
		t.Fatal("NewRedis() expected parse error")
	}
}

func TestNewRedisConnects(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	client, err := NewRedis(context.Background(), "redis://"+mr.Addr(), nil)
	if err != nil {
		t.Fatalf("NewRedis() error = %v", err)
	}
	_ = client.Close()
}

func newTestRedisClient(t *testing.T) *goredis.Client {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run() error = %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := goredis.NewClient(&goredis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() {
		_ = rdb.Close()
	})

	return rdb
}
