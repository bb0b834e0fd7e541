package ratelimit

import "context"

// RateLimiter caps outbound requests per subscription endpoint.
type RateLimiter interface {
	Allow(ctx context.Context, subscriptionID string) (bool, error)
	Wait(ctx context.Context, subscriptionID string) error
}
