package redis

import (
	"context"
	"fmt"
	"time"
)

// RateLimiter counts hits per key in fixed windows aligned to the epoch.
// Each window gets its own Redis key, so a lost EXPIRE only leaks one stale
// counter instead of blocking the caller for good.
type RateLimiter struct {
	client RedisClient
	now    func() time.Time
}

func NewRateLimiter(client RedisClient) *RateLimiter {
	return &RateLimiter{client: client, now: time.Now}
}

// Allow reports whether one more hit on key fits into limit per window.
// A non-positive limit disables limiting.
func (r *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if limit <= 0 || window <= 0 {
		return true, nil
	}
	slot := r.now().UnixNano() / int64(window)
	bucket := fmt.Sprintf("%s:%d", key, slot)

	count, err := r.client.Incr(ctx, bucket)
	if err != nil {
		return false, fmt.Errorf("rate limit incr: %w", err)
	}
	if count == 1 {
		if err := r.client.Expire(ctx, bucket, window); err != nil {
			return false, fmt.Errorf("rate limit expire: %w", err)
		}
	}
	return count <= int64(limit), nil
}

// SubmitKey buckets prompt submissions per caller (user id or remote address).
func SubmitKey(caller string) string {
	return "rate_limit:submit:" + caller
}
