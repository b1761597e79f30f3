package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

// RateLimiter counts hits per key in fixed windows. Each window gets its own
// redis key, so a counter whose Expire failed still stops mattering once the
// window is over.
type RateLimiter struct {
	client RedisClient
	now    func() time.Time
}

func NewRateLimiter(client RedisClient) *RateLimiter {
	return &RateLimiter{client: client, now: time.Now}
}

// Allow records one hit for key and reports whether it is within limit for
// the current window.
func (r *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if window <= 0 || limit <= 0 {
		return true, nil
	}
	bucket := windowKey(key, r.now(), window)

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

func windowKey(key string, at time.Time, window time.Duration) string {
	return key + ":" + strconv.FormatInt(at.UnixNano()/int64(window), 10)
}

// UserCommandKey scopes a limit to one Telegram user and command.
func UserCommandKey(userID int64, command string) string {
	return fmt.Sprintf("ratelimit:tg:%d:%s", userID, command)
}
