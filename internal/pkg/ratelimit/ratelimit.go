package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/uproot-labs/uproot/internal/pkg/cache"
)

// Allow increments the counter stored under key and reports whether the
// caller is still within limit for the current window. The counter lives in
// Redis so the decision holds across multiple process instances. On cache
// errors the request is allowed; rate limiting is protection, not a
// correctness dependency.
func Allow(ctx context.Context, key string, limit int, window time.Duration) bool {
	cli := cache.GetClient()
	if cli == nil {
		return true
	}

	n, err := cli.Incr(ctx, key).Result()
	if err != nil {
		log.Warnf("rate limit incr failed for %s: %v", key, err)
		return true
	}
	if n == 1 {
		if err := cli.Expire(ctx, key, window).Err(); err != nil {
			log.Warnf("rate limit expire failed for %s: %v", key, err)
		}
	}
	return n <= int64(limit)
}

// Key builds the canonical counter key for an action and identifier.
func Key(action, identifier string) string {
	return fmt.Sprintf("rate:%s:%s", action, identifier)
}
