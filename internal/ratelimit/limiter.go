package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "rate_limit:"

// Limiter counts hits per key inside a fixed window. The increment, the
// window-expiry set and the TTL read are issued as one MULTI/EXEC unit so a
// counter can neither outlive its window nor reset mid-window.
type Limiter struct {
	rdb *redis.Client
}

func NewLimiter(rdb *redis.Client) *Limiter {
	return &Limiter{rdb: rdb}
}

// Hit increments the counter for key and returns the new count and the time
// remaining until the window resets. The expiry is only set when the key has
// none yet, so the first hit of a window fixes its end.
func (l *Limiter) Hit(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	pipe := l.rdb.TxPipeline()
	incr := pipe.Incr(ctx, keyPrefix+key)
	pipe.ExpireNX(ctx, keyPrefix+key, window)
	ttl := pipe.TTL(ctx, keyPrefix+key)

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, 0, err
	}

	return incr.Val(), ttl.Val(), nil
}
