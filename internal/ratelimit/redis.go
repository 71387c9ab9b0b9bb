package ratelimit

import (
    "context"
    "strings"
    "time"

    "github.com/redis/go-redis/v9"
)

// Redis counts requests with INCR on a per-key counter that expires with the
// window, so every replica pointed at the same Redis shares one quota.
type Redis struct {
    rdb    *redis.Client
    prefix string
    limit  int
    window time.Duration
}

type RedisOption func(*Redis)

func WithPrefix(prefix string) RedisOption {
    return func(r *Redis) { r.prefix = strings.Trim(prefix, ":") }
}

func NewRedis(rdb *redis.Client, limit int, window time.Duration, opts ...RedisOption) *Redis {
    if limit <= 0 {
        limit = DefaultLimit
    }
    if window <= 0 {
        window = DefaultWindow
    }
    r := &Redis{
        rdb:    rdb,
        prefix: "ratelimit",
        limit:  limit,
        window: window,
    }
    for _, opt := range opts {
        opt(r)
    }
    return r
}

func (r *Redis) Allow(ctx context.Context, key string) (Decision, error) {
    k := r.prefix + ":" + key

    pipe := r.rdb.Pipeline()
    incr := pipe.Incr(ctx, k)
    pttl := pipe.PTTL(ctx, k)
    if _, err := pipe.Exec(ctx); err != nil {
        return Decision{}, err
    }

    // first hit in the window, or a counter that lost its expiry
    ttl := pttl.Val()
    if ttl < 0 {
        if err := r.rdb.PExpire(ctx, k, r.window).Err(); err != nil {
            return Decision{}, err
        }
        ttl = r.window
    }

    now := time.Now()
    return decide(incr.Val(), r.limit, now.Add(ttl), now), nil
}
