package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/abrahamoflondon/innercircle/internal/config"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

const keyUnlock = "innercircle:unlock:%s"

// NewRedisClient returns nil when Redis is not configured; limiter and lock
// consumers treat a nil client as disabled.
func NewRedisClient(lc fx.Lifecycle, cfg config.Config) (*redis.Client, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}
	addr := strings.TrimSpace(cfg.Redis.Addr)
	if addr == "" {
		return nil, errors.New("redis addr is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(context.Context) error {
				return client.Close()
			},
		})
	}
	return client, nil
}

// UnlockLimiter caps successful unlocks per key per day with a token bucket
// that refills continuously over 24 hours.
type UnlockLimiter struct {
	bucket *TokenBucket
	limit  Limit
}

func NewUnlockLimiter(cfg config.Config, bucket *TokenBucket) *UnlockLimiter {
	limit := PerWindow(cfg.InnerCircle.MaxUnlocksPerDay, 24*time.Hour)
	if bucket == nil || !limit.valid() {
		return nil
	}
	return &UnlockLimiter{bucket: bucket, limit: limit}
}

func (l *UnlockLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

// Allow consumes one unlock for the key fingerprint. A disabled limiter always
// allows; a Redis failure is returned to the caller.
func (l *UnlockLimiter) Allow(ctx context.Context, fingerprint string) (bool, error) {
	if !l.Enabled() {
		return true, nil
	}
	result, err := l.bucket.Take(ctx, fmt.Sprintf(keyUnlock, strings.TrimSpace(fingerprint)), l.limit)
	if err != nil {
		return false, err
	}
	return result.Allowed, nil
}
