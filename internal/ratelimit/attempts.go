package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/abrahamoflondon/innercircle/internal/config"
)

const keyVerifyAttempts = "innercircle:verify:ip:%s"

// AttemptLimiter throttles verification attempts per client address, whether
// or not the presented key turns out to be valid.
type AttemptLimiter struct {
	bucket *TokenBucket
	limit  Limit
}

func NewAttemptLimiter(cfg config.Config, bucket *TokenBucket) *AttemptLimiter {
	limit := PerWindow(cfg.InnerCircle.MaxVerifyAttemptsPerMinute, time.Minute)
	if bucket == nil || !limit.valid() {
		return nil
	}
	return &AttemptLimiter{bucket: bucket, limit: limit}
}

func (l *AttemptLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

func (l *AttemptLimiter) Limit() Limit {
	if l == nil {
		return Limit{}
	}
	return l.limit
}

func (l *AttemptLimiter) Allow(ctx context.Context, clientIP string) (Result, error) {
	if !l.Enabled() {
		return Result{Allowed: true}, nil
	}
	return l.bucket.Take(ctx, fmt.Sprintf(keyVerifyAttempts, strings.TrimSpace(clientIP)), l.limit)
}
