package server

import (
	"context"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/abrahamoflondon/innercircle/internal/observability/logger"
	obsmetrics "github.com/abrahamoflondon/innercircle/internal/observability/metrics"
	"github.com/abrahamoflondon/innercircle/internal/ratelimit"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const rateLimitReasonVerifyAttempts = "verify-attempts"

type attemptLimiter interface {
	Enabled() bool
	Allow(ctx context.Context, clientIP string) (ratelimit.Result, error)
}

// VerifyAttemptRateLimit caps key verification attempts per client address.
// A limiter outage rejects the attempt rather than letting guesses through.
func (s *Server) VerifyAttemptRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.allowVerifyAttempt(c) {
			return
		}
		c.Next()
	}
}

// allowVerifyAttempt charges one attempt to the client address. It aborts the
// request and reports false when the attempt is refused.
func (s *Server) allowVerifyAttempt(c *gin.Context) bool {
	if s.attempts == nil || !s.attempts.Enabled() {
		return true
	}

	endpoint := normalizeRateLimitEndpoint(c)
	ctx := c.Request.Context()

	result, err := s.attempts.Allow(ctx, c.ClientIP())
	if err != nil {
		logger.FromContext(ctx).Warn("verify attempt rate limit check failed", zap.Error(err))
		c.Set(contextOutcomeKey, outcomeUnavailable)
		AbortWithError(c, ErrServiceUnavailable)
		return false
	}
	if !result.Allowed {
		denyRateLimit(c, endpoint, rateLimitReasonVerifyAttempts, result.RetryAfter, s.obsMetrics)
		return false
	}

	recordRateLimitAllowed(ctx, endpoint, s.obsMetrics)
	return true
}

func denyRateLimit(c *gin.Context, endpoint, reason string, retryAfter time.Duration, metrics *obsmetrics.Metrics) {
	ctx := c.Request.Context()
	logger.FromContext(ctx).Warn("rate limit exceeded",
		zap.String("reason", reason),
		zap.String("endpoint", endpoint),
	)
	recordRateLimitDenied(ctx, endpoint, reason, metrics)

	c.Set(contextOutcomeKey, reason)
	c.Header("Retry-After", retryAfterSeconds(retryAfter))
	c.Header("X-Rate-Limited-Reason", reason)
	AbortWithError(c, ErrRateLimited)
}

func retryAfterSeconds(d time.Duration) string {
	seconds := int64(math.Ceil(d.Seconds()))
	if seconds < 1 {
		seconds = 1
	}
	return strconv.FormatInt(seconds, 10)
}

func recordRateLimitAllowed(ctx context.Context, endpoint string, metrics *obsmetrics.Metrics) {
	if metrics == nil {
		return
	}
	metrics.RecordRateLimitAllowed(ctx, endpoint)
}

func recordRateLimitDenied(ctx context.Context, endpoint, reason string, metrics *obsmetrics.Metrics) {
	if metrics == nil {
		return
	}
	metrics.RecordRateLimitDenied(ctx, endpoint, reason)
}

func normalizeRateLimitEndpoint(c *gin.Context) string {
	if c == nil {
		return "unknown"
	}
	endpoint := strings.TrimSpace(c.FullPath())
	if endpoint == "" {
		endpoint = strings.TrimSpace(c.Request.URL.Path)
	}
	if endpoint == "" {
		endpoint = "unknown"
	}
	return endpoint
}
