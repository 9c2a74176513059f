package ratelimit

import (
	"context"
	"errors"
	"math"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

var (
	ErrNotConfigured = errors.New("rate_limiter_not_configured")
	ErrInvalidLimit  = errors.New("invalid_rate_limit")
	ErrBadReply      = errors.New("invalid_rate_limit_reply")
)

// Refill and spend in one round trip. The wait until the next whole token is
// computed server-side from the unfloored balance.
const tokenBucketScript = `
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local ttl = tonumber(ARGV[3])

local clock = redis.call("TIME")
local now = (clock[1] * 1000) + math.floor(clock[2] / 1000)

local state = redis.call("HMGET", KEYS[1], "tokens", "ts")
local tokens = tonumber(state[1])
local ts = tonumber(state[2])

if tokens == nil then
  tokens = burst
else
  local elapsed = math.max(0, now - ts)
  tokens = math.min(burst, tokens + (elapsed / 1000) * rate)
end

local allowed = 0
local wait = 0
if tokens >= 1 then
  allowed = 1
  tokens = tokens - 1
else
  wait = math.ceil(((1 - tokens) / rate) * 1000)
end

redis.call("HSET", KEYS[1], "tokens", tostring(tokens), "ts", now)
redis.call("PEXPIRE", KEYS[1], ttl)

return {allowed, math.floor(tokens), wait}
`

// Limit is a bucket refilling at Rate tokens per second up to Burst.
type Limit struct {
	Rate  float64
	Burst int
}

// PerWindow spreads n tokens evenly over window, starting full.
func PerWindow(n int, window time.Duration) Limit {
	if n <= 0 || window <= 0 {
		return Limit{}
	}
	return Limit{Rate: float64(n) / window.Seconds(), Burst: n}
}

func (l Limit) valid() bool {
	return l.Rate > 0 && l.Burst > 0
}

// ttl keeps idle buckets around for twice their full refill time.
func (l Limit) ttl() time.Duration {
	if !l.valid() {
		return time.Second
	}
	seconds := math.Ceil((float64(l.Burst) / l.Rate) * 2)
	if seconds < 1 {
		seconds = 1
	}
	return time.Duration(seconds) * time.Second
}

type Result struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

type TokenBucket struct {
	client *redis.Client
	script *redis.Script
}

func NewTokenBucket(client *redis.Client) *TokenBucket {
	if client == nil {
		return nil
	}
	return &TokenBucket{
		client: client,
		script: redis.NewScript(tokenBucketScript),
	}
}

// Take spends one token from the bucket at key. Errors never allow.
func (t *TokenBucket) Take(ctx context.Context, key string, limit Limit) (Result, error) {
	if t == nil || t.client == nil {
		return Result{}, ErrNotConfigured
	}
	if key == "" || !limit.valid() {
		return Result{}, ErrInvalidLimit
	}

	reply, err := t.script.Run(ctx, t.client, []string{key},
		limit.Rate,
		limit.Burst,
		limit.ttl().Milliseconds(),
	).Int64Slice()
	if err != nil {
		return Result{}, err
	}
	if len(reply) != 3 {
		return Result{}, ErrBadReply
	}

	return Result{
		Allowed:    reply[0] == 1,
		Remaining:  int(reply[1]),
		RetryAfter: time.Duration(reply[2]) * time.Millisecond,
	}, nil
}

// String renders a limit for logs, e.g. "20/1m0s".
func (l Limit) String() string {
	if !l.valid() {
		return "disabled"
	}
	window := time.Duration(float64(l.Burst) / l.Rate * float64(time.Second)).Round(time.Second)
	return strconv.Itoa(l.Burst) + "/" + window.String()
}
