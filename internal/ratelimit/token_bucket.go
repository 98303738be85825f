package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// refillAndTake refills the bucket from the redis clock and takes one token.
// Tokens are returned as a string so fractional balances survive the reply.
const refillAndTake = `
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local ttl = tonumber(ARGV[3])

local t = redis.call("TIME")
local now = (t[1] * 1000) + math.floor(t[2] / 1000)

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
if tokens >= 1 then
  allowed = 1
  tokens = tokens - 1
end

redis.call("HSET", KEYS[1], "tokens", tostring(tokens), "ts", now)
redis.call("PEXPIRE", KEYS[1], ttl)

return {allowed, tostring(tokens), now}
`

var (
	ErrBucketUnavailable = errors.New("rate_limiter_unavailable")
	ErrInvalidPolicy     = errors.New("invalid_rate_limit_policy")
)

// Policy is a refill rate in tokens per second and a bucket size.
type Policy struct {
	Rate  float64
	Burst int
}

func (p Policy) valid() bool {
	return p.Rate > 0 && p.Burst > 0
}

// ttl keeps an idle bucket around for twice the time it needs to refill.
func (p Policy) ttl() time.Duration {
	return defaultBucketTTL(p.Rate, p.Burst)
}

type RateLimitResult struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetTime  time.Time
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
		script: redis.NewScript(refillAndTake),
	}
}

func (t *TokenBucket) Allow(ctx context.Context, key string, policy Policy) (*RateLimitResult, error) {
	if t == nil || t.client == nil {
		return nil, ErrBucketUnavailable
	}
	if key == "" || !policy.valid() {
		return nil, ErrInvalidPolicy
	}

	reply, err := t.script.Run(ctx, t.client, []string{key},
		policy.Rate, policy.Burst, policy.ttl().Milliseconds(),
	).Slice()
	if err != nil {
		return nil, err
	}
	allowed, tokens, nowMillis, err := parseReply(reply)
	if err != nil {
		return nil, err
	}

	var retryAfter time.Duration
	if !allowed {
		retryAfter = time.Duration((1 - tokens) / policy.Rate * float64(time.Second))
	}
	return &RateLimitResult{
		Allowed:    allowed,
		Limit:      policy.Burst,
		Remaining:  int(math.Floor(tokens)),
		ResetTime:  time.UnixMilli(nowMillis).Add(retryAfter),
		RetryAfter: retryAfter,
	}, nil
}

func parseReply(reply []interface{}) (allowed bool, tokens float64, nowMillis int64, err error) {
	if len(reply) != 3 {
		return false, 0, 0, fmt.Errorf("rate limit script returned %d values", len(reply))
	}
	flag, ok := reply[0].(int64)
	if !ok {
		return false, 0, 0, fmt.Errorf("rate limit script: unexpected flag %T", reply[0])
	}
	raw, ok := reply[1].(string)
	if !ok {
		return false, 0, 0, fmt.Errorf("rate limit script: unexpected tokens %T", reply[1])
	}
	tokens, err = strconv.ParseFloat(raw, 64)
	if err != nil {
		return false, 0, 0, fmt.Errorf("rate limit script: %w", err)
	}
	nowMillis, ok = reply[2].(int64)
	if !ok {
		return false, 0, 0, fmt.Errorf("rate limit script: unexpected time %T", reply[2])
	}
	return flag == 1, tokens, nowMillis, nil
}

func defaultBucketTTL(rate float64, burst int) time.Duration {
	if rate <= 0 || burst <= 0 {
		return time.Second
	}
	seconds := math.Max(1, math.Ceil(float64(burst)/rate*2))
	return time.Duration(seconds) * time.Second
}
