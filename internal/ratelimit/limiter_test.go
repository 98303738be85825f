package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/paysettle/internal/config"
)

func TestLimiterWithoutRedisAllows(t *testing.T) {
	limiter, err := NewLimiter(config.Config{}, nil)
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	if limiter.Enabled() {
		t.Fatalf("limiter without redis must be disabled")
	}
	res, err := limiter.Allow(context.Background(), EndpointSync, "10.0.0.1")
	if err != nil || !res.Allowed {
		t.Fatalf("expected allow, got %+v err=%v", res, err)
	}
}

func TestLimiterRejectsEmptyPolicy(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer client.Close()

	cfg := config.Config{Limits: config.LimitConfig{CheckoutRate: 1, CheckoutBurst: 5}}
	if _, err := NewLimiter(cfg, client); !errors.Is(err, ErrInvalidPolicy) {
		t.Fatalf("expected invalid policy, got %v", err)
	}
}

func TestNilLockerAndBucket(t *testing.T) {
	if NewResyncLock(nil) != nil {
		t.Fatalf("expected nil lock without client")
	}
	if NewTokenBucket(nil) != nil {
		t.Fatalf("expected nil bucket without client")
	}
	var bucket *TokenBucket
	if _, err := bucket.Allow(context.Background(), "k", Policy{Rate: 1, Burst: 1}); !errors.Is(err, ErrBucketUnavailable) {
		t.Fatalf("nil bucket must be unavailable, got %v", err)
	}
	var lock *ResyncLock
	if _, ok, err := lock.Acquire(context.Background(), 100001); ok || !errors.Is(err, ErrLockUnavailable) {
		t.Fatalf("nil lock must refuse to lock, got ok=%v err=%v", ok, err)
	}
	if err := lock.Release(context.Background(), 100001, "t"); err != nil {
		t.Fatalf("nil lock release: %v", err)
	}
}

func TestKeys(t *testing.T) {
	if got := ResyncLockKey(100001); got != "paysettle:resync:100001" {
		t.Fatalf("unexpected key %s", got)
	}
	if got := bucketKey(EndpointCheckout, " 10.0.0.1 "); got != "paysettle:ratelimit:checkout:10.0.0.1" {
		t.Fatalf("unexpected key %s", got)
	}
}

func TestParseReply(t *testing.T) {
	allowed, tokens, now, err := parseReply([]interface{}{int64(0), "0.25", int64(1717232400000)})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if allowed || tokens != 0.25 || now != 1717232400000 {
		t.Fatalf("unexpected reply %v %v %v", allowed, tokens, now)
	}
	if _, _, _, err := parseReply([]interface{}{int64(1)}); err == nil {
		t.Fatalf("expected short reply to fail")
	}
}

func TestDefaultBucketTTL(t *testing.T) {
	if got := defaultBucketTTL(0.5, 4); got != 16*time.Second {
		t.Fatalf("unexpected ttl %s", got)
	}
	if got := defaultBucketTTL(100, 1); got != time.Second {
		t.Fatalf("unexpected ttl %s", got)
	}
}
