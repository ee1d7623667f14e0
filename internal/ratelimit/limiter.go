// Package ratelimit caps how often a subject may call the mutating API routes.
package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "tryonflow:ratelimit"

type Decision struct {
	Allowed    bool
	Remaining  int64
	RetryAfter time.Duration
}

// RedisWindow is a fixed-window counter. The first request of a window
// creates the key and arms its expiry; every request increments it.
type RedisWindow struct {
	client    redis.UniversalClient
	limit     int64
	window    time.Duration
	keyPrefix string
}

func NewRedisWindow(client redis.UniversalClient, limit int, window time.Duration, keyPrefix string) (*RedisWindow, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive")
	}
	if window < time.Millisecond {
		return nil, fmt.Errorf("window must be at least 1ms")
	}
	if strings.TrimSpace(keyPrefix) == "" {
		keyPrefix = defaultKeyPrefix
	}

	return &RedisWindow{
		client:    client,
		limit:     int64(limit),
		window:    window,
		keyPrefix: keyPrefix,
	}, nil
}

func (l *RedisWindow) Allow(ctx context.Context, subject string) (Decision, error) {
	key := l.key(subject)

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	ttl := pipe.PTTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return Decision{}, fmt.Errorf("increment window counter: %w", err)
	}

	remaining := ttl.Val()
	// A negative TTL means the key has no expiry yet: either this request
	// opened the window or an earlier PEXPIRE was lost.
	if remaining < 0 {
		if err := l.client.PExpire(ctx, key, l.window).Err(); err != nil {
			return Decision{}, fmt.Errorf("arm window expiry: %w", err)
		}
		remaining = l.window
	}

	return decide(incr.Val(), l.limit, remaining), nil
}

func (l *RedisWindow) key(subject string) string {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		subject = "anonymous"
	}
	return l.keyPrefix + ":" + subject
}

func decide(count, limit int64, ttl time.Duration) Decision {
	if count <= limit {
		return Decision{Allowed: true, Remaining: limit - count}
	}
	return Decision{Allowed: false, Remaining: 0, RetryAfter: ttl}
}
