// Copyright 2026 The CascadeHQ Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisLimiter is a distributed Limiter over go-redis/v8. The window model
// is a fixed-window counter, so every read-or-create-plus-conditional-
// increment sequence is expressed as one atomic Lua EVAL: a single Redis
// round trip, no race between the read and the write.
type RedisLimiter struct {
	client    *redis.Client
	namespace string
}

// NewRedisLimiter constructs a limiter over an already-configured client.
func NewRedisLimiter(client *redis.Client, namespace string) *RedisLimiter {
	if namespace == "" {
		namespace = "cascade:ratelimit"
	}
	return &RedisLimiter{client: client, namespace: namespace}
}

func (l *RedisLimiter) redisKey(key string) string {
	return fmt.Sprintf("%s:%s", l.namespace, key)
}

// checkAndIncrementScript atomically reads-or-creates the window and
// conditionally increments it. KEYS[1] is the window key; ARGV[1] is the
// limit, ARGV[2] the window length in milliseconds, ARGV[3] the current
// time in unix milliseconds.
//
// Returns {allowed(0/1), count, resetAt}.
const checkAndIncrementScript = `
local key = KEYS[1]
local limit = tonumber(ARGV[1])
local windowMs = tonumber(ARGV[2])
local now = tonumber(ARGV[3])

local count = tonumber(redis.call("HGET", key, "count"))
local resetAt = tonumber(redis.call("HGET", key, "resetAt"))

if resetAt == nil or resetAt <= now then
 count = 0
 resetAt = now + windowMs
end

local allowed = 0
if count < limit then
 allowed = 1
 count = count + 1
end

redis.call("HSET", key, "count", count, "resetAt", resetAt)
redis.call("PEXPIREAT", key, resetAt + 1000)

return {allowed, count, resetAt}
`

const incrementScript = `
local key = KEYS[1]
local windowMs = tonumber(ARGV[1])
local now = tonumber(ARGV[2])

local count = tonumber(redis.call("HGET", key, "count"))
local resetAt = tonumber(redis.call("HGET", key, "resetAt"))

if resetAt == nil or resetAt <= now then
 count = 1
 resetAt = now + windowMs
else
 count = count + 1
end

redis.call("HSET", key, "count", count, "resetAt", resetAt)
redis.call("PEXPIREAT", key, resetAt + 1000)

return {count, resetAt}
`

func (l *RedisLimiter) Check(ctx context.Context, key string, limit int, window time.Duration) (Result, error) {
	now := time.Now()
	res, err := l.client.HMGet(ctx, l.redisKey(key), "count", "resetAt").Result()
	if err != nil {
		return Result{}, fmt.Errorf("cascade: redis rate limit check: %w", err)
	}

	count, resetAtMs, ok := parseWindowFields(res)
	if !ok || resetAtMs <= now.UnixMilli() {
		return Result{Allowed: true, Remaining: limit, ResetAt: now.Add(window)}, nil
	}
	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	return Result{
		Allowed:   count < limit,
		Remaining: remaining,
		ResetAt:   time.UnixMilli(resetAtMs),
		Count:     count,
	}, nil
}

func (l *RedisLimiter) Increment(ctx context.Context, key string, window time.Duration) (Result, error) {
	now := time.Now()
	res, err := l.client.Eval(ctx, incrementScript, []string{l.redisKey(key)},
		window.Milliseconds(), now.UnixMilli()).Result()
	if err != nil {
		return Result{}, fmt.Errorf("cascade: redis rate limit increment: %w", err)
	}
	vals := res.([]any)
	count := int(vals[0].(int64))
	resetAt := vals[1].(int64)
	return Result{Allowed: true, Count: count, ResetAt: time.UnixMilli(resetAt)}, nil
}

func (l *RedisLimiter) CheckAndIncrement(ctx context.Context, key string, limit int, window time.Duration) (Result, error) {
	now := time.Now()
	res, err := l.client.Eval(ctx, checkAndIncrementScript, []string{l.redisKey(key)},
		limit, window.Milliseconds(), now.UnixMilli()).Result()
	if err != nil {
		return Result{}, fmt.Errorf("cascade: redis rate limit checkAndIncrement: %w", err)
	}
	vals := res.([]any)
	allowed := vals[0].(int64) == 1
	count := int(vals[1].(int64))
	resetAt := vals[2].(int64)
	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	return Result{Allowed: allowed, Remaining: remaining, ResetAt: time.UnixMilli(resetAt), Count: count}, nil
}

func (l *RedisLimiter) Reset(ctx context.Context, key string) error {
	if err := l.client.Del(ctx, l.redisKey(key)).Err(); err != nil {
		return fmt.Errorf("cascade: redis rate limit reset: %w", err)
	}
	return nil
}

// Cleanup is a no-op for the Redis backend: PEXPIREAT on every write
// already bounds storage via Redis's own key expiry.
func (l *RedisLimiter) Cleanup(_ context.Context) (int, error) {
	return 0, nil
}

func parseWindowFields(res []any) (count int, resetAtMs int64, ok bool) {
	if len(res) != 2 || res[0] == nil || res[1] == nil {
		return 0, 0, false
	}
	countStr, _ := res[0].(string)
	resetStr, _ := res[1].(string)
	var c, r int64
	if _, err := fmt.Sscan(countStr, &c); err != nil {
		return 0, 0, false
	}
	if _, err := fmt.Sscan(resetStr, &r); err != nil {
		return 0, 0, false
	}
	return int(c), r, true
}
