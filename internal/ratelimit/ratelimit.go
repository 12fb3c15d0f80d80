// Copyright 2026 The CascadeHQ Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package ratelimit implements the distributed sliding-window (fixed-window
// counter) rate limiter, sitting on the cascade's hot path.
package ratelimit

import (
	"context"
	"time"
)

// Window is the {count, resetAt} pair tracked per key.
type Window struct {
	Count   int
	ResetAt time.Time
}

// Result is the outcome of a Check or Increment call.
type Result struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
	Count     int
}

// Limiter is the rate-limit contract: check, increment, their
// atomic combination, reset, and cleanup, over a keyed fixed-window
// counter table.
type Limiter interface {
	Check(ctx context.Context, key string, limit int, window time.Duration) (Result, error)
	Increment(ctx context.Context, key string, window time.Duration) (Result, error)
	CheckAndIncrement(ctx context.Context, key string, limit int, window time.Duration) (Result, error)
	Reset(ctx context.Context, key string) error
	Cleanup(ctx context.Context) (int, error)
}
