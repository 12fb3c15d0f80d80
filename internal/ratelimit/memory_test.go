// Copyright 2026 The CascadeHQ Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestCheckAndIncrementSequence(t *testing.T) {
	l := NewMemoryLimiter()
	defer l.Close()
	ctx := context.Background()

	const limit = 3
	window := 100 * time.Millisecond

	wantRemaining := []int{2, 1, 0}
	for i, want := range wantRemaining {
		res, err := l.CheckAndIncrement(ctx, "k", limit, window)
		if err != nil {
			t.Fatal(err)
		}
		if !res.Allowed {
			t.Fatalf("call %d should be allowed", i+1)
		}
		if res.Remaining != want {
			t.Errorf("call %d remaining = %d, want %d", i+1, res.Remaining, want)
		}
	}

	denied, err := l.CheckAndIncrement(ctx, "k", limit, window)
	if err != nil {
		t.Fatal(err)
	}
	if denied.Allowed || denied.Remaining != 0 {
		t.Errorf("4th call = {allowed:%v remaining:%d}, want {false 0}", denied.Allowed, denied.Remaining)
	}
	firstResetAt := denied.ResetAt

	time.Sleep(150 * time.Millisecond)

	fresh, err := l.CheckAndIncrement(ctx, "k", limit, window)
	if err != nil {
		t.Fatal(err)
	}
	if !fresh.Allowed || fresh.Remaining != 2 {
		t.Errorf("post-expiry call = {allowed:%v remaining:%d}, want {true 2}", fresh.Allowed, fresh.Remaining)
	}
	if !fresh.ResetAt.After(firstResetAt) {
		t.Errorf("fresh window resetAt %v should be after the first window's %v", fresh.ResetAt, firstResetAt)
	}
}

func TestCheckDoesNotMutate(t *testing.T) {
	l := NewMemoryLimiter()
	defer l.Close()
	ctx := context.Background()

	window := time.Minute
	for i := 0; i < 5; i++ {
		res, err := l.Check(ctx, "k", 2, window)
		if err != nil {
			t.Fatal(err)
		}
		if !res.Allowed || res.Remaining != 2 {
			t.Fatalf("check %d on absent window = %+v, want allowed with full quota", i, res)
		}
	}

	if _, err := l.Increment(ctx, "k", window); err != nil {
		t.Fatal(err)
	}
	res, err := l.Check(ctx, "k", 2, window)
	if err != nil {
		t.Fatal(err)
	}
	if res.Count != 1 || res.Remaining != 1 {
		t.Errorf("check after one increment = %+v", res)
	}
}

func TestDenyDoesNotConsume(t *testing.T) {
	l := NewMemoryLimiter()
	defer l.Close()
	ctx := context.Background()

	window := time.Minute
	if _, err := l.CheckAndIncrement(ctx, "k", 1, window); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 10; i++ {
		res, err := l.CheckAndIncrement(ctx, "k", 1, window)
		if err != nil {
			t.Fatal(err)
		}
		if res.Allowed {
			t.Fatalf("call %d should be denied", i)
		}
		if res.Count != 1 {
			t.Fatalf("denied call mutated count to %d", res.Count)
		}
	}
}

func TestResetAtMonotonicWithinWindow(t *testing.T) {
	l := NewMemoryLimiter()
	defer l.Close()
	ctx := context.Background()

	window := time.Minute
	first, err := l.CheckAndIncrement(ctx, "k", 10, window)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		res, err := l.CheckAndIncrement(ctx, "k", 10, window)
		if err != nil {
			t.Fatal(err)
		}
		if !res.ResetAt.Equal(first.ResetAt) {
			t.Fatalf("resetAt advanced within a live window: %v -> %v", first.ResetAt, res.ResetAt)
		}
	}
}

func TestReset(t *testing.T) {
	l := NewMemoryLimiter()
	defer l.Close()
	ctx := context.Background()

	if _, err := l.CheckAndIncrement(ctx, "k", 1, time.Minute); err != nil {
		t.Fatal(err)
	}
	if err := l.Reset(ctx, "k"); err != nil {
		t.Fatal(err)
	}
	res, err := l.CheckAndIncrement(ctx, "k", 1, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Allowed {
		t.Error("call after reset should see a fresh window")
	}
}

func TestCleanup(t *testing.T) {
	l := NewMemoryLimiter()
	defer l.Close()
	ctx := context.Background()

	if _, err := l.Increment(ctx, "expired", 10*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if _, err := l.Increment(ctx, "live", time.Minute); err != nil {
		t.Fatal(err)
	}
	time.Sleep(20 * time.Millisecond)

	removed, err := l.Cleanup(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if removed != 1 {
		t.Errorf("cleanup removed %d windows, want 1", removed)
	}

	res, err := l.Check(ctx, "live", 5, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if res.Count != 1 {
		t.Error("cleanup must never delete a live window")
	}
}
