// Copyright 2026 The CascadeHQ Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ratelimit

import (
	"container/heap"
	"context"
	"sync"
	"time"
)

// MemoryLimiter is an in-process Limiter backed by a mutex-guarded map.
// Windows are small structs copied out under the lock, so reads stay cheap
// without atomics.
type MemoryLimiter struct {
	mu      sync.Mutex
	windows map[string]*Window

	alarmMu  sync.Mutex
	alarmSet *expiryHeap
	timer    *time.Timer
	stop     chan struct{}
}

// NewMemoryLimiter constructs an empty limiter. Its alarm is armed when a
// window is created and re-schedules itself to fire at the next resetAt
// plus a one-second margin, bounding storage growth.
func NewMemoryLimiter() *MemoryLimiter {
	l := &MemoryLimiter{
		windows:  make(map[string]*Window),
		alarmSet: &expiryHeap{},
		stop:     make(chan struct{}),
	}
	heap.Init(l.alarmSet)
	return l
}

// Close stops the background alarm goroutine.
func (l *MemoryLimiter) Close() {
	l.alarmMu.Lock()
	defer l.alarmMu.Unlock()
	if l.timer != nil {
		l.timer.Stop()
	}
	select {
	case <-l.stop:
	default:
		close(l.stop)
	}
}

func (l *MemoryLimiter) Check(_ context.Context, key string, limit int, window time.Duration) (Result, error) {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok || !w.ResetAt.After(now) {
		return Result{Allowed: true, Remaining: limit, ResetAt: now.Add(window)}, nil
	}
	remaining := limit - w.Count
	if remaining < 0 {
		remaining = 0
	}
	return Result{Allowed: w.Count < limit, Remaining: remaining, ResetAt: w.ResetAt, Count: w.Count}, nil
}

func (l *MemoryLimiter) Increment(_ context.Context, key string, window time.Duration) (Result, error) {
	now := time.Now()

	l.mu.Lock()
	w, ok := l.windows[key]
	if !ok || !w.ResetAt.After(now) {
		w = &Window{Count: 1, ResetAt: now.Add(window)}
		l.windows[key] = w
		l.scheduleAlarm(w.ResetAt)
	} else {
		w.Count++
	}
	result := Result{Allowed: true, Count: w.Count, ResetAt: w.ResetAt}
	l.mu.Unlock()

	return result, nil
}

// CheckAndIncrement is the atomic combination: increment happens only when
// the request would be allowed, so a deny never consumes quota.
func (l *MemoryLimiter) CheckAndIncrement(_ context.Context, key string, limit int, window time.Duration) (Result, error) {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok || !w.ResetAt.After(now) {
		w = &Window{Count: 1, ResetAt: now.Add(window)}
		l.windows[key] = w
		l.scheduleAlarm(w.ResetAt)
		return Result{Allowed: true, Remaining: limit - 1, ResetAt: w.ResetAt, Count: w.Count}, nil
	}

	if w.Count >= limit {
		return Result{Allowed: false, Remaining: 0, ResetAt: w.ResetAt, Count: w.Count}, nil
	}
	w.Count++
	remaining := limit - w.Count
	if remaining < 0 {
		remaining = 0
	}
	return Result{Allowed: true, Remaining: remaining, ResetAt: w.ResetAt, Count: w.Count}, nil
}

func (l *MemoryLimiter) Reset(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.windows, key)
	return nil
}

// Cleanup removes every window with resetAt <= now, never deleting a live
// window.
func (l *MemoryLimiter) Cleanup(_ context.Context) (int, error) {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for k, w := range l.windows {
		if !w.ResetAt.After(now) {
			delete(l.windows, k)
			removed++
		}
	}
	return removed, nil
}

// expiryHeap is a min-heap of resetAt times, used only to pick the next
// alarm deadline; it never drives deletion directly (Cleanup owns that).
type expiryHeap []time.Time

func (h expiryHeap) Len() int           { return len(h) }
func (h expiryHeap) Less(i, j int) bool { return h[i].Before(h[j]) }
func (h expiryHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *expiryHeap) Push(x any)        { *h = append(*h, x.(time.Time)) }
func (h *expiryHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// scheduleAlarm records resetAt and, if it is the earliest pending
// deadline, (re)arms the timer to fire at resetAt plus a one-second
// margin. Must be called with l.mu held.
func (l *MemoryLimiter) scheduleAlarm(resetAt time.Time) {
	l.alarmMu.Lock()
	defer l.alarmMu.Unlock()

	heap.Push(l.alarmSet, resetAt)
	next := (*l.alarmSet)[0]
	delay := time.Until(next) + time.Second
	if delay < 0 {
		delay = 0
	}

	if l.timer != nil {
		l.timer.Stop()
	}
	l.timer = time.AfterFunc(delay, l.fireAlarm)
}

func (l *MemoryLimiter) fireAlarm() {
	select {
	case <-l.stop:
		return
	default:
	}

	_, _ = l.Cleanup(context.Background())

	l.alarmMu.Lock()
	for l.alarmSet.Len() > 0 && !(*l.alarmSet)[0].After(time.Now()) {
		heap.Pop(l.alarmSet)
	}
	var rearm bool
	var next time.Time
	if l.alarmSet.Len() > 0 {
		next = (*l.alarmSet)[0]
		rearm = true
	}
	l.alarmMu.Unlock()

	if rearm {
		l.alarmMu.Lock()
		delay := time.Until(next) + time.Second
		if delay < 0 {
			delay = 0
		}
		l.timer = time.AfterFunc(delay, l.fireAlarm)
		l.alarmMu.Unlock()
	}
}
