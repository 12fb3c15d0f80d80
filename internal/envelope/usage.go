// Copyright 2026 The CascadeHQ Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package envelope

import (
	"sync"
	"sync/atomic"

	"github.com/cascadehq/cascade-engine/internal/tier"
)

// Statistics is the in-memory usage accumulator backing GET /metrics.
// The cascade handler publishes into it per request; Snapshot serves a
// consistent copy.
type Statistics struct {
	totalRequests int64
	failureCount  int64

	mu         sync.Mutex
	byTier     map[tier.Tier]int64
	byFunction map[string]int64
}

// NewStatistics constructs an empty accumulator.
func NewStatistics() *Statistics {
	return &Statistics{
		byTier:     make(map[tier.Tier]int64),
		byFunction: make(map[string]int64),
	}
}

// RecordSuccess records one successful cascade completion.
func (s *Statistics) RecordSuccess(functionID string, successTier tier.Tier) {
	atomic.AddInt64(&s.totalRequests, 1)
	s.mu.Lock()
	s.byTier[successTier]++
	s.byFunction[functionID]++
	s.mu.Unlock()
}

// RecordFailure records one cascade that did not reach a successful tier.
func (s *Statistics) RecordFailure(functionID string) {
	atomic.AddInt64(&s.totalRequests, 1)
	atomic.AddInt64(&s.failureCount, 1)
	s.mu.Lock()
	s.byFunction[functionID]++
	s.mu.Unlock()
}

// StatisticsSnapshot is the point-in-time view GET /metrics serializes.
type StatisticsSnapshot struct {
	TotalRequests int64               `json:"totalRequests"`
	FailureCount  int64               `json:"failureCount"`
	ByTier        map[tier.Tier]int64 `json:"byTier"`
	ByFunction    map[string]int64    `json:"byFunction,omitempty"`
}

// Snapshot returns a consistent copy of the accumulated counters, scoped to
// functionID when non-empty.
func (s *Statistics) Snapshot(functionID string) StatisticsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	byTier := make(map[tier.Tier]int64, len(s.byTier))
	for t, n := range s.byTier {
		byTier[t] = n
	}

	snap := StatisticsSnapshot{
		TotalRequests: atomic.LoadInt64(&s.totalRequests),
		FailureCount:  atomic.LoadInt64(&s.failureCount),
		ByTier:        byTier,
	}
	if functionID != "" {
		snap.ByFunction = map[string]int64{functionID: s.byFunction[functionID]}
	}
	return snap
}
