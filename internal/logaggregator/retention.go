// Copyright 2026 The CascadeHQ Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package logaggregator

import (
	"context"
	"sort"
	"time"
)

// ApplyRetention deletes entries exceeding policy.MaxAge or outside the
// most-recent policy.MaxCount, scoped to policy.FunctionID when set, with
// per-level policies overriding the global MaxAge. It returns the number
// of entries deleted.
func (a *Aggregator) ApplyRetention(policy RetentionPolicy) int {
	now := time.Now().UTC()

	a.mu.Lock()
	defer a.mu.Unlock()

	functionIDs := []string{policy.FunctionID}
	if policy.FunctionID == "" {
		functionIDs = functionIDs[:0]
		for id := range a.byFunction {
			functionIDs = append(functionIDs, id)
		}
	}

	deleted := 0
	for _, fid := range functionIDs {
		entries := a.byFunction[fid]
		kept := make([]*Entry, 0, len(entries))

		sorted := append([]*Entry(nil), entries...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].Timestamp.Before(sorted[j].Timestamp) })

		for _, e := range sorted {
			maxAge := policy.MaxAge
			if lp, ok := policy.LevelPolicies[e.Level]; ok {
				maxAge = lp.MaxAge
			}
			if maxAge > 0 && now.Sub(e.Timestamp) > maxAge {
				deleted++
				continue
			}
			kept = append(kept, e)
		}

		if policy.MaxCount > 0 && len(kept) > policy.MaxCount {
			excess := len(kept) - policy.MaxCount
			deleted += excess
			kept = kept[excess:]
		}

		a.byFunction[fid] = kept
	}

	a.rebuildGlobalIndexLocked()
	return deleted
}

// rebuildGlobalIndexLocked regenerates a.all and a.byID from a.byFunction.
// Must be called with a.mu held.
func (a *Aggregator) rebuildGlobalIndexLocked() {
	var all []*Entry
	byID := make(map[string]*Entry)
	for _, entries := range a.byFunction {
		for _, e := range entries {
			all = append(all, e)
			byID[e.ID] = e
		}
	}
	a.all = all
	a.byID = byID
}

// ScheduleRetention installs a periodic task applying policy every
// interval. Installing a new policy cancels the previous one; at most one
// retention task exists at a time.
func (a *Aggregator) ScheduleRetention(policy RetentionPolicy, interval time.Duration) {
	a.retentionMu.Lock()
	defer a.retentionMu.Unlock()

	if a.retentionCancel != nil {
		a.retentionCancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.retentionCancel = cancel

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				a.ApplyRetention(policy)
			}
		}
	}()
}

// CancelRetention stops any installed retention task.
func (a *Aggregator) CancelRetention() {
	a.retentionMu.Lock()
	defer a.retentionMu.Unlock()
	if a.retentionCancel != nil {
		a.retentionCancel()
		a.retentionCancel = nil
	}
}
