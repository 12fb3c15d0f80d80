// Copyright 2026 The CascadeHQ Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cascade

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cascadehq/cascade-engine/internal/authz"
	"github.com/cascadehq/cascade-engine/internal/cerrors"
	"github.com/cascadehq/cascade-engine/internal/tier"
)

// runParallel starts every tier in order concurrently; the first to
// complete successfully wins and the rest are cancelled
// Parallel mode disables fallback: each tier only ever sees the original
// input.
func (e *Executor) runParallel(ctx context.Context, def Definition, order []tier.Tier, input map[string]any, principal *authz.Principal, opts Options) (Result, error) {
	var (
		mu               sync.Mutex
		attempts         []timedAttempt
		skippedTiers     []tier.Tier
		tierDurations    = make(map[tier.Tier]int64)
		cascadeStart     = time.Now()
		hasTotalDeadline = opts.TotalTimeout > 0
		totalDeadline    = cascadeStart.Add(opts.TotalTimeout)
	)

	runCtx, cancelAll := context.WithCancel(ctx)
	defer cancelAll()

	var winner *Result
	g, gctx := errgroup.WithContext(runCtx)

	for _, t := range order {
		t := t
		g.Go(func() error {
			if err := e.guard.Check(principal, t); err != nil {
				mu.Lock()
				attempts = append(attempts, timedAttempt{start: time.Now(), a: Attempt{
					Tier: t, Attempt: 1, Status: StatusFailed, Error: err.Error(), Timestamp: time.Now(),
				}})
				mu.Unlock()
				return nil
			}

			deadline := effectiveDeadline(opts.TierTimeouts[t], totalDeadline, hasTotalDeadline)
			if deadline <= 0 {
				mu.Lock()
				// Skipped attempts carry neither result nor error.
				attempts = append(attempts, timedAttempt{start: time.Now(), a: Attempt{
					Tier: t, Attempt: 1, Status: StatusSkipped, Timestamp: time.Now(),
				}})
				skippedTiers = append(skippedTiers, t)
				mu.Unlock()
				return nil
			}

			attemptStart := time.Now()
			tierCtx, cancel := context.WithTimeout(gctx, deadline)
			defer cancel()

			output, err := def.Dispatcher.Dispatch(tierCtx, t, def.Function, input, nil)
			duration := time.Since(attemptStart)

			mu.Lock()
			tierDurations[t] = duration.Milliseconds()
			if err == nil {
				attempts = append(attempts, timedAttempt{start: attemptStart, a: Attempt{
					Tier: t, Attempt: 1, Status: StatusCompleted, Result: output, DurationMs: duration.Milliseconds(), Timestamp: attemptStart,
				}})
				if winner == nil {
					winner = &Result{Output: output, SuccessTier: t}
					cancelAll()
				}
			} else {
				status := StatusFailed
				if tierCtx.Err() == context.DeadlineExceeded {
					status = StatusTimeout
				}
				attempts = append(attempts, timedAttempt{start: attemptStart, a: Attempt{
					Tier: t, Attempt: 1, Status: status, Error: err.Error(), DurationMs: duration.Milliseconds(), Timestamp: attemptStart,
				}})
			}
			mu.Unlock()
			return nil
		})
	}

	_ = g.Wait()

	result := finalize(attempts, tierDurations, skippedTiers, len(order)-1, cascadeStart)
	if winner != nil {
		result.Output = winner.Output
		result.SuccessTier = winner.SuccessTier
		return result, nil
	}
	return result, cerrors.New(cerrors.CascadeExhausted, "all tiers exhausted", map[string]any{"history": result.History})
}
