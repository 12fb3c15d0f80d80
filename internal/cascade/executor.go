// Copyright 2026 The CascadeHQ Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cascade

import (
	"context"
	"sort"
	"time"

	"github.com/cascadehq/cascade-engine/internal/authz"
	"github.com/cascadehq/cascade-engine/internal/cerrors"
	"github.com/cascadehq/cascade-engine/internal/classifier"
	"github.com/cascadehq/cascade-engine/internal/dispatcher"
	"github.com/cascadehq/cascade-engine/internal/metadata"
	"github.com/cascadehq/cascade-engine/internal/tier"
)

// Definition assembles everything one cascade invocation needs. The
// tier→handler map is represented by the Dispatcher's own
// installed-executor registry.
type Definition struct {
	Function   metadata.Function
	Dispatcher *dispatcher.Dispatcher
	Options    Options
}

// Executor drives the cascade state machine. It is safe for concurrent use
// across invocations; all per-invocation state lives on the stack of Run.
type Executor struct {
	guard      *authz.Guard
	classifier *classifier.Classifier
}

// New constructs an Executor. classifier may be nil if callers never pass
// startTier "auto".
func New(guard *authz.Guard, cls *classifier.Classifier) *Executor {
	if guard == nil {
		guard = authz.NewGuard()
	}
	return &Executor{guard: guard, classifier: cls}
}

// timedAttempt is an Attempt plus the wall-clock start time used to sort
// the final history by start order.
type timedAttempt struct {
	start time.Time
	a     Attempt
}

// Run executes def against input for principal (nil disables
// authorization), returning the cascade Result. Result.History is populated
// whenever at least one tier was reached, including on a 403/422 outcome; a
// failed auto classification or an empty tier order returns an empty Result.
// err is non-nil exactly when the cascade did not reach a successful tier.
func (e *Executor) Run(ctx context.Context, def Definition, input map[string]any, principal *authz.Principal) (Result, error) {
	opts := def.Options
	if opts.TierTimeouts == nil {
		opts.TierTimeouts = DefaultTierTimeouts()
	}

	startTier := opts.StartTier
	var classification *classifier.Decision
	if startTier == tier.Auto || startTier == "" {
		resolved, decision, err := e.resolveAuto(ctx, def.Function)
		if err != nil {
			return Result{}, err
		}
		startTier = resolved
		classification = &decision
	}

	order := buildOrder(def.Dispatcher, startTier, opts.SkipTiers)
	if len(order) == 0 {
		return Result{}, cerrors.New(cerrors.CascadeExhausted, "no tiers available after filtering", map[string]any{"reason": "NO_TIERS_AVAILABLE"})
	}

	var result Result
	var err error
	if opts.EnableParallel {
		result, err = e.runParallel(ctx, def, order, input, principal, opts)
	} else {
		result, err = e.runSerial(ctx, def, order, input, principal, opts)
	}

	if classification != nil {
		result.AutoClassified = true
		result.Classification = classification
	}
	return result, err
}

func (e *Executor) resolveAuto(ctx context.Context, fn metadata.Function) (tier.Tier, classifier.Decision, error) {
	if e.classifier == nil {
		return tier.Code, classifier.Decision{Type: tier.Code, Reasoning: "no classifier installed"}, nil
	}
	decision, err := e.classifier.Classify(ctx, classifier.Request{
		FunctionID:  fn.ID,
		Description: fn.EffectiveDescription(),
		InputSchema: fn.InputSchema,
	})
	if err != nil {
		return tier.Code, classifier.Decision{}, cerrors.New(cerrors.InternalError, "classification failed", map[string]any{"cause": err.Error()})
	}
	return decision.Type, decision, nil
}

// buildOrder computes the canonical tier sequence filtered to installed
// handlers, trimmed to start at startTier, with skipTiers removed.
func buildOrder(d *dispatcher.Dispatcher, startTier tier.Tier, skip []tier.Tier) []tier.Tier {
	skipSet := make(map[tier.Tier]struct{}, len(skip))
	for _, t := range skip {
		skipSet[t] = struct{}{}
	}

	startIdx := tier.Index(startTier)
	if startIdx < 0 {
		startIdx = 0
	}

	var order []tier.Tier
	for _, t := range tier.Canonical[startIdx:] {
		if _, skipped := skipSet[t]; skipped {
			continue
		}
		if d != nil && !d.Installed(t) {
			continue
		}
		order = append(order, t)
	}
	return order
}

func effectiveDeadline(tierTimeout time.Duration, totalDeadline time.Time, hasTotalDeadline bool) time.Duration {
	if !hasTotalDeadline {
		return tierTimeout
	}
	remaining := time.Until(totalDeadline)
	if tierTimeout <= 0 || remaining < tierTimeout {
		return remaining
	}
	return tierTimeout
}

func (e *Executor) runSerial(ctx context.Context, def Definition, order []tier.Tier, input map[string]any, principal *authz.Principal, opts Options) (Result, error) {
	var (
		attempts         []timedAttempt
		escalations      int
		tierDurations    = make(map[tier.Tier]int64)
		skippedTiers     []tier.Tier
		fallbackContext  map[string]any
		cascadeStart     = time.Now()
		hasTotalDeadline = opts.TotalTimeout > 0
		totalDeadline    = cascadeStart.Add(opts.TotalTimeout)
	)

	for i, t := range order {
		if i > 0 {
			escalations++
		}

		if err := e.guard.Check(principal, t); err != nil {
			attempts = append(attempts, timedAttempt{start: time.Now(), a: Attempt{
				Tier: t, Attempt: 1, Status: StatusFailed, Error: err.Error(), Timestamp: time.Now(),
			}})
			return finalize(attempts, tierDurations, skippedTiers, escalations, cascadeStart), err
		}

		deadline := effectiveDeadline(opts.TierTimeouts[t], totalDeadline, hasTotalDeadline)
		if deadline <= 0 {
			// A skipped attempt carries neither result nor error; the tier
			// is listed in SkippedTiers instead.
			attempts = append(attempts, timedAttempt{start: time.Now(), a: Attempt{
				Tier: t, Attempt: 1, Status: StatusSkipped, Timestamp: time.Now(),
			}})
			skippedTiers = append(skippedTiers, t)
			continue
		}

		attemptStart := time.Now()
		tierCtx, cancel := context.WithTimeout(ctx, deadline)
		output, err := def.Dispatcher.Dispatch(tierCtx, t, def.Function, input, fallbackContext)
		duration := time.Since(attemptStart)
		cancel()

		tierDurations[t] = duration.Milliseconds()

		if err == nil {
			attempts = append(attempts, timedAttempt{start: attemptStart, a: Attempt{
				Tier: t, Attempt: 1, Status: StatusCompleted, Result: output, DurationMs: duration.Milliseconds(), Timestamp: attemptStart,
			}})
			result := finalize(attempts, tierDurations, skippedTiers, escalations, cascadeStart)
			result.Output = output
			result.SuccessTier = t
			return result, nil
		}

		status := StatusFailed
		if tierCtx.Err() == context.DeadlineExceeded {
			status = StatusTimeout
		}
		if ctx.Err() != nil && tierCtx.Err() != context.DeadlineExceeded {
			// The cascade itself was cancelled, not just this tier's
			// deadline: record the abort and attempt nothing further.
			attempts = append(attempts, timedAttempt{start: attemptStart, a: Attempt{
				Tier: t, Attempt: 1, Status: StatusFailed, Error: "CANCELLED: " + err.Error(), DurationMs: duration.Milliseconds(), Timestamp: attemptStart,
			}})
			result := finalize(attempts, tierDurations, skippedTiers, escalations, cascadeStart)
			return result, cerrors.New(cerrors.Cancelled, "cascade cancelled", map[string]any{"tier": string(t)})
		}
		attempts = append(attempts, timedAttempt{start: attemptStart, a: Attempt{
			Tier: t, Attempt: 1, Status: status, Error: err.Error(), DurationMs: duration.Milliseconds(), Timestamp: attemptStart,
		}})

		if opts.EnableFallback {
			fallbackContext = map[string]any{"previousTier": string(t), "previousError": err.Error()}
		}
	}

	result := finalize(attempts, tierDurations, skippedTiers, escalations, cascadeStart)
	return result, cerrors.New(cerrors.CascadeExhausted, "all tiers exhausted", map[string]any{"history": result.History})
}

func finalize(attempts []timedAttempt, tierDurations map[tier.Tier]int64, skippedTiers []tier.Tier, escalations int, cascadeStart time.Time) Result {
	sort.SliceStable(attempts, func(i, j int) bool { return attempts[i].start.Before(attempts[j].start) })
	history := make([]Attempt, len(attempts))
	for i, ta := range attempts {
		history[i] = ta.a
	}
	return Result{
		History:      history,
		SkippedTiers: skippedTiers,
		Metrics: Metrics{
			TotalDurationMs: time.Since(cascadeStart).Milliseconds(),
			TierDurations:   tierDurations,
			Escalations:     escalations,
		},
	}
}
