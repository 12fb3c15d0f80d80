// Copyright 2026 The CascadeHQ Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package cascade implements the tiered execution state machine: the four
// execution-strategy tiers (code/generative/agentic/human) walked in
// canonical order, driven by success/failure/timeout/skip outcomes.
package cascade

import (
	"time"

	"github.com/cascadehq/cascade-engine/internal/classifier"
	"github.com/cascadehq/cascade-engine/internal/tier"
)

// AttemptStatus is the terminal state of one tier attempt.
type AttemptStatus string

const (
	StatusCompleted AttemptStatus = "completed"
	StatusFailed    AttemptStatus = "failed"
	StatusTimeout   AttemptStatus = "timeout"
	StatusSkipped   AttemptStatus = "skipped"
)

// Attempt is one entry in a cascade's ordered attempt history.
type Attempt struct {
	Tier       tier.Tier      `json:"tier"`
	Attempt    int            `json:"attempt"`
	Status     AttemptStatus  `json:"status"`
	Result     map[string]any `json:"result,omitempty"`
	Error      string         `json:"error,omitempty"`
	DurationMs int64          `json:"durationMs"`
	Timestamp  time.Time      `json:"timestamp"`
}

// Options parameterizes one cascade invocation.
type Options struct {
	StartTier      tier.Tier
	SkipTiers      []tier.Tier
	TierTimeouts   map[tier.Tier]time.Duration
	TotalTimeout   time.Duration // 0 means unbounded
	EnableParallel bool
	EnableFallback bool
}

// DefaultTierTimeouts are the per-tier defaults.
func DefaultTierTimeouts() map[tier.Tier]time.Duration {
	return map[tier.Tier]time.Duration{
		tier.Code:       5 * time.Second,
		tier.Generative: 30 * time.Second,
		tier.Agentic:    5 * time.Minute,
		tier.Human:      24 * time.Hour,
	}
}

// DefaultOptions returns the default cascade options.
func DefaultOptions() Options {
	return Options{
		StartTier:    tier.Code,
		TierTimeouts: DefaultTierTimeouts(),
	}
}

// Metrics is the aggregated cascade-level accounting.
type Metrics struct {
	TotalDurationMs int64               `json:"totalDurationMs"`
	TierDurations   map[tier.Tier]int64 `json:"tierDurations"`
	Escalations     int                 `json:"escalations"`
	// TotalRetries is reserved for within-tier retries and stays zero
	// unless an executor surfaces one.
	TotalRetries int `json:"totalRetries"`
}

// Result is the full outcome of one cascade invocation.
type Result struct {
	Output       map[string]any `json:"output,omitempty"`
	SuccessTier  tier.Tier      `json:"successTier,omitempty"`
	History      []Attempt      `json:"history"`
	SkippedTiers []tier.Tier    `json:"skippedTiers,omitempty"`
	Metrics      Metrics        `json:"metrics"`

	// AutoClassified and Classification are populated only when the
	// caller requested startTier "auto"; they feed the envelope's
	// _meta.autoClassified / _meta.classification fields.
	AutoClassified bool                 `json:"-"`
	Classification *classifier.Decision `json:"-"`
}
