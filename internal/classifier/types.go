// Copyright 2026 The CascadeHQ Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package classifier decides the starting tier for a cascade invocation
// requesting "auto": a pluggable model backend gated by a single global
// confidence threshold, with a deterministic keyword heuristic behind it.
package classifier

import (
	"github.com/cascadehq/cascade-engine/internal/tier"
)

// DefaultConfidenceThreshold gates when a backend's answer is preferred
// over the code-tier default. A single global constant; thresholds are not
// per-tier.
const DefaultConfidenceThreshold = 0.6

// Decision is the classifier's output: a tier guess with confidence and a
// short human-readable rationale.
type Decision struct {
	Type       tier.Tier
	Confidence float64
	Reasoning  string
}

// Request bundles the inputs the classifier inspects:
// function identity, a description chosen by EffectiveDescription's
// priority order, and an optional input schema.
type Request struct {
	FunctionID  string
	Description string
	InputSchema map[string]any
}
