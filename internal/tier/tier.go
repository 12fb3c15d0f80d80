// Copyright 2026 The CascadeHQ Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package tier defines the four execution strategies the cascade engine
// escalates through, in their canonical order, and the scope each requires.
package tier

// Tier is one of the four execution strategies, in strict ascending
// cost/latency order.
type Tier string

const (
	Code       Tier = "code"
	Generative Tier = "generative"
	Agentic    Tier = "agentic"
	Human      Tier = "human"

	// Auto is a pseudo-tier requesting classifier-driven tier selection; it
	// is never a member of Canonical and never appears in an attempt.
	Auto Tier = "auto"
)

// Canonical is the fixed, deterministic tier ordering the cascade executor
// walks. It is never reordered at runtime.
var Canonical = []Tier{Code, Generative, Agentic, Human}

// Valid reports whether t is one of the four real tiers (excludes Auto).
func Valid(t Tier) bool {
	switch t {
	case Code, Generative, Agentic, Human:
		return true
	default:
		return false
	}
}

// RequiredScope returns the scope string required to invoke t, or "" if t
// requires no scope (the code tier is always unauthenticated-safe).
func RequiredScope(t Tier) string {
	switch t {
	case Generative, Agentic, Human:
		return "functions:tier:" + string(t)
	default:
		return ""
	}
}

// Wildcard is the scope that grants every tier.
const Wildcard = "*"

// Index returns the position of t within Canonical, or -1 if t is not a
// canonical tier.
func Index(t Tier) int {
	for i, c := range Canonical {
		if c == t {
			return i
		}
	}
	return -1
}
