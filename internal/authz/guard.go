// Copyright 2026 The CascadeHQ Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package authz implements the tier authorization guard:
// a scope registry gating escalation into generative/agentic/human tiers,
// enforced both pre-flight and at each escalation boundary inside the
// cascade executor.
package authz

import (
	"github.com/cascadehq/cascade-engine/internal/cerrors"
	"github.com/cascadehq/cascade-engine/internal/tier"
)

// Principal is the caller's granted scope set. A nil Principal means
// authorization is disabled entirely. That must be a deliberate, explicit
// configuration, never an accidental default.
type Principal struct {
	Scopes map[string]struct{}
}

// NewPrincipal builds a Principal from a scope list.
func NewPrincipal(scopes ...string) *Principal {
	p := &Principal{Scopes: make(map[string]struct{}, len(scopes))}
	for _, s := range scopes {
		p.Scopes[s] = struct{}{}
	}
	return p
}

// Has reports whether the principal's scope set grants scope, via an exact
// match or the wildcard.
func (p *Principal) Has(scope string) bool {
	if p == nil {
		return true
	}
	if _, ok := p.Scopes[tier.Wildcard]; ok {
		return true
	}
	_, ok := p.Scopes[scope]
	return ok
}

// Guard enforces tier.RequiredScope against a Principal.
type Guard struct{}

// NewGuard constructs a stateless Guard; the scope registry it enforces
// against is tier.RequiredScope, fixed at compile time.
func NewGuard() *Guard {
	return &Guard{}
}

// Check returns a *cerrors.CascadeError with kind TierAuthorization if
// principal lacks the scope t requires, or nil if the tier is authorized.
// A nil principal always authorizes, per the "absent principal disables
// authorization" contract.
func (g *Guard) Check(principal *Principal, t tier.Tier) error {
	required := tier.RequiredScope(t)
	if required == "" {
		return nil
	}
	if principal == nil || principal.Has(required) {
		return nil
	}
	return cerrors.New(cerrors.TierAuthorization,
		"principal lacks required scope for tier",
		map[string]any{"tier": string(t), "requiredScope": required})
}
