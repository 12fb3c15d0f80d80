// Copyright 2026 The CascadeHQ Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package classifier

import (
	"context"

	"github.com/cascadehq/cascade-engine/internal/tier"
)

// Classifier resolves "auto" to a concrete starting tier: prefer the
// backend's answer when its confidence clears threshold, otherwise default
// to code. A Classifier is cheap to construct; callers on the request path
// should build one per request unless the backend is provably stateless.
type Classifier struct {
	backend   Backend
	cache     *DecisionCache
	threshold float64
}

// Option configures a Classifier at construction.
type Option func(*Classifier)

// WithBackend installs a model backend. Without one, Classify always uses
// the deterministic heuristic.
func WithBackend(b Backend) Option {
	return func(c *Classifier) { c.backend = b }
}

// WithCache installs a decision cache. Without one, every call invokes the
// backend (or heuristic) fresh.
func WithCache(cache *DecisionCache) Option {
	return func(c *Classifier) { c.cache = cache }
}

// WithThreshold overrides DefaultConfidenceThreshold.
func WithThreshold(threshold float64) Option {
	return func(c *Classifier) { c.threshold = threshold }
}

// New constructs a Classifier. With no options it is a pure, dependency-free
// heuristic classifier.
func New(opts ...Option) *Classifier {
	c := &Classifier{threshold: DefaultConfidenceThreshold}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify resolves req to a Decision. Cache hits skip the backend
// entirely: identical inputs within the TTL never cost a model call.
func (c *Classifier) Classify(ctx context.Context, req Request) (Decision, error) {
	var key string
	if c.cache != nil {
		key = CacheKey(req)
		if cached, ok := c.cache.Get(key); ok {
			return cached, nil
		}
	}

	decision := c.classifyUncached(ctx, req)

	if c.cache != nil {
		c.cache.Put(key, decision)
	}
	return decision, nil
}

// classifyUncached implements the two-layer fallback: an
// available backend that answers below threshold defaults to the code
// tier (the backend "voted", it just didn't clear the bar); a backend that
// is absent or errors is treated as unavailable, falling through to the
// deterministic heuristic instead.
func (c *Classifier) classifyUncached(ctx context.Context, req Request) Decision {
	if c.backend == nil {
		return Heuristic(req)
	}

	decision, err := c.backend.Classify(ctx, req)
	if err != nil {
		return Heuristic(req)
	}
	if decision.Confidence < c.threshold {
		return Decision{Type: tier.Code, Confidence: decision.Confidence, Reasoning: "below confidence threshold, defaulting to code: " + decision.Reasoning}
	}
	return decision
}
