// Copyright 2026 The CascadeHQ Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package envelope

import (
	"time"

	"github.com/cascadehq/cascade-engine/internal/authz"
	"github.com/cascadehq/cascade-engine/internal/classifier"
	"github.com/cascadehq/cascade-engine/internal/dispatcher"
	"github.com/cascadehq/cascade-engine/internal/logaggregator"
	"github.com/cascadehq/cascade-engine/internal/ratelimit"
	"github.com/cascadehq/cascade-engine/internal/store"
	"github.com/cascadehq/cascade-engine/internal/tier"
)

// RateLimitConfig parameterizes the hot-path rate-limit check.
type RateLimitConfig struct {
	Limit  int
	Window time.Duration
}

// Service bundles every collaborator the HTTP surface needs, assembled once
// at startup by cmd/server and shared across requests. Per-request state
// (a fresh classifier and its decision cache) is built by
// NewRequestClassifier and never shared between requests.
type Service struct {
	Metadata   store.MetadataStore
	Code       store.CodeStore
	Limiter    ratelimit.Limiter
	RateLimit  RateLimitConfig
	Dispatcher *dispatcher.Dispatcher
	Logs       *logaggregator.Aggregator
	Stats      *Statistics
	Guard      *authz.Guard

	ClassifierBackend   classifier.Backend
	ClassifierThreshold float64
	ClassifierCacheSize int
	ClassifierCacheTTL  time.Duration

	// TierTimeouts overrides the built-in per-tier timeout defaults for
	// requests that do not set their own; nil keeps the built-ins.
	TierTimeouts map[tier.Tier]time.Duration

	// AuthorizationEnabled controls whether principalScopes middleware
	// materializes a Principal from the scopes header. False means every
	// request reaches the guard with a nil Principal: authorization
	// disabled, deliberately.
	AuthorizationEnabled bool
}

// NewRequestClassifier builds a fresh, per-request Classifier: a new
// DecisionCache bound to this single call, never shared with another
// request, keeping classifier state isolated per request.
func (s *Service) NewRequestClassifier() *classifier.Classifier {
	cache := classifier.NewDecisionCache(s.ClassifierCacheSize, s.ClassifierCacheTTL)
	opts := []classifier.Option{classifier.WithCache(cache)}
	if s.ClassifierBackend != nil {
		opts = append(opts, classifier.WithBackend(s.ClassifierBackend))
	}
	if s.ClassifierThreshold > 0 {
		opts = append(opts, classifier.WithThreshold(s.ClassifierThreshold))
	}
	return classifier.New(opts...)
}
