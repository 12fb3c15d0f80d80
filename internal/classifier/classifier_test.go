// Copyright 2026 The CascadeHQ Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package classifier

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cascadehq/cascade-engine/internal/tier"
)

func TestHeuristic(t *testing.T) {
	tests := []struct {
		name string
		req  Request
		want tier.Tier
	}{
		{"code keywords", Request{FunctionID: "fmt", Description: "parse the import graph of a programming project"}, tier.Code},
		{"math keywords", Request{FunctionID: "solver", Description: "solve the quadratic equation"}, tier.Generative},
		{"agentic keywords", Request{FunctionID: "researcher", Description: "multi-step research workflow"}, tier.Agentic},
		{"human keywords", Request{FunctionID: "expense", Description: "requires manual review and sign off"}, tier.Human},
		{"no signal defaults to code", Request{FunctionID: "misc", Description: "does things"}, tier.Code},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Heuristic(tt.req)
			if got.Type != tt.want {
				t.Errorf("Heuristic(%q) = %s (%s), want %s", tt.req.Description, got.Type, got.Reasoning, tt.want)
			}
			if got.Confidence < 0 || got.Confidence > 1 {
				t.Errorf("confidence %f out of [0,1]", got.Confidence)
			}
		})
	}
}

type countingBackend struct {
	decision Decision
	err      error
	calls    int
}

func (b *countingBackend) Classify(context.Context, Request) (Decision, error) {
	b.calls++
	return b.decision, b.err
}

func TestClassifyBelowThresholdDefaultsToCode(t *testing.T) {
	backend := &countingBackend{decision: Decision{Type: tier.Agentic, Confidence: 0.4}}
	c := New(WithBackend(backend))

	d, err := c.Classify(context.Background(), Request{FunctionID: "fn"})
	if err != nil {
		t.Fatal(err)
	}
	if d.Type != tier.Code {
		t.Errorf("below-threshold decision = %s, want code", d.Type)
	}
}

func TestClassifyAboveThresholdPrefersBackend(t *testing.T) {
	backend := &countingBackend{decision: Decision{Type: tier.Generative, Confidence: 0.8}}
	c := New(WithBackend(backend))

	d, err := c.Classify(context.Background(), Request{FunctionID: "fn"})
	if err != nil {
		t.Fatal(err)
	}
	if d.Type != tier.Generative {
		t.Errorf("decision = %s, want generative", d.Type)
	}
}

func TestClassifyBackendErrorFallsBackToHeuristic(t *testing.T) {
	backend := &countingBackend{err: errors.New("model down")}
	c := New(WithBackend(backend))

	d, err := c.Classify(context.Background(), Request{FunctionID: "fn", Description: "solve this equation"})
	if err != nil {
		t.Fatal(err)
	}
	if d.Type != tier.Generative {
		t.Errorf("fallback decision = %s, want the heuristic's answer", d.Type)
	}
}

func TestClassifyCacheHitSkipsBackend(t *testing.T) {
	backend := &countingBackend{decision: Decision{Type: tier.Generative, Confidence: 0.9}}
	c := New(WithBackend(backend), WithCache(NewDecisionCache(10, time.Minute)))

	req := Request{FunctionID: "fn", Description: "desc"}
	first, err := c.Classify(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	second, err := c.Classify(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if backend.calls != 1 {
		t.Errorf("backend called %d times, want 1 (cache hit)", backend.calls)
	}
	if first != second {
		t.Errorf("cached decision differs: %+v vs %+v", first, second)
	}
}

func TestDecisionCacheEviction(t *testing.T) {
	cache := NewDecisionCache(2, time.Minute)
	cache.Put("a", Decision{Type: tier.Code})
	cache.Put("b", Decision{Type: tier.Generative})

	// Touch "a" so "b" is the LRU victim.
	if _, ok := cache.Get("a"); !ok {
		t.Fatal("a should be cached")
	}
	cache.Put("c", Decision{Type: tier.Human})

	if _, ok := cache.Get("b"); ok {
		t.Error("b should have been evicted as least recently used")
	}
	if _, ok := cache.Get("a"); !ok {
		t.Error("a should survive eviction")
	}
	m := cache.Metrics()
	if m.Evictions != 1 || m.Size != 2 {
		t.Errorf("metrics = %+v", m)
	}
}

func TestDecisionCacheTTL(t *testing.T) {
	cache := NewDecisionCache(10, 20*time.Millisecond)
	cache.Put("k", Decision{Type: tier.Code})
	if _, ok := cache.Get("k"); !ok {
		t.Fatal("fresh entry should hit")
	}
	time.Sleep(30 * time.Millisecond)
	if _, ok := cache.Get("k"); ok {
		t.Error("expired entry should miss")
	}
}

func TestCacheKeyStability(t *testing.T) {
	a := CacheKey(Request{FunctionID: "fn", Description: "d", InputSchema: map[string]any{"type": "object", "x": "1"}})
	b := CacheKey(Request{FunctionID: "fn", Description: "d", InputSchema: map[string]any{"x": "1", "type": "object"}})
	if a != b {
		t.Error("key must not depend on map iteration order")
	}
	c := CacheKey(Request{FunctionID: "fn2", Description: "d"})
	if a == c {
		t.Error("distinct requests must not collide")
	}
}
