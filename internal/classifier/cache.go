// Copyright 2026 The CascadeHQ Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package classifier

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

// decisionCacheEntry carries the cached value, the LRU list element
// backing eviction, and the entry's expiry.
type decisionCacheEntry struct {
	key       string
	decision  Decision
	expiresAt time.Time
	element   *list.Element
}

// DecisionCache is a bounded LRU of classifier decisions keyed by request
// identity, with a TTL check on lookup. On the hot path it must be
// instantiated per request; a process-wide instance is permitted only when
// used strictly immutably.
type DecisionCache struct {
	mu      sync.Mutex
	maxSize int
	ttl     time.Duration
	entries map[string]*decisionCacheEntry
	lru     *list.List

	hits, misses, evictions int64
}

// NewDecisionCache constructs a cache. maxSize <= 0 defaults to 500 entries
// ; ttl <= 0 defaults to one hour.
func NewDecisionCache(maxSize int, ttl time.Duration) *DecisionCache {
	if maxSize <= 0 {
		maxSize = 500
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &DecisionCache{
		maxSize: maxSize,
		ttl:     ttl,
		entries: make(map[string]*decisionCacheEntry),
		lru:     list.New(),
	}
}

// CacheKey hashes a Request into a stable lookup key. Two requests with
// identical function id, description, and schema (by Go map equality after
// a deterministic re-encode) produce the same key, so identical requests
// within the TTL resolve without a second backend call.
func CacheKey(req Request) string {
	h := sha256.New()
	h.Write([]byte(req.FunctionID))
	h.Write([]byte{0})
	h.Write([]byte(req.Description))
	h.Write([]byte{0})
	h.Write([]byte(canonicalizeSchema(req.InputSchema)))
	return hex.EncodeToString(h.Sum(nil))
}

func canonicalizeSchema(schema map[string]any) string {
	if len(schema) == 0 {
		return ""
	}
	keys := make([]string, 0, len(schema))
	for k := range schema {
		keys = append(keys, k)
	}
	sortStrings(keys)
	out := make([]byte, 0, 64)
	for _, k := range keys {
		out = append(out, k...)
		out = append(out, '=')
		out = append(out, []byte(stringify(schema[k]))...)
		out = append(out, ';')
	}
	return string(out)
}

func sortStrings(ss []string) {
	for i := 1; i < len(ss); i++ {
		for j := i; j > 0 && ss[j-1] > ss[j]; j-- {
			ss[j-1], ss[j] = ss[j], ss[j-1]
		}
	}
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return "null"
	default:
		// fmt prints map keys in sorted order, so nested schemas encode
		// deterministically.
		return fmt.Sprint(t)
	}
}

// Get returns the cached decision for key, if present and unexpired. An
// expired entry is evicted on lookup rather than left for the next Put.
func (c *DecisionCache) Get(key string) (Decision, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		c.misses++
		return Decision{}, false
	}
	if time.Now().After(entry.expiresAt) {
		c.removeLocked(entry)
		c.misses++
		return Decision{}, false
	}

	c.lru.MoveToFront(entry.element)
	c.hits++
	return entry.decision, true
}

// Put stores or refreshes a decision, evicting the least recently used
// entry if the cache is at capacity.
func (c *DecisionCache) Put(key string, decision Decision) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.entries[key]; ok {
		existing.decision = decision
		existing.expiresAt = time.Now().Add(c.ttl)
		c.lru.MoveToFront(existing.element)
		return
	}

	if len(c.entries) >= c.maxSize {
		c.evictLRULocked()
	}

	entry := &decisionCacheEntry{key: key, decision: decision, expiresAt: time.Now().Add(c.ttl)}
	entry.element = c.lru.PushFront(entry)
	c.entries[key] = entry
}

func (c *DecisionCache) evictLRULocked() {
	oldest := c.lru.Back()
	if oldest == nil {
		return
	}
	c.removeLocked(oldest.Value.(*decisionCacheEntry))
	c.evictions++
}

func (c *DecisionCache) removeLocked(entry *decisionCacheEntry) {
	c.lru.Remove(entry.element)
	delete(c.entries, entry.key)
}

// Metrics is a snapshot of cache performance counters.
type Metrics struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Size      int
}

func (c *DecisionCache) Metrics() Metrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Metrics{Hits: c.hits, Misses: c.misses, Evictions: c.evictions, Size: len(c.entries)}
}
