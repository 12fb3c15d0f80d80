// Copyright 2026 The CascadeHQ Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package logaggregator

import (
	"fmt"
	"sync"
	"time"
)

// SubscribeOptions parameterize a live log stream.
type SubscribeOptions struct {
	Levels            []Level       // nil matches every level
	HeartbeatInterval time.Duration // 0 disables heartbeats
	TailN             int           // deliver the last N matching entries immediately
	AfterID           string        // deliver only entries after this id
}

func (o SubscribeOptions) matches(e Entry) bool {
	if len(o.Levels) == 0 {
		return true
	}
	for _, l := range o.Levels {
		if e.Level == l {
			return true
		}
	}
	return false
}

// Subscription is a live push-channel consumer, the message-oriented half
// of the streaming surface. The byte-stream (SSE) transport in the
// envelope package is built on top of it.
type Subscription struct {
	ID         string
	FunctionID string
	Entries    <-chan Entry
	Heartbeat  <-chan struct{}
	Shutdown   <-chan struct{}

	unsubscribe func()
}

// Close unregisters the subscription. Entries captured after Close returns
// are never observed by it.
func (s *Subscription) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
}

type liveSubscriber struct {
	id         string
	functionID string
	opts       SubscribeOptions
	entries    chan Entry
	heartbeat  chan struct{}
	shutdown   chan struct{}
	stopHeart  chan struct{}
	once       sync.Once
}

type subscriberRegistry struct {
	mu      sync.RWMutex
	byFunc  map[string][]*liveSubscriber
	counter int
}

func newSubscriberRegistry() subscriberRegistry {
	return subscriberRegistry{byFunc: make(map[string][]*liveSubscriber)}
}

func (r *subscriberRegistry) add(sub *liveSubscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byFunc[sub.functionID] = append(r.byFunc[sub.functionID], sub)
}

func (r *subscriberRegistry) remove(sub *liveSubscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	subs := r.byFunc[sub.functionID]
	for i, s := range subs {
		if s.id == sub.id {
			r.byFunc[sub.functionID] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
}

func (r *subscriberRegistry) notify(e Entry) {
	r.mu.RLock()
	subs := append([]*liveSubscriber(nil), r.byFunc[e.FunctionID]...)
	r.mu.RUnlock()

	for _, s := range subs {
		if !s.opts.matches(e) {
			continue
		}
		select {
		case s.entries <- e:
		default:
			// A slow consumer never blocks capture; the entry is dropped
			// for that subscriber only.
		}
	}
}

// drainAll closes every live subscriber with a shutdown notice and reports
// the count closed, used by Aggregator.Drain.
func (r *subscriberRegistry) drainAll() int {
	r.mu.Lock()
	all := make([]*liveSubscriber, 0)
	for _, subs := range r.byFunc {
		all = append(all, subs...)
	}
	r.byFunc = make(map[string][]*liveSubscriber)
	r.mu.Unlock()

	for _, s := range all {
		s.close()
	}
	return len(all)
}

// close signals shutdown but leaves the entries channel open: an in-flight
// notify holding a pre-removal snapshot may still be sending, and a send on
// a closed channel would panic the producer. Consumers exit on Shutdown.
func (s *liveSubscriber) close() {
	s.once.Do(func() {
		close(s.stopHeart)
		close(s.shutdown)
	})
}

// Subscribe registers a streaming consumer for functionID. If opts.TailN is
// positive, the last N matching entries already captured are delivered
// immediately, ahead of any live entry.
func (a *Aggregator) Subscribe(functionID string, opts SubscribeOptions) *Subscription {
	a.subs.mu.Lock()
	a.subs.counter++
	id := fmt.Sprintf("sub_%d", a.subs.counter)
	a.subs.mu.Unlock()

	live := &liveSubscriber{
		id:         id,
		functionID: functionID,
		opts:       opts,
		entries:    make(chan Entry, 256),
		heartbeat:  make(chan struct{}),
		shutdown:   make(chan struct{}),
		stopHeart:  make(chan struct{}),
	}
	a.subs.add(live)

	a.deliverBacklog(live)

	if opts.HeartbeatInterval > 0 {
		go func() {
			ticker := time.NewTicker(opts.HeartbeatInterval)
			defer ticker.Stop()
			for {
				select {
				case <-live.stopHeart:
					return
				case <-ticker.C:
					select {
					case live.heartbeat <- struct{}{}:
					default:
					}
				}
			}
		}()
	}

	return &Subscription{
		ID:          id,
		FunctionID:  functionID,
		Entries:     live.entries,
		Heartbeat:   live.heartbeat,
		Shutdown:    live.shutdown,
		unsubscribe: func() { a.subs.remove(live); live.close() },
	}
}

func (a *Aggregator) deliverBacklog(live *liveSubscriber) {
	sorted := a.sortedByFunction(live.functionID)

	var afterIdx int
	if live.opts.AfterID != "" {
		for i, e := range sorted {
			if e.ID == live.opts.AfterID {
				afterIdx = i + 1
				break
			}
		}
		sorted = sorted[afterIdx:]
		for _, e := range sorted {
			if live.opts.matches(*e) {
				select {
				case live.entries <- e.clone():
				default:
				}
			}
		}
		return
	}

	if live.opts.TailN > 0 {
		var matching []*Entry
		for _, e := range sorted {
			if live.opts.matches(*e) {
				matching = append(matching, e)
			}
		}
		if len(matching) > live.opts.TailN {
			matching = matching[len(matching)-live.opts.TailN:]
		}
		for _, e := range matching {
			select {
			case live.entries <- e.clone():
			default:
			}
		}
	}
}

// DrainResult reports how many of each resource Drain shut down.
type DrainResult struct {
	SubscribersClosed int
	RetentionStopped  bool
}

// Drain closes every live subscriber with a shutdown notice and clears the
// retention timer
func (a *Aggregator) Drain() DrainResult {
	stopped := a.retentionCancel != nil
	a.CancelRetention()
	closed := a.subs.drainAll()
	return DrainResult{SubscribersClosed: closed, RetentionStopped: stopped}
}
