// Copyright 2026 The CascadeHQ Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package logaggregator

import (
	"context"
	"fmt"
	"io"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/cascadehq/cascade-engine/internal/cerrors"
	"github.com/cascadehq/cascade-engine/internal/ids"
)

// Aggregator captures, indexes, queries, and streams log entries. It owns
// an in-memory per-function index and a global index sharing the same
// entry pointers.
type Aggregator struct {
	mu         sync.RWMutex
	byFunction map[string][]*Entry
	all        []*Entry
	byID       map[string]*Entry

	maxMessageLen int

	sink Sink

	subs subscriberRegistry

	retentionMu     sync.Mutex
	retentionCancel context.CancelFunc
}

// New constructs an empty Aggregator. maxMessageLen <= 0 uses MaxMessageLen.
func New(maxMessageLen int) *Aggregator {
	if maxMessageLen <= 0 {
		maxMessageLen = MaxMessageLen
	}
	return &Aggregator{
		byFunction:    make(map[string][]*Entry),
		byID:          make(map[string]*Entry),
		maxMessageLen: maxMessageLen,
		subs:          newSubscriberRegistry(),
	}
}

// Capture validates, assigns an id, truncates, stores, and notifies
// subscribers for a single entry. entry.ID, if set, is ignored.
func (a *Aggregator) Capture(entry Entry) (Entry, error) {
	if entry.FunctionID == "" {
		return Entry{}, cerrors.New(cerrors.Validation, "functionId is required", nil)
	}
	if !ValidLevel(entry.Level) {
		return Entry{}, cerrors.New(cerrors.Validation, "invalid log level: "+string(entry.Level), map[string]any{"level": entry.Level})
	}

	entry.ID = ids.NewLogEntryID()
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	if len(entry.Message) > a.maxMessageLen {
		entry.Message = entry.Message[:a.maxMessageLen]
		if entry.Metadata == nil {
			entry.Metadata = make(map[string]any, 1)
		}
		entry.Metadata["truncated"] = true
	}

	stored := entry.clone()

	a.mu.Lock()
	a.byFunction[entry.FunctionID] = append(a.byFunction[entry.FunctionID], &stored)
	a.all = append(a.all, &stored)
	a.byID[stored.ID] = &stored
	sink := a.sink
	a.mu.Unlock()

	if sink != nil {
		// Durable append is best-effort: the in-memory index already holds
		// the entry, and a sink outage must not fail the hot path.
		_ = sink.Append(context.Background(), stored)
	}

	a.subs.notify(stored)
	return stored.clone(), nil
}

// CaptureBatch captures each entry in order. Failures are independent; no
// atomicity guarantee spans the batch.
func (a *Aggregator) CaptureBatch(entries []Entry) ([]Entry, []error) {
	out := make([]Entry, 0, len(entries))
	var errs []error
	for _, e := range entries {
		stored, err := a.Capture(e)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, stored)
	}
	return out, errs
}

// CaptureError is a shorthand producing an error-level entry carrying the
// error's message, stack, and type as metadata.
func (a *Aggregator) CaptureError(functionID, requestID string, err error) (Entry, error) {
	return a.Capture(Entry{
		FunctionID: functionID,
		RequestID:  requestID,
		Level:      Error,
		Message:    err.Error(),
		Metadata: map[string]any{
			"errorName": fmt.Sprintf("%T", err),
			"stack":     string(debug.Stack()),
		},
	})
}

// execWriter substitutes for a tier handler's standard-output channel for
// the duration of CaptureExecution, classifying emitted lines by the
// channel (stdout/stderr) they were written on.
type execWriter struct {
	agg        *Aggregator
	functionID string
	requestID  string
	level      Level
}

func (w execWriter) Write(p []byte) (int, error) {
	_, _ = w.agg.Capture(Entry{
		FunctionID: w.functionID,
		RequestID:  w.requestID,
		Level:      w.level,
		Message:    string(p),
	})
	return len(p), nil
}

// CaptureExecution hands fn writer handles that stand in for stdout and
// stderr; each write becomes a log entry at info (stdout) or warn (stderr)
// level. fn's error is returned unchanged. No process-wide stream is
// replaced, so nothing is restored afterwards.
func (a *Aggregator) CaptureExecution(functionID, requestID string, fn func(stdout, stderr io.Writer) error) error {
	stdout := execWriter{agg: a, functionID: functionID, requestID: requestID, level: Info}
	stderr := execWriter{agg: a, functionID: functionID, requestID: requestID, level: Warn}
	return fn(stdout, stderr)
}

func (a *Aggregator) entryByID(id string) (*Entry, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	e, ok := a.byID[id]
	return e, ok
}

// deleteFunctionLogs removes every entry for functionID from every index.
// Live subscriptions are left untouched.
func (a *Aggregator) deleteFunctionLogs(functionID string) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	entries := a.byFunction[functionID]
	removed := len(entries)
	delete(a.byFunction, functionID)

	if removed == 0 {
		return 0
	}
	toRemove := make(map[string]struct{}, removed)
	for _, e := range entries {
		toRemove[e.ID] = struct{}{}
		delete(a.byID, e.ID)
	}

	filtered := a.all[:0:0]
	for _, e := range a.all {
		if _, ok := toRemove[e.ID]; !ok {
			filtered = append(filtered, e)
		}
	}
	a.all = filtered
	return removed
}

// DeleteFunctionLogs is the exported form of deleteFunctionLogs, used by the
// /logs/:functionId DELETE handler. The durable sink's rows go with the
// in-memory indexes.
func (a *Aggregator) DeleteFunctionLogs(functionID string) int {
	removed := a.deleteFunctionLogs(functionID)

	a.mu.RLock()
	sink := a.sink
	a.mu.RUnlock()
	if sink != nil {
		_ = sink.DeleteFunction(context.Background(), functionID)
	}
	return removed
}

// sortedByFunction returns a snapshot of functionID's entries ordered by
// timestamp ascending.
func (a *Aggregator) sortedByFunction(functionID string) []*Entry {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := append([]*Entry(nil), a.byFunction[functionID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

// sortedAll returns a snapshot of every entry ordered by timestamp ascending.
func (a *Aggregator) sortedAll() []*Entry {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := append([]*Entry(nil), a.all...)
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}
