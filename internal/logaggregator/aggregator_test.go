// Copyright 2026 The CascadeHQ Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package logaggregator

import (
	"errors"
	"io"
	"strings"
	"testing"
	"time"
)

func capture(t *testing.T, a *Aggregator, functionID string, level Level, message string) Entry {
	t.Helper()
	e, err := a.Capture(Entry{FunctionID: functionID, Level: level, Message: message})
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func TestCaptureAssignsIDAndTimestamp(t *testing.T) {
	a := New(0)
	e := capture(t, a, "fn", Info, "hello")
	if e.ID == "" {
		t.Error("capture should assign an id")
	}
	if e.Timestamp.IsZero() {
		t.Error("capture should assign a timestamp")
	}
}

func TestCaptureValidation(t *testing.T) {
	a := New(0)
	if _, err := a.Capture(Entry{Level: Info, Message: "no function"}); err == nil {
		t.Error("missing functionId should be rejected")
	}
	if _, err := a.Capture(Entry{FunctionID: "fn", Level: "verbose", Message: "x"}); err == nil {
		t.Error("unknown level should be rejected")
	}
}

func TestCaptureTruncation(t *testing.T) {
	a := New(0)
	long := strings.Repeat("x", MaxMessageLen+500)
	e := capture(t, a, "fn", Info, long)
	if len(e.Message) != MaxMessageLen {
		t.Errorf("stored message length = %d, want %d", len(e.Message), MaxMessageLen)
	}
	if e.Metadata["truncated"] != true {
		t.Error("truncated messages must be flagged in metadata")
	}

	short := capture(t, a, "fn", Info, "short")
	if _, flagged := short.Metadata["truncated"]; flagged {
		t.Error("short messages must not be flagged")
	}
}

func TestCaptureBatchIndependentFailures(t *testing.T) {
	a := New(0)
	stored, errs := a.CaptureBatch([]Entry{
		{FunctionID: "fn", Level: Info, Message: "ok 1"},
		{FunctionID: "", Level: Info, Message: "bad"},
		{FunctionID: "fn", Level: Warn, Message: "ok 2"},
	})
	if len(stored) != 2 {
		t.Errorf("stored = %d, want 2", len(stored))
	}
	if len(errs) != 1 {
		t.Errorf("errs = %v, want 1", errs)
	}
}

func TestCaptureError(t *testing.T) {
	a := New(0)
	e, err := a.CaptureError("fn", "req_1", errors.New("boom"))
	if err != nil {
		t.Fatal(err)
	}
	if e.Level != Error || e.Message != "boom" {
		t.Errorf("entry = %+v", e)
	}
	if e.RequestID != "req_1" {
		t.Errorf("requestId = %s", e.RequestID)
	}
	if e.Metadata["errorName"] == "" || e.Metadata["stack"] == "" {
		t.Error("error capture should carry name and stack metadata")
	}
}

func TestCaptureExecutionPropagatesErrorAndClassifies(t *testing.T) {
	a := New(0)
	ranErr := errors.New("handler failed")
	err := a.CaptureExecution("fn", "req_1", func(stdout, stderr io.Writer) error {
		_, _ = stdout.Write([]byte("line on stdout"))
		_, _ = stderr.Write([]byte("line on stderr"))
		return ranErr
	})
	if err != ranErr {
		t.Fatalf("CaptureExecution should propagate the handler's error, got %v", err)
	}

	page, err := a.Query(Filter{FunctionID: "fn"})
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Items) != 2 {
		t.Fatalf("captured %d entries, want 2", len(page.Items))
	}
	levels := map[Level]bool{}
	for _, e := range page.Items {
		levels[e.Level] = true
	}
	if !levels[Info] || !levels[Warn] {
		t.Errorf("stdout/stderr should classify into distinct levels, got %v", levels)
	}
}

func TestDeleteFunctionLogsRemovesEverywhere(t *testing.T) {
	a := New(0)
	capture(t, a, "fn-a", Info, "a1")
	capture(t, a, "fn-a", Info, "a2")
	capture(t, a, "fn-b", Info, "b1")

	removed := a.DeleteFunctionLogs("fn-a")
	if removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}

	page, err := a.Query(Filter{FunctionID: "fn-a"})
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Items) != 0 {
		t.Error("per-function index should be empty")
	}

	all, err := a.QueryAll(Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all.Items) != 1 || all.Items[0].FunctionID != "fn-b" {
		t.Errorf("global index = %+v, want only fn-b", all.Items)
	}
}

func TestDrain(t *testing.T) {
	a := New(0)
	sub := a.Subscribe("fn", SubscribeOptions{})
	a.ScheduleRetention(RetentionPolicy{MaxAge: time.Hour}, time.Hour)

	result := a.Drain()
	if result.SubscribersClosed != 1 {
		t.Errorf("subscribersClosed = %d", result.SubscribersClosed)
	}
	if !result.RetentionStopped {
		t.Error("retention timer should report stopped")
	}

	select {
	case <-sub.Shutdown:
	case <-time.After(time.Second):
		t.Error("subscriber should observe the shutdown notice")
	}
}
