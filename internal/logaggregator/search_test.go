// Copyright 2026 The CascadeHQ Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package logaggregator

import "testing"

func TestSearchSubstring(t *testing.T) {
	a := New(0)
	capture(t, a, "fn", Info, "connection Timeout on upstream")
	capture(t, a, "fn", Info, "all good")

	page, err := a.Search("timeout", SearchOptions{FunctionID: "fn"})
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Items) != 1 {
		t.Errorf("case-insensitive search hit %d entries", len(page.Items))
	}

	page, err = a.Search("timeout", SearchOptions{FunctionID: "fn", CaseSensitive: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Items) != 0 {
		t.Error("case-sensitive search should miss Timeout")
	}
}

func TestSearchRegexAndMetadata(t *testing.T) {
	a := New(0)
	if _, err := a.Capture(Entry{FunctionID: "fn", Level: Info, Message: "request done", Metadata: map[string]any{"region": "eu-west-1"}}); err != nil {
		t.Fatal(err)
	}

	page, err := a.Search(`done$`, SearchOptions{FunctionID: "fn", Regex: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Items) != 1 {
		t.Error("regex search should match")
	}

	if _, err := a.Search(`[`, SearchOptions{Regex: true}); err == nil {
		t.Error("invalid regex should error")
	}

	page, err = a.Search("eu-west", SearchOptions{FunctionID: "fn"})
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Items) != 0 {
		t.Error("metadata should not match unless requested")
	}

	page, err = a.Search("eu-west", SearchOptions{FunctionID: "fn", IncludeMeta: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Items) != 1 {
		t.Error("stringified metadata should match when included")
	}
}

func TestSearchHasMore(t *testing.T) {
	a := New(0)
	for i := 0; i < 5; i++ {
		capture(t, a, "fn", Info, "needle here")
	}
	page, err := a.Search("needle", SearchOptions{FunctionID: "fn", Limit: 3})
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Items) != 3 || !page.HasMore {
		t.Errorf("page = %d items hasMore=%v", len(page.Items), page.HasMore)
	}
}

func TestFullTextSearchScoring(t *testing.T) {
	a := New(0)
	capture(t, a, "fn", Info, "cache miss cache miss cache miss")
	capture(t, a, "fn", Info, "cache hit")
	capture(t, a, "fn", Info, "unrelated message")

	hits := a.FullTextSearch("cache miss", "fn", 10)
	if len(hits) != 2 {
		t.Fatalf("hits = %d, want 2 (the unrelated entry scores zero)", len(hits))
	}
	if hits[0].Score <= hits[1].Score {
		t.Errorf("scores not descending: %d then %d", hits[0].Score, hits[1].Score)
	}
	if hits[0].Entry.Message != "cache miss cache miss cache miss" {
		t.Error("highest term frequency should rank first")
	}
}

func TestStructuredQueryConjunction(t *testing.T) {
	a := New(0)
	ms := int64(120)
	if _, err := a.Capture(Entry{FunctionID: "fn", Level: Error, Message: "disk full", DurationMs: &ms, Metadata: map[string]any{"host": "node-3"}}); err != nil {
		t.Fatal(err)
	}
	capture(t, a, "fn", Info, "disk ok")

	out, err := a.StructuredQuery([]Condition{
		{Field: "level", Op: "=", Value: "error"},
		{Field: "message", Op: "contains", Value: "disk"},
	}, "fn", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 {
		t.Fatalf("conjunction hit %d entries", len(out))
	}

	out, err = a.StructuredQuery([]Condition{
		{Field: "metadata.host", Op: "startsWith", Value: "node"},
	}, "fn", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 {
		t.Error("metadata path condition should match")
	}

	out, err = a.StructuredQuery([]Condition{
		{Field: "durationMs", Op: ">", Value: 100.0},
	}, "fn", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 {
		t.Error("numeric comparison should match")
	}

	if _, err := a.StructuredQuery([]Condition{
		{Field: "durationMs", Op: ">", Value: "fast"},
	}, "fn", 10); err == nil {
		t.Error("numeric operator with a non-numeric operand should be rejected")
	}

	if _, err := a.StructuredQuery([]Condition{
		{Field: "level", Op: "~=", Value: "x"},
	}, "fn", 10); err == nil {
		t.Error("unknown operator should be rejected")
	}
}

func TestAggregate(t *testing.T) {
	a := New(0)
	capture(t, a, "fn-a", Info, "ok")
	capture(t, a, "fn-a", Error, "bad")
	capture(t, a, "fn-a", Fatal, "worse")
	capture(t, a, "fn-b", Info, "fine")

	groups := a.Aggregate("functionId", "")
	ga := groups["fn-a"]
	if ga.Count != 3 {
		t.Errorf("fn-a count = %d", ga.Count)
	}
	if want := 2.0 / 3.0; ga.ErrorRate < want-0.001 || ga.ErrorRate > want+0.001 {
		t.Errorf("fn-a errorRate = %f, want %f (error and fatal both count)", ga.ErrorRate, want)
	}
	if gb := groups["fn-b"]; gb.Count != 1 || gb.ErrorRate != 0 {
		t.Errorf("fn-b = %+v", gb)
	}
}
