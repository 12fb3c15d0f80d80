// Copyright 2026 The CascadeHQ Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package logaggregator

import (
	"encoding/base64"
	"strconv"

	"github.com/cascadehq/cascade-engine/internal/cerrors"
)

const (
	defaultPageSize = 100
	maxPageSize     = 1000
)

func matchesFilter(e *Entry, f Filter) bool {
	if f.FunctionID != "" && e.FunctionID != f.FunctionID {
		return false
	}
	if f.Since != nil && e.Timestamp.Before(*f.Since) {
		return false
	}
	if f.Until != nil && e.Timestamp.After(*f.Until) {
		return false
	}
	if f.Level != "" && e.Level != f.Level {
		return false
	}
	if len(f.Levels) > 0 {
		found := false
		for _, l := range f.Levels {
			if e.Level == l {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.MinSeverity != "" && severityRank[e.Level] < severityRank[f.MinSeverity] {
		return false
	}
	return true
}

// Query returns a page of functionID's log entries matching filter.
// FunctionID on the filter is required; use QueryAll for a cross-function
// scan.
func (a *Aggregator) Query(filter Filter) (Page, error) {
	if filter.FunctionID == "" {
		return Page{}, cerrors.New(cerrors.Validation, "functionId is required for query", nil)
	}
	return a.queryEntries(a.sortedByFunction(filter.FunctionID), filter)
}

// QueryAll scans across every function's entries; FunctionID on the filter
// is optional here.
func (a *Aggregator) QueryAll(filter Filter) (Page, error) {
	return a.queryEntries(a.sortedAll(), filter)
}

func (a *Aggregator) queryEntries(sorted []*Entry, filter Filter) (Page, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	var filtered []*Entry
	for _, e := range sorted {
		if matchesFilter(e, filter) {
			filtered = append(filtered, e)
		}
	}

	if filter.Order == Desc {
		reverse(filtered)
	}

	offset, err := decodeQueryCursor(filter.Cursor)
	if err != nil {
		return Page{}, err
	}
	if offset > len(filtered) {
		offset = len(filtered)
	}
	end := offset + limit
	if end > len(filtered) {
		end = len(filtered)
	}

	page := Page{}
	for _, e := range filtered[offset:end] {
		page.Items = append(page.Items, e.clone())
	}
	if end < len(filtered) {
		page.NextCursor = encodeQueryCursor(end)
		page.HasMore = true
	}
	return page, nil
}

func reverse(s []*Entry) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

func encodeQueryCursor(offset int) string {
	return base64.RawURLEncoding.EncodeToString([]byte(strconv.Itoa(offset)))
}

func decodeQueryCursor(cursor string) (int, error) {
	if cursor == "" {
		return 0, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return 0, cerrors.New(cerrors.InvalidCursor, "invalid cursor", nil)
	}
	n, err := strconv.Atoi(string(raw))
	if err != nil || n < 0 {
		return 0, cerrors.New(cerrors.InvalidCursor, "invalid cursor", nil)
	}
	return n, nil
}
