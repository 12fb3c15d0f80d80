// Copyright 2026 The CascadeHQ Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package logaggregator

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// SearchOptions parameterize Search.
type SearchOptions struct {
	FunctionID    string
	CaseSensitive bool
	Regex         bool
	IncludeMeta   bool
	Limit         int
}

// Search performs a substring (optionally regex) search over message text,
// optionally including stringified metadata.
func (a *Aggregator) Search(query string, opts SearchOptions) (Page, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	var matcher func(string) bool
	if opts.Regex {
		flags := ""
		if !opts.CaseSensitive {
			flags = "(?i)"
		}
		re, err := regexp.Compile(flags + query)
		if err != nil {
			return Page{}, fmt.Errorf("cascade: invalid search regex: %w", err)
		}
		matcher = re.MatchString
	} else {
		needle := query
		if !opts.CaseSensitive {
			needle = strings.ToLower(needle)
		}
		matcher = func(s string) bool {
			if !opts.CaseSensitive {
				s = strings.ToLower(s)
			}
			return strings.Contains(s, needle)
		}
	}

	var source []*Entry
	if opts.FunctionID != "" {
		source = a.sortedByFunction(opts.FunctionID)
	} else {
		source = a.sortedAll()
	}

	var hits []Entry
	for _, e := range source {
		haystack := e.Message
		if opts.IncludeMeta && len(e.Metadata) > 0 {
			haystack += " " + fmt.Sprint(e.Metadata)
		}
		if matcher(haystack) {
			hits = append(hits, e.clone())
		}
	}

	hasMore := len(hits) > limit
	if hasMore {
		hits = hits[:limit]
	}
	return Page{Items: hits, HasMore: hasMore}, nil
}

// ScoredEntry pairs an entry with its full-text relevance score.
type ScoredEntry struct {
	Entry Entry
	Score int
}

// FullTextSearch scores each entry by summed term frequency over
// whitespace-split lowercase tokens and returns hits in descending score
// order.
func (a *Aggregator) FullTextSearch(q string, functionID string, limit int) []ScoredEntry {
	terms := strings.Fields(strings.ToLower(q))
	if len(terms) == 0 {
		return nil
	}
	if limit <= 0 {
		limit = defaultPageSize
	}

	var source []*Entry
	if functionID != "" {
		source = a.sortedByFunction(functionID)
	} else {
		source = a.sortedAll()
	}

	var scored []ScoredEntry
	for _, e := range source {
		tokens := strings.Fields(strings.ToLower(e.Message))
		freq := make(map[string]int, len(tokens))
		for _, t := range tokens {
			freq[t]++
		}
		score := 0
		for _, term := range terms {
			score += freq[term]
		}
		if score > 0 {
			scored = append(scored, ScoredEntry{Entry: e.clone(), Score: score})
		}
	}

	sort.Slice(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if len(scored) > limit {
		scored = scored[:limit]
	}
	return scored
}
