// Copyright 2026 The CascadeHQ Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package logaggregator

import "fmt"

// Aggregate produces, per distinct value of groupBy, a count and an error
// rate. groupBy is a top-level field name or a
// "metadata.<name>" path, matching structuredQuery's addressing.
func (a *Aggregator) Aggregate(groupBy string, functionID string) map[string]GroupMetrics {
	var source []*Entry
	if functionID != "" {
		source = a.sortedByFunction(functionID)
	} else {
		source = a.sortedAll()
	}

	counts := make(map[string]int)
	errors := make(map[string]int)
	for _, e := range source {
		key := groupKey(e, groupBy)
		counts[key]++
		if IsErrorLevel(e.Level) {
			errors[key]++
		}
	}

	out := make(map[string]GroupMetrics, len(counts))
	for k, c := range counts {
		rate := 0.0
		if c > 0 {
			rate = float64(errors[k]) / float64(c)
		}
		out[k] = GroupMetrics{Count: c, ErrorRate: rate}
	}
	return out
}

func groupKey(e *Entry, groupBy string) string {
	attrs := flatten(e)
	if v, ok := attrs[groupBy]; ok {
		return fmt.Sprint(v)
	}
	return ""
}
