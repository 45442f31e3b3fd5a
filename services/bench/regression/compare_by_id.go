// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package regression

import (
	"github.com/AleutianAI/grindbench/services/bench/metrics"
)

// Case is one benchmark case of a function.
type Case[K metrics.Kind] struct {
	ID    string
	Costs *metrics.Costs[K]
}

// FunctionCases are the cases of one benchmark function.
type FunctionCases[K metrics.Kind] struct {
	Function string
	Cases    []Case[K]
}

// IDComparison compares a case of Function against the case with the
// same id in Other. Other's case plays the old side.
type IDComparison[K metrics.Kind] struct {
	ID         string
	Function   string
	Other      string
	Comparison *Comparison[K]
}

// CompareByID compares same-id cases across sibling functions.
//
// For each function in declaration order and each of its cases with a
// non-empty id, the case is diffed against the case with the equal id in
// every other function, also in declaration order. Cases without a
// match are skipped. Only the first case per id and function is used.
func CompareByID[K metrics.Kind](functions []FunctionCases[K]) []IDComparison[K] {
	index := make([]map[string]*metrics.Costs[K], len(functions))
	for i, fn := range functions {
		index[i] = make(map[string]*metrics.Costs[K], len(fn.Cases))
		for _, c := range fn.Cases {
			if c.ID == "" {
				continue
			}
			if _, dup := index[i][c.ID]; !dup {
				index[i][c.ID] = c.Costs
			}
		}
	}

	var out []IDComparison[K]
	for i, fn := range functions {
		seen := make(map[string]bool, len(fn.Cases))
		for _, c := range fn.Cases {
			if c.ID == "" || seen[c.ID] {
				continue
			}
			seen[c.ID] = true
			for j, other := range functions {
				if j == i {
					continue
				}
				old, ok := index[j][c.ID]
				if !ok {
					continue
				}
				out = append(out, IDComparison[K]{
					ID:         c.ID,
					Function:   fn.Function,
					Other:      other.Function,
					Comparison: Diff(old, c.Costs),
				})
			}
		}
	}
	return out
}
