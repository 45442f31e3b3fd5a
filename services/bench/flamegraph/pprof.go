// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package flamegraph

import (
	"errors"
	"fmt"
	"math"

	"github.com/google/pprof/profile"

	"github.com/AleutianAI/grindbench/services/bench/callgrind"
	"github.com/AleutianAI/grindbench/services/bench/metrics"
)

// ToPprof exports the self costs of the trees as a pprof profile.
//
// The first kind orders the chain exactly as Build does. Every function
// kept in that chain becomes one sample whose stack is its chain prefix,
// leaf first, and whose values are its self costs for each kind. The sum
// of a kind's sample values is the sum of the self costs of the kept
// functions.
func ToPprof(trees []*callgrind.CostTree, kinds []metrics.EventKind, opts Options) (*profile.Profile, error) {
	if len(kinds) == 0 {
		return nil, errors.New("at least one event kind is required")
	}

	entries := collect(trees, opts)
	chain, err := rank(entries, kinds[0], opts)
	if err != nil {
		return nil, err
	}
	byLabel := make(map[string]*entry, len(entries))
	for _, e := range entries {
		byLabel[e.label] = e
	}

	p := &profile.Profile{}
	for _, k := range kinds {
		if k.IsFloat() {
			return nil, fmt.Errorf("%w: %s", ErrRatioKind, k)
		}
		p.SampleType = append(p.SampleType, &profile.ValueType{Type: k.String(), Unit: "count"})
	}
	p.DefaultSampleType = kinds[0].String()

	locations := make([]*profile.Location, 0, len(chain))
	for i, r := range chain {
		e := byLabel[r.label]
		fn := &profile.Function{
			ID:         uint64(i + 1),
			Name:       r.label,
			SystemName: e.id.Function,
			Filename:   normalizePath(opts.ProjectRoot, e.id.File),
		}
		loc := &profile.Location{
			ID:   uint64(i + 1),
			Line: []profile.Line{{Function: fn}},
		}
		p.Function = append(p.Function, fn)
		p.Location = append(p.Location, loc)
		locations = append(locations, loc)

		values := make([]int64, len(kinds))
		for j, k := range kinds {
			v, err := costOf(e.self, k)
			if err != nil {
				return nil, err
			}
			values[j] = clampInt64(v)
		}

		stack := make([]*profile.Location, 0, len(locations))
		for l := len(locations) - 1; l >= 0; l-- {
			stack = append(stack, locations[l])
		}
		p.Sample = append(p.Sample, &profile.Sample{Location: stack, Value: values})
	}

	if err := p.CheckValid(); err != nil {
		return nil, fmt.Errorf("invalid pprof profile: %w", err)
	}
	return p, nil
}

func clampInt64(v uint64) int64 {
	if v > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(v)
}
