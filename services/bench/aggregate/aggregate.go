// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package aggregate merges per-unit costs into the whole-benchmark Total.
//
// Additive kinds are summed across units. Derived kinds (hit counts and
// rates) are never summed; they are recomputed once from the summed
// inputs.
package aggregate

import (
	"errors"
	"fmt"
	"slices"

	"github.com/AleutianAI/grindbench/services/bench/metrics"
	"github.com/AleutianAI/grindbench/services/bench/outpath"
)

// ErrNoUnits is returned when there is nothing to aggregate.
var ErrNoUnits = errors.New("no units to aggregate")

// Unit is the cost of one collection unit.
type Unit[K metrics.Kind] struct {
	ID    outpath.UnitID    `json:"id"`
	Costs *metrics.Costs[K] `json:"costs"`
}

// Total is the whole-benchmark result.
type Total[K metrics.Kind] struct {
	// Costs holds the summed additive kinds and the recomputed derived
	// kinds.
	Costs *metrics.Costs[K] `json:"total"`

	// Units is the per-unit breakdown, sorted by UnitID. It is only set
	// when Options.ShowIntermediate is true and never influences Costs.
	Units []Unit[K] `json:"units,omitempty"`
}

// Options configure aggregation.
type Options struct {
	ShowIntermediate bool
}

// Aggregate sums units into a Total.
//
// A kind recorded by at least one unit is present in the Total; units not
// recording it contribute zero. UnitIDs must be unique.
func Aggregate[K metrics.Kind](units []Unit[K], opts Options) (*Total[K], error) {
	if len(units) == 0 {
		return nil, ErrNoUnits
	}

	seen := make(map[outpath.UnitID]struct{}, len(units))
	sum := &metrics.Costs[K]{}
	for _, u := range units {
		if _, dup := seen[u.ID]; dup {
			return nil, fmt.Errorf("duplicate unit %s", u.ID)
		}
		seen[u.ID] = struct{}{}
		sum.Add(u.Costs.WithoutDerived())
	}
	if sum.CanSummarize() {
		if err := sum.MakeSummary(); err != nil {
			return nil, err
		}
	}

	total := &Total[K]{Costs: sum}
	if opts.ShowIntermediate {
		total.Units = make([]Unit[K], 0, len(units))
		for _, u := range units {
			costs := u.Costs.WithoutDerived()
			if costs.CanSummarize() {
				if err := costs.MakeSummary(); err != nil {
					return nil, err
				}
			}
			total.Units = append(total.Units, Unit[K]{ID: u.ID, Costs: costs})
		}
		slices.SortFunc(total.Units, func(a, b Unit[K]) int { return a.ID.Compare(b.ID) })
	}
	return total, nil
}
