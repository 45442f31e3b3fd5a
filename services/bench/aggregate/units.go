// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package aggregate

import (
	"github.com/AleutianAI/grindbench/services/bench/cachegrind"
	"github.com/AleutianAI/grindbench/services/bench/callgrind"
	"github.com/AleutianAI/grindbench/services/bench/dhat"
	"github.com/AleutianAI/grindbench/services/bench/errlog"
	"github.com/AleutianAI/grindbench/services/bench/metrics"
)

// CallgrindUnits converts parsed callgrind profiles into units. Parts of a
// profile are summed into its unit.
func CallgrindUnits(profiles []*callgrind.Profile) []Unit[metrics.EventKind] {
	units := make([]Unit[metrics.EventKind], len(profiles))
	for i, p := range profiles {
		units[i] = Unit[metrics.EventKind]{ID: p.Unit, Costs: p.Totals()}
	}
	return units
}

// CachegrindUnits converts parsed cachegrind profiles into units.
func CachegrindUnits(profiles []*cachegrind.Profile) []Unit[metrics.CachegrindMetric] {
	units := make([]Unit[metrics.CachegrindMetric], len(profiles))
	for i, p := range profiles {
		units[i] = Unit[metrics.CachegrindMetric]{ID: p.Unit, Costs: p.Totals}
	}
	return units
}

// DhatUnits converts parsed DHAT profiles into units.
func DhatUnits(profiles []*dhat.Profile) []Unit[metrics.DhatMetric] {
	units := make([]Unit[metrics.DhatMetric], len(profiles))
	for i, p := range profiles {
		units[i] = Unit[metrics.DhatMetric]{ID: p.Unit, Costs: p.Totals}
	}
	return units
}

// ErrorUnits converts parsed error tool logs into units.
func ErrorUnits(profiles []*errlog.Profile) []Unit[metrics.ErrorMetric] {
	units := make([]Unit[metrics.ErrorMetric], len(profiles))
	for i, p := range profiles {
		units[i] = Unit[metrics.ErrorMetric]{ID: p.Unit, Costs: p.Totals}
	}
	return units
}
