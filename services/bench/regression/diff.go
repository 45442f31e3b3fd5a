// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package regression compares two Totals and evaluates regression limits.
//
// Diff, Check and CompareByID are pure. Gate adds the baseline store,
// tracing and metrics around them.
package regression

import (
	"encoding/json"
	"math"

	"github.com/AleutianAI/grindbench/services/bench/metrics"
)

// -----------------------------------------------------------------------------
// Ratio
// -----------------------------------------------------------------------------

// RatioState distinguishes a measured ratio from the cases that have none.
type RatioState int

const (
	// RatioNotApplicable means there is no old value to compare against.
	RatioNotApplicable RatioState = iota

	// RatioNoChange means old and new are equal. Only used for factors,
	// where a measured 1x would be misleading.
	RatioNoChange

	// RatioUndefined means the ratio has no finite value (division by a
	// zero old or new value).
	RatioUndefined

	// RatioValue means Value holds the ratio.
	RatioValue
)

// String returns the string representation.
func (s RatioState) String() string {
	switch s {
	case RatioNotApplicable:
		return "not_applicable"
	case RatioNoChange:
		return "no_change"
	case RatioUndefined:
		return "undefined"
	case RatioValue:
		return "value"
	default:
		return "unknown"
	}
}

// Ratio is a percentage or a factor together with its state.
type Ratio struct {
	State RatioState
	Value float64
}

func valueOf(v float64) Ratio { return Ratio{State: RatioValue, Value: v} }

// Float returns the value and whether the state is RatioValue.
func (r Ratio) Float() (float64, bool) {
	return r.Value, r.State == RatioValue
}

// MarshalJSON encodes a value as a number, "no change" and "undefined" as
// strings, and not applicable as null.
func (r Ratio) MarshalJSON() ([]byte, error) {
	switch r.State {
	case RatioValue:
		return json.Marshal(r.Value)
	case RatioNoChange:
		return []byte(`"no change"`), nil
	case RatioUndefined:
		return []byte(`"undefined"`), nil
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (r *Ratio) UnmarshalJSON(data []byte) error {
	switch string(data) {
	case "null":
		*r = Ratio{State: RatioNotApplicable}
		return nil
	case `"no change"`:
		*r = Ratio{State: RatioNoChange}
		return nil
	case `"undefined"`:
		*r = Ratio{State: RatioUndefined}
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*r = valueOf(v)
	return nil
}

// -----------------------------------------------------------------------------
// Comparison
// -----------------------------------------------------------------------------

// Verdict is the outcome of a comparison.
type Verdict int

const (
	// VerdictNoBaseline means there was nothing to compare against.
	VerdictNoBaseline Verdict = iota

	// VerdictNotRegressed means a baseline exists and no limit was
	// violated.
	VerdictNotRegressed

	// VerdictRegressed means at least one limit was violated.
	VerdictRegressed
)

// String returns the string representation.
func (v Verdict) String() string {
	switch v {
	case VerdictNoBaseline:
		return "no_baseline"
	case VerdictNotRegressed:
		return "not_regressed"
	case VerdictRegressed:
		return "regressed"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (v Verdict) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// MetricDiff is the comparison of one metric kind.
type MetricDiff[K metrics.Kind] struct {
	Kind       K               `json:"-"`
	Old        *metrics.Metric `json:"old"`
	New        metrics.Metric  `json:"new"`
	Percentage Ratio           `json:"diff_pct"`
	Factor     Ratio           `json:"factor"`
}

// Comparison is the result of Diff, and of Check once violations are
// attached.
type Comparison[K metrics.Kind] struct {
	Verdict    Verdict
	Diffs      []MetricDiff[K]
	Violations []Violation[K]
}

// Get returns the diff of k.
func (c *Comparison[K]) Get(k K) (MetricDiff[K], bool) {
	for _, d := range c.Diffs {
		if d.Kind == k {
			return d, true
		}
	}
	return MetricDiff[K]{}, false
}

// Regressed reports whether any violation was found.
func (c *Comparison[K]) Regressed() bool {
	return c.Verdict == VerdictRegressed
}

// Diff compares new against old.
//
// Description:
//
//	Every kind of new produces one MetricDiff, in new's order. Kinds only
//	present in old are not reported. A nil old marks every ratio as not
//	applicable and the verdict as VerdictNoBaseline. A kind missing from
//	a non-nil old is not applicable for that kind only.
//
// Outputs:
//   - *Comparison[K]: Never nil. Violations are empty until Check runs.
func Diff[K metrics.Kind](old, new *metrics.Costs[K]) *Comparison[K] {
	cmp := &Comparison[K]{Verdict: VerdictNotRegressed}
	if old == nil {
		cmp.Verdict = VerdictNoBaseline
	}
	for _, k := range new.Kinds() {
		n, _ := new.Get(k)
		d := MetricDiff[K]{Kind: k, New: n}
		if o, ok := old.Get(k); ok {
			d.Old = &o
			d.Percentage, d.Factor = Ratios(o, n)
		}
		cmp.Diffs = append(cmp.Diffs, d)
	}
	return cmp
}

// Ratios returns the percentage and factor difference from old to new.
//
// Equal values give 0% and RatioNoChange. A zero old with a non-zero new
// gives RatioUndefined for both. A zero new with a non-zero old gives
// -100% and an undefined factor.
func Ratios(old, new metrics.Metric) (pct, factor Ratio) {
	if old.Equal(new) {
		return valueOf(0), Ratio{State: RatioNoChange}
	}
	o, n := old.Float64(), new.Float64()
	if math.IsNaN(o) || math.IsNaN(n) {
		return Ratio{State: RatioUndefined}, Ratio{State: RatioUndefined}
	}
	if o == 0 {
		return Ratio{State: RatioUndefined}, Ratio{State: RatioUndefined}
	}
	pct = valueOf((n - o) * 100 / o)
	if n == 0 {
		return pct, Ratio{State: RatioUndefined}
	}
	if n >= o {
		return pct, valueOf(n / o)
	}
	return pct, valueOf(-(o / n))
}
