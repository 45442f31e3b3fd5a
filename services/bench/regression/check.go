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
	"fmt"
	"math"
	"strconv"

	"github.com/AleutianAI/grindbench/services/bench/metrics"
)

// LimitType tells soft from hard violations.
type LimitType int

const (
	LimitSoft LimitType = iota
	LimitHard
)

// String returns the string representation.
func (t LimitType) String() string {
	if t == LimitHard {
		return "hard"
	}
	return "soft"
}

// MarshalText implements encoding.TextMarshaler.
func (t LimitType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// Violation is one breached limit. It is a result value, not an error.
type Violation[K metrics.Kind] struct {
	Kind K              `json:"-"`
	Type LimitType      `json:"type"`
	New  metrics.Metric `json:"new"`
	Old  metrics.Metric `json:"old"`

	// Percentage and SoftLimit are set for soft violations.
	Percentage float64 `json:"diff_pct,omitempty"`
	SoftLimit  float64 `json:"soft_limit,omitempty"`

	// HardLimit and Excess (New - HardLimit) are set for hard violations.
	HardLimit *metrics.Metric `json:"hard_limit,omitempty"`
	Excess    *metrics.Metric `json:"excess,omitempty"`
}

// MetricName returns the kind's canonical name.
func (v Violation[K]) MetricName() string { return v.Kind.String() }

func (v Violation[K]) String() string {
	if v.Type == LimitHard {
		return fmt.Sprintf("%s (%s) exceeds limit by %s (>%s)", v.Kind, v.New, *v.Excess, *v.HardLimit)
	}
	cmp := ">"
	if v.SoftLimit < 0 {
		cmp = "<"
	}
	return fmt.Sprintf("%s (%s -> %s) regressed by %s%% (%s%s%%)",
		v.Kind, v.Old, v.New, SignedShort(v.Percentage), cmp, SignedShort(v.SoftLimit))
}

// Check evaluates limits against cmp.
//
// Description:
//
//	Soft limits are checked first, then hard limits, each in limit order.
//	A soft limit p is violated when p >= 0 and the percentage exceeds p,
//	or when p < 0 and the percentage is below p. A hard limit h is
//	violated when the new value exceeds h.
//
//	A comparison without a baseline never yields a violation. Limits on
//	kinds absent from cmp are ignored, as are kinds whose percentage is
//	not a value (an undefined percentage never regresses).
//
// Outputs:
//   - []Violation[K]: Nil when nothing is violated.
func Check[K metrics.Kind](cmp *Comparison[K], limits *Limits[K]) []Violation[K] {
	if cmp == nil || cmp.Verdict == VerdictNoBaseline {
		return nil
	}
	all := limits.All()

	var out []Violation[K]
	for _, lim := range all {
		if lim.Soft == nil {
			continue
		}
		d, ok := cmp.Get(lim.Kind)
		if !ok || d.Old == nil {
			continue
		}
		pct, ok := d.Percentage.Float()
		if !ok {
			continue
		}
		p := *lim.Soft
		if (p >= 0 && pct > p) || (p < 0 && pct < p) {
			out = append(out, Violation[K]{
				Kind: lim.Kind, Type: LimitSoft,
				New: d.New, Old: *d.Old,
				Percentage: pct, SoftLimit: p,
			})
		}
	}
	for _, lim := range all {
		if lim.Hard == nil {
			continue
		}
		d, ok := cmp.Get(lim.Kind)
		if !ok || d.Old == nil {
			continue
		}
		if d.New.Compare(*lim.Hard) > 0 {
			hard, excess := *lim.Hard, d.New.Sub(*lim.Hard)
			out = append(out, Violation[K]{
				Kind: lim.Kind, Type: LimitHard,
				New: d.New, Old: *d.Old,
				HardLimit: &hard, Excess: &excess,
			})
		}
	}
	return out
}

// Evaluate runs Diff and Check and sets the final verdict.
func Evaluate[K metrics.Kind](old, new *metrics.Costs[K], limits *Limits[K]) *Comparison[K] {
	cmp := Diff(old, new)
	cmp.Violations = Check(cmp, limits)
	if len(cmp.Violations) > 0 {
		cmp.Verdict = VerdictRegressed
	}
	return cmp
}

// SignedShort formats f with a sign and a precision that shrinks as the
// magnitude grows, keeping the width roughly constant.
func SignedShort(f float64) string {
	if math.IsInf(f, 1) {
		return "+inf"
	}
	if math.IsInf(f, -1) {
		return "-inf"
	}
	if math.IsNaN(f) {
		return "NaN"
	}
	abs := math.Abs(f)
	prec := 0
	switch {
	case abs < 10:
		prec = 5
	case abs < 100:
		prec = 4
	case abs < 1000:
		prec = 3
	case abs < 10000:
		prec = 2
	case abs < 100000:
		prec = 1
	}
	s := strconv.FormatFloat(f, 'f', prec, 64)
	if f >= 0 {
		s = "+" + s
	}
	return s
}
