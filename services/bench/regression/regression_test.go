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
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/grindbench/services/bench/metrics"
)

func ir(v uint64) *metrics.Costs[metrics.EventKind] {
	c := &metrics.Costs[metrics.EventKind]{}
	c.Set(metrics.Ir, metrics.Int(v))
	return c
}

func limits(t *testing.T, s string) *Limits[metrics.EventKind] {
	t.Helper()
	l, err := ParseLimits[metrics.EventKind](s)
	require.NoError(t, err)
	return l
}

func irDiff(t *testing.T, cmp *Comparison[metrics.EventKind]) MetricDiff[metrics.EventKind] {
	t.Helper()
	d, ok := cmp.Get(metrics.Ir)
	require.True(t, ok)
	return d
}

// =============================================================================
// Diff
// =============================================================================

func TestDiff_PercentageAndFactor(t *testing.T) {
	tests := []struct {
		name     string
		old, new uint64
		pct      float64
		factor   float64
	}{
		{"increase", 100, 110, 10, 1.1},
		{"decrease", 100, 90, -10, -100.0 / 90},
		{"double", 100, 200, 100, 2},
		{"half", 200, 100, -50, -2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := irDiff(t, Diff(ir(tt.old), ir(tt.new)))
			pct, ok := d.Percentage.Float()
			require.True(t, ok)
			assert.InDelta(t, tt.pct, pct, 1e-9)
			factor, ok := d.Factor.Float()
			require.True(t, ok)
			assert.InDelta(t, tt.factor, factor, 1e-9)
		})
	}
}

func TestDiff_EqualValuesAreNoChange(t *testing.T) {
	d := irDiff(t, Diff(ir(100), ir(100)))
	pct, ok := d.Percentage.Float()
	require.True(t, ok)
	assert.Zero(t, pct)
	assert.Equal(t, RatioNoChange, d.Factor.State)
}

func TestDiff_ZeroOldIsUndefined(t *testing.T) {
	d := irDiff(t, Diff(ir(0), ir(50)))
	assert.Equal(t, RatioUndefined, d.Percentage.State)
	assert.Equal(t, RatioUndefined, d.Factor.State)

	d = irDiff(t, Diff(ir(0), ir(0)))
	assert.Equal(t, RatioNoChange, d.Factor.State)
}

func TestDiff_ZeroNew(t *testing.T) {
	d := irDiff(t, Diff(ir(50), ir(0)))
	pct, ok := d.Percentage.Float()
	require.True(t, ok)
	assert.InDelta(t, -100.0, pct, 1e-9)
	assert.Equal(t, RatioUndefined, d.Factor.State)
}

func TestDiff_NoBaseline(t *testing.T) {
	cmp := Diff(nil, ir(100))
	assert.Equal(t, VerdictNoBaseline, cmp.Verdict)
	d := irDiff(t, cmp)
	assert.Nil(t, d.Old)
	assert.Equal(t, RatioNotApplicable, d.Percentage.State)
	assert.Equal(t, RatioNotApplicable, d.Factor.State)
}

func TestDiff_KindsFollowNew(t *testing.T) {
	old := ir(100)
	old.Set(metrics.Dr, metrics.Int(5))
	cur := &metrics.Costs[metrics.EventKind]{}
	cur.Set(metrics.Dw, metrics.Int(7))
	cur.Set(metrics.Ir, metrics.Int(100))

	cmp := Diff(old, cur)
	require.Len(t, cmp.Diffs, 2)
	assert.Equal(t, metrics.Dw, cmp.Diffs[0].Kind)
	assert.Nil(t, cmp.Diffs[0].Old, "Dw is missing from old")
	assert.Equal(t, metrics.Ir, cmp.Diffs[1].Kind)
	_, ok := cmp.Get(metrics.Dr)
	assert.False(t, ok)
}

func TestRatio_JSON(t *testing.T) {
	d := irDiff(t, Diff(ir(0), ir(5)))
	data, err := json.Marshal(d)
	require.NoError(t, err)
	assert.JSONEq(t, `{"old":0,"new":5,"diff_pct":"undefined","factor":"undefined"}`, string(data))

	for _, r := range []Ratio{{State: RatioNotApplicable}, {State: RatioNoChange}, {State: RatioUndefined}, valueOf(12.5)} {
		data, err := json.Marshal(r)
		require.NoError(t, err)
		var back Ratio
		require.NoError(t, json.Unmarshal(data, &back))
		assert.Equal(t, r, back)
	}
}

// =============================================================================
// Limits
// =============================================================================

func TestParseLimits_LaterItemsOverride(t *testing.T) {
	l := limits(t, "@all=10%,Ir=5%")

	soft, ok := l.Soft(metrics.Ir)
	require.True(t, ok)
	assert.Equal(t, 5.0, soft)

	soft, ok = l.Soft(metrics.Dr)
	require.True(t, ok)
	assert.Equal(t, 10.0, soft)

	assert.Equal(t, len(metrics.AllKinds[metrics.EventKind]()), l.Len())
	assert.Equal(t, metrics.Ir, l.All()[0].Kind, "override keeps position")
}

func TestParseLimits_SoftAndHard(t *testing.T) {
	l := limits(t, "Ir=5%|10000, EstimatedCycles=-2.5%")

	soft, _ := l.Soft(metrics.Ir)
	assert.Equal(t, 5.0, soft)
	hard, ok := l.Hard(metrics.Ir)
	require.True(t, ok)
	assert.Equal(t, metrics.Int(10000), hard)

	soft, _ = l.Soft(metrics.EstimatedCycles)
	assert.Equal(t, -2.5, soft)

	assert.Equal(t, "Ir=5%|10000,EstimatedCycles=-2.5%", l.String())
}

func TestParseLimits_HardOnFloatKindConverts(t *testing.T) {
	l := limits(t, "L1HitRate=90")
	hard, ok := l.Hard(metrics.L1HitRate)
	require.True(t, ok)
	assert.True(t, hard.IsFloat())
	assert.Equal(t, 90.0, hard.Float64())
}

func TestParseLimits_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"blank", "   "},
		{"no equals", "Ir"},
		{"unknown metric", "Foo=5%"},
		{"unknown group", "@nope=5%"},
		{"bad soft", "Ir=abc%"},
		{"bad hard", "Ir=abc"},
		{"negative hard", "Ir=-5"},
		{"float hard on int kind", "Ir=10.5"},
		{"nan soft", "Ir=NaN%"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseLimits[metrics.EventKind](tt.input)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrConfig)
			var cfgErr *ConfigError
			assert.True(t, errors.As(err, &cfgErr))
		})
	}
}

func TestParseLimits_FloatHardMessage(t *testing.T) {
	_, err := ParseLimits[metrics.EventKind]("Ir=10.5")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected an integer")
}

func TestDefaultLimits(t *testing.T) {
	soft, ok := DefaultLimits[metrics.EventKind]().Soft(metrics.Ir)
	require.True(t, ok)
	assert.Equal(t, 10.0, soft)

	soft, ok = DefaultLimits[metrics.DhatMetric]().Soft(metrics.TotalBytes)
	require.True(t, ok)
	assert.Equal(t, 10.0, soft)

	assert.Zero(t, DefaultLimits[metrics.ErrorMetric]().Len())
}

func TestLimits_Merge(t *testing.T) {
	l := DefaultLimits[metrics.EventKind]()
	other := limits(t, "Ir=2%,Dr=100")
	other.FailFast = true
	l.Merge(other)

	soft, _ := l.Soft(metrics.Ir)
	assert.Equal(t, 2.0, soft)
	hard, ok := l.Hard(metrics.Dr)
	require.True(t, ok)
	assert.Equal(t, metrics.Int(100), hard)
	assert.True(t, l.FailFast)

	assert.NotPanics(t, func() { l.Merge(nil) })
	soft, _ = l.Soft(metrics.Ir)
	assert.Equal(t, 2.0, soft)
	assert.True(t, l.FailFast)
}

// =============================================================================
// Check
// =============================================================================

func TestCheck_SoftLimits(t *testing.T) {
	tests := []struct {
		name     string
		old, new uint64
		limit    string
		violated bool
	}{
		{"increase above limit", 100, 110, "Ir=5%", true},
		{"decrease with positive limit", 100, 90, "Ir=5%", false},
		{"decrease below negative limit", 100, 90, "Ir=-5%", true},
		{"increase with negative limit", 100, 110, "Ir=-5%", false},
		{"increase within limit", 100, 104, "Ir=5%", false},
		{"exactly at limit", 100, 105, "Ir=5%", false},
		{"zero limit flags any increase", 100, 101, "Ir=0%", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmp := Evaluate(ir(tt.old), ir(tt.new), limits(t, tt.limit))
			if tt.violated {
				require.Len(t, cmp.Violations, 1)
				assert.Equal(t, LimitSoft, cmp.Violations[0].Type)
				assert.Equal(t, VerdictRegressed, cmp.Verdict)
			} else {
				assert.Empty(t, cmp.Violations)
				assert.Equal(t, VerdictNotRegressed, cmp.Verdict)
			}
		})
	}
}

func TestCheck_HardLimit(t *testing.T) {
	cmp := Evaluate(ir(100), ir(12000), limits(t, "Ir=10000"))
	require.Len(t, cmp.Violations, 1)
	v := cmp.Violations[0]
	assert.Equal(t, LimitHard, v.Type)
	assert.Equal(t, metrics.Int(10000), *v.HardLimit)
	assert.Equal(t, metrics.Int(2000), *v.Excess)
	assert.Equal(t, "Ir (12000) exceeds limit by 2000 (>10000)", v.String())

	cmp = Evaluate(ir(100), ir(10000), limits(t, "Ir=10000"))
	assert.Empty(t, cmp.Violations)
}

func TestCheck_SoftBeforeHard(t *testing.T) {
	cmp := Evaluate(ir(100), ir(20000), limits(t, "Ir=5%|10000"))
	require.Len(t, cmp.Violations, 2)
	assert.Equal(t, LimitSoft, cmp.Violations[0].Type)
	assert.Equal(t, LimitHard, cmp.Violations[1].Type)
}

func TestCheck_NoBaselineNeverRegresses(t *testing.T) {
	cmp := Evaluate(nil, ir(1_000_000), limits(t, "Ir=0%|1"))
	assert.Empty(t, cmp.Violations)
	assert.Equal(t, VerdictNoBaseline, cmp.Verdict)
}

func TestCheck_UndefinedPercentageIsSkipped(t *testing.T) {
	cmp := Evaluate(ir(0), ir(500), limits(t, "Ir=5%"))
	assert.Empty(t, cmp.Violations)
}

func TestCheck_LimitOnAbsentKindIsIgnored(t *testing.T) {
	cmp := Evaluate(ir(100), ir(200), limits(t, "Dr=1%"))
	assert.Empty(t, cmp.Violations)
}

func TestViolation_SoftString(t *testing.T) {
	cmp := Evaluate(ir(100), ir(110), limits(t, "Ir=5%"))
	require.Len(t, cmp.Violations, 1)
	assert.Equal(t, "Ir (100 -> 110) regressed by +10.0000% (>+5.00000%)", cmp.Violations[0].String())

	cmp = Evaluate(ir(100), ir(90), limits(t, "Ir=-5%"))
	require.Len(t, cmp.Violations, 1)
	assert.Equal(t, "Ir (100 -> 90) regressed by -10.0000% (<-5.00000%)", cmp.Violations[0].String())
}

func TestSignedShort(t *testing.T) {
	tests := map[float64]string{
		0:         "+0.00000",
		1.5:       "+1.50000",
		-12.25:    "-12.2500",
		123.4:     "+123.400",
		1234.5:    "+1234.50",
		12345.67:  "+12345.7",
		123456.78: "+123457",
	}
	for in, want := range tests {
		assert.Equal(t, want, SignedShort(in))
	}
}

// =============================================================================
// CompareByID
// =============================================================================

func TestCompareByID(t *testing.T) {
	functions := []FunctionCases[metrics.EventKind]{
		{Function: "bench_a", Cases: []Case[metrics.EventKind]{
			{ID: "small", Costs: ir(100)},
			{ID: "large", Costs: ir(1000)},
			{Costs: ir(1)},
		}},
		{Function: "bench_b", Cases: []Case[metrics.EventKind]{
			{ID: "small", Costs: ir(200)},
		}},
		{Function: "bench_c", Cases: []Case[metrics.EventKind]{
			{ID: "other", Costs: ir(5)},
		}},
	}

	got := CompareByID(functions)
	require.Len(t, got, 2)

	assert.Equal(t, "small", got[0].ID)
	assert.Equal(t, "bench_a", got[0].Function)
	assert.Equal(t, "bench_b", got[0].Other)
	pct, _ := irDiff(t, got[0].Comparison).Percentage.Float()
	assert.InDelta(t, -50.0, pct, 1e-9)

	assert.Equal(t, "bench_b", got[1].Function)
	assert.Equal(t, "bench_a", got[1].Other)
	pct, _ = irDiff(t, got[1].Comparison).Percentage.Float()
	assert.InDelta(t, 100.0, pct, 1e-9)
}

func TestCompareByID_NoMatches(t *testing.T) {
	functions := []FunctionCases[metrics.EventKind]{
		{Function: "bench_a", Cases: []Case[metrics.EventKind]{{ID: "x", Costs: ir(1)}}},
	}
	assert.Empty(t, CompareByID(functions))
}
