// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package metrics

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// cacheSimCosts builds EventKind costs from the nine cache simulation
// inputs in declaration order.
func cacheSimCosts(t *testing.T, values ...uint64) *Costs[EventKind] {
	t.Helper()
	c := &Costs[EventKind]{}
	require.NoError(t, c.AddValues([]EventKind{Ir, Dr, Dw, I1mr, D1mr, D1mw, ILmr, DLmr, DLmw}, values))
	return c
}

func mustGet[K Kind](t *testing.T, c *Costs[K], k K) Metric {
	t.Helper()
	v, ok := c.Get(k)
	require.True(t, ok, "kind %s not recorded", k)
	return v
}

// =============================================================================
// Container Tests
// =============================================================================

func TestCosts_AbsentVersusZero(t *testing.T) {
	c := NewCosts(Ir)
	v, ok := c.Get(Ir)
	assert.True(t, ok)
	assert.True(t, v.IsZero())

	_, ok = c.Get(Dr)
	assert.False(t, ok)
}

func TestCosts_AddValues(t *testing.T) {
	kinds := []EventKind{Ir, Dr, Dw}

	t.Run("pads missing trailing values", func(t *testing.T) {
		c := &Costs[EventKind]{}
		require.NoError(t, c.AddValues(kinds, []uint64{5}))
		assert.Equal(t, kinds, c.Kinds())
		assert.True(t, mustGet(t, c, Dw).IsZero())
	})

	t.Run("accumulates", func(t *testing.T) {
		c := &Costs[EventKind]{}
		require.NoError(t, c.AddValues(kinds, []uint64{1, 2, 3}))
		require.NoError(t, c.AddValues(kinds, []uint64{1, 2, 3}))
		assert.Equal(t, Int(6), mustGet(t, c, Dw))
	})

	t.Run("rejects too many values", func(t *testing.T) {
		c := &Costs[EventKind]{}
		assert.Error(t, c.AddValues(kinds, []uint64{1, 2, 3, 4}))
	})
}

func TestCosts_AddUnion(t *testing.T) {
	a := &Costs[EventKind]{}
	a.Set(Ir, Int(10))
	b := &Costs[EventKind]{}
	b.Set(Ir, Int(5))
	b.Set(SysCount, Int(2))

	a.Add(b)
	assert.Equal(t, []EventKind{Ir, SysCount}, a.Kinds())
	assert.Equal(t, Int(15), mustGet(t, a, Ir))
	assert.Equal(t, Int(2), mustGet(t, a, SysCount))
}

func TestCosts_CloneIsIndependent(t *testing.T) {
	a := NewCosts(Ir)
	b := a.Clone()
	b.Set(Ir, Int(99))
	assert.True(t, mustGet(t, a, Ir).IsZero())
	assert.False(t, a.Equal(b))
}

func TestCosts_Remove(t *testing.T) {
	c := NewCosts(Ir, Dr, Dw)
	c.Remove(Dr)
	assert.Equal(t, []EventKind{Ir, Dw}, c.Kinds())
	c.Remove(Dr)
	assert.Equal(t, 2, c.Len())
}

func TestCosts_JSONPreservesOrder(t *testing.T) {
	c := &Costs[EventKind]{}
	c.Set(Dw, Int(3))
	c.Set(Ir, Int(1))
	c.Set(L1HitRate, Float(99.5))

	data, err := json.Marshal(c)
	require.NoError(t, err)
	assert.Equal(t, `{"Dw":3,"Ir":1,"L1HitRate":99.5}`, string(data))

	var back Costs[EventKind]
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, c.Kinds(), back.Kinds())
	assert.True(t, c.Equal(&back))
}

func TestCosts_JSONRejectsForeignKind(t *testing.T) {
	var c Costs[DhatMetric]
	err := json.Unmarshal([]byte(`{"Ir":1}`), &c)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownMetric))
}

// =============================================================================
// Summary Tests
// =============================================================================

func TestMakeSummary_ReferenceVector(t *testing.T) {
	c := cacheSimCosts(t, 1353, 255, 233, 51, 12, 0, 50, 3, 0)
	require.True(t, c.CanSummarize())
	require.NoError(t, c.MakeSummary())

	assert.Equal(t, Int(1778), mustGet(t, c, L1hits))
	assert.Equal(t, Int(10), mustGet(t, c, LLhits))
	assert.Equal(t, Int(53), mustGet(t, c, RamHits))
	assert.Equal(t, Int(1841), mustGet(t, c, TotalRW))
	assert.Equal(t, Int(3683), mustGet(t, c, EstimatedCycles))

	rates := map[EventKind]float64{
		I1MissRate:  3.7694013303769403,
		D1MissRate:  2.459016393442623,
		LLMissRate:  2.8788701792504074,
		LLiMissRate: 3.6954915003695494,
		LLdMissRate: 0.6147540983606558,
		L1HitRate:   96.57794676806084,
		LLHitRate:   0.5431830526887561,
		RamHitRate:  2.8788701792504074,
	}
	for k, want := range rates {
		got := mustGet(t, c, k)
		assert.True(t, got.IsFloat(), k.String())
		assert.InDelta(t, want, got.Float64(), 1e-9, k.String())
	}
}

func TestMakeSummary_SaturatesWhenMissesExceedRefs(t *testing.T) {
	c := cacheSimCosts(t, 10, 20, 30, 1, 2, 3, 4, 2, 0)
	require.NoError(t, c.MakeSummary())

	assert.Equal(t, Int(54), mustGet(t, c, L1hits))
	assert.Equal(t, Int(0), mustGet(t, c, LLhits))
	assert.Equal(t, Int(6), mustGet(t, c, RamHits))
	assert.Equal(t, Int(60), mustGet(t, c, TotalRW))
	assert.Equal(t, Int(264), mustGet(t, c, EstimatedCycles))

	assert.InDelta(t, 10.0, mustGet(t, c, I1MissRate).Float64(), 1e-9)
	assert.InDelta(t, 10.0, mustGet(t, c, D1MissRate).Float64(), 1e-9)
	assert.InDelta(t, 10.0, mustGet(t, c, LLMissRate).Float64(), 1e-9)
	assert.InDelta(t, 40.0, mustGet(t, c, LLiMissRate).Float64(), 1e-9)
	assert.InDelta(t, 4.0, mustGet(t, c, LLdMissRate).Float64(), 1e-9)
	assert.InDelta(t, 90.0, mustGet(t, c, L1HitRate).Float64(), 1e-9)
	assert.InDelta(t, 0.0, mustGet(t, c, LLHitRate).Float64(), 1e-9)
	assert.InDelta(t, 10.0, mustGet(t, c, RamHitRate).Float64(), 1e-9)
}

func TestMakeSummary_ZeroRefsYieldZeroRates(t *testing.T) {
	c := cacheSimCosts(t, 0, 0, 0, 0, 0, 0, 0, 0, 0)
	require.NoError(t, c.MakeSummary())
	assert.Equal(t, Float(0), mustGet(t, c, L1HitRate))
}

func TestMakeSummary_MissingInputs(t *testing.T) {
	c := NewCosts(Ir)
	assert.False(t, c.CanSummarize())
	err := c.MakeSummary()
	assert.True(t, errors.Is(err, ErrSummaryInputs))

	d := NewCosts(TotalBytes)
	assert.NoError(t, d.MakeSummary())
	assert.Equal(t, 1, d.Len())
}

func TestMakeSummary_Cachegrind(t *testing.T) {
	c := &Costs[CachegrindMetric]{}
	require.NoError(t, c.AddValues(
		[]CachegrindMetric{CgIr, CgDr, CgDw, CgI1mr, CgD1mr, CgD1mw, CgILmr, CgDLmr, CgDLmw},
		[]uint64{1353, 255, 233, 51, 12, 0, 50, 3, 0},
	))
	require.NoError(t, c.MakeSummary())
	assert.Equal(t, Int(3683), mustGet(t, c, CgEstimatedCycles))
}

func TestWithoutDerived(t *testing.T) {
	c := cacheSimCosts(t, 1353, 255, 233, 51, 12, 0, 50, 3, 0)
	require.NoError(t, c.MakeSummary())
	stripped := c.WithoutDerived()
	assert.Equal(t, 9, stripped.Len())
	assert.False(t, stripped.Has(L1hits))
}
