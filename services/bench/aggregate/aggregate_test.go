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
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/grindbench/services/bench/callgrind"
	"github.com/AleutianAI/grindbench/services/bench/metrics"
	"github.com/AleutianAI/grindbench/services/bench/outpath"
)

var cacheInputs = []metrics.EventKind{
	metrics.Ir, metrics.Dr, metrics.Dw,
	metrics.I1mr, metrics.D1mr, metrics.D1mw,
	metrics.ILmr, metrics.DLmr, metrics.DLmw,
}

func unit(t *testing.T, pid int, values ...uint64) Unit[metrics.EventKind] {
	t.Helper()
	c := &metrics.Costs[metrics.EventKind]{}
	require.NoError(t, c.AddValues(cacheInputs[:len(values)], values))
	return Unit[metrics.EventKind]{ID: outpath.UnitID{Pid: pid}, Costs: c}
}

func get(t *testing.T, c *metrics.Costs[metrics.EventKind], k metrics.EventKind) metrics.Metric {
	t.Helper()
	m, ok := c.Get(k)
	require.True(t, ok, "%s not recorded", k)
	return m
}

func TestAggregate_AdditiveKindsAreSummed(t *testing.T) {
	a := unit(t, 1, 100, 20, 10)
	b := unit(t, 2, 50, 5, 1)

	total, err := Aggregate([]Unit[metrics.EventKind]{a, b}, Options{})
	require.NoError(t, err)

	for _, k := range []metrics.EventKind{metrics.Ir, metrics.Dr, metrics.Dw} {
		av, _ := get(t, a.Costs, k).Uint64()
		bv, _ := get(t, b.Costs, k).Uint64()
		tv, _ := get(t, total.Costs, k).Uint64()
		assert.Equal(t, av+bv, tv, k.String())
	}
	assert.False(t, total.Costs.Has(metrics.L1HitRate), "no summary without cache inputs")
	assert.Nil(t, total.Units)
}

func TestAggregate_DerivedRatioIsRecomputed(t *testing.T) {
	// Unit 1 hits L1 on everything, unit 2 misses to RAM on everything.
	hot := unit(t, 1, 100, 0, 0, 0, 0, 0, 0, 0, 0)
	cold := unit(t, 2, 300, 0, 0, 300, 0, 0, 300, 0, 0)

	total, err := Aggregate([]Unit[metrics.EventKind]{hot, cold}, Options{ShowIntermediate: true})
	require.NoError(t, err)
	require.Len(t, total.Units, 2)

	hotRate := get(t, total.Units[0].Costs, metrics.L1HitRate).Float64()
	coldRate := get(t, total.Units[1].Costs, metrics.L1HitRate).Float64()
	assert.InDelta(t, 100.0, hotRate, 1e-9)
	assert.InDelta(t, 0.0, coldRate, 1e-9)

	rate := get(t, total.Costs, metrics.L1HitRate).Float64()
	assert.InDelta(t, 25.0, rate, 1e-9)
	assert.NotEqual(t, (hotRate+coldRate)/2, rate)

	ram, _ := get(t, total.Costs, metrics.RamHits).Uint64()
	assert.Equal(t, uint64(300), ram)
}

func TestAggregate_PartitionsAreAdditive(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))

	for round := 0; round < 200; round++ {
		n := 1 + rng.IntN(8)
		units := make([]Unit[metrics.EventKind], n)
		raw := &metrics.Costs[metrics.EventKind]{}
		for i := range units {
			values := make([]uint64, len(cacheInputs))
			for j := range values {
				values[j] = rng.Uint64N(1 << 20)
			}
			units[i] = unit(t, i+1, values...)
			raw.Add(units[i].Costs)
		}

		whole, err := Aggregate(units, Options{})
		require.NoError(t, err)

		want := raw.Clone()
		require.NoError(t, want.MakeSummary())
		require.True(t, want.Equal(whole.Costs), "round %d: derived kinds recomputed from the summed counters", round)

		// Aggregate a random partition, then aggregate the partial totals.
		groups := 1 + rng.IntN(n)
		parts := make([][]Unit[metrics.EventKind], groups)
		for _, u := range units {
			g := rng.IntN(groups)
			parts[g] = append(parts[g], u)
		}
		var partial []Unit[metrics.EventKind]
		for g, part := range parts {
			if len(part) == 0 {
				continue
			}
			total, err := Aggregate(part, Options{})
			require.NoError(t, err)
			partial = append(partial, Unit[metrics.EventKind]{ID: outpath.UnitID{Pid: g + 1}, Costs: total.Costs})
		}
		merged, err := Aggregate(partial, Options{})
		require.NoError(t, err)

		assert.True(t, whole.Costs.WithoutDerived().Equal(merged.Costs.WithoutDerived()), "round %d: raw costs", round)
		assert.True(t, whole.Costs.Equal(merged.Costs), "round %d: derived costs", round)
	}
}

func TestAggregate_StaleDerivedValuesAreIgnored(t *testing.T) {
	u := unit(t, 1, 10, 0, 0, 0, 0, 0, 0, 0, 0)
	u.Costs.Set(metrics.L1HitRate, metrics.Float(3))

	total, err := Aggregate([]Unit[metrics.EventKind]{u}, Options{})
	require.NoError(t, err)
	assert.InDelta(t, 100.0, get(t, total.Costs, metrics.L1HitRate).Float64(), 1e-9)
}

func TestAggregate_UnionOfKinds(t *testing.T) {
	a := unit(t, 1, 5)
	b := unit(t, 2, 5, 7)

	total, err := Aggregate([]Unit[metrics.EventKind]{a, b}, Options{})
	require.NoError(t, err)
	dr, _ := get(t, total.Costs, metrics.Dr).Uint64()
	assert.Equal(t, uint64(7), dr)
	assert.Equal(t, []metrics.EventKind{metrics.Ir, metrics.Dr}, total.Costs.Kinds())
}

func TestAggregate_Errors(t *testing.T) {
	_, err := Aggregate[metrics.EventKind](nil, Options{})
	assert.ErrorIs(t, err, ErrNoUnits)

	_, err = Aggregate([]Unit[metrics.EventKind]{unit(t, 1, 1), unit(t, 1, 2)}, Options{})
	assert.ErrorContains(t, err, "duplicate unit")
}

func TestAggregate_UnitsSortedByID(t *testing.T) {
	units := []Unit[metrics.EventKind]{unit(t, 30, 1), unit(t, 4, 1), unit(t, 12, 1)}
	total, err := Aggregate(units, Options{ShowIntermediate: true})
	require.NoError(t, err)
	pids := []int{total.Units[0].ID.Pid, total.Units[1].ID.Pid, total.Units[2].ID.Pid}
	assert.Equal(t, []int{4, 12, 30}, pids)
}

func TestAggregate_CallgrindRoundTrip(t *testing.T) {
	data := "events: Ir\nfn=main\n1 10\n"
	p, err := callgrind.Parse("callgrind.bench.out", []byte(data), callgrind.Options{})
	require.NoError(t, err)

	total, err := Aggregate(CallgrindUnits([]*callgrind.Profile{p}), Options{})
	require.NoError(t, err)
	assert.Equal(t, []metrics.EventKind{metrics.Ir}, total.Costs.Kinds())
	ir, _ := get(t, total.Costs, metrics.Ir).Uint64()
	assert.Equal(t, uint64(10), ir)
}
