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
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/grindbench/services/bench/aggregate"
	"github.com/AleutianAI/grindbench/services/bench/baseline"
	"github.com/AleutianAI/grindbench/services/bench/metrics"
	"github.com/AleutianAI/grindbench/services/bench/outpath"
)

var benchID = baseline.Identity{File: "my_bench", Group: "fib", Function: "bench_fib", CaseID: "short"}

type recordingSink struct {
	mu          sync.Mutex
	benchmarks  []string
	metrics     map[string]float64
	regressions []string
}

func (s *recordingSink) RecordBenchmark(tool string, _ time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.benchmarks = append(s.benchmarks, tool)
}

func (s *recordingSink) RecordMetric(_, tool, kind string, value float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.metrics == nil {
		s.metrics = make(map[string]float64)
	}
	s.metrics[tool+"/"+kind] = value
}

func (s *recordingSink) RecordRegression(tool, kind, limit string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.regressions = append(s.regressions, tool+"/"+kind+"/"+limit)
}

func irRecord(v uint64) *baseline.Record {
	r := baseline.NewRecord(benchID)
	r.Callgrind = &aggregate.Total[metrics.EventKind]{Costs: ir(v)}
	return r
}

func TestGate_FirstRunHasNoBaseline(t *testing.T) {
	ctx := context.Background()
	store := baseline.NewMemoryStore()
	gate := NewGate(store)

	d, err := gate.Check(ctx, benchID, irRecord(100))
	require.NoError(t, err)
	assert.False(t, d.HasBaseline)
	assert.False(t, d.Regressed)
	assert.True(t, d.BaselineSaved)
	assert.Equal(t, VerdictNoBaseline, d.Callgrind.Total.Verdict)

	_, err = store.Load(ctx, baseline.Key{Identity: benchID})
	assert.NoError(t, err)
}

func TestGate_DetectsRegressionAgainstPreviousRun(t *testing.T) {
	ctx := context.Background()
	gate := NewGate(baseline.NewMemoryStore())

	_, err := gate.Check(ctx, benchID, irRecord(100))
	require.NoError(t, err)

	d, err := gate.Check(ctx, benchID, irRecord(120))
	require.NoError(t, err)
	assert.True(t, d.HasBaseline)
	assert.True(t, d.Regressed)
	assert.False(t, d.StopRun)
	assert.Equal(t, 1, d.ViolationCount())

	// The regressed run became the new previous run.
	d, err = gate.Check(ctx, benchID, irRecord(121))
	require.NoError(t, err)
	assert.False(t, d.Regressed)
}

func TestGate_NamedBaselineWithoutSave(t *testing.T) {
	ctx := context.Background()
	store := baseline.NewMemoryStore()

	saver := NewGate(store, WithSaveBaseline("main"), WithCompareBaseline("main"))
	_, err := saver.Check(ctx, benchID, irRecord(100))
	require.NoError(t, err)

	checker := NewGate(store, WithCompareBaseline("main"), WithRequireBaseline(true), WithoutSave())
	for _, v := range []uint64{200, 300} {
		d, err := checker.Check(ctx, benchID, irRecord(v))
		require.NoError(t, err)
		assert.True(t, d.Regressed)
		assert.False(t, d.BaselineSaved)
		assert.Equal(t, "main", d.Baseline)
	}

	keys, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, "main", keys[0].Name)
}

func TestGate_RequiredBaselineMissing(t *testing.T) {
	gate := NewGate(baseline.NewMemoryStore(), WithCompareBaseline("main"), WithRequireBaseline(true))

	_, err := gate.Check(context.Background(), benchID, irRecord(100))
	require.Error(t, err)
	var baseErr *BaselineError
	require.True(t, errors.As(err, &baseErr))
	assert.Equal(t, "main", baseErr.Key.Name)
	assert.ErrorIs(t, err, baseline.ErrBaselineNotFound)
}

func TestGate_FailFastStopsRun(t *testing.T) {
	l := limits(t, "Ir=1%")
	l.FailFast = true
	gate := NewGate(baseline.NewMemoryStore(), WithLimits(ToolLimits{Callgrind: l}))
	assert.True(t, gate.Config().FailFast)

	ctx := context.Background()
	_, err := gate.Check(ctx, benchID, irRecord(100))
	require.NoError(t, err)
	d, err := gate.Check(ctx, benchID, irRecord(102))
	require.NoError(t, err)
	assert.True(t, d.StopRun)
}

func TestGate_EvaluateUnitsAndErrors(t *testing.T) {
	gate := NewGate(baseline.NewMemoryStore(), WithLimits(DefaultToolLimits()))

	old := irRecord(100)
	old.Callgrind.Units = []aggregate.Unit[metrics.EventKind]{
		{ID: outpath.UnitID{Pid: 1}, Costs: ir(100)},
	}
	cur := irRecord(100)
	cur.Callgrind.Units = []aggregate.Unit[metrics.EventKind]{
		{ID: outpath.UnitID{Pid: 1}, Costs: ir(80)},
		{ID: outpath.UnitID{Pid: 2}, Costs: ir(20)},
	}
	errs := &metrics.Costs[metrics.ErrorMetric]{}
	errs.Set(metrics.Errors, metrics.Int(3))
	cur.Errors = map[string]*aggregate.Total[metrics.ErrorMetric]{
		"memcheck": {Costs: errs},
	}

	d := gate.Evaluate(benchID, old, cur)
	require.Len(t, d.Callgrind.Units, 2)
	assert.Equal(t, VerdictNotRegressed, d.Callgrind.Units[0].Comparison.Verdict)
	assert.Equal(t, VerdictNoBaseline, d.Callgrind.Units[1].Comparison.Verdict)

	require.Contains(t, d.Errors, "memcheck")
	assert.Equal(t, VerdictNoBaseline, d.Errors["memcheck"].Total.Verdict)
	assert.Equal(t, []string{"memcheck"}, d.ErrorTools())
	assert.Nil(t, d.Dhat)
	assert.False(t, d.Regressed)
}

func TestGate_RecordsToSink(t *testing.T) {
	sink := &recordingSink{}
	gate := NewGate(baseline.NewMemoryStore(), WithSink(sink))

	d := gate.Evaluate(benchID, irRecord(100), irRecord(150))
	require.True(t, d.Regressed)

	assert.Equal(t, 150.0, sink.metrics["callgrind/Ir"])
	assert.Equal(t, []string{"callgrind/Ir/soft"}, sink.regressions)
}

func TestGate_NilInputs(t *testing.T) {
	gate := NewGate(baseline.NewMemoryStore())
	//nolint:staticcheck // nil context on purpose
	_, err := gate.Check(nil, benchID, irRecord(1))
	assert.Error(t, err)
	_, err = gate.Check(context.Background(), benchID, nil)
	assert.Error(t, err)
}
