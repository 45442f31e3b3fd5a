// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package engine runs the benchmark pipeline.
//
// For every Target the engine parses the tool output, aggregates the
// units, checks the result against the baseline store and writes the
// flamegraph files. Independent targets run in parallel. The outcome of a
// run is a Result whose Err maps to the process exit status.
//
// # Thread Safety
//
// An Engine is safe for concurrent use. The baseline store serializes
// writes per key.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/grindbench/services/bench/aggregate"
	"github.com/AleutianAI/grindbench/services/bench/baseline"
	"github.com/AleutianAI/grindbench/services/bench/callgrind"
	"github.com/AleutianAI/grindbench/services/bench/flamegraph"
	"github.com/AleutianAI/grindbench/services/bench/metrics"
	"github.com/AleutianAI/grindbench/services/bench/outpath"
	"github.com/AleutianAI/grindbench/services/bench/regression"
	"github.com/AleutianAI/grindbench/services/bench/report"
)

// Sink receives metrics of a run. telemetry.PrometheusSink implements it.
type Sink interface {
	regression.Sink
	RecordParseError(tool string)
}

// =============================================================================
// Options
// =============================================================================

// FlamegraphOptions control the flamegraph files written per benchmark.
type FlamegraphOptions struct {
	Enabled bool

	// Kinds gets one set of files each.
	Kinds []metrics.EventKind

	Sentinel          callgrind.Sentinel
	ObjectPlaceholder string

	// Pprof additionally writes a gzipped pprof profile.
	Pprof bool
}

// Options configure an Engine.
type Options struct {
	// ProjectRoot is stripped from paths in flamegraph labels.
	ProjectRoot string

	// Parallelism bounds the benchmarks processed at once.
	// Default: 1.
	Parallelism int

	// Compare is the baseline compared against. "" is the previous run.
	// A named baseline must exist.
	Compare string

	// Save is the name the new run is stored under. "" is the previous
	// run.
	Save string

	// Load takes the new side from this saved baseline instead of the
	// tool output. Nothing is saved.
	Load string

	Limits          regression.ToolLimits
	Aggregate       aggregate.Options
	SkipFailedUnits bool
	Flamegraph      FlamegraphOptions

	// CompareByID diffs the callgrind totals of same-id cases across the
	// functions of a group.
	CompareByID bool

	Logger *slog.Logger
	Sink   Sink
}

// DefaultOptions returns options with the built-in limits.
func DefaultOptions() Options {
	return Options{
		Parallelism: 1,
		Limits:      regression.DefaultToolLimits(),
		Flamegraph: FlamegraphOptions{
			Enabled:           true,
			Kinds:             []metrics.EventKind{metrics.Ir},
			ObjectPlaceholder: flamegraph.DefaultObjectPlaceholder,
		},
	}
}

// =============================================================================
// Engine
// =============================================================================

// Engine processes benchmark targets.
type Engine struct {
	store  baseline.Store
	opts   Options
	gate   *regression.Gate
	logger *slog.Logger
	tracer trace.Tracer
}

// New creates an Engine over store.
func New(store baseline.Store, opts Options) *Engine {
	if opts.Parallelism < 1 {
		opts.Parallelism = 1
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	gateOpts := []regression.GateOption{
		regression.WithLimits(opts.Limits),
		regression.WithCompareBaseline(opts.Compare),
		regression.WithRequireBaseline(opts.Compare != ""),
		regression.WithGateLogger(logger),
	}
	if opts.Load != "" {
		gateOpts = append(gateOpts, regression.WithoutSave())
	} else {
		gateOpts = append(gateOpts, regression.WithSaveBaseline(opts.Save))
	}
	if opts.Sink != nil {
		gateOpts = append(gateOpts, regression.WithSink(opts.Sink))
	}

	return &Engine{
		store:  store,
		opts:   opts,
		gate:   regression.NewGate(store, gateOpts...),
		logger: logger,
		tracer: otel.Tracer("engine"),
	}
}

// Result is the outcome of a run.
type Result struct {
	RunID string

	// Benchmarks holds one entry per processed target, in target order.
	// Targets skipped after a fail-fast stop are absent.
	Benchmarks []*report.Benchmark

	// Records holds the new record of every benchmark whose output was
	// collected, including those whose comparison failed.
	Records []*baseline.Record

	Regressed int
	Failed    int

	// Stopped is set when fail-fast ended the run early.
	Stopped bool
}

// Err maps the result to the run's error: nil, an error wrapping
// ErrBenchmarkFailed when any benchmark failed, or an error wrapping
// regression.ErrRegressed when any regressed.
func (r *Result) Err() error {
	switch {
	case r.Failed > 0:
		return fmt.Errorf("%w: %d of %d benchmarks", ErrBenchmarkFailed, r.Failed, len(r.Benchmarks))
	case r.Regressed > 0:
		return fmt.Errorf("%w: %d of %d benchmarks", regression.ErrRegressed, r.Regressed, len(r.Benchmarks))
	default:
		return nil
	}
}

// ErrBenchmarkFailed means at least one benchmark could not be parsed,
// loaded or compared.
var ErrBenchmarkFailed = errors.New("benchmark failed")

// Run processes targets with bounded parallelism.
//
// Description:
//
//	Each target is processed independently. A failing benchmark is
//	reported in its entry and never aborts the others. With fail-fast
//	limits the first regression stops targets that have not started.
//	Compare-by-id results are attached once all targets are done.
//
// Outputs:
//   - *Result: Never nil unless ctx is nil.
//   - error: Only for a nil or cancelled context.
func (e *Engine) Run(ctx context.Context, targets []Target) (*Result, error) {
	if ctx == nil {
		return nil, errors.New("context must not be nil")
	}
	runID := uuid.NewString()
	ctx, span := e.tracer.Start(ctx, "engine.Run", trace.WithAttributes(
		attribute.String("run.id", runID),
		attribute.Int("run.targets", len(targets)),
		attribute.Int("run.parallelism", e.opts.Parallelism),
	))
	defer span.End()

	results := make([]outcome, len(targets))
	var stopped atomic.Bool

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Parallelism)
	for i, t := range targets {
		g.Go(func() error {
			if stopped.Load() {
				return nil
			}
			if err := gCtx.Err(); err != nil {
				return err
			}
			b, record := e.benchmark(gCtx, t)
			b.RunID = runID
			results[i] = outcome{benchmark: b, record: record}
			if b.Decision != nil && b.Decision.StopRun {
				stopped.Store(true)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "run cancelled")
		return nil, err
	}

	res := &Result{RunID: runID, Stopped: stopped.Load()}
	done := lo.Filter(results, func(o outcome, _ int) bool { return o.benchmark != nil })
	for _, o := range done {
		b := o.benchmark
		res.Benchmarks = append(res.Benchmarks, b)
		if o.record != nil {
			res.Records = append(res.Records, o.record)
		}
		switch {
		case b.Err != nil:
			res.Failed++
		case b.Decision != nil && b.Decision.Regressed:
			res.Regressed++
		}
	}
	if e.opts.CompareByID {
		attachCompareByID(done)
	}

	span.SetAttributes(
		attribute.Int("run.regressed", res.Regressed),
		attribute.Int("run.failed", res.Failed),
		attribute.Bool("run.stopped", res.Stopped),
	)
	if res.Regressed > 0 || res.Failed > 0 {
		span.SetStatus(codes.Error, "run did not pass")
	}
	e.logger.Info("run completed",
		slog.String("run_id", runID),
		slog.Int("benchmarks", len(res.Benchmarks)),
		slog.Int("regressed", res.Regressed),
		slog.Int("failed", res.Failed),
		slog.Bool("stopped", res.Stopped),
	)
	return res, nil
}

// Rotate turns the current output of every target into the previous-run
// output, so the next collection starts clean. Targets without output are
// skipped.
func Rotate(targets []Target) error {
	for _, t := range targets {
		for _, tool := range t.Tools {
			if err := t.Output(tool).Rotate(); err != nil {
				return fmt.Errorf("rotate %s %s: %w", t.Identity, tool, err)
			}
		}
	}
	return nil
}

// Benchmark processes one target. Failures are reported in the returned
// entry's Err.
func (e *Engine) Benchmark(ctx context.Context, t Target) *report.Benchmark {
	b, _ := e.benchmark(ctx, t)
	return b
}

func (e *Engine) benchmark(ctx context.Context, t Target) (*report.Benchmark, *baseline.Record) {
	start := time.Now()
	ctx, span := e.tracer.Start(ctx, "engine.Benchmark", trace.WithAttributes(
		attribute.String("benchmark.module_path", t.Identity.ModulePath()),
		attribute.String("benchmark.id", t.Identity.CaseID),
	))
	defer span.End()

	b := &report.Benchmark{
		Identity:    t.Identity,
		NewBaseline: e.opts.Save,
		OldBaseline: e.opts.Compare,
	}
	logger := e.logger.With(slog.String("benchmark", t.Identity.String()))

	var (
		record *baseline.Record
		err    error
	)
	if e.opts.Load != "" {
		b.NewBaseline = e.opts.Load
		record, err = e.compareLoaded(ctx, t, b)
	} else {
		record, err = e.analyze(ctx, t, b, logger)
	}
	if err != nil {
		b.Err = err
		span.RecordError(err)
		span.SetStatus(codes.Error, "benchmark failed")
		logger.Error("benchmark failed", slog.String("error", err.Error()))
		return b, record
	}

	elapsed := time.Since(start)
	if e.opts.Sink != nil {
		for _, tool := range t.Tools {
			e.opts.Sink.RecordBenchmark(tool.String(), elapsed)
		}
	}
	span.SetAttributes(attribute.Bool("benchmark.regressed", b.Decision.Regressed))
	logger.Info("benchmark analyzed",
		slog.Bool("regressed", b.Decision.Regressed),
		slog.Bool("has_baseline", b.Decision.HasBaseline),
		slog.Int("violations", b.Decision.ViolationCount()),
		slog.Duration("duration", elapsed),
	)
	return b, record
}

func (e *Engine) analyze(ctx context.Context, t Target, b *report.Benchmark, logger *slog.Logger) (*baseline.Record, error) {
	if len(t.Tools) == 0 {
		return nil, fmt.Errorf("%w: no tool output for %s in %s", outpath.ErrNoOutput, t.Identity, t.Dir)
	}
	record, profiles, err := e.collect(ctx, t, logger)
	if err != nil {
		return nil, err
	}

	d, err := e.gate.Check(ctx, t.Identity, record)
	var baselineErr *regression.BaselineError
	switch {
	case errors.As(err, &baselineErr):
		// only the comparison failed: the new values are still reported,
		// nothing is saved
		logger.Warn("requested baseline unavailable",
			slog.String("baseline", baselineErr.Key.StorageName()),
			slog.String("error", baselineErr.Err.Error()),
		)
		d = e.gate.Evaluate(t.Identity, nil, record)
	case err != nil:
		return nil, err
	}
	b.Decision = d

	if d.BaselineSaved && e.opts.Save != "" {
		if err := e.keepOutput(t, e.opts.Save); err != nil {
			logger.Warn("could not keep output for baseline",
				slog.String("baseline", e.opts.Save),
				slog.String("error", err.Error()),
			)
		}
	}
	if e.opts.Flamegraph.Enabled && len(profiles) > 0 {
		paths, err := e.writeFlamegraphs(ctx, t, profiles, logger)
		if err != nil {
			return nil, fmt.Errorf("flamegraph: %w", err)
		}
		b.Flamegraphs = paths
	}
	if baselineErr != nil {
		return record, baselineErr
	}
	return record, nil
}

// compareLoaded compares two saved baselines without reading tool
// output.
func (e *Engine) compareLoaded(ctx context.Context, t Target, b *report.Benchmark) (*baseline.Record, error) {
	newKey := baseline.Key{Identity: t.Identity, Name: e.opts.Load}
	current, err := e.store.Load(ctx, newKey)
	if err != nil {
		return nil, &regression.BaselineError{Key: newKey, Err: err}
	}
	oldKey := baseline.Key{Identity: t.Identity, Name: e.opts.Compare}
	old, err := e.store.Load(ctx, oldKey)
	if err != nil {
		return nil, &regression.BaselineError{Key: oldKey, Err: err}
	}
	b.Decision = e.gate.Evaluate(t.Identity, old, current)
	return current, nil
}

// outcome pairs a processed benchmark with the record it produced.
type outcome struct {
	benchmark *report.Benchmark
	record    *baseline.Record
}

// attachCompareByID diffs same-id cases across the functions of each
// group and attaches the results to the benchmark of the newer side.
func attachCompareByID(outcomes []outcome) {
	type groupKey struct{ file, group string }
	var order []groupKey
	groups := make(map[groupKey][]regression.FunctionCases[metrics.EventKind])
	byCase := make(map[[4]string]*report.Benchmark)

	for _, o := range outcomes {
		if o.record == nil || o.record.Callgrind == nil {
			continue
		}
		id := o.benchmark.Identity
		gk := groupKey{id.File, id.Group}
		fns, ok := groups[gk]
		if !ok {
			order = append(order, gk)
		}
		c := regression.Case[metrics.EventKind]{ID: id.CaseID, Costs: o.record.Callgrind.Costs}
		if i := slices.IndexFunc(fns, func(f regression.FunctionCases[metrics.EventKind]) bool { return f.Function == id.Function }); i >= 0 {
			fns[i].Cases = append(fns[i].Cases, c)
		} else {
			fns = append(fns, regression.FunctionCases[metrics.EventKind]{Function: id.Function, Cases: []regression.Case[metrics.EventKind]{c}})
		}
		groups[gk] = fns
		byCase[[4]string{id.File, id.Group, id.Function, id.CaseID}] = o.benchmark
	}

	for _, gk := range order {
		for _, c := range regression.CompareByID(groups[gk]) {
			b := byCase[[4]string{gk.file, gk.group, c.Function, c.ID}]
			if b == nil {
				continue
			}
			b.CompareByID = append(b.CompareByID, report.IDComparison{
				ID: c.ID, Function: c.Function, Other: c.Other, Comparison: c.Comparison,
			})
		}
	}
}
