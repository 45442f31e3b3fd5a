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
	"fmt"
	"log/slog"
	"slices"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/grindbench/services/bench/aggregate"
	"github.com/AleutianAI/grindbench/services/bench/baseline"
	"github.com/AleutianAI/grindbench/services/bench/metrics"
	"github.com/AleutianAI/grindbench/services/bench/outpath"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

// BaselineError reports a baseline that was explicitly requested but could
// not be loaded. It fails the comparison of one benchmark, not the run.
type BaselineError struct {
	Key baseline.Key
	Err error
}

func (e *BaselineError) Error() string {
	return fmt.Sprintf("baseline '%s' for %s: %v", e.Key.StorageName(), e.Key.Identity, e.Err)
}

func (e *BaselineError) Unwrap() error { return e.Err }

// -----------------------------------------------------------------------------
// Sink
// -----------------------------------------------------------------------------

// Sink receives gate measurements. telemetry.PrometheusSink implements it.
type Sink interface {
	RecordBenchmark(tool string, duration time.Duration)
	RecordMetric(benchmark, tool, kind string, value float64)
	RecordRegression(tool, kind, limit string)
}

// -----------------------------------------------------------------------------
// Gate Configuration
// -----------------------------------------------------------------------------

// ToolLimits holds the limits of every tool.
type ToolLimits struct {
	Callgrind  *Limits[metrics.EventKind]
	Cachegrind *Limits[metrics.CachegrindMetric]
	Dhat       *Limits[metrics.DhatMetric]
	Errors     *Limits[metrics.ErrorMetric]
}

// DefaultToolLimits returns the built-in limits of every tool.
func DefaultToolLimits() ToolLimits {
	return ToolLimits{
		Callgrind:  DefaultLimits[metrics.EventKind](),
		Cachegrind: DefaultLimits[metrics.CachegrindMetric](),
		Dhat:       DefaultLimits[metrics.DhatMetric](),
		Errors:     DefaultLimits[metrics.ErrorMetric](),
	}
}

// FailFast reports whether any tool asks to stop after a regression.
func (t ToolLimits) FailFast() bool {
	return (t.Callgrind != nil && t.Callgrind.FailFast) ||
		(t.Cachegrind != nil && t.Cachegrind.FailFast) ||
		(t.Dhat != nil && t.Dhat.FailFast)
}

// GateConfig configures the regression gate.
type GateConfig struct {
	// Limits are evaluated against every comparison.
	Limits ToolLimits

	// Compare is the baseline name compared against.
	// Default: "" (the previous run)
	Compare string

	// Save stores the new record after the check.
	// Default: true
	Save bool

	// SaveName is the baseline name the new record is saved under.
	// Default: "" (the previous run)
	SaveName string

	// RequireBaseline turns a missing baseline into a BaselineError.
	// Default: false (missing baseline = nothing to compare)
	RequireBaseline bool

	// FailFast marks a regressed decision as stopping the run.
	FailFast bool

	// Logger for output.
	Logger *slog.Logger

	// Sink receives measurements. Optional.
	Sink Sink
}

// DefaultGateConfig compares against and then replaces the previous run.
func DefaultGateConfig() *GateConfig {
	return &GateConfig{
		Limits: DefaultToolLimits(),
		Save:   true,
		Logger: slog.Default(),
	}
}

// GateOption configures the gate.
type GateOption func(*GateConfig)

// WithLimits sets the limits of every tool.
func WithLimits(limits ToolLimits) GateOption {
	return func(c *GateConfig) {
		c.Limits = limits
		c.FailFast = c.FailFast || limits.FailFast()
	}
}

// WithFailFast marks regressed decisions as stopping the run.
func WithFailFast(enabled bool) GateOption {
	return func(c *GateConfig) {
		c.FailFast = enabled
	}
}

// WithRequireBaseline requires the compared baseline to exist.
func WithRequireBaseline(required bool) GateOption {
	return func(c *GateConfig) {
		c.RequireBaseline = required
	}
}

// WithCompareBaseline compares against a named baseline.
func WithCompareBaseline(name string) GateOption {
	return func(c *GateConfig) {
		c.Compare = name
	}
}

// WithSaveBaseline saves the new record under name after the check.
func WithSaveBaseline(name string) GateOption {
	return func(c *GateConfig) {
		c.Save = true
		c.SaveName = name
	}
}

// WithoutSave leaves the store untouched.
func WithoutSave() GateOption {
	return func(c *GateConfig) {
		c.Save = false
	}
}

// WithGateLogger sets the logger.
func WithGateLogger(logger *slog.Logger) GateOption {
	return func(c *GateConfig) {
		if logger != nil {
			c.Logger = logger
		}
	}
}

// WithSink sets the measurement sink.
func WithSink(sink Sink) GateOption {
	return func(c *GateConfig) {
		c.Sink = sink
	}
}

// -----------------------------------------------------------------------------
// Decision
// -----------------------------------------------------------------------------

// UnitComparison compares one unit with the unit of the same id in the
// baseline. It is informational; limits are never applied to units.
type UnitComparison[K metrics.Kind] struct {
	ID         outpath.UnitID
	Comparison *Comparison[K]
}

// ToolComparison is the comparison of one tool's Total.
type ToolComparison[K metrics.Kind] struct {
	Total *Comparison[K]
	Units []UnitComparison[K]
}

// Decision is the gate result for one benchmark.
type Decision struct {
	Identity baseline.Identity

	// Baseline is the compared baseline name, "" for the previous run.
	Baseline string

	// HasBaseline is false when nothing was compared.
	HasBaseline bool

	Callgrind  *ToolComparison[metrics.EventKind]
	Cachegrind *ToolComparison[metrics.CachegrindMetric]
	Dhat       *ToolComparison[metrics.DhatMetric]
	Errors     map[string]*ToolComparison[metrics.ErrorMetric]

	// Regressed is true if any tool has a violation.
	Regressed bool

	// StopRun is true when the run should not process further
	// benchmarks.
	StopRun bool

	// BaselineSaved is true if the new record was stored.
	BaselineSaved bool

	Duration  time.Duration
	Timestamp time.Time
}

// ViolationCount returns the number of violations across tools.
func (d *Decision) ViolationCount() int {
	n := 0
	if d.Callgrind != nil {
		n += len(d.Callgrind.Total.Violations)
	}
	if d.Cachegrind != nil {
		n += len(d.Cachegrind.Total.Violations)
	}
	if d.Dhat != nil {
		n += len(d.Dhat.Total.Violations)
	}
	for _, c := range d.Errors {
		n += len(c.Total.Violations)
	}
	return n
}

// ErrorTools returns the error tool names in sorted order.
func (d *Decision) ErrorTools() []string {
	names := make([]string, 0, len(d.Errors))
	for name := range d.Errors {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// -----------------------------------------------------------------------------
// Gate
// -----------------------------------------------------------------------------

// Gate checks benchmark records against stored baselines.
//
// Thread Safety: Safe for concurrent use.
type Gate struct {
	store  baseline.Store
	config *GateConfig
	logger *slog.Logger
}

// NewGate creates a new regression gate.
//
// Inputs:
//   - store: Baseline store. Must not be nil.
//   - opts: Configuration options.
//
// Outputs:
//   - *Gate: The new gate. Never nil.
func NewGate(store baseline.Store, opts ...GateOption) *Gate {
	config := DefaultGateConfig()
	for _, opt := range opts {
		opt(config)
	}
	return &Gate{
		store:  store,
		config: config,
		logger: config.Logger,
	}
}

// Config returns the effective configuration.
func (g *Gate) Config() GateConfig { return *g.config }

// Check compares current against its baseline.
//
// Description:
//
//	Check loads the configured baseline for id, evaluates every tool of
//	current against it, and saves current if configured. A missing
//	baseline yields a decision without comparisons, unless
//	RequireBaseline is set.
//
// Inputs:
//   - ctx: Context for cancellation. Must not be nil.
//   - id: Benchmark identity.
//   - current: The new record.
//
// Outputs:
//   - *Decision: Never nil when error is nil.
//   - error: A *BaselineError, a store error, or an invalid input.
//
// Thread Safety: Safe for concurrent use.
func (g *Gate) Check(ctx context.Context, id baseline.Identity, current *baseline.Record) (*Decision, error) {
	if ctx == nil {
		return nil, errors.New("context must not be nil")
	}
	if current == nil {
		return nil, errors.New("current record must not be nil")
	}

	ctx, span := otel.Tracer("regression").Start(ctx, "regression.Gate.Check",
		trace.WithAttributes(
			attribute.String("benchmark", id.String()),
			attribute.String("baseline", g.config.Compare),
		),
	)
	defer span.End()

	key := baseline.Key{Identity: id, Name: g.config.Compare}
	old, err := g.store.Load(ctx, key)
	if err != nil {
		if !errors.Is(err, baseline.ErrBaselineNotFound) || g.config.RequireBaseline {
			span.RecordError(err)
			span.SetStatus(codes.Error, "baseline unavailable")
			return nil, &BaselineError{Key: key, Err: err}
		}
		old = nil
	}

	decision := g.Evaluate(id, old, current)

	if g.config.Save {
		saveKey := baseline.Key{Identity: id, Name: g.config.SaveName}
		if err := g.store.Save(ctx, saveKey, current); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("save baseline %s: %w", saveKey, err)
		}
		decision.BaselineSaved = true
	}

	span.SetAttributes(
		attribute.Bool("has_baseline", decision.HasBaseline),
		attribute.Bool("regressed", decision.Regressed),
		attribute.Int("violations", decision.ViolationCount()),
		attribute.Bool("baseline_saved", decision.BaselineSaved),
	)
	if decision.Regressed {
		span.SetStatus(codes.Error, "regression detected")
	}
	return decision, nil
}

// Evaluate compares current against old without touching the store. A
// nil old means there is no baseline.
func (g *Gate) Evaluate(id baseline.Identity, old, current *baseline.Record) *Decision {
	start := time.Now()
	decision := &Decision{
		Identity:    id,
		Baseline:    g.config.Compare,
		HasBaseline: old != nil,
		Timestamp:   start,
	}
	if old == nil {
		old = &baseline.Record{}
	}
	limits := g.config.Limits
	name := id.String()

	decision.Callgrind = compareTool(old.Callgrind, current.Callgrind, limits.Callgrind)
	decision.Cachegrind = compareTool(old.Cachegrind, current.Cachegrind, limits.Cachegrind)
	decision.Dhat = compareTool(old.Dhat, current.Dhat, limits.Dhat)
	recordTool(g.config.Sink, name, metrics.ToolCallgrind, current.Callgrind, decision.Callgrind)
	recordTool(g.config.Sink, name, metrics.ToolCachegrind, current.Cachegrind, decision.Cachegrind)
	recordTool(g.config.Sink, name, metrics.ToolDHAT, current.Dhat, decision.Dhat)

	if len(current.Errors) > 0 {
		decision.Errors = make(map[string]*ToolComparison[metrics.ErrorMetric], len(current.Errors))
		for tool, total := range current.Errors {
			tc := compareTool(old.Errors[tool], total, limits.Errors)
			decision.Errors[tool] = tc
			if t, err := metrics.ParseTool(tool); err == nil {
				recordTool(g.config.Sink, name, t, total, tc)
			}
		}
	}

	decision.Regressed = decision.ViolationCount() > 0
	decision.StopRun = decision.Regressed && g.config.FailFast
	decision.Duration = time.Since(start)

	logger := g.logger
	if decision.Regressed {
		logger.Warn("performance regressed",
			slog.String("benchmark", name),
			slog.String("baseline", baseline.Key{Name: g.config.Compare}.StorageName()),
			slog.Int("violations", decision.ViolationCount()),
		)
	} else {
		logger.Debug("regression gate check completed",
			slog.String("benchmark", name),
			slog.Bool("has_baseline", decision.HasBaseline),
		)
	}
	return decision
}

func compareTool[K metrics.Kind](old, current *aggregate.Total[K], limits *Limits[K]) *ToolComparison[K] {
	if current == nil {
		return nil
	}
	var oldCosts *metrics.Costs[K]
	if old != nil {
		oldCosts = old.Costs
	}
	tc := &ToolComparison[K]{Total: Evaluate(oldCosts, current.Costs, limits)}

	if len(current.Units) > 0 {
		oldUnits := make(map[outpath.UnitID]*metrics.Costs[K])
		if old != nil {
			for _, u := range old.Units {
				oldUnits[u.ID] = u.Costs
			}
		}
		for _, u := range current.Units {
			tc.Units = append(tc.Units, UnitComparison[K]{ID: u.ID, Comparison: Diff(oldUnits[u.ID], u.Costs)})
		}
	}
	return tc
}

func recordTool[K metrics.Kind](sink Sink, name string, tool metrics.Tool, current *aggregate.Total[K], tc *ToolComparison[K]) {
	if sink == nil || current == nil || tc == nil {
		return
	}
	for _, k := range current.Costs.Kinds() {
		m, _ := current.Costs.Get(k)
		sink.RecordMetric(name, tool.String(), k.String(), m.Float64())
	}
	for _, v := range tc.Total.Violations {
		sink.RecordRegression(tool.String(), v.Kind.String(), v.Type.String())
	}
}
