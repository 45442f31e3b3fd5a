// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/AleutianAI/grindbench/services/bench/baseline"
	"github.com/AleutianAI/grindbench/services/bench/metrics"
	"github.com/AleutianAI/grindbench/services/bench/regression"
)

// SchemaVersion is the version of the JSON summary layout.
const SchemaVersion = "6"

// Format selects the output of a run.
type Format string

const (
	FormatDefault    Format = "default"
	FormatJSON       Format = "json"
	FormatPrettyJSON Format = "pretty-json"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case "", FormatDefault:
		return FormatDefault, nil
	case FormatJSON, FormatPrettyJSON:
		return f, nil
	default:
		return "", fmt.Errorf("unknown output format %q", s)
	}
}

// -----------------------------------------------------------------------------
// Input
// -----------------------------------------------------------------------------

// IDComparison is one compare-by-id result of the callgrind totals.
type IDComparison struct {
	ID         string
	Function   string
	Other      string
	Comparison *regression.Comparison[metrics.EventKind]
}

// Benchmark is everything known about one processed benchmark.
type Benchmark struct {
	Identity baseline.Identity
	RunID    string

	// NewBaseline is the name the new run was saved under, OldBaseline
	// the compared one. Both are "" for the implicit previous run.
	NewBaseline string
	OldBaseline string

	Decision    *regression.Decision
	Flamegraphs []string
	CompareByID []IDComparison

	// Err is set when the benchmark failed to parse, load or compare.
	// A failed comparison still carries the new values in Decision.
	Err error
}

// -----------------------------------------------------------------------------
// JSON Summary
// -----------------------------------------------------------------------------

// MetricsSummary is an ordered kind -> diff object.
type MetricsSummary[K metrics.Kind] []regression.MetricDiff[K]

// MarshalJSON keeps the diff order.
func (m MetricsSummary[K]) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, d := range m {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(d.Kind.String())
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(d)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// ViolationSummary is a violation with its metric name.
type ViolationSummary struct {
	Metric string `json:"metric"`
	Text   string `json:"text"`
	Detail any    `json:"detail"`
}

// UnitSummary is the comparison of one unit.
type UnitSummary[K metrics.Kind] struct {
	ID      string            `json:"id"`
	Metrics MetricsSummary[K] `json:"metrics"`
}

// ToolSummary is the comparison of one tool.
type ToolSummary[K metrics.Kind] struct {
	Verdict    regression.Verdict `json:"verdict"`
	Units      []UnitSummary[K]   `json:"units,omitempty"`
	Total      MetricsSummary[K]  `json:"total"`
	Violations []ViolationSummary `json:"violations"`
}

// Baselines is the (new, old) baseline pair.
type Baselines struct {
	New string `json:"new"`
	Old string `json:"old"`
}

// IDComparisonSummary is a compare-by-id result.
type IDComparisonSummary struct {
	ID       string                            `json:"id"`
	Function string                            `json:"function"`
	Other    string                            `json:"other"`
	Total    MetricsSummary[metrics.EventKind] `json:"total"`
}

// Summary is the machine-readable record of one benchmark.
type Summary struct {
	Version     string            `json:"version"`
	RunID       string            `json:"run_id"`
	ModulePath  string            `json:"module_path"`
	Identity    baseline.Identity `json:"identity"`
	Baselines   Baselines         `json:"baselines"`
	HasBaseline bool              `json:"has_baseline"`
	Regressed   bool              `json:"regressed"`

	Callgrind  *ToolSummary[metrics.EventKind]              `json:"callgrind,omitempty"`
	Cachegrind *ToolSummary[metrics.CachegrindMetric]       `json:"cachegrind,omitempty"`
	Dhat       *ToolSummary[metrics.DhatMetric]             `json:"dhat,omitempty"`
	Errors     map[string]*ToolSummary[metrics.ErrorMetric] `json:"errors,omitempty"`

	Flamegraphs []string              `json:"flamegraphs,omitempty"`
	CompareByID []IDComparisonSummary `json:"compare_by_id,omitempty"`
	Error       string                `json:"error,omitempty"`
}

// RunSummary is the summary file of a whole run.
type RunSummary struct {
	Version    string     `json:"version"`
	Timestamp  time.Time  `json:"timestamp"`
	Benchmarks []*Summary `json:"benchmarks"`
	Regressed  int        `json:"regressed"`
	Failed     int        `json:"failed"`
}

func storageName(name string) string {
	return baseline.Key{Name: name}.StorageName()
}

func toolSummary[K metrics.Kind](tc *regression.ToolComparison[K]) *ToolSummary[K] {
	if tc == nil {
		return nil
	}
	s := &ToolSummary[K]{
		Verdict:    tc.Total.Verdict,
		Total:      MetricsSummary[K](tc.Total.Diffs),
		Violations: []ViolationSummary{},
	}
	for _, u := range tc.Units {
		s.Units = append(s.Units, UnitSummary[K]{ID: u.ID.String(), Metrics: MetricsSummary[K](u.Comparison.Diffs)})
	}
	for _, v := range tc.Total.Violations {
		s.Violations = append(s.Violations, ViolationSummary{Metric: v.MetricName(), Text: v.String(), Detail: v})
	}
	return s
}

// NewSummary converts a benchmark into its summary record.
func NewSummary(b *Benchmark) *Summary {
	s := &Summary{
		Version:     SchemaVersion,
		RunID:       b.RunID,
		ModulePath:  b.Identity.ModulePath(),
		Identity:    b.Identity,
		Baselines:   Baselines{New: storageName(b.NewBaseline), Old: storageName(b.OldBaseline)},
		Flamegraphs: b.Flamegraphs,
	}
	if b.Err != nil {
		s.Error = b.Err.Error()
	}
	if d := b.Decision; d != nil {
		s.HasBaseline = d.HasBaseline
		s.Regressed = d.Regressed
		s.Callgrind = toolSummary(d.Callgrind)
		s.Cachegrind = toolSummary(d.Cachegrind)
		s.Dhat = toolSummary(d.Dhat)
		for _, name := range d.ErrorTools() {
			if s.Errors == nil {
				s.Errors = make(map[string]*ToolSummary[metrics.ErrorMetric])
			}
			s.Errors[name] = toolSummary(d.Errors[name])
		}
	}
	for _, c := range b.CompareByID {
		s.CompareByID = append(s.CompareByID, IDComparisonSummary{
			ID: c.ID, Function: c.Function, Other: c.Other,
			Total: MetricsSummary[metrics.EventKind](c.Comparison.Diffs),
		})
	}
	return s
}

// NewRunSummary summarizes all benchmarks of a run.
func NewRunSummary(benchmarks []*Benchmark, now time.Time) *RunSummary {
	rs := &RunSummary{Version: SchemaVersion, Timestamp: now.UTC()}
	for _, b := range benchmarks {
		s := NewSummary(b)
		rs.Benchmarks = append(rs.Benchmarks, s)
		if s.Error != "" {
			rs.Failed++
		} else if s.Regressed {
			rs.Regressed++
		}
	}
	return rs
}

// WriteJSON writes v compactly followed by a newline, or indented for
// FormatPrettyJSON.
func WriteJSON(w io.Writer, v any, format Format) error {
	enc := json.NewEncoder(w)
	if format == FormatPrettyJSON {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}

// WriteSummaryFile writes the run summary to path, creating parent
// directories.
func WriteSummaryFile(path string, rs *RunSummary) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create summary directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create summary file: %w", err)
	}
	if err := WriteJSON(f, rs, FormatPrettyJSON); err != nil {
		f.Close()
		return fmt.Errorf("write summary file: %w", err)
	}
	return f.Close()
}
