// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package report renders benchmark results for terminals and machines.
package report

import (
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/AleutianAI/grindbench/pkg/ux"
	"github.com/AleutianAI/grindbench/services/bench/baseline"
	"github.com/AleutianAI/grindbench/services/bench/metrics"
	"github.com/AleutianAI/grindbench/services/bench/regression"
)

// Column layout of a metric row: "  FIELD: NEW|OLD (PCT) [FACTOR]".
const (
	DiffWidth   = 9
	FieldWidth  = 21
	MetricWidth = 20
	floatWidth  = DiffWidth - 1

	NotAvailable = "N/A"
	NoChange     = "No change"
	Unknown      = "*********"
	Undefined    = "undefined"

	indent = "  "
)

var (
	regressedStyle = lipgloss.NewStyle().Foreground(ux.ColorError).Bold(true)
	improvedStyle  = lipgloss.NewStyle().Foreground(ux.ColorSuccess).Bold(true)
	moduleStyle    = lipgloss.NewStyle().Foreground(ux.ColorTealBright)
	idStyle        = lipgloss.NewStyle().Foreground(ux.ColorTealPrimary)
	headlineStyle  = lipgloss.NewStyle().Foreground(ux.ColorWarning)
)

// -----------------------------------------------------------------------------
// Options
// -----------------------------------------------------------------------------

// Options select what the terminal report shows.
type Options struct {
	// ShowIntermediate prints one sub-table per unit before the Total.
	ShowIntermediate bool

	// Grouping prints integers with thousands separators.
	Grouping bool

	// Kinds shown per tool. Nil shows the tool's default kinds.
	CallgrindKinds  []metrics.EventKind
	CachegrindKinds []metrics.CachegrindMetric
	DhatKinds       []metrics.DhatMetric
	ErrorKinds      []metrics.ErrorMetric
}

// -----------------------------------------------------------------------------
// Terminal
// -----------------------------------------------------------------------------

// Terminal writes the human-readable report.
type Terminal struct {
	w    io.Writer
	opts Options
}

// NewTerminal creates a terminal report writer.
func NewTerminal(w io.Writer, opts Options) *Terminal {
	return &Terminal{w: w, opts: opts}
}

// Write renders one benchmark.
func (t *Terminal) Write(b *Benchmark) {
	fmt.Fprintln(t.w, Header(b.Identity))

	if b.Err != nil {
		fmt.Fprintf(t.w, "%s%s %v\n", indent, ux.IconError.Render(), b.Err)
	}
	d := b.Decision
	if d == nil {
		return
	}
	if b.NewBaseline != "" || b.OldBaseline != "" {
		t.field("Baselines:", orNA(b.NewBaseline)+"|"+orNA(b.OldBaseline))
	}

	if d.Callgrind != nil {
		writeTool(t, metrics.ToolCallgrind, d.Callgrind, kindsOr(t.opts.CallgrindKinds))
	}
	if d.Cachegrind != nil {
		writeTool(t, metrics.ToolCachegrind, d.Cachegrind, kindsOr(t.opts.CachegrindKinds))
	}
	if d.Dhat != nil {
		writeTool(t, metrics.ToolDHAT, d.Dhat, kindsOr(t.opts.DhatKinds))
	}
	for _, name := range d.ErrorTools() {
		tool, err := metrics.ParseTool(name)
		if err != nil {
			continue
		}
		writeTool(t, tool, d.Errors[name], kindsOr(t.opts.ErrorKinds))
	}
	for _, p := range b.Flamegraphs {
		t.field("Flamegraph:", p)
	}
	for _, c := range b.CompareByID {
		t.writeIDComparison(c)
	}
}

// Header renders "module::path id:details".
func Header(id baseline.Identity) string {
	var b strings.Builder
	b.WriteString(ux.Paint(moduleStyle, id.ModulePath()))
	switch {
	case id.CaseID != "" && id.Details != "":
		b.WriteString(" " + ux.Paint(idStyle, id.CaseID+":") + ux.Paint(ux.Styles.Bold, id.Details))
	case id.CaseID != "":
		b.WriteString(" " + ux.Paint(idStyle, id.CaseID))
	case id.Details != "":
		b.WriteString(" " + ux.Paint(ux.Styles.Bold, id.Details))
	}
	return b.String()
}

func (t *Terminal) field(name, value string) {
	fmt.Fprintf(t.w, "%s%-*s%s\n", indent, FieldWidth, name, value)
}

func (t *Terminal) headline(text string) {
	fmt.Fprintf(t.w, "%s%s %s\n", indent, ux.Paint(headlineStyle, "##"), ux.Paint(ux.Styles.Bold, text))
}

func kindsOr[K metrics.Kind](kinds []K) []K {
	if kinds == nil {
		return metrics.DefaultKinds[K]()
	}
	return kinds
}

func writeTool[K metrics.Kind](t *Terminal, tool metrics.Tool, tc *regression.ToolComparison[K], kinds []K) {
	title := "======= " + strings.ToUpper(tool.String()) + " "
	fmt.Fprintf(t.w, "%s%s\n", indent, ux.Paint(headlineStyle, title+strings.Repeat("=", max(0, FieldWidth+2*MetricWidth-len(title)))))

	if t.opts.ShowIntermediate && len(tc.Units) > 1 {
		for _, u := range tc.Units {
			t.headline(u.ID.String())
			writeRows(t, u.Comparison, kinds)
		}
		t.headline("Total")
	}
	writeRows(t, tc.Total, kinds)

	for _, v := range tc.Total.Violations {
		fmt.Fprintf(t.w, "%s%s %s\n", indent,
			ux.Paint(regressedStyle, "Performance has regressed:"), v.String())
	}
}

func writeRows[K metrics.Kind](t *Terminal, cmp *regression.Comparison[K], kinds []K) {
	for _, k := range kinds {
		d, ok := cmp.Get(k)
		if !ok {
			continue
		}
		fmt.Fprintln(t.w, Row(d, t.opts.Grouping))
	}
}

func (t *Terminal) writeIDComparison(c IDComparison) {
	t.headline(fmt.Sprintf("Comparison with %s %s", c.Other, c.ID))
	writeRows(t, c.Comparison, kindsOr(t.opts.CallgrindKinds))
}

// -----------------------------------------------------------------------------
// Rows
// -----------------------------------------------------------------------------

// Row renders one metric diff.
//
//	"  Ir:                               120|100                  (+20.0000%) [+1.20000x]"
func Row[K metrics.Kind](d regression.MetricDiff[K], grouping bool) string {
	field := d.Kind.String() + ":"
	left := formatMetric(d.New, grouping)

	var right string
	switch {
	case d.Old == nil:
		right = fmt.Sprintf("%-*s (%s)", MetricWidth, NotAvailable, ux.Paint(ux.Styles.Muted, Unknown))
	case d.Factor.State == regression.RatioNoChange:
		right = fmt.Sprintf("%-*s (%s)", MetricWidth, formatMetric(*d.Old, grouping),
			ux.Paint(ux.Styles.Muted, center(NoChange, DiffWidth)))
	default:
		right = fmt.Sprintf("%-*s (%s) [%s]", MetricWidth, formatMetric(*d.Old, grouping),
			formatRatio(d.Percentage, '%'), formatRatio(d.Factor, 'x'))
	}

	if len(left) > MetricWidth {
		return fmt.Sprintf("%s%-*s%s\n%s%s|%s", indent, FieldWidth, field, left,
			indent, strings.Repeat(" ", FieldWidth+MetricWidth), right)
	}
	return fmt.Sprintf("%s%-*s%*s|%s", indent, FieldWidth, field, MetricWidth, left, right)
}

func formatMetric(m metrics.Metric, grouping bool) string {
	if v, ok := m.Uint64(); ok {
		if grouping {
			return humanize.Comma(int64(min(v, math.MaxInt64)))
		}
		return m.String()
	}
	f := m.Float64()
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return m.String()
	}
	if grouping {
		return humanize.CommafWithDigits(f, 5)
	}
	return fmt.Sprintf("%.5f", f)
}

// formatRatio renders a percentage or factor into DiffWidth columns.
func formatRatio(r regression.Ratio, unit byte) string {
	switch r.State {
	case regression.RatioValue:
		s := fmt.Sprintf("%*s%c", floatWidth, regression.SignedShort(r.Value), unit)
		if r.Value > 0 {
			return ux.Paint(regressedStyle, s)
		}
		if r.Value < 0 {
			return ux.Paint(improvedStyle, s)
		}
		return s
	case regression.RatioUndefined:
		return ux.Paint(regressedStyle, center(Undefined, DiffWidth))
	case regression.RatioNoChange:
		return ux.Paint(ux.Styles.Muted, center(NoChange, DiffWidth))
	default:
		return ux.Paint(ux.Styles.Muted, Unknown)
	}
}

func orNA(s string) string {
	if s == "" {
		return NotAvailable
	}
	return s
}

func center(s string, width int) string {
	pad := width - len(s)
	if pad <= 0 {
		return s
	}
	left := pad / 2
	return strings.Repeat(" ", left) + s + strings.Repeat(" ", pad-left)
}

// WriteRunSummary writes the closing line of a run.
func WriteRunSummary(w io.Writer, benchmarks []*Benchmark) {
	var passed, regressed, failed int
	for _, b := range benchmarks {
		switch {
		case b.Err != nil:
			failed++
		case b.Decision != nil && b.Decision.Regressed:
			regressed++
		default:
			passed++
		}
	}
	ux.Summary(w, passed, regressed, failed)
	for _, b := range benchmarks {
		if b.Err == nil && b.Decision != nil && b.Decision.Regressed {
			fmt.Fprintf(w, "%s%s %s\n", indent, ux.IconWarning.Render(), b.Identity)
		}
	}
}
