// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package cachegrind parses cachegrind output files into per-unit totals.
package cachegrind

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/AleutianAI/grindbench/services/bench/callgrind"
	"github.com/AleutianAI/grindbench/services/bench/metrics"
	"github.com/AleutianAI/grindbench/services/bench/outpath"
)

// Profile is one parsed cachegrind output file.
type Profile struct {
	Path   string
	Unit   outpath.UnitID
	Desc   []string
	Cmd    string
	Events []metrics.CachegrindMetric

	// Totals is reconstructed from the count lines.
	Totals *metrics.Costs[metrics.CachegrindMetric]

	// Summary is the file's own "summary:" line, if present.
	Summary *metrics.Costs[metrics.CachegrindMetric]
}

// Options configure parsing.
type Options struct {
	Logger          *slog.Logger
	SkipFailedUnits bool
}

func (o Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

// ParseFile reads and parses one cachegrind output file.
func ParseFile(path string, opts Options) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &callgrind.ParseError{Path: path, Err: fmt.Errorf("read: %w", err)}
	}
	p, err := Parse(path, data, opts)
	if err != nil {
		return nil, err
	}
	if unit, err := outpath.ParseUnit(path); err == nil {
		p.Unit = unit
	}
	return p, nil
}

// ParseUnits parses all unit files of one benchmark.
func ParseUnits(_ context.Context, files []outpath.File, opts Options) ([]*Profile, error) {
	profiles := make([]*Profile, 0, len(files))
	for _, f := range files {
		p, err := ParseFile(f.Path, opts)
		if err != nil {
			if opts.SkipFailedUnits && errors.Is(err, callgrind.ErrParse) {
				opts.logger().Warn("skipping unit that failed to parse",
					slog.String("path", f.Path),
					slog.String("error", err.Error()))
				continue
			}
			return nil, err
		}
		p.Unit = f.Unit
		profiles = append(profiles, p)
	}
	if len(profiles) == 0 && len(files) > 0 {
		return nil, &callgrind.ParseError{Path: files[0].Path, Err: errors.New("no unit could be parsed")}
	}
	return profiles, nil
}

// Parse parses cachegrind output content.
func Parse(path string, data []byte, opts Options) (*Profile, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, &callgrind.ParseError{Path: path, Err: errors.New("empty file")}
	}
	p := &Profile{Path: path}
	fail := func(line int, format string, args ...any) error {
		return callgrind.NewParseError(path, line, format, args...)
	}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		switch {
		case strings.HasPrefix(line, "desc:"):
			p.Desc = append(p.Desc, strings.TrimSpace(strings.TrimPrefix(line, "desc:")))
		case strings.HasPrefix(line, "cmd:"):
			p.Cmd = strings.TrimSpace(strings.TrimPrefix(line, "cmd:"))
		case strings.HasPrefix(line, "events:"):
			events, err := parseEvents(strings.TrimPrefix(line, "events:"))
			if err != nil {
				return nil, fail(lineNo, "malformed header: %v", err)
			}
			p.Events = events
			p.Totals = metrics.NewCosts(events...)
		case strings.HasPrefix(line, "summary:"):
			if p.Events == nil {
				return nil, fail(lineNo, "summary before events declaration")
			}
			values, err := parseValues(strings.Fields(strings.TrimPrefix(line, "summary:")))
			if err != nil {
				return nil, fail(lineNo, "%v", err)
			}
			p.Summary = &metrics.Costs[metrics.CachegrindMetric]{}
			if err := p.Summary.AddValues(p.Events, values); err != nil {
				return nil, fail(lineNo, "%v", err)
			}
		case strings.HasPrefix(line, "fl="), strings.HasPrefix(line, "fn="):
			if p.Events == nil {
				return nil, fail(lineNo, "malformed header: missing events declaration")
			}
		case line[0] >= '0' && line[0] <= '9':
			if p.Events == nil {
				return nil, fail(lineNo, "malformed header: missing events declaration")
			}
			fields := strings.Fields(line)
			values, err := parseValues(fields[1:])
			if err != nil {
				return nil, fail(lineNo, "%v", err)
			}
			if err := p.Totals.AddValues(p.Events, values); err != nil {
				return nil, fail(lineNo, "%v", err)
			}
		default:
			return nil, fail(lineNo, "unknown line %q", line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fail(lineNo, "%v", err)
	}
	if p.Events == nil {
		return nil, fail(lineNo, "malformed header: missing events declaration")
	}
	if p.Summary != nil && !p.Summary.Equal(p.Totals) {
		opts.logger().Warn("cachegrind summary differs from reconstructed totals",
			slog.String("path", path))
	}
	return p, nil
}

func parseEvents(value string) ([]metrics.CachegrindMetric, error) {
	fields := strings.Fields(value)
	if len(fields) == 0 {
		return nil, errors.New("empty events declaration")
	}
	events := make([]metrics.CachegrindMetric, 0, len(fields))
	for _, f := range fields {
		k, err := metrics.ParseCachegrindMetric(f)
		if err != nil {
			return nil, err
		}
		if k.IsDerived() {
			return nil, fmt.Errorf("event %q cannot be recorded by cachegrind", f)
		}
		events = append(events, k)
	}
	return events, nil
}

func parseValues(fields []string) ([]uint64, error) {
	values := make([]uint64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseUint(f, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid count %q", f)
		}
		values[i] = v
	}
	return values, nil
}
