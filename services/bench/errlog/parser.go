// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package errlog extracts the error summary from memcheck, helgrind and drd
// log files.
package errlog

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/AleutianAI/grindbench/services/bench/callgrind"
	"github.com/AleutianAI/grindbench/services/bench/metrics"
	"github.com/AleutianAI/grindbench/services/bench/outpath"
)

var (
	// "==1234== " or "--1234-- ", optionally with a --time-stamp prefix.
	prefixRe = regexp.MustCompile(`^\s*(?:==|--)(?:[0-9:.]+\s+)?([0-9]+)(?:==|--)\s?(.*)$`)

	summaryRe = regexp.MustCompile(
		`^ERROR SUMMARY:\s+([0-9,]+)\s+errors?\s+from\s+([0-9,]+)\s+contexts?\s+\(suppressed:\s+([0-9,]+)\s+from\s+([0-9,]+)\)`,
	)
)

// Profile is one parsed error tool log.
type Profile struct {
	Path      string
	Unit      outpath.UnitID
	Tool      metrics.Tool
	Pid       int
	ParentPid int
	Command   string
	Totals    *metrics.Costs[metrics.ErrorMetric]
}

// Options configure parsing.
type Options struct {
	Logger          *slog.Logger
	SkipFailedUnits bool
}

// ParseFile reads and parses one log file.
func ParseFile(path string, tool metrics.Tool) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &callgrind.ParseError{Path: path, Err: fmt.Errorf("read: %w", err)}
	}
	p, err := Parse(path, tool, data)
	if err != nil {
		return nil, err
	}
	if unit, err := outpath.ParseUnit(path); err == nil {
		p.Unit = unit
	}
	return p, nil
}

// ParseUnits parses all log files of one benchmark.
func ParseUnits(_ context.Context, tool metrics.Tool, files []outpath.File, opts Options) ([]*Profile, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	profiles := make([]*Profile, 0, len(files))
	for _, f := range files {
		p, err := ParseFile(f.Path, tool)
		if err != nil {
			if opts.SkipFailedUnits && errors.Is(err, callgrind.ErrParse) {
				logger.Warn("skipping unit that failed to parse",
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

// Parse scans a valgrind log for its header and the last ERROR SUMMARY
// line.
func Parse(path string, tool metrics.Tool, data []byte) (*Profile, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, &callgrind.ParseError{Path: path, Err: errors.New("empty file")}
	}
	p := &Profile{Path: path, Tool: tool}
	found := false

	scanner := bufio.NewScanner(bytes.NewReader(data))
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		m := prefixRe.FindStringSubmatch(scanner.Text())
		if m == nil {
			continue
		}
		if p.Pid == 0 {
			p.Pid, _ = strconv.Atoi(m[1])
		}
		body := strings.TrimSpace(m[2])
		switch {
		case strings.HasPrefix(body, "Command:"):
			p.Command = strings.TrimSpace(strings.TrimPrefix(body, "Command:"))
		case strings.HasPrefix(body, "Parent PID:"):
			p.ParentPid, _ = strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(body, "Parent PID:")))
		case strings.HasPrefix(body, "ERROR SUMMARY:"):
			sm := summaryRe.FindStringSubmatch(body)
			if sm == nil {
				return nil, callgrind.NewParseError(path, lineNo, "malformed error summary %q", body)
			}
			totals, err := summaryCosts(sm[1:])
			if err != nil {
				return nil, callgrind.NewParseError(path, lineNo, "%v", err)
			}
			p.Totals = totals
			found = true
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, callgrind.NewParseError(path, lineNo, "%v", err)
	}
	if !found {
		return nil, &callgrind.ParseError{Path: path, Err: errors.New("no ERROR SUMMARY line")}
	}
	return p, nil
}

func summaryCosts(fields []string) (*metrics.Costs[metrics.ErrorMetric], error) {
	kinds := []metrics.ErrorMetric{
		metrics.Errors, metrics.Contexts, metrics.SuppressedErrors, metrics.SuppressedContexts,
	}
	values := make([]uint64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseUint(strings.ReplaceAll(f, ",", ""), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid count %q", f)
		}
		values[i] = v
	}
	c := &metrics.Costs[metrics.ErrorMetric]{}
	if err := c.AddValues(kinds, values); err != nil {
		return nil, err
	}
	return c, nil
}
