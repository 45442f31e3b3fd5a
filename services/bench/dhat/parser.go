// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package dhat parses DHAT JSON output into per-unit totals.
package dhat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/AleutianAI/grindbench/services/bench/callgrind"
	"github.com/AleutianAI/grindbench/services/bench/metrics"
	"github.com/AleutianAI/grindbench/services/bench/outpath"
)

// Mode is the DHAT profiling mode.
type Mode string

const (
	ModeHeap     Mode = "heap"
	ModeRustHeap Mode = "rust-heap"
	ModeAdHoc    Mode = "ad-hoc"
	ModeCopy     Mode = "copy"
)

// programPoint is one "pps" entry. Fields absent in a mode decode as zero.
type programPoint struct {
	TotalBytes     uint64 `json:"tb"`
	TotalBlocks    uint64 `json:"tbk"`
	TotalLifetimes uint64 `json:"tl"`
	MaximumBytes   uint64 `json:"mb"`
	MaximumBlocks  uint64 `json:"mbk"`
	AtTGmaxBytes   uint64 `json:"gb"`
	AtTGmaxBlocks  uint64 `json:"gbk"`
	AtTEndBytes    uint64 `json:"eb"`
	AtTEndBlocks   uint64 `json:"ebk"`
	ReadsBytes     uint64 `json:"rb"`
	WritesBytes    uint64 `json:"wb"`
	Frames         []int  `json:"fs"`
}

type document struct {
	Version    int            `json:"dhatFileVersion"`
	Mode       Mode           `json:"mode"`
	Cmd        string         `json:"cmd"`
	Pid        int            `json:"pid"`
	TotalTime  uint64         `json:"te"`
	TGmax      uint64         `json:"tg"`
	Points     []programPoint `json:"pps"`
	FrameTable []string       `json:"ftbl"`
}

// Profile is one parsed DHAT output file.
type Profile struct {
	Path   string
	Unit   outpath.UnitID
	Mode   Mode
	Cmd    string
	Pid    int
	Totals *metrics.Costs[metrics.DhatMetric]
}

// Options configure parsing.
type Options struct {
	Logger          *slog.Logger
	SkipFailedUnits bool
}

// ParseFile reads and parses one DHAT output file.
func ParseFile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &callgrind.ParseError{Path: path, Err: fmt.Errorf("read: %w", err)}
	}
	p, err := Parse(path, data)
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
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	profiles := make([]*Profile, 0, len(files))
	for _, f := range files {
		p, err := ParseFile(f.Path)
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

// Parse decodes DHAT JSON and sums the program points according to the
// mode.
func Parse(path string, data []byte) (*Profile, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, &callgrind.ParseError{Path: path, Err: errors.New("empty file")}
	}
	var doc document
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&doc); err != nil {
		return nil, &callgrind.ParseError{Path: path, Err: fmt.Errorf("invalid DHAT json: %w", err)}
	}
	if doc.Version == 0 {
		return nil, &callgrind.ParseError{Path: path, Err: errors.New("missing dhatFileVersion")}
	}
	for i, pp := range doc.Points {
		for _, f := range pp.Frames {
			if f < 0 || f >= len(doc.FrameTable) {
				return nil, &callgrind.ParseError{Path: path,
					Err: fmt.Errorf("program point %d references unknown frame %d", i, f)}
			}
		}
	}

	p := &Profile{Path: path, Mode: doc.Mode, Cmd: doc.Cmd, Pid: doc.Pid}
	switch doc.Mode {
	case ModeHeap, ModeRustHeap:
		p.Totals = heapTotals(doc.Points)
	case ModeAdHoc:
		p.Totals = metrics.NewCosts(metrics.TotalUnits, metrics.TotalEvents)
		for _, pp := range doc.Points {
			p.Totals.AddTo(metrics.TotalUnits, metrics.Int(pp.TotalBytes))
			p.Totals.AddTo(metrics.TotalEvents, metrics.Int(pp.TotalBlocks))
		}
	case ModeCopy:
		p.Totals = metrics.NewCosts(metrics.TotalBytes, metrics.TotalBlocks)
		for _, pp := range doc.Points {
			p.Totals.AddTo(metrics.TotalBytes, metrics.Int(pp.TotalBytes))
			p.Totals.AddTo(metrics.TotalBlocks, metrics.Int(pp.TotalBlocks))
		}
	default:
		return nil, &callgrind.ParseError{Path: path, Err: fmt.Errorf("unknown DHAT mode %q", doc.Mode)}
	}
	return p, nil
}

func heapTotals(points []programPoint) *metrics.Costs[metrics.DhatMetric] {
	c := metrics.NewCosts(
		metrics.TotalBytes, metrics.TotalBlocks,
		metrics.AtTGmaxBytes, metrics.AtTGmaxBlocks,
		metrics.AtTEndBytes, metrics.AtTEndBlocks,
		metrics.ReadsBytes, metrics.WritesBytes,
		metrics.TotalLifetimes, metrics.MaximumBytes, metrics.MaximumBlocks,
	)
	for _, pp := range points {
		c.AddTo(metrics.TotalBytes, metrics.Int(pp.TotalBytes))
		c.AddTo(metrics.TotalBlocks, metrics.Int(pp.TotalBlocks))
		c.AddTo(metrics.AtTGmaxBytes, metrics.Int(pp.AtTGmaxBytes))
		c.AddTo(metrics.AtTGmaxBlocks, metrics.Int(pp.AtTGmaxBlocks))
		c.AddTo(metrics.AtTEndBytes, metrics.Int(pp.AtTEndBytes))
		c.AddTo(metrics.AtTEndBlocks, metrics.Int(pp.AtTEndBlocks))
		c.AddTo(metrics.ReadsBytes, metrics.Int(pp.ReadsBytes))
		c.AddTo(metrics.WritesBytes, metrics.Int(pp.WritesBytes))
		c.AddTo(metrics.TotalLifetimes, metrics.Int(pp.TotalLifetimes))
		c.AddTo(metrics.MaximumBytes, metrics.Int(pp.MaximumBytes))
		c.AddTo(metrics.MaximumBlocks, metrics.Int(pp.MaximumBlocks))
	}
	return c
}
