// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/AleutianAI/grindbench/services/bench/aggregate"
	"github.com/AleutianAI/grindbench/services/bench/baseline"
	"github.com/AleutianAI/grindbench/services/bench/cachegrind"
	"github.com/AleutianAI/grindbench/services/bench/callgrind"
	"github.com/AleutianAI/grindbench/services/bench/dhat"
	"github.com/AleutianAI/grindbench/services/bench/errlog"
	"github.com/AleutianAI/grindbench/services/bench/metrics"
	"github.com/AleutianAI/grindbench/services/bench/outpath"
)

// collect parses and aggregates the output of every tool of t. The
// callgrind profiles are returned for the flamegraphs.
func (e *Engine) collect(ctx context.Context, t Target, logger *slog.Logger) (*baseline.Record, []*callgrind.Profile, error) {
	record := baseline.NewRecord(t.Identity)
	var profiles []*callgrind.Profile

	for _, tool := range t.Tools {
		files, err := t.Output(tool).Discover()
		if err != nil {
			return nil, nil, err
		}

		switch tool {
		case metrics.ToolCallgrind:
			ps, err := callgrind.ParseUnits(ctx, files, callgrind.Options{Logger: logger, SkipFailedUnits: e.opts.SkipFailedUnits})
			if err != nil {
				return nil, nil, e.parseFailed(tool, err)
			}
			if record.Callgrind, err = aggregate.Aggregate(aggregate.CallgrindUnits(ps), e.opts.Aggregate); err != nil {
				return nil, nil, fmt.Errorf("%s: %w", tool, err)
			}
			profiles = ps

		case metrics.ToolCachegrind:
			ps, err := cachegrind.ParseUnits(ctx, files, cachegrind.Options{Logger: logger, SkipFailedUnits: e.opts.SkipFailedUnits})
			if err != nil {
				return nil, nil, e.parseFailed(tool, err)
			}
			if record.Cachegrind, err = aggregate.Aggregate(aggregate.CachegrindUnits(ps), e.opts.Aggregate); err != nil {
				return nil, nil, fmt.Errorf("%s: %w", tool, err)
			}

		case metrics.ToolDHAT:
			ps, err := dhat.ParseUnits(ctx, files, dhat.Options{Logger: logger, SkipFailedUnits: e.opts.SkipFailedUnits})
			if err != nil {
				return nil, nil, e.parseFailed(tool, err)
			}
			if record.Dhat, err = aggregate.Aggregate(aggregate.DhatUnits(ps), e.opts.Aggregate); err != nil {
				return nil, nil, fmt.Errorf("%s: %w", tool, err)
			}

		default:
			ps, err := errlog.ParseUnits(ctx, tool, files, errlog.Options{Logger: logger, SkipFailedUnits: e.opts.SkipFailedUnits})
			if err != nil {
				return nil, nil, e.parseFailed(tool, err)
			}
			total, err := aggregate.Aggregate(aggregate.ErrorUnits(ps), e.opts.Aggregate)
			if err != nil {
				return nil, nil, fmt.Errorf("%s: %w", tool, err)
			}
			if record.Errors == nil {
				record.Errors = make(map[string]*aggregate.Total[metrics.ErrorMetric])
			}
			record.Errors[tool.String()] = total
		}
		logger.Debug("tool output aggregated",
			slog.String("tool", tool.String()),
			slog.Int("units", len(files)),
		)
	}
	return record, profiles, nil
}

func (e *Engine) parseFailed(tool metrics.Tool, err error) error {
	if e.opts.Sink != nil {
		e.opts.Sink.RecordParseError(tool.String())
	}
	return fmt.Errorf("%s: %w", tool, err)
}

// keepOutput copies the current output of t to the ".base@name" files,
// replacing earlier ones, so later runs can draw differential
// flamegraphs against the named baseline.
func (e *Engine) keepOutput(t Target, name string) error {
	for _, tool := range t.Tools {
		current := t.Output(tool)
		base := current.Base(name)
		if old, err := base.Discover(); err == nil {
			for _, f := range old {
				if err := os.Remove(f.Path); err != nil {
					return err
				}
			}
		}
		files, err := current.Discover()
		if err != nil {
			return err
		}
		for _, f := range files {
			if err := copyFile(f.Path, base.UnitPath(f.Unit)); err != nil {
				return err
			}
		}
	}
	return nil
}

func copyFile(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
	}()
	_, err = io.Copy(out, in)
	return err
}

// previousProfiles parses the callgrind output the new run is compared
// with: ".old" for the previous run, ".base@name" for a named baseline.
// Missing output yields nil.
func (e *Engine) previousProfiles(ctx context.Context, t Target, logger *slog.Logger) []*callgrind.Profile {
	p := t.Output(metrics.ToolCallgrind)
	if e.opts.Compare == "" {
		p = p.Old()
	} else {
		p = p.Base(e.opts.Compare)
	}
	files, err := p.Discover()
	if err != nil {
		if !errors.Is(err, outpath.ErrNoOutput) {
			logger.Warn("could not list previous output", slog.String("error", err.Error()))
		}
		return nil
	}
	ps, err := callgrind.ParseUnits(ctx, files, callgrind.Options{Logger: logger, SkipFailedUnits: true})
	if err != nil {
		logger.Warn("could not parse previous output",
			slog.String("path", p.String()),
			slog.String("error", err.Error()),
		)
		return nil
	}
	return ps
}
