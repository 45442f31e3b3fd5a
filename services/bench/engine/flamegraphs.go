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
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/AleutianAI/grindbench/services/bench/callgrind"
	"github.com/AleutianAI/grindbench/services/bench/flamegraph"
	"github.com/AleutianAI/grindbench/services/bench/metrics"
)

// Flamegraph file suffixes next to the callgrind output.
const (
	FoldedSuffix    = ".folded"
	OldFoldedSuffix = ".old.folded"
	DiffSuffix      = ".diff.folded"
	PprofSuffix     = ".pb.gz"
)

// FlamegraphPath returns "{dir}/callgrind.{name}.{kind}{suffix}".
func FlamegraphPath(t Target, kind metrics.EventKind, suffix string) string {
	return filepath.Join(t.Dir, fmt.Sprintf("%s.%s.%s%s", metrics.ToolCallgrind, t.Name(), kind, suffix))
}

func trees(profiles []*callgrind.Profile) []*callgrind.CostTree {
	var out []*callgrind.CostTree
	for _, p := range profiles {
		out = append(out, p.Trees()...)
	}
	return out
}

// Flamegraph writes the flamegraph files of t from its current callgrind
// output. Nothing is checked or saved, and Enabled is ignored.
func (e *Engine) Flamegraph(ctx context.Context, t Target) ([]string, error) {
	files, err := t.Output(metrics.ToolCallgrind).Discover()
	if err != nil {
		return nil, err
	}
	logger := e.logger.With(slog.String("benchmark", t.Identity.String()))
	ps, err := callgrind.ParseUnits(ctx, files, callgrind.Options{Logger: logger, SkipFailedUnits: e.opts.SkipFailedUnits})
	if err != nil {
		return nil, e.parseFailed(metrics.ToolCallgrind, err)
	}
	return e.writeFlamegraphs(ctx, t, ps, logger)
}

// writeFlamegraphs writes the folded stacks of every configured kind and,
// when previous output exists, the old and differential stacks. It
// returns the written paths.
func (e *Engine) writeFlamegraphs(ctx context.Context, t Target, profiles []*callgrind.Profile, logger *slog.Logger) ([]string, error) {
	fo := e.opts.Flamegraph
	opts := flamegraph.Options{
		ProjectRoot:       e.opts.ProjectRoot,
		ObjectPlaceholder: fo.ObjectPlaceholder,
		Sentinel:          fo.Sentinel,
		Logger:            logger,
	}
	current := trees(profiles)
	previous := trees(e.previousProfiles(ctx, t, logger))

	var paths []string
	for _, kind := range fo.Kinds {
		if len(previous) == 0 {
			stacks, err := flamegraph.Build(current, kind, opts)
			if err != nil {
				return nil, err
			}
			path := FlamegraphPath(t, kind, FoldedSuffix)
			if err := writeFile(path, func(w io.Writer) error { return flamegraph.WriteFolded(w, stacks) }); err != nil {
				return nil, err
			}
			paths = append(paths, path)
			continue
		}

		d, err := flamegraph.BuildDiff(previous, current, kind, opts)
		if err != nil {
			return nil, err
		}
		files := []struct {
			suffix string
			write  func(io.Writer) error
		}{
			{FoldedSuffix, func(w io.Writer) error { return flamegraph.WriteFolded(w, d.New) }},
			{OldFoldedSuffix, func(w io.Writer) error { return flamegraph.WriteFolded(w, d.Old) }},
			{DiffSuffix, func(w io.Writer) error { return flamegraph.WriteDiff(w, d.Lines) }},
		}
		for _, f := range files {
			path := FlamegraphPath(t, kind, f.suffix)
			if err := writeFile(path, f.write); err != nil {
				return nil, err
			}
			paths = append(paths, path)
		}
	}

	if fo.Pprof && len(fo.Kinds) > 0 {
		prof, err := flamegraph.ToPprof(current, fo.Kinds, opts)
		if err != nil {
			return nil, err
		}
		path := filepath.Join(t.Dir, fmt.Sprintf("%s.%s%s", metrics.ToolCallgrind, t.Name(), PprofSuffix))
		if err := writeFile(path, prof.Write); err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func writeFile(path string, write func(io.Writer) error) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("close %s: %w", path, cerr)
		}
	}()
	if err := write(f); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
