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
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/samber/lo"

	"github.com/AleutianAI/grindbench/services/bench/baseline"
	"github.com/AleutianAI/grindbench/services/bench/metrics"
	"github.com/AleutianAI/grindbench/services/bench/outpath"
)

// DetailsFile optionally holds the human-readable argument description of
// a benchmark case, next to its output files.
const DetailsFile = "details.txt"

// Target is one benchmark whose output files live in Dir.
type Target struct {
	Identity baseline.Identity

	// Dir holds the tool output files of this benchmark.
	Dir string

	// Tools lists the tools with current-run output, in tool order.
	Tools []metrics.Tool
}

// Name is the bench name used in the output file names:
// "function" or "function.id".
func (t Target) Name() string {
	if t.Identity.CaseID == "" {
		return t.Identity.Function
	}
	return t.Identity.Function + "." + t.Identity.CaseID
}

// Output returns the current-run OutputPath of tool.
func (t Target) Output(tool metrics.Tool) outpath.OutputPath {
	return outpath.New(t.Dir, tool, t.Name())
}

// Discover finds every benchmark below outDir.
//
// Description:
//
//	The layout is "{outDir}/{file}/{group}/{function}[.{id}]/", each leaf
//	holding "<tool>.<function>[.<id>]...out|log" files. A leaf without
//	any current-run output (only ".old" or ".base@" files) is still
//	returned, with no tools. Directories not matching the layout are
//	ignored.
//
// Outputs:
//   - []Target: Sorted by file, group, function and id.
//   - error: outpath.ErrNoOutput when outDir holds no benchmark at all.
func Discover(outDir string) ([]Target, error) {
	leaves, err := filepath.Glob(filepath.Join(outDir, "*", "*", "*"))
	if err != nil {
		return nil, fmt.Errorf("discover benchmarks: %w", err)
	}

	var targets []Target
	for _, dir := range leaves {
		t, ok, err := targetAt(outDir, dir)
		if err != nil {
			return nil, err
		}
		if ok {
			targets = append(targets, t)
		}
	}
	if len(targets) == 0 {
		return nil, fmt.Errorf("%w: no benchmarks below %s", outpath.ErrNoOutput, outDir)
	}
	slices.SortFunc(targets, func(a, b Target) int {
		return strings.Compare(a.Dir, b.Dir)
	})
	return targets, nil
}

// Lookup returns the target of one identity below outDir.
func Lookup(outDir string, id baseline.Identity) (Target, error) {
	dir := filepath.Join(outDir, id.File, id.Group, Target{Identity: id}.Name())
	t, ok, err := targetAt(outDir, dir)
	if err != nil {
		return Target{}, err
	}
	if !ok {
		return Target{}, fmt.Errorf("%w: %s", outpath.ErrNoOutput, dir)
	}
	return t, nil
}

func targetAt(outDir, dir string) (Target, bool, error) {
	info, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Target{}, false, nil
		}
		return Target{}, false, fmt.Errorf("discover benchmarks: %w", err)
	}
	if !info.IsDir() {
		return Target{}, false, nil
	}

	rel, err := filepath.Rel(outDir, dir)
	if err != nil {
		return Target{}, false, err
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) != 3 {
		return Target{}, false, nil
	}
	fn, caseID, _ := strings.Cut(parts[2], ".")
	id := baseline.Identity{File: parts[0], Group: parts[1], Function: fn, CaseID: caseID}
	if id.Validate() != nil {
		return Target{}, false, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return Target{}, false, fmt.Errorf("discover benchmarks: %w", err)
	}
	t := Target{Identity: id, Dir: dir}
	var found, ok bool
	for _, e := range entries {
		fname, err := outpath.ParseFileName(e.Name())
		if err != nil {
			continue
		}
		if fname, ok = fname.For(t.Name()); !ok {
			continue
		}
		found = true
		tool, err := metrics.ParseTool(fname.Tool)
		if err != nil || fname.Baseline != "" {
			continue
		}
		t.Tools = append(t.Tools, tool)
	}
	if !found {
		return Target{}, false, nil
	}
	t.Tools = lo.Uniq(t.Tools)
	slices.Sort(t.Tools)

	if data, err := os.ReadFile(filepath.Join(dir, DetailsFile)); err == nil {
		t.Identity.Details = strings.TrimSpace(string(data))
	}
	return t, true, nil
}
