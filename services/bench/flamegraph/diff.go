// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package flamegraph

import (
	"bufio"
	"fmt"
	"io"

	"github.com/AleutianAI/grindbench/services/bench/callgrind"
	"github.com/AleutianAI/grindbench/services/bench/metrics"
)

// DiffLine is one line of the two-column differential folded format.
type DiffLine struct {
	Frames []string
	Old    uint64
	New    uint64
}

// Delta returns New - Old.
func (d DiffLine) Delta() int64 {
	return int64(d.New) - int64(d.Old)
}

// String renders "frame;frame old new".
func (d DiffLine) String() string {
	return fmt.Sprintf("%s %d %d", Stack{Frames: d.Frames}.Path(), d.Old, d.New)
}

// DiffStacks holds both stack sets of a differential flamegraph and
// their merge.
type DiffStacks struct {
	Old   []Stack
	New   []Stack
	Lines []DiffLine
}

// BuildDiff folds old and new with the same normalization and merges
// the results by path.
//
// Lines follow new's order; paths only present in old are appended in
// old's order with a zero new count. A nil or empty old yields lines with
// zero old counts.
func BuildDiff(old, new []*callgrind.CostTree, kind metrics.EventKind, opts Options) (*DiffStacks, error) {
	oldStacks, err := Build(old, kind, opts)
	if err != nil {
		return nil, fmt.Errorf("old: %w", err)
	}
	newStacks, err := Build(new, kind, opts)
	if err != nil {
		return nil, fmt.Errorf("new: %w", err)
	}
	return &DiffStacks{Old: oldStacks, New: newStacks, Lines: Merge(oldStacks, newStacks)}, nil
}

// Merge pairs stacks of equal path.
func Merge(old, new []Stack) []DiffLine {
	oldByPath := make(map[string]uint64, len(old))
	for _, s := range old {
		oldByPath[s.Path()] += s.Count
	}

	lines := make([]DiffLine, 0, len(new))
	seen := make(map[string]bool, len(new))
	for _, s := range new {
		path := s.Path()
		if seen[path] {
			continue
		}
		seen[path] = true
		lines = append(lines, DiffLine{Frames: s.Frames, Old: oldByPath[path], New: s.Count})
	}
	for _, s := range old {
		path := s.Path()
		if seen[path] {
			continue
		}
		seen[path] = true
		lines = append(lines, DiffLine{Frames: s.Frames, Old: oldByPath[path]})
	}
	return lines
}

// WriteDiff writes one differential line per entry.
func WriteDiff(w io.Writer, lines []DiffLine) error {
	bw := bufio.NewWriter(w)
	for _, l := range lines {
		if _, err := fmt.Fprintln(bw, l.String()); err != nil {
			return err
		}
	}
	return bw.Flush()
}
