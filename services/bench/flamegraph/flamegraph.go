// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package flamegraph folds callgrind cost trees into flamegraph stacks.
//
// The folding follows the reference conversion of the callgrind output
// into the "frame;frame count" format: every function's inclusive cost is
// ranked, and each function is treated as covering the next cheaper one.
// The resulting chain is not the real call graph but conserves the total.
package flamegraph

import (
	"bufio"
	"cmp"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strconv"
	"strings"

	"github.com/AleutianAI/grindbench/services/bench/callgrind"
	"github.com/AleutianAI/grindbench/services/bench/metrics"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrMissingKind is returned when the trees do not record the
	// requested event kind.
	ErrMissingKind = errors.New("event kind not present in cost tree")

	// ErrRatioKind is returned for a rate kind, which cannot be folded.
	ErrRatioKind = errors.New("ratio event kinds cannot be folded")
)

// DefaultObjectPlaceholder stands in for an unknown object file.
const DefaultObjectPlaceholder = callgrind.UnknownName

// -----------------------------------------------------------------------------
// Options
// -----------------------------------------------------------------------------

// Options configure label normalization and folding.
type Options struct {
	// ProjectRoot is stripped from absolute source and object paths.
	ProjectRoot string

	// ObjectPlaceholder replaces an unknown object. Empty drops the
	// object part of the label.
	// Default: "???"
	ObjectPlaceholder string

	// Sentinel excludes every function more expensive than the first
	// function it matches. The zero value excludes nothing.
	Sentinel callgrind.Sentinel

	// Logger for output.
	Logger *slog.Logger
}

// DefaultOptions returns options with the default object placeholder.
func DefaultOptions() Options {
	return Options{ObjectPlaceholder: DefaultObjectPlaceholder}
}

func (o Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

// -----------------------------------------------------------------------------
// Stack
// -----------------------------------------------------------------------------

// Stack is one folded-stack record.
type Stack struct {
	// Frames are the labels from root to leaf.
	Frames []string

	// Count is the exclusive cost of the leaf frame.
	Count uint64
}

// Path joins the frames with ';'.
func (s Stack) Path() string {
	return strings.Join(s.Frames, ";")
}

// String renders the folded line "frame;frame count".
func (s Stack) String() string {
	return s.Path() + " " + strconv.FormatUint(s.Count, 10)
}

// Total returns the sum of all counts.
func Total(stacks []Stack) uint64 {
	var sum uint64
	for _, s := range stacks {
		sum += s.Count
	}
	return sum
}

// WriteFolded writes one line per stack.
func WriteFolded(w io.Writer, stacks []Stack) error {
	bw := bufio.NewWriter(w)
	for _, s := range stacks {
		if _, err := fmt.Fprintln(bw, s.String()); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// -----------------------------------------------------------------------------
// Building
// -----------------------------------------------------------------------------

// entry is one normalized function with its merged costs.
type entry struct {
	label     string
	id        callgrind.FunctionID
	inclusive *metrics.Costs[metrics.EventKind]
	self      *metrics.Costs[metrics.EventKind]
	sentinel  bool
}

// ranked is an entry with the cost of the selected kind.
type ranked struct {
	label string
	cost  uint64
}

// collect merges the functions of all trees by label, in first-seen
// order.
func collect(trees []*callgrind.CostTree, opts Options) []*entry {
	var order []*entry
	byLabel := make(map[string]*entry)
	for _, tree := range trees {
		if tree == nil {
			continue
		}
		for i := 0; i < tree.Len(); i++ {
			node := tree.Node(i)
			label := Label(node.ID, opts)
			e, ok := byLabel[label]
			if !ok {
				e = &entry{
					label:     label,
					id:        node.ID,
					inclusive: &metrics.Costs[metrics.EventKind]{},
					self:      &metrics.Costs[metrics.EventKind]{},
				}
				byLabel[label] = e
				order = append(order, e)
			}
			e.inclusive.Add(tree.Inclusive(i))
			e.self.Add(node.Self)
			if opts.Sentinel.Matches(node.ID.Function) {
				e.sentinel = true
			}
		}
	}
	return order
}

// costOf returns the value of kind in c, computing derived kinds first.
func costOf(c *metrics.Costs[metrics.EventKind], kind metrics.EventKind) (uint64, error) {
	if kind.IsDerived() && !c.Has(kind) && c.CanSummarize() {
		c = c.Clone()
		if err := c.MakeSummary(); err != nil {
			return 0, err
		}
	}
	m, ok := c.Get(kind)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrMissingKind, kind)
	}
	v, _ := m.Uint64()
	return v, nil
}

// rank computes the cost of every entry, applies the sentinel and sorts.
func rank(entries []*entry, kind metrics.EventKind, opts Options) ([]ranked, error) {
	if kind.IsFloat() {
		return nil, fmt.Errorf("%w: %s", ErrRatioKind, kind)
	}

	all := make([]ranked, 0, len(entries))
	var (
		limit    uint64
		hasLimit bool
	)
	for _, e := range entries {
		cost, err := costOf(e.inclusive, kind)
		if err != nil {
			return nil, err
		}
		all = append(all, ranked{label: e.label, cost: cost})
		if e.sentinel && !hasLimit {
			limit, hasLimit = cost, true
		}
	}
	if !opts.Sentinel.IsZero() && !hasLimit {
		opts.logger().Warn("sentinel matched no function",
			slog.String("sentinel", opts.Sentinel.String()))
	}

	if hasLimit {
		all = slices.DeleteFunc(all, func(r ranked) bool { return r.cost > limit })
	}
	slices.SortFunc(all, func(a, b ranked) int {
		if c := cmp.Compare(b.cost, a.cost); c != 0 {
			return c
		}
		return strings.Compare(a.label, b.label)
	})
	return all, nil
}

// fold turns the ranked chain into stacks.
func fold(chain []ranked) []Stack {
	var (
		stacks []Stack
		frames []string
	)
	for i, r := range chain {
		frames = append(frames, r.label)
		count := r.cost
		if i+1 < len(chain) {
			count -= chain[i+1].cost
		}
		if count == 0 {
			continue
		}
		stacks = append(stacks, Stack{Frames: slices.Clone(frames), Count: count})
	}
	return stacks
}

// Build folds the cost trees into stacks for one event kind.
//
// Description:
//
//	Functions of all trees are merged by their normalized label. The
//	merged inclusive costs are sorted descending, ties broken by label.
//	Each entry extends the previous entry's path and gets the difference
//	between its cost and the next entry's cost; the last entry keeps its
//	own cost. Functions more expensive than the sentinel are dropped.
//	Zero counts are not emitted but still extend the path.
//
// Outputs:
//   - []Stack: The stacks, root first. Empty for empty trees.
//   - error: ErrMissingKind or ErrRatioKind.
func Build(trees []*callgrind.CostTree, kind metrics.EventKind, opts Options) ([]Stack, error) {
	chain, err := rank(collect(trees, opts), kind, opts)
	if err != nil {
		return nil, err
	}
	return fold(chain), nil
}
