// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package callgrind

import (
	"github.com/AleutianAI/grindbench/services/bench/metrics"
)

// UnknownName is the placeholder for a missing object, file or function.
const UnknownName = "???"

// FunctionID identifies a function node within one cost tree.
type FunctionID struct {
	Object   string
	File     string
	Function string
}

// Node is a function in the call graph.
type Node struct {
	ID FunctionID

	// Self holds the cost of the function's own instructions.
	Self *metrics.Costs[metrics.EventKind]

	// Position is the first position recorded for the function (a line
	// number or an instruction address depending on the file's
	// positions declaration).
	Position uint64
}

// Edge is a caller to callee call arc.
type Edge struct {
	Caller int
	Callee int

	// Calls is the number of executed calls.
	Calls uint64

	// Inclusive is the cost of all executions of the callee through this
	// arc, including the callee's own callees.
	Inclusive *metrics.Costs[metrics.EventKind]
}

// CostTree is the call graph of one part of one unit.
//
// Nodes live in an arena and are referenced by index; edges are index
// pairs. Recursion produces cycles, which the representation handles
// without special cases. A CostTree is read-only once parsing finishes.
type CostTree struct {
	events []metrics.EventKind
	nodes  []Node
	edges  []Edge
	index  map[FunctionID]int
	arcs   map[[2]int]int
	out    map[int][]int
	in     map[int][]int
}

// NewCostTree returns an empty tree for the given declared events.
func NewCostTree(events []metrics.EventKind) *CostTree {
	return &CostTree{
		events: append([]metrics.EventKind(nil), events...),
		index:  make(map[FunctionID]int),
		arcs:   make(map[[2]int]int),
		out:    make(map[int][]int),
		in:     make(map[int][]int),
	}
}

// Events returns the declared event kinds.
func (t *CostTree) Events() []metrics.EventKind {
	return append([]metrics.EventKind(nil), t.events...)
}

// Len returns the number of nodes.
func (t *CostTree) Len() int {
	return len(t.nodes)
}

// Node returns the node at index i.
func (t *CostTree) Node(i int) *Node {
	return &t.nodes[i]
}

// Edges returns all edges.
func (t *CostTree) Edges() []Edge {
	return t.edges
}

// Lookup returns the index of a function.
func (t *CostTree) Lookup(id FunctionID) (int, bool) {
	i, ok := t.index[id]
	return i, ok
}

// Callers returns the indices of edges ending at node i.
func (t *CostTree) Callers(i int) []int {
	return t.in[i]
}

// Callees returns the indices of edges starting at node i.
func (t *CostTree) Callees(i int) []int {
	return t.out[i]
}

// Edge returns the edge at index e.
func (t *CostTree) Edge(e int) *Edge {
	return &t.edges[e]
}

// Roots returns the nodes that are never called by another function.
func (t *CostTree) Roots() []int {
	var roots []int
	for i := range t.nodes {
		if len(t.externalCallers(i)) == 0 {
			roots = append(roots, i)
		}
	}
	return roots
}

// Inclusive returns the inclusive cost of node i.
//
// A called function's inclusive cost is the sum of its incoming call
// arcs. A function nobody calls gets its self cost plus its outgoing call
// arcs. Recursive self-arcs are ignored in both cases.
func (t *CostTree) Inclusive(i int) *metrics.Costs[metrics.EventKind] {
	total := metrics.NewCosts(t.events...)
	if callers := t.externalCallers(i); len(callers) > 0 {
		for _, e := range callers {
			total.Add(t.edges[e].Inclusive)
		}
		return total
	}
	total.Add(t.nodes[i].Self)
	for _, e := range t.out[i] {
		if t.edges[e].Callee != i {
			total.Add(t.edges[e].Inclusive)
		}
	}
	return total
}

// SelfTotal returns the sum of all self costs.
func (t *CostTree) SelfTotal() *metrics.Costs[metrics.EventKind] {
	total := metrics.NewCosts(t.events...)
	for i := range t.nodes {
		total.Add(t.nodes[i].Self)
	}
	return total
}

func (t *CostTree) externalCallers(i int) []int {
	var callers []int
	for _, e := range t.in[i] {
		if t.edges[e].Caller != i {
			callers = append(callers, e)
		}
	}
	return callers
}

// node returns the index of id, adding it if necessary.
func (t *CostTree) node(id FunctionID, position uint64) int {
	if i, ok := t.index[id]; ok {
		return i
	}
	t.nodes = append(t.nodes, Node{
		ID:       id,
		Self:     metrics.NewCosts(t.events...),
		Position: position,
	})
	i := len(t.nodes) - 1
	t.index[id] = i
	return i
}

func (t *CostTree) addSelf(i int, values []uint64) error {
	return t.nodes[i].Self.AddValues(t.events, values)
}

// addCall records a call arc, merging repeated arcs between the same pair.
func (t *CostTree) addCall(caller, callee int, calls uint64, values []uint64) error {
	key := [2]int{caller, callee}
	e, ok := t.arcs[key]
	if !ok {
		t.edges = append(t.edges, Edge{
			Caller:    caller,
			Callee:    callee,
			Inclusive: metrics.NewCosts(t.events...),
		})
		e = len(t.edges) - 1
		t.arcs[key] = e
		t.out[caller] = append(t.out[caller], e)
		t.in[callee] = append(t.in[callee], e)
	}
	t.edges[e].Calls += calls
	return t.edges[e].Inclusive.AddValues(t.events, values)
}

// Builder assembles a CostTree programmatically.
//
// It is used to construct synthetic trees and by other profile formats
// that map onto a call graph.
type Builder struct {
	tree *CostTree
}

// NewBuilder returns a Builder for the given events.
func NewBuilder(events ...metrics.EventKind) *Builder {
	return &Builder{tree: NewCostTree(events)}
}

// Function adds self cost to a function and returns its index.
func (b *Builder) Function(id FunctionID, self ...uint64) (int, error) {
	i := b.tree.node(id, 0)
	if err := b.tree.addSelf(i, self); err != nil {
		return 0, err
	}
	return i, nil
}

// Call adds a call arc with its inclusive cost.
func (b *Builder) Call(caller, callee FunctionID, calls uint64, inclusive ...uint64) error {
	return b.tree.addCall(b.tree.node(caller, 0), b.tree.node(callee, 0), calls, inclusive)
}

// Tree returns the built tree.
func (b *Builder) Tree() *CostTree {
	return b.tree
}
