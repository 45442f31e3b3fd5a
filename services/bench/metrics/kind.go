// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package metrics defines the cost vocabulary of every supported profiling
// tool and the typed container holding one set of named counters.
//
// Each tool has its own closed enumeration (EventKind for callgrind,
// CachegrindMetric, DhatMetric, ErrorMetric). The enumerations never
// overlap; generic code is written against the Kind constraint.
package metrics

import (
	"errors"
	"fmt"
	"strings"

	"github.com/samber/lo"
)

var (
	// ErrUnknownMetric is returned when a metric name is not part of a
	// tool's vocabulary.
	ErrUnknownMetric = errors.New("unknown metric")

	// ErrUnknownGroup is returned for an unknown "@group" name.
	ErrUnknownGroup = errors.New("unknown metric group")

	// ErrSummaryInputs is returned by MakeSummary when one of the cache
	// simulation inputs is missing.
	ErrSummaryInputs = errors.New("missing cache simulation metrics")
)

// Tool identifies the profiling tool that produced an output file.
type Tool int

const (
	ToolCallgrind Tool = iota
	ToolCachegrind
	ToolDHAT
	ToolMemcheck
	ToolHelgrind
	ToolDRD
)

var toolIDs = []string{"callgrind", "cachegrind", "dhat", "memcheck", "helgrind", "drd"}

// String returns the lowercase tool id used in file names.
func (t Tool) String() string {
	if int(t) < 0 || int(t) >= len(toolIDs) {
		return "unknown"
	}
	return toolIDs[t]
}

// ParseTool parses a lowercase tool id.
func ParseTool(s string) (Tool, error) {
	for i, id := range toolIDs {
		if strings.EqualFold(s, id) {
			return Tool(i), nil
		}
	}
	return 0, fmt.Errorf("unknown tool %q", s)
}

// AllTools lists the tools in display order.
func AllTools() []Tool {
	return []Tool{ToolCallgrind, ToolCachegrind, ToolDHAT, ToolMemcheck, ToolHelgrind, ToolDRD}
}

// IsErrorTool reports whether the tool produces an error summary log
// instead of a cost output file.
func (t Tool) IsErrorTool() bool {
	return t == ToolMemcheck || t == ToolHelgrind || t == ToolDRD
}

// Kind is the constraint satisfied by every per-tool metric enumeration.
type Kind interface {
	comparable
	fmt.Stringer

	// Description is the human-readable display name.
	Description() string

	// IsDerived reports whether the kind is computed from other kinds and
	// must never be summed.
	IsDerived() bool

	// IsFloat reports whether values of this kind are ratios.
	IsFloat() bool
}

// kindInfo describes one member of a metric enumeration.
type kindInfo struct {
	id      string
	desc    string
	aliases []string
	derived bool
	float   bool
}

type kindEntry[K comparable] struct {
	kind K
	info kindInfo
}

type group[K comparable] struct {
	names   []string
	members []K
}

// kindTable is the registry behind one enumeration.
type kindTable[K comparable] struct {
	tool     Tool
	order    []K
	infos    map[K]kindInfo
	lookup   map[string]K
	groups   []group[K]
	defaults []K
	summary  *summaryKinds[K]
}

func newKindTable[K comparable](tool Tool, entries []kindEntry[K]) *kindTable[K] {
	t := &kindTable[K]{
		tool:   tool,
		infos:  make(map[K]kindInfo, len(entries)),
		lookup: make(map[string]K, len(entries)*2),
	}
	for _, e := range entries {
		t.order = append(t.order, e.kind)
		t.infos[e.kind] = e.info
		t.lookup[strings.ToLower(e.info.id)] = e.kind
		for _, alias := range e.info.aliases {
			t.lookup[strings.ToLower(alias)] = e.kind
		}
	}
	return t
}

func (t *kindTable[K]) info(k K) kindInfo {
	if info, ok := t.infos[k]; ok {
		return info
	}
	return kindInfo{id: "Unknown", desc: "Unknown"}
}

func (t *kindTable[K]) parse(s string) (K, error) {
	if k, ok := t.lookup[strings.ToLower(strings.TrimSpace(s))]; ok {
		return k, nil
	}
	var zero K
	return zero, fmt.Errorf("%w: %q is not a %s metric", ErrUnknownMetric, s, t.tool)
}

func (t *kindTable[K]) group(name string) ([]K, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "all" {
		return append([]K(nil), t.order...), nil
	}
	for _, g := range t.groups {
		if lo.Contains(g.names, name) {
			return append([]K(nil), g.members...), nil
		}
	}
	return nil, fmt.Errorf("%w: @%s is not a %s group", ErrUnknownGroup, name, t.tool)
}

// tableFor returns the registry for K.
func tableFor[K Kind]() *kindTable[K] {
	var zero K
	var t any
	switch any(zero).(type) {
	case EventKind:
		t = eventKinds
	case CachegrindMetric:
		t = cachegrindMetrics
	case DhatMetric:
		t = dhatMetrics
	case ErrorMetric:
		t = errorMetrics
	default:
		panic(fmt.Sprintf("metrics: unregistered kind %T", zero))
	}
	return t.(*kindTable[K])
}

// ParseKind parses a case-insensitive metric name or alias of K.
func ParseKind[K Kind](s string) (K, error) {
	return tableFor[K]().parse(s)
}

// ParseGroup expands a group name (without the leading '@') into its
// members in declaration order.
func ParseGroup[K Kind](name string) ([]K, error) {
	return tableFor[K]().group(name)
}

// ParseSelection parses either "@group" or a single metric name.
func ParseSelection[K Kind](s string) ([]K, error) {
	s = strings.TrimSpace(s)
	if name, ok := strings.CutPrefix(s, "@"); ok {
		return ParseGroup[K](name)
	}
	k, err := ParseKind[K](s)
	if err != nil {
		return nil, err
	}
	return []K{k}, nil
}

// AllKinds returns every member of K in declaration order.
func AllKinds[K Kind]() []K {
	return append([]K(nil), tableFor[K]().order...)
}

// DefaultKinds returns the members shown by default in reports.
func DefaultKinds[K Kind]() []K {
	return append([]K(nil), tableFor[K]().defaults...)
}

// ToolOf returns the tool owning the K vocabulary.
func ToolOf[K Kind]() Tool {
	return tableFor[K]().tool
}

// SortKinds orders ks by declaration order, dropping duplicates.
func SortKinds[K Kind](ks []K) []K {
	set := lo.SliceToMap(ks, func(k K) (K, struct{}) { return k, struct{}{} })
	return lo.Filter(tableFor[K]().order, func(k K, _ int) bool {
		_, ok := set[k]
		return ok
	})
}
