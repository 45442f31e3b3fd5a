// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package metrics

// DhatMetric is a DHAT heap profiler counter. All DHAT metrics are
// additive.
type DhatMetric int

const (
	TotalUnits DhatMetric = iota
	TotalEvents
	TotalBytes
	TotalBlocks
	AtTGmaxBytes
	AtTGmaxBlocks
	AtTEndBytes
	AtTEndBlocks
	ReadsBytes
	WritesBytes
	TotalLifetimes
	MaximumBytes
	MaximumBlocks
)

func (k DhatMetric) String() string      { return dhatMetrics.info(k).id }
func (k DhatMetric) Description() string { return dhatMetrics.info(k).desc }
func (k DhatMetric) IsDerived() bool     { return false }
func (k DhatMetric) IsFloat() bool       { return false }

// ParseDhatMetric parses a full DHAT metric name or its abbreviation.
func ParseDhatMetric(s string) (DhatMetric, error) {
	return dhatMetrics.parse(s)
}

var dhatMetrics = newDhatTable()

func newDhatTable() *kindTable[DhatMetric] {
	t := newKindTable(ToolDHAT, []kindEntry[DhatMetric]{
		{TotalUnits, kindInfo{id: "TotalUnits", desc: "Total units", aliases: []string{"tun"}}},
		{TotalEvents, kindInfo{id: "TotalEvents", desc: "Total events", aliases: []string{"tev"}}},
		{TotalBytes, kindInfo{id: "TotalBytes", desc: "Total bytes", aliases: []string{"tb"}}},
		{TotalBlocks, kindInfo{id: "TotalBlocks", desc: "Total blocks", aliases: []string{"tbk"}}},
		{AtTGmaxBytes, kindInfo{id: "AtTGmaxBytes", desc: "At t-gmax bytes", aliases: []string{"gb"}}},
		{AtTGmaxBlocks, kindInfo{id: "AtTGmaxBlocks", desc: "At t-gmax blocks", aliases: []string{"gbk"}}},
		{AtTEndBytes, kindInfo{id: "AtTEndBytes", desc: "At t-end bytes", aliases: []string{"eb"}}},
		{AtTEndBlocks, kindInfo{id: "AtTEndBlocks", desc: "At t-end blocks", aliases: []string{"ebk"}}},
		{ReadsBytes, kindInfo{id: "ReadsBytes", desc: "Reads bytes", aliases: []string{"rb"}}},
		{WritesBytes, kindInfo{id: "WritesBytes", desc: "Writes bytes", aliases: []string{"wb"}}},
		{TotalLifetimes, kindInfo{id: "TotalLifetimes", desc: "Total lifetimes", aliases: []string{"tl"}}},
		{MaximumBytes, kindInfo{id: "MaximumBytes", desc: "Maximum bytes", aliases: []string{"mb"}}},
		{MaximumBlocks, kindInfo{id: "MaximumBlocks", desc: "Maximum blocks", aliases: []string{"mbk"}}},
	})
	t.defaults = []DhatMetric{
		TotalUnits, TotalEvents, TotalBytes, TotalBlocks,
		AtTGmaxBytes, AtTGmaxBlocks, AtTEndBytes, AtTEndBlocks,
		ReadsBytes, WritesBytes,
	}
	t.groups = []group[DhatMetric]{
		{names: []string{"default", "def"}, members: t.defaults},
	}
	return t
}
