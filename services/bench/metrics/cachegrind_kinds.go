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

// CachegrindMetric is a cachegrind counter.
type CachegrindMetric int

const (
	CgIr CachegrindMetric = iota
	CgDr
	CgDw
	CgI1mr
	CgD1mr
	CgD1mw
	CgILmr
	CgDLmr
	CgDLmw
	CgI1MissRate
	CgLLiMissRate
	CgD1MissRate
	CgLLdMissRate
	CgLLMissRate
	CgL1hits
	CgLLhits
	CgRamHits
	CgL1HitRate
	CgLLHitRate
	CgRamHitRate
	CgTotalRW
	CgEstimatedCycles
	CgBc
	CgBcm
	CgBi
	CgBim
)

func (k CachegrindMetric) String() string      { return cachegrindMetrics.info(k).id }
func (k CachegrindMetric) Description() string { return cachegrindMetrics.info(k).desc }
func (k CachegrindMetric) IsDerived() bool     { return cachegrindMetrics.info(k).derived }
func (k CachegrindMetric) IsFloat() bool       { return cachegrindMetrics.info(k).float }

// ParseCachegrindMetric parses a case-insensitive cachegrind metric name.
func ParseCachegrindMetric(s string) (CachegrindMetric, error) {
	return cachegrindMetrics.parse(s)
}

var cachegrindMetrics = newCachegrindTable()

func newCachegrindTable() *kindTable[CachegrindMetric] {
	t := newKindTable(ToolCachegrind, []kindEntry[CachegrindMetric]{
		{CgIr, kindInfo{id: "Ir", desc: "Instructions", aliases: []string{"instructions"}}},
		{CgDr, kindInfo{id: "Dr", desc: "Dr"}},
		{CgDw, kindInfo{id: "Dw", desc: "Dw"}},
		{CgI1mr, kindInfo{id: "I1mr", desc: "I1mr"}},
		{CgD1mr, kindInfo{id: "D1mr", desc: "D1mr"}},
		{CgD1mw, kindInfo{id: "D1mw", desc: "D1mw"}},
		{CgILmr, kindInfo{id: "ILmr", desc: "ILmr"}},
		{CgDLmr, kindInfo{id: "DLmr", desc: "DLmr"}},
		{CgDLmw, kindInfo{id: "DLmw", desc: "DLmw"}},
		{CgI1MissRate, kindInfo{id: "I1MissRate", desc: "I1 Miss Rate", derived: true, float: true}},
		{CgLLiMissRate, kindInfo{id: "LLiMissRate", desc: "LLi Miss Rate", derived: true, float: true}},
		{CgD1MissRate, kindInfo{id: "D1MissRate", desc: "D1 Miss Rate", derived: true, float: true}},
		{CgLLdMissRate, kindInfo{id: "LLdMissRate", desc: "LLd Miss Rate", derived: true, float: true}},
		{CgLLMissRate, kindInfo{id: "LLMissRate", desc: "LL Miss Rate", derived: true, float: true}},
		{CgL1hits, kindInfo{id: "L1hits", desc: "L1 Hits", derived: true}},
		{CgLLhits, kindInfo{id: "LLhits", desc: "LL Hits", derived: true}},
		{CgRamHits, kindInfo{id: "RamHits", desc: "RAM Hits", derived: true}},
		{CgL1HitRate, kindInfo{id: "L1HitRate", desc: "L1 Hit Rate", derived: true, float: true}},
		{CgLLHitRate, kindInfo{id: "LLHitRate", desc: "LL Hit Rate", derived: true, float: true}},
		{CgRamHitRate, kindInfo{id: "RamHitRate", desc: "RAM Hit Rate", derived: true, float: true}},
		{CgTotalRW, kindInfo{id: "TotalRW", desc: "Total read+write", derived: true}},
		{CgEstimatedCycles, kindInfo{id: "EstimatedCycles", desc: "Estimated Cycles", derived: true}},
		{CgBc, kindInfo{id: "Bc", desc: "Bc"}},
		{CgBcm, kindInfo{id: "Bcm", desc: "Bcm"}},
		{CgBi, kindInfo{id: "Bi", desc: "Bi"}},
		{CgBim, kindInfo{id: "Bim", desc: "Bim"}},
	})

	misses := []CachegrindMetric{CgI1mr, CgD1mr, CgD1mw, CgILmr, CgDLmr, CgDLmw}
	missRates := []CachegrindMetric{CgI1MissRate, CgLLiMissRate, CgD1MissRate, CgLLdMissRate, CgLLMissRate}
	hits := []CachegrindMetric{CgL1hits, CgLLhits, CgRamHits, CgTotalRW, CgEstimatedCycles}
	hitRates := []CachegrindMetric{CgL1HitRate, CgLLHitRate, CgRamHitRate}
	branch := []CachegrindMetric{CgBc, CgBcm, CgBi, CgBim}

	cachesim := append([]CachegrindMetric{CgDr, CgDw}, misses...)
	cachesim = append(cachesim, missRates...)
	cachesim = append(cachesim, hits...)
	cachesim = append(cachesim, hitRates...)

	defaults := append([]CachegrindMetric{CgIr}, hits...)
	defaults = append(defaults, branch...)

	t.defaults = defaults
	t.groups = []group[CachegrindMetric]{
		{names: []string{"default", "def"}, members: defaults},
		{names: []string{"cachemisses", "misses", "ms"}, members: misses},
		{names: []string{"cachemissrates", "missrates", "mr"}, members: missRates},
		{names: []string{"cachehits", "hits", "hs"}, members: hits},
		{names: []string{"cachehitrates", "hitrates", "hr"}, members: hitRates},
		{names: []string{"cachesim", "cs"}, members: cachesim},
		{names: []string{"branchsim", "bs"}, members: branch},
	}
	t.summary = &summaryKinds[CachegrindMetric]{
		ir: CgIr, dr: CgDr, dw: CgDw,
		i1mr: CgI1mr, d1mr: CgD1mr, d1mw: CgD1mw,
		ilmr: CgILmr, dlmr: CgDLmr, dlmw: CgDLmw,
		l1hits: CgL1hits, llhits: CgLLhits, ramHits: CgRamHits,
		totalRW: CgTotalRW, cycles: CgEstimatedCycles,
		i1MissRate: CgI1MissRate, lliMissRate: CgLLiMissRate, d1MissRate: CgD1MissRate,
		lldMissRate: CgLLdMissRate, llMissRate: CgLLMissRate,
		l1HitRate: CgL1HitRate, llHitRate: CgLLHitRate, ramHitRate: CgRamHitRate,
	}
	return t
}
