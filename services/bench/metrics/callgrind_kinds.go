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

// EventKind is a callgrind event type.
//
// The canonical ids are the names callgrind writes on its "events:" line.
// The cache-hit and rate kinds are derived by MakeSummary.
type EventKind int

const (
	Ir EventKind = iota
	Dr
	Dw
	I1mr
	D1mr
	D1mw
	ILmr
	DLmr
	DLmw
	I1MissRate
	LLiMissRate
	D1MissRate
	LLdMissRate
	LLMissRate
	L1hits
	LLhits
	RamHits
	L1HitRate
	LLHitRate
	RamHitRate
	TotalRW
	EstimatedCycles
	SysCount
	SysTime
	SysCpuTime
	Ge
	Bc
	Bcm
	Bi
	Bim
	ILdmr
	DLdmr
	DLdmw
	AcCost1
	AcCost2
	SpLoss1
	SpLoss2
)

func (k EventKind) String() string      { return eventKinds.info(k).id }
func (k EventKind) Description() string { return eventKinds.info(k).desc }
func (k EventKind) IsDerived() bool     { return eventKinds.info(k).derived }
func (k EventKind) IsFloat() bool       { return eventKinds.info(k).float }

// ParseEventKind parses a case-insensitive callgrind event name.
func ParseEventKind(s string) (EventKind, error) {
	return eventKinds.parse(s)
}

var eventKinds = newEventKindTable()

func newEventKindTable() *kindTable[EventKind] {
	t := newKindTable(ToolCallgrind, []kindEntry[EventKind]{
		{Ir, kindInfo{id: "Ir", desc: "Instructions", aliases: []string{"instructions"}}},
		{Dr, kindInfo{id: "Dr", desc: "Dr"}},
		{Dw, kindInfo{id: "Dw", desc: "Dw"}},
		{I1mr, kindInfo{id: "I1mr", desc: "I1mr"}},
		{D1mr, kindInfo{id: "D1mr", desc: "D1mr"}},
		{D1mw, kindInfo{id: "D1mw", desc: "D1mw"}},
		{ILmr, kindInfo{id: "ILmr", desc: "ILmr"}},
		{DLmr, kindInfo{id: "DLmr", desc: "DLmr"}},
		{DLmw, kindInfo{id: "DLmw", desc: "DLmw"}},
		{I1MissRate, kindInfo{id: "I1MissRate", desc: "I1 Miss Rate", derived: true, float: true}},
		{LLiMissRate, kindInfo{id: "LLiMissRate", desc: "LLi Miss Rate", derived: true, float: true}},
		{D1MissRate, kindInfo{id: "D1MissRate", desc: "D1 Miss Rate", derived: true, float: true}},
		{LLdMissRate, kindInfo{id: "LLdMissRate", desc: "LLd Miss Rate", derived: true, float: true}},
		{LLMissRate, kindInfo{id: "LLMissRate", desc: "LL Miss Rate", derived: true, float: true}},
		{L1hits, kindInfo{id: "L1hits", desc: "L1 Hits", derived: true}},
		{LLhits, kindInfo{id: "LLhits", desc: "LL Hits", derived: true}},
		{RamHits, kindInfo{id: "RamHits", desc: "RAM Hits", derived: true}},
		{L1HitRate, kindInfo{id: "L1HitRate", desc: "L1 Hit Rate", derived: true, float: true}},
		{LLHitRate, kindInfo{id: "LLHitRate", desc: "LL Hit Rate", derived: true, float: true}},
		{RamHitRate, kindInfo{id: "RamHitRate", desc: "RAM Hit Rate", derived: true, float: true}},
		{TotalRW, kindInfo{id: "TotalRW", desc: "Total read+write", derived: true}},
		{EstimatedCycles, kindInfo{id: "EstimatedCycles", desc: "Estimated Cycles", derived: true}},
		{SysCount, kindInfo{id: "SysCount", desc: "SysCount"}},
		{SysTime, kindInfo{id: "SysTime", desc: "SysTime"}},
		{SysCpuTime, kindInfo{id: "SysCpuTime", desc: "SysCpuTime"}},
		{Ge, kindInfo{id: "Ge", desc: "Ge"}},
		{Bc, kindInfo{id: "Bc", desc: "Bc"}},
		{Bcm, kindInfo{id: "Bcm", desc: "Bcm"}},
		{Bi, kindInfo{id: "Bi", desc: "Bi"}},
		{Bim, kindInfo{id: "Bim", desc: "Bim"}},
		{ILdmr, kindInfo{id: "ILdmr", desc: "ILdmr"}},
		{DLdmr, kindInfo{id: "DLdmr", desc: "DLdmr"}},
		{DLdmw, kindInfo{id: "DLdmw", desc: "DLdmw"}},
		{AcCost1, kindInfo{id: "AcCost1", desc: "AcCost1"}},
		{AcCost2, kindInfo{id: "AcCost2", desc: "AcCost2"}},
		{SpLoss1, kindInfo{id: "SpLoss1", desc: "SpLoss1"}},
		{SpLoss2, kindInfo{id: "SpLoss2", desc: "SpLoss2"}},
	})

	misses := []EventKind{I1mr, D1mr, D1mw, ILmr, DLmr, DLmw}
	missRates := []EventKind{I1MissRate, LLiMissRate, D1MissRate, LLdMissRate, LLMissRate}
	hits := []EventKind{L1hits, LLhits, RamHits, TotalRW, EstimatedCycles}
	hitRates := []EventKind{L1HitRate, LLHitRate, RamHitRate}
	syscalls := []EventKind{SysCount, SysTime, SysCpuTime}
	branch := []EventKind{Bc, Bcm, Bi, Bim}
	writeback := []EventKind{ILdmr, DLdmr, DLdmw}
	cacheuse := []EventKind{AcCost1, AcCost2, SpLoss1, SpLoss2}

	cachesim := append([]EventKind{Dr, Dw}, misses...)
	cachesim = append(cachesim, missRates...)
	cachesim = append(cachesim, hits...)
	cachesim = append(cachesim, hitRates...)

	defaults := append([]EventKind{Ir}, hits...)
	defaults = append(defaults, syscalls...)
	defaults = append(defaults, Ge)
	defaults = append(defaults, branch...)
	defaults = append(defaults, writeback...)
	defaults = append(defaults, cacheuse...)

	t.defaults = defaults
	t.groups = []group[EventKind]{
		{names: []string{"default", "def"}, members: defaults},
		{names: []string{"cachemisses", "misses", "ms"}, members: misses},
		{names: []string{"cachemissrates", "missrates", "mr"}, members: missRates},
		{names: []string{"cachehits", "hits", "hs"}, members: hits},
		{names: []string{"cachehitrates", "hitrates", "hr"}, members: hitRates},
		{names: []string{"cachesim", "cs"}, members: cachesim},
		{names: []string{"cacheuse", "cu"}, members: cacheuse},
		{names: []string{"systemcalls", "syscalls", "sc"}, members: syscalls},
		{names: []string{"branchsim", "bs"}, members: branch},
		{names: []string{"writebackbehaviour", "writeback", "wb"}, members: writeback},
	}
	t.summary = &summaryKinds[EventKind]{
		ir: Ir, dr: Dr, dw: Dw,
		i1mr: I1mr, d1mr: D1mr, d1mw: D1mw,
		ilmr: ILmr, dlmr: DLmr, dlmw: DLmw,
		l1hits: L1hits, llhits: LLhits, ramHits: RamHits,
		totalRW: TotalRW, cycles: EstimatedCycles,
		i1MissRate: I1MissRate, lliMissRate: LLiMissRate, d1MissRate: D1MissRate,
		lldMissRate: LLdMissRate, llMissRate: LLMissRate,
		l1HitRate: L1HitRate, llHitRate: LLHitRate, ramHitRate: RamHitRate,
	}
	return t
}
