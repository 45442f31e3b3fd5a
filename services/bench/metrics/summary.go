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

import "fmt"

// Estimated cycle weights of an LL hit and a RAM access relative to an L1
// hit.
const (
	llHitCycles  = 5
	ramHitCycles = 35
)

// summaryKinds maps the cache simulation inputs and derived outputs of a
// tool onto its enumeration.
type summaryKinds[K comparable] struct {
	ir, dr, dw, i1mr, d1mr, d1mw, ilmr, dlmr, dlmw K

	l1hits, llhits, ramHits, totalRW, cycles K

	i1MissRate, lliMissRate, d1MissRate, lldMissRate, llMissRate K

	l1HitRate, llHitRate, ramHitRate K
}

func (s *summaryKinds[K]) inputs() []K {
	return []K{s.ir, s.dr, s.dw, s.i1mr, s.d1mr, s.d1mw, s.ilmr, s.dlmr, s.dlmw}
}

// CanSummarize reports whether all nine cache simulation inputs are
// recorded and K has derived kinds at all.
func (c *Costs[K]) CanSummarize() bool {
	s := tableFor[K]().summary
	if s == nil {
		return false
	}
	for _, k := range s.inputs() {
		if !c.Has(k) {
			return false
		}
	}
	return true
}

// MakeSummary computes every derived kind from the additive cache
// simulation counters and records them, replacing stale values.
//
// Subtractions saturate at zero and divisions by zero yield 0.
func (c *Costs[K]) MakeSummary() error {
	s := tableFor[K]().summary
	if s == nil {
		return nil
	}
	if !c.CanSummarize() {
		return fmt.Errorf("%w for %s", ErrSummaryInputs, ToolOf[K]())
	}
	get := func(k K) Metric {
		v, _ := c.Get(k)
		return v
	}
	hundred := Int(100)

	ir := get(s.ir)
	dRefs := get(s.dr).Add(get(s.dw))
	ram := get(s.ilmr).Add(get(s.dlmr)).Add(get(s.dlmw))
	l1Miss := get(s.i1mr).Add(get(s.d1mr)).Add(get(s.d1mw))
	llHits := l1Miss.Sub(ram)
	totalRW := ir.Add(dRefs)
	l1Hits := totalRW.Sub(ram).Sub(llHits)
	cycles := l1Hits.Add(llHits.Mul(Int(llHitCycles))).Add(ram.Mul(Int(ramHitCycles)))

	c.Set(s.l1hits, l1Hits)
	c.Set(s.llhits, llHits)
	c.Set(s.ramHits, ram)
	c.Set(s.totalRW, totalRW)
	c.Set(s.cycles, cycles)

	c.Set(s.i1MissRate, get(s.i1mr).Div0(ir).Mul(hundred))
	c.Set(s.lliMissRate, get(s.ilmr).Div0(ir).Mul(hundred))
	c.Set(s.d1MissRate, get(s.d1mr).Add(get(s.d1mw)).Div0(dRefs).Mul(hundred))
	c.Set(s.lldMissRate, get(s.dlmr).Add(get(s.dlmw)).Div0(dRefs).Mul(hundred))
	c.Set(s.llMissRate, ram.Div0(totalRW).Mul(hundred))

	c.Set(s.l1HitRate, l1Hits.Div0(totalRW).Mul(hundred))
	c.Set(s.llHitRate, llHits.Div0(totalRW).Mul(hundred))
	c.Set(s.ramHitRate, ram.Div0(totalRW).Mul(hundred))
	return nil
}
