// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package report

import (
	"io"
	"slices"
	"strings"

	"github.com/samber/lo"
	"golang.org/x/perf/benchfmt"

	"github.com/AleutianAI/grindbench/services/bench/aggregate"
	"github.com/AleutianAI/grindbench/services/bench/baseline"
	"github.com/AleutianAI/grindbench/services/bench/metrics"
)

// BenchmarkName renders an identity as a Go benchmark name, with the case
// id as a sub-benchmark so benchstat groups cases of one function.
func BenchmarkName(id baseline.Identity) string {
	name := "Benchmark" + strings.ReplaceAll(id.ModulePath(), " ", "_")
	if id.CaseID != "" {
		name += "/" + id.CaseID
	}
	return name
}

// WriteBenchfmt writes the totals of records in the Go benchmark format.
//
// Each record becomes one result line per tool, with one "<kind>/op"
// value per integer kind. Ratio kinds are skipped. A "tool" configuration
// line precedes each tool's results.
func WriteBenchfmt(w io.Writer, records []*baseline.Record) error {
	bw := benchfmt.NewWriter(w)
	for _, r := range records {
		name := BenchmarkName(r.Identity)
		results := []*benchfmt.Result{
			benchfmtResult(name, metrics.ToolCallgrind.String(), r.Callgrind),
			benchfmtResult(name, metrics.ToolCachegrind.String(), r.Cachegrind),
			benchfmtResult(name, metrics.ToolDHAT.String(), r.Dhat),
		}
		for _, tool := range sortedKeys(r.Errors) {
			results = append(results, benchfmtResult(name, tool, r.Errors[tool]))
		}
		for _, res := range results {
			if res == nil {
				continue
			}
			if err := bw.Write(res); err != nil {
				return err
			}
		}
	}
	return nil
}

func benchfmtResult[K metrics.Kind](name, tool string, total *aggregate.Total[K]) *benchfmt.Result {
	if total == nil || total.Costs.Len() == 0 {
		return nil
	}
	res := &benchfmt.Result{
		Config: []benchfmt.Config{{Key: "tool", Value: []byte(tool), File: true}},
		Name:   benchfmt.Name(name),
		Iters:  1,
	}
	for _, k := range total.Costs.Kinds() {
		if k.IsFloat() {
			continue
		}
		m, _ := total.Costs.Get(k)
		res.Values = append(res.Values, benchfmt.Value{Value: m.Float64(), Unit: k.String() + "/op"})
	}
	if len(res.Values) == 0 {
		return nil
	}
	return res
}

func sortedKeys[V any](m map[string]V) []string {
	keys := lo.Keys(m)
	slices.Sort(keys)
	return keys
}
