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

// ErrorMetric is a counter from the "ERROR SUMMARY" line of memcheck,
// helgrind and drd.
type ErrorMetric int

const (
	Errors ErrorMetric = iota
	Contexts
	SuppressedErrors
	SuppressedContexts
)

func (k ErrorMetric) String() string      { return errorMetrics.info(k).id }
func (k ErrorMetric) Description() string { return errorMetrics.info(k).desc }
func (k ErrorMetric) IsDerived() bool     { return false }
func (k ErrorMetric) IsFloat() bool       { return false }

var errorMetrics = newErrorTable()

func newErrorTable() *kindTable[ErrorMetric] {
	t := newKindTable(ToolMemcheck, []kindEntry[ErrorMetric]{
		{Errors, kindInfo{id: "Errors", desc: "Errors", aliases: []string{"err"}}},
		{Contexts, kindInfo{id: "Contexts", desc: "Contexts", aliases: []string{"ctx"}}},
		{SuppressedErrors, kindInfo{id: "SuppressedErrors", desc: "Suppressed Errors", aliases: []string{"serr"}}},
		{SuppressedContexts, kindInfo{id: "SuppressedContexts", desc: "Suppressed Contexts", aliases: []string{"sctx"}}},
	})
	t.defaults = append([]ErrorMetric(nil), t.order...)
	t.groups = []group[ErrorMetric]{
		{names: []string{"default", "def"}, members: t.defaults},
	}
	return t
}
