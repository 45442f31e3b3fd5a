// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package dhat

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/grindbench/services/bench/callgrind"
	"github.com/AleutianAI/grindbench/services/bench/metrics"
	"github.com/AleutianAI/grindbench/services/bench/outpath"
)

const heapDoc = `{
  "dhatFileVersion": 2,
  "mode": "rust-heap",
  "cmd": "./bench",
  "pid": 77,
  "te": 1000,
  "tg": 400,
  "pps": [
    {"tb": 100, "tbk": 2, "tl": 50, "mb": 100, "mbk": 2, "gb": 64, "gbk": 1, "eb": 0, "ebk": 0, "rb": 30, "wb": 40, "fs": [1]},
    {"tb": 20, "tbk": 1, "tl": 5, "mb": 20, "mbk": 1, "gb": 20, "gbk": 1, "eb": 20, "ebk": 1, "rb": 0, "wb": 20, "fs": [1, 2]}
  ],
  "ftbl": ["[root]", "0x4C2: main (src/main.rs:3:5)", "0x4C8: alloc (src/lib.rs:1:1)"]
}`

func dhatValue(t *testing.T, p *Profile, k metrics.DhatMetric) uint64 {
	t.Helper()
	m, ok := p.Totals.Get(k)
	require.True(t, ok, k.String())
	v, _ := m.Uint64()
	return v
}

func TestParse_HeapMode(t *testing.T) {
	p, err := Parse("dhat.fib.out", []byte(heapDoc))
	require.NoError(t, err)

	assert.Equal(t, ModeRustHeap, p.Mode)
	assert.Equal(t, 77, p.Pid)
	assert.Equal(t, uint64(120), dhatValue(t, p, metrics.TotalBytes))
	assert.Equal(t, uint64(3), dhatValue(t, p, metrics.TotalBlocks))
	assert.Equal(t, uint64(84), dhatValue(t, p, metrics.AtTGmaxBytes))
	assert.Equal(t, uint64(20), dhatValue(t, p, metrics.AtTEndBytes))
	assert.Equal(t, uint64(60), dhatValue(t, p, metrics.WritesBytes))
	assert.Equal(t, uint64(55), dhatValue(t, p, metrics.TotalLifetimes))
	assert.False(t, p.Totals.Has(metrics.TotalUnits))
}

func TestParse_AdHocMode(t *testing.T) {
	doc := `{"dhatFileVersion":2,"mode":"ad-hoc","pps":[{"tb":5,"tbk":1,"fs":[]},{"tb":7,"tbk":2,"fs":[]}],"ftbl":["[root]"]}`
	p, err := Parse("x", []byte(doc))
	require.NoError(t, err)
	assert.Equal(t, []metrics.DhatMetric{metrics.TotalUnits, metrics.TotalEvents}, p.Totals.Kinds())
	assert.Equal(t, uint64(12), dhatValue(t, p, metrics.TotalUnits))
	assert.Equal(t, uint64(3), dhatValue(t, p, metrics.TotalEvents))
}

func TestParse_Errors(t *testing.T) {
	for name, doc := range map[string]string{
		"empty":          "  ",
		"not json":       "events: Ir",
		"no version":     `{"mode":"heap","pps":[]}`,
		"unknown mode":   `{"dhatFileVersion":2,"mode":"stack","pps":[]}`,
		"dangling frame": `{"dhatFileVersion":2,"mode":"heap","pps":[{"tb":1,"fs":[3]}],"ftbl":["[root]"]}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Parse("x", []byte(doc))
			assert.True(t, errors.Is(err, callgrind.ErrParse), "got %v", err)
		})
	}
}

func TestParseUnits(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dhat.fib.77.out")
	require.NoError(t, os.WriteFile(path, []byte(heapDoc), 0644))
	broken := filepath.Join(dir, "dhat.fib.78.out")
	require.NoError(t, os.WriteFile(broken, []byte("{"), 0644))

	files := []outpath.File{
		{Path: path, Unit: outpath.UnitID{Pid: 77}},
		{Path: broken, Unit: outpath.UnitID{Pid: 78}},
	}
	_, err := ParseUnits(context.Background(), files, Options{})
	assert.Error(t, err)

	profiles, err := ParseUnits(context.Background(), files, Options{SkipFailedUnits: true})
	require.NoError(t, err)
	assert.Len(t, profiles, 1)
}
