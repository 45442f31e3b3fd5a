// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package outpath

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/grindbench/services/bench/metrics"
)

func TestParseFileName(t *testing.T) {
	tests := []struct {
		in   string
		want FileName
	}{
		{
			in:   "callgrind.bench_fib.out",
			want: FileName{Tool: "callgrind", Name: "bench_fib", Kind: KindOut},
		},
		{
			in: "callgrind.bench_fib.1234.t2.p1.out",
			want: FileName{Tool: "callgrind", Name: "bench_fib", Kind: KindOut,
				Unit: UnitID{Pid: 1234, Thread: 2, Part: 1}},
		},
		{
			in: "callgrind.bench_fib.1234.out.old",
			want: FileName{Tool: "callgrind", Name: "bench_fib", Kind: KindOut,
				Baseline: "old", Unit: UnitID{Pid: 1234}},
		},
		{
			in: "memcheck.bench_fib.99.log.base@main",
			want: FileName{Tool: "memcheck", Name: "bench_fib", Kind: KindLog,
				Baseline: "base@main", Unit: UnitID{Pid: 99}},
		},
		{
			in: "callgrind.bench_fib.out.#1234.2-02",
			want: FileName{Tool: "callgrind", Name: "bench_fib", Kind: KindOut,
				Unit: UnitID{Pid: 1234, Thread: 2, Part: 2}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFileName(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseFileName("README.md")
	assert.Error(t, err)
}

func TestUnitID_Ordering(t *testing.T) {
	a := UnitID{Pid: 1, Thread: 2}
	b := UnitID{Pid: 1, Thread: 3}
	c := UnitID{Pid: 2}
	assert.Equal(t, -1, a.Compare(b))
	assert.Equal(t, 1, c.Compare(b))
	assert.Equal(t, 0, a.Compare(a))
	assert.Equal(t, "pid:1 thread:2", a.String())
	assert.Equal(t, "unit", UnitID{}.String())
}

func touch(t *testing.T, dir, name string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644))
}

func TestDiscover(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "callgrind.fib.20.out")
	touch(t, dir, "callgrind.fib.10.t2.out")
	touch(t, dir, "callgrind.fib.10.out")
	touch(t, dir, "callgrind.fib.10.out.old")
	touch(t, dir, "callgrind.other.10.out")
	touch(t, dir, "dhat.fib.10.out")

	p := New(dir, metrics.ToolCallgrind, "fib")
	files, err := p.Discover()
	require.NoError(t, err)
	require.Len(t, files, 3)
	assert.Equal(t, UnitID{Pid: 10}, files[0].Unit)
	assert.Equal(t, UnitID{Pid: 10, Thread: 2}, files[1].Unit)
	assert.Equal(t, UnitID{Pid: 20}, files[2].Unit)

	old, err := p.Old().Discover()
	require.NoError(t, err)
	require.Len(t, old, 1)

	_, err = p.Base("main").Discover()
	assert.True(t, errors.Is(err, ErrNoOutput))
}

func TestDiscover_NumericCaseID(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "callgrind.fib.42.out")
	touch(t, dir, "callgrind.fib.42.t2.out")
	touch(t, dir, "callgrind.fib.42.1234.out")

	files, err := New(dir, metrics.ToolCallgrind, "fib.42").Discover()
	require.NoError(t, err)
	require.Len(t, files, 3)
	assert.Equal(t, UnitID{}, files[0].Unit)
	assert.Equal(t, UnitID{Thread: 2}, files[1].Unit)
	assert.Equal(t, UnitID{Pid: 1234}, files[2].Unit)

	fn, err := ParseFileName("callgrind.fib.42.out")
	require.NoError(t, err)
	assert.Equal(t, "fib", fn.Name, "ambiguous without the bench name")
	fn, ok := fn.For("fib.42")
	assert.True(t, ok)
	assert.Equal(t, UnitID{}, fn.Unit)
}

func TestRotate(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "callgrind.fib.10.out")
	touch(t, dir, "callgrind.fib.77.out.old")

	p := New(dir, metrics.ToolCallgrind, "fib")
	require.NoError(t, p.Rotate())

	assert.False(t, p.Exists())
	old, err := p.Old().Discover()
	require.NoError(t, err)
	require.Len(t, old, 1)
	assert.Equal(t, UnitID{Pid: 10}, old[0].Unit)
}

func TestUnitPath(t *testing.T) {
	p := New("/out", metrics.ToolMemcheck, "fib").Base("v1")
	assert.Equal(t, "/out/memcheck.fib.5.t1.log.base@v1", p.UnitPath(UnitID{Pid: 5, Thread: 1}))
}
