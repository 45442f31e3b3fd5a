// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package flamegraph

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/grindbench/services/bench/callgrind"
	"github.com/AleutianAI/grindbench/services/bench/metrics"
)

func fn(name string) callgrind.FunctionID {
	return callgrind.FunctionID{Object: "/work/target/bench", File: "/work/src/lib.rs", Function: name}
}

// chainTree builds root -> a -> b with inclusive costs 100, 60 and 20.
func chainTree(t *testing.T) *callgrind.CostTree {
	t.Helper()
	b := callgrind.NewBuilder(metrics.Ir)
	_, err := b.Function(fn("root"), 40)
	require.NoError(t, err)
	_, err = b.Function(fn("a"), 40)
	require.NoError(t, err)
	_, err = b.Function(fn("b"), 20)
	require.NoError(t, err)
	require.NoError(t, b.Call(fn("root"), fn("a"), 1, 60))
	require.NoError(t, b.Call(fn("a"), fn("b"), 1, 20))
	return b.Tree()
}

func opts() Options {
	o := DefaultOptions()
	o.ProjectRoot = "/work"
	return o
}

func TestBuild_ConservesInclusiveCost(t *testing.T) {
	stacks, err := Build([]*callgrind.CostTree{chainTree(t)}, metrics.Ir, opts())
	require.NoError(t, err)
	require.Len(t, stacks, 3)

	assert.Equal(t, "src/lib.rs:root [target/bench] 40", stacks[0].String())
	assert.Equal(t, "src/lib.rs:root [target/bench];src/lib.rs:a [target/bench] 40", stacks[1].String())
	assert.Equal(t, uint64(20), stacks[2].Count)
	assert.Len(t, stacks[2].Frames, 3)
	assert.Equal(t, uint64(100), Total(stacks))
}

func TestBuild_TiesBrokenByLabel(t *testing.T) {
	b := callgrind.NewBuilder(metrics.Ir)
	for _, name := range []string{"zeta", "alpha", "mid"} {
		_, err := b.Function(callgrind.FunctionID{Function: name}, 10)
		require.NoError(t, err)
	}
	o := DefaultOptions()
	o.ObjectPlaceholder = ""

	stacks, err := Build([]*callgrind.CostTree{b.Tree()}, metrics.Ir, o)
	require.NoError(t, err)

	// alpha and mid cover the next entry exactly and emit nothing.
	require.Len(t, stacks, 1)
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, stacks[0].Frames)
	assert.Equal(t, uint64(10), stacks[0].Count)
}

func TestBuild_SentinelExcludesOverhead(t *testing.T) {
	b := callgrind.NewBuilder(metrics.Ir)
	_, err := b.Function(fn("main"), 5)
	require.NoError(t, err)
	_, err = b.Function(fn("bench_fib"), 30)
	require.NoError(t, err)
	_, err = b.Function(fn("fib"), 10)
	require.NoError(t, err)
	require.NoError(t, b.Call(fn("main"), fn("bench_fib"), 1, 40))
	require.NoError(t, b.Call(fn("bench_fib"), fn("fib"), 1, 10))

	sentinel, err := callgrind.NewSentinel("bench_*")
	require.NoError(t, err)
	o := opts()
	o.Sentinel = sentinel

	stacks, err := Build([]*callgrind.CostTree{b.Tree()}, metrics.Ir, o)
	require.NoError(t, err)
	require.Len(t, stacks, 2)
	assert.Equal(t, "src/lib.rs:bench_fib [target/bench]", stacks[0].Path())
	assert.Equal(t, uint64(40), Total(stacks))
}

func TestBuild_MergesTrees(t *testing.T) {
	trees := []*callgrind.CostTree{chainTree(t), chainTree(t)}
	stacks, err := Build(trees, metrics.Ir, opts())
	require.NoError(t, err)
	assert.Equal(t, uint64(200), Total(stacks))
}

func TestBuild_Errors(t *testing.T) {
	trees := []*callgrind.CostTree{chainTree(t)}

	_, err := Build(trees, metrics.Dr, opts())
	assert.ErrorIs(t, err, ErrMissingKind)

	_, err = Build(trees, metrics.L1HitRate, opts())
	assert.ErrorIs(t, err, ErrRatioKind)
}

func TestBuild_Empty(t *testing.T) {
	stacks, err := Build(nil, metrics.Ir, opts())
	require.NoError(t, err)
	assert.Empty(t, stacks)
}

func TestLabel_Normalization(t *testing.T) {
	tests := []struct {
		name string
		id   callgrind.FunctionID
		want string
	}{
		{"project relative", fn("f"), "src/lib.rs:f [target/bench]"},
		{"unknown file", callgrind.FunctionID{Object: "/usr/lib/libc.so.6", File: "???", Function: "memcpy"}, "memcpy [/usr/lib/libc.so.6]"},
		{"unknown object", callgrind.FunctionID{Object: "???", File: "/work/src/a.rs", Function: "f"}, "src/a.rs:f [???]"},
		{"missing object", callgrind.FunctionID{File: "lib.rs", Function: "f"}, "lib.rs:f [???]"},
		{
			"rustc hash",
			callgrind.FunctionID{File: "/rustc/90b35a6239c3d8bdabc530a6a0816f7ff89a0aaf/library/core/src/fmt/mod.rs", Function: "fmt", Object: "???"},
			"/rustc/90b35a62/library/core/src/fmt/mod.rs:fmt [???]",
		},
		{"outside root", callgrind.FunctionID{File: "/other/x.c", Function: "g", Object: "???"}, "/other/x.c:g [???]"},
		{
			"frame separator",
			callgrind.FunctionID{File: "???", Function: "<[u8; 32] as core::fmt::Debug>::fmt", Object: "/work/a;b.so"},
			"<[u8: 32] as core::fmt::Debug>::fmt [a:b.so]",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Label(tt.id, opts()))
		})
	}
}

func TestWriteFolded(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFolded(&buf, []Stack{
		{Frames: []string{"a"}, Count: 3},
		{Frames: []string{"a", "b"}, Count: 2},
	}))
	assert.Equal(t, "a 3\na;b 2\n", buf.String())
}

func TestBuildDiff(t *testing.T) {
	old := chainTree(t)

	b := callgrind.NewBuilder(metrics.Ir)
	_, err := b.Function(fn("root"), 40)
	require.NoError(t, err)
	_, err = b.Function(fn("a"), 80)
	require.NoError(t, err)
	require.NoError(t, b.Call(fn("root"), fn("a"), 1, 80))

	d, err := BuildDiff([]*callgrind.CostTree{old}, []*callgrind.CostTree{b.Tree()}, metrics.Ir, opts())
	require.NoError(t, err)
	assert.Equal(t, uint64(100), Total(d.Old))
	assert.Equal(t, uint64(120), Total(d.New))

	require.Len(t, d.Lines, 3)
	assert.Equal(t, uint64(40), d.Lines[0].Old)
	assert.Equal(t, uint64(40), d.Lines[0].New)
	assert.Equal(t, uint64(40), d.Lines[1].Old)
	assert.Equal(t, uint64(80), d.Lines[1].New)
	assert.Equal(t, int64(40), d.Lines[1].Delta())
	assert.Equal(t, uint64(20), d.Lines[2].Old)
	assert.Zero(t, d.Lines[2].New)

	var buf bytes.Buffer
	require.NoError(t, WriteDiff(&buf, d.Lines[:1]))
	assert.Equal(t, "src/lib.rs:root [target/bench] 40 40\n", buf.String())
}

func TestToPprof(t *testing.T) {
	p, err := ToPprof([]*callgrind.CostTree{chainTree(t)}, []metrics.EventKind{metrics.Ir}, opts())
	require.NoError(t, err)

	require.Len(t, p.Sample, 3)
	var sum int64
	for _, s := range p.Sample {
		sum += s.Value[0]
	}
	assert.Equal(t, int64(100), sum)
	assert.Len(t, p.Sample[2].Location, 3)
	assert.Equal(t, "src/lib.rs:b [target/bench]", p.Sample[2].Location[0].Line[0].Function.Name)

	var buf bytes.Buffer
	require.NoError(t, p.Write(&buf))
	assert.NotZero(t, buf.Len())

	_, err = ToPprof(nil, nil, opts())
	assert.Error(t, err)
}
