// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package baseline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/grindbench/services/bench/aggregate"
	"github.com/AleutianAI/grindbench/services/bench/metrics"
)

var fibID = Identity{File: "my_bench", Group: "fib_group", Function: "bench_fib", CaseID: "short", Details: "fib(10)"}

func record(t *testing.T, ir uint64) *Record {
	t.Helper()
	r := NewRecord(fibID)
	c := &metrics.Costs[metrics.EventKind]{}
	c.Set(metrics.Ir, metrics.Int(ir))
	r.Callgrind = &aggregate.Total[metrics.EventKind]{Costs: c}
	return r
}

func irOf(t *testing.T, r *Record) uint64 {
	t.Helper()
	require.NotNil(t, r.Callgrind)
	m, ok := r.Callgrind.Costs.Get(metrics.Ir)
	require.True(t, ok)
	v, _ := m.Uint64()
	return v
}

func stores(t *testing.T) map[string]Store {
	t.Helper()
	fs, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	bs, err := OpenBadgerStore(BadgerConfig{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { bs.Close() })
	return map[string]Store{
		"memory": NewMemoryStore(),
		"file":   fs,
		"badger": bs,
	}
}

func TestStores_RoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			k := Key{Identity: fibID}

			_, err := store.Load(ctx, k)
			assert.ErrorIs(t, err, ErrBaselineNotFound)

			require.NoError(t, store.Save(ctx, k, record(t, 100)))
			got, err := store.Load(ctx, k)
			require.NoError(t, err)
			assert.Equal(t, uint64(100), irOf(t, got))
			assert.Equal(t, RecordSchemaVersion, got.SchemaVersion)
			assert.NotEmpty(t, got.RunID)
			assert.False(t, got.CreatedAt.IsZero())
			assert.Equal(t, fibID, got.Identity)

			created := got.CreatedAt
			require.NoError(t, store.Save(ctx, k, record(t, 120)))
			got, err = store.Load(ctx, k)
			require.NoError(t, err)
			assert.Equal(t, uint64(120), irOf(t, got))
			assert.True(t, got.CreatedAt.Equal(created))
		})
	}
}

func TestStores_NamedBaselinesAreIndependent(t *testing.T) {
	ctx := context.Background()
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			prev := Key{Identity: fibID}
			named := Key{Identity: fibID, Name: "main_branch"}
			require.NoError(t, store.Save(ctx, prev, record(t, 1)))
			require.NoError(t, store.Save(ctx, named, record(t, 2)))

			keys, err := store.List(ctx)
			require.NoError(t, err)
			assert.Equal(t, []Key{
				{Identity: Identity{File: "my_bench", Group: "fib_group", Function: "bench_fib", CaseID: "short"}},
				{Identity: Identity{File: "my_bench", Group: "fib_group", Function: "bench_fib", CaseID: "short"}, Name: "main_branch"},
			}, keys)

			require.NoError(t, store.Delete(ctx, named))
			assert.ErrorIs(t, store.Delete(ctx, named), ErrBaselineNotFound)
			got, err := store.Load(ctx, prev)
			require.NoError(t, err)
			assert.Equal(t, uint64(1), irOf(t, got))
		})
	}
}

func TestStores_CopySemantics(t *testing.T) {
	ctx := context.Background()
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			k := Key{Identity: fibID}
			r := record(t, 5)
			require.NoError(t, store.Save(ctx, k, r))
			r.Callgrind.Costs.Set(metrics.Ir, metrics.Int(999))

			got, err := store.Load(ctx, k)
			require.NoError(t, err)
			assert.Equal(t, uint64(5), irOf(t, got))

			got.Callgrind.Costs.Set(metrics.Ir, metrics.Int(7))
			again, err := store.Load(ctx, k)
			require.NoError(t, err)
			assert.Equal(t, uint64(5), irOf(t, again))
		})
	}
}

func TestStores_ConcurrentWritersLastWins(t *testing.T) {
	ctx := context.Background()
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			k := Key{Identity: fibID, Name: "race"}
			var wg sync.WaitGroup
			for i := 0; i < 16; i++ {
				wg.Add(1)
				go func(v uint64) {
					defer wg.Done()
					assert.NoError(t, store.Save(ctx, k, record(t, v)))
				}(uint64(i))
			}
			wg.Wait()

			got, err := store.Load(ctx, k)
			require.NoError(t, err)
			assert.Less(t, irOf(t, got), uint64(16))
		})
	}
}

func TestValidation(t *testing.T) {
	assert.NoError(t, ValidateName(""))
	assert.NoError(t, ValidateName("feature_42"))
	for _, bad := range []string{"with space", "a/b", "..", "dash-ed", "ümlaut"} {
		assert.ErrorIs(t, ValidateName(bad), ErrInvalidName, bad)
	}

	bad := fibID
	bad.Function = "../escape"
	store := NewMemoryStore()
	assert.ErrorIs(t, store.Save(context.Background(), Key{Identity: bad}, record(t, 1)), ErrInvalidName)
}

func TestKeyID_RoundTrip(t *testing.T) {
	for _, k := range []Key{
		{Identity: fibID},
		{Identity: Identity{File: "f", Group: "g", Function: "fn"}, Name: "base"},
	} {
		parsed, err := ParseID(k.ID())
		require.NoError(t, err)
		want := k
		want.Identity.Details = ""
		assert.Equal(t, want, parsed)
	}
	assert.Equal(t, "my_bench/fib_group/bench_fib.short/default", Key{Identity: fibID}.ID())

	_, err := ParseID("too/short")
	assert.ErrorIs(t, err, ErrInvalidName)
}

func TestIdentity_String(t *testing.T) {
	assert.Equal(t, "my_bench::fib_group::bench_fib short", fibID.String())
	noID := fibID
	noID.CaseID = ""
	assert.Equal(t, "my_bench::fib_group::bench_fib", noID.String())
}

func TestFileStore_LayoutAndCorruption(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)
	ctx := context.Background()
	k := Key{Identity: fibID, Name: "v1"}
	require.NoError(t, store.Save(ctx, k, record(t, 3)))

	path := filepath.Join(dir, "my_bench", "fib_group", "bench_fib.short", "v1.json")
	assert.FileExists(t, path)
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")

	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))
	_, err = store.Load(ctx, k)
	assert.ErrorIs(t, err, ErrInvalidBaseline)

	require.NoError(t, os.WriteFile(path, []byte(`{"schema_version": 99}`), 0644))
	_, err = store.Load(ctx, k)
	assert.ErrorIs(t, err, ErrInvalidBaseline)
}

func TestBadgerStore_Persistent(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	k := Key{Identity: fibID}

	store, err := OpenBadgerStore(BadgerConfig{Path: dir, GCInterval: time.Hour})
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, k, record(t, 42)))
	require.NoError(t, store.Close())

	store, err = OpenBadgerStore(BadgerConfig{Path: dir})
	require.NoError(t, err)
	defer store.Close()
	got, err := store.Load(ctx, k)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), irOf(t, got))
}

func TestOpen(t *testing.T) {
	for _, backend := range []string{BackendFile, BackendMemory, BackendBadger} {
		s, err := Open(backend, t.TempDir(), nil)
		require.NoError(t, err, backend)
		require.NoError(t, s.Close())
	}
	_, err := Open("s3", t.TempDir(), nil)
	assert.Error(t, err)
}

func TestCancelledContext(t *testing.T) {
	store, err := OpenBadgerStore(BadgerConfig{InMemory: true})
	require.NoError(t, err)
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = store.Save(ctx, Key{Identity: fibID}, record(t, 1))
	assert.True(t, errors.Is(err, context.Canceled), fmt.Sprint(err))
}
