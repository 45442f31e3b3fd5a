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
	"slices"
	"sync"
	"time"
)

// MemoryStore stores baselines in memory.
//
// Records are copied on both Save and Load, so callers never share state
// with the store. Data is lost when the process exits.
//
// Thread Safety: Safe for concurrent use.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]*Record
	now  func() time.Time
}

// NewMemoryStore creates an empty memory-backed store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string]*Record),
		now:  time.Now,
	}
}

// Load implements Store.
func (m *MemoryStore) Load(_ context.Context, k Key) (*Record, error) {
	if err := k.Validate(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	r, ok := m.data[k.ID()]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrBaselineNotFound
	}
	return r.Clone()
}

// Save implements Store.
func (m *MemoryStore) Save(_ context.Context, k Key, r *Record) error {
	out, err := stamp(k, r, m.now())
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.data[k.ID()]; ok {
		out.CreatedAt = prev.CreatedAt
	}
	m.data[k.ID()] = out
	return nil
}

// List implements Store.
func (m *MemoryStore) List(_ context.Context) ([]Key, error) {
	m.mu.RLock()
	ids := make([]string, 0, len(m.data))
	for id := range m.data {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	slices.Sort(ids)
	keys := make([]Key, 0, len(ids))
	for _, id := range ids {
		k, err := ParseID(id)
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, nil
}

// Delete implements Store.
func (m *MemoryStore) Delete(_ context.Context, k Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[k.ID()]; !ok {
		return ErrBaselineNotFound
	}
	delete(m.data, k.ID())
	return nil
}

// Close implements Store.
func (m *MemoryStore) Close() error { return nil }
