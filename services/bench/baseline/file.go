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
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// FileStore stores baselines as JSON files.
//
// Description:
//
//	Each key gets its own file:
//	{dir}/{file}/{group}/{function}[.{id}]/{name}.json
//	Saves write a temp file in the same directory and rename it into
//	place.
//
// Thread Safety: Safe for concurrent use.
type FileStore struct {
	dir   string
	locks keyedMutex
	now   func() time.Time
}

// NewFileStore creates a file-backed store rooted at dir.
//
// Inputs:
//   - dir: Root directory. Created if it does not exist.
//
// Outputs:
//   - *FileStore: The new store. Never nil on success.
//   - error: Non-nil if the directory cannot be created.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create baseline directory %s: %w", dir, err)
	}
	return &FileStore{dir: dir, now: time.Now}, nil
}

// Dir returns the root directory.
func (f *FileStore) Dir() string { return f.dir }

// Path returns the file holding k.
func (f *FileStore) Path(k Key) string {
	return filepath.Join(f.dir, filepath.FromSlash(k.ID())+".json")
}

// Load implements Store.
func (f *FileStore) Load(_ context.Context, k Key) (*Record, error) {
	if err := k.Validate(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.Path(k))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrBaselineNotFound
		}
		return nil, err
	}
	return decodeRecord(data)
}

// Save implements Store.
func (f *FileStore) Save(ctx context.Context, k Key, r *Record) error {
	out, err := stamp(k, r, f.now())
	if err != nil {
		return err
	}
	unlock := f.locks.lock(k.ID())
	defer unlock()

	if prev, err := f.Load(ctx, k); err == nil {
		out.CreatedAt = prev.CreatedAt
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	path := f.Path(k)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return writeAtomic(path, data)
}

// writeAtomic writes data to a sibling temp file and renames it onto path.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// List implements Store.
func (f *FileStore) List(_ context.Context) ([]Key, error) {
	var keys []Key
	err := filepath.WalkDir(f.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(path) != ".json" || strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		rel, err := filepath.Rel(f.dir, path)
		if err != nil {
			return err
		}
		k, err := ParseID(strings.TrimSuffix(filepath.ToSlash(rel), ".json"))
		if err != nil {
			// Foreign files in the baseline directory are not ours to list.
			return nil
		}
		keys = append(keys, k)
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(keys, func(a, b Key) int { return strings.Compare(a.ID(), b.ID()) })
	return keys, nil
}

// Delete implements Store.
func (f *FileStore) Delete(_ context.Context, k Key) error {
	unlock := f.locks.lock(k.ID())
	defer unlock()

	err := os.Remove(f.Path(k))
	if errors.Is(err, fs.ErrNotExist) {
		return ErrBaselineNotFound
	}
	return err
}

// Close implements Store.
func (f *FileStore) Close() error { return nil }
