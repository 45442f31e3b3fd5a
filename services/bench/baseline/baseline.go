// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package baseline persists benchmark Totals under a benchmark identity and
// a baseline name.
//
// The empty name is the implicit previous run. Every other name must match
// ^[A-Za-z0-9_]+$. Saving replaces a baseline atomically: a concurrent
// Load sees either the old or the new record, never a partial one.
package baseline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/grindbench/services/bench/aggregate"
	"github.com/AleutianAI/grindbench/services/bench/metrics"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrBaselineNotFound indicates no baseline exists for the key.
	ErrBaselineNotFound = errors.New("baseline not found")

	// ErrInvalidBaseline indicates the stored record is corrupted.
	ErrInvalidBaseline = errors.New("invalid baseline data")

	// ErrInvalidName indicates a baseline name or identity segment that
	// cannot be used as a storage key.
	ErrInvalidName = errors.New("invalid baseline name")
)

// DefaultName is the storage name of the implicit previous run.
const DefaultName = "default"

// RecordSchemaVersion is bumped when the Record layout changes
// incompatibly.
const RecordSchemaVersion = 1

var (
	nameRe    = regexp.MustCompile(`^[A-Za-z0-9_]+$`)
	segmentRe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
)

// ValidateName checks an explicit baseline name. The empty name is valid.
func ValidateName(name string) error {
	if name == "" || nameRe.MatchString(name) {
		return nil
	}
	return fmt.Errorf("%w: %q must match %s", ErrInvalidName, name, nameRe)
}

// -----------------------------------------------------------------------------
// Identity and Key
// -----------------------------------------------------------------------------

// Identity identifies one benchmark case.
type Identity struct {
	File     string `json:"file"`
	Group    string `json:"group"`
	Function string `json:"function"`
	CaseID   string `json:"id,omitempty"`

	// Details is the human-readable argument description. It is not part
	// of the storage key.
	Details string `json:"details,omitempty"`
}

// ModulePath returns "file::group::function".
func (i Identity) ModulePath() string {
	return i.File + "::" + i.Group + "::" + i.Function
}

// String returns the module path followed by the case id, if any.
func (i Identity) String() string {
	if i.CaseID == "" {
		return i.ModulePath()
	}
	return i.ModulePath() + " " + i.CaseID
}

// Validate checks that every key segment is usable as a path component.
func (i Identity) Validate() error {
	for _, f := range [][2]string{{"file", i.File}, {"group", i.Group}, {"function", i.Function}} {
		if !segmentRe.MatchString(f[1]) {
			return fmt.Errorf("%w: %s %q must match %s", ErrInvalidName, f[0], f[1], segmentRe)
		}
	}
	if i.CaseID != "" && !segmentRe.MatchString(i.CaseID) {
		return fmt.Errorf("%w: id %q must match %s", ErrInvalidName, i.CaseID, segmentRe)
	}
	return nil
}

// Key addresses one stored baseline.
type Key struct {
	Identity Identity
	Name     string
}

// Validate checks the identity and the name.
func (k Key) Validate() error {
	if err := k.Identity.Validate(); err != nil {
		return err
	}
	return ValidateName(k.Name)
}

// StorageName returns Name, or DefaultName for the implicit baseline.
func (k Key) StorageName() string {
	if k.Name == "" {
		return DefaultName
	}
	return k.Name
}

func (k Key) functionDir() string {
	if k.Identity.CaseID == "" {
		return k.Identity.Function
	}
	return k.Identity.Function + "." + k.Identity.CaseID
}

// ID returns "file/group/function[.id]/name". It is unique per key and
// reversible with ParseID.
func (k Key) ID() string {
	return strings.Join([]string{k.Identity.File, k.Identity.Group, k.functionDir(), k.StorageName()}, "/")
}

func (k Key) String() string {
	if k.Name == "" {
		return k.Identity.String()
	}
	return k.Identity.String() + " @" + k.Name
}

// ParseID is the inverse of Key.ID.
func ParseID(id string) (Key, error) {
	parts := strings.Split(id, "/")
	if len(parts) != 4 {
		return Key{}, fmt.Errorf("%w: malformed key %q", ErrInvalidName, id)
	}
	fn, caseID, _ := strings.Cut(parts[2], ".")
	k := Key{
		Identity: Identity{File: parts[0], Group: parts[1], Function: fn, CaseID: caseID},
		Name:     parts[3],
	}
	if k.Name == DefaultName {
		k.Name = ""
	}
	if err := k.Validate(); err != nil {
		return Key{}, err
	}
	return k, nil
}

// -----------------------------------------------------------------------------
// Record
// -----------------------------------------------------------------------------

// Record is one persisted benchmark result.
type Record struct {
	SchemaVersion int       `json:"schema_version"`
	RunID         string    `json:"run_id"`
	Identity      Identity  `json:"identity"`
	Name          string    `json:"name,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`

	Callgrind  *aggregate.Total[metrics.EventKind]        `json:"callgrind,omitempty"`
	Cachegrind *aggregate.Total[metrics.CachegrindMetric] `json:"cachegrind,omitempty"`
	Dhat       *aggregate.Total[metrics.DhatMetric]       `json:"dhat,omitempty"`

	// Errors is keyed by the error tool name (memcheck, helgrind, drd).
	Errors map[string]*aggregate.Total[metrics.ErrorMetric] `json:"errors,omitempty"`
}

// NewRecord returns an empty record with a fresh run id.
func NewRecord(id Identity) *Record {
	return &Record{
		SchemaVersion: RecordSchemaVersion,
		RunID:         uuid.NewString(),
		Identity:      id,
	}
}

// Clone returns a deep copy.
func (r *Record) Clone() (*Record, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	var out Record
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// IsEmpty reports whether the record holds no totals at all.
func (r *Record) IsEmpty() bool {
	return r.Callgrind == nil && r.Cachegrind == nil && r.Dhat == nil && len(r.Errors) == 0
}

func decodeRecord(data []byte) (*Record, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBaseline, err)
	}
	if r.SchemaVersion != RecordSchemaVersion {
		return nil, fmt.Errorf("%w: schema version %d, want %d",
			ErrInvalidBaseline, r.SchemaVersion, RecordSchemaVersion)
	}
	return &r, nil
}

// stamp prepares a copy of r for storage under k.
func stamp(k Key, r *Record, now time.Time) (*Record, error) {
	if r == nil {
		return nil, errors.New("baseline record must not be nil")
	}
	if err := k.Validate(); err != nil {
		return nil, err
	}
	out, err := r.Clone()
	if err != nil {
		return nil, err
	}
	if out.RunID == "" {
		out.RunID = uuid.NewString()
	}
	out.SchemaVersion = RecordSchemaVersion
	out.Identity = k.Identity
	out.Name = k.Name
	out.UpdatedAt = now
	if out.CreatedAt.IsZero() {
		out.CreatedAt = now
	}
	return out, nil
}

// -----------------------------------------------------------------------------
// Store Interface
// -----------------------------------------------------------------------------

// Store persists baseline records.
//
// Thread Safety: Implementations must be safe for concurrent use. Writes
// to the same key are serialized; the last write wins.
type Store interface {
	// Load returns the record for k, or ErrBaselineNotFound.
	Load(ctx context.Context, k Key) (*Record, error)

	// Save replaces the record for k.
	Save(ctx context.Context, k Key, r *Record) error

	// List returns every stored key sorted by ID.
	List(ctx context.Context) ([]Key, error)

	// Delete removes k, or returns ErrBaselineNotFound.
	Delete(ctx context.Context, k Key) error

	// Close releases the backend.
	Close() error
}

// keyedMutex serializes writers per key.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	sync.Mutex
	refs int
}

func (m *keyedMutex) lock(key string) func() {
	m.mu.Lock()
	if m.locks == nil {
		m.locks = make(map[string]*keyLock)
	}
	l, ok := m.locks[key]
	if !ok {
		l = &keyLock{}
		m.locks[key] = l
	}
	l.refs++
	m.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		m.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(m.locks, key)
		}
		m.mu.Unlock()
	}
}
