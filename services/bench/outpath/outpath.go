// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package outpath implements the output file naming convention shared with
// the benchmark orchestrator.
//
// One file exists per tool and collection unit. The unit identity (process,
// thread, part) is encoded in the file name and is never inferred from the
// file content:
//
//	<tool>.<name>[.<pid>][.t<thread>][.p<part>].<out|log>[.old|.base@<baseline>]
//
// The raw naming produced by valgrind's own %p expansion is accepted too:
//
//	<name>.<out|log>[.old|.base@<baseline>][.#<pid>][.<part>][-<thread>]
package outpath

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/AleutianAI/grindbench/services/bench/metrics"
)

// ErrNoOutput is returned when no output file matches an OutputPath.
var ErrNoOutput = errors.New("no output files found")

var (
	normalizedRe = regexp.MustCompile(
		`^(?P<tool>[a-z]+)[.](?P<name>.+?)(?:[.](?P<pid>[0-9]+))?(?:[.]t(?P<tid>[0-9]+))?(?:[.]p(?P<part>[0-9]+))?(?:[.](?:bb|pc))?[.](?P<kind>out|log)(?:[.](?P<base>old|base@[^.]+))?$`,
	)
	rawRe = regexp.MustCompile(
		`^(?P<name>.*?)[.](?P<kind>out|log)(?:[.](?P<base>old|base@[^.#]+))?(?:[.]#(?P<pid>[0-9]+))?(?:[.](?P<part>[0-9]+))?(?:-(?P<tid>[0-9]+))?$`,
	)
)

// UnitID identifies one collection unit. A zero field means the file name
// does not carry that component.
type UnitID struct {
	Pid    int `json:"pid,omitempty"`
	Thread int `json:"thread,omitempty"`
	Part   int `json:"part,omitempty"`
}

// Compare orders by pid, then thread, then part.
func (u UnitID) Compare(o UnitID) int {
	if c := u.Pid - o.Pid; c != 0 {
		return sign(c)
	}
	if c := u.Thread - o.Thread; c != 0 {
		return sign(c)
	}
	return sign(u.Part - o.Part)
}

func sign(v int) int {
	switch {
	case v < 0:
		return -1
	case v > 0:
		return 1
	}
	return 0
}

// String renders the present components, e.g. "pid:1234 thread:2".
func (u UnitID) String() string {
	var parts []string
	if u.Pid != 0 {
		parts = append(parts, "pid:"+strconv.Itoa(u.Pid))
	}
	if u.Thread != 0 {
		parts = append(parts, "thread:"+strconv.Itoa(u.Thread))
	}
	if u.Part != 0 {
		parts = append(parts, "part:"+strconv.Itoa(u.Part))
	}
	if len(parts) == 0 {
		return "unit"
	}
	return strings.Join(parts, " ")
}

// Kind is the output file type.
type Kind string

const (
	KindOut Kind = "out"
	KindLog Kind = "log"
)

// FileName is a parsed output file name.
type FileName struct {
	Tool     string
	Name     string
	Kind     Kind
	Baseline string
	Unit     UnitID
}

// ParseFileName parses a file base name in either naming form.
func ParseFileName(base string) (FileName, error) {
	if m := match(normalizedRe, base); m != nil {
		return fileNameFrom(m)
	}
	if m := match(rawRe, base); m != nil {
		return fileNameFrom(m)
	}
	return FileName{}, fmt.Errorf("%q does not follow the output naming convention", base)
}

// ParseUnit derives the UnitID from a path's base name.
func ParseUnit(path string) (UnitID, error) {
	fn, err := ParseFileName(filepath.Base(path))
	if err != nil {
		return UnitID{}, err
	}
	return fn.Unit, nil
}

func match(re *regexp.Regexp, s string) map[string]string {
	sub := re.FindStringSubmatch(s)
	if sub == nil {
		return nil
	}
	out := make(map[string]string, len(sub))
	for i, name := range re.SubexpNames() {
		if name != "" {
			out[name] = sub[i]
		}
	}
	return out
}

func fileNameFrom(m map[string]string) (FileName, error) {
	fn := FileName{
		Tool:     m["tool"],
		Name:     m["name"],
		Kind:     Kind(m["kind"]),
		Baseline: m["base"],
	}
	if fn.Tool == "" {
		if tool, name, ok := strings.Cut(fn.Name, "."); ok {
			fn.Tool, fn.Name = tool, name
		}
	}
	var err error
	if fn.Unit.Pid, err = atoiOpt(m["pid"]); err != nil {
		return FileName{}, err
	}
	if fn.Unit.Thread, err = atoiOpt(m["tid"]); err != nil {
		return FileName{}, err
	}
	if fn.Unit.Part, err = atoiOpt(m["part"]); err != nil {
		return FileName{}, err
	}
	return fn, nil
}

func atoiOpt(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid unit component %q: %w", s, err)
	}
	return v, nil
}

// =============================================================================
// OutputPath
// =============================================================================

// OutputPath locates the output files of one tool for one benchmark.
type OutputPath struct {
	Dir      string
	Tool     metrics.Tool
	Name     string
	Kind     Kind
	Baseline string
}

// New returns the current-run OutputPath of a tool. Error tools write log
// files; the others write out files.
func New(dir string, tool metrics.Tool, name string) OutputPath {
	kind := KindOut
	if tool.IsErrorTool() {
		kind = KindLog
	}
	return OutputPath{Dir: dir, Tool: tool, Name: name, Kind: kind}
}

// Old returns the OutputPath of the previous run.
func (p OutputPath) Old() OutputPath {
	p.Baseline = "old"
	return p
}

// Base returns the OutputPath of a named baseline.
func (p OutputPath) Base(name string) OutputPath {
	p.Baseline = "base@" + name
	return p
}

// UnitPath returns the path of the file for one unit.
func (p OutputPath) UnitPath(u UnitID) string {
	var b strings.Builder
	b.WriteString(p.Tool.String())
	b.WriteByte('.')
	b.WriteString(p.Name)
	if u.Pid != 0 {
		fmt.Fprintf(&b, ".%d", u.Pid)
	}
	if u.Thread != 0 {
		fmt.Fprintf(&b, ".t%d", u.Thread)
	}
	if u.Part != 0 {
		fmt.Fprintf(&b, ".p%d", u.Part)
	}
	b.WriteByte('.')
	b.WriteString(string(p.Kind))
	if p.Baseline != "" {
		b.WriteByte('.')
		b.WriteString(p.Baseline)
	}
	return filepath.Join(p.Dir, b.String())
}

// File is one discovered unit file.
type File struct {
	Path string
	Unit UnitID
}

// Discover lists the unit files matching p, sorted by UnitID.
//
// Returns ErrNoOutput when nothing matches. Two files mapping to the same
// UnitID is an error.
func (p OutputPath) Discover() ([]File, error) {
	entries, err := os.ReadDir(p.Dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNoOutput, p)
		}
		return nil, fmt.Errorf("read output dir: %w", err)
	}

	var files []File
	seen := make(map[UnitID]string)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		fn, err := ParseFileName(e.Name())
		if err != nil {
			continue
		}
		fn, ok := p.resolve(fn)
		if !ok {
			continue
		}
		path := filepath.Join(p.Dir, e.Name())
		if prev, dup := seen[fn.Unit]; dup {
			return nil, fmt.Errorf("duplicate unit %s: %s and %s", fn.Unit, prev, path)
		}
		seen[fn.Unit] = path
		files = append(files, File{Path: path, Unit: fn.Unit})
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoOutput, p)
	}
	slices.SortFunc(files, func(a, b File) int { return a.Unit.Compare(b.Unit) })
	return files, nil
}

// For reinterprets fn as output of the bench called name. A numeric case
// id ("bench.42") parses as a pid when the file carries no pid of its
// own, so the pid is folded back into the name before giving up.
func (fn FileName) For(name string) (FileName, bool) {
	if fn.Name == name {
		return fn, true
	}
	if fn.Unit.Pid == 0 {
		return fn, false
	}
	alt := fn
	alt.Name = fn.Name + "." + strconv.Itoa(fn.Unit.Pid)
	alt.Unit.Pid = 0
	return alt, alt.Name == name
}

func (p OutputPath) resolve(fn FileName) (FileName, bool) {
	fn, ok := fn.For(p.Name)
	return fn, ok && p.matches(fn)
}

func (p OutputPath) matches(fn FileName) bool {
	return fn.Tool == p.Tool.String() &&
		fn.Name == p.Name &&
		fn.Kind == p.Kind &&
		fn.Baseline == p.Baseline
}

// Exists reports whether at least one unit file matches p.
func (p OutputPath) Exists() bool {
	_, err := p.Discover()
	return err == nil
}

// Rotate turns the current run into the previous run: existing ".old"
// files are removed and every current unit file is renamed to ".old".
func (p OutputPath) Rotate() error {
	current := p
	current.Baseline = ""
	old := current.Old()

	if files, err := old.Discover(); err == nil {
		for _, f := range files {
			if err := os.Remove(f.Path); err != nil {
				return fmt.Errorf("remove previous output: %w", err)
			}
		}
	}

	files, err := current.Discover()
	if err != nil {
		return err
	}
	for _, f := range files {
		if err := os.Rename(f.Path, old.UnitPath(f.Unit)); err != nil {
			return fmt.Errorf("rotate output: %w", err)
		}
	}
	return nil
}

// String returns the unit-less file pattern.
func (p OutputPath) String() string {
	return p.UnitPath(UnitID{})
}
