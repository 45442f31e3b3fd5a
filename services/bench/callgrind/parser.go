// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package callgrind parses callgrind output files into per-part call graphs
// and per-unit cost totals.
//
// The parser reconstructs totals from the cost records instead of trusting
// the "summary:" or "totals:" lines, which are unreliable when
// instrumentation is toggled during a run.
package callgrind

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/grindbench/services/bench/metrics"
	"github.com/AleutianAI/grindbench/services/bench/outpath"
)

const maxLineSize = 16 * 1024 * 1024

// Part is one dump of a unit.
type Part struct {
	Number int

	// Tree is the call graph of this part.
	Tree *CostTree

	// Totals is the sum of all self cost records of this part.
	Totals *metrics.Costs[metrics.EventKind]

	// Declared is the last "summary:" or "totals:" line, if any. It is kept
	// for diagnostics only.
	Declared *metrics.Costs[metrics.EventKind]
}

// Profile is one parsed callgrind output file.
type Profile struct {
	Path   string
	Unit   outpath.UnitID
	Header Header
	Parts  []*Part
}

// Totals returns the sum of all parts' totals.
func (p *Profile) Totals() *metrics.Costs[metrics.EventKind] {
	total := metrics.NewCosts(p.Header.Events...)
	for _, part := range p.Parts {
		total.Add(part.Totals)
	}
	return total
}

// Trees returns the cost trees of all parts.
func (p *Profile) Trees() []*CostTree {
	trees := make([]*CostTree, len(p.Parts))
	for i, part := range p.Parts {
		trees[i] = part.Tree
	}
	return trees
}

// Options configure parsing.
type Options struct {
	// Logger receives parser warnings. Default: slog.Default().
	Logger *slog.Logger

	// SkipFailedUnits drops units failing to parse instead of aborting
	// the whole benchmark. Default: false.
	SkipFailedUnits bool
}

func (o Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

// ParseFile reads and parses one callgrind output file. The UnitID comes
// from the file name only.
func ParseFile(ctx context.Context, path string, opts Options) (*Profile, error) {
	_, span := otel.Tracer("callgrind").Start(ctx, "callgrind.Parse",
		trace.WithAttributes(attribute.String("path", path)),
	)
	defer span.End()

	unit, err := outpath.ParseUnit(path)
	if err != nil {
		opts.logger().Debug("output file name carries no unit", slog.String("path", path))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		span.SetStatus(codes.Error, "read failed")
		return nil, &ParseError{Path: path, Err: fmt.Errorf("read: %w", err)}
	}

	profile, err := Parse(path, data, opts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "parse failed")
		return nil, err
	}
	profile.Unit = unit
	span.SetAttributes(
		attribute.Int("parts", len(profile.Parts)),
		attribute.Int("events", len(profile.Header.Events)),
	)
	return profile, nil
}

// ParseUnits parses all unit files of one benchmark invocation.
//
// With SkipFailedUnits, a unit failing with a ParseError is dropped with a
// warning; any other failure, or every unit failing, aborts.
func ParseUnits(ctx context.Context, files []outpath.File, opts Options) ([]*Profile, error) {
	profiles := make([]*Profile, 0, len(files))
	for _, f := range files {
		p, err := ParseFile(ctx, f.Path, opts)
		if err != nil {
			if opts.SkipFailedUnits && errors.Is(err, ErrParse) {
				opts.logger().Warn("skipping unit that failed to parse",
					slog.String("path", f.Path),
					slog.String("unit", f.Unit.String()),
					slog.String("error", err.Error()),
				)
				continue
			}
			return nil, err
		}
		p.Unit = f.Unit
		profiles = append(profiles, p)
	}
	if len(profiles) == 0 && len(files) > 0 {
		return nil, &ParseError{Path: files[0].Path, Err: errors.New("no unit could be parsed")}
	}
	return profiles, nil
}

// Parse parses the content of a callgrind output file. path is used for
// error reporting only.
func Parse(path string, data []byte, opts Options) (*Profile, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, &ParseError{Path: path, Err: errors.New("empty file")}
	}
	p := &parser{
		path:   path,
		logger: opts.logger(),
		files:  newNameTable("file"),
		fns:    newNameTable("function"),
		objs:   newNameTable("object"),
	}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		p.lineNo++
		if err := p.line(scanner.Text()); err != nil {
			return nil, &ParseError{Path: path, Line: p.lineNo, Err: err}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, &ParseError{Path: path, Line: p.lineNo, Err: err}
	}
	if err := p.finish(); err != nil {
		return nil, &ParseError{Path: path, Line: p.lineNo, Err: err}
	}
	return p.profile(), nil
}

// =============================================================================
// Parser state
// =============================================================================

type parser struct {
	path   string
	logger *slog.Logger
	lineNo int

	header     Header
	inBody     bool
	sawContent bool

	files, fns, objs *nameTable

	parts   []*Part
	current *Part
	hasData bool

	ob, fl, fn    string
	cob, cfi, cfn string
	node          int
	hasNode       bool
	pendingCall   *pendingCall

	lastPos []uint64
}

type pendingCall struct {
	count  uint64
	lineNo int
}

func (p *parser) line(raw string) error {
	line := strings.TrimSpace(raw)

	if !p.sawContent {
		if line == "" {
			return nil
		}
		p.sawContent = true
		if !strings.Contains(strings.ToLower(line), "callgrind format") {
			p.logger.Warn("callgrind output does not start with a format line",
				slog.String("path", p.path))
		} else {
			return nil
		}
	}

	if line == "" || strings.HasPrefix(line, "#") {
		return nil
	}

	if p.pendingCall != nil && !isCostLine(line) {
		return fmt.Errorf("calls= line %d is not followed by a cost line", p.pendingCall.lineNo)
	}

	if !p.inBody {
		return p.headerLine(line)
	}
	return p.bodyLine(line)
}

func (p *parser) headerLine(line string) error {
	key, value, ok := splitHeader(line)
	if !ok {
		return fmt.Errorf("malformed header: unexpected line %q before events declaration", truncate(line))
	}
	handled, err := p.header.headerLine(key, value)
	if err != nil {
		return fmt.Errorf("malformed header: %w", err)
	}
	if !handled {
		return fmt.Errorf("malformed header: unknown declaration %q", key)
	}
	if key == "events" {
		p.startBody()
	}
	return nil
}

func (p *parser) startBody() {
	p.inBody = true
	if len(p.header.Positions) == 0 {
		p.header.Positions = []PositionKind{PositionLine}
	}
	p.lastPos = make([]uint64, len(p.header.Positions))
	p.newPart(p.header.Part)
}

func (p *parser) newPart(number int) {
	p.current = &Part{
		Number: number,
		Tree:   NewCostTree(p.header.Events),
		Totals: metrics.NewCosts(p.header.Events...),
	}
	p.parts = append(p.parts, p.current)
	p.hasData = false
	p.ob, p.fl, p.fn = "", "", ""
	p.cob, p.cfi, p.cfn = "", "", ""
	p.hasNode = false
	clear(p.lastPos)
}

func (p *parser) bodyLine(line string) error {
	if isCostLine(line) {
		return p.costLine(line)
	}

	if key, value, ok := strings.Cut(line, "="); ok && !strings.ContainsAny(key, " :") {
		return p.specLine(key, value)
	}

	key, value, ok := splitHeader(line)
	if !ok {
		return fmt.Errorf("unknown line %q", truncate(line))
	}
	switch key {
	case "totals", "summary":
		declared := &metrics.Costs[metrics.EventKind]{}
		values, err := parseValues(strings.Fields(value))
		if err != nil {
			return err
		}
		if err := declared.AddValues(p.header.Events, values); err != nil {
			return err
		}
		p.current.Declared = declared
		return nil
	case "part":
		var n int
		if err := parseIntInto(&n, key, value); err != nil {
			return err
		}
		if p.hasData {
			p.newPart(n)
		} else {
			p.current.Number = n
		}
		return nil
	case "events":
		events, err := parseEvents(value)
		if err != nil {
			return err
		}
		if !sameEvents(events, p.header.Events) {
			return fmt.Errorf("events redeclared with a different set: %q", value)
		}
		return nil
	case "positions":
		positions, err := parsePositions(value)
		if err != nil {
			return err
		}
		if len(positions) != len(p.header.Positions) {
			return fmt.Errorf("positions redeclared with a different arity")
		}
		return nil
	}
	var scratch Header
	handled, err := scratch.headerLine(key, value)
	if err != nil {
		return err
	}
	if !handled {
		return fmt.Errorf("unknown declaration %q", key)
	}
	return nil
}

func (p *parser) specLine(key, value string) error {
	var err error
	switch key {
	case "ob":
		p.ob, err = p.objs.resolve(value)
	case "fl":
		p.fl, err = p.files.resolve(value)
	case "fi", "fe":
		// following cost lines belong to the inlined file until the next
		// fl=, fi= or fe=
		p.fl, err = p.files.resolve(value)
		if err == nil && p.fn != "" {
			p.node = p.current.Tree.node(p.functionID(), 0)
			p.hasNode = true
		}
	case "fn":
		p.fn, err = p.fns.resolve(value)
		if err == nil {
			p.node = p.current.Tree.node(p.functionID(), 0)
			p.hasNode = true
		}
	case "cob":
		p.cob, err = p.objs.resolve(value)
	case "cfi", "cfl":
		p.cfi, err = p.files.resolve(value)
	case "cfn":
		p.cfn, err = p.fns.resolve(value)
	case "calls":
		fields := strings.Fields(value)
		if len(fields) == 0 {
			return fmt.Errorf("calls= without a count")
		}
		count, perr := strconv.ParseUint(fields[0], 10, 64)
		if perr != nil {
			return fmt.Errorf("invalid call count %q", fields[0])
		}
		p.pendingCall = &pendingCall{count: count, lineNo: p.lineNo}
	case "jump", "jcnd", "jfi", "jfn":
		// jump arcs carry no cost
	default:
		return fmt.Errorf("unknown specification %q", key)
	}
	return err
}

func (p *parser) functionID() FunctionID {
	return FunctionID{
		Object:   orUnknown(p.ob),
		File:     orUnknown(p.fl),
		Function: orUnknown(p.fn),
	}
}

func (p *parser) calleeID() (FunctionID, error) {
	if p.cfn == "" {
		return FunctionID{}, errors.New("calls= without a preceding cfn=")
	}
	obj := p.cob
	if obj == "" {
		obj = p.ob
	}
	file := p.cfi
	if file == "" {
		file = p.fl
	}
	return FunctionID{
		Object:   orUnknown(obj),
		File:     orUnknown(file),
		Function: p.cfn,
	}, nil
}

func (p *parser) costLine(line string) error {
	fields := strings.Fields(line)
	npos := len(p.header.Positions)
	if len(fields) < npos {
		return fmt.Errorf("cost line has %d fields but %d positions are declared", len(fields), npos)
	}
	var first uint64
	for i := 0; i < npos; i++ {
		v, err := p.position(i, fields[i])
		if err != nil {
			return err
		}
		if i == 0 {
			first = v
		}
	}
	values, err := parseValues(fields[npos:])
	if err != nil {
		return err
	}
	if len(values) > len(p.header.Events) {
		return fmt.Errorf("cost line has %d values but %d events are declared", len(values), len(p.header.Events))
	}

	if !p.hasNode {
		p.node = p.current.Tree.node(p.functionID(), first)
		p.hasNode = true
	}
	node := p.current.Tree.Node(p.node)
	if node.Position == 0 {
		node.Position = first
	}
	p.hasData = true

	if call := p.pendingCall; call != nil {
		p.pendingCall = nil
		calleeID, err := p.calleeID()
		if err != nil {
			return err
		}
		callee := p.current.Tree.node(calleeID, 0)
		p.cob, p.cfi = "", ""
		return p.current.Tree.addCall(p.node, callee, call.count, values)
	}

	if err := p.current.Tree.addSelf(p.node, values); err != nil {
		return err
	}
	return p.current.Totals.AddValues(p.header.Events, values)
}

// position decodes an absolute, hex, relative ("+n"/"-n") or repeated ("*")
// position field.
func (p *parser) position(i int, field string) (uint64, error) {
	last := p.lastPos[i]
	var v uint64
	switch {
	case field == "*":
		v = last
	case strings.HasPrefix(field, "+"):
		d, err := parsePositionNumber(field[1:])
		if err != nil {
			return 0, err
		}
		v = last + d
	case strings.HasPrefix(field, "-"):
		d, err := parsePositionNumber(field[1:])
		if err != nil {
			return 0, err
		}
		if d > last {
			return 0, fmt.Errorf("relative position %s underflows", field)
		}
		v = last - d
	default:
		d, err := parsePositionNumber(field)
		if err != nil {
			return 0, err
		}
		v = d
	}
	p.lastPos[i] = v
	return v, nil
}

func parsePositionNumber(s string) (uint64, error) {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		v, err := strconv.ParseUint(s[2:], 16, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid position %q", s)
		}
		return v, nil
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid position %q", s)
	}
	return v, nil
}

func parseValues(fields []string) ([]uint64, error) {
	values := make([]uint64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseUint(f, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid cost value %q", f)
		}
		values[i] = v
	}
	return values, nil
}

func (p *parser) finish() error {
	if !p.inBody {
		return errors.New("malformed header: missing events declaration")
	}
	if p.pendingCall != nil {
		return fmt.Errorf("calls= line %d is not followed by a cost line", p.pendingCall.lineNo)
	}
	for _, part := range p.parts {
		if part.Declared == nil || part.Declared.Equal(part.Totals) {
			continue
		}
		p.logger.Debug("declared totals differ from reconstructed totals",
			slog.String("path", p.path),
			slog.Int("part", part.Number),
		)
	}
	return nil
}

func (p *parser) profile() *Profile {
	parts := p.parts
	// a trailing part started by a "part:" line without data is dropped
	if len(parts) > 1 && !p.hasData {
		parts = parts[:len(parts)-1]
	}
	return &Profile{
		Path:   p.path,
		Header: p.header,
		Parts:  parts,
	}
}

// isCostLine reports whether line is a cost record: it starts with a
// digit, a relative position marker or a hex position.
func isCostLine(line string) bool {
	if line == "" {
		return false
	}
	switch c := line[0]; {
	case c >= '0' && c <= '9':
		return true
	case c == '+' || c == '-' || c == '*':
		return true
	}
	return false
}

func sameEvents(a, b []metrics.EventKind) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func orUnknown(s string) string {
	if s == "" {
		return UnknownName
	}
	return s
}

func truncate(s string) string {
	const maxLen = 60
	if len(s) > maxLen {
		return s[:maxLen] + "..."
	}
	return s
}

// =============================================================================
// Name compression
// =============================================================================

// nameTable resolves "(id) name" definitions and "(id)" references.
type nameTable struct {
	kind  string
	names map[string]string
}

func newNameTable(kind string) *nameTable {
	return &nameTable{kind: kind, names: make(map[string]string)}
}

// compressedName matches "(id)" and "(id) name". Anything else starting
// with "(" is a literal name such as "(below main)".
var compressedName = regexp.MustCompile(`^\((\d+)\)(?:\s+(.*))?$`)

func (t *nameTable) resolve(value string) (string, error) {
	value = strings.TrimSpace(value)
	m := compressedName.FindStringSubmatch(value)
	if m == nil {
		return value, nil
	}
	id, name := m[1], strings.TrimSpace(m[2])
	if name != "" {
		t.names[id] = name
		return name, nil
	}
	resolved, ok := t.names[id]
	if !ok {
		return "", fmt.Errorf("undefined compressed %s name (%s)", t.kind, id)
	}
	return resolved, nil
}
