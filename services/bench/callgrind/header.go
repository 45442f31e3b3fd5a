// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package callgrind

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/AleutianAI/grindbench/services/bench/metrics"
)

// PositionKind is one component of a cost line's position.
type PositionKind string

const (
	PositionLine  PositionKind = "line"
	PositionInstr PositionKind = "instr"
)

// Header holds the declarations preceding the first cost record.
type Header struct {
	Version   int
	Creator   string
	Cmd       string
	Pid       int
	Thread    int
	Part      int
	Desc      []string
	Positions []PositionKind
	Events    []metrics.EventKind
}

// headerLine applies one "key: value" header line. It reports false for
// lines that are not header declarations.
func (h *Header) headerLine(key, value string) (bool, error) {
	switch key {
	case "version":
		v, err := strconv.ParseInt(value, 0, 64)
		if err != nil {
			return true, fmt.Errorf("invalid version %q", value)
		}
		if v != 1 {
			return true, fmt.Errorf("unsupported format version %d", v)
		}
		h.Version = int(v)
	case "creator":
		h.Creator = value
	case "cmd":
		h.Cmd = value
	case "pid":
		return true, parseIntInto(&h.Pid, key, value)
	case "thread":
		return true, parseIntInto(&h.Thread, key, value)
	case "part":
		return true, parseIntInto(&h.Part, key, value)
	case "desc":
		if !strings.HasPrefix(value, "Option:") {
			h.Desc = append(h.Desc, value)
		}
	case "positions":
		positions, err := parsePositions(value)
		if err != nil {
			return true, err
		}
		h.Positions = positions
	case "events":
		events, err := parseEvents(value)
		if err != nil {
			return true, err
		}
		h.Events = events
	case "event":
		// long event names are informational only
	default:
		return false, nil
	}
	return true, nil
}

func parseIntInto(dst *int, key, value string) error {
	v, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("invalid %s %q", key, value)
	}
	*dst = v
	return nil
}

func parsePositions(value string) ([]PositionKind, error) {
	var out []PositionKind
	for _, f := range strings.Fields(value) {
		switch strings.ToLower(f) {
		case "line":
			out = append(out, PositionLine)
		case "instr", "addr":
			out = append(out, PositionInstr)
		default:
			return nil, fmt.Errorf("unknown position kind %q", f)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("empty positions declaration")
	}
	return out, nil
}

func parseEvents(value string) ([]metrics.EventKind, error) {
	fields := strings.Fields(value)
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty events declaration")
	}
	events := make([]metrics.EventKind, 0, len(fields))
	seen := make(map[metrics.EventKind]bool, len(fields))
	for _, f := range fields {
		k, err := metrics.ParseEventKind(f)
		if err != nil {
			return nil, err
		}
		if k.IsDerived() {
			return nil, fmt.Errorf("event %q cannot be recorded by callgrind", f)
		}
		if seen[k] {
			return nil, fmt.Errorf("duplicate event %q", f)
		}
		seen[k] = true
		events = append(events, k)
	}
	return events, nil
}

// splitHeader splits "key: value". ok is false when the line has no colon
// or the key contains characters never found in header keys.
func splitHeader(line string) (key, value string, ok bool) {
	key, value, ok = strings.Cut(line, ":")
	if !ok || key == "" || strings.ContainsAny(key, " =\t") {
		return "", "", false
	}
	return strings.ToLower(key), strings.TrimSpace(value), true
}
