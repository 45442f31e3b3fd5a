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

import "errors"

// Sentinel selects a function by a valgrind-style glob: '*' matches any
// run of characters including none, '?' matches exactly one character and
// everything else matches itself. Matching is anchored at both ends.
type Sentinel struct {
	pattern string
}

// NewSentinel returns a Sentinel for a non-empty pattern.
func NewSentinel(pattern string) (Sentinel, error) {
	if pattern == "" {
		return Sentinel{}, errors.New("empty sentinel pattern")
	}
	return Sentinel{pattern: pattern}, nil
}

// String returns the pattern.
func (s Sentinel) String() string {
	return s.pattern
}

// IsZero reports whether no pattern is set.
func (s Sentinel) IsZero() bool {
	return s.pattern == ""
}

// Matches reports whether name matches the pattern.
func (s Sentinel) Matches(name string) bool {
	if s.pattern == "" {
		return false
	}
	return globMatch(s.pattern, name)
}

// globMatch implements the single-star backtracking algorithm: on a
// mismatch it resumes after the most recent '*', consuming one more
// character of name.
func globMatch(patternStr, nameStr string) bool {
	pattern, name := []rune(patternStr), []rune(nameStr)
	p, n := 0, 0
	star, mark := -1, 0
	for n < len(name) {
		switch {
		case p < len(pattern) && pattern[p] == '*':
			star = p
			mark = n
			p++
		case p < len(pattern) && (pattern[p] == '?' || pattern[p] == name[n]):
			p++
			n++
		case star >= 0:
			p = star + 1
			mark++
			n = mark
		default:
			return false
		}
	}
	for p < len(pattern) && pattern[p] == '*' {
		p++
	}
	return p == len(pattern)
}
