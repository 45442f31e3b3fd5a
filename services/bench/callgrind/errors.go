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
	"errors"
	"fmt"
)

// ErrParse is the sentinel wrapped by every ParseError.
var ErrParse = errors.New("parse error")

// ParseError reports malformed or unsupported profiler output.
//
// Line is 1-based; 0 means the error concerns the whole file.
type ParseError struct {
	Path string
	Line int
	Err  error
}

// Error implements error.
func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %v", e.Path, e.Line, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

// Unwrap returns the cause.
func (e *ParseError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrParse) true for every ParseError.
func (e *ParseError) Is(target error) bool {
	return target == ErrParse
}

// NewParseError builds a ParseError with a formatted cause.
func NewParseError(path string, line int, format string, args ...any) *ParseError {
	return &ParseError{Path: path, Line: line, Err: fmt.Errorf(format, args...)}
}
