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
	"path/filepath"
	"strings"

	"github.com/AleutianAI/grindbench/services/bench/callgrind"
)

// rustcHashLen is the number of characters kept of a /rustc/<hash> path
// segment.
const rustcHashLen = 8

// normalizePath makes a source or object path comparable across runs.
// It returns "" for the unknown path.
func normalizePath(root, path string) string {
	if path == "" || path == callgrind.UnknownName {
		return ""
	}
	if root != "" {
		if rel, err := filepath.Rel(root, path); err == nil && filepath.IsAbs(path) && !strings.HasPrefix(rel, "..") {
			return rel
		}
	}
	if rest, ok := strings.CutPrefix(path, "/rustc/"); ok {
		hash, tail, _ := strings.Cut(rest, "/")
		if len(hash) > rustcHashLen {
			hash = hash[:rustcHashLen]
		}
		if tail == "" {
			return "/rustc/" + hash
		}
		return "/rustc/" + hash + "/" + tail
	}
	return path
}

// Label renders a function as "file:function [object]".
//
// The file part is dropped for an unknown file. An unknown object uses
// opts.ObjectPlaceholder, or is dropped when the placeholder is empty.
// A ';' is the folded-stack frame separator and becomes ':'.
func Label(id callgrind.FunctionID, opts Options) string {
	var b strings.Builder
	if file := normalizePath(opts.ProjectRoot, id.File); file != "" {
		b.WriteString(file)
		b.WriteByte(':')
	}
	b.WriteString(id.Function)

	obj := normalizePath(opts.ProjectRoot, id.Object)
	if obj == "" {
		obj = opts.ObjectPlaceholder
	}
	if obj != "" {
		b.WriteString(" [")
		b.WriteString(obj)
		b.WriteByte(']')
	}
	return strings.ReplaceAll(b.String(), ";", ":")
}
