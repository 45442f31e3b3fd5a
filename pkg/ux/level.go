// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
)

// Level defines the richness of terminal output
type Level string

const (
	// LevelRich enables colors and icons
	LevelRich Level = "rich"

	// LevelPlain keeps icons and layout but drops colors
	LevelPlain Level = "plain"

	// LevelMachine outputs plain text suitable for scripting and parsing
	LevelMachine Level = "machine"
)

var (
	currentLevel = LevelRich
	levelMu      sync.RWMutex
)

// GetLevel returns the current output level
func GetLevel() Level {
	levelMu.RLock()
	defer levelMu.RUnlock()
	return currentLevel
}

// SetLevel updates the current output level
func SetLevel(l Level) {
	levelMu.Lock()
	defer levelMu.Unlock()
	currentLevel = l
}

// ParseLevel converts a string to Level. Unknown values yield LevelRich.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "plain", "p", "nocolor":
		return LevelPlain
	case "machine", "quiet", "q":
		return LevelMachine
	default:
		return LevelRich
	}
}

// InitLevel initializes the level from the environment and the terminal.
//
// GRINDBENCH_OUTPUT wins. NO_COLOR selects LevelPlain. A stdout that is
// not a terminal selects LevelPlain, so piped reports keep their layout.
func InitLevel() {
	if env := os.Getenv("GRINDBENCH_OUTPUT"); env != "" {
		SetLevel(ParseLevel(env))
		return
	}
	if _, ok := os.LookupEnv("NO_COLOR"); ok || !IsTerminal(os.Stdout) {
		SetLevel(LevelPlain)
		return
	}
	SetLevel(LevelRich)
}

// IsTerminal reports whether f is a terminal
func IsTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// ShouldShowColors returns true if we should use colors
func ShouldShowColors() bool {
	return GetLevel() == LevelRich
}
