// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"bytes"
	"strings"
	"testing"
)

func withLevel(t *testing.T, l Level) {
	t.Helper()
	orig := GetLevel()
	SetLevel(l)
	t.Cleanup(func() { SetLevel(orig) })
}

// =============================================================================
// Level Tests
// =============================================================================

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{
		"rich":    LevelRich,
		"PLAIN":   LevelPlain,
		"nocolor": LevelPlain,
		"machine": LevelMachine,
		" q ":     LevelMachine,
		"unknown": LevelRich,
		"":        LevelRich,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestInitLevel_EnvWins(t *testing.T) {
	orig := GetLevel()
	defer SetLevel(orig)

	t.Setenv("GRINDBENCH_OUTPUT", "machine")
	InitLevel()
	if GetLevel() != LevelMachine {
		t.Errorf("expected machine level, got %v", GetLevel())
	}
}

func TestInitLevel_NoColor(t *testing.T) {
	orig := GetLevel()
	defer SetLevel(orig)

	t.Setenv("GRINDBENCH_OUTPUT", "")
	t.Setenv("NO_COLOR", "1")
	InitLevel()
	if GetLevel() != LevelPlain {
		t.Errorf("expected plain level, got %v", GetLevel())
	}
}

// =============================================================================
// Output Tests
// =============================================================================

func TestPaint_PlainLeavesTextUntouched(t *testing.T) {
	withLevel(t, LevelPlain)
	if got := Paint(Styles.Error, "boom"); got != "boom" {
		t.Errorf("expected unstyled text, got %q", got)
	}
}

func TestIcon_Render(t *testing.T) {
	withLevel(t, LevelPlain)
	for _, icon := range []Icon{IconSuccess, IconWarning, IconError, IconPending, IconArrow} {
		if got := icon.Render(); got != string(icon) {
			t.Errorf("expected %q, got %q", icon, got)
		}
	}
}

func TestMessages_Machine(t *testing.T) {
	withLevel(t, LevelMachine)

	tests := []struct {
		name string
		fn   func(w *bytes.Buffer)
		want string
	}{
		{"success", func(w *bytes.Buffer) { Success(w, "done") }, "OK: done\n"},
		{"warning", func(w *bytes.Buffer) { Warning(w, "careful") }, "WARN: careful\n"},
		{"error", func(w *bytes.Buffer) { Error(w, "failed") }, "ERROR: failed\n"},
		{"info", func(w *bytes.Buffer) { Info(w, "note") }, "note\n"},
		{"title", func(w *bytes.Buffer) { Title(w, "hidden") }, ""},
		{"summary", func(w *bytes.Buffer) { Summary(w, 3, 1, 0) }, "SUMMARY: passed=3 regressed=1 failed=0\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			tt.fn(&buf)
			if buf.String() != tt.want {
				t.Errorf("expected %q, got %q", tt.want, buf.String())
			}
		})
	}
}

func TestMessages_Plain(t *testing.T) {
	withLevel(t, LevelPlain)

	var buf bytes.Buffer
	Warning(&buf, "careful")
	if buf.String() != "⚠ careful\n" {
		t.Errorf("unexpected warning output %q", buf.String())
	}

	buf.Reset()
	Box(&buf, "Title", "content")
	if !strings.Contains(buf.String(), "Title: content") {
		t.Errorf("unexpected box output %q", buf.String())
	}
}
