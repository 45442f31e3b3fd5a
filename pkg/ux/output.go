// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ux provides terminal output styling for the grindbench CLI.
package ux

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
)

// Color palette - deep ocean teals and arctic waters
var (
	ColorTealBright  = lipgloss.Color("#2CD7C7") // Bright teal - highlights, improvements
	ColorTealPrimary = lipgloss.Color("#20B9B4") // Primary teal - headers
	ColorTealDeep    = lipgloss.Color("#16858E") // Deep teal - borders, accents
	ColorSlate       = lipgloss.Color("#2C4A54") // Slate - muted text

	// Semantic colors
	ColorSuccess = lipgloss.Color("#2CD7C7")
	ColorWarning = lipgloss.Color("#F4D03F")
	ColorError   = lipgloss.Color("#E74C3C")
	ColorMuted   = lipgloss.Color("#2C4A54")
)

// Styles provides pre-configured lipgloss styles
var Styles = struct {
	Title     lipgloss.Style
	Subtitle  lipgloss.Style
	Bold      lipgloss.Style
	Muted     lipgloss.Style
	Success   lipgloss.Style
	Warning   lipgloss.Style
	Error     lipgloss.Style
	Highlight lipgloss.Style

	Box      lipgloss.Style
	ErrorBox lipgloss.Style
}{
	Title:     lipgloss.NewStyle().Bold(true).Foreground(ColorTealBright),
	Subtitle:  lipgloss.NewStyle().Foreground(ColorTealPrimary),
	Bold:      lipgloss.NewStyle().Bold(true),
	Muted:     lipgloss.NewStyle().Foreground(ColorSlate),
	Success:   lipgloss.NewStyle().Foreground(ColorSuccess),
	Warning:   lipgloss.NewStyle().Foreground(ColorWarning),
	Error:     lipgloss.NewStyle().Foreground(ColorError),
	Highlight: lipgloss.NewStyle().Foreground(ColorTealBright).Bold(true),

	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorTealDeep).
		Padding(0, 1),
	ErrorBox: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorError).
		Padding(0, 1),
}

// Icon provides themed status icons
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconPending Icon = "○"
	IconArrow   Icon = "→"
	IconBullet  Icon = "•"
)

// Render returns the icon with appropriate styling
func (i Icon) Render() string {
	switch i {
	case IconSuccess:
		return Paint(Styles.Success, string(i))
	case IconWarning:
		return Paint(Styles.Warning, string(i))
	case IconError:
		return Paint(Styles.Error, string(i))
	case IconPending:
		return Paint(Styles.Muted, string(i))
	default:
		return string(i)
	}
}

// Paint renders text with style when colors are enabled.
func Paint(style lipgloss.Style, text string) string {
	if !ShouldShowColors() {
		return text
	}
	return style.Render(text)
}

// Title writes a styled title
func Title(w io.Writer, text string) {
	if GetLevel() == LevelMachine {
		return
	}
	fmt.Fprintln(w, Paint(Styles.Title, text))
}

// Success writes a success message with checkmark
func Success(w io.Writer, text string) {
	if GetLevel() == LevelMachine {
		fmt.Fprintf(w, "OK: %s\n", text)
		return
	}
	fmt.Fprintf(w, "%s %s\n", IconSuccess.Render(), Paint(Styles.Success, text))
}

// Warning writes a warning message
func Warning(w io.Writer, text string) {
	if GetLevel() == LevelMachine {
		fmt.Fprintf(w, "WARN: %s\n", text)
		return
	}
	fmt.Fprintf(w, "%s %s\n", IconWarning.Render(), Paint(Styles.Warning, text))
}

// Error writes an error message
func Error(w io.Writer, text string) {
	if GetLevel() == LevelMachine {
		fmt.Fprintf(w, "ERROR: %s\n", text)
		return
	}
	fmt.Fprintf(w, "%s %s\n", IconError.Render(), Paint(Styles.Error, text))
}

// Info writes an informational message
func Info(w io.Writer, text string) {
	if GetLevel() == LevelMachine {
		fmt.Fprintln(w, text)
		return
	}
	fmt.Fprintf(w, "%s %s\n", Paint(Styles.Muted, "│"), text)
}

// Box writes text in a rounded box
func Box(w io.Writer, title, content string) {
	if GetLevel() != LevelRich {
		fmt.Fprintf(w, "%s: %s\n", title, content)
		return
	}
	fmt.Fprintln(w, Styles.Box.Render(Styles.Title.Render(title)+"\n"+content))
}

// Summary writes a summary line with counts
func Summary(w io.Writer, passed, regressed, failed int) {
	if GetLevel() == LevelMachine {
		fmt.Fprintf(w, "SUMMARY: passed=%d regressed=%d failed=%d\n", passed, regressed, failed)
		return
	}
	fmt.Fprintf(w, "\n%s %s  %s %s  %s %s\n",
		Paint(Styles.Success, fmt.Sprintf("%d", passed)), Paint(Styles.Muted, "passed"),
		Paint(Styles.Warning, fmt.Sprintf("%d", regressed)), Paint(Styles.Muted, "regressed"),
		Paint(Styles.Error, fmt.Sprintf("%d", failed)), Paint(Styles.Muted, "failed"),
	)
}
