// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/grindbench/pkg/ux"
	"github.com/AleutianAI/grindbench/services/bench/metrics"
	"github.com/AleutianAI/grindbench/services/bench/regression"
)

// runLimits validates the configured limits and prints what they expand
// to. A bad limit fails like it would before an analysis.
func runLimits(cmd *cobra.Command, args []string) error {
	_, settings, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	l := settings.Limits
	writeLimits(out, metrics.ToolCallgrind, l.Callgrind)
	writeLimits(out, metrics.ToolCachegrind, l.Cachegrind)
	writeLimits(out, metrics.ToolDHAT, l.Dhat)
	writeLimits(out, metrics.ToolMemcheck, l.Errors)
	if l.FailFast() {
		ux.Info(out, "fail-fast is enabled")
	}
	return nil
}

func writeLimits[K metrics.Kind](w io.Writer, tool metrics.Tool, l *regression.Limits[K]) {
	name := tool.String()
	if tool.IsErrorTool() {
		name = "errors"
	}
	if ux.GetLevel() == ux.LevelMachine {
		fmt.Fprintf(w, "%s: %s\n", name, l.String())
		return
	}
	ux.Title(w, name)
	if l.Len() == 0 {
		fmt.Fprintf(w, "  %s\n", ux.Paint(ux.Styles.Muted, "no limits"))
		return
	}
	for _, lim := range l.All() {
		soft, hard := "-", "-"
		if lim.Soft != nil {
			soft = strconv.FormatFloat(*lim.Soft, 'f', -1, 64) + "%"
		}
		if lim.Hard != nil {
			hard = lim.Hard.String()
		}
		fmt.Fprintf(w, "  %-20s soft %-8s hard %s\n", lim.Kind.String(), soft, hard)
	}
}

func runConfig(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	data, err := cfg.Marshal()
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}
