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
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/grindbench/pkg/ux"
)

// --- Global Command Variables ---
var (
	configPath  string
	outputLevel string // terminal output level (rich/plain/machine)

	rootCmd = &cobra.Command{
		Use:   "grindbench",
		Short: "Analyze valgrind benchmark output and gate performance regressions",
		Long: `grindbench reads the callgrind, cachegrind, DHAT and error-tool output
of benchmark runs, compares it with stored baselines and reports
regressions. It exits with 3 when a benchmark regressed.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if outputLevel != "" {
				ux.SetLevel(ux.ParseLevel(outputLevel))
			} else {
				ux.InitLevel()
			}
		},
	}

	// --- Analysis ---
	analyzeCmd = &cobra.Command{
		Use:   "analyze [file/group/function[.id]...]",
		Short: "Parse the tool output, compare with the baseline and report",
		Long: `Analyze every benchmark below the output directory, or only the
listed ones. The new results replace the compared baseline unless
--save-baseline names another one.`,
		RunE: runAnalyze, // Defined in cmd_analyze.go
	}

	watchCmd = &cobra.Command{
		Use:   "watch",
		Short: "Re-run the analysis whenever new tool output appears",
		RunE:  runWatch, // Defined in cmd_watch.go
	}

	flamegraphCmd = &cobra.Command{
		Use:   "flamegraph [file/group/function[.id]...]",
		Short: "Write folded flamegraph stacks from the callgrind output",
		RunE:  runFlamegraph, // Defined in cmd_flamegraph.go
	}

	rotateCmd = &cobra.Command{
		Use:   "rotate",
		Short: "Turn the current tool output into the previous-run output",
		Long: `Rotate renames the current output files to ".old" before the next
benchmark run, so differential flamegraphs can be drawn against them.`,
		RunE: runRotate, // Defined in cmd_flamegraph.go
	}

	// --- Baselines ---
	baselineCmd = &cobra.Command{
		Use:   "baseline",
		Short: "Inspect and manage stored baselines",
	}
	baselineListCmd = &cobra.Command{
		Use:   "list",
		Short: "List stored baselines",
		Args:  cobra.NoArgs,
		RunE:  runBaselineList, // Defined in cmd_baseline.go
	}
	baselineShowCmd = &cobra.Command{
		Use:   "show [file/group/function[.id]/name]",
		Short: "Print a stored baseline record as JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  runBaselineShow, // Defined in cmd_baseline.go
	}
	baselineDeleteCmd = &cobra.Command{
		Use:   "delete [file/group/function[.id]/name...]",
		Short: "Delete stored baselines",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runBaselineDelete, // Defined in cmd_baseline.go
	}

	// --- Configuration ---
	limitsCmd = &cobra.Command{
		Use:   "limits",
		Short: "Show the effective regression limits",
		Args:  cobra.NoArgs,
		RunE:  runLimits, // Defined in cmd_limits.go
	}
	configCmd = &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE:  runConfig, // Defined in cmd_limits.go
	}
)

// Flag values that override the configuration file. They are applied
// only when the flag was set on the command line.
var (
	flagOutDir           string
	flagBaseline         string
	flagSaveBaseline     string
	flagLoadBaseline     string
	flagFormat           string
	flagShowIntermediate bool
	flagParallelism      int
	flagFailFast         bool
	flagCallgrindLimits  string
	flagCachegrindLimits string
	flagDhatLimits       string
	flagErrorLimits      string
	flagCallgrindMetrics string
	flagSummaryFile      string
	flagBenchfmtFile     string
	flagCompareByID      bool
	flagNoFlamegraph     bool
	flagLogLevel         string
	flagDebounce         time.Duration
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"Configuration file (default: ./grindbench.yaml when present)")
	rootCmd.PersistentFlags().StringVar(&outputLevel, "output", "",
		"Terminal output level: rich, plain or machine (env: GRINDBENCH_OUTPUT)")
	rootCmd.PersistentFlags().StringVar(&flagOutDir, "out-dir", "", "Directory holding the benchmark output")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level: debug, info, warn or error")
	rootCmd.PersistentFlags().StringVar(&flagBaseline, "baseline", "",
		"Compare against this saved baseline instead of the previous run")

	for _, cmd := range []*cobra.Command{analyzeCmd, watchCmd} {
		cmd.Flags().StringVar(&flagSaveBaseline, "save-baseline", "", "Save the new results under this baseline name")
		cmd.Flags().StringVar(&flagFormat, "format", "", "Output format: default, json or pretty-json")
		cmd.Flags().BoolVar(&flagShowIntermediate, "show-intermediate", false, "Show the costs of every pid, thread and part")
		cmd.Flags().IntVarP(&flagParallelism, "parallelism", "j", 0, "Benchmarks analyzed at once")
		cmd.Flags().BoolVar(&flagFailFast, "fail-fast", false, "Stop after the first regressed benchmark")
		cmd.Flags().StringVar(&flagCallgrindLimits, "callgrind-limits", "", "Callgrind limits, e.g. 'Ir=5%,EstimatedCycles=10000'")
		cmd.Flags().StringVar(&flagCachegrindLimits, "cachegrind-limits", "", "Cachegrind limits")
		cmd.Flags().StringVar(&flagDhatLimits, "dhat-limits", "", "DHAT limits")
		cmd.Flags().StringVar(&flagErrorLimits, "error-limits", "", "Memcheck, helgrind and DRD limits")
		cmd.Flags().StringVar(&flagCallgrindMetrics, "callgrind-metrics", "", "Callgrind metrics and @groups shown in the report")
		cmd.Flags().StringVar(&flagSummaryFile, "summary-file", "", "Write the JSON run summary to this file")
		cmd.Flags().StringVar(&flagBenchfmtFile, "benchfmt-file", "", "Write the totals in Go benchmark format to this file")
		cmd.Flags().BoolVar(&flagCompareByID, "compare-by-id", false, "Compare same-id cases across the functions of a group")
		cmd.Flags().BoolVar(&flagNoFlamegraph, "no-flamegraph", false, "Do not write flamegraph files")
	}
	analyzeCmd.Flags().StringVar(&flagLoadBaseline, "load-baseline", "",
		"Use this saved baseline as the new side (requires --baseline)")
	watchCmd.Flags().DurationVar(&flagDebounce, "debounce", defaultDebounce,
		"Quiet period after the last file event before analyzing")

	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(flamegraphCmd)
	rootCmd.AddCommand(rotateCmd)

	rootCmd.AddCommand(baselineCmd)
	baselineCmd.AddCommand(baselineListCmd)
	baselineCmd.AddCommand(baselineShowCmd)
	baselineCmd.AddCommand(baselineDeleteCmd)

	rootCmd.AddCommand(limitsCmd)
	limitsCmd.Flags().StringVar(&flagCallgrindLimits, "callgrind-limits", "", "Callgrind limits to check")
	limitsCmd.Flags().StringVar(&flagCachegrindLimits, "cachegrind-limits", "", "Cachegrind limits to check")
	limitsCmd.Flags().StringVar(&flagDhatLimits, "dhat-limits", "", "DHAT limits to check")
	limitsCmd.Flags().StringVar(&flagErrorLimits, "error-limits", "", "Error tool limits to check")
	rootCmd.AddCommand(configCmd)
}
