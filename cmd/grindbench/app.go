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
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/grindbench/pkg/logging"
	"github.com/AleutianAI/grindbench/services/bench/aggregate"
	"github.com/AleutianAI/grindbench/services/bench/baseline"
	"github.com/AleutianAI/grindbench/services/bench/config"
	"github.com/AleutianAI/grindbench/services/bench/engine"
	"github.com/AleutianAI/grindbench/services/bench/telemetry"
)

// app holds everything a command needs. Close releases it.
type app struct {
	cfg      *config.Config
	settings *config.Settings
	log      *logging.Logger
	logger   *slog.Logger
	store    baseline.Store
	sink     *telemetry.PrometheusSink
	shutdown func(context.Context) error
}

// loadConfig reads the configuration file and environment, applies the
// flags set on cmd and compiles the result.
func loadConfig(cmd *cobra.Command) (*config.Config, *config.Settings, error) {
	cfg, err := config.Load(configPath, os.Getenv)
	if err != nil {
		return nil, nil, err
	}
	applyFlags(cmd, cfg)
	settings, err := cfg.Parse()
	if err != nil {
		return nil, nil, err
	}
	return cfg, settings, nil
}

// applyFlags copies every flag set on the command line into cfg.
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	changed := func(name string) bool {
		f := cmd.Flags().Lookup(name)
		return f != nil && f.Changed
	}
	if changed("out-dir") {
		cfg.OutDir = flagOutDir
	}
	if changed("log-level") {
		cfg.Log.Level = strings.ToLower(flagLogLevel)
	}
	if changed("baseline") {
		cfg.Baseline.Compare = flagBaseline
	}
	if changed("save-baseline") {
		cfg.Baseline.Save = flagSaveBaseline
	}
	if changed("load-baseline") {
		cfg.Baseline.Load = flagLoadBaseline
	}
	if changed("format") {
		cfg.Report.Format = strings.ToLower(flagFormat)
	}
	if changed("show-intermediate") {
		cfg.Report.ShowIntermediate = flagShowIntermediate
	}
	if changed("parallelism") {
		cfg.Parallelism = flagParallelism
	}
	if changed("fail-fast") {
		cfg.Limits.FailFast = flagFailFast
	}
	if changed("callgrind-limits") {
		cfg.Limits.Callgrind = flagCallgrindLimits
	}
	if changed("cachegrind-limits") {
		cfg.Limits.Cachegrind = flagCachegrindLimits
	}
	if changed("dhat-limits") {
		cfg.Limits.Dhat = flagDhatLimits
	}
	if changed("error-limits") {
		cfg.Limits.Errors = flagErrorLimits
	}
	if changed("callgrind-metrics") {
		cfg.Report.CallgrindMetrics = flagCallgrindMetrics
	}
	if changed("summary-file") {
		cfg.Report.SummaryFile = flagSummaryFile
	}
	if changed("benchfmt-file") {
		cfg.Report.BenchfmtFile = flagBenchfmtFile
	}
	if changed("compare-by-id") {
		cfg.Report.CompareByID = flagCompareByID
	}
	if changed("no-flamegraph") && flagNoFlamegraph {
		cfg.Flamegraph.Enabled = false
	}
}

// newApp loads the configuration and sets up logging, tracing, metrics
// and, when withStore is set, the baseline store.
func newApp(cmd *cobra.Command, withStore bool) (*app, error) {
	cfg, settings, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	log := logging.New(logging.Config{
		Level:   settings.LogLevel,
		LogDir:  cfg.Log.Dir,
		Service: "grindbench",
		JSON:    cfg.Log.JSON,
		Output:  cmd.ErrOrStderr(),
	})
	a := &app{
		cfg:      cfg,
		settings: settings,
		log:      log,
		logger:   log.Slog(),
		sink:     telemetry.NewPrometheusSink(),
	}

	tcfg := telemetry.DefaultConfig()
	tcfg.ServiceVersion = version
	tcfg.TraceExporter = cfg.Telemetry.TraceExporter
	tcfg.Writer = cmd.ErrOrStderr()
	if a.shutdown, err = telemetry.Init(cmd.Context(), tcfg); err != nil {
		a.Close(cmd.Context())
		return nil, err
	}

	if withStore {
		if a.store, err = baseline.Open(cfg.Baseline.Backend, cfg.Baseline.Dir, a.logger); err != nil {
			a.Close(cmd.Context())
			return nil, fmt.Errorf("open baseline store: %w", err)
		}
	}
	a.logger.Debug("configuration loaded",
		slog.String("config", configPath),
		slog.String("out_dir", cfg.OutDir),
		slog.String("backend", cfg.Baseline.Backend),
	)
	return a, nil
}

// engine builds an engine over the app's store, or over an empty memory
// store when the app has none.
func (a *app) engine() *engine.Engine {
	store := a.store
	if store == nil {
		store = baseline.NewMemoryStore()
	}
	opts := engine.DefaultOptions()
	opts.ProjectRoot = a.cfg.ProjectRoot
	opts.Parallelism = a.cfg.Parallelism
	opts.Compare = a.cfg.Baseline.Compare
	opts.Save = a.cfg.Baseline.Save
	opts.Load = a.cfg.Baseline.Load
	opts.Limits = a.settings.Limits
	opts.Aggregate = aggregate.Options{ShowIntermediate: a.cfg.Report.ShowIntermediate}
	opts.SkipFailedUnits = a.cfg.Parser.SkipFailedUnits
	opts.CompareByID = a.cfg.Report.CompareByID
	opts.Flamegraph = engine.FlamegraphOptions{
		Enabled:           a.cfg.Flamegraph.Enabled,
		Kinds:             a.settings.FlamegraphKinds,
		Sentinel:          a.settings.Sentinel,
		ObjectPlaceholder: a.cfg.Flamegraph.ObjectPlaceholder,
		Pprof:             a.cfg.Flamegraph.Pprof,
	}
	opts.Logger = a.logger
	opts.Sink = a.sink
	return engine.New(store, opts)
}

// Close flushes telemetry and closes the store and the log file.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.shutdown != nil {
		errs = append(errs, a.shutdown(context.WithoutCancel(ctx)))
	}
	errs = append(errs, a.log.Close())
	return errors.Join(errs...)
}

// selectTargets returns the benchmarks named by args, or every benchmark
// below outDir when args is empty.
func selectTargets(outDir string, args []string) ([]engine.Target, error) {
	if len(args) == 0 {
		return engine.Discover(outDir)
	}
	targets := make([]engine.Target, 0, len(args))
	for _, arg := range args {
		id, err := parseIdentity(arg)
		if err != nil {
			return nil, err
		}
		t, err := engine.Lookup(outDir, id)
		if err != nil {
			return nil, err
		}
		targets = append(targets, t)
	}
	return targets, nil
}

// parseIdentity parses "file/group/function[.id]".
func parseIdentity(s string) (baseline.Identity, error) {
	parts := strings.Split(strings.Trim(s, "/"), "/")
	if len(parts) != 3 {
		return baseline.Identity{}, fmt.Errorf("%w: %q is not file/group/function[.id]", baseline.ErrInvalidName, s)
	}
	fn, caseID, _ := strings.Cut(parts[2], ".")
	id := baseline.Identity{File: parts[0], Group: parts[1], Function: fn, CaseID: caseID}
	if err := id.Validate(); err != nil {
		return baseline.Identity{}, err
	}
	return id, nil
}
