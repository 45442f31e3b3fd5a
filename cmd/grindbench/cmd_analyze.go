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
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/grindbench/pkg/ux"
	"github.com/AleutianAI/grindbench/services/bench/engine"
	"github.com/AleutianAI/grindbench/services/bench/report"
)

func runAnalyze(cmd *cobra.Command, args []string) (err error) {
	a, err := newApp(cmd, true)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(cmd.Context()); err == nil {
			err = cerr
		}
	}()
	return a.analyze(cmd.Context(), a.engine(), args, cmd.OutOrStdout())
}

// analyze runs one analysis and writes every configured output. The
// returned error is the run's verdict.
func (a *app) analyze(ctx context.Context, eng *engine.Engine, args []string, out io.Writer) error {
	targets, err := selectTargets(a.cfg.OutDir, args)
	if err != nil {
		return err
	}
	res, err := eng.Run(ctx, targets)
	if err != nil {
		return err
	}

	if err := a.writeReport(out, res); err != nil {
		return err
	}
	if err := a.writeExports(res); err != nil {
		return err
	}
	return res.Err()
}

func (a *app) writeReport(out io.Writer, res *engine.Result) error {
	if a.settings.Format != report.FormatDefault {
		for _, b := range res.Benchmarks {
			if err := report.WriteJSON(out, report.NewSummary(b), a.settings.Format); err != nil {
				return fmt.Errorf("write summary: %w", err)
			}
		}
		return nil
	}

	term := report.NewTerminal(out, report.Options{
		ShowIntermediate: a.cfg.Report.ShowIntermediate,
		Grouping:         a.cfg.Report.Grouping,
		CallgrindKinds:   a.settings.CallgrindKinds,
	})
	for _, b := range res.Benchmarks {
		term.Write(b)
	}
	report.WriteRunSummary(out, res.Benchmarks)
	if res.Stopped {
		ux.Warning(out, fmt.Sprintf("fail-fast: stopped after a regression with %d benchmarks analyzed",
			len(res.Benchmarks)))
	}
	return nil
}

// writeExports writes the summary, benchfmt and prometheus files.
func (a *app) writeExports(res *engine.Result) error {
	if path := a.cfg.Report.SummaryFile; path != "" {
		if err := report.WriteSummaryFile(path, report.NewRunSummary(res.Benchmarks, time.Now())); err != nil {
			return err
		}
		a.logger.Info("summary written", slog.String("path", path))
	}
	if path := a.cfg.Report.BenchfmtFile; path != "" {
		if err := writeBenchfmt(path, res); err != nil {
			return err
		}
		a.logger.Info("benchfmt written", slog.String("path", path))
	}
	if path := a.cfg.Telemetry.PrometheusTextfile; path != "" {
		if err := a.sink.WriteTextfile(path); err != nil {
			return fmt.Errorf("write prometheus textfile: %w", err)
		}
		a.logger.Info("prometheus textfile written", slog.String("path", path))
	}
	return nil
}

func writeBenchfmt(path string, res *engine.Result) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create benchfmt directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create benchfmt file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	if err := report.WriteBenchfmt(f, res.Records); err != nil {
		return fmt.Errorf("write benchfmt file: %w", err)
	}
	return nil
}
