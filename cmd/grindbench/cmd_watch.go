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
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/grindbench/pkg/ux"
	"github.com/AleutianAI/grindbench/services/bench/engine"
	"github.com/AleutianAI/grindbench/services/bench/regression"
)

// runWatch analyzes the benchmarks whose output changed until
// interrupted. Regressions are reported but do not stop the watch.
func runWatch(cmd *cobra.Command, args []string) (err error) {
	a, err := newApp(cmd, true)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(cmd.Context()); err == nil {
			err = cerr
		}
	}()

	w, err := newOutputWatcher(a.cfg.OutDir, flagDebounce, a.logger)
	if err != nil {
		return fmt.Errorf("watch %s: %w", a.cfg.OutDir, err)
	}
	defer w.Close()

	out := cmd.OutOrStdout()
	eng := a.engine()
	ux.Info(out, fmt.Sprintf("watching %s for new benchmark output", a.cfg.OutDir))

	return w.Run(cmd.Context(), func(ctx context.Context, dirs []string) {
		args, err := a.dirArgs(dirs)
		if err != nil {
			a.logger.Warn("ignoring changed directories", slog.String("error", err.Error()))
		}
		if len(args) == 0 {
			return
		}
		err = a.analyze(ctx, eng, args, out)
		switch {
		case err == nil:
		case errors.Is(err, regression.ErrRegressed), errors.Is(err, engine.ErrBenchmarkFailed):
			ux.Warning(out, err.Error())
		default:
			ux.Error(out, err.Error())
		}
	})
}

// dirArgs turns benchmark directories into "file/group/function[.id]"
// arguments. Directories outside the benchmark layout are skipped and
// reported in the joined error.
func (a *app) dirArgs(dirs []string) ([]string, error) {
	var (
		args []string
		errs []error
	)
	for _, dir := range dirs {
		rel, err := filepath.Rel(a.cfg.OutDir, dir)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		rel = filepath.ToSlash(rel)
		if _, err := parseIdentity(rel); err != nil {
			errs = append(errs, err)
			continue
		}
		args = append(args, rel)
	}
	return args, errors.Join(errs...)
}
