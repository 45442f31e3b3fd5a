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
	"errors"
	"fmt"
	"slices"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/grindbench/pkg/ux"
	"github.com/AleutianAI/grindbench/services/bench/engine"
	"github.com/AleutianAI/grindbench/services/bench/metrics"
)

func runFlamegraph(cmd *cobra.Command, args []string) (err error) {
	a, err := newApp(cmd, false)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(cmd.Context()); err == nil {
			err = cerr
		}
	}()

	targets, err := selectTargets(a.cfg.OutDir, args)
	if err != nil {
		return err
	}
	eng := a.engine()
	out := cmd.OutOrStdout()

	var errs []error
	for _, t := range targets {
		if !slices.Contains(t.Tools, metrics.ToolCallgrind) {
			continue
		}
		paths, err := eng.Flamegraph(cmd.Context(), t)
		if err != nil {
			ux.Error(out, fmt.Sprintf("%s: %v", t.Identity, err))
			errs = append(errs, fmt.Errorf("%s: %w", t.Identity, err))
			continue
		}
		for _, p := range paths {
			ux.Success(out, p)
		}
	}
	return errors.Join(errs...)
}

func runRotate(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	targets, err := selectTargets(cfg.OutDir, args)
	if err != nil {
		return err
	}
	if err := engine.Rotate(targets); err != nil {
		return err
	}
	rotated := lo.CountBy(targets, func(t engine.Target) bool { return len(t.Tools) > 0 })
	ux.Success(cmd.OutOrStdout(), fmt.Sprintf("rotated the output of %d benchmarks", rotated))
	return nil
}
