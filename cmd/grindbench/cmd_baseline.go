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
	"encoding/json"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/grindbench/pkg/ux"
	"github.com/AleutianAI/grindbench/services/bench/baseline"
)

func runBaselineList(cmd *cobra.Command, args []string) (err error) {
	a, err := newApp(cmd, true)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(cmd.Context()); err == nil {
			err = cerr
		}
	}()

	ctx := cmd.Context()
	keys, err := a.store.List(ctx)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(keys) == 0 {
		ux.Info(out, "no baselines stored in "+a.cfg.Baseline.Dir)
		return nil
	}

	machine := ux.GetLevel() == ux.LevelMachine
	for _, k := range keys {
		if machine {
			fmt.Fprintln(out, k.ID())
			continue
		}
		r, err := a.store.Load(ctx, k)
		if err != nil {
			ux.Warning(out, fmt.Sprintf("%s: %v", k.ID(), err))
			continue
		}
		fmt.Fprintf(out, "%s %s  %s\n", ux.IconBullet.Render(), k.ID(),
			ux.Paint(ux.Styles.Muted, "updated "+humanize.Time(r.UpdatedAt)))
	}
	if !machine {
		fmt.Fprintf(out, "\n%s baselines\n", humanize.Comma(int64(len(keys))))
	}
	return nil
}

func runBaselineShow(cmd *cobra.Command, args []string) (err error) {
	k, err := baseline.ParseID(args[0])
	if err != nil {
		return err
	}
	a, err := newApp(cmd, true)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(cmd.Context()); err == nil {
			err = cerr
		}
	}()

	r, err := a.store.Load(cmd.Context(), k)
	if err != nil {
		return fmt.Errorf("%s: %w", k.ID(), err)
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

func runBaselineDelete(cmd *cobra.Command, args []string) (err error) {
	keys := make([]baseline.Key, 0, len(args))
	for _, arg := range args {
		k, err := baseline.ParseID(arg)
		if err != nil {
			return err
		}
		keys = append(keys, k)
	}
	a, err := newApp(cmd, true)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(cmd.Context()); err == nil {
			err = cerr
		}
	}()

	for _, k := range keys {
		if err := a.store.Delete(cmd.Context(), k); err != nil {
			return fmt.Errorf("%s: %w", k.ID(), err)
		}
		ux.Success(cmd.OutOrStdout(), "deleted "+k.ID())
	}
	return nil
}
