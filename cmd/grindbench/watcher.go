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
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/samber/lo"

	"github.com/AleutianAI/grindbench/services/bench/outpath"
)

const defaultDebounce = 500 * time.Millisecond

// outputWatcher reports benchmark directories whose current-run tool
// output changed, batched over a debounce window.
//
// Only files following the output naming convention without a baseline
// suffix count. The files grindbench writes itself (flamegraphs,
// summaries, ".old" and ".base@" copies) never trigger a batch.
type outputWatcher struct {
	root     string
	debounce time.Duration
	watcher  *fsnotify.Watcher
	logger   *slog.Logger
}

func newOutputWatcher(root string, debounce time.Duration, logger *slog.Logger) (*outputWatcher, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &outputWatcher{root: root, debounce: debounce, watcher: fw, logger: logger}
	if err := w.addRecursive(root); err != nil {
		fw.Close()
		return nil, err
	}
	return w, nil
}

// addRecursive adds a directory and all subdirectories to the watch list.
func (w *outputWatcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		return w.watcher.Add(path)
	})
}

// relevant reports whether path is current-run tool output.
func relevant(path string) bool {
	fn, err := outpath.ParseFileName(filepath.Base(path))
	return err == nil && fn.Baseline == ""
}

// Run blocks until ctx is done, calling handle with the sorted, unique
// directories of every batch.
func (w *outputWatcher) Run(ctx context.Context, handle func(ctx context.Context, dirs []string)) error {
	var (
		batch  []string
		timer  *time.Timer
		timerC <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addRecursive(event.Name); err != nil {
						w.logger.Warn("could not watch directory",
							slog.String("path", event.Name),
							slog.String("error", err.Error()),
						)
					}
					continue
				}
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if !relevant(event.Name) {
				continue
			}
			w.logger.Debug("output changed", slog.String("path", event.Name), slog.String("op", event.Op.String()))
			batch = append(batch, filepath.Dir(event.Name))

			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.debounce)
			}

		case <-timerC:
			dirs := lo.Uniq(batch)
			slices.Sort(dirs)
			batch = batch[:0]
			timer, timerC = nil, nil
			handle(ctx, dirs)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("file watcher error", slog.String("error", err.Error()))
		}
	}
}

// Close stops watching.
func (w *outputWatcher) Close() error {
	return w.watcher.Close()
}
