// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package site

import (
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"

	"github.com/z-Vaughan/PickAssist/pkg/logging"
)

// Watcher keeps the latest valid catalog from a file and reloads it when
// the file changes.
//
// The directory is watched rather than the file so editors that save by
// rename are picked up. A reload that fails validation keeps the previous
// catalog.
type Watcher struct {
	path    string
	logger  *logging.Logger
	current atomic.Pointer[Catalog]
	watcher *fsnotify.Watcher
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewWatcher loads path and starts watching it.
//
// # Outputs
//
//   - *Watcher: Current() returns the loaded catalog until a reload succeeds.
//   - error: initial load or watcher setup failed.
func NewWatcher(path string, logger *logging.Logger) (*Watcher, error) {
	c, err := LoadCatalog(path)
	if err != nil {
		return nil, err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating catalog watcher: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		fw.Close()
		return nil, fmt.Errorf("resolve catalog path: %w", err)
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	w := &Watcher{
		path:    abs,
		logger:  logger.With("component", "catalog_watcher"),
		watcher: fw,
		done:    make(chan struct{}),
	}
	w.current.Store(c)

	w.wg.Add(1)
	go w.watchLoop()
	return w, nil
}

// Current returns the active catalog. Never nil.
func (w *Watcher) Current() *Catalog {
	return w.current.Load()
}

// Close stops watching. Safe to call once.
func (w *Watcher) Close() error {
	close(w.done)
	err := w.watcher.Close()
	w.wg.Wait()
	return err
}

func (w *Watcher) watchLoop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("catalog watcher error", "error", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return
	}
	if abs, _ := filepath.Abs(event.Name); abs != w.path {
		return
	}
	w.reload()
}

func (w *Watcher) reload() {
	c, err := LoadCatalog(w.path)
	if err != nil {
		w.logger.Warn("catalog reload rejected, keeping previous", "path", w.path, "error", err)
		return
	}
	w.current.Store(c)
	w.logger.Info("catalog reloaded", "path", w.path, "areas", len(c.Areas))
}
