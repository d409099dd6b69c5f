// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/z-Vaughan/PickAssist/pkg/logging"
	"github.com/z-Vaughan/PickAssist/services/pickassist/store"
)

// =============================================================================
// Cycle Scheduler
// =============================================================================

// Runner runs one cycle. *Pipeline implements it.
type Runner interface {
	RunCycle(ctx context.Context) (*store.Snapshot, error)
}

// Scheduler runs cycles at a fixed interval.
//
// # Description
//
// Runs one cycle immediately on Start and then on every tick. A slow cycle
// delays the next tick instead of overlapping it. Cycle errors are logged
// and never stop the loop.
//
// # Thread Safety
//
// All public methods are safe for concurrent use.
type Scheduler struct {
	runner   Runner
	interval time.Duration
	logger   *logging.Logger

	mu      sync.Mutex
	running bool
	done    chan struct{}
	stopped chan struct{}
}

// NewScheduler creates a scheduler. interval must be positive.
func NewScheduler(runner Runner, interval time.Duration, logger *logging.Logger) (*Scheduler, error) {
	if runner == nil {
		return nil, fmt.Errorf("runner must not be nil")
	}
	if interval <= 0 {
		return nil, fmt.Errorf("interval must be positive, got %s", interval)
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Scheduler{runner: runner, interval: interval, logger: logger.With("component", "scheduler")}, nil
}

// Start begins the loop. It returns an error if already running. The loop
// ends on Stop or when ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("scheduler is already running")
	}
	s.running = true
	s.done = make(chan struct{})
	s.stopped = make(chan struct{})

	s.logger.Info("cycle scheduler starting", "interval", s.interval.String())
	go s.runLoop(ctx, s.done, s.stopped)
	return nil
}

// Stop signals the loop and waits for the current cycle to finish. Safe to
// call multiple times.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.done)
	stopped := s.stopped
	s.mu.Unlock()

	<-stopped
	s.logger.Info("cycle scheduler stopped")
	return nil
}

// Running reports whether the loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// RunNow runs a cycle immediately without changing the schedule.
func (s *Scheduler) RunNow(ctx context.Context) (*store.Snapshot, error) {
	return s.runner.RunCycle(ctx)
}

func (s *Scheduler) runLoop(ctx context.Context, done <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.execute(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("cycle scheduler stopped (context cancelled)")
			s.mu.Lock()
			s.running = false
			s.mu.Unlock()
			return
		case <-done:
			return
		case <-ticker.C:
			s.execute(ctx)
		}
	}
}

func (s *Scheduler) execute(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	// RunCycle logs its own outcome.
	if _, err := s.runner.RunCycle(ctx); err != nil {
		s.logger.Debug("scheduled cycle returned error", "error", err)
	}
}
