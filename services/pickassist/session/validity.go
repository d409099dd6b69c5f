// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/z-Vaughan/PickAssist/pkg/logging"
)

// State is the session freshness state.
type State int

const (
	// StateUnknown means no probe or refresh has run yet.
	StateUnknown State = iota
	// StateValid means the session was accepted and the last refresh is
	// inside the freshness window.
	StateValid
	// StateStale means the window lapsed, a probe failed, or a refresh failed.
	StateStale
)

// String returns the lower-case state name.
func (s State) String() string {
	switch s {
	case StateValid:
		return "valid"
	case StateStale:
		return "stale"
	default:
		return "unknown"
	}
}

// Refresh outcomes reported to ValidityConfig.Observer.
const (
	OutcomeProbeOK     = "probe_ok"
	OutcomeRefreshed   = "refreshed"
	OutcomeFailed      = "failed"
	OutcomeUnavailable = "unavailable"
)

// Probe reports whether the current session is accepted upstream.
type Probe interface {
	Check(ctx context.Context) (bool, error)
}

// Refresher obtains new credentials and installs them in the gateway.
//
// Refresh may take several seconds. It returns an error wrapping
// ErrCollaboratorUnavailable when it cannot run at all.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// ValidityConfig configures a Validity.
type ValidityConfig struct {
	// Window is how long after a refresh the session stays Valid without a
	// new probe. Default 1h.
	Window time.Duration

	// Clock defaults to time.Now.
	Clock func() time.Time

	// Observer, when set, receives one outcome per refresh procedure.
	Observer func(outcome string)
}

// Validity tracks session freshness and drives refresh.
//
// # Description
//
// EnsureValid is the only entry point fetches use. The fast path returns
// true while the last refresh is inside the window. A probe acceptance
// does not move that anchor; before the first refresh the anchor is the
// first acceptance. Otherwise callers join
// one in-flight refresh procedure: probe first, and only when the probe
// rejects the session, call the Refresher. Concurrent
// callers that find the session stale share that single procedure.
//
// # Thread Safety
//
// Safe for concurrent use.
type Validity struct {
	probe     Probe
	refresher Refresher
	logger    *logging.Logger
	window    time.Duration
	clock     func() time.Time
	observer  func(string)

	group singleflight.Group

	mu          sync.Mutex
	state       State
	lastRefresh time.Time
	lastErr     error
}

// NewValidity builds a Validity in StateUnknown.
func NewValidity(probe Probe, refresher Refresher, logger *logging.Logger, cfg ValidityConfig) *Validity {
	if cfg.Window <= 0 {
		cfg.Window = time.Hour
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Validity{
		probe:     probe,
		refresher: refresher,
		logger:    logger.With("component", "credential_validity"),
		window:    cfg.Window,
		clock:     cfg.Clock,
		observer:  cfg.Observer,
	}
}

// State returns the current state, reporting StateStale once the window
// has lapsed.
func (v *Validity) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.stateLocked()
}

func (v *Validity) stateLocked() State {
	if v.state == StateValid && v.clock().Sub(v.lastRefresh) >= v.window {
		return StateStale
	}
	return v.state
}

// CollaboratorDown reports whether the last refresh procedure failed
// because the credential collaborator could not run.
func (v *Validity) CollaboratorDown() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return errors.Is(v.lastErr, ErrCollaboratorUnavailable)
}

// Invalidate marks the session stale, for example after an upstream 401.
func (v *Validity) Invalidate() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.state == StateValid {
		v.state = StateStale
	}
}

// EnsureValid returns true when the session is usable.
//
// # Outputs
//
//   - bool: false when the refresh procedure failed or ctx ended first.
//     A caller whose ctx ends does not cancel the shared procedure.
func (v *Validity) EnsureValid(ctx context.Context) bool {
	if v.State() == StateValid {
		return true
	}

	ch := v.group.DoChan("refresh", func() (any, error) {
		return v.runRefresh(context.WithoutCancel(ctx)), nil
	})
	select {
	case res := <-ch:
		ok, _ := res.Val.(bool)
		return ok
	case <-ctx.Done():
		return false
	}
}

// runRefresh executes the probe/refresh procedure. Called only through the
// singleflight group.
func (v *Validity) runRefresh(ctx context.Context) bool {
	if v.State() == StateValid {
		return true
	}

	ok, err := v.probe.Check(ctx)
	if err == nil && ok {
		v.markValid(false)
		v.report(OutcomeProbeOK)
		v.logger.Debug("session probe accepted")
		return true
	}
	if err != nil {
		v.logger.Debug("session probe failed", "error", err)
	}

	v.logger.Info("refreshing credentials")
	start := v.clock()
	if err := v.refresher.Refresh(ctx); err != nil {
		v.markStale(err)
		outcome := OutcomeFailed
		if errors.Is(err, ErrCollaboratorUnavailable) {
			outcome = OutcomeUnavailable
		}
		v.report(outcome)
		v.logger.Warn("credential refresh failed", "error", err, "duration", v.clock().Sub(start))
		return false
	}

	v.markValid(true)
	v.report(OutcomeRefreshed)
	v.logger.Info("credentials refreshed", "duration", v.clock().Sub(start))
	return true
}

func (v *Validity) markValid(refreshed bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.state = StateValid
	if refreshed || v.lastRefresh.IsZero() {
		v.lastRefresh = v.clock()
	}
	v.lastErr = nil
}

func (v *Validity) markStale(err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.state = StateStale
	v.lastErr = err
}

func (v *Validity) report(outcome string) {
	if v.observer != nil {
		v.observer(outcome)
	}
}
