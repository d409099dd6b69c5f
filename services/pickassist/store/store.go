// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package store holds the latest cycle result and fans it out to optional
// persisters.
//
// The in-memory Store is the only state that survives between cycles
// besides session freshness. Persisters (badger, redis, influx) receive a
// copy after every successful cycle; a persister failure is logged and
// never fails the cycle.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/z-Vaughan/PickAssist/pkg/logging"
	"github.com/z-Vaughan/PickAssist/services/pickassist/aggregate"
	"github.com/z-Vaughan/PickAssist/services/pickassist/reconcile"
	"github.com/z-Vaughan/PickAssist/services/pickassist/shift"
	"github.com/z-Vaughan/PickAssist/services/pickassist/sources"
	"github.com/z-Vaughan/PickAssist/services/pickassist/table"
)

// ErrNoSnapshot is returned when no cycle has completed yet.
var ErrNoSnapshot = errors.New("no snapshot available")

// =============================================================================
// Snapshot
// =============================================================================

// Shift is the JSON form of a shift.Window.
type Shift struct {
	Site           string    `json:"site"`
	Timezone       string    `json:"timezone"`
	Start          time.Time `json:"start"`
	End            time.Time `json:"end"`
	Now            time.Time `json:"now"`
	ElapsedHours   float64   `json:"elapsed_hours"`
	RemainingHours float64   `json:"remaining_hours"`
	Progress       float64   `json:"progress_percent"`
	Elapsed        string    `json:"elapsed"`
	Remaining      string    `json:"remaining"`
}

// ShiftOf converts a window for publishing.
func ShiftOf(w shift.Window) Shift {
	tz := ""
	if w.Location != nil {
		tz = w.Location.String()
	}
	return Shift{
		Site:           w.Site,
		Timezone:       tz,
		Start:          w.Start,
		End:            w.End,
		Now:            w.Now,
		ElapsedHours:   table.Round2(w.ElapsedHours()),
		RemainingHours: table.Round2(w.RemainingHours()),
		Progress:       w.Progress(),
		Elapsed:        shift.FormatDuration(w.Elapsed()),
		Remaining:      shift.FormatDuration(w.Remaining()),
	}
}

// Sources holds every per-source result of a cycle. A nil field means the
// source failed to fetch or normalize.
type Sources struct {
	Workforce *aggregate.WorkforceResult `json:"Workforce"`
	Process   *aggregate.ProcessResult   `json:"Process"`
	LPI       *aggregate.LPIResult       `json:"LPI"`
	LPIHist   *aggregate.LPIHistResult   `json:"LPI(Hist)"`
	Rodeo     *aggregate.RodeoResult     `json:"Rodeo"`
}

// Get returns the result for a source name. ok is false for unknown names
// and for sources without a result.
func (s Sources) Get(name string) (any, bool) {
	switch name {
	case sources.Workforce:
		return s.Workforce, s.Workforce != nil
	case sources.Process:
		return s.Process, s.Process != nil
	case sources.LPI:
		return s.LPI, s.LPI != nil
	case sources.LPIHist:
		return s.LPIHist, s.LPIHist != nil
	case sources.Rodeo:
		return s.Rodeo, s.Rodeo != nil
	default:
		return nil, false
	}
}

// Inputs converts the sources for the reconciler.
func (s Sources) Inputs() reconcile.Inputs {
	return reconcile.Inputs{
		Workforce: s.Workforce,
		Process:   s.Process,
		LPI:       s.LPI,
		LPIHist:   s.LPIHist,
		Rodeo:     s.Rodeo,
	}
}

// Snapshot is one completed cycle. It must not be modified after Put.
type Snapshot struct {
	CycleID      string               `json:"cycle_id"`
	GeneratedAt  time.Time            `json:"generated_at"`
	Shift        Shift                `json:"shift"`
	Branch       reconcile.Branch     `json:"branch"`
	Degraded     bool                 `json:"degraded"`
	Missing      reconcile.MissingSet `json:"missing"`
	Errors       []string             `json:"errors,omitempty"`
	Sources      Sources              `json:"sources"`
	CombinedData reconcile.MergedView `json:"combined_data"`
}

// NewSnapshot assembles a snapshot from a merge result.
func NewSnapshot(cycleID string, w shift.Window, src Sources, res reconcile.Result) *Snapshot {
	snap := &Snapshot{
		CycleID:      cycleID,
		GeneratedAt:  w.Now,
		Shift:        ShiftOf(w),
		Branch:       res.Branch,
		Degraded:     res.Degraded(),
		Missing:      res.Missing,
		Sources:      src,
		CombinedData: res.View,
	}
	for _, err := range res.Errors {
		snap.Errors = append(snap.Errors, err.Error())
	}
	return snap
}

// =============================================================================
// Store
// =============================================================================

// Persister receives every stored snapshot.
type Persister interface {
	Name() string
	Persist(ctx context.Context, snap *Snapshot) error
}

// Store holds the latest snapshot.
//
// Thread Safety: Safe for concurrent use. Readers never block writers.
type Store struct {
	latest atomic.Pointer[Snapshot]
	warm   atomic.Pointer[json.RawMessage]

	mu         sync.Mutex
	persisters []Persister
	logger     *logging.Logger
}

// New creates an empty store.
func New(logger *logging.Logger, persisters ...Persister) *Store {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Store{persisters: persisters, logger: logger}
}

// AddPersister registers a persister for later Puts.
func (s *Store) AddPersister(p Persister) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.persisters = append(s.persisters, p)
}

// Put replaces the latest snapshot and runs the persisters.
//
// # Description
//
// The swap is atomic; readers see either the previous or the new
// snapshot. Persisters run after the swap, sequentially, and their errors
// are logged and returned joined. The in-memory swap happens regardless.
func (s *Store) Put(ctx context.Context, snap *Snapshot) error {
	if snap == nil {
		return errors.New("nil snapshot")
	}
	s.latest.Store(snap)

	s.mu.Lock()
	persisters := append([]Persister(nil), s.persisters...)
	s.mu.Unlock()

	var errs []error
	for _, p := range persisters {
		if err := p.Persist(ctx, snap); err != nil {
			s.logger.Warn("snapshot persist failed",
				"persister", p.Name(),
				"cycle_id", snap.CycleID,
				"error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Latest returns the latest snapshot, or nil before the first Put.
func (s *Store) Latest() *Snapshot {
	return s.latest.Load()
}

// Restore seeds the store with a previously persisted snapshot document.
// It is served by LatestJSON until the first Put.
func (s *Store) Restore(doc []byte) {
	if len(doc) == 0 {
		return
	}
	raw := json.RawMessage(append([]byte(nil), doc...))
	s.warm.Store(&raw)
}

// LatestJSON encodes the latest snapshot. Before the first Put it returns
// the restored document, if any.
func (s *Store) LatestJSON() ([]byte, error) {
	if snap := s.latest.Load(); snap != nil {
		return json.Marshal(snap)
	}
	if raw := s.warm.Load(); raw != nil {
		return *raw, nil
	}
	return nil, ErrNoSnapshot
}
