// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package pipeline runs reconciliation cycles.
//
// A cycle fetches every source concurrently, normalizes and aggregates each
// result as it arrives, waits for all of them, merges, and swaps the result
// into the store. Source and join failures degrade the result; only a total
// loss of the credential collaborator fails a cycle.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/z-Vaughan/PickAssist/pkg/logging"
	"github.com/z-Vaughan/PickAssist/services/pickassist/aggregate"
	"github.com/z-Vaughan/PickAssist/services/pickassist/config"
	"github.com/z-Vaughan/PickAssist/services/pickassist/fetch"
	"github.com/z-Vaughan/PickAssist/services/pickassist/normalize"
	"github.com/z-Vaughan/PickAssist/services/pickassist/observability"
	"github.com/z-Vaughan/PickAssist/services/pickassist/reconcile"
	"github.com/z-Vaughan/PickAssist/services/pickassist/shift"
	"github.com/z-Vaughan/PickAssist/services/pickassist/site"
	"github.com/z-Vaughan/PickAssist/services/pickassist/sources"
	"github.com/z-Vaughan/PickAssist/services/pickassist/store"
	"github.com/z-Vaughan/PickAssist/services/pickassist/telemetry"
)

const tracerName = "pickassist.pipeline"

// ErrSessionUnavailable means every auth-sensitive source was refused a
// session and the credential collaborator itself could not run.
var ErrSessionUnavailable = errors.New("credential collaborator unavailable")

// Cycle results recorded in metrics.
const (
	resultOK                 = "ok"
	resultTimeout            = "timeout"
	resultSessionUnavailable = "session_unavailable"
	resultError              = "error"
)

// CycleContext is the read-only state of one cycle.
type CycleContext struct {
	ID      string
	Window  shift.Window
	Catalog *site.Catalog
}

// Streamer dispatches sources. *fetch.Fetcher implements it.
type Streamer interface {
	Stream(ctx context.Context, sources []fetch.Source) <-chan fetch.Result
}

// WindowSource yields the shift window for a new cycle.
// *shift.Calculator implements it.
type WindowSource interface {
	Current() shift.Window
}

// CatalogSource yields the pick-area catalog for a new cycle.
// *site.Watcher implements it.
type CatalogSource interface {
	Current() *site.Catalog
}

// StaticCatalog serves a fixed catalog.
type StaticCatalog struct{ Catalog *site.Catalog }

// Current implements CatalogSource.
func (s StaticCatalog) Current() *site.Catalog { return s.Catalog }

// CollaboratorStatus reports whether the credential collaborator is down.
// *session.Validity implements it.
type CollaboratorStatus interface {
	CollaboratorDown() bool
}

// Deps are the collaborators of a Pipeline.
type Deps struct {
	Fetcher      Streamer
	Windows      WindowSource
	Catalogs     CatalogSource
	Credentials  CollaboratorStatus
	Store        *store.Store
	Endpoints    config.EndpointsConfig
	CycleTimeout time.Duration
	Logger       *logging.Logger
	Metrics      *observability.Metrics

	// NewID generates cycle IDs. Default uuid.NewString.
	NewID func() string
}

// Pipeline runs cycles. Cycles never overlap.
type Pipeline struct {
	deps   Deps
	logger *logging.Logger

	mu sync.Mutex
}

// New builds a Pipeline.
func New(deps Deps) (*Pipeline, error) {
	if deps.Fetcher == nil || deps.Windows == nil || deps.Store == nil {
		return nil, errors.New("pipeline requires a fetcher, a window source and a store")
	}
	if deps.Catalogs == nil {
		deps.Catalogs = StaticCatalog{Catalog: &site.Catalog{}}
	}
	if deps.NewID == nil {
		deps.NewID = uuid.NewString
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	return &Pipeline{deps: deps, logger: logger.With("component", "pipeline")}, nil
}

// Store returns the store cycles write to.
func (p *Pipeline) Store() *store.Store { return p.deps.Store }

// RunCycle runs one full cycle.
//
// # Description
//
// Builds the CycleContext, dispatches every source, and hands each result
// to its own normalize+aggregate goroutine as it completes. Once every
// dispatched fetch has settled, the per-source results are merged and the
// snapshot is stored. Persister failures are logged only.
//
// # Outputs
//
//   - *store.Snapshot: the stored snapshot.
//   - error: ErrSessionUnavailable, or the context error when the cycle
//     deadline expired. Nothing is stored in either case.
func (p *Pipeline) RunCycle(ctx context.Context) (*store.Snapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	started := time.Now()
	cc := CycleContext{
		ID:      p.deps.NewID(),
		Window:  p.deps.Windows.Current(),
		Catalog: p.deps.Catalogs.Current(),
	}
	if cc.Catalog == nil {
		cc.Catalog = &site.Catalog{}
	}

	ctx, span := telemetry.StartSpan(ctx, tracerName, "pipeline.RunCycle")
	defer span.End()
	span.SetAttributes(
		attribute.String("cycle.id", cc.ID),
		attribute.String("site", cc.Window.Site),
	)

	if p.deps.CycleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.deps.CycleTimeout)
		defer cancel()
	}

	snap, err := p.run(ctx, cc)
	elapsed := time.Since(started)
	if err != nil {
		result := resultError
		switch {
		case errors.Is(err, ErrSessionUnavailable):
			result = resultSessionUnavailable
		case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
			result = resultTimeout
		}
		p.deps.Metrics.RecordCycle(result, elapsed)
		telemetry.RecordError(span, err)
		p.logger.Error("cycle failed",
			"cycle_id", cc.ID,
			"trace_id", telemetry.TraceID(ctx),
			"result", result,
			"duration_ms", elapsed.Milliseconds(),
			"error", err)
		return nil, err
	}

	p.deps.Metrics.RecordCycle(resultOK, elapsed)
	p.deps.Metrics.RecordBranch(snap.Branch.String())
	span.SetAttributes(attribute.String("merge.branch", snap.Branch.String()))
	telemetry.SetSpanOK(span)
	p.logger.Info("cycle completed",
		"cycle_id", cc.ID,
		"trace_id", telemetry.TraceID(ctx),
		"branch", snap.Branch.String(),
		"degraded", snap.Degraded,
		"missing", snap.Missing.String(),
		"duration_ms", elapsed.Milliseconds())
	return snap, nil
}

func (p *Pipeline) run(ctx context.Context, cc CycleContext) (*store.Snapshot, error) {
	srcs := sources.Build(cc.Window, p.deps.Endpoints)
	authSensitive := make(map[string]bool, len(srcs))
	for _, s := range srcs {
		authSensitive[s.Name] = s.AuthSensitive
	}

	var (
		mu        sync.Mutex
		collected store.Sources
		authTotal int
		authDown  int
		wg        sync.WaitGroup
	)
	for res := range p.deps.Fetcher.Stream(ctx, srcs) {
		if authSensitive[res.Source] {
			authTotal++
			if errors.Is(res.Err, fetch.ErrAuthUnavailable) {
				authDown++
			}
		}
		wg.Add(1)
		go func(res fetch.Result) {
			defer wg.Done()
			apply, rows := p.settle(cc, res)
			mu.Lock()
			apply(&collected)
			mu.Unlock()
			p.deps.Metrics.RecordSource(res.Source, rows)
		}(res)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("cycle %s discarded: %w", cc.ID, err)
	}
	if authTotal > 0 && authDown == authTotal && p.deps.Credentials != nil && p.deps.Credentials.CollaboratorDown() {
		return nil, fmt.Errorf("cycle %s: %w", cc.ID, ErrSessionUnavailable)
	}

	merged := reconcile.Merge(collected.Inputs(), cc.Window.ElapsedHours())
	for _, err := range merged.Errors {
		p.logger.Warn("merge degraded",
			"cycle_id", cc.ID,
			"selected", merged.Selected.String(),
			"error", err)
	}
	snap := store.NewSnapshot(cc.ID, cc.Window, collected, merged)
	// Persister errors are already logged by the store.
	_ = p.deps.Store.Put(ctx, snap)
	return snap, nil
}

// settle normalizes and aggregates one result. A panic degrades the source
// to its empty sentinel.
func (p *Pipeline) settle(cc CycleContext, res fetch.Result) (apply func(*store.Sources), rows int) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("source processing panicked",
				"cycle_id", cc.ID,
				"source", res.Source,
				"panic", fmt.Sprint(r))
			p.deps.Metrics.RecordNormalizeFailure(res.Source)
			apply, rows = aggregateSource(cc, res.Source, nil)
		}
	}()

	if !res.OK() {
		p.logger.Warn("source unavailable",
			"cycle_id", cc.ID,
			"source", res.Source,
			"attempts", res.Attempts,
			"error", res.Err)
		return aggregateSource(cc, res.Source, nil)
	}

	body := res.Response.Body
	apply, rows, err := normalizeSource(cc, res.Source, body)
	if err != nil {
		p.logger.Warn("source normalization failed",
			"cycle_id", cc.ID,
			"source", res.Source,
			"bytes", len(body),
			"error", err)
		p.deps.Metrics.RecordNormalizeFailure(res.Source)
		return aggregateSource(cc, res.Source, nil)
	}
	return apply, rows
}

// records holds one source's normalized rows. Exactly one field is used.
type records struct {
	workforce []normalize.WorkforceRecord
	process   []normalize.ProcessRecord
	lpi       []normalize.LPIRecord
	rodeo     []normalize.RodeoRecord
}

func normalizeSource(cc CycleContext, name string, body []byte) (func(*store.Sources), int, error) {
	var (
		recs records
		err  error
	)
	switch name {
	case sources.Workforce:
		recs.workforce, err = normalize.Workforce(body)
	case sources.Process:
		recs.process, err = normalize.Process(body)
	case sources.LPI, sources.LPIHist:
		recs.lpi, err = normalize.LPI(body)
	case sources.Rodeo:
		recs.rodeo, err = normalize.Rodeo(body, cc.Catalog, cc.Window.Location)
	default:
		return func(*store.Sources) {}, 0, fmt.Errorf("unknown source %q", name)
	}
	if err != nil {
		return nil, 0, err
	}
	apply, rows := aggregateSource(cc, name, &recs)
	return apply, rows, nil
}

// aggregateSource builds the per-source result. nil recs gives the empty
// sentinel.
func aggregateSource(cc CycleContext, name string, recs *records) (func(*store.Sources), int) {
	if recs == nil {
		recs = &records{}
	}
	switch name {
	case sources.Workforce:
		r := aggregate.Workforce(recs.workforce)
		return func(s *store.Sources) { s.Workforce = r }, r.Full.Len()
	case sources.Process:
		r := aggregate.Process(recs.process)
		return func(s *store.Sources) { s.Process = r }, r.Full.Len()
	case sources.LPI:
		r := aggregate.LPI(recs.lpi)
		return func(s *store.Sources) { s.LPI = r }, r.Full.Len()
	case sources.LPIHist:
		r := aggregate.LPIHistorical(recs.lpi)
		return func(s *store.Sources) { s.LPIHist = r }, r.Full.Len()
	case sources.Rodeo:
		r := aggregate.Rodeo(recs.rodeo, cc.Window.Now, cc.Window.Location, cc.Window.RemainingHours())
		return func(s *store.Sources) { s.Rodeo = r }, r.Full.Len()
	default:
		return func(*store.Sources) {}, 0
	}
}
