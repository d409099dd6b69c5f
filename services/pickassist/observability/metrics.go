// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for the reconciliation
// pipeline.
//
// # Overview
//
// Metrics include:
//   - Fetch attempt counters and latency per source
//   - Source availability and row gauges per cycle
//   - Credential refresh outcomes
//   - Cycle duration, result, and selected merge branch
//
// # Integration
//
// Metrics are exposed on the API's /metrics endpoint.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
// Every Record method is a no-op on a nil *Metrics.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Metric Definitions
// =============================================================================

const metricsNamespace = "pickassist"

const (
	fetchSubsystem    = "fetch"
	pipelineSubsystem = "pipeline"
	sessionSubsystem  = "session"
)

// Metrics holds all Prometheus metrics for the pipeline.
//
// # Description
//
// Build one per process with NewMetrics and hand it to the fetcher, the
// credential validity tracker, and the pipeline.
type Metrics struct {
	FetchAttemptsTotal     *prometheus.CounterVec
	FetchDurationSeconds   *prometheus.HistogramVec
	SourceAvailable        *prometheus.GaugeVec
	SourceRows             *prometheus.GaugeVec
	NormalizeFailuresTotal *prometheus.CounterVec
	RefreshTotal           *prometheus.CounterVec
	CyclesTotal            *prometheus.CounterVec
	CycleDurationSeconds   *prometheus.HistogramVec
	MergeBranchTotal       *prometheus.CounterVec
	LastCycleTimestamp     prometheus.Gauge
}

// NewMetrics registers every metric with reg.
//
// # Inputs
//
//   - reg: registry to register with. Tests pass prometheus.NewRegistry();
//     production passes prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		FetchAttemptsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: fetchSubsystem,
				Name:      "attempts_total",
				Help:      "Fetch attempts by source and outcome",
			},
			[]string{"source", "outcome"},
		),
		FetchDurationSeconds: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: fetchSubsystem,
				Name:      "duration_seconds",
				Help:      "Wall time per source fetch including retries",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"source", "result"},
		),
		SourceAvailable: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "source_available",
				Help:      "1 when the source produced rows in the last cycle",
			},
			[]string{"source"},
		),
		SourceRows: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "source_rows",
				Help:      "Normalized row count per source in the last cycle",
			},
			[]string{"source"},
		),
		NormalizeFailuresTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "normalize_failures_total",
				Help:      "Sources that degraded to their empty form during parsing",
			},
			[]string{"source"},
		),
		RefreshTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: sessionSubsystem,
				Name:      "refresh_total",
				Help:      "Credential refresh procedures by outcome",
			},
			[]string{"outcome"},
		),
		CyclesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "cycles_total",
				Help:      "Completed cycles by result",
			},
			[]string{"result"},
		),
		CycleDurationSeconds: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "cycle_duration_seconds",
				Help:      "Cycle wall time from dispatch to store",
				Buckets:   []float64{1, 2.5, 5, 10, 20, 30, 60, 120, 300},
			},
			[]string{"result"},
		),
		MergeBranchTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "merge_branch_total",
				Help:      "Merge branch selected per cycle",
			},
			[]string{"branch"},
		),
		LastCycleTimestamp: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "last_success_timestamp_seconds",
				Help:      "Unix time of the last stored cycle result",
			},
		),
	}
}

// =============================================================================
// Recording
// =============================================================================

// RecordAttempt counts one fetch attempt.
func (m *Metrics) RecordAttempt(source, outcome string) {
	if m == nil {
		return
	}
	m.FetchAttemptsTotal.WithLabelValues(source, outcome).Inc()
}

// RecordFetch observes the total time spent on one source.
func (m *Metrics) RecordFetch(source string, ok bool, d time.Duration) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "unavailable"
	}
	m.FetchDurationSeconds.WithLabelValues(source, result).Observe(d.Seconds())
}

// RecordSource sets the per-source gauges for the cycle just merged.
func (m *Metrics) RecordSource(source string, rows int) {
	if m == nil {
		return
	}
	available := 0.0
	if rows > 0 {
		available = 1
	}
	m.SourceAvailable.WithLabelValues(source).Set(available)
	m.SourceRows.WithLabelValues(source).Set(float64(rows))
}

// RecordNormalizeFailure counts a source that degraded during parsing.
func (m *Metrics) RecordNormalizeFailure(source string) {
	if m == nil {
		return
	}
	m.NormalizeFailuresTotal.WithLabelValues(source).Inc()
}

// RecordRefresh counts one credential refresh outcome.
func (m *Metrics) RecordRefresh(outcome string) {
	if m == nil {
		return
	}
	m.RefreshTotal.WithLabelValues(outcome).Inc()
}

// RecordCycle counts a finished cycle and its duration.
func (m *Metrics) RecordCycle(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.CyclesTotal.WithLabelValues(result).Inc()
	m.CycleDurationSeconds.WithLabelValues(result).Observe(d.Seconds())
	if result == "ok" {
		m.LastCycleTimestamp.SetToCurrentTime()
	}
}

// RecordBranch counts the merge branch chosen for a cycle.
func (m *Metrics) RecordBranch(branch string) {
	if m == nil {
		return
	}
	m.MergeBranchTotal.WithLabelValues(branch).Inc()
}
