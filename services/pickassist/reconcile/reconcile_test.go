// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package reconcile

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/z-Vaughan/PickAssist/services/pickassist/aggregate"
	"github.com/z-Vaughan/PickAssist/services/pickassist/normalize"
	"github.com/z-Vaughan/PickAssist/services/pickassist/sources"
	"github.com/z-Vaughan/PickAssist/services/pickassist/table"
)

const elapsed = 4.5

func str(s string) *string { return &s }

func fixture(t *testing.T) Inputs {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	now := time.Date(2024, 6, 14, 10, 30, 0, 0, loc)

	return Inputs{
		Rodeo: aggregate.Rodeo([]normalize.RodeoRecord{
			{TransferRequestID: "T1", CPT: "06-14 14:00", ProcessPath: "PPA", PickArea: str("A1"), Quantity: 4},
			{TransferRequestID: "T2", CPT: "06-14 14:00", ProcessPath: "PPA", PickArea: str("A1"), Quantity: 2},
			{TransferRequestID: "T3", CPT: "06-14 16:00", ProcessPath: "PPB", Quantity: 1},
		}, now, loc, 7.5),
		Workforce: aggregate.Workforce([]normalize.WorkforceRecord{
			{EmployeeID: "1", ProcessPath: "PPA", PickArea: str("A1"), Active: true},
			{EmployeeID: "2", ProcessPath: "PPA", PickArea: str("A1")},
		}),
		LPI: aggregate.LPI([]normalize.LPIRecord{
			{ProcessPath: "PPA", PickArea: str("A1"), UnitCount: 90, TimeHours: 3, UnitsPerHour: 30},
		}),
		LPIHist: aggregate.LPIHistorical([]normalize.LPIRecord{
			{ProcessPath: "PPA", PickArea: str("A1"), UnitCount: 50, TimeHours: 1, UnitsPerHour: 50},
		}),
		Process: aggregate.Process([]normalize.ProcessRecord{
			{ProcessPath: "PPA", Status: "Active", PrioritizedUnits: 10},
		}),
	}
}

var (
	rodeoProcess = []string{"cpt", "process_path", "total_cases", "total_units", "hours_remaining", "case_density"}
	rodeoArea    = []string{"cpt", "process_path", "pick_area", "total_cases", "total_units", "hours_remaining", "case_density"}
	processCols  = []string{"status", "prioritized_units", "non_prioritized_units", "picker_count",
		"units_in_scanner", "units_per_hour", "pick_rate_average", "unit_rate_target"}
)

func cols(parts ...[]string) []string {
	var out []string
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// =============================================================================
// Branch selection
// =============================================================================

func TestSelectBranch(t *testing.T) {
	tests := []struct {
		missing []string
		want    Branch
	}{
		{nil, BranchFull},
		{[]string{sources.Process}, BranchFull},
		{[]string{sources.LPI, sources.Workforce}, BranchDemandOnly},
		{[]string{sources.LPI, sources.Workforce, sources.Process}, BranchDemandOnly},
		{[]string{sources.Workforce}, BranchNoWorkforce},
		{[]string{sources.Rodeo}, BranchNoDemand},
		{[]string{sources.Rodeo, sources.Workforce, sources.LPI}, BranchInsufficient},
		{[]string{sources.LPI}, BranchInsufficient},
		{[]string{sources.Rodeo, sources.LPI}, BranchInsufficient},
	}
	for _, tt := range tests {
		m := NewMissingSet(tt.missing...)
		t.Run(m.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, SelectBranch(m))
		})
	}
}

func TestMissing(t *testing.T) {
	in := fixture(t)
	assert.Empty(t, Missing(in).Names())

	in.Process = aggregate.Process(nil)
	in.Workforce = nil
	in.LPIHist = nil
	assert.Equal(t, []string{sources.Process, sources.Workforce}, Missing(in).Names())
}

func TestMissing_ReadsStateTag(t *testing.T) {
	in := fixture(t)
	in.LPI.State = sources.Empty
	assert.Equal(t, []string{sources.LPI}, Missing(in).Names(), "tag decides even when rows exist")
	assert.Equal(t, BranchInsufficient, SelectBranch(Missing(in)))

	data, err := json.Marshal(Missing(in))
	require.NoError(t, err)
	assert.JSONEq(t, `["Process","Workforce"]`, string(data))
}

// =============================================================================
// Degradation matrix
// =============================================================================

func TestMerge_DegradationMatrix(t *testing.T) {
	tests := []struct {
		name        string
		drop        func(*Inputs)
		branch      Branch
		cptLevel    string
		processCols []string
		areaCols    []string
	}{
		{
			name:     "all present",
			drop:     func(*Inputs) {},
			branch:   BranchFull,
			cptLevel: CPTLevelRodeo,
			processCols: cols(rodeoProcess,
				[]string{"total_pickers", "active_pickers", "active_percent"},
				[]string{"cases_picked", "total_hours", "mean_cph", "avg_cph", "historical_cph"},
				[]string{"projected_miss", "PRA", "TUR"}, processCols),
			areaCols: cols(rodeoArea,
				[]string{"area_hc", "area_active_hc", "active_percent"},
				[]string{"cases_picked", "total_hours", "mean_cph", "avg_cph", "historical_cph"}),
		},
		{
			name:     "no labor or workforce",
			drop:     func(in *Inputs) { in.LPI = aggregate.LPI(nil); in.Workforce = nil },
			branch:   BranchDemandOnly,
			cptLevel: CPTLevelRodeo,
			processCols: cols(rodeoProcess,
				[]string{"avg_cph", "historical_cph", "total_pickers", "active_pickers", "cases_picked",
					"total_hours", "projected_miss", "PRA", "TUR"}, processCols),
			areaCols: cols(rodeoArea,
				[]string{"avg_cph", "historical_cph", "area_hc", "area_active_hc", "PRA", "TUR"}),
		},
		{
			name:     "no workforce",
			drop:     func(in *Inputs) { in.Workforce = aggregate.Workforce(nil) },
			branch:   BranchNoWorkforce,
			cptLevel: CPTLevelRodeo,
			processCols: cols(rodeoProcess,
				[]string{"cases_picked", "total_hours", "mean_cph", "avg_cph", "historical_cph"},
				[]string{"total_pickers", "active_pickers", "projected_miss", "PRA", "TUR"}, processCols),
			areaCols: cols(rodeoArea,
				[]string{"cases_picked", "total_hours", "mean_cph", "avg_cph", "historical_cph"},
				[]string{"area_hc", "area_active_hc"}),
		},
		{
			name:     "no demand",
			drop:     func(in *Inputs) { in.Rodeo = nil },
			branch:   BranchNoDemand,
			cptLevel: CPTLevelNone,
			processCols: cols(
				[]string{"process_path", "total_pickers", "active_pickers", "active_percent"},
				[]string{"cases_picked", "total_hours", "mean_cph", "avg_cph"}, processCols),
			areaCols: cols(
				[]string{"process_path", "pick_area", "area_hc", "area_active_hc", "active_percent"},
				[]string{"cases_picked", "total_hours", "mean_cph", "avg_cph"}),
		},
		{
			name:        "nothing to merge",
			drop:        func(in *Inputs) { in.Rodeo = nil; in.Workforce = nil; in.LPI = nil },
			branch:      BranchInsufficient,
			cptLevel:    CPTLevelNone,
			processCols: []string{},
			areaCols:    []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := fixture(t)
			tt.drop(&in)

			res := Merge(in, elapsed)
			assert.Equal(t, tt.branch, res.Branch)
			assert.False(t, res.Degraded())
			assert.Empty(t, res.Errors)
			assert.Equal(t, tt.cptLevel, res.View.CPTLevel)
			require.NotNil(t, res.View.ProcessLevel)
			require.NotNil(t, res.View.AreaLevel)
			assert.ElementsMatch(t, tt.processCols, res.View.ProcessLevel.Columns())
			assert.ElementsMatch(t, tt.areaCols, res.View.AreaLevel.Columns())

			both := res.View.ProcessLevel.HasColumn("active_percent") && res.View.ProcessLevel.HasColumn("mean_cph")
			labor := in.LPI != nil && !in.LPI.Full.IsEmpty()
			staff := in.Workforce != nil && !in.Workforce.Full.IsEmpty()
			assert.Equal(t, labor && staff, both, "headcount and labor columns together iff both sources present")
		})
	}
}

func TestMerge_FullValues(t *testing.T) {
	res := Merge(fixture(t), elapsed)
	require.Equal(t, BranchFull, res.Branch)

	rows := res.View.ProcessLevel.Rows()
	require.Len(t, rows, 2)

	ppa := rows[0]
	assert.Equal(t, "PPA", ppa["process_path"])
	assert.Equal(t, 2, ppa["total_pickers"])
	assert.Equal(t, 30.0, ppa["avg_cph"])
	assert.Equal(t, 50.0, ppa["historical_cph"])
	assert.Equal(t, false, ppa["projected_miss"])
	assert.Equal(t, 2.0, ppa["PRA"])
	assert.Equal(t, 1.0, ppa["TUR"])
	assert.Equal(t, 10.0, ppa["prioritized_units"])

	ppb := rows[1]
	assert.Equal(t, "PPB", ppb["process_path"])
	assert.Nil(t, ppb["avg_cph"])
	assert.Nil(t, ppb["historical_cph"])
	assert.Equal(t, true, ppb["projected_miss"], "no labor logged means at risk")
	assert.Equal(t, 0.0, ppb["PRA"])
	assert.Equal(t, 0.0, ppb["TUR"])
	assert.Nil(t, ppb["prioritized_units"])
}

func TestMerge_ProcessMissingKeepsFullBranch(t *testing.T) {
	in := fixture(t)
	in.Process = nil

	res := Merge(in, elapsed)
	assert.Equal(t, BranchFull, res.Branch)
	assert.True(t, res.Missing.Has(sources.Process))
	for _, c := range processCols {
		assert.False(t, res.View.ProcessLevel.HasColumn(c), "column %s must be absent", c)
	}
}

func TestMerge_NullPickAreaStaysUnmatched(t *testing.T) {
	in := fixture(t)
	in.Workforce = aggregate.Workforce([]normalize.WorkforceRecord{
		{EmployeeID: "1", ProcessPath: "PPA", PickArea: str("A1"), Active: true},
		{EmployeeID: "2", ProcessPath: "PPA", PickArea: str("A1")},
		{EmployeeID: "3", ProcessPath: "PPB", Active: true},
	})

	res := Merge(in, elapsed)
	require.Equal(t, BranchFull, res.Branch)

	var ppb table.Row
	for _, r := range res.View.AreaLevel.Rows() {
		if r["process_path"] == "PPB" {
			ppb = r
		}
	}
	require.NotNil(t, ppb)
	assert.Nil(t, ppb["pick_area"])
	assert.Nil(t, ppb["area_hc"], "unlocated demand must not take headcount from unlocated pickers")
	assert.Nil(t, ppb["area_active_hc"])
}

func TestMerge_HistoricalAbsentFillsNulls(t *testing.T) {
	in := fixture(t)
	in.LPIHist = nil

	res := Merge(in, elapsed)
	require.Equal(t, BranchFull, res.Branch)
	assert.True(t, res.View.ProcessLevel.HasColumn("historical_cph"))
	assert.Nil(t, res.View.ProcessLevel.Rows()[0]["historical_cph"])
}

func TestMerge_JoinErrorDegrades(t *testing.T) {
	in := fixture(t)
	broken := table.New("employee")
	require.NoError(t, broken.Append("x"))
	in.Workforce = &aggregate.WorkforceResult{
		State:              sources.Present,
		Full:               broken,
		ProcessSummary:     broken,
		ProcessAreaSummary: broken,
	}

	res := Merge(in, elapsed)
	assert.Equal(t, BranchFull, res.Selected)
	assert.Equal(t, BranchNoWorkforce, res.Branch)
	assert.True(t, res.Degraded())
	require.Len(t, res.Errors, 1)
	assert.True(t, errors.Is(res.Errors[0], ErrJoin))
	assert.Equal(t, 0.0, res.View.ProcessLevel.Rows()[0]["total_pickers"])
}

func TestMerge_DegradesToInsufficient(t *testing.T) {
	in := fixture(t)
	in.Workforce = nil
	in.LPI = nil
	in.Rodeo.CPTProcessSummary = nil

	res := Merge(in, elapsed)
	assert.Equal(t, BranchDemandOnly, res.Selected)
	assert.Equal(t, BranchInsufficient, res.Branch)
	assert.Equal(t, CPTLevelNone, res.View.CPTLevel)
	assert.NotNil(t, res.View.ProcessLevel)
	assert.Empty(t, res.View.ProcessLevel.Columns())
}

// =============================================================================
// Derived metrics
// =============================================================================

func TestProjectedMiss(t *testing.T) {
	tests := []struct {
		name                                   string
		spent, passed, remaining, work, rate float64
		want                                   bool
	}{
		{"no time passed", 2, 0, 3, 10, 30, true},
		{"no labor", 0, 4, 3, 10, 30, true},
		{"past due", 2, 4, 0, 10, 30, true},
		{"past due negative", 2, 4, -1, 10, 30, true},
		{"no work", 2, 4, 3, 0, 30, false},
		{"on pace", 4, 4, 2, 50, 30, false},
		{"behind", 4, 4, 1, 50, 30, true},
		{"no rate", 4, 4, 3, 50, 0, true},
		{"no rate huge window", 4, 4, 1000, 50, 0, false},
		{"nan", math.NaN(), 4, 3, 10, 30, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ProjectedMiss(tt.spent, tt.passed, tt.remaining, tt.work, tt.rate))
		})
	}
}

func TestPRAAndTUR(t *testing.T) {
	assert.Equal(t, 0.0, PRA(10, 0, 2))
	assert.Equal(t, 6.67, PRA(10, 3, 2))
	assert.Equal(t, 0.0, TUR(6.67, 0))
	assert.Equal(t, 3.3, TUR(6.6, 2))
}

func TestBranchText(t *testing.T) {
	text, err := BranchNoWorkforce.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "no_workforce", string(text))
	assert.Equal(t, "branch(42)", Branch(42).String())
}
