// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package aggregate

import (
	"fmt"
	"time"

	"github.com/z-Vaughan/PickAssist/services/pickassist/normalize"
	"github.com/z-Vaughan/PickAssist/services/pickassist/sources"
	"github.com/z-Vaughan/PickAssist/services/pickassist/table"
)

// Rodeo summary columns.
var (
	CPTColumns            = []string{"cpt", "total_cases", "total_units", "hov_cases", "hours_remaining", "case_density"}
	CPTProcessColumns     = []string{"cpt", "process_path", "total_cases", "total_units", "hours_remaining", "case_density"}
	CPTProcessAreaColumns = []string{"cpt", "process_path", "pick_area", "total_cases", "total_units", "hours_remaining", "case_density"}
)

// Picks counts outstanding picks.
type Picks struct {
	NonHOV int `json:"non_hov_picks_rem"`
	HOV    int `json:"hov_picks_rem"`
	All    int `json:"all_picks_rem"`
}

// RodeoResult is the aggregated Rodeo source.
type RodeoResult struct {
	State                 sources.State `json:"state"`
	Picks                 Picks         `json:"picks"`
	Full                  *table.Table  `json:"rodeo_full"`
	CPTSummary            *table.Table  `json:"cpt_summary"`
	CPTProcessSummary     *table.Table  `json:"cpt_process_summary"`
	CPTProcessAreaSummary *table.Table  `json:"cpt_process_area_summary"`
}

// ProcessResult is the Process source. It has no summaries; the full
// table is already one row per process path.
type ProcessResult struct {
	State sources.State `json:"state"`
	Full  *table.Table  `json:"process_full"`
}

// Process wraps normalized process paths.
func Process(recs []normalize.ProcessRecord) *ProcessResult {
	return &ProcessResult{
		State: sources.StateOf(len(recs)),
		Full:  normalize.ProcessTable(recs),
	}
}

// Rodeo summarizes outstanding demand by CPT, process path and pick area.
//
// # Description
//
// Cases are non-null counts of transfer request IDs; units sum quantity.
// hours_remaining is the CPT bucket, read in loc in the year of now, minus
// now. Buckets that do not parse (HOV) take the largest valid value in the
// same table, or fallbackHours when the table has none.
//
// # Inputs
//
//   - now: the cycle's shared reference time.
//   - fallbackHours: usually the shift's own remaining hours.
func Rodeo(recs []normalize.RodeoRecord, now time.Time, loc *time.Location, fallbackHours float64) *RodeoResult {
	if loc == nil {
		loc = time.UTC
	}
	res := &RodeoResult{
		State:                 sources.StateOf(len(recs)),
		Full:                  normalize.RodeoTable(recs),
		CPTSummary:            table.New(CPTColumns...),
		CPTProcessSummary:     table.New(CPTProcessColumns...),
		CPTProcessAreaSummary: table.New(CPTProcessAreaColumns...),
	}
	for _, r := range recs {
		if r.TransferRequestID == "" {
			continue
		}
		res.Picks.All++
		if normalize.IsHOV(r.ProcessPath) {
			res.Picks.HOV++
		} else {
			res.Picks.NonHOV++
		}
	}

	hours := func(cpt string) *float64 {
		h, ok := HoursRemaining(cpt, now, loc)
		if !ok {
			return nil
		}
		return &h
	}

	byCPT := groupBy(recs, func(r normalize.RodeoRecord) groupKey { return groupKey{cpt: r.CPT} })
	cptHours := make([]*float64, len(byCPT))
	for i, b := range byCPT {
		cptHours[i] = hours(b.key.cpt)
	}
	fillHours(cptHours, fallbackHours)
	for i, b := range byCPT {
		cases, units := demand(b.items)
		var hov int
		for _, r := range b.items {
			if r.TransferRequestID != "" && normalize.IsHOV(r.ProcessPath) {
				hov++
			}
		}
		add(res.CPTSummary, b.key.cpt, cases, units, hov, *cptHours[i], ratio(units, float64(cases)))
	}

	byPath := groupBy(recs, func(r normalize.RodeoRecord) groupKey {
		return groupKey{cpt: r.CPT, path: r.ProcessPath}
	})
	pathHours := make([]*float64, len(byPath))
	for i, b := range byPath {
		pathHours[i] = hours(b.key.cpt)
	}
	fillHours(pathHours, fallbackHours)
	for i, b := range byPath {
		cases, units := demand(b.items)
		add(res.CPTProcessSummary, b.key.cpt, b.key.path, cases, units, *pathHours[i], ratio(units, float64(cases)))
	}

	byArea := groupBy(recs, func(r normalize.RodeoRecord) groupKey {
		return groupKey{cpt: r.CPT, path: r.ProcessPath, area: r.PickArea}
	})
	areaHours := make([]*float64, len(byArea))
	for i, b := range byArea {
		areaHours[i] = hours(b.key.cpt)
	}
	fillHours(areaHours, fallbackHours)
	for i, b := range byArea {
		cases, units := demand(b.items)
		add(res.CPTProcessAreaSummary, b.key.cpt, b.key.path, b.key.areaCell(), cases, units, *areaHours[i], ratio(units, float64(cases)))
	}
	return res
}

// HoursRemaining returns round(cpt - now, 2) in hours. cpt is "MM-DD HH:MM"
// in loc, in the year of now. ok is false for buckets that do not parse.
func HoursRemaining(cpt string, now time.Time, loc *time.Location) (float64, bool) {
	t, err := time.ParseInLocation("2006-"+normalize.CPTLayout, fmt.Sprintf("%d-%s", now.In(loc).Year(), cpt), loc)
	if err != nil {
		return 0, false
	}
	return table.Round2(t.Sub(now).Hours()), true
}

// fillHours replaces nil entries with the largest non-nil entry, or with
// fallback when every entry is nil.
func fillHours(hours []*float64, fallback float64) {
	var best *float64
	for _, h := range hours {
		if h != nil && (best == nil || *h > *best) {
			best = h
		}
	}
	fill := table.Round2(fallback)
	if best != nil {
		fill = *best
	}
	for i := range hours {
		if hours[i] == nil {
			v := fill
			hours[i] = &v
		}
	}
}

func demand(items []normalize.RodeoRecord) (cases int, units float64) {
	for _, r := range items {
		if r.TransferRequestID != "" {
			cases++
		}
		units += r.Quantity
	}
	return cases, units
}
