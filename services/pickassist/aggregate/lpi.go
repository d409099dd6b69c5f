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
	"encoding/json"

	"github.com/z-Vaughan/PickAssist/services/pickassist/normalize"
	"github.com/z-Vaughan/PickAssist/services/pickassist/sources"
	"github.com/z-Vaughan/PickAssist/services/pickassist/table"
)

// LPI summary columns. The historical tables use the same columns.
var (
	LPIProcessColumns = []string{"process_path", "cases_picked", "total_hours", "mean_cph", "avg_cph"}
	LPIAreaColumns    = []string{"process_path", "pick_area", "cases_picked", "total_hours", "mean_cph", "avg_cph"}
)

// Rollup is a volume, hours and load-weighted rate over a record subset.
// It encodes with its prefix, e.g. {"hov_rate": ..., "hov_vol": ..., "hov_hrs": ...}.
type Rollup struct {
	prefix string
	Rate   float64
	Volume float64
	Hours  float64
}

// MarshalJSON encodes the rollup with prefixed keys.
func (r Rollup) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]float64{
		r.prefix + "_rate": r.Rate,
		r.prefix + "_vol":  r.Volume,
		r.prefix + "_hrs":  r.Hours,
	})
}

// LPIResult is the aggregated intraday LPI source.
type LPIResult struct {
	State              sources.State `json:"state"`
	HOV                Rollup        `json:"hov"`
	NonHOV             Rollup        `json:"non_hov"`
	Combined           Rollup        `json:"combined"`
	Full               *table.Table  `json:"lpi_full"`
	ProcessSummary     *table.Table  `json:"process_summary"`
	ProcessAreaSummary *table.Table  `json:"process_area_summary"`
}

// LPIHistResult is the aggregated weekly LPI source.
type LPIHistResult struct {
	State                  sources.State `json:"state"`
	Full                   *table.Table  `json:"lpi_full"`
	ProcessSummaryHist     *table.Table  `json:"process_summary_hist"`
	ProcessAreaSummaryHist *table.Table  `json:"process_area_summary_hist"`
}

// LPI summarizes intraday productivity. With no records every rollup is
// zero and every table is empty.
func LPI(recs []normalize.LPIRecord) *LPIResult {
	var hov, nonHOV []normalize.LPIRecord
	for _, r := range recs {
		if normalize.IsHOV(r.ProcessPath) {
			hov = append(hov, r)
		} else {
			nonHOV = append(nonHOV, r)
		}
	}
	process, area := lpiSummaries(recs)
	return &LPIResult{
		State:              sources.StateOf(len(recs)),
		HOV:                rollup("hov", hov),
		NonHOV:             rollup("non_hov", nonHOV),
		Combined:           rollup("combined", recs),
		Full:               normalize.LPITable(recs),
		ProcessSummary:     process,
		ProcessAreaSummary: area,
	}
}

// LPIHistorical summarizes the weekly productivity feed.
func LPIHistorical(recs []normalize.LPIRecord) *LPIHistResult {
	process, area := lpiSummaries(recs)
	return &LPIHistResult{
		State:                  sources.StateOf(len(recs)),
		Full:                   normalize.LPITable(recs),
		ProcessSummaryHist:     process,
		ProcessAreaSummaryHist: area,
	}
}

func rollup(prefix string, recs []normalize.LPIRecord) Rollup {
	units, hours := totals(recs)
	r := Rollup{prefix: prefix, Volume: units, Hours: table.Round2(hours)}
	if hours > 0 {
		r.Rate = table.Round2(units / hours)
	}
	return r
}

func totals(recs []normalize.LPIRecord) (units, hours float64) {
	for _, r := range recs {
		units += r.UnitCount
		hours += r.TimeHours
	}
	return units, hours
}

func lpiSummaries(recs []normalize.LPIRecord) (process, area *table.Table) {
	process = table.New(LPIProcessColumns...)
	for _, b := range groupBy(recs, func(r normalize.LPIRecord) groupKey {
		return groupKey{path: r.ProcessPath}
	}) {
		cases, hours, mean, avg := lpiMetrics(b.items)
		add(process, b.key.path, cases, hours, mean, avg)
	}

	area = table.New(LPIAreaColumns...)
	for _, b := range groupBy(recs, func(r normalize.LPIRecord) groupKey {
		return groupKey{path: r.ProcessPath, area: r.PickArea}
	}) {
		cases, hours, mean, avg := lpiMetrics(b.items)
		add(area, b.key.path, b.key.areaCell(), cases, hours, mean, avg)
	}
	return process, area
}

// lpiMetrics returns cases_picked, total_hours, mean_cph and avg_cph for a
// group. avg_cph is nil when the group logged no hours.
func lpiMetrics(items []normalize.LPIRecord) (cases, hours, mean float64, avg any) {
	var rateSum float64
	for _, r := range items {
		rateSum += r.UnitsPerHour
	}
	units, rawHours := totals(items)
	if len(items) > 0 {
		mean = table.Round2(rateSum / float64(len(items)))
	}
	return units, table.Round2(rawHours), mean, ratio(units, rawHours)
}
