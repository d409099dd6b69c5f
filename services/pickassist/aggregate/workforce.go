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
	"github.com/z-Vaughan/PickAssist/services/pickassist/normalize"
	"github.com/z-Vaughan/PickAssist/services/pickassist/sources"
	"github.com/z-Vaughan/PickAssist/services/pickassist/table"
)

// Workforce summary columns.
var (
	WorkforceProcessColumns = []string{"process_path", "total_pickers", "active_pickers", "active_percent"}
	WorkforceAreaColumns    = []string{"process_path", "pick_area", "area_hc", "area_active_hc", "active_percent"}
)

// Headcounts totals pickers across every process path.
type Headcounts struct {
	Total  int `json:"total_headcount"`
	Active int `json:"active_headcount"`
}

// WorkforceResult is the aggregated Workforce source.
type WorkforceResult struct {
	State              sources.State `json:"state"`
	Headcounts         Headcounts    `json:"headcounts"`
	Full               *table.Table  `json:"workforce_full"`
	ProcessSummary     *table.Table  `json:"process_summary"`
	ProcessAreaSummary *table.Table  `json:"process_area_summary"`
}

// Workforce groups picker status by process path and by pick area.
//
// Picker counts are non-null counts of employee IDs. At the path level a
// picker is active only with an ID; at the area level every active flag
// counts.
func Workforce(recs []normalize.WorkforceRecord) *WorkforceResult {
	res := &WorkforceResult{
		State:              sources.StateOf(len(recs)),
		Full:               normalize.WorkforceTable(recs),
		ProcessSummary:     table.New(WorkforceProcessColumns...),
		ProcessAreaSummary: table.New(WorkforceAreaColumns...),
	}

	for _, b := range groupBy(recs, func(r normalize.WorkforceRecord) groupKey {
		return groupKey{path: r.ProcessPath}
	}) {
		var total, active int
		for _, r := range b.items {
			if r.EmployeeID == "" {
				continue
			}
			total++
			if r.Active {
				active++
			}
		}
		add(res.ProcessSummary, b.key.path, total, active, percent(active, total))
		res.Headcounts.Total += total
		res.Headcounts.Active += active
	}

	for _, b := range groupBy(recs, func(r normalize.WorkforceRecord) groupKey {
		return groupKey{path: r.ProcessPath, area: r.PickArea}
	}) {
		var hc, active int
		for _, r := range b.items {
			if r.EmployeeID != "" {
				hc++
			}
			if r.Active {
				active++
			}
		}
		add(res.ProcessAreaSummary, b.key.path, b.key.areaCell(), hc, active, percent(active, hc))
	}
	return res
}
