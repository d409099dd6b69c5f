// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package normalize

import (
	"encoding/json"
	"sort"

	"github.com/z-Vaughan/PickAssist/services/pickassist/table"
)

// ProcessColumns is the column order of the Process table.
var ProcessColumns = []string{
	"process_path", "status", "prioritized_units", "non_prioritized_units",
	"picker_count", "units_in_scanner", "units_per_hour",
	"pick_rate_average", "unit_rate_target",
}

// statusActive is the only process-path status kept.
const statusActive = "Active"

// ProcessRecord is one active process path from the console.
type ProcessRecord struct {
	ProcessPath         string
	Status              string
	PrioritizedUnits    float64
	NonPrioritizedUnits float64
	PickerCount         float64
	UnitsInScanner      float64
	UnitsPerHour        float64
	PickRateAverage     float64
	UnitRateTarget      float64
}

// Row returns the record keyed by ProcessColumns.
func (r ProcessRecord) Row() table.Row {
	return table.Row{
		"process_path":          r.ProcessPath,
		"status":                r.Status,
		"prioritized_units":     r.PrioritizedUnits,
		"non_prioritized_units": r.NonPrioritizedUnits,
		"picker_count":          r.PickerCount,
		"units_in_scanner":      r.UnitsInScanner,
		"units_per_hour":        r.UnitsPerHour,
		"pick_rate_average":     r.PickRateAverage,
		"unit_rate_target":      r.UnitRateTarget,
	}
}

// ProcessTable renders records as the Process table.
func ProcessTable(recs []ProcessRecord) *table.Table {
	return rows(ProcessColumns, recs)
}

type processBody struct {
	ProcessPathInformationMap map[string]processInfo `json:"processPathInformationMap"`
}

type processInfo struct {
	Status                    flexString      `json:"Status"`
	PickerCount               flexNumber      `json:"PickerCount"`
	UnitsInScanner            flexNumber      `json:"UnitsInScanner"`
	UnitsPerHour              flexNumber      `json:"UnitsPerHour"`
	PickRateAverage           flexNumber      `json:"pickRateAverage"`
	UnitRateTarget            flexNumber      `json:"unitRateTarget"`
	PrioritizedUnitsCounts    json.RawMessage `json:"PrioritizedUnitsCounts"`
	NonPrioritizedUnitsCounts json.RawMessage `json:"NonPrioritizedUnitsCounts"`
}

// Process parses the console process-path body
// {"processPathInformationMap": {path: {...}}}.
//
// Only Active paths with prioritized units are kept, sorted by prioritized
// units descending (ties by path).
func Process(body []byte) ([]ProcessRecord, error) {
	return guard("process", func() ([]ProcessRecord, error) {
		if isBlank(body) {
			return nil, nil
		}
		var wire processBody
		if err := json.Unmarshal(body, &wire); err != nil {
			return nil, malformed("process", err)
		}

		var recs []ProcessRecord
		for path, info := range wire.ProcessPathInformationMap {
			if string(info.Status) != statusActive {
				continue
			}
			prioritized := sumCounts(info.PrioritizedUnitsCounts)
			if prioritized <= 0 {
				continue
			}
			recs = append(recs, ProcessRecord{
				ProcessPath:         key(path),
				Status:              string(info.Status),
				PrioritizedUnits:    prioritized,
				NonPrioritizedUnits: sumCounts(info.NonPrioritizedUnitsCounts),
				PickerCount:         float64(info.PickerCount),
				UnitsInScanner:      float64(info.UnitsInScanner),
				UnitsPerHour:        float64(info.UnitsPerHour),
				PickRateAverage:     float64(info.PickRateAverage),
				UnitRateTarget:      float64(info.UnitRateTarget),
			})
		}
		sort.Slice(recs, func(i, j int) bool {
			if recs[i].PrioritizedUnits != recs[j].PrioritizedUnits {
				return recs[i].PrioritizedUnits > recs[j].PrioritizedUnits
			}
			return recs[i].ProcessPath < recs[j].ProcessPath
		})
		return recs, nil
	})
}

// sumCounts sums a {bucket: count} object. Anything that is not such an
// object counts as zero.
func sumCounts(raw json.RawMessage) float64 {
	if len(raw) == 0 {
		return 0
	}
	var counts map[string]flexNumber
	if err := json.Unmarshal(raw, &counts); err != nil {
		return 0
	}
	var total float64
	for _, v := range counts {
		total += float64(v)
	}
	return total
}
