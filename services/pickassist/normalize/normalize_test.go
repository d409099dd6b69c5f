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
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/z-Vaughan/PickAssist/services/pickassist/site"
)

// =============================================================================
// Sentinels
// =============================================================================

func TestNormalizers_EmptyAndMalformedInput(t *testing.T) {
	catalog := &site.Catalog{}
	parsers := map[string]func([]byte) (int, error){
		"workforce": func(b []byte) (int, error) { r, err := Workforce(b); return len(r), err },
		"process":   func(b []byte) (int, error) { r, err := Process(b); return len(r), err },
		"lpi":       func(b []byte) (int, error) { r, err := LPI(b); return len(r), err },
		"rodeo": func(b []byte) (int, error) {
			r, err := Rodeo(b, catalog, time.UTC)
			return len(r), err
		},
	}
	inputs := map[string][]byte{
		"nil":       nil,
		"blank":     []byte("   \n"),
		"garbage":   []byte("\x00\xff{not json<"),
		"wrongjson": []byte(`[1,2,3]`),
		"truncated": []byte(`{"pickerStatusList": [{"employeeId": `),
	}

	for pname, parse := range parsers {
		for iname, in := range inputs {
			t.Run(pname+"/"+iname, func(t *testing.T) {
				var n int
				var err error
				require.NotPanics(t, func() { n, err = parse(in) })
				assert.Zero(t, n)
				if err != nil {
					assert.True(t, errors.Is(err, ErrMalformed) || errors.Is(err, ErrPatternAbsent), "unexpected error %v", err)
				}
			})
		}
	}
}

// =============================================================================
// Workforce
// =============================================================================

func TestWorkforce_ExplodesAndUpperCases(t *testing.T) {
	body := []byte(`{"pickerStatusList": [
		{"employeeId": 101, "name": "Ann", "processPath": "ppMulti", "pickArea": "a1", "active": true, "userId": "ann"},
		{"employeeId": "102", "name": "Bo", "processPath": "PPSingle", "pickArea": null, "active": "false"}
	]}`)

	got, err := Workforce(body)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "101", got[0].EmployeeID)
	assert.Equal(t, "PPMULTI", got[0].ProcessPath)
	require.NotNil(t, got[0].PickArea)
	assert.Equal(t, "A1", *got[0].PickArea)
	assert.True(t, got[0].Active)

	assert.Nil(t, got[1].PickArea)
	assert.False(t, got[1].Active)

	tb := WorkforceTable(got)
	assert.Equal(t, WorkforceColumns, tb.Columns())
	assert.Nil(t, tb.Rows()[1]["pick_area"], "nil area must be an untyped null")
}

func TestWorkforce_EmptyList(t *testing.T) {
	got, err := Workforce([]byte(`{"pickerStatusList": []}`))
	assert.NoError(t, err)
	assert.Empty(t, got)

	got, err = Workforce([]byte(`{}`))
	assert.NoError(t, err)
	assert.Empty(t, got)
}

// =============================================================================
// Process
// =============================================================================

func TestProcess_FiltersActivePrioritizedAndSorts(t *testing.T) {
	body := []byte(`{"processPathInformationMap": {
		"ppSmall":  {"Status": "Active", "PickerCount": 2, "PrioritizedUnitsCounts": {"standard": 5}, "NonPrioritizedUnitsCounts": {"standard": 1}},
		"ppBig":    {"Status": "Active", "PickerCount": 4, "PrioritizedUnitsCounts": {"standard": 30, "premium": 20}, "unitRateTarget": "120"},
		"ppIdle":   {"Status": "Active", "PrioritizedUnitsCounts": {"standard": 0}},
		"ppPaused": {"Status": "Paused", "PrioritizedUnitsCounts": {"standard": 99}},
		"ppOdd":    {"Status": "Active", "PrioritizedUnitsCounts": "n/a"}
	}}`)

	got, err := Process(body)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "PPBIG", got[0].ProcessPath)
	assert.Equal(t, 50.0, got[0].PrioritizedUnits)
	assert.Equal(t, 120.0, got[0].UnitRateTarget)
	assert.Equal(t, "PPSMALL", got[1].ProcessPath)
	assert.Equal(t, 1.0, got[1].NonPrioritizedUnits)

	assert.Equal(t, ProcessColumns, ProcessTable(got).Columns())
}

// =============================================================================
// LPI
// =============================================================================

const lpiPage = `<html><script>
var filteredProductivityList = [
  {"processName": "Pick",
   "processAttributes": {"processId": "100115", "attributes": {
      "PICKING_PROCESS_PATH": "ppMulti", "PICKING_PICK_AREA": "a1", "SIZE_CATEGORY": "S", "CONTAINER_TYPE": "TOTE"}},
   "associateProductivityList": [
      {"employeeId": "1", "employeeName": "Ann; Smith", "unitCount": 90, "timeMillis": 3600},
      {"employeeId": "2", "unitCount": 5, "timeMillis": 0}
   ]}
];
var other = 1;
</script></html>`

func TestLPI_ExtractsAndDerives(t *testing.T) {
	got, err := LPI([]byte(lpiPage))
	require.NoError(t, err)
	require.Len(t, got, 2)

	first := got[0]
	assert.Equal(t, "PPMULTI", first.ProcessPath)
	require.NotNil(t, first.PickArea)
	assert.Equal(t, "A1", *first.PickArea)
	assert.Equal(t, "Ann; Smith", first.EmployeeName, "semicolon inside a string must not truncate")
	assert.Equal(t, 1.0, first.TimeHours)
	assert.Equal(t, 90.0, first.UnitsPerHour)
	assert.Equal(t, "TOTE", first.ContainerType)

	assert.Equal(t, 0.0, got[1].TimeHours)
	assert.Equal(t, 0.0, got[1].UnitsPerHour)
}

func TestLPI_PatternAbsent(t *testing.T) {
	_, err := LPI([]byte("<html>Please sign in</html>"))
	assert.True(t, errors.Is(err, ErrPatternAbsent))
}

func TestLPI_SkipsComparisonBeforeAssignment(t *testing.T) {
	body := []byte(`<script>
if (filteredProductivityList == null) { renderEmpty(); }
var filteredProductivityList = [{"attributes": {"PICKING_PROCESS_PATH": "ppMulti"},
	"associateProductivityList": [{"unitCount": 90, "timeMillis": 10800}]}];
</script>`)

	got, err := LPI(body)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "PPMULTI", got[0].ProcessPath)
	assert.Equal(t, 3.0, got[0].TimeHours)
}

func TestLPI_TopLevelAttributes(t *testing.T) {
	body := []byte(`filteredProductivityList = [{"attributes": {"PICKING_PROCESS_PATH": "pphovreserve"},
		"associateProductivityList": [{"unitCount": "10", "timeMillis": "1800"}]}];`)
	got, err := LPI(body)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "PPHOVRESERVE", got[0].ProcessPath)
	assert.Nil(t, got[0].PickArea)
	assert.Equal(t, 0.5, got[0].TimeHours)
	assert.Equal(t, 20.0, got[0].UnitsPerHour)
}

// =============================================================================
// Rodeo
// =============================================================================

func TestExtractAisleSlot(t *testing.T) {
	tests := []struct {
		id                string
		aisle, slot       int
		hasAisle, hasSlot bool
	}{
		{"P-1-A123B045", 123, 45, true, true},
		{"P-1-C200D101", 200, 101, true, true},
		{"P-1-A123", 123, 0, true, false},
		{"X-P-1-A123B045", 0, 0, false, false},
		{"P-2-A123B045", 0, 0, false, false},
		{"", 0, 0, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			aisle, ok := ExtractAisle(tt.id)
			assert.Equal(t, tt.hasAisle, ok)
			assert.Equal(t, tt.aisle, aisle)
			slot, ok := ExtractSlot(tt.id)
			assert.Equal(t, tt.hasSlot, ok)
			assert.Equal(t, tt.slot, slot)
		})
	}
}

const rodeoPage = `<html><body><table>
<thead><tr><th>Transfer Request ID</th><th>Need To Ship By Date</th><th>Process Path</th>
<th>Outer Scannable ID</th><th>Outer Outer Scannable ID</th><th>Quantity</th></tr></thead>
<tbody>
<tr><td>T2</td><td>2024-06-14 16:00:00</td><td>ppMulti</td><td>P-1-A123B045</td><td></td><td>3</td></tr>
<tr><td>T1</td><td>2024-06-14 14:00:00</td><td>ppHovReserve</td><td>tsX</td><td>P-1-B210C020</td><td>1</td></tr>
<tr><td>T3</td><td>2024-06-14 14:00:00</td><td>ppMulti</td><td>cart-9</td><td>bag</td><td>2</td></tr>
<tr><td>T4</td><td>soon</td><td>ppMulti</td><td>P-1-A999B001</td><td></td><td>1,000</td></tr>
</tbody></table></body></html>`

func TestRodeo_ParsesResolvesAndBuckets(t *testing.T) {
	catalog := &site.Catalog{Areas: []site.PickArea{
		{Name: "floor1", StartAisle: 100, EndAisle: 150, StartSlot: 0, EndSlot: 99},
		{Name: "overlap", StartAisle: 100, EndAisle: 300, StartSlot: 0, EndSlot: 99},
	}}
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	got, err := Rodeo([]byte(rodeoPage), catalog, loc)
	require.NoError(t, err)
	require.Len(t, got, 4)

	// Sorted by ship-by; equal timestamps keep document order.
	assert.Equal(t, []string{"T1", "T3", "T2", "T4"},
		[]string{got[0].TransferRequestID, got[1].TransferRequestID, got[2].TransferRequestID, got[3].TransferRequestID})

	hov := got[0]
	assert.Equal(t, CPTHOV, hov.CPT, "reserved path buckets to HOV regardless of ship-by")
	require.NotNil(t, hov.Aisle)
	require.NotNil(t, hov.Slot)
	assert.Equal(t, 210, *hov.Aisle, "secondary ID used when primary is absent")
	assert.Equal(t, 20, *hov.Slot)
	require.NotNil(t, hov.PickArea)
	assert.Equal(t, "OVERLAP", *hov.PickArea)

	none := got[1]
	assert.Nil(t, none.Aisle, "IDs without the location prefix have no aisle")
	assert.Nil(t, none.Slot)
	assert.Nil(t, none.PickArea)
	assert.Equal(t, NoCoordinate, none.Row()["aisle"], "table cells fill missing coordinates")
	assert.Equal(t, NoCoordinate, none.Row()["slot"])
	assert.Equal(t, "06-14 14:00", none.CPT)

	multi := got[2]
	assert.Equal(t, "PPMULTI", multi.ProcessPath)
	require.NotNil(t, multi.PickArea)
	assert.Equal(t, "FLOOR1", *multi.PickArea, "first matching interval wins")
	assert.Equal(t, 3.0, multi.Quantity)

	odd := got[3]
	assert.Equal(t, "soon", odd.CPT)
	assert.Equal(t, 1000.0, odd.Quantity)
	assert.Nil(t, odd.PickArea)

	assert.Equal(t, RodeoColumns, RodeoTable(got).Columns())
}

func TestRodeo_HeaderOnlyAndMissingColumns(t *testing.T) {
	got, err := Rodeo([]byte(`<table><tr><th>Process Path</th><th>Need To Ship By Date</th></tr></table>`), nil, nil)
	assert.NoError(t, err)
	assert.Empty(t, got)

	_, err = Rodeo([]byte(`<table><tr><th>Quantity</th></tr><tr><td>1</td></tr></table>`), nil, nil)
	assert.True(t, errors.Is(err, ErrMalformed))

	_, err = Rodeo([]byte(`<p>maintenance</p>`), nil, nil)
	assert.True(t, errors.Is(err, ErrMalformed))
}

func TestIsHOV(t *testing.T) {
	assert.True(t, IsHOV("PPHOVRESERVE_2"))
	assert.False(t, IsHOV("PPMULTI"))
}
