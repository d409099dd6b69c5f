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
	"bytes"
	"encoding/json"
	"regexp"

	"github.com/z-Vaughan/PickAssist/services/pickassist/table"
)

// ProductivityListVar is the script variable the portal embeds its
// productivity list in.
const ProductivityListVar = "filteredProductivityList"

// LPIColumns is the column order of the full LPI table.
var LPIColumns = []string{
	"process_path", "pick_area", "size_category", "container_type",
	"employee_id", "employee_name", "manager_id", "manager_name",
	"unit_count", "each_count", "time_millis", "time_hours", "units_per_hr",
}

// Attribute keys carried on each productivity process entry.
const (
	attrProcessPath   = "PICKING_PROCESS_PATH"
	attrPickArea      = "PICKING_PICK_AREA"
	attrSizeCategory  = "SIZE_CATEGORY"
	attrContainerType = "CONTAINER_TYPE"
)

// LPIRecord is one associate's productivity within one process path and
// pick area.
type LPIRecord struct {
	ProcessPath   string
	PickArea      *string
	SizeCategory  string
	ContainerType string
	EmployeeID    string
	EmployeeName  string
	ManagerID     string
	ManagerName   string
	UnitCount     float64
	EachCount     float64
	TimeMillis    float64

	// TimeHours is round(TimeMillis/3600, 2).
	TimeHours float64

	// UnitsPerHour is round(UnitCount/TimeHours, 2), 0 when TimeHours is 0.
	UnitsPerHour float64
}

// Row returns the record keyed by LPIColumns.
func (r LPIRecord) Row() table.Row {
	return table.Row{
		"process_path":   r.ProcessPath,
		"pick_area":      cell(r.PickArea),
		"size_category":  r.SizeCategory,
		"container_type": r.ContainerType,
		"employee_id":    r.EmployeeID,
		"employee_name":  r.EmployeeName,
		"manager_id":     r.ManagerID,
		"manager_name":   r.ManagerName,
		"unit_count":     r.UnitCount,
		"each_count":     r.EachCount,
		"time_millis":    r.TimeMillis,
		"time_hours":     r.TimeHours,
		"units_per_hr":   r.UnitsPerHour,
	}
}

// LPITable renders records as the full LPI table.
func LPITable(recs []LPIRecord) *table.Table {
	return rows(LPIColumns, recs)
}

// assignment ends at the opening bracket, so comparisons such as
// `filteredProductivityList == null` are skipped.
var assignment = regexp.MustCompile(ProductivityListVar + `\s*=\s*\[`)

type lpiProcess struct {
	ProcessName       string                `json:"processName"`
	Attributes        map[string]flexString `json:"attributes"`
	ProcessAttributes struct {
		Attributes map[string]flexString `json:"attributes"`
	} `json:"processAttributes"`
	AssociateProductivityList []lpiAssociate `json:"associateProductivityList"`
}

func (p lpiProcess) attr(name string) string {
	if v, ok := p.ProcessAttributes.Attributes[name]; ok {
		return string(v)
	}
	return string(p.Attributes[name])
}

type lpiAssociate struct {
	EmployeeID   flexString `json:"employeeId"`
	EmployeeName flexString `json:"employeeName"`
	ManagerID    flexString `json:"managerId"`
	ManagerName  flexString `json:"managerName"`
	UnitCount    flexNumber `json:"unitCount"`
	EachCount    flexNumber `json:"eachCount"`
	TimeMillis   flexNumber `json:"timeMillis"`
}

// LPI parses a productivity portal page that embeds
// `filteredProductivityList = [...];` in a script block. Both the intraday
// and the weekly feed use this format.
//
// A body without the assignment yields ErrPatternAbsent. The array is
// decoded up to its closing bracket, so semicolons inside string values do
// not truncate it.
func LPI(body []byte) ([]LPIRecord, error) {
	return guard("lpi", func() ([]LPIRecord, error) {
		loc := assignment.FindIndex(body)
		if loc == nil {
			return nil, ErrPatternAbsent
		}
		var procs []lpiProcess
		dec := json.NewDecoder(bytes.NewReader(body[loc[1]-1:]))
		if err := dec.Decode(&procs); err != nil {
			return nil, malformed("lpi", err)
		}

		var recs []LPIRecord
		for _, p := range procs {
			path := key(p.attr(attrProcessPath))
			area := optionalKey(p.attr(attrPickArea))
			for _, a := range p.AssociateProductivityList {
				hours := table.Round2(float64(a.TimeMillis) / 3600)
				rate := 0.0
				if hours > 0 {
					rate = table.Round2(float64(a.UnitCount) / hours)
				}
				recs = append(recs, LPIRecord{
					ProcessPath:   path,
					PickArea:      area,
					SizeCategory:  p.attr(attrSizeCategory),
					ContainerType: p.attr(attrContainerType),
					EmployeeID:    string(a.EmployeeID),
					EmployeeName:  string(a.EmployeeName),
					ManagerID:     string(a.ManagerID),
					ManagerName:   string(a.ManagerName),
					UnitCount:     float64(a.UnitCount),
					EachCount:     float64(a.EachCount),
					TimeMillis:    float64(a.TimeMillis),
					TimeHours:     hours,
					UnitsPerHour:  rate,
				})
			}
		}
		return recs, nil
	})
}
