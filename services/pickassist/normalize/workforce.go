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

	"github.com/z-Vaughan/PickAssist/services/pickassist/table"
)

// WorkforceColumns is the column order of the full Workforce table.
var WorkforceColumns = []string{
	"employee_id", "user_id", "aa_name", "manager_name", "process_path",
	"pick_area", "active", "batch_id", "batch_earlier_exsd", "pick_location",
	"last_activity", "last_seen_time", "last_container",
}

// WorkforceRecord is one picker's status row.
type WorkforceRecord struct {
	EmployeeID       string
	UserID           string
	Name             string
	Manager          string
	ProcessPath      string
	PickArea         *string
	Active           bool
	BatchID          string
	BatchEarlierExSD string
	Location         string
	LastActivity     string
	LastSeenTime     string
	LastContainer    string
}

// Row returns the record keyed by WorkforceColumns.
func (r WorkforceRecord) Row() table.Row {
	return table.Row{
		"employee_id":        r.EmployeeID,
		"user_id":            r.UserID,
		"aa_name":            r.Name,
		"manager_name":       r.Manager,
		"process_path":       r.ProcessPath,
		"pick_area":          cell(r.PickArea),
		"active":             r.Active,
		"batch_id":           r.BatchID,
		"batch_earlier_exsd": r.BatchEarlierExSD,
		"pick_location":      r.Location,
		"last_activity":      r.LastActivity,
		"last_seen_time":     r.LastSeenTime,
		"last_container":     r.LastContainer,
	}
}

// WorkforceTable renders records as the full Workforce table.
func WorkforceTable(recs []WorkforceRecord) *table.Table {
	return rows(WorkforceColumns, recs)
}

type workforceBody struct {
	PickerStatusList []pickerStatus `json:"pickerStatusList"`
}

type pickerStatus struct {
	Active           flexBool   `json:"active"`
	BatchEarlierExSD flexString `json:"batchEarlierExSD"`
	BatchID          flexString `json:"batchId"`
	EmployeeID       flexString `json:"employeeId"`
	LastActivityTime flexString `json:"lastActivityTime"`
	LastContainerID  flexString `json:"lastContainerId"`
	LastSeenTime     flexString `json:"lastSeenTime"`
	Location         flexString `json:"location"`
	Manager          flexString `json:"manager"`
	Name             flexString `json:"name"`
	PickArea         flexString `json:"pickArea"`
	ProcessPath      flexString `json:"processPath"`
	UserID           flexString `json:"userId"`
}

// Workforce parses the console picker-status body
// {"pickerStatusList": [...]}, one record per picker.
func Workforce(body []byte) ([]WorkforceRecord, error) {
	return guard("workforce", func() ([]WorkforceRecord, error) {
		if isBlank(body) {
			return nil, nil
		}
		var wire workforceBody
		if err := json.Unmarshal(body, &wire); err != nil {
			return nil, malformed("workforce", err)
		}
		recs := make([]WorkforceRecord, 0, len(wire.PickerStatusList))
		for _, p := range wire.PickerStatusList {
			recs = append(recs, WorkforceRecord{
				EmployeeID:       string(p.EmployeeID),
				UserID:           string(p.UserID),
				Name:             string(p.Name),
				Manager:          string(p.Manager),
				ProcessPath:      key(string(p.ProcessPath)),
				PickArea:         optionalKey(string(p.PickArea)),
				Active:           bool(p.Active),
				BatchID:          string(p.BatchID),
				BatchEarlierExSD: string(p.BatchEarlierExSD),
				Location:         string(p.Location),
				LastActivity:     string(p.LastActivityTime),
				LastSeenTime:     string(p.LastSeenTime),
				LastContainer:    string(p.LastContainerID),
			})
		}
		if len(recs) == 0 {
			return nil, nil
		}
		return recs, nil
	})
}
