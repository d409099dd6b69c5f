// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"context"
	"fmt"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/z-Vaughan/PickAssist/services/pickassist/table"
)

// Measurement names.
const (
	ShiftMeasurement   = "shift_progress"
	ProcessMeasurement = "process_progress"
)

// InfluxConfig configures the progress writer.
type InfluxConfig struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

// InfluxWriter records per-cycle progress points.
type InfluxWriter struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
}

// NewInfluxWriter creates a client and checks server health.
func NewInfluxWriter(ctx context.Context, cfg InfluxConfig) (*InfluxWriter, error) {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	health, err := client.Health(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("influx health: %w", err)
	}
	if health.Status != "pass" {
		msg := string(health.Status)
		if health.Message != nil {
			msg = *health.Message
		}
		client.Close()
		return nil, fmt.Errorf("influx not ready: %s", msg)
	}
	return &InfluxWriter{client: client, writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket)}, nil
}

// NewInfluxWriterWithAPI wraps an existing write API.
func NewInfluxWriterWithAPI(w api.WriteAPIBlocking) *InfluxWriter {
	return &InfluxWriter{writeAPI: w}
}

// Name implements Persister.
func (w *InfluxWriter) Name() string { return "influx" }

// Persist writes one shift point and one point per process-level row.
func (w *InfluxWriter) Persist(ctx context.Context, snap *Snapshot) error {
	points := Points(snap)
	if len(points) == 0 {
		return nil
	}
	if err := w.writeAPI.WritePoint(ctx, points...); err != nil {
		return fmt.Errorf("influx write: %w", err)
	}
	return nil
}

// Close closes the client.
func (w *InfluxWriter) Close() {
	if w.client != nil {
		w.client.Close()
	}
}

// Points converts a snapshot into influx points stamped with the cycle's
// reference time.
func Points(snap *Snapshot) []*write.Point {
	ts := snap.GeneratedAt
	fields := map[string]interface{}{
		"elapsed_hours":    snap.Shift.ElapsedHours,
		"remaining_hours":  snap.Shift.RemainingHours,
		"progress_percent": snap.Shift.Progress,
		"missing_sources":  len(snap.Missing),
	}
	if r := snap.Sources.Rodeo; r != nil {
		fields["all_picks_rem"] = r.Picks.All
		fields["hov_picks_rem"] = r.Picks.HOV
		fields["non_hov_picks_rem"] = r.Picks.NonHOV
	}
	if wf := snap.Sources.Workforce; wf != nil {
		fields["total_headcount"] = wf.Headcounts.Total
		fields["active_headcount"] = wf.Headcounts.Active
	}
	if l := snap.Sources.LPI; l != nil {
		fields["combined_rate"] = l.Combined.Rate
		fields["combined_vol"] = l.Combined.Volume
		fields["combined_hrs"] = l.Combined.Hours
	}
	points := []*write.Point{influxdb2.NewPoint(ShiftMeasurement,
		map[string]string{"site": snap.Shift.Site, "branch": snap.Branch.String()},
		fields, ts)}

	pl := snap.CombinedData.ProcessLevel
	if pl == nil {
		return points
	}
	for _, row := range pl.Rows() {
		path, _ := row["process_path"].(string)
		if path == "" {
			continue
		}
		tags := map[string]string{"site": snap.Shift.Site, "process_path": path}
		if cpt, ok := row["cpt"].(string); ok && cpt != "" {
			tags["cpt"] = cpt
		}
		rowFields := make(map[string]interface{})
		for _, col := range pl.Columns() {
			switch v := row[col].(type) {
			case bool:
				rowFields[col] = v
			default:
				if n, ok := table.Number(v); ok {
					rowFields[col] = n
				}
			}
		}
		if len(rowFields) == 0 {
			continue
		}
		points = append(points, influxdb2.NewPoint(ProcessMeasurement, tags, rowFields, ts))
	}
	return points
}
