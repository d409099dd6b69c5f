// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package shift computes the shift time window a fetch cycle runs against.
//
// One Window is computed per cycle and shared read-only by every component
// of that cycle, so all CPT and hours-remaining derivations agree on "now".
package shift

import (
	"fmt"
	"time"
)

// Clock returns the current instant. Tests substitute a fixed clock.
type Clock func() time.Time

// Window is the shift time window for one cycle.
//
// All instants are in Location. Now is the single reference time of the
// cycle.
type Window struct {
	Site     string
	Location *time.Location
	Start    time.Time
	End      time.Time
	Now      time.Time
}

// Total returns the shift length.
func (w Window) Total() time.Duration { return w.End.Sub(w.Start) }

// Elapsed returns the time since shift start. Negative before the shift.
func (w Window) Elapsed() time.Duration { return w.Now.Sub(w.Start) }

// Remaining returns the time until shift end. Negative after the shift.
func (w Window) Remaining() time.Duration { return w.End.Sub(w.Now) }

// ElapsedHours returns Elapsed in fractional hours.
func (w Window) ElapsedHours() float64 { return w.Elapsed().Hours() }

// RemainingHours returns Remaining in fractional hours.
func (w Window) RemainingHours() float64 { return w.Remaining().Hours() }

// Progress returns the elapsed fraction of the shift as a percentage.
func (w Window) Progress() float64 {
	total := w.Total().Seconds()
	if total <= 0 {
		return 0
	}
	return w.Elapsed().Seconds() / total * 100
}

// StartMillis is the lower bound of the ship-by range queried from the
// item list report: one hour before shift start.
func (w Window) StartMillis() int64 { return ExcelMillis(w.Start.Add(-time.Hour)) }

// EndMillis is the upper bound of the ship-by range: 21 hours after shift end.
func (w Window) EndMillis() int64 { return ExcelMillis(w.End.Add(21 * time.Hour)) }

// =============================================================================
// Calculator
// =============================================================================

// Calculator builds Windows for a site's configured shift hours.
type Calculator struct {
	site      string
	startHour int
	endHour   int
	loc       *time.Location
	clock     Clock
}

// NewCalculator returns a Calculator for a site.
//
// # Inputs
//
//   - site: site code, already validated.
//   - timezone: IANA zone name such as "America/New_York".
//   - startHour, endHour: shift hours in 24-hour form (0-23).
//   - clock: time source; nil means time.Now.
//
// # Outputs
//
//   - *Calculator: ready to use.
//   - error: unknown timezone or hour out of range.
func NewCalculator(site, timezone string, startHour, endHour int, clock Clock) (*Calculator, error) {
	if startHour < 0 || startHour > 23 || endHour < 0 || endHour > 23 {
		return nil, fmt.Errorf("shift hours must be 0-23, got %d-%d", startHour, endHour)
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", timezone, err)
	}
	if clock == nil {
		clock = time.Now
	}
	return &Calculator{site: site, startHour: startHour, endHour: endHour, loc: loc, clock: clock}, nil
}

// Location returns the site timezone.
func (c *Calculator) Location() *time.Location { return c.loc }

// Current computes the Window for the calculator's clock.
func (c *Calculator) Current() Window { return c.Window(c.clock()) }

// Window computes the shift window containing now.
//
// # Description
//
// Start is today's start hour in the site zone. End is today's end hour,
// rolled to the next day when it is not after Start, so overnight shifts
// such as 18-6 span midnight. A shift is never longer than 24 hours.
//
// # Limitations
//
// The window is anchored on the calendar day of now. For an overnight
// shift, after midnight the window is the one starting that evening.
func (c *Calculator) Window(now time.Time) Window {
	now = now.In(c.loc)
	y, m, d := now.Date()
	start := time.Date(y, m, d, c.startHour, 0, 0, 0, c.loc)
	end := time.Date(y, m, d, c.endHour, 0, 0, 0, c.loc)
	if !end.After(start) {
		end = end.AddDate(0, 0, 1)
	}
	if end.Sub(start) > 24*time.Hour {
		end = end.AddDate(0, 0, -1)
	}
	return Window{Site: c.site, Location: c.loc, Start: start, End: end, Now: now}
}

// =============================================================================
// Helpers
// =============================================================================

// excelEpoch is the spreadsheet serial-date origin.
var excelEpoch = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)

// excelOffsetMillis is the fixed offset the item list report subtracts from
// serial-date milliseconds.
const excelOffsetMillis = 2209136340000

// ExcelMillis converts a wall-clock time to the millisecond form the item
// list report expects in its ship-by range parameters.
//
// The conversion uses the wall clock of t (its zone offset is ignored):
// whole seconds since 1899-12-30 00:00 times 1000, minus excelOffsetMillis.
func ExcelMillis(t time.Time) int64 {
	wall := time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, time.UTC)
	secs := int64(wall.Sub(excelEpoch) / time.Second)
	return secs*1000 - excelOffsetMillis
}

// FormatDuration renders d as "1d 2h 3m", with a leading minus when negative.
func FormatDuration(d time.Duration) string {
	neg := d < 0
	if neg {
		d = -d
	}
	total := int64(d / time.Second)
	days := total / 86400
	hours := (total % 86400) / 3600
	minutes := (total % 3600) / 60
	s := fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	if neg {
		return "-" + s
	}
	return s
}
