// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package shift

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustCalc(t *testing.T, start, end int) *Calculator {
	t.Helper()
	c, err := NewCalculator("SAV7", "America/New_York", start, end, nil)
	require.NoError(t, err)
	return c
}

func TestCalculator_DayShift(t *testing.T) {
	c := mustCalc(t, 6, 18)
	now := time.Date(2024, 6, 14, 10, 30, 0, 0, c.Location())

	w := c.Window(now)

	assert.Equal(t, time.Date(2024, 6, 14, 6, 0, 0, 0, c.Location()), w.Start)
	assert.Equal(t, time.Date(2024, 6, 14, 18, 0, 0, 0, c.Location()), w.End)
	assert.InDelta(t, 4.5, w.ElapsedHours(), 1e-9)
	assert.InDelta(t, 7.5, w.RemainingHours(), 1e-9)
	assert.InDelta(t, 37.5, w.Progress(), 1e-9)
	assert.Equal(t, "SAV7", w.Site)
}

func TestCalculator_OvernightShift(t *testing.T) {
	c := mustCalc(t, 18, 6)
	now := time.Date(2024, 6, 14, 20, 0, 0, 0, c.Location())

	w := c.Window(now)

	assert.Equal(t, time.Date(2024, 6, 15, 6, 0, 0, 0, c.Location()), w.End)
	assert.Equal(t, 12*time.Hour, w.Total())
	assert.InDelta(t, 2, w.ElapsedHours(), 1e-9)
}

func TestCalculator_SameStartAndEndIsFullDay(t *testing.T) {
	c := mustCalc(t, 6, 6)
	w := c.Window(time.Date(2024, 6, 14, 7, 0, 0, 0, c.Location()))
	assert.Equal(t, 24*time.Hour, w.Total())
}

func TestCalculator_ConvertsNowToSiteZone(t *testing.T) {
	c := mustCalc(t, 6, 18)
	utc := time.Date(2024, 6, 14, 14, 30, 0, 0, time.UTC)

	w := c.Window(utc)

	assert.Equal(t, 10, w.Now.Hour())
	assert.InDelta(t, 4.5, w.ElapsedHours(), 1e-9)
}

func TestCalculator_CurrentUsesClock(t *testing.T) {
	fixed := time.Date(2024, 6, 14, 12, 0, 0, 0, time.UTC)
	c, err := NewCalculator("SAV7", "UTC", 6, 18, func() time.Time { return fixed })
	require.NoError(t, err)
	assert.True(t, c.Current().Now.Equal(fixed))
}

func TestNewCalculator_Errors(t *testing.T) {
	tests := []struct {
		name       string
		tz         string
		start, end int
	}{
		{"start too high", "UTC", 24, 6},
		{"end negative", "UTC", 6, -1},
		{"unknown zone", "Mars/Olympus", 6, 18},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCalculator("SAV7", tt.tz, tt.start, tt.end, nil)
			assert.Error(t, err)
		})
	}
}

func TestExcelMillis(t *testing.T) {
	tests := []struct {
		name string
		in   time.Time
		want int64
	}{
		{"unix epoch wall clock", time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC), 25260000},
		{"shift start", time.Date(2024, 6, 14, 6, 0, 0, 0, time.UTC), 1718370060000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExcelMillis(tt.in))
		})
	}
}

func TestExcelMillis_IgnoresZoneOffset(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	wallUTC := time.Date(2024, 6, 14, 6, 0, 0, 0, time.UTC)
	wallNY := time.Date(2024, 6, 14, 6, 0, 0, 0, ny)
	assert.Equal(t, ExcelMillis(wallUTC), ExcelMillis(wallNY))
}

func TestWindow_RangeMillis(t *testing.T) {
	c := mustCalc(t, 6, 18)
	w := c.Window(time.Date(2024, 6, 14, 10, 0, 0, 0, c.Location()))

	assert.Equal(t, ExcelMillis(time.Date(2024, 6, 14, 5, 0, 0, 0, time.UTC)), w.StartMillis())
	assert.Equal(t, ExcelMillis(time.Date(2024, 6, 15, 15, 0, 0, 0, time.UTC)), w.EndMillis())
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{26*time.Hour + 3*time.Minute, "1d 2h 3m"},
		{-90 * time.Minute, "-0d 1h 30m"},
		{0, "0d 0h 0m"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatDuration(tt.in))
		})
	}
}
