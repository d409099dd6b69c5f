// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package sources

import (
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/z-Vaughan/PickAssist/services/pickassist/config"
	"github.com/z-Vaughan/PickAssist/services/pickassist/shift"
)

func testWindow(t *testing.T) shift.Window {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	now := time.Date(2024, 6, 14, 10, 30, 0, 0, loc)
	calc, err := shift.NewCalculator("SAV7", "America/New_York", 6, 18, func() time.Time { return now })
	require.NoError(t, err)
	return calc.Current()
}

func query(t *testing.T, raw string) url.Values {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u.Query()
}

func TestBuild_NamesAndAuthSensitivity(t *testing.T) {
	got := Build(testWindow(t), config.DefaultConfig().Endpoints)
	require.Len(t, got, len(All))

	auth := map[string]bool{}
	for i, s := range got {
		assert.Equal(t, All[i], s.Name)
		assert.Equal(t, "GET", s.Request.Method)
		auth[s.Name] = s.AuthSensitive
	}
	assert.Equal(t, map[string]bool{
		Rodeo: false, LPI: false, LPIHist: false, Workforce: true, Process: true,
	}, auth)
}

func TestConsoleURLsAndHeaders(t *testing.T) {
	ep := config.DefaultConfig().Endpoints
	w := testWindow(t)

	got := Build(w, ep)
	wf := got[3]
	assert.Equal(t, "https://picking-console.na.picking.aft.a2z.com/api/fcs/SAV7/workforce", wf.Request.URL)
	assert.Equal(t, "https://picking-console.na.picking.aft.a2z.com/api/fcs/SAV7/process-paths/information", got[4].Request.URL)
	assert.Equal(t, "application/json", wf.Request.Headers["Accept"])
	assert.Equal(t, "https://picking-console.na.picking.aft.a2z.com/fc/SAV7", wf.Request.Headers["Referer"])
	assert.Equal(t, "picking-console.na.picking.aft.a2z.com", wf.Request.Headers["Host"])
	assert.Nil(t, got[0].Request.Headers)

	assert.Equal(t, wf.Request, ProbeRequest(ep, "SAV7"))
	assert.Equal(t, "https://picking-console.na.picking.aft.a2z.com/fc/SAV7/pick-workforce", BrowserTarget(ep, "SAV7"))
}

func TestLPIURL_IntradayWindow(t *testing.T) {
	q := query(t, LPIURL(testWindow(t), config.DefaultConfig().Endpoints))

	assert.Equal(t, "Intraday", q.Get("spanType"))
	assert.Equal(t, "SAV7", q.Get("warehouseId"))
	assert.Equal(t, "100115", q.Get("processId"))
	assert.Equal(t, "PICKING_PROCESS_PATH", q.Get("secondaryAttribute"))
	assert.Equal(t, "2024/06/14", q.Get("startDateIntraday"))
	assert.Equal(t, "6", q.Get("startHourIntraday"))
	assert.Equal(t, "0", q.Get("startMinuteIntraday"))
	assert.Equal(t, "2024/06/14", q.Get("endDateIntraday"))
	assert.Equal(t, "18", q.Get("endHourIntraday"))
}

func TestLPIHistURL_WeekSpan(t *testing.T) {
	raw := LPIHistURL(testWindow(t), config.DefaultConfig().Endpoints)
	assert.Contains(t, raw, "https://fclm-portal.amazon.com/ppa/inspect/process?")

	q := query(t, raw)
	assert.Equal(t, "Week", q.Get("spanType"))
	assert.Equal(t, "2024/06/07", q.Get("startDateWeek"))
	assert.Empty(t, q.Get("startDateIntraday"))
}

func TestRodeoURL_ShipByRange(t *testing.T) {
	w := testWindow(t)
	raw := RodeoURL(w, config.DefaultConfig().Endpoints)
	assert.Contains(t, raw, "http://rodeo-iad.amazon.com:80/SAV7/ItemListCSV?")

	q := query(t, raw)
	assert.Equal(t, "PickingNotYetPicked", q.Get("WorkPool"))
	assert.Equal(t, "TRANSSHIPMENTS", q.Get("shipmentType"))
	assert.Equal(t, []string{"0", ""}, q["DwellTimeLessThan"])
	assert.Equal(t, []string{"OUTER_SCANNABLE_ID", "OUTER_OUTER_SCANNABLE_ID"}, q["enabledColumns"])
	assert.Equal(t, strconv.FormatInt(w.StartMillis(), 10), q.Get("ExSDRange.RangeStartMillis"))
	assert.Equal(t, strconv.FormatInt(w.EndMillis(), 10), q.Get("ExSDRange.RangeEndMillis"))
	assert.Equal(t, "ALL", q.Get("Fracs"))
}

func TestStateOf(t *testing.T) {
	assert.Equal(t, Empty, StateOf(0))
	assert.Equal(t, Present, StateOf(3))

	text, err := Present.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "present", string(text))
	assert.Equal(t, "empty", Empty.String())
}

func TestKnown(t *testing.T) {
	assert.True(t, Known("LPI(Hist)"))
	assert.False(t, Known("lpi"))
}
