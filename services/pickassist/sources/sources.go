// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package sources names the five upstream feeds and builds their requests
// from a shift window.
package sources

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/z-Vaughan/PickAssist/services/pickassist/config"
	"github.com/z-Vaughan/PickAssist/services/pickassist/fetch"
	"github.com/z-Vaughan/PickAssist/services/pickassist/session"
	"github.com/z-Vaughan/PickAssist/services/pickassist/shift"
)

// Source names. They double as result keys in snapshots.
const (
	Workforce = "Workforce"
	Process   = "Process"
	LPI       = "LPI"
	LPIHist   = "LPI(Hist)"
	Rodeo     = "Rodeo"
)

// All lists every source in dispatch order.
var All = []string{Rodeo, LPI, LPIHist, Workforce, Process}

// Known reports whether name is one of the five sources.
func Known(name string) bool {
	for _, n := range All {
		if n == name {
			return true
		}
	}
	return false
}

// =============================================================================
// State
// =============================================================================

// State tags a source result as carrying rows or not.
type State int

const (
	// Empty means the source yielded no usable rows this cycle.
	Empty State = iota
	// Present means the source's top-level table has at least one row.
	Present
)

// StateOf returns Present for a positive row count.
func StateOf(rows int) State {
	if rows > 0 {
		return Present
	}
	return Empty
}

func (s State) String() string {
	if s == Present {
		return "present"
	}
	return "empty"
}

// MarshalText encodes the state as its name.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// =============================================================================
// Request building
// =============================================================================

const (
	lpiDateLayout = "2006/01/02"
	userAgent     = "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:109.0) Gecko/20100101 Firefox/115.0"
)

// Build returns the five fetch sources for one cycle.
//
// Workforce and Process hit the picking console and are auth-sensitive.
// LPI, LPI(Hist) and Rodeo are authenticated by the transport and are not.
func Build(w shift.Window, ep config.EndpointsConfig) []fetch.Source {
	console := consoleHeaders(ep.ConsoleHost, w.Site)
	return []fetch.Source{
		{Name: Rodeo, Request: get(RodeoURL(w, ep), nil)},
		{Name: LPI, Request: get(LPIURL(w, ep), nil)},
		{Name: LPIHist, Request: get(LPIHistURL(w, ep), nil)},
		{Name: Workforce, Request: get(WorkforceURL(ep, w.Site), console), AuthSensitive: true},
		{Name: Process, Request: get(ProcessURL(ep, w.Site), console), AuthSensitive: true},
	}
}

// ProbeRequest is the cheap authenticated call used to test the session.
func ProbeRequest(ep config.EndpointsConfig, site string) session.Request {
	return get(WorkforceURL(ep, site), consoleHeaders(ep.ConsoleHost, site))
}

// BrowserTarget is the console page a browser refresh loads to collect
// cookies.
func BrowserTarget(ep config.EndpointsConfig, site string) string {
	return fmt.Sprintf("https://%s/fc/%s/pick-workforce", ep.ConsoleHost, site)
}

// WorkforceURL returns the console picker-status endpoint.
func WorkforceURL(ep config.EndpointsConfig, site string) string {
	return fmt.Sprintf("https://%s/api/fcs/%s/workforce", ep.ConsoleHost, site)
}

// ProcessURL returns the console process-path endpoint.
func ProcessURL(ep config.EndpointsConfig, site string) string {
	return fmt.Sprintf("https://%s/api/fcs/%s/process-paths/information", ep.ConsoleHost, site)
}

// LPIURL returns the intraday productivity query for the shift window.
func LPIURL(w shift.Window, ep config.EndpointsConfig) string {
	q := lpiBase(w.Site, ep.ProcessID)
	q.Set("spanType", "Intraday")
	q.Set("startDateIntraday", w.Start.Format(lpiDateLayout))
	q.Set("startHourIntraday", strconv.Itoa(w.Start.Hour()))
	q.Set("startMinuteIntraday", strconv.Itoa(w.Start.Minute()))
	q.Set("endDateIntraday", w.End.Format(lpiDateLayout))
	q.Set("endHourIntraday", strconv.Itoa(w.End.Hour()))
	q.Set("endMinuteIntraday", strconv.Itoa(w.End.Minute()))
	return withQuery(ep.ProductivityURL, q)
}

// LPIHistURL returns the weekly productivity query starting seven days
// before the shift.
func LPIHistURL(w shift.Window, ep config.EndpointsConfig) string {
	q := lpiBase(w.Site, ep.ProcessID)
	q.Set("spanType", "Week")
	q.Set("startDateWeek", w.Start.AddDate(0, 0, -7).Format(lpiDateLayout))
	return withQuery(ep.ProductivityURL, q)
}

func lpiBase(site, processID string) url.Values {
	q := url.Values{}
	q.Set("primaryAttribute", "WORK_FLOW")
	q.Set("secondaryAttribute", "PICKING_PROCESS_PATH")
	q.Set("nodeType", "FC")
	q.Set("warehouseId", site)
	q.Set("processId", processID)
	q.Set("maxIntradayDays", "1")
	return q
}

// RodeoURL returns the not-yet-picked item list export for the window's
// ship-by range.
func RodeoURL(w shift.Window, ep config.EndpointsConfig) string {
	q := url.Values{}
	for _, k := range []string{
		"ShipmentId", "ChargeRange.RangeStartMillis", "ChargeRange.RangeEndMillis",
		"ScannableId", "ShipMethod", "EulerGroupType", "FcSku", "NextDestination",
		"ShipOption", "FnSku", "Condition", "LastExSDRange.RangeStartMillis",
		"LastExSDRange.RangeEndMillis", "PickBatchId", "SortCode",
		"DestinationWarehouseId", "ProcessPath", "OuterContainerType",
		"PickPriority", "FulfillmentReferenceId",
	} {
		q.Set(k, "")
	}
	for _, k := range []string{
		"IsEulerPromiseMiss", "GiftOption", "Fracs", "IsReactiveTransfer",
		"IsEulerUpgraded", "FulfillmentServiceClass", "IsEulerExSDMiss",
	} {
		q.Set(k, "ALL")
	}
	q.Set("WorkPool", "PickingNotYetPicked")
	q.Set("shipmentType", "TRANSSHIPMENTS")
	q.Set("Excel", "true")
	q.Set("_enabledColumns", "on")
	q["DwellTimeLessThan"] = []string{"0", ""}
	q["DwellTimeGreaterThan"] = []string{"0", ""}
	q.Set("ExSDRange.RangeStartMillis", strconv.FormatInt(w.StartMillis(), 10))
	q.Set("ExSDRange.RangeEndMillis", strconv.FormatInt(w.EndMillis(), 10))
	q["enabledColumns"] = []string{"OUTER_SCANNABLE_ID", "OUTER_OUTER_SCANNABLE_ID"}

	base := strings.TrimRight(ep.ItemListURL, "/") + "/" + w.Site + "/ItemListCSV"
	return withQuery(base, q)
}

func withQuery(base string, q url.Values) string {
	base = strings.TrimRight(base, "?")
	return base + "?" + q.Encode()
}

func get(u string, headers map[string]string) session.Request {
	return session.Request{Method: http.MethodGet, URL: u, Headers: headers}
}

// consoleHeaders is the header profile the picking console expects from
// its own front end.
func consoleHeaders(host, site string) map[string]string {
	return map[string]string{
		"Accept":          "application/json",
		"Accept-Language": "en-US,en;q=0.5",
		"Content-Type":    "application/json",
		"Host":            host,
		"Referer":         fmt.Sprintf("https://%s/fc/%s", host, site),
		"Sec-Fetch-Dest":  "empty",
		"Sec-Fetch-Mode":  "cors",
		"Sec-Fetch-Site":  "same-origin",
		"User-Agent":      userAgent,
	}
}
