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
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/z-Vaughan/PickAssist/services/pickassist/site"
	"github.com/z-Vaughan/PickAssist/services/pickassist/table"
)

// RodeoColumns is the column order of the full Rodeo table.
var RodeoColumns = []string{
	"transfer_request_id", "destination_warehouse", "need_to_ship_by_date",
	"process_path", "scannable_id", "o_scannable_id", "o_o_scannable_id",
	"quantity", "dwell_time(hours)", "aisle", "slot", "pick_area", "cpt",
}

// Item list export headers.
const (
	colTransferRequestID    = "Transfer Request ID"
	colDestinationWarehouse = "Destination Warehouse"
	colShipBy               = "Need To Ship By Date"
	colProcessPath          = "Process Path"
	colScannableID          = "Scannable ID"
	colOuterScannableID     = "Outer Scannable ID"
	colOuterOuterScannable  = "Outer Outer Scannable ID"
	colQuantity             = "Quantity"
	colDwellTime            = "Dwell Time (hours)"
)

const (
	// ShipByLayout is the export's ship-by timestamp format.
	ShipByLayout = "2006-01-02 15:04:05"

	// CPTLayout formats a ship-by instant into its CPT bucket.
	CPTLayout = "01-02 15:04"

	// CPTHOV is the bucket every reserved high-priority record lands in.
	CPTHOV = "HOV"

	// NoCoordinate fills the aisle and slot table cells of a record whose
	// coordinate could not be extracted.
	NoCoordinate = -1

	locationPrefix = "P-1-"
)

var (
	aislePattern = regexp.MustCompile(`P-1-[A-Z](\d{3})`)
	slotPattern  = regexp.MustCompile(`P-1-[A-Z]\d{3}[A-Z](\d{2,3})`)

	errNoTable = errors.New("no table in document")
)

// RodeoRecord is one outstanding pick.
type RodeoRecord struct {
	TransferRequestID     string
	DestinationWarehouse  string
	NeedToShipBy          string
	ProcessPath           string
	ScannableID           string
	OuterScannableID      string
	OuterOuterScannableID string
	Quantity              float64
	DwellHours            float64

	// Aisle and Slot are nil when neither scannable ID yields one.
	Aisle *int
	Slot  *int

	// PickArea is nil when no catalog area contains (Aisle, Slot).
	PickArea *string

	// CPT is "MM-DD HH:MM" in site time, or CPTHOV.
	CPT string
}

// Row returns the record keyed by RodeoColumns.
func (r RodeoRecord) Row() table.Row {
	return table.Row{
		"transfer_request_id":   r.TransferRequestID,
		"destination_warehouse": r.DestinationWarehouse,
		"need_to_ship_by_date":  r.NeedToShipBy,
		"process_path":          r.ProcessPath,
		"scannable_id":          r.ScannableID,
		"o_scannable_id":        r.OuterScannableID,
		"o_o_scannable_id":      r.OuterOuterScannableID,
		"quantity":              r.Quantity,
		"dwell_time(hours)":     r.DwellHours,
		"aisle":                 coordinateCell(r.Aisle),
		"slot":                  coordinateCell(r.Slot),
		"pick_area":             cell(r.PickArea),
		"cpt":                   r.CPT,
	}
}

// RodeoTable renders records as the full Rodeo table.
func RodeoTable(recs []RodeoRecord) *table.Table {
	return rows(RodeoColumns, recs)
}

// Rodeo parses the item list HTML export.
//
// # Description
//
// The first <table> is read; its first row names the columns. Aisle and
// slot come from the outer scannable ID, each falling back to the outer
// outer scannable ID independently. The pick area is the first catalog
// interval containing the coordinates. The CPT bucket is the ship-by time
// formatted in loc; reserved high-priority paths bucket to CPTHOV. A ship-by
// value that does not parse is kept verbatim as its own bucket. Records are
// returned sorted by ship-by.
//
// # Inputs
//
//   - catalog: may be nil, leaving every pick area null.
//   - loc: site time zone. nil means UTC.
func Rodeo(body []byte, catalog *site.Catalog, loc *time.Location) ([]RodeoRecord, error) {
	return guard("rodeo", func() ([]RodeoRecord, error) {
		if isBlank(body) {
			return nil, nil
		}
		if loc == nil {
			loc = time.UTC
		}
		grid, err := parseTable(body)
		if err != nil {
			return nil, malformed("rodeo", err)
		}
		if len(grid) < 2 {
			return nil, nil
		}

		index := make(map[string]int, len(grid[0]))
		for i, h := range grid[0] {
			index[h] = i
		}
		for _, required := range []string{colProcessPath, colShipBy} {
			if _, ok := index[required]; !ok {
				return nil, malformed("rodeo", fmt.Errorf("missing column %q", required))
			}
		}
		get := func(row []string, col string) string {
			i, ok := index[col]
			if !ok || i >= len(row) {
				return ""
			}
			return row[i]
		}

		recs := make([]RodeoRecord, 0, len(grid)-1)
		for _, row := range grid[1:] {
			outer := get(row, colOuterScannableID)
			outerOuter := get(row, colOuterOuterScannable)
			rec := RodeoRecord{
				TransferRequestID:     get(row, colTransferRequestID),
				DestinationWarehouse:  get(row, colDestinationWarehouse),
				NeedToShipBy:          get(row, colShipBy),
				ProcessPath:           key(get(row, colProcessPath)),
				ScannableID:           get(row, colScannableID),
				OuterScannableID:      outer,
				OuterOuterScannableID: outerOuter,
				Quantity:              parseNumber(get(row, colQuantity)),
				DwellHours:            parseNumber(get(row, colDwellTime)),
				Aisle:                 coalesce(ExtractAisle, outer, outerOuter),
				Slot:                  coalesce(ExtractSlot, outer, outerOuter),
			}
			if rec.Aisle != nil && rec.Slot != nil {
				if name, ok := catalog.Lookup(*rec.Aisle, *rec.Slot); ok {
					rec.PickArea = &name
				}
			}
			rec.CPT = cptBucket(rec.NeedToShipBy, rec.ProcessPath, loc)
			recs = append(recs, rec)
		}
		sort.SliceStable(recs, func(i, j int) bool {
			return recs[i].NeedToShipBy < recs[j].NeedToShipBy
		})
		return recs, nil
	})
}

// ExtractAisle returns the 3-digit aisle of a P-1- location ID. ok is
// false for any other ID.
func ExtractAisle(id string) (aisle int, ok bool) {
	return extract(aislePattern, id)
}

// ExtractSlot returns the 2-3 digit slot of a P-1- location ID. ok is
// false for any other ID.
func ExtractSlot(id string) (slot int, ok bool) {
	return extract(slotPattern, id)
}

func extract(re *regexp.Regexp, id string) (int, bool) {
	if !strings.HasPrefix(id, locationPrefix) {
		return 0, false
	}
	m := re.FindStringSubmatch(id)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// coalesce returns the first ID's coordinate that extracts, or nil.
func coalesce(extractFn func(string) (int, bool), ids ...string) *int {
	for _, id := range ids {
		if n, ok := extractFn(id); ok {
			return &n
		}
	}
	return nil
}

func coordinateCell(p *int) int {
	if p == nil {
		return NoCoordinate
	}
	return *p
}

func cptBucket(shipBy, processPath string, loc *time.Location) string {
	if IsHOV(processPath) {
		return CPTHOV
	}
	t, err := time.ParseInLocation(ShipByLayout, strings.TrimSpace(shipBy), loc)
	if err != nil {
		return strings.TrimSpace(shipBy)
	}
	return t.Format(CPTLayout)
}

func parseNumber(s string) float64 {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

// =============================================================================
// HTML table extraction
// =============================================================================

// parseTable returns the text grid of the first <table> in body, one slice
// per <tr>. Rows of nested tables are not included.
func parseTable(body []byte) ([][]string, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	tbl := findElement(doc, atom.Table)
	if tbl == nil {
		return nil, errNoTable
	}

	var grid [][]string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode {
				continue
			}
			switch c.DataAtom {
			case atom.Table:
				continue
			case atom.Tr:
				grid = append(grid, rowCells(c))
			default:
				walk(c)
			}
		}
	}
	walk(tbl)
	return grid, nil
}

func findElement(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, a); found != nil {
			return found
		}
	}
	return nil
}

func rowCells(tr *html.Node) []string {
	var cells []string
	for c := tr.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && (c.DataAtom == atom.Td || c.DataAtom == atom.Th) {
			cells = append(cells, strings.Join(strings.Fields(textOf(c)), " "))
		}
	}
	return cells
}

func textOf(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		b.WriteString(textOf(c))
		b.WriteByte(' ')
	}
	return b.String()
}
