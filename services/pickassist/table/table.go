// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package table is the small column-ordered tabular core the aggregator and
// reconciler exchange.
//
// A Table has an ordered column list and rows keyed by column name. A nil
// cell is a null. A Table with columns and zero rows is a valid empty table
// and is what every degraded path returns; a nil *Table is never handed out.
package table

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
)

// ErrJoin reports a join that cannot be performed, such as a key column
// absent from one side.
var ErrJoin = errors.New("join failed")

// RightSuffix is appended to right-hand non-key columns that collide with
// a left-hand column during LeftJoin.
const RightSuffix = "_right"

// Row maps column name to cell value.
type Row map[string]any

// Table is an ordered set of columns and rows.
type Table struct {
	columns []string
	rows    []Row
}

// New returns an empty table with the given columns.
func New(columns ...string) *Table {
	return &Table{columns: slices.Clone(columns)}
}

// Columns returns a copy of the column order.
func (t *Table) Columns() []string { return slices.Clone(t.columns) }

// Rows returns the rows. Callers must not mutate them.
func (t *Table) Rows() []Row { return t.rows }

// Len returns the row count.
func (t *Table) Len() int { return len(t.rows) }

// IsEmpty reports whether the table has no rows.
func (t *Table) IsEmpty() bool { return len(t.rows) == 0 }

// HasColumn reports whether name is one of the table's columns.
func (t *Table) HasColumn(name string) bool { return slices.Contains(t.columns, name) }

// Append adds a row given values in column order. Missing trailing values
// are null; extra values are an error.
func (t *Table) Append(values ...any) error {
	if len(values) > len(t.columns) {
		return fmt.Errorf("append: %d values for %d columns", len(values), len(t.columns))
	}
	row := make(Row, len(t.columns))
	for i, c := range t.columns {
		if i < len(values) {
			row[c] = values[i]
		} else {
			row[c] = nil
		}
	}
	t.rows = append(t.rows, row)
	return nil
}

// AppendRow adds a row by name. Columns absent from r become null and keys
// not in the column list are dropped.
func (t *Table) AppendRow(r Row) {
	row := make(Row, len(t.columns))
	for _, c := range t.columns {
		row[c] = r[c]
	}
	t.rows = append(t.rows, row)
}

// Clone returns a copy with independent rows.
func (t *Table) Clone() *Table {
	out := New(t.columns...)
	out.rows = make([]Row, len(t.rows))
	for i, r := range t.rows {
		nr := make(Row, len(r))
		for k, v := range r {
			nr[k] = v
		}
		out.rows[i] = nr
	}
	return out
}

// WithConstant returns a copy with column name set to v on every row. An
// existing column keeps its position and is overwritten.
func (t *Table) WithConstant(name string, v any) *Table {
	return t.WithColumn(name, func(Row) any { return v })
}

// WithColumn returns a copy with column name computed per row by fn. fn sees
// the row as it stands before the new column is written.
func (t *Table) WithColumn(name string, fn func(Row) any) *Table {
	out := t.Clone()
	if !out.HasColumn(name) {
		out.columns = append(out.columns, name)
	}
	for _, r := range out.rows {
		r[name] = fn(r)
	}
	return out
}

// Filter returns a copy holding the rows for which keep returns true.
func (t *Table) Filter(keep func(Row) bool) *Table {
	out := New(t.columns...)
	for _, r := range t.rows {
		if keep(r) {
			out.AppendRow(r)
		}
	}
	return out
}

// Select returns a copy holding only the named columns, in that order.
func (t *Table) Select(columns ...string) (*Table, error) {
	for _, c := range columns {
		if !t.HasColumn(c) {
			return nil, fmt.Errorf("select: no column %q", c)
		}
	}
	out := New(columns...)
	for _, r := range t.rows {
		out.AppendRow(r)
	}
	return out, nil
}

// Rename returns a copy with column from renamed to. Renaming an absent
// column is a no-op copy.
func (t *Table) Rename(from, to string) *Table {
	out := t.Clone()
	i := slices.Index(out.columns, from)
	if i < 0 || from == to {
		return out
	}
	out.columns[i] = to
	for _, r := range out.rows {
		r[to] = r[from]
		delete(r, from)
	}
	return out
}

// MarshalJSON encodes the table as {"columns": [...], "rows": [...]}.
// Rows are always an array, never null.
func (t *Table) MarshalJSON() ([]byte, error) {
	rows := t.rows
	if rows == nil {
		rows = []Row{}
	}
	return json.Marshal(struct {
		Columns []string `json:"columns"`
		Rows    []Row    `json:"rows"`
	}{Columns: t.columnsOrEmpty(), Rows: rows})
}

// UnmarshalJSON reverses MarshalJSON. Numbers decode as float64.
func (t *Table) UnmarshalJSON(data []byte) error {
	var wire struct {
		Columns []string `json:"columns"`
		Rows    []Row    `json:"rows"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	t.columns = wire.Columns
	t.rows = nil
	for _, r := range wire.Rows {
		t.AppendRow(r)
	}
	return nil
}

func (t *Table) columnsOrEmpty() []string {
	if t.columns == nil {
		return []string{}
	}
	return t.columns
}

// =============================================================================
// Joins
// =============================================================================

// LeftJoin joins right onto left by equality on keys.
//
// # Description
//
// Every left row is kept in order. Each matching right row produces one
// output row; a left row with no match gets nulls for every right column.
// Right non-key columns whose name is already a left column are renamed
// with RightSuffix. A null key cell never matches, so a left row with a
// null key is emitted unmatched.
//
// # Outputs
//
//   - *Table: left columns followed by right non-key columns.
//   - error: wraps ErrJoin when a key column is absent from either side.
func LeftJoin(left, right *Table, keys ...string) (*Table, error) {
	if left == nil || right == nil {
		return nil, fmt.Errorf("%w: nil table", ErrJoin)
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("%w: no join keys", ErrJoin)
	}
	for _, k := range keys {
		if !left.HasColumn(k) {
			return nil, fmt.Errorf("%w: left table has no column %q", ErrJoin, k)
		}
		if !right.HasColumn(k) {
			return nil, fmt.Errorf("%w: right table has no column %q", ErrJoin, k)
		}
	}

	type mapping struct{ from, to string }
	var extra []mapping
	columns := left.Columns()
	for _, c := range right.columns {
		if slices.Contains(keys, c) {
			continue
		}
		to := c
		if slices.Contains(columns, c) {
			to = c + RightSuffix
		}
		extra = append(extra, mapping{from: c, to: to})
		columns = append(columns, to)
	}

	index := make(map[string][]Row, len(right.rows))
	for _, r := range right.rows {
		if k, ok := joinKey(r, keys); ok {
			index[k] = append(index[k], r)
		}
	}

	out := New(columns...)
	for _, l := range left.rows {
		var matches []Row
		if k, ok := joinKey(l, keys); ok {
			matches = index[k]
		}
		if len(matches) == 0 {
			row := make(Row, len(columns))
			for k, v := range l {
				row[k] = v
			}
			for _, m := range extra {
				row[m.to] = nil
			}
			out.rows = append(out.rows, row)
			continue
		}
		for _, r := range matches {
			row := make(Row, len(columns))
			for k, v := range l {
				row[k] = v
			}
			for _, m := range extra {
				row[m.to] = r[m.from]
			}
			out.rows = append(out.rows, row)
		}
	}
	return out, nil
}

// joinKey reports false when any key cell is null.
func joinKey(r Row, keys []string) (string, bool) {
	var b strings.Builder
	for i, k := range keys {
		v := r[k]
		if v == nil {
			return "", false
		}
		if i > 0 {
			b.WriteByte(0x1f)
		}
		fmt.Fprint(&b, v)
	}
	return b.String(), true
}

// =============================================================================
// Cell helpers
// =============================================================================

// Number reads a numeric cell. ok is false for null and non-numeric cells.
func Number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case *float64:
		if n == nil {
			return 0, false
		}
		return *n, true
	default:
		return 0, false
	}
}

// NumberOr reads a numeric cell, falling back to def for null or
// non-numeric cells.
func NumberOr(v any, def float64) float64 {
	if f, ok := Number(v); ok {
		return f
	}
	return def
}

// Round2 rounds half away from zero to two decimals.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
