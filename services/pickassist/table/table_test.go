// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package table

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func build(t *testing.T, cols []string, rows ...[]any) *Table {
	t.Helper()
	tb := New(cols...)
	for _, r := range rows {
		require.NoError(t, tb.Append(r...))
	}
	return tb
}

func TestAppend_TooManyValues(t *testing.T) {
	tb := New("a")
	assert.Error(t, tb.Append(1, 2))
	require.NoError(t, tb.Append())
	assert.Nil(t, tb.Rows()[0]["a"])
}

func TestLeftJoin_KeepsLeftOrderAndNullsUnmatched(t *testing.T) {
	left := build(t, []string{"process_path", "total_cases"},
		[]any{"PPB", 4}, []any{"PPA", 2}, []any{"PPC", 1})
	right := build(t, []string{"process_path", "total_pickers"},
		[]any{"PPA", 3}, []any{"PPB", 5})

	got, err := LeftJoin(left, right, "process_path")
	require.NoError(t, err)

	want := []Row{
		{"process_path": "PPB", "total_cases": 4, "total_pickers": 5},
		{"process_path": "PPA", "total_cases": 2, "total_pickers": 3},
		{"process_path": "PPC", "total_cases": 1, "total_pickers": nil},
	}
	if diff := cmp.Diff(want, got.Rows()); diff != "" {
		t.Errorf("LeftJoin rows mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []string{"process_path", "total_cases", "total_pickers"}, got.Columns())
}

func TestLeftJoin_SuffixesCollidingColumns(t *testing.T) {
	left := build(t, []string{"process_path", "active_percent"}, []any{"PPA", 50.0})
	right := build(t, []string{"process_path", "active_percent"}, []any{"PPA", 75.0})

	got, err := LeftJoin(left, right, "process_path")
	require.NoError(t, err)

	assert.Equal(t, []string{"process_path", "active_percent", "active_percent_right"}, got.Columns())
	assert.Equal(t, 75.0, got.Rows()[0]["active_percent_right"])
}

func TestLeftJoin_NullKeysNeverMatch(t *testing.T) {
	left := build(t, []string{"cpt", "process_path", "pick_area", "n"},
		[]any{"06-14 14:00", "PPA", nil, 5}, []any{"06-14 14:00", "PPA", "P1", 2})
	right := build(t, []string{"process_path", "pick_area", "area_hc"},
		[]any{"PPA", nil, 7}, []any{"PPA", "P1", 9})

	got, err := LeftJoin(left, right, "process_path", "pick_area")
	require.NoError(t, err)
	require.Equal(t, 2, got.Len())
	assert.Nil(t, got.Rows()[0]["area_hc"], "null pick_area must stay unmatched")
	assert.Equal(t, 5, got.Rows()[0]["n"])
	assert.Equal(t, 9, got.Rows()[1]["area_hc"])
}

func TestLeftJoin_DuplicateRightRowsMultiply(t *testing.T) {
	left := build(t, []string{"k"}, []any{"A"})
	right := build(t, []string{"k", "v"}, []any{"A", 1}, []any{"A", 2})

	got, err := LeftJoin(left, right, "k")
	require.NoError(t, err)
	assert.Equal(t, 2, got.Len())
}

func TestLeftJoin_EmptyRightKeepsColumns(t *testing.T) {
	left := build(t, []string{"process_path"}, []any{"PPA"})
	right := New("process_path", "historical_cph")

	got, err := LeftJoin(left, right, "process_path")
	require.NoError(t, err)
	assert.True(t, got.HasColumn("historical_cph"))
	assert.Nil(t, got.Rows()[0]["historical_cph"])
}

func TestLeftJoin_MissingKeyIsJoinError(t *testing.T) {
	left := New("process_path")
	right := New("other")

	_, err := LeftJoin(left, right, "process_path")
	assert.True(t, errors.Is(err, ErrJoin))

	_, err = LeftJoin(nil, right, "x")
	assert.True(t, errors.Is(err, ErrJoin))
}

func TestWithConstantAndColumn(t *testing.T) {
	tb := build(t, []string{"a"}, []any{1.0}, []any{2.0})

	withC := tb.WithConstant("b", 0)
	assert.Equal(t, []string{"a", "b"}, withC.Columns())
	assert.False(t, tb.HasColumn("b"), "original must not change")

	doubled := withC.WithColumn("a", func(r Row) any { return NumberOr(r["a"], 0) * 2 })
	assert.Equal(t, []string{"a", "b"}, doubled.Columns())
	assert.Equal(t, 4.0, doubled.Rows()[1]["a"])
	assert.Equal(t, 2.0, withC.Rows()[1]["a"])
}

func TestFilter(t *testing.T) {
	tb := build(t, []string{"a"}, []any{1}, []any{2}, []any{3})
	got := tb.Filter(func(r Row) bool { return NumberOr(r["a"], 0) > 1 })
	assert.Equal(t, 2, got.Len())
}

func TestSelectAndRename(t *testing.T) {
	tb := build(t, []string{"process_path", "mean_cph", "avg_cph"}, []any{"PPA", 10.0, 12.5})

	sel, err := tb.Select("process_path", "avg_cph")
	require.NoError(t, err)
	hist := sel.Rename("avg_cph", "historical_cph")

	assert.Equal(t, []string{"process_path", "historical_cph"}, hist.Columns())
	assert.Equal(t, Row{"process_path": "PPA", "historical_cph": 12.5}, hist.Rows()[0])
	assert.Equal(t, []string{"process_path", "avg_cph"}, sel.Columns(), "rename must copy")

	_, err = tb.Select("missing")
	assert.Error(t, err)
}

func TestMarshalJSON_EmptyTable(t *testing.T) {
	data, err := json.Marshal(New("cpt", "total_cases"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"columns":["cpt","total_cases"],"rows":[]}`, string(data))
}

func TestMarshalJSON_RoundTrip(t *testing.T) {
	tb := build(t, []string{"cpt", "total_cases"}, []any{"06-14 14:00", 3})
	data, err := json.Marshal(tb)
	require.NoError(t, err)

	var back Table
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, tb.Columns(), back.Columns())
	assert.Equal(t, 3.0, back.Rows()[0]["total_cases"])
}

func TestNumber(t *testing.T) {
	f := 2.5
	var nilPtr *float64
	tests := []struct {
		name string
		in   any
		want float64
		ok   bool
	}{
		{"float", 1.5, 1.5, true},
		{"int", 3, 3, true},
		{"int64", int64(4), 4, true},
		{"pointer", &f, 2.5, true},
		{"nil pointer", nilPtr, 0, false},
		{"nil", nil, 0, false},
		{"string", "7", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Number(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRound2(t *testing.T) {
	assert.Equal(t, 55.0, Round2(110.0/2))
	assert.Equal(t, 0.33, Round2(1.0/3))
	assert.Equal(t, 2.68, Round2(2.675000001))
}
