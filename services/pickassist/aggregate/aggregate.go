// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package aggregate computes the grouped summaries of each normalized
// source.
//
// Each source result carries its full table, its summary tables and any
// scalar rollups. Zero input records produce a result whose tables have
// their columns and no rows, and whose State is sources.Empty.
//
// Group rates are always load weighted: sum(units) / sum(hours). The
// arithmetic mean of row rates is kept only as the diagnostic mean_cph.
package aggregate

import (
	"sort"

	"github.com/z-Vaughan/PickAssist/services/pickassist/table"
)

// groupKey is a key-tuple prefix. Unused parts stay zero.
type groupKey struct {
	cpt  string
	path string
	area *string
}

func (k groupKey) id() string {
	area := "\x00"
	if k.area != nil {
		area = "\x01" + *k.area
	}
	return k.cpt + "\x1f" + k.path + "\x1f" + area
}

// less orders by cpt, path, then area with null areas first.
func (k groupKey) less(o groupKey) bool {
	if k.cpt != o.cpt {
		return k.cpt < o.cpt
	}
	if k.path != o.path {
		return k.path < o.path
	}
	switch {
	case k.area == nil:
		return o.area != nil
	case o.area == nil:
		return false
	default:
		return *k.area < *o.area
	}
}

// areaCell converts a nullable area for a table.Row.
func (k groupKey) areaCell() any {
	if k.area == nil {
		return nil
	}
	return *k.area
}

type bucket[T any] struct {
	key   groupKey
	items []T
}

// groupBy buckets records by key and returns the buckets in key order.
func groupBy[T any](recs []T, keyOf func(T) groupKey) []bucket[T] {
	index := make(map[string]int)
	var out []bucket[T]
	for _, r := range recs {
		k := keyOf(r)
		id := k.id()
		i, ok := index[id]
		if !ok {
			i = len(out)
			index[id] = i
			out = append(out, bucket[T]{key: k})
		}
		out[i].items = append(out[i].items, r)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].key.less(out[j].key) })
	return out
}

// ratio returns round(num/den, 2), or nil when den is not positive.
func ratio(num, den float64) any {
	if den <= 0 {
		return nil
	}
	return table.Round2(num / den)
}

// percent returns round(part/whole*100, 2), or nil for an empty whole.
func percent(part, whole int) any {
	if whole <= 0 {
		return nil
	}
	return table.Round2(float64(part) / float64(whole) * 100)
}

// add appends a summary row. Builders pass exactly one value per column,
// so Append cannot fail.
func add(t *table.Table, values ...any) {
	_ = t.Append(values...)
}
