// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package normalize parses each source's raw wire format into typed records.
//
// # Contract
//
// Every parser is pure and total: it never panics past its own boundary. On
// empty input it returns no records and a nil error. On malformed input it
// returns no records and an error wrapping ErrMalformed (or ErrPatternAbsent
// for LPI bodies without the embedded list). Callers treat both as the
// source's empty sentinel; the error is for logging only.
//
// Keys used for joins (process path, pick area) are upper-cased here and
// nowhere else.
package normalize

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/z-Vaughan/PickAssist/services/pickassist/table"
)

var (
	// ErrMalformed means the body could not be parsed into records.
	ErrMalformed = errors.New("malformed source body")

	// ErrPatternAbsent means an LPI body did not contain the embedded
	// productivity list. Usually the shift has no labor yet or the
	// portal served a login page.
	ErrPatternAbsent = errors.New("productivity list not found")
)

// HOVPattern marks the reserved high-priority process path.
const HOVPattern = "PPHOVRESERVE"

// IsHOV reports whether an upper-cased process path is the reserved
// high-priority path.
func IsHOV(processPath string) bool {
	return strings.Contains(processPath, HOVPattern)
}

// guard runs fn and converts a panic into an ErrMalformed error.
func guard[T any](source string, fn func() ([]T, error)) (out []T, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = fmt.Errorf("%w: %s: panic: %v", ErrMalformed, source, r)
		}
	}()
	return fn()
}

func malformed(source string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrMalformed, source, err)
}

func isBlank(body []byte) bool {
	return len(bytes.TrimSpace(body)) == 0
}

// key upper-cases and trims a join key.
func key(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// optionalKey returns nil for a blank key.
func optionalKey(s string) *string {
	k := key(s)
	if k == "" {
		return nil
	}
	return &k
}

// cell converts a nullable string for storage in a table.Row. A nil
// pointer must become an untyped nil so joins see a null.
func cell(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

// rows converts records into a table with the given columns.
func rows[T interface{ Row() table.Row }](columns []string, recs []T) *table.Table {
	t := table.New(columns...)
	for _, r := range recs {
		t.AppendRow(r.Row())
	}
	return t
}

// =============================================================================
// Lenient wire types
// =============================================================================

// flexString accepts a JSON string, number, bool or null. Upstream feeds
// are not consistent about quoting identifiers.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*f = ""
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
	default:
		*f = flexString(data)
	}
	return nil
}

// flexNumber accepts a JSON number, a numeric string or null (zero).
type flexNumber float64

func (f *flexNumber) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = 0
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*f = 0
			return nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("not a number: %q", s)
		}
		*f = flexNumber(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = flexNumber(v)
	return nil
}

// flexBool accepts a JSON bool, "true"/"false" strings, 0/1 or null.
type flexBool bool

func (f *flexBool) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.ToLower(string(bytes.TrimSpace(data))), `"`)
	switch s {
	case "true", "1":
		*f = true
	case "false", "0", "null", "":
		*f = false
	default:
		return fmt.Errorf("not a bool: %s", data)
	}
	return nil
}
