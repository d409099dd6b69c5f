// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package site

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/z-Vaughan/PickAssist/pkg/logging"
)

const sampleCatalog = `
site: SAV7
pick_areas:
  - name: p1-low
    start_aisle: 100
    end_aisle: 130
    start_slot: 0
    end_slot: 99
  - name: P1-HIGH
    start_aisle: 100
    end_aisle: 130
    start_slot: 100
    end_slot: 300
  - name: overlap
    start_aisle: 120
    end_aisle: 140
    start_slot: 0
    end_slot: 300
`

func TestParseCatalog(t *testing.T) {
	c, err := ParseCatalog([]byte(sampleCatalog))
	require.NoError(t, err)
	assert.Equal(t, "SAV7", c.Site)
	assert.Len(t, c.Areas, 3)
}

func TestCatalog_Lookup(t *testing.T) {
	c, err := ParseCatalog([]byte(sampleCatalog))
	require.NoError(t, err)

	tests := []struct {
		name   string
		aisle  int
		slot   int
		want   string
		wantOK bool
	}{
		{"low slot upper-cased", 123, 45, "P1-LOW", true},
		{"high slot", 101, 150, "P1-HIGH", true},
		{"inclusive bounds", 130, 300, "P1-HIGH", true},
		{"overlap resolves to first listed", 125, 10, "P1-LOW", true},
		{"only overlap area", 135, 10, "OVERLAP", true},
		{"unmatched", 500, 1, "", false},
		{"missing aisle", -1, 10, "", false},
		{"missing slot", 120, -1, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := c.Lookup(tt.aisle, tt.slot)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCatalog_LookupNil(t *testing.T) {
	var c *Catalog
	_, ok := c.Lookup(1, 1)
	assert.False(t, ok)
}

func TestCatalog_Overlaps(t *testing.T) {
	c, err := ParseCatalog([]byte(sampleCatalog))
	require.NoError(t, err)
	assert.Equal(t, [][2]string{{"p1-low", "overlap"}, {"P1-HIGH", "overlap"}}, c.Overlaps())
}

func TestParseCatalog_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"not yaml", "pick_areas: [:"},
		{"missing name", "pick_areas:\n  - start_aisle: 1\n    end_aisle: 2\n"},
		{"inverted aisles", "pick_areas:\n  - name: A\n    start_aisle: 5\n    end_aisle: 2\n"},
		{"inverted slots", "pick_areas:\n  - name: A\n    start_slot: 5\n    end_slot: 2\n"},
		{"bad site", "site: nowhere\n"},
		{"duplicate names", "pick_areas:\n  - name: A\n  - name: a\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCatalog([]byte(tt.yaml))
			assert.True(t, errors.Is(err, ErrInvalidCatalog), "got %v", err)
		})
	}
}

func TestLoadCatalog_MissingFile(t *testing.T) {
	_, err := LoadCatalog(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	defer goleak.VerifyNone(t)

	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleCatalog), 0o644))

	w, err := NewWatcher(path, logging.Nop())
	require.NoError(t, err)
	defer w.Close()

	require.Len(t, w.Current().Areas, 3)

	updated := "site: SAV7\npick_areas:\n  - name: only\n    start_aisle: 1\n    end_aisle: 2\n"
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o644))

	assert.Eventually(t, func() bool {
		return len(w.Current().Areas) == 1
	}, 5*time.Second, 20*time.Millisecond)
}

func TestWatcher_KeepsPreviousOnInvalidReload(t *testing.T) {
	defer goleak.VerifyNone(t)

	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleCatalog), 0o644))

	w, err := NewWatcher(path, logging.Nop())
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(path, []byte("pick_areas: [:"), 0o644))
	time.Sleep(200 * time.Millisecond)

	assert.Len(t, w.Current().Areas, 3)
}
