// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noEnv(string) (string, bool) { return "", false }

func envOf(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestDefaultConfig_Validates(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}

func TestParse_OverlaysDefaults(t *testing.T) {
	yml := `
site:
  code: LGB8
  timezone: America/Los_Angeles
shift:
  start_hour: 18
  end_hour: 5
fetch:
  base_delay: 250ms
schedule:
  interval: 2m
`
	cfg, err := Parse([]byte(yml), noEnv)
	require.NoError(t, err)

	assert.Equal(t, "LGB8", cfg.Site.Code)
	assert.Equal(t, 18, cfg.Shift.StartHour)
	assert.Equal(t, 250*time.Millisecond, cfg.Fetch.BaseDelay)
	assert.Equal(t, 2*time.Minute, cfg.Schedule.Interval)
	assert.Equal(t, 3, cfg.Fetch.MaxAttempts, "untouched keys keep defaults")
	assert.Equal(t, time.Hour, cfg.Auth.FreshnessWindow)
}

func TestParse_EnvOverrides(t *testing.T) {
	cfg, err := Parse(nil, envOf(map[string]string{
		"PICKASSIST_SITE":        "BWI2",
		"PICKASSIST_ALIAS":       "jdoe",
		"PICKASSIST_SHIFT_START": "7",
		"PICKASSIST_INTERVAL":    "90s",
	}))
	require.NoError(t, err)

	assert.Equal(t, "BWI2", cfg.Site.Code)
	assert.Equal(t, "jdoe", cfg.Auth.Alias)
	assert.Equal(t, 7, cfg.Shift.StartHour)
	assert.Equal(t, 90*time.Second, cfg.Schedule.Interval)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yml  string
		env  map[string]string
	}{
		{"bad yaml", "site: [", nil},
		{"bad site code", "site:\n  code: nowhere\n", nil},
		{"bad timezone", "site:\n  timezone: Mars/Base\n", nil},
		{"hour out of range", "shift:\n  start_hour: 24\n", nil},
		{"zero attempts", "fetch:\n  max_attempts: 0\n", nil},
		{"bad log level", "logging:\n  level: chatty\n", nil},
		{"negative recent logs", "logging:\n  recent: -1\n", nil},
		{"influx without org", "influx:\n  enabled: true\n", nil},
		{"bad env int", "", map[string]string{"PICKASSIST_SHIFT_END": "late"}},
		{"bad env duration", "", map[string]string{"PICKASSIST_INTERVAL": "soon"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yml), envOf(tt.env))
			assert.Error(t, err)
		})
	}
}

func TestLoad_CreatesDefaultOnFirstRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "pickassist.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Site.Code, cfg.Site.Code)

	_, err = os.Stat(path)
	require.NoError(t, err, "default file should be written")

	again, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Schedule, again.Schedule)
}
