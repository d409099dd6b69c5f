// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/mod/semver"
)

var (
	versionCheck bool

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version, optionally checking for a newer release",
		RunE:  runVersion,
	}
)

func init() {
	versionCmd.Flags().BoolVar(&versionCheck, "check", false, "compare against the configured latest-version file")
}

func runVersion(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "pickassist %s\n", version)
	if !versionCheck {
		return nil
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.VersionFile == "" {
		return fmt.Errorf("version_file is not configured")
	}
	data, err := os.ReadFile(expandHome(cfg.VersionFile))
	if err != nil {
		return fmt.Errorf("read version file: %w", err)
	}
	latest, newer, err := compareVersions(version, string(data))
	if err != nil {
		return err
	}
	if newer {
		fmt.Fprintf(out, "a newer version is available: %s\n", latest)
	} else {
		fmt.Fprintln(out, "up to date")
	}
	return nil
}

// compareVersions reports whether latest is newer than current. A missing
// "v" prefix is tolerated on either side.
func compareVersions(current, latest string) (string, bool, error) {
	cur := canonicalVersion(current)
	lat := canonicalVersion(latest)
	if !semver.IsValid(lat) {
		return "", false, fmt.Errorf("latest version %q is not a semantic version", strings.TrimSpace(latest))
	}
	if !semver.IsValid(cur) {
		return lat, true, nil
	}
	return lat, semver.Compare(lat, cur) > 0, nil
}

func canonicalVersion(v string) string {
	v = strings.TrimSpace(v)
	if v != "" && !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return v
}
