// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation provides input validation for values that end up in
// upstream URLs, storage keys, or measurement tags.
//
// Site codes are interpolated into console and report URLs; process paths
// arrive from HTTP path parameters and become Influx tags. Both are checked
// against a closed alphabet before use.
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// sitePattern matches warehouse site codes such as SAV7 or LGB10.
var sitePattern = regexp.MustCompile(`^[A-Z]{3}[0-9]{1,2}$`)

// processPathPattern matches upper-cased process path names such as
// PPTRANSSHIP or PPHOVRESERVE.
var processPathPattern = regexp.MustCompile(`^[A-Z0-9][A-Z0-9_\-]{0,63}$`)

// ValidateSiteCode validates a site code.
//
// Valid codes are three uppercase letters followed by one or two digits.
//
// Example:
//
//	if err := validation.ValidateSiteCode(site); err != nil {
//	    return fmt.Errorf("config: %w", err)
//	}
func ValidateSiteCode(site string) error {
	if site == "" {
		return fmt.Errorf("site code cannot be empty")
	}
	if !sitePattern.MatchString(site) {
		return fmt.Errorf("invalid site code: %q (must be 3 uppercase letters and 1-2 digits)", site)
	}
	return nil
}

// SanitizeSiteCode upper-cases and trims a site code, then validates it.
func SanitizeSiteCode(site string) (string, error) {
	normalized := strings.ToUpper(strings.TrimSpace(site))
	if err := ValidateSiteCode(normalized); err != nil {
		return "", err
	}
	return normalized, nil
}

// ValidateProcessPath validates an upper-cased process path name.
func ValidateProcessPath(path string) error {
	if path == "" {
		return fmt.Errorf("process path cannot be empty")
	}
	if !processPathPattern.MatchString(path) {
		return fmt.Errorf("invalid process path: %q", path)
	}
	return nil
}

// SanitizeProcessPath normalizes a process path the same way every
// normalizer does (trim, upper-case) and validates the result.
func SanitizeProcessPath(path string) (string, error) {
	normalized := strings.ToUpper(strings.TrimSpace(path))
	if err := ValidateProcessPath(normalized); err != nil {
		return "", err
	}
	return normalized, nil
}
