// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package site holds the pick-area boundary catalog of a warehouse site.
//
// A pick area is a rectangle in (aisle, slot) space. The catalog is read
// from YAML, validated, and consulted read-only by the item list normalizer.
package site

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/z-Vaughan/PickAssist/pkg/validation"
)

// ErrInvalidCatalog wraps every catalog validation failure.
var ErrInvalidCatalog = errors.New("invalid pick-area catalog")

var validate = validator.New()

// PickArea is one named aisle/slot rectangle. Bounds are inclusive.
type PickArea struct {
	Name       string `yaml:"name" json:"name" validate:"required"`
	StartAisle int    `yaml:"start_aisle" json:"start_aisle" validate:"gte=0"`
	EndAisle   int    `yaml:"end_aisle" json:"end_aisle" validate:"gtefield=StartAisle"`
	StartSlot  int    `yaml:"start_slot" json:"start_slot" validate:"gte=0"`
	EndSlot    int    `yaml:"end_slot" json:"end_slot" validate:"gtefield=StartSlot"`
}

// Contains reports whether (aisle, slot) lies inside the area.
func (p PickArea) Contains(aisle, slot int) bool {
	return aisle >= p.StartAisle && aisle <= p.EndAisle &&
		slot >= p.StartSlot && slot <= p.EndSlot
}

// Catalog is the ordered list of pick areas for a site.
//
// Order matters: Lookup returns the first area containing a coordinate, so
// overlapping areas resolve to whichever is listed first.
type Catalog struct {
	Site  string     `yaml:"site" json:"site"`
	Areas []PickArea `yaml:"pick_areas" json:"pick_areas" validate:"dive"`
}

// Lookup returns the upper-cased name of the first area containing
// (aisle, slot). Negative coordinates never match.
func (c *Catalog) Lookup(aisle, slot int) (string, bool) {
	if c == nil || aisle < 0 || slot < 0 {
		return "", false
	}
	for _, a := range c.Areas {
		if a.Contains(aisle, slot) {
			return strings.ToUpper(a.Name), true
		}
	}
	return "", false
}

// Validate checks field bounds, the site code, and duplicate names.
func (c *Catalog) Validate() error {
	if c.Site != "" {
		if err := validation.ValidateSiteCode(c.Site); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
		}
	}
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}
	seen := make(map[string]struct{}, len(c.Areas))
	for _, a := range c.Areas {
		key := strings.ToUpper(a.Name)
		if _, dup := seen[key]; dup {
			return fmt.Errorf("%w: duplicate pick area %q", ErrInvalidCatalog, a.Name)
		}
		seen[key] = struct{}{}
	}
	return nil
}

// Overlaps lists pairs of areas whose rectangles intersect. Overlaps are
// legal but make Lookup order-dependent, so the CLI reports them.
func (c *Catalog) Overlaps() [][2]string {
	var out [][2]string
	for i := 0; i < len(c.Areas); i++ {
		for j := i + 1; j < len(c.Areas); j++ {
			a, b := c.Areas[i], c.Areas[j]
			if a.StartAisle <= b.EndAisle && b.StartAisle <= a.EndAisle &&
				a.StartSlot <= b.EndSlot && b.StartSlot <= a.EndSlot {
				out = append(out, [2]string{a.Name, b.Name})
			}
		}
	}
	return out
}

// ParseCatalog decodes and validates catalog YAML.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// LoadCatalog reads and validates a catalog file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	c, err := ParseCatalog(data)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return c, nil
}
