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
	"io"

	"github.com/spf13/cobra"

	"github.com/z-Vaughan/PickAssist/services/pickassist/site"
)

var (
	catalogCmd = &cobra.Command{
		Use:   "catalog",
		Short: "Inspect pick-area catalogs",
	}
	catalogValidateCmd = &cobra.Command{
		Use:   "validate [catalog.yaml]",
		Short: "Validate a pick-area catalog and report overlapping areas",
		Long: `Checks bounds, names and the site code of a catalog file. Overlapping
areas are allowed, but the first listed area wins, so they are reported.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := site.LoadCatalog(args[0])
			if err != nil {
				return err
			}
			reportCatalog(cmd.OutOrStdout(), c)
			return nil
		},
	}
)

func reportCatalog(w io.Writer, c *site.Catalog) {
	fmt.Fprintf(w, "site %s: %d pick areas OK\n", c.Site, len(c.Areas))
	for _, pair := range c.Overlaps() {
		fmt.Fprintf(w, "  overlap: %s and %s (%s wins)\n", pair[0], pair[1], pair[0])
	}
}
