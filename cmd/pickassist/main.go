// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command pickassist keeps a reconciled view of a warehouse shift's
// progress and serves it over HTTP.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "v0.3.1"

var (
	configPath string
	logLevel   string

	rootCmd = &cobra.Command{
		Use:   "pickassist",
		Short: "Live shift progress for a pick floor",
		Long: `PickAssist pulls workforce, process-path, labor productivity and
outstanding-demand feeds, reconciles them by process path and pick area,
and keeps the latest merged view available to dashboards.`,
		SilenceUsage: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default ~/.pickassist/pickassist.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level (debug, info, warn, error)")

	catalogCmd.AddCommand(catalogValidateCmd)
	rootCmd.AddCommand(serveCmd, onceCmd, catalogCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
