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
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/z-Vaughan/PickAssist/services/pickassist/store"
)

var (
	onceOutput string
	oncePretty bool

	onceCmd = &cobra.Command{
		Use:   "once",
		Short: "Run a single reconciliation cycle and print the result as JSON",
		RunE:  runOnce,
	}
)

func init() {
	onceCmd.Flags().StringVarP(&onceOutput, "output", "o", "", "write the result to this file instead of stdout")
	onceCmd.Flags().BoolVar(&oncePretty, "pretty", false, "indent the JSON output")
}

func runOnce(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	rt, err := newRuntime(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	snap, err := rt.pipeline.RunCycle(cmd.Context())
	if err != nil {
		return err
	}

	var out io.Writer = cmd.OutOrStdout()
	if onceOutput != "" {
		f, err := os.Create(onceOutput)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		out = f
	}
	return writeSnapshot(out, snap, oncePretty)
}

func writeSnapshot(w io.Writer, snap *store.Snapshot, pretty bool) error {
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(snap)
}
