// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"

	"github.com/Thermoquad/elanbridge/pkg/elan"
	"github.com/spf13/cobra"
)

var (
	deltaAll bool
)

var deltaCmd = &cobra.Command{
	Use:   "delta <capture>",
	Short: "Show bit changes between consecutive status frames",
	Long: `Read a capture written by the record command and print, for every status
frame, which payload bits changed since the previous one.

Each row shows the byte offset, the new value in hex and binary, a marker
line with '-' under every changed bit, and the old value. Unchanged bytes
are skipped unless --all is given. Error frames are printed as text.`,
	Args: cobra.ExactArgs(1),
	RunE: runDelta,
}

func init() {
	rootCmd.AddCommand(deltaCmd)
	deltaCmd.Flags().BoolVar(&deltaAll, "all", false, "Show unchanged bytes too")
}

func runDelta(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	records, err := elan.ReadRecords(f)
	if err != nil && len(records) == 0 {
		return err
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v (showing %d records)\n", err, len(records))
	}

	var prev []byte
	for _, rec := range records {
		msg, err := rec.Message()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Skipping record: %v\n", err)
			continue
		}
		timestamp := msg.Timestamp.Format("15:04:05.000")

		if msg.Kind == elan.KindError {
			fmt.Printf("[%s] %s %q\n", timestamp, msg.Kind, msg.Text)
			continue
		}

		cur := msg.Frame[:]
		if prev == nil {
			fmt.Printf("[%s] first frame\n", timestamp)
			fmt.Print(elan.FormatStatus(msg.Status()))
		} else {
			delta := elan.FormatDelta(prev, cur, deltaAll)
			if delta == "" {
				fmt.Printf("[%s] no change\n", timestamp)
			} else {
				fmt.Printf("[%s]\n%s", timestamp, delta)
			}
		}
		prev = append(prev[:0], cur...)
	}
	return nil
}
