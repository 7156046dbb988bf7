// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/Thermoquad/elanbridge/pkg/elan"
	"github.com/spf13/cobra"
)

var (
	rawLogStats int
	rawLogHex   bool
)

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Display host link frames in human-readable format",
	Long: `Continuously decode and display the frames a bridge sends on its host link.

Status frames are shown zone by zone; error and diagnostic frames are shown
as their text. Bytes that do not fit the framing are reported as errors.

Supports both serial and WebSocket connections.`,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
	rawLogCmd.Flags().IntVar(&rawLogStats, "stats-interval", 0, "Print statistics every N seconds (0 disables)")
	rawLogCmd.Flags().BoolVar(&rawLogHex, "hex", false, "Also dump status payloads in hex")
}

func runRawLog(cmd *cobra.Command, args []string) error {
	// Open connection (serial or WebSocket)
	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	fmt.Printf("elanbridge - Host Link Log\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	decoder := elan.NewHostDecoder()
	stats := elan.NewStatistics()
	lastStats := time.Now()
	buf := make([]byte, 128)

	for {
		n, err := conn.Read(buf)
		if err != nil {
			// For WebSocket connections, a read error usually means
			// the connection is permanently closed - exit gracefully
			if errors.Is(err, ErrConnectionClosed) || errors.Is(err, io.EOF) {
				log.Printf("Connection closed")
				return nil
			}
			log.Printf("Read error: %v", err)
			continue
		}

		for i := 0; i < n; i++ {
			msg, err := decoder.DecodeByte(buf[i])
			if err != nil {
				stats.Update(nil, err)
				fmt.Printf("[ERROR] %v\n", err)
				continue
			}
			if msg == nil {
				continue
			}
			stats.Update(msg, nil)
			fmt.Print(elan.FormatHostMessage(msg))
			if rawLogHex && msg.Kind == elan.KindStatus {
				fmt.Print(elan.FormatPayload(msg.Frame[:]))
			}
		}

		if rawLogStats > 0 && time.Since(lastStats) >= time.Duration(rawLogStats)*time.Second {
			fmt.Print(stats.String())
			lastStats = time.Now()
		}
	}
}
