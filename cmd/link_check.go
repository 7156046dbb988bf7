// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/Thermoquad/elanbridge/pkg/elan"
	"github.com/spf13/cobra"
)

var linkCheckDuration int

var linkCheckCmd = &cobra.Command{
	Use:   "link_check",
	Short: "Test host link stability",
	Long: `Test a host link connection without sending any commands.

This command connects, then listens for the given duration, logging every
chunk received and counting the frames decoded from it. Useful for
debugging connection stability through a hub.

Exit codes:
  0 - Test completed normally
  1 - Test failed
  2 - Connection error`,
	RunE: runLinkCheck,
}

func init() {
	rootCmd.AddCommand(linkCheckCmd)
	linkCheckCmd.Flags().IntVar(&linkCheckDuration, "duration", 30, "Test duration in seconds")
}

func runLinkCheck(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	fmt.Printf("Host Link Stability Test\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Duration: %d seconds\n\n", linkCheckDuration)

	readChan := make(chan []byte, 100)
	errChan := make(chan error, 1)

	go func() {
		buf := make([]byte, 256)
		for {
			n, err := conn.Read(buf)
			if err != nil {
				errChan <- err
				return
			}
			if n > 0 {
				readChan <- append([]byte(nil), buf[:n]...)
			}
		}
	}()

	start := time.Now()
	endTime := start.Add(time.Duration(linkCheckDuration) * time.Second)
	decoder := elan.NewHostDecoder()
	stats := elan.NewStatistics()
	bytesReceived := 0
	chunksReceived := 0

	results := func(result string) {
		stats.CalculateRates()
		fmt.Printf("\n--- Test Results ---\n")
		fmt.Printf("Duration: %v\n", time.Since(start).Round(time.Millisecond))
		fmt.Printf("Chunks received: %d\n", chunksReceived)
		fmt.Printf("Bytes received: %d\n", bytesReceived)
		fmt.Printf("Status frames: %d (%d changes)\n", stats.StatusFrames, stats.StatusChanges)
		fmt.Printf("Error frames: %d\n", stats.ErrorMessages)
		fmt.Printf("Framing errors: %d\n", stats.FramingErrors+stats.OverflowErrors)
		fmt.Printf("Result: %s\n", result)
	}

	fmt.Printf("Listening for data...\n\n")

	for time.Now().Before(endTime) {
		select {
		case data := <-readChan:
			bytesReceived += len(data)
			chunksReceived++
			fmt.Printf("[%s] Received %d bytes: %x\n",
				time.Now().Format("15:04:05.000"), len(data), data)
			for _, b := range data {
				msg, err := decoder.DecodeByte(b)
				if err != nil || msg != nil {
					stats.Update(msg, err)
				}
			}

		case err := <-errChan:
			fmt.Printf("\n[%s] Connection error: %v\n",
				time.Now().Format("15:04:05.000"), err)
			results("FAILED (connection error)")
			os.Exit(1)

		case <-time.After(1 * time.Second):
			remaining := time.Until(endTime).Seconds()
			fmt.Printf("[%s] Still connected... (%.0fs remaining)\n",
				time.Now().Format("15:04:05.000"), remaining)
		}
	}

	results("PASSED (connection stable)")
	return nil
}
