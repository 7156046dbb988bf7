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

var (
	frameTestTimeout int
)

var frameTestCmd = &cobra.Command{
	Use:   "frame_test",
	Short: "Test connection by waiting for a status frame",
	Long: `Wait for a status frame on the host link until timeout.

This command connects to a serial port or WebSocket and waits for a complete
status frame. Error frames and bytes outside a frame are skipped. A bridge
forwards at least one keepalive per 100 amplifier frames, and forces one
after 10 seconds of host silence, so a live bridge answers well within the
default timeout.

Exit codes:
  0 - Status frame received before timeout
  1 - Timeout reached without receiving a status frame
  2 - Connection error`,
	RunE: runFrameTest,
}

func init() {
	rootCmd.AddCommand(frameTestCmd)
	frameTestCmd.Flags().IntVar(&frameTestTimeout, "timeout", 15, "Timeout in seconds to wait for a frame")
}

func runFrameTest(cmd *cobra.Command, args []string) error {
	// Open connection (serial or WebSocket)
	conn, connInfo, err := OpenConnection()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	fmt.Printf("elanbridge - Frame Test\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %d seconds\n", frameTestTimeout)
	fmt.Printf("Waiting for status frame...\n\n")

	decoder := elan.NewHostDecoder()
	buf := make([]byte, 128)

	frameChan := make(chan *elan.HostMessage, 1)
	errChan := make(chan error, 1)

	// Reader goroutine
	go func() {
		skipped := 0
		for {
			n, err := conn.Read(buf)
			if err != nil {
				errChan <- err
				return
			}

			for i := 0; i < n; i++ {
				msg, decodeErr := decoder.DecodeByte(buf[i])
				if decodeErr != nil {
					skipped++
					continue
				}
				if msg == nil {
					continue
				}
				if msg.Kind == elan.KindError {
					fmt.Printf("(bridge message: %q)\n", msg.Text)
					continue
				}
				if skipped > 0 {
					fmt.Printf("(skipped %d bytes before sync)\n", skipped)
				}
				frameChan <- msg
				return
			}
		}
	}()

	select {
	case msg := <-frameChan:
		fmt.Printf("SUCCESS: Received status frame\n")
		fmt.Print(elan.FormatStatus(msg.Status()))
		os.Exit(0)

	case err := <-errChan:
		fmt.Fprintf(os.Stderr, "Read error: %v\n", err)
		os.Exit(2)

	case <-time.After(time.Duration(frameTestTimeout) * time.Second):
		fmt.Fprintf(os.Stderr, "TIMEOUT: No status frame received within %d seconds\n", frameTestTimeout)
		os.Exit(1)
	}

	return nil
}
