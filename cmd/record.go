// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Thermoquad/elanbridge/pkg/elan"
	"github.com/spf13/cobra"
)

var (
	recordOutput   string
	recordDuration time.Duration
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Capture host link messages to a file",
	Long: `Capture every frame a bridge sends on its host link to a CBOR file.

The capture is a CBOR sequence of records, one per status or error frame,
each with its receive time. Use the delta command to inspect a capture.

Recording stops on Ctrl+C, when the connection closes, or after --duration.`,
	RunE: runRecord,
}

func init() {
	rootCmd.AddCommand(recordCmd)
	recordCmd.Flags().StringVarP(&recordOutput, "output", "o", "", "Capture file (required)")
	recordCmd.Flags().DurationVar(&recordDuration, "duration", 0, "Stop after this long (0 records until interrupted)")
	recordCmd.MarkFlagRequired("output")
}

func runRecord(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	f, err := os.Create(recordOutput)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", recordOutput, err)
	}
	defer f.Close()

	fmt.Printf("elanbridge - Record\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Output: %s\n", recordOutput)
	fmt.Printf("Press Ctrl+C to stop\n\n")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	var deadline <-chan time.Time
	if recordDuration > 0 {
		deadline = time.After(recordDuration)
	}

	messages := make(chan *elan.HostMessage, 64)
	readErr := make(chan error, 1)
	go func() {
		decoder := elan.NewHostDecoder()
		buf := make([]byte, 128)
		for {
			n, err := conn.Read(buf)
			if err != nil {
				readErr <- err
				return
			}
			for i := 0; i < n; i++ {
				msg, err := decoder.DecodeByte(buf[i])
				if err == nil && msg != nil {
					messages <- msg
				}
			}
		}
	}()

	w := elan.NewRecordWriter(f)
	count := 0
	for {
		select {
		case msg := <-messages:
			if err := w.Write(msg); err != nil {
				return err
			}
			count++
			if msg.Kind == elan.KindError {
				fmt.Printf("[%s] %q\n", msg.Timestamp.Format("15:04:05.000"), msg.Text)
			}

		case err := <-readErr:
			if !errors.Is(err, ErrConnectionClosed) && !errors.Is(err, io.EOF) {
				fmt.Fprintf(os.Stderr, "Read error: %v\n", err)
			}
			fmt.Printf("Recorded %d messages\n", count)
			return nil

		case <-sigChan:
			fmt.Printf("\nRecorded %d messages\n", count)
			return nil

		case <-deadline:
			fmt.Printf("Recorded %d messages\n", count)
			return nil
		}
	}
}
