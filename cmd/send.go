// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Thermoquad/elanbridge/pkg/elan"
	"github.com/spf13/cobra"
)

var (
	sendChannel int
	sendZone    int
	sendCode    string
	sendSlider  int
	sendWait    time.Duration
	sendDryRun  bool
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send one host command to a bridge",
	Long: `Send a single command to a bridge over its host link.

Direct commands send a ZPAD code to a bus channel or zone:
  elanbridge send -p /dev/ttyUSB0 --zone 2 --code power
  elanbridge send -p /dev/ttyUSB0 --channel 19 --code 4

Slider commands walk a zone to a target volume:
  elanbridge send -p /dev/ttyUSB0 --zone 1 --slider 30

Codes are numbers (0-63) or one of: power, up, down.

With --wait the command keeps reading the host link for the given time and
prints whatever the bridge sends back.

With --dry-run nothing is sent: the command is printed with the bus words
and pulse timing the bridge would produce for it.`,
	RunE: runSend,
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().IntVar(&sendChannel, "channel", 0, "Bus channel (17-22)")
	sendCmd.Flags().IntVar(&sendZone, "zone", 0, "Zone (1-6)")
	sendCmd.Flags().StringVar(&sendCode, "code", "", "ZPAD code (0-63, power, up, down)")
	sendCmd.Flags().IntVar(&sendSlider, "slider", -1, "Slider target volume (0-48)")
	sendCmd.Flags().DurationVar(&sendWait, "wait", 0, "Read replies for this long after sending")
	sendCmd.Flags().BoolVar(&sendDryRun, "dry-run", false, "Describe the command without sending it")
	sendCmd.MarkFlagsMutuallyExclusive("channel", "zone")
	sendCmd.MarkFlagsMutuallyExclusive("code", "slider")
}

// parseCode accepts a code number or a command name.
func parseCode(s string) (int, error) {
	switch strings.ToLower(s) {
	case "power":
		return int(elan.CodePower), nil
	case "up", "vol+", "volume_up":
		return int(elan.CodeVolumeUp), nil
	case "down", "vol-", "volume_down":
		return int(elan.CodeVolumeDown), nil
	}
	var code int
	if _, err := fmt.Sscanf(s, "%d", &code); err != nil {
		return 0, fmt.Errorf("invalid code %q", s)
	}
	return code, nil
}

// buildSendCommand turns the send flags into host command bytes.
func buildSendCommand() ([]byte, error) {
	if sendSlider >= 0 {
		if sendZone == 0 {
			return nil, errors.New("--slider needs --zone")
		}
		return elan.NewSliderCommand(elan.Zone(sendZone), sendSlider)
	}

	if sendCode == "" {
		return nil, errors.New("one of --code or --slider is required")
	}
	code, err := parseCode(sendCode)
	if err != nil {
		return nil, err
	}
	switch {
	case sendZone != 0:
		return elan.NewZoneCommand(elan.Zone(sendZone), code)
	case sendChannel != 0:
		return elan.NewDirectCommand(elan.Channel(sendChannel), code)
	default:
		return nil, errors.New("one of --channel or --zone is required")
	}
}

func runSend(cmd *cobra.Command, args []string) error {
	frame, err := buildSendCommand()
	if err != nil {
		return err
	}

	if sendDryRun {
		desc, err := elan.FormatHostCommand(frame)
		if err != nil {
			return err
		}
		fmt.Printf("Command: % X\n%s", frame, desc)
		return nil
	}

	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	if _, err := conn.Write(frame); err != nil {
		return fmt.Errorf("failed to send command: %w", err)
	}
	fmt.Printf("Sent % X to %s\n", frame, connInfo)

	if sendWait <= 0 {
		return nil
	}

	decoder := elan.NewHostDecoder()
	deadline := time.After(sendWait)
	readChan := make(chan []byte, 16)

	go func() {
		buf := make([]byte, 128)
		for {
			n, err := conn.Read(buf)
			if err != nil {
				close(readChan)
				return
			}
			readChan <- append([]byte(nil), buf[:n]...)
		}
	}()

	for {
		select {
		case <-deadline:
			return nil
		case data, ok := <-readChan:
			if !ok {
				return nil
			}
			for _, b := range data {
				msg, err := decoder.DecodeByte(b)
				if err != nil || msg == nil {
					continue
				}
				fmt.Print(elan.FormatHostMessage(msg))
			}
		}
	}
}
