// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"github.com/Thermoquad/elanbridge/pkg/elan"
	"github.com/spf13/cobra"
)

var (
	// Host link connection flags
	portName string
	baudRate int

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool
)

var rootCmd = &cobra.Command{
	Use:   "elanbridge",
	Short: "Elan amplifier bridge and host tools",
	Long: `elanbridge - run and talk to the Elan amplifier bridge.

The bridge command runs the bridge itself: it decodes the amplifier status
bus, forwards changes to the host link and drives the amplifier's control
inputs. The hub command serves the bridge to websocket clients. The other
commands are host tools that talk to a bridge over its host link, either
directly or through a hub.

Connection modes:
  Serial:    --port /dev/ttyACM0 [--baud 921600]
  WebSocket: --url ws://host:1338/raw [--username user]

For WebSocket authentication, the password is read from the ELANBRIDGE_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.`,
	Version: "1.0.0",
}

func init() {
	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Host link serial device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", elan.HostBaudRate, "Baud rate (serial only)")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "Hub raw WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
