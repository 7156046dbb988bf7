// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// elanbridge - Elan amplifier control bridge
//
// Bridges an Elan amplifier's status UART and ZPAD control inputs to a host
// link, and provides the hub and host tools that talk to it.

package main

import (
	"os"

	"github.com/Thermoquad/elanbridge/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
