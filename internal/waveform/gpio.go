// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package waveform

import (
	"fmt"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// GPIOLine drives a host GPIO pin.
type GPIOLine struct {
	pin gpio.PinOut
}

// InitHost loads the periph host drivers. Call once before OpenGPIO.
func InitHost() error {
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("failed to initialize GPIO host drivers: %w", err)
	}
	return nil
}

// OpenGPIO looks up a pin by name and drives it low.
func OpenGPIO(name string) (*GPIOLine, error) {
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("GPIO pin %s not found", name)
	}
	if err := pin.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("failed to set %s as output: %w", name, err)
	}
	return &GPIOLine{pin: pin}, nil
}

// Set drives the pin high or low.
func (l *GPIOLine) Set(high bool) error {
	return l.pin.Out(gpio.Level(high))
}

// String returns the pin name.
func (l *GPIOLine) String() string {
	return l.pin.Name()
}
