// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package elan

import (
	"errors"
	"fmt"
)

var (
	ErrFraming        = errors.New("framing error")
	ErrInvalidChannel = errors.New("invalid channel")
	ErrInvalidCommand = errors.New("invalid command")
	ErrInvalidVolume  = errors.New("invalid volume")
	ErrHostTimeout    = errors.New("host timeout")
	ErrLinkIdle       = errors.New("host link idle")
	ErrMessageTooLong = errors.New("message too long")
)

// FramingError describes the byte that broke a frame.
type FramingError struct {
	State string // receiver state when the byte arrived
	Index int    // header or payload index within that state
	Got   byte
	Want  byte
}

func (e *FramingError) Error() string {
	return fmt.Sprintf("framing error in %s[%d]: got 0x%02X, want 0x%02X", e.State, e.Index, e.Got, e.Want)
}

// Unwrap lets errors.Is match ErrFraming.
func (e *FramingError) Unwrap() error {
	return ErrFraming
}

func invalidChannel(c Channel) error {
	return fmt.Errorf("%w: %d (valid %d-%d)", ErrInvalidChannel, c, MinChannel, MaxChannel)
}

func invalidZone(z Zone) error {
	return fmt.Errorf("%w: zone %d (valid %d-%d)", ErrInvalidChannel, z, MinZone, MaxZone)
}

func invalidCommand(code int) error {
	return fmt.Errorf("%w: %d (valid 0-%d)", ErrInvalidCommand, code, MaxCode)
}
