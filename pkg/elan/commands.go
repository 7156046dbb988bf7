// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package elan

import "fmt"

// Host command builders create the byte sequences a host sends to the
// bridge. They validate with the same rules the bridge applies so a tool
// fails before anything reaches the wire.

// NewDirectCommand builds a 'C' command for a bus channel.
func NewDirectCommand(channel Channel, code int) ([]byte, error) {
	cmd, err := NewCommand(channel, code)
	if err != nil {
		return nil, err
	}
	return []byte{SelectDirect, byte(cmd.Channel), byte(cmd.Code)}, nil
}

// NewZoneCommand builds a 'C' command for a host zone.
func NewZoneCommand(zone Zone, code int) ([]byte, error) {
	channel, err := ZoneChannel(zone)
	if err != nil {
		return nil, err
	}
	return NewDirectCommand(channel, code)
}

// NewSliderCommand builds a 'D' command asking the bridge to walk a zone's
// volume to target.
func NewSliderCommand(zone Zone, target int) ([]byte, error) {
	if !zone.Valid() {
		return nil, invalidZone(zone)
	}
	if err := ValidateTarget(target); err != nil {
		return nil, err
	}
	return []byte{SelectSlider, byte(zone), byte(target)}, nil
}

// ValidateTarget checks a slider target volume.
func ValidateTarget(target int) error {
	if target < 0 || target > VolumeBaseline {
		return fmt.Errorf("%w: %d (valid 0-%d)", ErrInvalidVolume, target, VolumeBaseline)
	}
	return nil
}
