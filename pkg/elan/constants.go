// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package elan provides a Go implementation of the Elan amplifier control
// bus protocol and of the framing the bridge uses on its host link.
//
// The amplifier broadcasts a fixed-length status frame on its status UART
// and accepts ZPAD commands on one single-wire input per channel. This
// package covers status frame reception and decoding, ZPAD command
// encoding, the pulse timing of the single-wire waveform, host-link frames
// and the host command selectors.
package elan

import "time"

// Amplifier status frame framing
var frameHeader = [HeaderLen]byte{0xE0, 0xC0, 0x00, 0x81}

// Frame layout
const (
	HeaderLen       = 4
	NumChannels     = 6
	BytesPerChannel = 6
	StatusLen       = NumChannels * BytesPerChannel // 36

	FooterStatus = 0xEA // status frame footer (bus and host link)
	FooterError  = 0xEF // error / diagnostic frame footer (host link only)

	MaxMessageLen = 96 // longest ASCII message carried in an error frame
)

// Per-channel payload byte layout:
//
//	byte0: bit4 = mute, bits0-2 = input source
//	byte2: bits0-5 = attenuation, volume = (VolumeBaseline - raw) & 0x3F
const (
	offsetFlags       = 0
	offsetAttenuation = 2

	muteMask        = 0b0001_0000
	inputMask       = 0b0000_0111
	attenuationMask = 0b0011_1111
	volumeMask      = 0b0011_1111

	VolumeBaseline = 48
	MaxVolume      = 63
)

// ZPAD command codes
const (
	CodePower      Code = 0
	CodeVolumeUp   Code = 4
	CodeVolumeDown Code = 36

	MaxCode Code = 63
)

// Command word layout: the code occupies bits 26..31, the header bits
// below it are always zero.
const (
	CommandShift = 26
	codeMask     = 0x3F
	headerMask   = 1<<CommandShift - 1
)

// Bus channels and host-facing zones
const (
	MinChannel Channel = 17
	MaxChannel Channel = 22

	MinZone  Zone = 1
	MaxZone  Zone = NumChannels
	NumZones      = NumChannels
)

// zoneChannels maps zone N to zoneChannels[N-1].
var zoneChannels = [NumZones]Channel{17, 18, 19, 20, 21, 22}

// Host command selectors
const (
	SelectDirect = 'C' // followed by channel byte, command byte
	SelectSlider = 'D' // followed by zone byte, target volume byte
)

// Link parameters
const (
	BusBaudRate  = 9600
	HostBaudRate = 921600

	// KeepaliveInterval is the number of identical status frames after
	// which a frame is forwarded anyway.
	KeepaliveInterval = 100

	IdleTimeout    = 10 * time.Second      // host selector read
	OperandTimeout = 10 * time.Millisecond // host operand read
)

// Waveform timing. Every pulse is PulseHigh long; the low period after it
// encodes the bit.
const (
	PulseHigh     = 12500 * time.Nanosecond // 12.5 us
	PeriodShort   = 5 * time.Millisecond    // 0 bit, header, stop
	PeriodLong    = 7500 * time.Microsecond // 1 bit
	HeaderPulses  = 5
	CodeBits      = 6
	StopPulses    = 1
	PulsesPerWord = HeaderPulses + CodeBits + StopPulses
)

// Code is a 6-bit ZPAD command code.
type Code uint8

// Channel is a bus channel number (one single-wire input per channel).
type Channel uint8

// Zone is the host-facing 1-based slider index.
type Zone uint8

// Index returns the 0-based slot of the zone in status and target tables.
func (z Zone) Index() int {
	return int(z) - int(MinZone)
}

// Valid reports whether the zone is within the configured range.
func (z Zone) Valid() bool {
	return z >= MinZone && z <= MaxZone
}

// Valid reports whether the channel is one of the configured bus channels.
func (c Channel) Valid() bool {
	return c >= MinChannel && c <= MaxChannel
}

// Index returns the 0-based slot of the channel in peripheral tables.
func (c Channel) Index() int {
	return int(c) - int(MinChannel)
}

// ZoneChannel maps a host zone to its bus channel.
func ZoneChannel(z Zone) (Channel, error) {
	if !z.Valid() {
		return 0, invalidZone(z)
	}
	return zoneChannels[z.Index()], nil
}

// ChannelZone maps a bus channel back to its host zone.
func ChannelZone(c Channel) (Zone, error) {
	for i, ch := range zoneChannels {
		if ch == c {
			return Zone(i) + MinZone, nil
		}
	}
	return 0, invalidChannel(c)
}

// Header returns a copy of the frame header.
func Header() []byte {
	h := frameHeader
	return h[:]
}

// IsVolumeStep reports whether the code is one of the volume step codes.
// The amplifier moves half a UI step per pulse, so these are sent in pairs.
func IsVolumeStep(c Code) bool {
	return c == CodeVolumeUp || c == CodeVolumeDown
}
