// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package elan

import (
	"fmt"
	"strings"
)

// FormatHostMessage formats a host-link message into a human-readable string
func FormatHostMessage(m *HostMessage) string {
	timestamp := m.Timestamp.Format("15:04:05.000")

	switch m.Kind {
	case KindStatus:
		result := fmt.Sprintf("[%s] %s len=%d\n", timestamp, m.Kind, StatusLen)
		return result + FormatStatus(m.Status())
	case KindError:
		return fmt.Sprintf("[%s] %s %q\n", timestamp, m.Kind, m.Text)
	default:
		return fmt.Sprintf("[%s] %s\n", timestamp, m.Kind)
	}
}

// FormatStatus renders one line per zone
func FormatStatus(s SystemStatus) string {
	var b strings.Builder
	for i, c := range s {
		zone := Zone(i) + MinZone
		channel, _ := ZoneChannel(zone)
		mute := "    "
		if c.Muted {
			mute = "MUTE"
		}
		fmt.Fprintf(&b, "  Zone %d (ch %d): Volume=%2d %s Input=%d\n", zone, channel, c.Volume, mute, c.Input)
	}
	return b.String()
}

// FormatCode returns the human-readable name for a ZPAD command code
func FormatCode(c Code) string {
	switch c {
	case CodePower:
		return "POWER"
	case CodeVolumeUp:
		return "VOLUME_UP"
	case CodeVolumeDown:
		return "VOLUME_DOWN"
	default:
		return fmt.Sprintf("CODE_%d", c)
	}
}

// FormatPayload renders a payload as a hex dump, 16 bytes per line
func FormatPayload(payload []byte) string {
	result := "  Payload: "
	for i, b := range payload {
		if i > 0 && i%16 == 0 {
			result += "\n           "
		}
		result += fmt.Sprintf("%02X ", b)
	}
	return result + "\n"
}

// FormatDelta renders two payloads byte by byte in binary, marking each bit
// that changed between them with '-'. Rows without changes are skipped
// unless all is set.
func FormatDelta(prev, cur []byte, all bool) string {
	var b strings.Builder
	n := len(cur)
	if len(prev) > n {
		n = len(prev)
	}
	for i := 0; i < n; i++ {
		var p, c byte
		havePrev, haveCur := i < len(prev), i < len(cur)
		if havePrev {
			p = prev[i]
		}
		if haveCur {
			c = cur[i]
		}
		if !all && havePrev && haveCur && p == c {
			continue
		}

		marks := make([]byte, 8)
		for bit := 0; bit < 8; bit++ {
			mask := byte(0x80) >> bit
			switch {
			case !havePrev || !haveCur:
				marks[bit] = 'X'
			case p&mask != c&mask:
				marks[bit] = '-'
			default:
				marks[bit] = ' '
			}
		}
		fmt.Fprintf(&b, "%02d: %02X %08b %s %08b %02X\n", i, c, c, marks, p, p)
	}
	return b.String()
}

// FormatHostCommand describes what the bridge does with a host command: the
// words it puts on the bus, their pulse timing, or the slider it starts.
func FormatHostCommand(cmd []byte) (string, error) {
	if len(cmd) != 3 {
		return "", fmt.Errorf("%w: command length %d, want 3", ErrInvalidCommand, len(cmd))
	}

	switch cmd[0] {
	case SelectDirect:
		channel := Channel(cmd[1])
		w, err := Encode(channel, int(cmd[2]))
		if err != nil {
			return "", err
		}
		zone, err := ChannelZone(channel)
		if err != nil {
			return "", err
		}
		count := 1
		if IsVolumeStep(w.Code()) {
			count = 2
		}

		var b strings.Builder
		fmt.Fprintf(&b, "Direct: channel %d (zone %d) %s\n", channel, zone, FormatCode(w.Code()))
		fmt.Fprintf(&b, "  Word: 0x%08X x%d\n", uint32(w), count)
		fmt.Fprintf(&b, "  Pulses:")
		pulses := Pulses(w)
		for _, p := range pulses {
			fmt.Fprintf(&b, " %s", p.Low)
		}
		fmt.Fprintf(&b, "\n  Duration: %s per word\n", WaveformDuration(w))
		if back, ok := DecodePulses(pulses); !ok || back != w {
			return "", fmt.Errorf("pulse train for 0x%08X decodes to 0x%08X", uint32(w), uint32(back))
		}
		return b.String(), nil

	case SelectSlider:
		zone := Zone(cmd[1])
		channel, err := ZoneChannel(zone)
		if err != nil {
			return "", err
		}
		if err := ValidateTarget(int(cmd[2])); err != nil {
			return "", err
		}
		return fmt.Sprintf("Slider: zone %d (channel %d) target %d, %s or %s pairs until reached\n",
			zone, channel, cmd[2], FormatCode(CodeVolumeUp), FormatCode(CodeVolumeDown)), nil

	default:
		return "", fmt.Errorf("%w: unknown selector 0x%02X", ErrInvalidCommand, cmd[0])
	}
}
