// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package elan

import "time"

// Pulse is one high pulse followed by the low period that encodes a bit.
type Pulse struct {
	High time.Duration
	Low  time.Duration
}

// Pulses returns the waveform for a word: HeaderPulses short periods, the
// code bits most significant first (long period for a 1), then a stop pulse.
// The stop pulse has no trailing low period.
func Pulses(w Word) []Pulse {
	out := make([]Pulse, 0, PulsesPerWord)
	for i := 0; i < HeaderPulses; i++ {
		out = append(out, Pulse{High: PulseHigh, Low: PeriodShort})
	}
	for i := 0; i < CodeBits; i++ {
		low := PeriodShort
		if w.Bit(i) {
			low = PeriodLong
		}
		out = append(out, Pulse{High: PulseHigh, Low: low})
	}
	for i := 0; i < StopPulses; i++ {
		out = append(out, Pulse{High: PulseHigh})
	}
	return out
}

// WaveformDuration returns how long the peripheral needs to send a word.
func WaveformDuration(w Word) time.Duration {
	var d time.Duration
	for _, p := range Pulses(w) {
		d += p.High + p.Low
	}
	return d
}

// DecodePulses recovers a word from the low periods of a captured waveform.
// Periods closer to PeriodLong than to PeriodShort read as 1.
func DecodePulses(pulses []Pulse) (Word, bool) {
	if len(pulses) != PulsesPerWord {
		return 0, false
	}
	threshold := (PeriodShort + PeriodLong) / 2
	var code Code
	for i := 0; i < CodeBits; i++ {
		code <<= 1
		if pulses[HeaderPulses+i].Low > threshold {
			code |= 1
		}
	}
	return Word(code) << CommandShift, true
}
