// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package elan

// ChannelStatus is the decoded state of one amplifier channel.
type ChannelStatus struct {
	Volume uint8 // 0-63, higher is louder
	Muted  bool
	Input  uint8 // 0-7
}

// SystemStatus holds every channel, indexed by zone slot (zone 1 is index 0).
type SystemStatus [NumChannels]ChannelStatus

// DecodeStatus extracts the per-channel fields from a status payload.
func DecodeStatus(f *Frame) SystemStatus {
	var s SystemStatus
	for i := range s {
		s[i] = decodeChannel(f[i*BytesPerChannel : (i+1)*BytesPerChannel])
	}
	return s
}

func decodeChannel(b []byte) ChannelStatus {
	flags := b[offsetFlags]
	raw := b[offsetAttenuation] & attenuationMask
	return ChannelStatus{
		Volume: (VolumeBaseline - raw) & volumeMask,
		Muted:  flags&muteMask != 0,
		Input:  flags & inputMask,
	}
}

// Equal compares every field of every channel.
func (s SystemStatus) Equal(o SystemStatus) bool {
	return s == o
}

// Zone returns the status of the given zone.
func (s SystemStatus) Zone(z Zone) (ChannelStatus, bool) {
	if !z.Valid() {
		return ChannelStatus{}, false
	}
	return s[z.Index()], true
}

// Volumes returns the volume of each zone slot.
func (s SystemStatus) Volumes() []int {
	out := make([]int, NumChannels)
	for i, c := range s {
		out[i] = int(c.Volume)
	}
	return out
}

// Mutes returns 1 for each muted zone slot and 0 otherwise.
func (s SystemStatus) Mutes() []int {
	out := make([]int, NumChannels)
	for i, c := range s {
		if c.Muted {
			out[i] = 1
		}
	}
	return out
}

// Inputs returns the input source of each zone slot.
func (s SystemStatus) Inputs() []int {
	out := make([]int, NumChannels)
	for i, c := range s {
		out[i] = int(c.Input)
	}
	return out
}

// EncodeChannel builds the payload bytes that decode to the given status.
// Bytes outside the documented layout are zero. Used by simulators and tests.
func EncodeChannel(c ChannelStatus) [BytesPerChannel]byte {
	var b [BytesPerChannel]byte
	b[offsetFlags] = c.Input & inputMask
	if c.Muted {
		b[offsetFlags] |= muteMask
	}
	b[offsetAttenuation] = (VolumeBaseline - c.Volume) & attenuationMask
	return b
}

// EncodeStatus builds a payload that decodes to the given status.
func EncodeStatus(s SystemStatus) Frame {
	var f Frame
	for i, c := range s {
		b := EncodeChannel(c)
		copy(f[i*BytesPerChannel:], b[:])
	}
	return f
}
