// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package elan

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

// ============================================================
// Test Helpers
// ============================================================

// buildPayload creates a payload with a recognizable byte at every index
func buildPayload(seed byte) Frame {
	var f Frame
	for i := range f {
		f[i] = seed + byte(i)
	}
	return f
}

// buildBusFrame wraps a payload with the bus header and footer
func buildBusFrame(f Frame) []byte {
	out := append([]byte{}, Header()...)
	out = append(out, f[:]...)
	return append(out, FooterStatus)
}

// feed pushes bytes through a receiver and collects results
func feed(r *Receiver, data []byte) ([]Frame, []error) {
	return r.decode(data)
}

// ============================================================
// Receiver Tests
// ============================================================

func TestReceiver_ValidFrame(t *testing.T) {
	payload := buildPayload(0x10)
	r := NewReceiver()

	frames, errs := feed(r, buildBusFrame(payload))
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(frames) != 1 {
		t.Fatalf("expected 1 frame, got %d", len(frames))
	}
	if frames[0] != payload {
		t.Errorf("payload mismatch:\n got %X\nwant %X", frames[0][:], payload[:])
	}
	if r.Synchronized() {
		t.Error("receiver should be waiting for a header after a frame")
	}
}

func TestReceiver_FrameReturnedOnlyOnFooter(t *testing.T) {
	r := NewReceiver()
	data := buildBusFrame(buildPayload(0))

	for i, b := range data[:len(data)-1] {
		frame, err := r.DecodeByte(b)
		if err != nil {
			t.Fatalf("byte %d: unexpected error %v", i, err)
		}
		if frame != nil {
			t.Fatalf("byte %d: frame returned before footer", i)
		}
	}
	frame, err := r.DecodeByte(data[len(data)-1])
	if err != nil || frame == nil {
		t.Fatalf("footer: frame=%v err=%v", frame, err)
	}
}

func TestReceiver_BackToBackFrames(t *testing.T) {
	r := NewReceiver()
	a, b := buildPayload(0x01), buildPayload(0x80)
	data := append(buildBusFrame(a), buildBusFrame(b)...)

	frames, errs := feed(r, data)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(frames) != 2 || frames[0] != a || frames[1] != b {
		t.Fatalf("expected frames a, b in order; got %d frames", len(frames))
	}
}

func TestReceiver_PayloadMayContainFramingBytes(t *testing.T) {
	var payload Frame
	for i := range payload {
		payload[i] = []byte{0xE0, 0xC0, 0x00, 0x81, FooterStatus, FooterError}[i%6]
	}
	frames, errs := feed(NewReceiver(), buildBusFrame(payload))
	if len(errs) != 0 || len(frames) != 1 || frames[0] != payload {
		t.Fatalf("frames=%d errs=%v", len(frames), errs)
	}
}

func TestReceiver_CorruptHeaderResyncs(t *testing.T) {
	for i := 0; i < HeaderLen; i++ {
		t.Run(string(rune('0'+i)), func(t *testing.T) {
			r := NewReceiver()
			bad := buildBusFrame(buildPayload(0x20))
			bad[i] ^= 0x55

			good := buildPayload(0x40)
			frames, errs := feed(r, append(bad, buildBusFrame(good)...))

			if len(errs) == 0 {
				t.Fatal("expected a framing error")
			}
			for _, err := range errs {
				if !errors.Is(err, ErrFraming) {
					t.Errorf("error %v does not match ErrFraming", err)
				}
			}
			if len(frames) != 1 || frames[0] != good {
				t.Fatalf("expected only the good frame, got %d frames", len(frames))
			}
		})
	}
}

func TestReceiver_CorruptFooterResyncs(t *testing.T) {
	r := NewReceiver()
	bad := buildBusFrame(buildPayload(0x20))
	bad[len(bad)-1] = 0x00

	good := buildPayload(0x40)
	frames, errs := feed(r, append(bad, buildBusFrame(good)...))

	var fe *FramingError
	if len(errs) != 1 || !errors.As(errs[0], &fe) {
		t.Fatalf("expected one *FramingError, got %v", errs)
	}
	if fe.State != "footer" || fe.Got != 0x00 || fe.Want != FooterStatus {
		t.Errorf("unexpected error detail: %+v", fe)
	}
	if len(frames) != 1 || frames[0] != good {
		t.Fatalf("expected only the good frame, got %d frames", len(frames))
	}
}

func TestReceiver_MissingFooterStartsNextFrame(t *testing.T) {
	// A frame whose footer was lost: the next header's first byte lands in
	// the footer slot and must still start a new frame.
	r := NewReceiver()
	bad := buildBusFrame(buildPayload(0x20))
	bad = bad[:len(bad)-1]

	good := buildPayload(0x60)
	frames, errs := feed(r, append(bad, buildBusFrame(good)...))

	if len(errs) != 1 {
		t.Fatalf("expected exactly one framing error, got %v", errs)
	}
	if len(frames) != 1 || frames[0] != good {
		t.Fatalf("expected the following frame to decode, got %d frames", len(frames))
	}
}

func TestReceiver_GarbageIsReportedPerByte(t *testing.T) {
	r := NewReceiver()
	frames, errs := feed(r, []byte{0x01, 0x02, 0x03})
	if len(frames) != 0 {
		t.Fatal("garbage produced a frame")
	}
	if len(errs) != 3 {
		t.Errorf("expected 3 framing errors, got %d", len(errs))
	}
}

func TestReceiver_Reset(t *testing.T) {
	r := NewReceiver()
	data := buildBusFrame(buildPayload(0))
	feed(r, data[:10])
	if !r.Synchronized() {
		t.Fatal("receiver should be mid-frame")
	}
	r.Reset()
	frames, errs := feed(r, data)
	if len(errs) != 0 || len(frames) != 1 {
		t.Fatalf("frames=%d errs=%v after reset", len(frames), errs)
	}
}

// ============================================================
// Status Decoding Tests
// ============================================================

func TestDecodeStatus_Scenario(t *testing.T) {
	var f Frame
	f[0] = 0x00
	f[2] = 0x18

	s := DecodeStatus(&f)
	want := ChannelStatus{Volume: 24, Muted: false, Input: 0}
	if s[0] != want {
		t.Errorf("channel 0 = %+v, want %+v", s[0], want)
	}
}

func TestDecodeStatus_Fields(t *testing.T) {
	tests := []struct {
		name  string
		byte0 byte
		byte2 byte
		want  ChannelStatus
	}{
		{"muted input 3", 0x13, 0x30, ChannelStatus{Volume: 0, Muted: true, Input: 3}},
		{"input 7 loudest", 0x07, 0x00, ChannelStatus{Volume: 48, Input: 7}},
		{"unrelated bits ignored", 0xE8, 0xD8, ChannelStatus{Volume: 24}},
		{"attenuation above baseline wraps", 0x00, 0x31, ChannelStatus{Volume: 63}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var f Frame
			f[3*BytesPerChannel] = tt.byte0
			f[3*BytesPerChannel+2] = tt.byte2
			s := DecodeStatus(&f)
			if s[3] != tt.want {
				t.Errorf("got %+v, want %+v", s[3], tt.want)
			}
		})
	}
}

func TestEncodeStatus_DecodesBack(t *testing.T) {
	var s SystemStatus
	for i := range s {
		s[i] = ChannelStatus{Volume: uint8(i * 7), Muted: i%2 == 0, Input: uint8(i)}
	}
	f := EncodeStatus(s)
	if got := DecodeStatus(&f); !got.Equal(s) {
		t.Errorf("got %+v, want %+v", got, s)
	}
}

func TestSystemStatus_Equal(t *testing.T) {
	var a, b SystemStatus
	if !a.Equal(b) {
		t.Fatal("zero values should be equal")
	}
	b[5].Input = 1
	if a.Equal(b) {
		t.Error("input difference not detected")
	}
	b = a
	b[0].Muted = true
	if a.Equal(b) {
		t.Error("mute difference not detected")
	}
}

func TestSystemStatus_Zone(t *testing.T) {
	var s SystemStatus
	s[0].Volume = 11
	if c, ok := s.Zone(1); !ok || c.Volume != 11 {
		t.Errorf("Zone(1) = %+v, %v", c, ok)
	}
	if _, ok := s.Zone(0); ok {
		t.Error("Zone(0) should be out of range")
	}
	if _, ok := s.Zone(7); ok {
		t.Error("Zone(7) should be out of range")
	}
}

// ============================================================
// Encoder Tests
// ============================================================

func TestEncode_RoundTrip(t *testing.T) {
	for ch := MinChannel; ch <= MaxChannel; ch++ {
		for code := 0; code <= int(MaxCode); code++ {
			w, err := Encode(ch, code)
			if err != nil {
				t.Fatalf("Encode(%d, %d): %v", ch, code, err)
			}
			if w.Code() != Code(code) {
				t.Fatalf("Encode(%d, %d).Code() = %d", ch, code, w.Code())
			}
			if w.HeaderBits() != 0 {
				t.Fatalf("Encode(%d, %d) header bits = 0x%X", ch, code, w.HeaderBits())
			}
		}
	}
}

func TestEncode_Boundaries(t *testing.T) {
	tests := []struct {
		name    string
		channel Channel
		code    int
		wantErr error
	}{
		{"max code", 17, 63, nil},
		{"code 64", 17, 64, ErrInvalidCommand},
		{"negative code", 17, -1, ErrInvalidCommand},
		{"channel 0", 0, 4, ErrInvalidChannel},
		{"below range", 16, 4, ErrInvalidChannel},
		{"above range", 23, 4, ErrInvalidChannel},
		{"last channel", 22, 0, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Encode(tt.channel, tt.code)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestEncode_KnownWord(t *testing.T) {
	w, err := Encode(17, 36)
	if err != nil {
		t.Fatal(err)
	}
	if uint32(w) != 36<<26 {
		t.Errorf("word = 0x%08X, want 0x%08X", uint32(w), uint32(36<<26))
	}
}

func TestWord_BitOrder(t *testing.T) {
	w, _ := Encode(17, 0b100001)
	want := []bool{true, false, false, false, false, true}
	for i, b := range want {
		if w.Bit(i) != b {
			t.Errorf("Bit(%d) = %v, want %v", i, w.Bit(i), b)
		}
	}
}

// ============================================================
// Zone Table Tests
// ============================================================

func TestZoneChannel(t *testing.T) {
	for z := MinZone; z <= MaxZone; z++ {
		ch, err := ZoneChannel(z)
		if err != nil {
			t.Fatalf("ZoneChannel(%d): %v", z, err)
		}
		if !ch.Valid() {
			t.Errorf("ZoneChannel(%d) = %d is not a bus channel", z, ch)
		}
		back, err := ChannelZone(ch)
		if err != nil || back != z {
			t.Errorf("ChannelZone(%d) = %d, %v; want %d", ch, back, err, z)
		}
	}
	for _, z := range []Zone{0, 7, 255} {
		if _, err := ZoneChannel(z); !errors.Is(err, ErrInvalidChannel) {
			t.Errorf("ZoneChannel(%d) err = %v, want ErrInvalidChannel", z, err)
		}
	}
}

// ============================================================
// Waveform Tests
// ============================================================

func TestPulses_Layout(t *testing.T) {
	w, _ := Encode(17, 0b101010)
	pulses := Pulses(w)
	if len(pulses) != PulsesPerWord {
		t.Fatalf("got %d pulses, want %d", len(pulses), PulsesPerWord)
	}
	for i, p := range pulses {
		if p.High != PulseHigh {
			t.Errorf("pulse %d high = %v", i, p.High)
		}
	}
	for i := 0; i < HeaderPulses; i++ {
		if pulses[i].Low != PeriodShort {
			t.Errorf("header pulse %d low = %v", i, pulses[i].Low)
		}
	}
	want := []bool{true, false, true, false, true, false}
	for i, bit := range want {
		low := pulses[HeaderPulses+i].Low
		if bit && low != PeriodLong || !bit && low != PeriodShort {
			t.Errorf("code bit %d low = %v", i, low)
		}
	}
	if pulses[len(pulses)-1].Low != 0 {
		t.Error("stop pulse should have no trailing low period")
	}
}

func TestDecodePulses_RoundTrip(t *testing.T) {
	for code := 0; code <= int(MaxCode); code++ {
		w, _ := Encode(20, code)
		got, ok := DecodePulses(Pulses(w))
		if !ok || got != w {
			t.Fatalf("code %d: got 0x%08X ok=%v", code, uint32(got), ok)
		}
	}
	if _, ok := DecodePulses(nil); ok {
		t.Error("empty capture should not decode")
	}
}

func TestWaveformDuration(t *testing.T) {
	zero, _ := Encode(17, 0)
	ones, _ := Encode(17, 63)
	base := PulsesPerWord*PulseHigh + (HeaderPulses+CodeBits)*PeriodShort
	if WaveformDuration(zero) != base {
		t.Errorf("all-zero duration = %v, want %v", WaveformDuration(zero), base)
	}
	if WaveformDuration(ones) != base+CodeBits*(PeriodLong-PeriodShort) {
		t.Errorf("all-one duration = %v", WaveformDuration(ones))
	}
}

// ============================================================
// Host Link Framing Tests
// ============================================================

func TestEncodeStatusFrame(t *testing.T) {
	p := buildPayload(3)
	got := EncodeStatusFrame(&p)
	if !bytes.Equal(got, buildBusFrame(p)) {
		t.Errorf("status frame mismatch: %X", got)
	}
}

func TestEncodeErrorFrame(t *testing.T) {
	got := EncodeErrorFrame("bad\x01")
	want := append(Header(), 'b', 'a', 'd', '?', FooterError)
	if !bytes.Equal(got, want) {
		t.Errorf("got %X, want %X", got, want)
	}

	long := EncodeErrorFrame(strings.Repeat("x", MaxMessageLen+10))
	if len(long) != HeaderLen+MaxMessageLen+1 {
		t.Errorf("long message not truncated: %d bytes", len(long))
	}
}

func TestHostDecoder_StatusAndError(t *testing.T) {
	d := NewHostDecoder()
	p := buildPayload(0x90)

	var stream []byte
	stream = append(stream, EncodeStatusFrame(&p)...)
	stream = append(stream, Errorf("invalid command: %d", 99)...)
	stream = append(stream, EncodeStatusFrame(&p)...)

	var msgs []*HostMessage
	for _, b := range stream {
		m, err := d.DecodeByte(b)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if m != nil {
			msgs = append(msgs, m)
		}
	}

	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	if msgs[0].Kind != KindStatus || msgs[0].Frame != p {
		t.Errorf("message 0 = %+v", msgs[0])
	}
	if msgs[1].Kind != KindError || msgs[1].Text != "invalid command: 99" {
		t.Errorf("message 1 = %+v", msgs[1])
	}
	if msgs[2].Kind != KindStatus {
		t.Errorf("message 2 kind = %v", msgs[2].Kind)
	}
}

func TestHostDecoder_BinaryPayloadWithErrorFooterByte(t *testing.T) {
	var p Frame
	p[0] = 0x01 // non-printable first byte marks the body as binary
	p[10] = FooterError
	d := NewHostDecoder()

	var got *HostMessage
	for _, b := range EncodeStatusFrame(&p) {
		m, err := d.DecodeByte(b)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if m != nil {
			got = m
		}
	}
	if got == nil || got.Kind != KindStatus || got.Frame != p {
		t.Fatalf("status frame not decoded: %+v", got)
	}
}

func TestHostDecoder_Overflow(t *testing.T) {
	d := NewHostDecoder()
	stream := append(Header(), bytes.Repeat([]byte("a"), MaxMessageLen+1)...)

	var gotErr error
	for _, b := range stream {
		if _, err := d.DecodeByte(b); err != nil {
			gotErr = err
		}
	}
	if !errors.Is(gotErr, ErrMessageTooLong) {
		t.Errorf("err = %v, want ErrMessageTooLong", gotErr)
	}
}

func TestHostDecoder_BadStatusFooter(t *testing.T) {
	d := NewHostDecoder()
	var p Frame
	p[0] = 0xFF
	stream := EncodeStatusFrame(&p)
	stream[len(stream)-1] = 0x00

	var gotErr error
	for _, b := range stream {
		if _, err := d.DecodeByte(b); err != nil {
			gotErr = err
		}
	}
	if !errors.Is(gotErr, ErrFraming) {
		t.Errorf("err = %v, want ErrFraming", gotErr)
	}
}

func TestHostDecoder_PrintablePayloadWithErrorFooter(t *testing.T) {
	d := NewHostDecoder()
	var p Frame
	for i := range p {
		p[i] = 'A'
	}
	p[5] = FooterError
	ambiguous := EncodeStatusFrame(&p)

	var next Frame
	next[2] = 0x18
	stream := append(ambiguous, EncodeStatusFrame(&next)...)

	var msgs []*HostMessage
	for _, b := range stream {
		m, _ := d.DecodeByte(b)
		if m != nil {
			msgs = append(msgs, m)
		}
	}

	// The ambiguous frame reads as a message; the following frame decodes.
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if msgs[0].Kind != KindError || msgs[0].Text != "AAAAA" {
		t.Errorf("first = %s %q", msgs[0].Kind, msgs[0].Text)
	}
	if msgs[1].Kind != KindStatus || msgs[1].Frame != next {
		t.Errorf("second = %s % X", msgs[1].Kind, msgs[1].Frame[:])
	}
}

// ============================================================
// Host Command Builder Tests
// ============================================================

func TestNewZoneCommand(t *testing.T) {
	got, err := NewZoneCommand(2, int(CodeVolumeUp))
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{'C', 18, 4}
	if !bytes.Equal(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
	if _, err := NewZoneCommand(9, 0); !errors.Is(err, ErrInvalidChannel) {
		t.Errorf("zone 9 err = %v", err)
	}
	if _, err := NewZoneCommand(1, 64); !errors.Is(err, ErrInvalidCommand) {
		t.Errorf("code 64 err = %v", err)
	}
}

func TestNewSliderCommand(t *testing.T) {
	got, err := NewSliderCommand(1, 30)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, []byte{'D', 1, 30}) {
		t.Errorf("got %v", got)
	}
	if _, err := NewSliderCommand(1, 49); !errors.Is(err, ErrInvalidVolume) {
		t.Errorf("target 49 err = %v", err)
	}
	if _, err := NewSliderCommand(0, 10); !errors.Is(err, ErrInvalidChannel) {
		t.Errorf("zone 0 err = %v", err)
	}
}

// ============================================================
// Volume Helper Tests
// ============================================================

func TestReachableVolume(t *testing.T) {
	tests := map[int]int{0: 0, 3: 3, 4: 3, 5: 5, 33: 33, 34: 33, 35: 35, 38: 37, 47: 46, 48: 48}
	for in, want := range tests {
		if got := ReachableVolume(in); got != want {
			t.Errorf("ReachableVolume(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestStepToward(t *testing.T) {
	if c, ok := StepToward(20, 30); !ok || c != CodeVolumeUp {
		t.Errorf("up: %v %v", c, ok)
	}
	if c, ok := StepToward(30, 20); !ok || c != CodeVolumeDown {
		t.Errorf("down: %v %v", c, ok)
	}
	if _, ok := StepToward(5, 5); ok {
		t.Error("equal volumes should not step")
	}
	if SliderBudget(20, 30) != 10+SliderSlack || SliderBudget(30, 20) != 10+SliderSlack {
		t.Error("budget should be symmetric distance plus slack")
	}
}

// ============================================================
// Formatter and Statistics Tests
// ============================================================

func TestFormatCode(t *testing.T) {
	if FormatCode(CodeVolumeUp) != "VOLUME_UP" || FormatCode(12) != "CODE_12" {
		t.Error("unexpected code names")
	}
}

func TestFormatDelta(t *testing.T) {
	out := FormatDelta([]byte{0x00, 0x10}, []byte{0x00, 0x18}, false)
	if strings.Count(out, "\n") != 1 {
		t.Fatalf("expected one changed row, got:\n%s", out)
	}
	if !strings.Contains(out, "    -   ") {
		t.Errorf("bit 3 change not marked:\n%s", out)
	}
}

func TestFormatHostCommand(t *testing.T) {
	up, _ := NewZoneCommand(1, int(CodeVolumeUp))
	power, _ := NewDirectCommand(19, int(CodePower))
	slide, _ := NewSliderCommand(2, 30)

	tests := []struct {
		name string
		cmd  []byte
		want []string
	}{
		{"volume step", up, []string{"channel 17 (zone 1) VOLUME_UP", "x2", "Duration:"}},
		{"power", power, []string{"channel 19 (zone 3) POWER", "0x00000000 x1", "Duration:"}},
		{"slider", slide, []string{"zone 2 (channel 18) target 30"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := FormatHostCommand(tt.cmd)
			if err != nil {
				t.Fatalf("FormatHostCommand: %v", err)
			}
			for _, w := range tt.want {
				if !strings.Contains(out, w) {
					t.Errorf("output missing %q:\n%s", w, out)
				}
			}
		})
	}
}

func TestFormatHostCommand_Invalid(t *testing.T) {
	tests := []struct {
		name string
		cmd  []byte
		want error
	}{
		{"short", []byte{SelectDirect, 17}, ErrInvalidCommand},
		{"selector", []byte{'X', 17, 0}, ErrInvalidCommand},
		{"channel", []byte{SelectDirect, 16, 0}, ErrInvalidChannel},
		{"code", []byte{SelectDirect, 17, 64}, ErrInvalidCommand},
		{"zone", []byte{SelectSlider, 7, 10}, ErrInvalidChannel},
		{"target", []byte{SelectSlider, 1, 49}, ErrInvalidVolume},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := FormatHostCommand(tt.cmd); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestStatistics_Update(t *testing.T) {
	s := NewStatistics()
	a, b := buildPayload(1), buildPayload(2)

	s.Update(&HostMessage{Kind: KindStatus, Frame: a}, nil)
	s.Update(&HostMessage{Kind: KindStatus, Frame: a}, nil)
	s.Update(&HostMessage{Kind: KindStatus, Frame: b}, nil)
	s.Update(&HostMessage{Kind: KindError, Text: "x"}, nil)
	s.Update(nil, &FramingError{})

	if s.TotalMessages != 5 || s.StatusFrames != 3 || s.StatusChanges != 2 ||
		s.ErrorMessages != 1 || s.FramingErrors != 1 {
		t.Errorf("unexpected counters: %+v", s)
	}
	if !strings.Contains(s.String(), "Framing Errors") {
		t.Error("summary should list framing errors")
	}
}
