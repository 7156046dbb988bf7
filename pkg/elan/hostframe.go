// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package elan

import (
	"fmt"
	"time"
)

// EncodeStatusFrame builds the host-link status frame for a payload.
func EncodeStatusFrame(f *Frame) []byte {
	out := make([]byte, 0, HeaderLen+StatusLen+1)
	out = append(out, frameHeader[:]...)
	out = append(out, f[:]...)
	return append(out, FooterStatus)
}

// EncodeErrorFrame builds the host-link error/diagnostic frame for a
// message. Non-printable bytes are replaced with '?' and the message is
// truncated to MaxMessageLen so the footer stays unambiguous.
func EncodeErrorFrame(msg string) []byte {
	if len(msg) > MaxMessageLen {
		msg = msg[:MaxMessageLen]
	}
	out := make([]byte, 0, HeaderLen+len(msg)+1)
	out = append(out, frameHeader[:]...)
	for i := 0; i < len(msg); i++ {
		c := msg[i]
		if !printable(c) {
			c = '?'
		}
		out = append(out, c)
	}
	return append(out, FooterError)
}

// Errorf formats a message into an error frame.
func Errorf(format string, args ...interface{}) []byte {
	return EncodeErrorFrame(fmt.Sprintf(format, args...))
}

func printable(c byte) bool {
	return c >= 0x20 && c <= 0x7E
}

// MessageKind distinguishes host-link frames.
type MessageKind int

const (
	KindStatus MessageKind = iota
	KindError
)

func (k MessageKind) String() string {
	switch k {
	case KindStatus:
		return "STATUS"
	case KindError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// HostMessage is one frame received from the bridge on the host link.
type HostMessage struct {
	Kind      MessageKind
	Frame     Frame  // KindStatus
	Text      string // KindError
	Timestamp time.Time
}

// Status decodes the payload of a status message.
func (m *HostMessage) Status() SystemStatus {
	return DecodeStatus(&m.Frame)
}

// HostDecoder splits the bridge's host-link output into status frames and
// error messages. Both share the same header; the footer tells them apart.
// A status body is exactly StatusLen bytes of binary data; an error body is
// printable ASCII.
//
// The footers alone cannot always tell the two apart: a status payload that
// starts with printable bytes followed by FooterError is taken as an error
// message, and the rest of that status frame is reported as framing errors
// until the next header. The status is lost; the bridge forwards the next
// change or keepalive as usual.
type HostDecoder struct {
	index     int // header bytes matched
	body      []byte
	inBody    bool
	printable bool
}

// NewHostDecoder creates a host-link decoder.
func NewHostDecoder() *HostDecoder {
	return &HostDecoder{body: make([]byte, 0, MaxMessageLen+1)}
}

// Reset drops any partial frame.
func (d *HostDecoder) Reset() {
	d.index = 0
	d.body = d.body[:0]
	d.inBody = false
	d.printable = true
}

// DecodeByte processes a single byte. Returns a completed message, or nil
// if the frame is incomplete. Returns an error if the byte breaks framing.
func (d *HostDecoder) DecodeByte(b byte) (*HostMessage, error) {
	if !d.inBody {
		if b != frameHeader[d.index] {
			at := d.index
			d.Reset()
			if at > 0 && b == frameHeader[0] {
				d.index = 1
			}
			return nil, &FramingError{State: "header", Index: at, Got: b, Want: frameHeader[at]}
		}
		d.index++
		if d.index == HeaderLen {
			d.inBody = true
			d.printable = true
			d.body = d.body[:0]
		}
		return nil, nil
	}

	if len(d.body) == StatusLen && b == FooterStatus {
		msg := &HostMessage{Kind: KindStatus, Timestamp: time.Now()}
		copy(msg.Frame[:], d.body)
		d.Reset()
		return msg, nil
	}

	if b == FooterError && d.printable {
		msg := &HostMessage{Kind: KindError, Text: string(d.body), Timestamp: time.Now()}
		d.Reset()
		return msg, nil
	}

	if len(d.body) >= StatusLen && !d.printable {
		d.Reset()
		return nil, &FramingError{State: "footer", Index: StatusLen, Got: b, Want: FooterStatus}
	}
	if len(d.body) >= MaxMessageLen {
		d.Reset()
		return nil, fmt.Errorf("%w: exceeds %d bytes", ErrMessageTooLong, MaxMessageLen)
	}

	d.body = append(d.body, b)
	if !printable(b) {
		d.printable = false
	}
	return nil, nil
}
