// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package elan

// Frame is one complete status payload received from the amplifier bus.
type Frame [StatusLen]byte

// Receiver states (internal)
const (
	stateHeader = iota
	statePayload
	stateFooter
)

var stateNames = [...]string{
	stateHeader:  "header",
	statePayload: "payload",
	stateFooter:  "footer",
}

// Receiver implements the amplifier status frame state machine. It is fed
// one byte at a time and never holds more than one frame.
type Receiver struct {
	state int
	index int // next header byte, or payload bytes captured so far
	frame Frame
}

// NewReceiver creates a receiver waiting for the first header byte.
func NewReceiver() *Receiver {
	return &Receiver{}
}

// Reset drops any partial frame and waits for a header again.
func (r *Receiver) Reset() {
	r.state = stateHeader
	r.index = 0
}

// Synchronized reports whether the receiver is inside a frame.
func (r *Receiver) Synchronized() bool {
	return r.state != stateHeader || r.index > 0
}

// DecodeByte processes a single byte through the receiver state machine.
// Returns a completed frame, or nil if the frame is incomplete.
// Returns a *FramingError if the byte does not fit the current state; the
// receiver has already resynchronized when it returns.
func (r *Receiver) DecodeByte(b byte) (*Frame, error) {
	switch r.state {
	case stateHeader:
		if b != frameHeader[r.index] {
			err := r.fail(b, frameHeader[r.index])
			r.restart(b)
			return nil, err
		}
		r.index++
		if r.index == HeaderLen {
			r.state = statePayload
			r.index = 0
		}
		return nil, nil

	case statePayload:
		r.frame[r.index] = b
		r.index++
		if r.index == StatusLen {
			r.state = stateFooter
			r.index = 0
		}
		return nil, nil

	case stateFooter:
		if b != FooterStatus {
			err := r.fail(b, FooterStatus)
			r.restart(b)
			return nil, err
		}
		frame := r.frame
		r.Reset()
		return &frame, nil

	default:
		r.Reset()
		return nil, &FramingError{State: "invalid", Got: b}
	}
}

func (r *Receiver) fail(got, want byte) error {
	return &FramingError{
		State: stateNames[r.state],
		Index: r.index,
		Got:   got,
		Want:  want,
	}
}

// restart resets the machine and lets the offending byte start a new
// header, so a frame that begins right after a broken one is not lost.
func (r *Receiver) restart(b byte) {
	wasStart := r.state == stateHeader && r.index == 0
	r.Reset()
	if !wasStart && b == frameHeader[0] {
		r.index = 1
	}
}

// decode feeds a chunk of bytes and returns every complete frame and every
// framing error in arrival order.
func (r *Receiver) decode(data []byte) ([]Frame, []error) {
	var frames []Frame
	var errs []error
	for _, b := range data {
		frame, err := r.DecodeByte(b)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if frame != nil {
			frames = append(frames, *frame)
		}
	}
	return frames, errs
}
