// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/Thermoquad/elanbridge/pkg/elan"
)

// HostWriter writes framed messages to the host link. Each frame goes out
// in one locked write so frames from both contexts never interleave.
type HostWriter struct {
	mu sync.Mutex
	w  io.Writer
}

// NewHostWriter wraps the host link output.
func NewHostWriter(w io.Writer) *HostWriter {
	return &HostWriter{w: w}
}

// Status forwards a status frame.
func (h *HostWriter) Status(f *elan.Frame) error {
	return h.write(elan.EncodeStatusFrame(f))
}

// Message sends an error or diagnostic frame.
func (h *HostWriter) Message(msg string) error {
	return h.write(elan.EncodeErrorFrame(msg))
}

// Messagef formats and sends an error or diagnostic frame.
func (h *HostWriter) Messagef(format string, args ...interface{}) error {
	return h.write(elan.Errorf(format, args...))
}

func (h *HostWriter) write(frame []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, err := h.w.Write(frame); err != nil {
		return fmt.Errorf("host write: %w", err)
	}
	return nil
}

// HostReader turns the host link input into a byte stream that can be read
// with a timeout. A pump goroutine owns the underlying reader.
type HostReader struct {
	bytes chan byte
	errs  chan error
}

// NewHostReader starts the pump. It stops when ctx is done or the reader
// fails; the failure is delivered to the next read.
func NewHostReader(ctx context.Context, r io.Reader) *HostReader {
	h := &HostReader{
		bytes: make(chan byte, 64),
		errs:  make(chan error, 1),
	}
	go h.pump(ctx, r)
	return h
}

func (h *HostReader) pump(ctx context.Context, r io.Reader) {
	buf := make([]byte, 64)
	for {
		n, err := r.Read(buf)
		for i := 0; i < n; i++ {
			select {
			case h.bytes <- buf[i]:
			case <-ctx.Done():
				return
			}
		}
		if err != nil {
			h.errs <- err
			return
		}
		if ctx.Err() != nil {
			return
		}
	}
}

// ReadByte waits up to timeout for the next byte. It returns
// elan.ErrHostTimeout when nothing arrives in time.
func (h *HostReader) ReadByte(ctx context.Context, timeout time.Duration) (byte, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case b := <-h.bytes:
		return b, nil
	default:
	}

	select {
	case b := <-h.bytes:
		return b, nil
	case err := <-h.errs:
		return h.failed(err)
	case <-timer.C:
		return 0, elan.ErrHostTimeout
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// failed returns a byte still buffered ahead of err, keeping err for the
// following read.
func (h *HostReader) failed(err error) (byte, error) {
	select {
	case b := <-h.bytes:
		h.errs <- err
		return b, nil
	default:
		return 0, err
	}
}
