// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/Thermoquad/elanbridge/internal/waveform"
	"github.com/Thermoquad/elanbridge/pkg/elan"
)

// Options configures a Device.
type Options struct {
	IdleTimeout    time.Duration
	OperandTimeout time.Duration

	// StepQueue is how many slider passes may wait for the foreground.
	StepQueue int

	// Indicator is toggled on every forwarded status. Optional.
	Indicator waveform.Line

	Logger *slog.Logger
}

// DefaultOptions returns the link timing the host tools expect.
func DefaultOptions() Options {
	return Options{
		IdleTimeout:    elan.IdleTimeout,
		OperandTimeout: elan.OperandTimeout,
		StepQueue:      4,
	}
}

// Device is one bridge: the amplifier bus receive path and the host command
// path sharing one State.
type Device struct {
	state    *State
	amp      *Amp
	host     *HostWriter
	receiver *elan.Receiver
	steps    chan []Step
	counters *Counters
	opts     Options
	logger   *slog.Logger

	desynced bool
}

// NewDevice builds a device writing host frames to host and amplifier
// commands to bank.
func NewDevice(bank *waveform.Bank, host io.Writer, opts Options) *Device {
	if opts.StepQueue <= 0 {
		opts.StepQueue = 1
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Device{
		state:    NewState(),
		amp:      NewAmp(bank),
		host:     NewHostWriter(host),
		receiver: elan.NewReceiver(),
		steps:    make(chan []Step, opts.StepQueue),
		counters: newCounters(),
		opts:     opts,
		logger:   logger,
	}
}

// State returns the shared state.
func (d *Device) State() *State {
	return d.state
}

// Stats returns the current counters.
func (d *Device) Stats() Snapshot {
	s := d.counters.snapshot()
	s.Words = d.amp.Words()
	return s
}

// RunBus reads the amplifier status UART until ctx is done or the reader
// fails. A read returning no data (a serial read timeout) is not an error.
func (d *Device) RunBus(ctx context.Context, r io.Reader) error {
	buf := make([]byte, 256)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := r.Read(buf)
		if n > 0 {
			d.HandleBus(buf[:n])
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("bus read: %w", err)
		}
	}
}

// HandleBus runs bytes from the amplifier bus through the receiver and the
// differencer. It never blocks on a peripheral.
func (d *Device) HandleBus(data []byte) {
	d.counters.busBytes.Add(uint64(len(data)))
	for _, b := range data {
		frame, err := d.receiver.DecodeByte(b)
		if err != nil {
			d.framingError(err)
			continue
		}
		if frame != nil {
			d.desynced = false
			d.handleFrame(frame)
		}
	}
}

func (d *Device) framingError(err error) {
	d.counters.framingErrors.Add(1)
	if d.desynced {
		return
	}
	d.desynced = true
	d.counters.desyncs.Add(1)
	d.logger.Debug("bus framing error", "error", err)
	if werr := d.host.Messagef("%v", err); werr != nil {
		d.logger.Warn("failed to report framing error", "error", werr)
	}
}

func (d *Device) handleFrame(frame *elan.Frame) {
	d.counters.frames.Add(1)
	status := elan.DecodeStatus(frame)

	verdict := d.state.Classify(status)
	switch verdict {
	case Suppressed:
		d.counters.suppressed.Add(1)
		return
	case Changed:
		d.counters.changes.Add(1)
	case KeepaliveDue:
		d.counters.keepalives.Add(1)
	}

	if err := d.host.Status(frame); err != nil {
		d.logger.Warn("failed to forward status", "error", err)
	}

	steps, exhausted := d.state.SliderSteps()
	for _, e := range exhausted {
		d.logger.Info("slider gave up", "zone", e.Zone, "target", e.Target, "volume", e.Volume)
		if err := d.host.Messagef("slider zone=%d target=%d stopped at volume=%d", e.Zone, e.Target, e.Volume); err != nil {
			d.logger.Warn("failed to report slider exhaustion", "error", err)
		}
	}
	if len(steps) > 0 {
		select {
		case d.steps <- steps:
		default:
			d.counters.droppedPasses.Add(1)
		}
	}

	level := d.state.ToggleIndicator()
	if d.opts.Indicator != nil {
		if err := d.opts.Indicator.Set(level); err != nil {
			d.logger.Debug("indicator", "error", err)
		}
	}

	if verdict == Changed {
		d.logger.Debug("status changed", "volumes", status.Volumes(), "mutes", status.Mutes(), "inputs", status.Inputs())
	}
}

// Dispatcher returns the host command dispatcher for this device reading
// from in.
func (d *Device) Dispatcher(ctx context.Context, in io.Reader) *Dispatcher {
	return &Dispatcher{
		state:    d.state,
		amp:      d.amp,
		host:     d.host,
		in:       NewHostReader(ctx, in),
		steps:    d.steps,
		counters: d.counters,
		idle:     d.opts.IdleTimeout,
		operand:  d.opts.OperandTimeout,
		logger:   d.logger,
	}
}
