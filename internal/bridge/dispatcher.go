// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Thermoquad/elanbridge/pkg/elan"
)

// Dispatcher is the foreground loop: it reads host commands, drives the
// amplifier and executes slider steps handed over by the receive path.
type Dispatcher struct {
	state    *State
	amp      *Amp
	host     *HostWriter
	in       *HostReader
	steps    <-chan []Step
	counters *Counters
	idle     time.Duration
	operand  time.Duration
	logger   *slog.Logger
}

// errRejected marks a command that was answered with an error frame.
var errRejected = errors.New("command rejected")

// Run serves the host link until ctx is done or the host input fails.
func (d *Dispatcher) Run(ctx context.Context) error {
	idle := time.NewTimer(d.idle)
	defer idle.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case steps := <-d.steps:
			d.runSteps(ctx, steps)

		case <-idle.C:
			d.counters.idleTimeouts.Add(1)
			d.state.ForceKeepalive()
			d.logger.Debug("keepalive forced", "reason", elan.ErrLinkIdle)
			idle.Reset(d.idle)

		case b := <-d.in.bytes:
			if err := d.handle(ctx, b); err != nil && !errors.Is(err, errRejected) {
				return err
			}
			resetTimer(idle, d.idle)

		case err := <-d.in.errs:
			b, err := d.in.failed(err)
			if err != nil {
				return fmt.Errorf("host read: %w", err)
			}
			if err := d.handle(ctx, b); err != nil && !errors.Is(err, errRejected) {
				return err
			}
			resetTimer(idle, d.idle)
		}
	}
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}

// handle runs one command. It returns errRejected when the command was
// answered with an error frame and any other error when the link failed.
func (d *Dispatcher) handle(ctx context.Context, selector byte) error {
	d.counters.commands.Add(1)
	switch selector {
	case elan.SelectDirect:
		return d.direct(ctx)
	case elan.SelectSlider:
		return d.slider(ctx)
	default:
		return d.reject("unknown command selector 0x%02X", selector)
	}
}

func (d *Dispatcher) direct(ctx context.Context) error {
	channel, err := d.operandByte(ctx, "channel")
	if err != nil {
		return err
	}
	code, err := d.operandByte(ctx, "command")
	if err != nil {
		return err
	}

	d.logger.Debug("direct command", "channel", channel, "code", code)
	if err := d.amp.Command(ctx, elan.Channel(channel), int(code)); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return d.reject("%v", err)
	}
	return nil
}

func (d *Dispatcher) slider(ctx context.Context) error {
	zoneByte, err := d.operandByte(ctx, "zone")
	if err != nil {
		return err
	}
	volume, err := d.operandByte(ctx, "volume")
	if err != nil {
		return err
	}

	zone := elan.Zone(zoneByte)
	channel, err := elan.ZoneChannel(zone)
	if err != nil {
		return d.reject("%v", err)
	}
	step, ok, err := d.state.SetTarget(zone, int(volume))
	if err != nil {
		return d.reject("%v", err)
	}
	if ok {
		if err := d.amp.Step(ctx, step); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return d.reject("%v", err)
		}
		d.counters.sliderSteps.Add(1)
	}

	d.logger.Debug("slider target", "zone", zone, "channel", channel, "target", volume)
	if err := d.host.Messagef("slider zone=%d channel=%d target=%d", zone, channel, volume); err != nil {
		return err
	}
	return nil
}

// operandByte reads one operand with the operand timeout. A timeout is
// answered with an error frame.
func (d *Dispatcher) operandByte(ctx context.Context, name string) (byte, error) {
	b, err := d.in.ReadByte(ctx, d.operand)
	if err == nil {
		return b, nil
	}
	if errors.Is(err, elan.ErrHostTimeout) {
		return 0, d.reject("%v waiting for %s", err, name)
	}
	if ctx.Err() != nil {
		return 0, ctx.Err()
	}
	return 0, fmt.Errorf("host read: %w", err)
}

func (d *Dispatcher) reject(format string, args ...interface{}) error {
	d.counters.rejected.Add(1)
	msg := fmt.Sprintf(format, args...)
	d.logger.Debug("command rejected", "reason", msg)
	if err := d.host.Message(msg); err != nil {
		return err
	}
	return errRejected
}

// runSteps sends a slider pass. Steps overtaken by a newer status or
// target are skipped.
func (d *Dispatcher) runSteps(ctx context.Context, steps []Step) {
	for _, s := range steps {
		if !d.state.Confirm(s) {
			d.counters.staleSteps.Add(1)
			continue
		}
		if err := d.amp.Step(ctx, s); err != nil {
			d.logger.Warn("slider step failed", "zone", s.Zone, "error", err)
			return
		}
		d.counters.sliderSteps.Add(1)
	}
}
