// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/Thermoquad/elanbridge/internal/waveform"
	"github.com/Thermoquad/elanbridge/pkg/elan"
)

// Amp sends ZPAD commands to the amplifier through the channel bank.
type Amp struct {
	bank  *waveform.Bank
	words atomic.Uint64
}

// NewAmp creates an amplifier command sender over a bank.
func NewAmp(bank *waveform.Bank) *Amp {
	return &Amp{bank: bank}
}

// Send encodes one command and hands its word to the channel's peripheral,
// blocking until the peripheral accepts it.
func (a *Amp) Send(ctx context.Context, channel elan.Channel, code int) error {
	w, err := elan.Encode(channel, code)
	if err != nil {
		return err
	}
	p, err := a.bank.Peripheral(channel)
	if err != nil {
		return err
	}
	if err := p.Put(ctx, w); err != nil {
		return fmt.Errorf("channel %d: %w", channel, err)
	}
	a.words.Add(1)
	return nil
}

// Command sends a command the way the amplifier expects it: volume steps
// as a pair, everything else once.
func (a *Amp) Command(ctx context.Context, channel elan.Channel, code int) error {
	if err := a.Send(ctx, channel, code); err != nil {
		return err
	}
	if code >= 0 && code <= int(elan.MaxCode) && elan.IsVolumeStep(elan.Code(code)) {
		return a.Send(ctx, channel, code)
	}
	return nil
}

// Step sends one slider step.
func (a *Amp) Step(ctx context.Context, s Step) error {
	return a.Command(ctx, s.Channel, int(s.Code))
}

// Words returns the number of words handed to peripherals.
func (a *Amp) Words() uint64 {
	return a.words.Load()
}
