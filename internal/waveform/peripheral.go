// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package waveform provides the peripherals that turn ZPAD command words
// into the amplifier's single-wire pulse train, one per bus channel.
package waveform

import (
	"context"
	"fmt"

	"github.com/Thermoquad/elanbridge/pkg/elan"
)

// Peripheral accepts command words for one channel. Put blocks until the
// peripheral's input queue takes the word.
type Peripheral interface {
	Put(ctx context.Context, w elan.Word) error
}

// Line is a single output wire.
type Line interface {
	Set(high bool) error
}

// channelPins is the GPIO line driving each bus channel.
var channelPins = [elan.NumChannels]string{
	"GPIO17", "GPIO18", "GPIO19", "GPIO20", "GPIO21", "GPIO22",
}

// LEDPin drives the activity indicator.
const LEDPin = "GPIO25"

// ChannelPin returns the GPIO line name for a bus channel.
func ChannelPin(ch elan.Channel) (string, error) {
	if !ch.Valid() {
		return "", fmt.Errorf("%w: %d", elan.ErrInvalidChannel, ch)
	}
	return channelPins[ch.Index()], nil
}

// Bank binds each bus channel to its peripheral. The binding is fixed once
// the bank is built.
type Bank struct {
	slots [elan.NumChannels]Peripheral
}

// NewBank builds a bank, calling build once per channel in channel order.
func NewBank(build func(ch elan.Channel) (Peripheral, error)) (*Bank, error) {
	b := &Bank{}
	for ch := elan.MinChannel; ch <= elan.MaxChannel; ch++ {
		p, err := build(ch)
		if err != nil {
			return nil, fmt.Errorf("channel %d: %w", ch, err)
		}
		b.slots[ch.Index()] = p
	}
	return b, nil
}

// Peripheral returns the peripheral bound to a channel.
func (b *Bank) Peripheral(ch elan.Channel) (Peripheral, error) {
	if !ch.Valid() {
		return nil, fmt.Errorf("%w: %d", elan.ErrInvalidChannel, ch)
	}
	return b.slots[ch.Index()], nil
}
