// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package waveform

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Thermoquad/elanbridge/pkg/elan"
)

// FIFODepth matches the four-word TX FIFO of a hardware state machine.
const FIFODepth = 4

// WordGap is the idle low time between consecutive words.
const WordGap = elan.PeriodShort

// ErrStopped is returned by Put once the engine has stopped.
var ErrStopped = errors.New("waveform engine stopped")

// Engine is a software pulse engine: a FIFO of words drained by one
// goroutine that drives a Line with the elan pulse timing.
type Engine struct {
	line  Line
	fifo  chan elan.Word
	done  chan struct{}
	sleep func(time.Duration)

	// OnError is called when the line rejects a level change. The word in
	// progress is abandoned and the line is driven low.
	OnError func(err error)
}

// NewEngine creates an engine for a line. Call Run to start draining.
func NewEngine(line Line) *Engine {
	return &Engine{
		line:  line,
		fifo:  make(chan elan.Word, FIFODepth),
		done:  make(chan struct{}),
		sleep: time.Sleep,
	}
}

// Put queues a word, blocking while the FIFO is full.
func (e *Engine) Put(ctx context.Context, w elan.Word) error {
	select {
	case <-e.done:
		return ErrStopped
	default:
	}
	select {
	case e.fifo <- w:
		return nil
	case <-e.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run drains the FIFO until ctx is cancelled. A word that has started is
// always sent to completion.
func (e *Engine) Run(ctx context.Context) {
	defer close(e.done)
	for {
		select {
		case <-ctx.Done():
			return
		case w := <-e.fifo:
			if err := e.send(w); err != nil {
				_ = e.line.Set(false)
				if e.OnError != nil {
					e.OnError(fmt.Errorf("word 0x%08X: %w", uint32(w), err))
				}
			}
		}
	}
}

func (e *Engine) send(w elan.Word) error {
	for _, p := range elan.Pulses(w) {
		if err := e.line.Set(true); err != nil {
			return err
		}
		e.sleep(p.High)
		if err := e.line.Set(false); err != nil {
			return err
		}
		if p.Low > 0 {
			e.sleep(p.Low)
		}
	}
	e.sleep(WordGap)
	return nil
}
