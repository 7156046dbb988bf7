// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package waveform

import (
	"context"
	"sync"
	"time"

	"github.com/Thermoquad/elanbridge/pkg/elan"
)

// Sent is one word accepted by a Recorder.
type Sent struct {
	Channel elan.Channel
	Word    elan.Word
	At      time.Time
}

// Recorder is a peripheral that keeps every word it is given. It backs the
// bridge's dry-run mode and the tests.
type Recorder struct {
	mu      sync.Mutex
	log     []Sent
	channel elan.Channel

	// OnPut is called after a word is recorded.
	OnPut func(s Sent)
}

// Recorders builds one recorder per channel and a bank over them.
func Recorders() (*Bank, map[elan.Channel]*Recorder) {
	recs := make(map[elan.Channel]*Recorder, elan.NumChannels)
	bank, _ := NewBank(func(ch elan.Channel) (Peripheral, error) {
		r := &Recorder{channel: ch}
		recs[ch] = r
		return r, nil
	})
	return bank, recs
}

// Put records the word.
func (r *Recorder) Put(ctx context.Context, w elan.Word) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s := Sent{Channel: r.channel, Word: w, At: time.Now()}
	r.mu.Lock()
	r.log = append(r.log, s)
	onPut := r.OnPut
	r.mu.Unlock()
	if onPut != nil {
		onPut(s)
	}
	return nil
}

// Log returns a copy of every recorded word.
func (r *Recorder) Log() []Sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Sent, len(r.log))
	copy(out, r.log)
	return out
}

// Codes returns the command code of every recorded word.
func (r *Recorder) Codes() []elan.Code {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]elan.Code, len(r.log))
	for i, s := range r.log {
		out[i] = s.Word.Code()
	}
	return out
}
