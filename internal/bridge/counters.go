// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Counters tracks bridge activity across both contexts.
type Counters struct {
	start time.Time

	busBytes      atomic.Uint64
	frames        atomic.Uint64
	changes       atomic.Uint64
	keepalives    atomic.Uint64
	suppressed    atomic.Uint64
	framingErrors atomic.Uint64
	desyncs       atomic.Uint64
	commands      atomic.Uint64
	rejected      atomic.Uint64
	idleTimeouts  atomic.Uint64
	sliderSteps   atomic.Uint64
	droppedPasses atomic.Uint64
	staleSteps    atomic.Uint64
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Uptime        time.Duration
	BusBytes      uint64
	Frames        uint64
	Changes       uint64
	Keepalives    uint64
	Suppressed    uint64
	FramingErrors uint64
	Desyncs       uint64
	Commands      uint64
	Rejected      uint64
	IdleTimeouts  uint64
	SliderSteps   uint64
	DroppedPasses uint64
	StaleSteps    uint64
	Words         uint64
}

func newCounters() *Counters {
	return &Counters{start: time.Now()}
}

func (c *Counters) snapshot() Snapshot {
	return Snapshot{
		Uptime:        time.Since(c.start),
		BusBytes:      c.busBytes.Load(),
		Frames:        c.frames.Load(),
		Changes:       c.changes.Load(),
		Keepalives:    c.keepalives.Load(),
		Suppressed:    c.suppressed.Load(),
		FramingErrors: c.framingErrors.Load(),
		Desyncs:       c.desyncs.Load(),
		Commands:      c.commands.Load(),
		Rejected:      c.rejected.Load(),
		IdleTimeouts:  c.idleTimeouts.Load(),
		SliderSteps:   c.sliderSteps.Load(),
		DroppedPasses: c.droppedPasses.Load(),
		StaleSteps:    c.staleSteps.Load(),
	}
}

// String returns a one-line summary.
func (s Snapshot) String() string {
	return fmt.Sprintf("uptime=%s bytes=%d frames=%d changed=%d keepalive=%d suppressed=%d framing=%d/%d commands=%d rejected=%d idle=%d slider=%d dropped=%d stale=%d words=%d",
		s.Uptime.Truncate(time.Second), s.BusBytes, s.Frames, s.Changes, s.Keepalives, s.Suppressed,
		s.FramingErrors, s.Desyncs, s.Commands, s.Rejected, s.IdleTimeouts, s.SliderSteps,
		s.DroppedPasses, s.StaleSteps, s.Words)
}
