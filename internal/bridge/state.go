// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package bridge implements the firmware side of the amplifier bridge: the
// status differencer and keepalive, the slider volume controller, the host
// command dispatcher and the amplifier bus receive loop.
package bridge

import (
	"sync"

	"github.com/Thermoquad/elanbridge/pkg/elan"
)

// Verdict is the differencer's decision for one decoded status.
type Verdict int

const (
	Suppressed Verdict = iota
	Changed
	KeepaliveDue
)

func (v Verdict) String() string {
	switch v {
	case Suppressed:
		return "suppressed"
	case Changed:
		return "changed"
	case KeepaliveDue:
		return "keepalive"
	default:
		return "unknown"
	}
}

// Forward reports whether the status is sent to the host.
func (v Verdict) Forward() bool {
	return v == Changed || v == KeepaliveDue
}

// Step is one volume pulse pair for a zone.
type Step struct {
	Zone    elan.Zone
	Channel elan.Channel
	Code    elan.Code
}

// Exhausted describes a slider target dropped because its step budget ran
// out before the zone reported the target volume.
type Exhausted struct {
	Zone   elan.Zone
	Target int
	Volume int
}

type target struct {
	active bool
	volume int
	budget int
}

// State is the data shared by the receive and foreground contexts. Every
// method takes the lock for its whole duration.
type State struct {
	mu sync.Mutex

	last     elan.SystemStatus
	haveLast bool
	repeat   int

	targets [elan.NumZones]target
	led     bool
}

// NewState returns an empty state: nothing forwarded, no targets.
func NewState() *State {
	return &State{}
}

// Classify compares a status with the last forwarded one. When the result
// forwards, the status becomes the new last forwarded value.
func (s *State) Classify(status elan.SystemStatus) Verdict {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.haveLast || !status.Equal(s.last) {
		s.accept(status)
		return Changed
	}

	s.repeat++
	if s.repeat >= elan.KeepaliveInterval {
		s.accept(status)
		return KeepaliveDue
	}
	return Suppressed
}

func (s *State) accept(status elan.SystemStatus) {
	s.last = status
	s.haveLast = true
	s.repeat = 0
}

// ForceKeepalive makes the next identical status forward.
func (s *State) ForceKeepalive() {
	s.mu.Lock()
	s.repeat = elan.KeepaliveInterval
	s.mu.Unlock()
}

// Last returns the last forwarded status.
func (s *State) Last() (elan.SystemStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last, s.haveLast
}

// Volume returns the last forwarded volume of a zone. It is zero before any
// status has been forwarded.
func (s *State) Volume(z elan.Zone) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !z.Valid() {
		return 0
	}
	return int(s.last[z.Index()].Volume)
}

// SetTarget records a slider target for a zone and returns the first step
// toward it. The budget is sized from the last known volume and the first
// step is charged to it. No step is returned when the zone is already at
// the target.
func (s *State) SetTarget(z elan.Zone, volume int) (Step, bool, error) {
	channel, err := elan.ZoneChannel(z)
	if err != nil {
		return Step{}, false, err
	}
	if err := elan.ValidateTarget(volume); err != nil {
		return Step{}, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current := int(s.last[z.Index()].Volume)
	t := &s.targets[z.Index()]
	*t = target{active: true, volume: volume, budget: elan.SliderBudget(current, volume)}

	code, ok := elan.StepToward(current, volume)
	if !ok {
		return Step{}, false, nil
	}
	t.budget--
	return Step{Zone: z, Channel: channel, Code: code}, true, nil
}

// Target returns the active slider target of a zone.
func (s *State) Target(z elan.Zone) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !z.Valid() {
		return 0, false
	}
	t := s.targets[z.Index()]
	return t.volume, t.active
}

// ClearTarget drops a zone's slider target.
func (s *State) ClearTarget(z elan.Zone) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if z.Valid() {
		s.targets[z.Index()] = target{}
	}
}

// SliderSteps runs one slider pass against the last forwarded status. A
// zone at its target is cleared; a zone whose budget is spent is cleared
// and reported as exhausted; every other zone with a target gets one step.
// Steps are charged to the budget by Confirm, when they are sent.
func (s *State) SliderSteps() ([]Step, []Exhausted) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var steps []Step
	var exhausted []Exhausted
	for i := range s.targets {
		t := &s.targets[i]
		if !t.active {
			continue
		}
		zone := elan.Zone(i) + elan.MinZone
		current := int(s.last[i].Volume)

		code, ok := elan.StepToward(current, t.volume)
		if !ok {
			*t = target{}
			continue
		}
		if t.budget <= 0 {
			exhausted = append(exhausted, Exhausted{Zone: zone, Target: t.volume, Volume: current})
			*t = target{}
			continue
		}
		channel, _ := elan.ZoneChannel(zone)
		steps = append(steps, Step{Zone: zone, Channel: channel, Code: code})
	}
	return steps, exhausted
}

// Confirm checks a queued step against the current target and volume just
// before it is sent. It reports false when the zone's target is gone, the
// step now points the wrong way, or the budget is spent; otherwise the step
// is charged to the budget.
func (s *State) Confirm(step Step) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !step.Zone.Valid() {
		return false
	}
	i := step.Zone.Index()
	t := &s.targets[i]
	if !t.active || t.budget <= 0 {
		return false
	}
	code, ok := elan.StepToward(int(s.last[i].Volume), t.volume)
	if !ok || code != step.Code {
		return false
	}
	t.budget--
	return true
}

// ToggleIndicator flips the activity indicator and returns its new level.
func (s *State) ToggleIndicator() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.led = !s.led
	return s.led
}
