// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package elan

// SliderSlack is added to the step distance when a slider target is set,
// so a target sitting on an unreachable volume still terminates.
const SliderSlack = 6

// unreachable volumes the amplifier steps over; a slider aiming at one is
// moved to the volume just below.
var unreachable = map[int]bool{
	4: true, 7: true, 10: true, 13: true, 16: true, 19: true, 22: true,
	25: true, 28: true, 31: true, 34: true, 38: true, 41: true, 44: true,
	47: true,
}

// ReachableVolume maps a requested volume to one the amplifier can display.
func ReachableVolume(v int) int {
	if unreachable[v] {
		return v - 1
	}
	return v
}

// SliderBudget returns how many pulse pairs a slider may spend walking from
// current to target.
func SliderBudget(current, target int) int {
	d := target - current
	if d < 0 {
		d = -d
	}
	return d + SliderSlack
}

// StepToward returns the volume step code that moves current toward target
// and false when they are already equal.
func StepToward(current, target int) (Code, bool) {
	switch {
	case target > current:
		return CodeVolumeUp, true
	case target < current:
		return CodeVolumeDown, true
	default:
		return 0, false
	}
}
