// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package elan

import (
	"errors"
	"fmt"
	"time"
)

// Statistics tracks host-link message statistics and error rates
type Statistics struct {
	StartTime      time.Time
	LastUpdateTime time.Time
	LastStatusTime time.Time

	// Counters
	TotalMessages  uint64
	StatusFrames   uint64
	StatusChanges  uint64
	ErrorMessages  uint64
	FramingErrors  uint64
	OverflowErrors uint64

	// Rates (calculated)
	MessageRate float64 // messages/sec
	ErrorRate   float64 // errors/sec

	last     SystemStatus
	haveLast bool
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
	}
}

// Update updates statistics based on a message or a decode error
func (s *Statistics) Update(msg *HostMessage, decodeErr error) {
	s.TotalMessages++

	if decodeErr != nil {
		if errors.Is(decodeErr, ErrMessageTooLong) {
			s.OverflowErrors++
		} else {
			s.FramingErrors++
		}
		return
	}

	switch msg.Kind {
	case KindStatus:
		s.StatusFrames++
		status := msg.Status()
		if !s.haveLast || !status.Equal(s.last) {
			s.StatusChanges++
		}
		s.last = status
		s.haveLast = true
		s.LastStatusTime = msg.Timestamp
	case KindError:
		s.ErrorMessages++
	}

	s.LastUpdateTime = time.Now()
}

// CalculateRates calculates message and error rates
func (s *Statistics) CalculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.MessageRate = float64(s.TotalMessages) / elapsed
		errorCount := s.FramingErrors + s.OverflowErrors + s.ErrorMessages
		s.ErrorRate = float64(errorCount) / elapsed
	}
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.CalculateRates()

	var statusPercent, errorPercent, framingPercent float64
	if s.TotalMessages > 0 {
		statusPercent = float64(s.StatusFrames) * 100.0 / float64(s.TotalMessages)
		errorPercent = float64(s.ErrorMessages) * 100.0 / float64(s.TotalMessages)
		framingPercent = float64(s.FramingErrors+s.OverflowErrors) * 100.0 / float64(s.TotalMessages)
	}

	elapsed := time.Since(s.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Total Messages:  %8d\n", s.TotalMessages)
	result += fmt.Sprintf("Status Frames:   %8d (%.1f%%)\n", s.StatusFrames, statusPercent)
	result += fmt.Sprintf("  Changes:          %5d\n", s.StatusChanges)

	if s.ErrorMessages > 0 {
		result += fmt.Sprintf("Bridge Errors:   %8d (%.1f%%)\n", s.ErrorMessages, errorPercent)
	}
	if s.FramingErrors+s.OverflowErrors > 0 {
		result += fmt.Sprintf("Framing Errors:  %8d (%.1f%%)\n", s.FramingErrors+s.OverflowErrors, framingPercent)
		if s.OverflowErrors > 0 {
			result += fmt.Sprintf("  Overflow:         %5d\n", s.OverflowErrors)
		}
	}

	result += fmt.Sprintf("Message Rate:    %8.1f msgs/sec\n", s.MessageRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", s.ErrorRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	*s = *NewStatistics()
}
