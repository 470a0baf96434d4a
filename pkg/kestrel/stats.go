// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Dana Whitfield, Rovertec

package kestrel

import (
	"fmt"
	"sync"
	"time"
)

// Statistics tracks session line counters and error rates. Safe for
// concurrent use; the reader and the scanners both feed it.
type Statistics struct {
	mu sync.Mutex

	startTime time.Time

	lines         uint64
	bytes         uint64
	sentinels     uint64
	overflows     uint64
	evictions     uint64
	malformed     uint64
	unknownEvents uint64
	reconnects    uint64
}

// StatsSnapshot is a point-in-time copy of the session counters.
type StatsSnapshot struct {
	StartTime time.Time

	Lines         uint64
	Bytes         uint64
	Sentinels     uint64
	Overflows     uint64
	Evictions     uint64
	Malformed     uint64
	UnknownEvents uint64
	Reconnects    uint64

	// Rates (calculated at snapshot time)
	LineRate  float64 // lines/sec
	ErrorRate float64 // errors/sec
}

// NewStatistics creates a new statistics tracker.
func NewStatistics() *Statistics {
	return &Statistics{startTime: time.Now()}
}

func (s *Statistics) addLine(size int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines++
	s.bytes += uint64(size)
}

func (s *Statistics) addSentinel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sentinels++
}

func (s *Statistics) addOverflow() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overflows++
}

func (s *Statistics) addEviction() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evictions++
}

func (s *Statistics) addMalformed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.malformed++
}

func (s *Statistics) addUnknownEvent() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unknownEvents++
}

func (s *Statistics) addReconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reconnects++
}

// Snapshot copies the counters and calculates the rates.
func (s *Statistics) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := StatsSnapshot{
		StartTime:     s.startTime,
		Lines:         s.lines,
		Bytes:         s.bytes,
		Sentinels:     s.sentinels,
		Overflows:     s.overflows,
		Evictions:     s.evictions,
		Malformed:     s.malformed,
		UnknownEvents: s.unknownEvents,
		Reconnects:    s.reconnects,
	}

	elapsed := time.Since(s.startTime).Seconds()
	if elapsed > 0 {
		snap.LineRate = float64(s.lines) / elapsed
		errorCount := s.overflows + s.malformed + s.unknownEvents
		snap.ErrorRate = float64(errorCount) / elapsed
	}
	return snap
}

// Reset resets all counters and restarts the session clock.
func (s *Statistics) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.startTime = time.Now()
	s.lines = 0
	s.bytes = 0
	s.sentinels = 0
	s.overflows = 0
	s.evictions = 0
	s.malformed = 0
	s.unknownEvents = 0
	s.reconnects = 0
}

// String returns a formatted statistics summary.
func (s StatsSnapshot) String() string {
	elapsed := time.Since(s.StartTime)

	result := fmt.Sprintf("=== Session (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Lines:           %8d\n", s.Lines)
	result += fmt.Sprintf("Bytes:           %8d\n", s.Bytes)

	if s.Sentinels > 0 {
		result += fmt.Sprintf("Stalled Lines:   %8d\n", s.Sentinels)
	}
	if s.Overflows > 0 {
		result += fmt.Sprintf("Queue Overflows: %8d\n", s.Overflows)
	}
	if s.Evictions > 0 {
		result += fmt.Sprintf("Evictions:       %8d\n", s.Evictions)
	}
	if s.Malformed > 0 {
		result += fmt.Sprintf("Malformed Lines: %8d\n", s.Malformed)
	}
	if s.UnknownEvents > 0 {
		result += fmt.Sprintf("Unknown Events:  %8d\n", s.UnknownEvents)
	}
	if s.Reconnects > 0 {
		result += fmt.Sprintf("Reconnects:      %8d\n", s.Reconnects)
	}

	result += fmt.Sprintf("Line Rate:       %8.1f lines/sec\n", s.LineRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", s.ErrorRate)
	result += "================================\n"

	return result
}
