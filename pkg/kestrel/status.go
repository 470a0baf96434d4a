// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Dana Whitfield, Rovertec

package kestrel

import (
	"strings"
	"sync"
)

// Status is a point-in-time view of the tracker's reported condition.
// Voltages are display strings with a " mV" suffix, empty until the
// first voltage report has been scanned.
type Status struct {
	State State
	Vin   string
	Batt  string
	Event Event
}

// statusRecord guards the live status and the sleep latch.
//
// The latch models how the trackers sleep: a sleeping tracker stops
// terminating its console output, so the only sleep evidence is the
// stalled-line sentinel. Once armed, the latch holds the Sleeping state
// until a line without a '.' arrives, which only a woken tracker emits.
type statusRecord struct {
	mu    sync.RWMutex
	cur   Status
	latch bool
}

func newStatusRecord() *statusRecord {
	return &statusRecord{}
}

func (r *statusRecord) snapshot() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cur
}

func (r *statusRecord) event() Event {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cur.Event
}

func (r *statusRecord) latched() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.latch
}

func (r *statusRecord) setState(s State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cur.State = s
}

func (r *statusRecord) setEvent(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cur.Event = e
}

func (r *statusRecord) setVolts(vin, batt string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cur.Vin = vin
	r.cur.Batt = batt
}

// setSleeping arms the sleep latch and forces the Sleeping state. Called
// when a scan meets the stalled-line sentinel.
func (r *statusRecord) setSleeping() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cur.State = StateSleeping
	r.latch = true
}

// wakeOnLine clears the latch when an armed latch meets a line without a
// '.', forcing the Stopped state. Runs before the line is queued so the
// scanners never see a stale Sleeping state. Reports whether it fired.
func (r *statusRecord) wakeOnLine(line string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.latch || strings.Contains(line, ".") {
		return false
	}
	r.cur.State = StateStopped
	r.latch = false
	return true
}

func (r *statusRecord) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cur = Status{}
	r.latch = false
}
