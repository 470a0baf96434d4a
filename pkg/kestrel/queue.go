// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Dana Whitfield, Rovertec

package kestrel

import "sync"

// PushOutcome reports what a queue push did.
type PushOutcome int

// Push outcomes
const (
	// PushStored: the line was appended.
	PushStored PushOutcome = iota

	// PushEvictedOldest: the queue was above the trim threshold, so the
	// oldest line was dropped before the append.
	PushEvictedOldest

	// PushOverflowed: the queue hit the hard cap and was cleared. The
	// queue holds exactly the new line afterwards.
	PushOverflowed
)

// ScanAction controls a Scan walk.
type ScanAction int

// Scan actions
const (
	ScanNext ScanAction = iota
	ScanStop
	ScanClearStop // truncate the whole queue, then stop
)

// LineQueue is a bounded FIFO of console lines. The reader goroutine
// pushes, the scanners walk and clear. All methods are safe for
// concurrent use.
type LineQueue struct {
	mu    sync.Mutex
	lines []string
}

// NewLineQueue creates an empty queue.
func NewLineQueue() *LineQueue {
	return &LineQueue{lines: make([]string, 0, 64)}
}

// Push appends a line, enforcing the queue bounds. With hold set both
// bounds are bypassed and the line is appended unconditionally; the
// engine holds during a reboot so the boot marker cannot be evicted
// before the reboot wait sees it.
func (q *LineQueue) Push(line string, hold bool) PushOutcome {
	q.mu.Lock()
	defer q.mu.Unlock()

	if hold {
		q.lines = append(q.lines, line)
		return PushStored
	}

	if len(q.lines) >= MaxQueueLines {
		q.lines = q.lines[:0]
		q.lines = append(q.lines, line)
		return PushOverflowed
	}

	if len(q.lines) > QueueTrimThreshold {
		q.lines = q.lines[1:]
		q.lines = append(q.lines, line)
		return PushEvictedOldest
	}

	q.lines = append(q.lines, line)
	return PushStored
}

// Scan walks the queue oldest to newest under the lock, calling fn for
// each line until fn stops the walk or the queue is exhausted.
// ScanClearStop truncates the queue atomically with the walk, so a
// matched line and everything queued before it are consumed together.
//
// fn must not call back into the queue.
func (q *LineQueue) Scan(fn func(line string) ScanAction) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, line := range q.lines {
		switch fn(line) {
		case ScanStop:
			return
		case ScanClearStop:
			q.lines = q.lines[:0]
			return
		}
	}
}

// SnapshotAndClear atomically takes every queued line and empties the
// queue. Request/response parsing uses it after the settle window.
func (q *LineQueue) SnapshotAndClear() []string {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := q.lines
	q.lines = nil
	return out
}

// Clear empties the queue.
func (q *LineQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.lines = q.lines[:0]
}

// Len returns the number of queued lines.
func (q *LineQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.lines)
}
