// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Dana Whitfield, Rovertec

// Package kestrel implements the console protocol spoken by Rovertec
// VT-series asset trackers.
//
// The trackers expose a line-oriented text console over USB serial. This
// package provides line framing, the bounded line queue, the scanners that
// mine queued lines for status/identity/settings, and an Engine that owns
// the connection, the reader loop and the status poller.
package kestrel

import "time"

// Serial link parameters. The console always runs 8N1 at a fixed rate.
const (
	BaudRate     = 115200
	ReadTimeout  = 3 * time.Second
	WriteTimeout = 1 * time.Second
)

// Line assembly limits
const (
	// LineTimeout bounds how long a partial line may sit in the decoder.
	// A line that stalls past it is abandoned and SentinelLine is emitted
	// in its place.
	LineTimeout = 10 * time.Second

	// SentinelLine stands in for a stalled line. A sleeping tracker stops
	// terminating its output, so the sentinel doubles as the sleep marker.
	SentinelLine = "..."
)

// Line queue bounds
const (
	// MaxQueueLines is the hard cap. A push at the cap clears the queue
	// and stores only the new line.
	MaxQueueLines = 500

	// QueueTrimThreshold is the soft cap. A push above it drops the
	// oldest line first.
	QueueTrimThreshold = 200
)

// Console request commands and their settle times. The tracker answers
// asynchronously, so each request waits a fixed window before the queue
// snapshot is taken.
const (
	cmdSettings = "settings"
	cmdVersion  = "version"

	settingsSettle = 6 * time.Second
	versionSettle  = time.Second
	sendSettle     = 50 * time.Millisecond

	// applyWait follows every accepted settings write. The tracker
	// commits each slot to flash before it will take the next one.
	applyWait = 45 * time.Second
)

// Settings store size. Slots are addressed 1..SettingsCount on the wire.
const SettingsCount = 122

// setCommandFormat writes one settings slot: set,NN,value
const setCommandFormat = "set,%02d,%s"

// Reconnect policy after a dead read
const (
	reconnectAttempts = 5
	reconnectInterval = time.Second
)

// Reboot wait parameters
const (
	bootMarker    = "devStateChange: curr=Boot"
	rebootPoll    = 500 * time.Millisecond
	rebootTimeout = 210 * time.Second
	rebootSettle  = 30 * time.Second
)

// Status poller cadence
const (
	statusPollInterval = 3 * time.Second
	infoRetryInterval  = 10 * time.Second
)

// Scan markers. Offsets are byte positions in the raw line.
const (
	hookVolts = "Vin"
	hookBatt  = "Batt"
	hookState = "sats:"
	hookEvent = ">< >< ><"

	stateTokenOffset = 20 // GPS report: state token column
	eventCodeOffset  = 9  // event banner: code column
)

// Terminator selects the line break policy for a direction of the link.
type Terminator int

// Line break policies
const (
	TermLF Terminator = iota
	TermCR
	TermCRLF
)

// State represents the motion state a tracker reports in its GPS lines.
type State int

// Tracker states. The first nine (after StateUnknown) appear on the wire;
// the ignition states are display-only and reachable through the event
// tie-break in the state scan.
const (
	StateUnknown State = iota
	StateBoot
	StateStopped
	StateMoving
	StateSleeping
	StateReserved
	StatePwrProtect
	StateIdling
	StateTowing
	StateSpeeding
	StateIgnitionOn
	StateVirtualIgnitionOn
)

// Event represents a decoded tracker event banner.
type Event int

// Tracker events. EventRebootComplete is synthetic: the engine sets it
// once a reboot wait has settled.
const (
	EventNone Event = iota
	EventIgnitionOn
	EventIgnitionOff
	EventVirtualIgnitionOn
	EventVirtualIgnitionOff
	EventDeviceReboot
	EventEndOfTow
	EventRebootComplete
)

// RebootPhase reports where a reboot wait currently stands.
type RebootPhase int

// Reboot wait phases
const (
	RebootIdle RebootPhase = iota
	RebootWaiting
	RebootSettling
)
