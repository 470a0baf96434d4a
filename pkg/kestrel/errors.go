// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Dana Whitfield, Rovertec

package kestrel

import (
	"errors"
	"fmt"
)

// Engine state errors
var (
	// ErrNotConnected is returned by operations that need a live link.
	ErrNotConnected = errors.New("not connected")

	// ErrDeviceAsleep is returned when a settings write is attempted
	// while the tracker reports Sleeping. A sleeping tracker drops
	// console input silently.
	ErrDeviceAsleep = errors.New("device is sleeping")

	// ErrClosed is returned when the engine has been stopped.
	ErrClosed = errors.New("engine closed")

	// ErrBusy is returned when a console exchange is already in flight.
	ErrBusy = errors.New("console exchange in progress")
)

// Data errors
var (
	// ErrSettingIndex is returned for slot indices outside 1..SettingsCount.
	ErrSettingIndex = errors.New("setting index out of range")

	// ErrQueueOverflow reports that the line queue hit its hard cap and
	// was cleared.
	ErrQueueOverflow = errors.New("line queue overflow")

	// ErrMalformedLine reports a line that matched a scan marker but
	// could not be split into fields.
	ErrMalformedLine = errors.New("malformed line")

	// ErrUnknownEvent reports an event banner with an unrecognized code.
	ErrUnknownEvent = errors.New("unknown event code")

	// ErrRebootTimeout reports that no boot marker arrived within the
	// reboot wait deadline.
	ErrRebootTimeout = errors.New("reboot wait timed out")
)

// TransportError wraps a failure on the underlying connection.
type TransportError struct {
	Op   string // "dial", "read", "write", "reopen", "close"
	Port string
	Err  error
}

func (e *TransportError) Error() string {
	if e.Port == "" {
		return fmt.Sprintf("kestrel: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("kestrel: %s %s: %v", e.Op, e.Port, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// transportErr builds a TransportError unless err is already one.
func transportErr(op, port string, err error) error {
	var te *TransportError
	if errors.As(err, &te) {
		return err
	}
	return &TransportError{Op: op, Port: port, Err: err}
}
