// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Dana Whitfield, Rovertec

package kestrel

import (
	"fmt"
	"strings"
	"time"
)

// String returns the flag spelling of a line break policy.
func (t Terminator) String() string {
	switch t {
	case TermCR:
		return "cr"
	case TermCRLF:
		return "crlf"
	default:
		return "lf"
	}
}

// ParseTerminator parses a line break policy from its flag spelling.
func ParseTerminator(s string) (Terminator, error) {
	switch strings.ToLower(s) {
	case "lf":
		return TermLF, nil
	case "cr":
		return TermCR, nil
	case "crlf":
		return TermCRLF, nil
	default:
		return TermLF, fmt.Errorf("unknown line break %q (want lf, cr or crlf)", s)
	}
}

// eol returns the bytes appended to outgoing commands under this policy.
func (t Terminator) eol() string {
	switch t {
	case TermCR:
		return "\r"
	case TermCRLF:
		return "\r\n"
	default:
		return "\n"
	}
}

// String returns the display name of a state. Wire states render their
// wire token; the ignition states render their event names.
func (s State) String() string {
	switch s {
	case StateBoot:
		return "Boot"
	case StateStopped:
		return "Stopped"
	case StateMoving:
		return "Moving"
	case StateSleeping:
		return "Sleeping"
	case StateReserved:
		return "Reserved"
	case StatePwrProtect:
		return "PwrProtect"
	case StateIdling:
		return "Idling"
	case StateTowing:
		return "Towing"
	case StateSpeeding:
		return "Speeding"
	case StateIgnitionOn:
		return "Ignition On"
	case StateVirtualIgnitionOn:
		return "Virtual Ignition On"
	default:
		return "Unknown"
	}
}

// ParseState maps a GPS report token to its state. Only the nine wire
// tokens are accepted.
func ParseState(token string) (State, bool) {
	switch token {
	case "Boot":
		return StateBoot, true
	case "Stopped":
		return StateStopped, true
	case "Moving":
		return StateMoving, true
	case "Sleeping":
		return StateSleeping, true
	case "Reserved":
		return StateReserved, true
	case "PwrProtect":
		return StatePwrProtect, true
	case "Idling":
		return StateIdling, true
	case "Towing":
		return StateTowing, true
	case "Speeding":
		return StateSpeeding, true
	default:
		return StateUnknown, false
	}
}

// String returns the display name of an event. EventNone renders empty.
func (e Event) String() string {
	switch e {
	case EventIgnitionOn:
		return "Ignition On"
	case EventIgnitionOff:
		return "Ignition Off"
	case EventVirtualIgnitionOn:
		return "Virtual Ignition On"
	case EventVirtualIgnitionOff:
		return "Virtual Ignition Off"
	case EventDeviceReboot:
		return "Device Reboot"
	case EventEndOfTow:
		return "End of Tow"
	case EventRebootComplete:
		return "Reboot Complete"
	default:
		return ""
	}
}

// eventCodes maps event banner codes to events.
var eventCodes = map[string]Event{
	"EVENT_IGNITION_ON":    EventIgnitionOn,
	"IGNITION_OFF":         EventIgnitionOff,
	"EVENT_VIRTUAL_IGN_ON": EventVirtualIgnitionOn,
	"VIRTUAL_IGN_OFF":      EventVirtualIgnitionOff,
	"DEVICE_REBOOT":        EventDeviceReboot,
	"END_OF_TOW":           EventEndOfTow,
}

// ParseEventCode maps an event banner code to its event.
func ParseEventCode(code string) (Event, bool) {
	e, ok := eventCodes[code]
	return e, ok
}

// String returns the display name of a reboot phase.
func (p RebootPhase) String() string {
	switch p {
	case RebootWaiting:
		return "Waiting"
	case RebootSettling:
		return "Settling"
	default:
		return "Idle"
	}
}

// FormatLine renders a console line the way session logs record it.
func FormatLine(t time.Time, line string) string {
	return fmt.Sprintf("[%s] %s", t.Format("2006-01-02 15:04:05.000"), line)
}

// FormatStatus renders a one-line status summary. Fields not yet read
// render as "...".
func FormatStatus(s Status) string {
	state := s.State.String()
	vin := s.Vin
	if vin == "" {
		vin = "..."
	}
	batt := s.Batt
	if batt == "" {
		batt = "..."
	}
	event := s.Event.String()
	if event == "" {
		event = "none"
	}
	return fmt.Sprintf("State: %s | Vin: %s | Batt: %s | Event: %s", state, vin, batt, event)
}

// FormatIdentity renders the identity fields as an aligned block.
// Unread fields render as "-".
func FormatIdentity(id Identity) string {
	rows := []struct {
		label string
		value string
	}{
		{"Main FW", id.Main},
		{"Settings", id.Sett},
		{"VCM FW", id.Vcm},
		{"VCM Config", id.VcmCfg},
		{"Bluetooth", id.Bt},
		{"Power", id.Power},
		{"IMEI", id.Imei},
		{"IMSI", id.Imsi},
		{"ICCID", id.Iccid},
		{"MSIDN", id.Msidn},
	}

	var b strings.Builder
	for _, row := range rows {
		value := row.value
		if value == "" {
			value = "-"
		}
		fmt.Fprintf(&b, "%-11s %s\n", row.label+":", value)
	}
	return b.String()
}
