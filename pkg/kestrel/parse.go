// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Dana Whitfield, Rovertec

package kestrel

import (
	"strings"
	"unicode"
)

// scanState walks the whole queue and applies every GPS report it
// finds, so the newest report wins. The queue is left intact; state
// lines double as context for the other scanners.
func (e *Engine) scanState() {
	e.queue.Scan(func(line string) ScanAction {
		if line == SentinelLine {
			e.status.setSleeping()
			return ScanClearStop
		}
		if !strings.Contains(line, hookState) {
			return ScanNext
		}

		token := tokenAt(line, stateTokenOffset)
		state, ok := ParseState(token)
		if !ok {
			e.stats.addMalformed()
			e.logf("%v: state token %q in %q", ErrMalformedLine, token, line)
			return ScanStop
		}

		// An ignition event refines a plain Moving report, and a
		// Sleeping report is stale once the latch has been cleared.
		event := e.status.event()
		switch {
		case state == StateMoving && event == EventIgnitionOn:
			state = StateIgnitionOn
		case state == StateMoving && event == EventVirtualIgnitionOn:
			state = StateVirtualIgnitionOn
		case state == StateSleeping && !e.status.latched():
			state = StateStopped
		}
		e.status.setState(state)

		if strings.Contains(line, hookVolts) && strings.Contains(line, hookBatt) {
			e.status.setVolts(extractReading(line, hookVolts), extractReading(line, hookBatt))
		}
		return ScanNext
	})
}

// scanVolts consumes up to the first voltage line. The queue is cleared
// whether or not the line carried a battery reading; a Vin line without
// one is a truncated report not worth keeping.
func (e *Engine) scanVolts() {
	e.queue.Scan(func(line string) ScanAction {
		if line == SentinelLine {
			e.status.setSleeping()
			return ScanClearStop
		}
		if !strings.Contains(line, hookVolts) {
			return ScanNext
		}
		if strings.Contains(line, hookBatt) {
			e.status.setVolts(extractReading(line, hookVolts), extractReading(line, hookBatt))
		}
		return ScanClearStop
	})
}

// scanEvent consumes up to the first event banner. An unrecognized code
// stops the scan without clearing so nothing after it is lost.
func (e *Engine) scanEvent() {
	e.queue.Scan(func(line string) ScanAction {
		if line == SentinelLine {
			e.status.setSleeping()
			return ScanClearStop
		}
		if !strings.Contains(line, hookEvent) {
			return ScanNext
		}

		code := tokenAt(line, eventCodeOffset)
		event, ok := ParseEventCode(code)
		if !ok {
			e.stats.addUnknownEvent()
			e.logf("%v: %q in %q", ErrUnknownEvent, code, line)
			return ScanStop
		}
		e.status.setEvent(event)
		return ScanClearStop
	})
}

// parseSettingsDump populates the settings store from a dump snapshot.
// For each slot the first matching line wins; a matching line without a
// value separator skips only that slot. Matching ignores tabs because
// the tracker indents continuation dumps, but values are cut from the
// raw line.
func (e *Engine) parseSettingsDump(lines []string) {
	for i := 1; i <= SettingsCount; i++ {
		key := SettingKey(i)
		for _, line := range lines {
			if !strings.Contains(strings.ReplaceAll(line, "\t", ""), key) {
				continue
			}
			_, value, found := strings.Cut(line, "=")
			if !found {
				e.stats.addMalformed()
				e.logf("%v: %q has no value", ErrMalformedLine, line)
				break
			}
			e.settings.set(i, strings.TrimLeftFunc(value, unicode.IsSpace))
			break
		}
	}
}

// parseVersionDump populates the identity record from a version dump
// snapshot. Fields keep their previous value when the dump does not
// mention them; a marker with nothing after it skips only that field.
func (e *Engine) parseVersionDump(lines []string) {
	id := e.info.snapshot()

	for _, m := range identityMarkers {
		for _, line := range lines {
			if !strings.Contains(line, m.marker) {
				continue
			}
			_, after, _ := strings.Cut(line, m.marker)
			if after == "" {
				e.stats.addMalformed()
				e.logf("%v: %q ends at marker %q", ErrMalformedLine, line, m.marker)
				break
			}
			value, _, _ := strings.Cut(after, " ")
			*m.sel(&id) = value
			break
		}
	}

	e.info.store(id)
}

// tokenAt returns the space-delimited token starting at a byte offset,
// empty when the line is too short.
func tokenAt(line string, offset int) string {
	if len(line) <= offset {
		return ""
	}
	token, _, _ := strings.Cut(line[offset:], " ")
	return token
}

// extractReading cuts a voltage value out of a report line: the first
// space-delimited word after the marker, rendered with the millivolt
// unit.
func extractReading(line, marker string) string {
	_, after, _ := strings.Cut(line, marker)
	after = strings.TrimLeftFunc(after, unicode.IsSpace)
	value, _, _ := strings.Cut(after, " ")
	return value + " mV"
}

func containsBootMarker(line string) bool {
	return strings.Contains(line, bootMarker)
}
