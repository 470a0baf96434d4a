// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Dana Whitfield, Rovertec

package kestrel

import "strings"

// LineDecoder assembles console lines from a byte stream under a
// configurable line break policy. Terminator bytes never appear in
// completed lines and empty lines are never produced.
//
// Bytes are treated as Latin-1: every byte maps to exactly one rune, so
// nothing the tracker emits is dropped as invalid text.
type LineDecoder struct {
	term      Terminator
	buf       strings.Builder
	pendingCR bool // CRLF mode: carriage return seen, line feed outstanding
}

// NewLineDecoder creates a decoder with the given line break policy.
func NewLineDecoder(term Terminator) *LineDecoder {
	return &LineDecoder{term: term}
}

// Terminator returns the active line break policy.
func (d *LineDecoder) Terminator() Terminator {
	return d.term
}

// SetTerminator switches the line break policy. The accumulated partial
// line is kept; a half-seen CRLF is dropped.
func (d *LineDecoder) SetTerminator(term Terminator) {
	d.term = term
	d.pendingCR = false
}

// Feed processes a single byte. It returns the completed line and true
// when the byte terminates one, otherwise ("", false).
//
// A carriage return with an empty accumulator does not arm the CRLF
// pending flag. Once armed, the flag survives Feed calls and Abandon;
// only a completed CRLF line clears it.
func (d *LineDecoder) Feed(b byte) (string, bool) {
	switch b {
	case '\n':
		if d.term == TermLF && d.buf.Len() > 0 {
			return d.take(), true
		}
		if d.term == TermCRLF && d.pendingCR && d.buf.Len() > 0 {
			d.pendingCR = false
			return d.take(), true
		}
		return "", false

	case '\r':
		if d.term == TermCR && d.buf.Len() > 0 {
			return d.take(), true
		}
		if d.term == TermCRLF && d.buf.Len() > 0 {
			d.pendingCR = true
		}
		return "", false

	default:
		d.buf.WriteRune(rune(b))
		return "", false
	}
}

// Buffered returns the size of the partial line accumulated so far.
func (d *LineDecoder) Buffered() int {
	return d.buf.Len()
}

// Abandon drops the partial line without completing it. Used when a line
// stalls past LineTimeout or the connection dies mid-line. The CRLF
// pending flag is preserved.
func (d *LineDecoder) Abandon() {
	d.buf.Reset()
}

func (d *LineDecoder) take() string {
	line := d.buf.String()
	d.buf.Reset()
	return line
}
