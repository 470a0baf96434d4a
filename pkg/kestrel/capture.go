// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Dana Whitfield, Rovertec

package kestrel

import (
	"fmt"
	"io"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Capture file format version
const CaptureVersion = 1

// CaptureHeader opens a capture file.
type CaptureHeader struct {
	Version int       `cbor:"1,keyasint"`
	Port    string    `cbor:"2,keyasint"`
	Started time.Time `cbor:"3,keyasint"`
}

// CaptureRecord is one captured console line.
type CaptureRecord struct {
	T    time.Time `cbor:"1,keyasint"`
	Line string    `cbor:"2,keyasint"`
}

// captureEncMode keeps sub-second timestamps; the default time encoding
// truncates to whole seconds.
var captureEncMode = func() cbor.EncMode {
	em, err := cbor.EncOptions{Time: cbor.TimeUnixMicro}.EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

// CaptureWriter streams console lines into a CBOR capture.
type CaptureWriter struct {
	enc *cbor.Encoder
}

// NewCaptureWriter writes the capture header and returns a writer for
// the line records.
func NewCaptureWriter(w io.Writer, port string) (*CaptureWriter, error) {
	enc := captureEncMode.NewEncoder(w)
	header := CaptureHeader{
		Version: CaptureVersion,
		Port:    port,
		Started: time.Now(),
	}
	if err := enc.Encode(header); err != nil {
		return nil, fmt.Errorf("write capture header: %w", err)
	}
	return &CaptureWriter{enc: enc}, nil
}

// Write appends one line record.
func (cw *CaptureWriter) Write(t time.Time, line string) error {
	if err := cw.enc.Encode(CaptureRecord{T: t, Line: line}); err != nil {
		return fmt.Errorf("write capture record: %w", err)
	}
	return nil
}

// CaptureReader streams line records out of a CBOR capture.
type CaptureReader struct {
	dec    *cbor.Decoder
	header CaptureHeader
}

// NewCaptureReader reads and validates the capture header.
func NewCaptureReader(r io.Reader) (*CaptureReader, error) {
	dec := cbor.NewDecoder(r)

	var header CaptureHeader
	if err := dec.Decode(&header); err != nil {
		return nil, fmt.Errorf("read capture header: %w", err)
	}
	if header.Version != CaptureVersion {
		return nil, fmt.Errorf("unsupported capture version %d", header.Version)
	}
	return &CaptureReader{dec: dec, header: header}, nil
}

// Header returns the capture header.
func (cr *CaptureReader) Header() CaptureHeader {
	return cr.header
}

// Read returns the next line record. io.EOF marks the end of the
// capture.
func (cr *CaptureReader) Read() (CaptureRecord, error) {
	var rec CaptureRecord
	if err := cr.dec.Decode(&rec); err != nil {
		if err == io.EOF {
			return CaptureRecord{}, io.EOF
		}
		return CaptureRecord{}, fmt.Errorf("read capture record: %w", err)
	}
	return rec, nil
}
