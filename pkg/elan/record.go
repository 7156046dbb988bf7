// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package elan

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Record is one captured host-link message. A capture file is a CBOR
// sequence of records.
type Record struct {
	TimeMs  int64  `cbor:"0,keyasint"`
	Kind    uint8  `cbor:"1,keyasint"`
	Payload []byte `cbor:"2,keyasint,omitempty"`
	Text    string `cbor:"3,keyasint,omitempty"`
}

// NewRecord captures a host message.
func NewRecord(m *HostMessage) Record {
	r := Record{
		TimeMs: m.Timestamp.UnixMilli(),
		Kind:   uint8(m.Kind),
	}
	switch m.Kind {
	case KindStatus:
		r.Payload = append([]byte(nil), m.Frame[:]...)
	case KindError:
		r.Text = m.Text
	}
	return r
}

// Message rebuilds the host message from a record.
func (r Record) Message() (*HostMessage, error) {
	m := &HostMessage{
		Kind:      MessageKind(r.Kind),
		Timestamp: time.UnixMilli(r.TimeMs),
	}
	switch m.Kind {
	case KindStatus:
		if len(r.Payload) != StatusLen {
			return nil, fmt.Errorf("record payload length %d, want %d", len(r.Payload), StatusLen)
		}
		copy(m.Frame[:], r.Payload)
	case KindError:
		m.Text = r.Text
	default:
		return nil, fmt.Errorf("unknown record kind %d", r.Kind)
	}
	return m, nil
}

// RecordWriter appends records to a capture stream.
type RecordWriter struct {
	enc *cbor.Encoder
}

// NewRecordWriter creates a capture writer.
func NewRecordWriter(w io.Writer) *RecordWriter {
	return &RecordWriter{enc: cbor.NewEncoder(w)}
}

// Write appends one message.
func (w *RecordWriter) Write(m *HostMessage) error {
	if err := w.enc.Encode(NewRecord(m)); err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}
	return nil
}

// ReadRecords reads a capture stream until EOF.
func ReadRecords(r io.Reader) ([]Record, error) {
	dec := cbor.NewDecoder(r)
	var out []Record
	for {
		var rec Record
		err := dec.Decode(&rec)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, fmt.Errorf("failed to decode record %d: %w", len(out), err)
		}
		out = append(out, rec)
	}
}
