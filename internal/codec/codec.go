// Package codec translates the two external wire protocols into the bridge's
// internal event model.
//
// Telephony frames are JSON objects discriminated by an "event" field
// (start, media, stop). AI realtime frames are JSON objects discriminated by a
// "type" field, with many near-synonymous names for the same capability. Both
// directions decode into a closed set of variants so the session only ever
// switches on a finite enumeration.
package codec

import (
	"errors"
	"fmt"
)

// Source identifies which connection a frame came from.
type Source string

const (
	SourceTelephony Source = "telephony"
	SourceRealtime  Source = "realtime"
)

// ErrMissingField is wrapped by DecodeError when a required field is absent.
var ErrMissingField = errors.New("missing required field")

// DecodeError describes a frame that could not be decoded. It is always
// recoverable: the caller drops the frame and continues.
type DecodeError struct {
	Source Source
	Type   string
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("decode %s frame %q: %s", e.Source, e.Type, e.Reason)
	}
	return fmt.Sprintf("decode %s frame: %s", e.Source, e.Reason)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func decodeErr(src Source, typ, reason string, err error) *DecodeError {
	return &DecodeError{Source: src, Type: typ, Reason: reason, Err: err}
}

func missing(src Source, typ, field string) *DecodeError {
	return decodeErr(src, typ, field+" is required", ErrMissingField)
}
