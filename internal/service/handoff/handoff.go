// Package handoff extracts the caller intake record that the assistant embeds
// in its own speech as a marker line:
//
//	INTAKE: {"name":"Jane Doe","phone":"6015551212","city":"Jackson","state":"MS","reason":"housing"}
//
// The record is built incrementally: each extraction carries only the keys it
// mentions, and Record.Apply merges them field by field.
package handoff

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Marker prefixes the JSON object inside transcript text.
const Marker = "INTAKE:"

// Field names a handoff record field.
type Field string

const (
	FieldName   Field = "name"
	FieldPhone  Field = "phone"
	FieldCity   Field = "city"
	FieldState  Field = "state"
	FieldReason Field = "reason"
)

// Fields lists every record field in output order.
var Fields = []Field{FieldName, FieldPhone, FieldCity, FieldState, FieldReason}

// ErrMalformed is returned when the marker is present but what follows is not
// a JSON object.
var ErrMalformed = errors.New("malformed handoff payload")

// Record is the caller intake record. Nil fields are unknown.
type Record struct {
	Name   *string `json:"name"`
	Phone  *string `json:"phone"`
	City   *string `json:"city"`
	State  *string `json:"state"`
	Reason *string `json:"reason"`
}

// NewRecord returns a record with the phone field pre-filled from the caller
// number, when one is known.
func NewRecord(callerNumber string) Record {
	var r Record
	if callerNumber != "" {
		r.Phone = &callerNumber
	}
	return r
}

func (r *Record) field(f Field) **string {
	switch f {
	case FieldName:
		return &r.Name
	case FieldPhone:
		return &r.Phone
	case FieldCity:
		return &r.City
	case FieldState:
		return &r.State
	case FieldReason:
		return &r.Reason
	}
	return nil
}

// Get returns the value of a field, or nil when it is unknown.
func (r Record) Get(f Field) *string {
	p := r.field(f)
	if p == nil {
		return nil
	}
	return *p
}

// Apply merges an update into the record. Keys present in the update replace
// the current value, including an explicit null. Keys absent from the update
// leave the current value untouched.
func (r *Record) Apply(u *Update) {
	if u == nil {
		return
	}
	for _, f := range Fields {
		v, ok := u.values[f]
		if !ok {
			continue
		}
		if v != nil {
			s := *v
			v = &s
		}
		*r.field(f) = v
	}
}

// Update is the set of fields mentioned by one extraction.
type Update struct {
	values map[Field]*string
}

// Has reports whether the extraction mentioned the field.
func (u *Update) Has(f Field) bool {
	_, ok := u.values[f]
	return ok
}

// Get returns the mentioned value; nil means absent or explicit null.
func (u *Update) Get(f Field) *string {
	return u.values[f]
}

// Len returns how many known fields the extraction mentioned.
func (u *Update) Len() int {
	return len(u.values)
}

// Extract looks for the marker anywhere in text and parses the JSON object
// that follows it on the same line. It returns (nil, nil) when the marker is
// absent, and ErrMalformed when the payload cannot be parsed. Text after the
// closing brace on the same line is ignored.
func Extract(text string) (*Update, error) {
	idx := strings.Index(text, Marker)
	if idx < 0 {
		return nil, nil
	}

	rest := text[idx+len(Marker):]
	if nl := strings.IndexAny(rest, "\r\n"); nl >= 0 {
		rest = rest[:nl]
	}
	rest = strings.TrimSpace(rest)
	if rest == "" {
		return nil, fmt.Errorf("%w: empty payload", ErrMalformed)
	}

	var obj map[string]json.RawMessage
	dec := json.NewDecoder(strings.NewReader(rest))
	if err := dec.Decode(&obj); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if obj == nil {
		return nil, fmt.Errorf("%w: payload is null", ErrMalformed)
	}

	u := &Update{values: make(map[Field]*string, len(Fields))}
	for _, f := range Fields {
		raw, ok := obj[string(f)]
		if !ok {
			continue
		}
		v, ok := scalar(raw)
		if !ok {
			continue
		}
		u.values[f] = v
	}
	return u, nil
}

// scalar converts a JSON scalar to its string form. Objects and arrays are
// not usable as field values and are skipped.
func scalar(raw json.RawMessage) (*string, bool) {
	s := strings.TrimSpace(string(raw))
	switch {
	case s == "null":
		return nil, true
	case strings.HasPrefix(s, `"`):
		var v string
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, false
		}
		return &v, true
	case strings.HasPrefix(s, "{"), strings.HasPrefix(s, "["):
		return nil, false
	default:
		return &s, true
	}
}
