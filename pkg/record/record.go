// Package record turns raw P21 response payloads into a uniform sequence of
// records.
//
// P21 endpoints are inconsistent about what they return: some send a bare
// object, some a JSON array, and failures arrive as an error envelope object
// carrying an ErrorType marker. Normalize collapses all of these into
// []Record or a *RemoteServiceError.
package record

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Record is the raw JSON of a single ERP record.
type Record []byte

// MarshalJSON emits the record unchanged.
func (r Record) MarshalJSON() ([]byte, error) {
	if len(r) == 0 {
		return []byte("null"), nil
	}
	return r, nil
}

// Decode unmarshals the record into v.
func (r Record) Decode(v any) error {
	if err := json.Unmarshal(r, v); err != nil {
		return fmt.Errorf("decode record: %w", err)
	}
	return nil
}

// Fields returns the top-level fields of an object record.
func (r Record) Fields() (map[string]json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(r, &fields); err != nil {
		return nil, fmt.Errorf("record fields: %w", err)
	}
	return fields, nil
}

// Shape returns the key casing variant of the record.
func (r Record) Shape() Shape {
	return DetectShape(r)
}

// Lookup resolves a canonical snake_case field name through the record's
// shape and returns its raw value.
func (r Record) Lookup(name string) (json.RawMessage, bool) {
	fields, err := r.Fields()
	if err != nil {
		return nil, false
	}
	value, ok := fields[shapeOf(fields).FieldName(name)]
	if !ok || bytes.Equal(value, []byte("null")) {
		return nil, false
	}
	return value, true
}

// String returns the field as a string. Numbers are rendered in their JSON
// form; a missing field yields "".
func (r Record) String(name string) string {
	value, ok := r.Lookup(name)
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(value, &s); err == nil {
		return s
	}
	return string(value)
}
