package cache

import (
	"bytes"
	"encoding/json"
)

type valueKind uint8

const (
	kindUnset valueKind = iota
	kindText
	kindJSON
)

// Value is a cached payload. It is always stored as text; values written as
// structured data keep a flag so reads can hand them back decoded.
// The zero Value means "no value" and is rejected by writes.
type Value struct {
	raw  string
	kind valueKind
}

// TextValue wraps a literal string.
func TextValue(s string) Value {
	return Value{raw: s, kind: kindText}
}

// RawJSONValue stores an already-encoded JSON document in compact form.
// A JSON string literal is unwrapped and stored as text.
func RawJSONValue(doc []byte) (Value, error) {
	doc = bytes.TrimSpace(doc)
	if len(doc) == 0 {
		return Value{}, invalidf("value is required")
	}
	if doc[0] == '"' {
		var s string
		if err := json.Unmarshal(doc, &s); err != nil {
			return Value{}, invalidf("value: %v", err)
		}
		return TextValue(s), nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, doc); err != nil {
		return Value{}, invalidf("value: %v", err)
	}
	return Value{raw: buf.String(), kind: kindJSON}, nil
}

// EncodeValue converts an arbitrary Go value the way the HTTP service does:
// strings are stored verbatim, everything else as canonical JSON.
func EncodeValue(v any) (Value, error) {
	switch t := v.(type) {
	case nil:
		return Value{}, invalidf("value is required")
	case string:
		return TextValue(t), nil
	case Value:
		if t.IsZero() {
			return Value{}, invalidf("value is required")
		}
		return t, nil
	case json.RawMessage:
		return RawJSONValue(t)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return Value{}, invalidf("value is not JSON-serializable: %v", err)
	}
	return Value{raw: string(data), kind: kindJSON}, nil
}

// IsZero reports whether v carries no value.
func (v Value) IsZero() bool { return v.kind == kindUnset }

// IsJSON reports whether v was written as a structured value.
func (v Value) IsJSON() bool { return v.kind == kindJSON }

// Raw returns the stored text.
func (v Value) Raw() string { return v.raw }

// Decoded returns the value in the form it was written: a json.RawMessage
// for structured values, a string otherwise. A structured value whose text
// no longer parses falls back to the raw string.
func (v Value) Decoded() any {
	if v.kind == kindJSON && json.Valid([]byte(v.raw)) {
		return json.RawMessage(v.raw)
	}
	return v.raw
}

