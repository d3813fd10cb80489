package cache

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestEncodeValue(t *testing.T) {
	v, err := EncodeValue("plain")
	if err != nil || v.IsJSON() || v.Raw() != "plain" {
		t.Fatalf("string: %+v %v", v, err)
	}

	v, err = EncodeValue(map[string]any{"name": "Alice", "age": 30})
	if err != nil || !v.IsJSON() {
		t.Fatalf("object: %+v %v", v, err)
	}
	if v.Raw() != `{"age":30,"name":"Alice"}` {
		t.Fatalf("unexpected encoding %q", v.Raw())
	}

	v, err = EncodeValue(42)
	if err != nil || v.Raw() != "42" || !v.IsJSON() {
		t.Fatalf("number: %+v %v", v, err)
	}

	if _, err := EncodeValue(make(chan int)); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for unserializable value, got %v", err)
	}
	if _, err := EncodeValue(Value{}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for zero Value, got %v", err)
	}
	if _, err := EncodeValue(nil); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for nil, got %v", err)
	}
}

func TestRawJSONValue(t *testing.T) {
	v, err := RawJSONValue([]byte(` { "a" : [1, 2] } `))
	if err != nil {
		t.Fatal(err)
	}
	if v.Raw() != `{"a":[1,2]}` || !v.IsJSON() {
		t.Fatalf("expected compact JSON, got %q", v.Raw())
	}

	v, err = RawJSONValue([]byte(`"hello"`))
	if err != nil || v.IsJSON() || v.Raw() != "hello" {
		t.Fatalf("string literal should become text, got %+v %v", v, err)
	}

	for _, bad := range []string{"", "   ", "{nope", `"unterminated`} {
		if _, err := RawJSONValue([]byte(bad)); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("%q: expected ErrInvalidInput, got %v", bad, err)
		}
	}
}

func TestValue_Decoded(t *testing.T) {
	v, _ := EncodeValue([]int{1, 2})
	raw, ok := v.Decoded().(json.RawMessage)
	if !ok || string(raw) != "[1,2]" {
		t.Fatalf("structured value should decode to JSON, got %#v", v.Decoded())
	}

	// Text that happens to look like JSON stays text.
	v = TextValue("[1,2]")
	if s, ok := v.Decoded().(string); !ok || s != "[1,2]" {
		t.Fatalf("text should decode to string, got %#v", v.Decoded())
	}

	v = Value{raw: "{broken", kind: kindJSON}
	if s, ok := v.Decoded().(string); !ok || s != "{broken" {
		t.Fatalf("unparseable JSON should fall back to text, got %#v", v.Decoded())
	}
}
