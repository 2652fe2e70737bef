package upstream

import (
	"bytes"
	"encoding/json"
)

// EmbeddedJSON is a response field that upstreams send as a JSON-encoded
// string holding an object. Parsing never fails the surrounding response:
// anything that is not an object decodes to the zero value.
type EmbeddedJSON struct {
	raw json.RawMessage
}

// ParseEmbedded parses s the same way UnmarshalJSON treats a string field.
func ParseEmbedded(s string) EmbeddedJSON {
	return EmbeddedJSON{raw: objectOrNil([]byte(s))}
}

func (e *EmbeddedJSON) UnmarshalJSON(data []byte) error {
	e.raw = nil
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil
		}
		e.raw = objectOrNil([]byte(s))
	case '{':
		e.raw = objectOrNil(data)
	}
	return nil
}

func (e EmbeddedJSON) MarshalJSON() ([]byte, error) {
	if len(e.raw) == 0 {
		return []byte("null"), nil
	}
	return e.raw, nil
}

// IsZero reports whether no object was present.
func (e EmbeddedJSON) IsZero() bool { return len(e.raw) == 0 }

// Map returns the object as a map, nil when absent.
func (e EmbeddedJSON) Map() map[string]any {
	if e.IsZero() {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(e.raw, &m); err != nil {
		return nil
	}
	return m
}

// Decode unmarshals the object into v. An absent object leaves v untouched.
func (e EmbeddedJSON) Decode(v any) error {
	if e.IsZero() {
		return nil
	}
	return json.Unmarshal(e.raw, v)
}

func objectOrNil(data []byte) json.RawMessage {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' || !json.Valid(data) {
		return nil
	}
	out := make(json.RawMessage, len(data))
	copy(out, data)
	return out
}
