package domain

import (
	"bytes"
	"encoding/json"
)

// Payload is the opaque structured value carried by a Task or Message. The
// core never introspects a payload's contents — only its ContentType and
// byte-equality (for tests and request/response correlation) — so it is
// modelled as a tagged byte buffer rather than interface{}.
type Payload struct {
	ContentType string `json:"content_type,omitempty"`
	Bytes       []byte `json:"bytes,omitempty"`
}

// JSON builds a Payload by marshalling v as JSON.
func JSON(v interface{}) (Payload, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return Payload{}, err
	}
	return Payload{ContentType: "application/json", Bytes: b}, nil
}

// Text builds a Payload from a plain string.
func Text(s string) Payload {
	return Payload{ContentType: "text/plain", Bytes: []byte(s)}
}

// Decode unmarshals a JSON payload into v.
func (p Payload) Decode(v interface{}) error {
	return json.Unmarshal(p.Bytes, v)
}

// Equal reports whether two payloads carry the same content type and bytes.
func (p Payload) Equal(other Payload) bool {
	return p.ContentType == other.ContentType && bytes.Equal(p.Bytes, other.Bytes)
}

func (p Payload) IsZero() bool {
	return p.ContentType == "" && len(p.Bytes) == 0
}
