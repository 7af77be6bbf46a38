// Package jsonx converts between typed values and dynamic JSON documents.
package jsonx

import (
	"bytes"

	json "github.com/goccy/go-json"
)

// ToDynamicJSON converts any value to a map[string]any by round-tripping it
// through JSON. Vendors that take schemas as free-form objects are fed this way.
func ToDynamicJSON(val any) (map[string]any, error) {
	b, err := json.Marshal(val)
	if err != nil {
		return nil, err
	}
	result := make(map[string]any)
	if err = json.Unmarshal(b, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// Canonical returns a compact encoding of val with object keys sorted.
// Two semantically equal documents produce identical bytes.
func Canonical(val any) ([]byte, error) {
	b, err := json.Marshal(val)
	if err != nil {
		return nil, err
	}
	var generic any
	if err := json.Unmarshal(b, &generic); err != nil {
		return nil, err
	}
	// map keys are sorted by the encoder
	out, err := json.Marshal(generic)
	if err != nil {
		return nil, err
	}
	return bytes.TrimSpace(out), nil
}
