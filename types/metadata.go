package types

import (
	"maps"
	"slices"

	json "github.com/goccy/go-json"
)

// Metadata is a free-form key/value bag attached to a call. Callers use it to
// thread tenant ids, task identifiers and similar values through to logging
// and to the run record, providers never interpret it.
//
// Metadata is a map and is not safe for concurrent modification.
type Metadata map[string]any

// String returns the JSON form of the metadata, or an empty string when it
// cannot be marshaled.
func (m Metadata) String() string {
	b, err := json.Marshal(m)
	if err != nil {
		return ""
	}
	return string(b)
}

// Clone returns a shallow copy of m.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	return maps.Clone(m)
}

// Keys returns the keys of m in sorted order.
func (m Metadata) Keys() []string {
	return slices.Sorted(maps.Keys(m))
}

// GetString returns the value for key when it is a string.
func (m Metadata) GetString(key string) (string, bool) {
	v, ok := m[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}
