// Package toolcall reassembles tool calls whose arguments arrive split over
// many stream deltas.
package toolcall

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/casualjim/hoot/messages"
	json "github.com/goccy/go-json"
)

var (
	// ErrUnknownIndex is returned when a delta references an index that was never started.
	ErrUnknownIndex = errors.New("toolcall: unknown content block index")
	// ErrMissingIndex is returned when a tool call delta carries no content block index.
	ErrMissingIndex = errors.New("toolcall: delta has no content block index")
	// ErrDuplicateIndex is returned when an index is started twice in one stream.
	ErrDuplicateIndex = errors.New("toolcall: content block index already started")
	// ErrInvalidArguments is returned when the buffered arguments are not a JSON object.
	ErrInvalidArguments = errors.New("toolcall: arguments are not a JSON object")
)

type entry struct {
	id    string
	name  string
	input strings.Builder
	done  bool
}

// Buffer holds the in-flight tool calls of one stream, keyed by content block index.
// It is not safe for concurrent use, a stream has a single consumer.
type Buffer struct {
	entries map[int]*entry
}

// NewBuffer creates an empty Buffer.
func NewBuffer() *Buffer {
	return &Buffer{entries: make(map[int]*entry)}
}

// Start opens the tool call at index.
func (b *Buffer) Start(index int, id, name string) error {
	if _, ok := b.entries[index]; ok {
		return fmt.Errorf("%w: %d", ErrDuplicateIndex, index)
	}
	b.entries[index] = &entry{id: id, name: name}
	return nil
}

// Has reports whether index was started.
func (b *Buffer) Has(index int) bool {
	_, ok := b.entries[index]
	return ok
}

// SetName fills in the id and name of an open call when the vendor sends them after the first fragment.
func (b *Buffer) SetName(index int, id, name string) error {
	e, ok := b.entries[index]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownIndex, index)
	}
	if id != "" {
		e.id = id
	}
	if name != "" {
		e.name += name
	}
	return nil
}

// Append adds an argument fragment to the call at index.
func (b *Buffer) Append(index int, fragment string) error {
	e, ok := b.entries[index]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownIndex, index)
	}
	e.input.WriteString(fragment)
	return nil
}

// Complete parses the arguments buffered at index and returns the finished call.
// Completing the same index twice is an error.
func (b *Buffer) Complete(index int) (messages.ToolCallRequest, error) {
	e, ok := b.entries[index]
	if !ok || e.done {
		return messages.ToolCallRequest{}, fmt.Errorf("%w: %d", ErrUnknownIndex, index)
	}
	input, err := parseArguments(e.input.String())
	if err != nil {
		return messages.ToolCallRequest{}, fmt.Errorf("tool call %q at index %d: %w", e.name, index, err)
	}
	e.done = true
	return messages.ToolCallRequest{ID: e.id, ToolName: e.name, ToolInput: input}, nil
}

// CompleteAll completes every open call in index order. It is used by vendors
// that only signal the end of the whole message.
func (b *Buffer) CompleteAll() ([]messages.ToolCallRequest, error) {
	var out []messages.ToolCallRequest
	for _, index := range slices.Sorted(maps.Keys(b.entries)) {
		if b.entries[index].done {
			continue
		}
		call, err := b.Complete(index)
		if err != nil {
			return out, err
		}
		out = append(out, call)
	}
	return out, nil
}

// Len returns the number of calls started so far, completed or not. Vendors
// that send whole calls without an index use it to number them.
func (b *Buffer) Len() int {
	return len(b.entries)
}

// Pending returns the number of started calls that were not completed yet.
func (b *Buffer) Pending() int {
	n := 0
	for _, e := range b.entries {
		if !e.done {
			n++
		}
	}
	return n
}

func parseArguments(raw string) (map[string]any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return map[string]any{}, nil
	}
	var input map[string]any
	if err := json.Unmarshal([]byte(raw), &input); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArguments, err)
	}
	if input == nil {
		input = map[string]any{}
	}
	return input, nil
}
