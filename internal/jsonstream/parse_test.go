package jsonstream

import (
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Prefixes(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		want     any
		ok       bool
		complete bool
	}{
		{name: "empty", input: "", ok: false},
		{name: "open object", input: "{", want: map[string]any{}, ok: true},
		{name: "partial key", input: `{"na`, want: map[string]any{}, ok: true},
		{name: "key without value", input: `{"name": `, want: map[string]any{}, ok: true},
		{name: "partial string value", input: `{"name": "Ali`, want: map[string]any{"name": "Ali"}, ok: true},
		{name: "partial number excluded", input: `{"age": 4`, want: map[string]any{}, ok: true},
		{name: "terminated number", input: `{"age": 42,`, want: map[string]any{"age": 42.0}, ok: true},
		{name: "partial literal", input: `{"ok": tr`, want: map[string]any{}, ok: true},
		{name: "complete literal", input: `{"ok": true`, want: map[string]any{"ok": true}, ok: true},
		{name: "null", input: `{"v": null}`, want: map[string]any{"v": nil}, ok: true, complete: true},
		{name: "nested", input: `{"a": {"b": [1, "x`, want: map[string]any{"a": map[string]any{"b": []any{1.0, "x"}}}, ok: true},
		{name: "dangling escape", input: `"line\`, want: "line", ok: true},
		{name: "escapes", input: `"a\n\"b\"é`, want: "a\n\"b\"é", ok: true},
		{name: "partial unicode escape", input: `"caf\u00`, want: "caf", ok: true},
		{name: "surrogate pair", input: `"\ud83d\ude00"`, want: "😀", ok: true, complete: true},
		{name: "half surrogate pair", input: `"x\ud83d`, want: "x", ok: true},
		{name: "partial utf8 rune", input: "\"caf\xc3", want: "caf", ok: true},
		{name: "code fence", input: "```json\n{\"a\": \"b\"}\n```", want: map[string]any{"a": "b"}, ok: true, complete: true},
		{name: "code fence header only", input: "```js", ok: false},
		{name: "top level number", input: "12", ok: false},
		{name: "top level array", input: `[1, 2, 3]`, want: []any{1.0, 2.0, 3.0}, ok: true, complete: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Parse(tt.input)
			require.NoError(t, res.Err)
			assert.Equal(t, tt.ok, res.OK)
			assert.Equal(t, tt.complete, res.Complete)
			if tt.ok {
				assert.Equal(t, tt.want, res.Value)
			}
		})
	}
}

func TestParse_SyntaxErrors(t *testing.T) {
	for _, input := range []string{"hello", `{"a" 1}`, `{1: 2}`, `[1 2]`, `{"a": nul!}`, `{"a": -}`} {
		t.Run(input, func(t *testing.T) {
			res := Parse(input)
			assert.ErrorIs(t, res.Err, ErrSyntax)
			assert.False(t, res.OK)
		})
	}
}

func TestParse_CompleteMatchesDecoder(t *testing.T) {
	doc := `{"title":"Q3 \"report\"","tags":["a","b"],"score":-1.5e2,"nested":{"deep":[{"k":false},null]},"empty":{},"list":[]}`
	var want any
	require.NoError(t, json.Unmarshal([]byte(doc), &want))

	res := Parse(doc)
	require.NoError(t, res.Err)
	assert.True(t, res.Complete)
	assert.Equal(t, want, res.Value)
}

func TestExtends(t *testing.T) {
	tests := []struct {
		name       string
		prev, next any
		want       bool
	}{
		{"nil to nil", nil, nil, true},
		{"nil to value", nil, "x", false},
		{"string grows", "ab", "abc", true},
		{"string changes", "ab", "ac", false},
		{"key kept", map[string]any{"a": "x"}, map[string]any{"a": "xy", "b": 1.0}, true},
		{"key lost", map[string]any{"a": "x"}, map[string]any{"b": 1.0}, false},
		{"array grows", []any{"a"}, []any{"ab", 2.0}, true},
		{"array shrinks", []any{"a", "b"}, []any{"a"}, false},
		{"number changes", 1.0, 2.0, false},
		{"type changes", map[string]any{}, []any{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Extends(tt.prev, tt.next))
		})
	}
}
