package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONOutput(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    any
		wantErr bool
	}{
		{name: "object", content: `{"a":1}`, want: map[string]any{"a": float64(1)}},
		{name: "fenced", content: "```json\n{\"a\":true}\n```", want: map[string]any{"a": true}},
		{name: "padded", content: "  [1,2]  ", want: []any{float64(1), float64(2)}},
		{name: "empty", content: "   ", wantErr: true},
		{name: "truncated", content: `{"a":`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := JSONOutput(tt.content)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, IsValidationError(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSchemaOutput(t *testing.T) {
	factory, err := SchemaOutput(map[string]any{
		"type":     "object",
		"required": []any{"city"},
		"properties": map[string]any{
			"city": map[string]any{"type": "string"},
		},
	})
	require.NoError(t, err)

	v, err := factory(`{"city":"Paris"}`)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"city": "Paris"}, v)

	_, err = factory(`{"town":"Paris"}`)
	require.Error(t, err)
	pe, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, KindJSONSchemaValidation, pe.Kind)
	assert.True(t, pe.StoreTaskRun)
	assert.Contains(t, pe.Message, "city")
}

func TestStripCodeFence(t *testing.T) {
	assert.Equal(t, `{}`, StripCodeFence("```\n{}\n```"))
	assert.Equal(t, `{}`, StripCodeFence(" {} "))
	assert.Equal(t, "", StripCodeFence("```json"))
}

func TestPassthroughAndText(t *testing.T) {
	v, err := PassthroughPartial(map[string]any{"a": 1})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": 1}, v)

	s, err := TextOutput("hi")
	require.NoError(t, err)
	assert.Equal(t, "hi", s)
}
