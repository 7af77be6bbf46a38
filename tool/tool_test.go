package tool

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type weatherInput struct {
	City  string `json:"city" jsonschema:"description=City name"`
	Units string `json:"units,omitempty" jsonschema:"enum=metric,enum=imperial"`
}

type weatherOutput struct {
	TempC float64 `json:"temp_c"`
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		tool    string
		wantErr bool
	}{
		{name: "simple name", tool: "get_weather"},
		{name: "dashes and digits", tool: "lookup-2"},
		{name: "spaces rejected", tool: "get weather", wantErr: true},
		{name: "empty rejected", tool: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec, err := New(tt.tool, Description("desc"))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.tool, spec.Name)
			assert.Equal(t, "desc", spec.Description)
		})
	}
}

func TestMust(t *testing.T) {
	assert.Panics(t, func() { Must("not valid!") })
	assert.NotPanics(t, func() { Must("valid") })
}

func TestInputOf(t *testing.T) {
	spec := Must("get_weather", InputOf[weatherInput](), OutputOf[weatherOutput]())
	require.NotNil(t, spec.InputSchema)
	require.NotNil(t, spec.OutputSchema)

	m, err := spec.InputSchemaMap()
	require.NoError(t, err)
	assert.Equal(t, "object", m["type"])
	props, ok := m["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "city")
	assert.Contains(t, props, "units")
	assert.Equal(t, []any{"city"}, m["required"])
	assert.NotContains(t, m, "$schema")
}

func getWeather(_ context.Context, in weatherInput) (weatherOutput, error) {
	return weatherOutput{}, nil
}

func TestFromFunc(t *testing.T) {
	spec, err := FromFunc(getWeather, Description("Current weather"))
	require.NoError(t, err)
	assert.Equal(t, "getWeather", spec.Name)
	assert.Equal(t, "Current weather", spec.Description)
	require.NotNil(t, spec.OutputSchema)

	m, err := spec.InputSchemaMap()
	require.NoError(t, err)
	props, ok := m["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "city")

	spec, err = FromFunc(getWeather, Name("get_weather"))
	require.NoError(t, err)
	assert.Equal(t, "get_weather", spec.Name)

	_, err = FromFunc("nope")
	assert.Error(t, err)
}

func TestInputSchemaMap_Default(t *testing.T) {
	m, err := Must("noop").InputSchemaMap()
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"type": "object", "properties": map[string]any{}}, m)
}

func TestSet(t *testing.T) {
	s := NewSet(Must("b"), Must("a"), Must("c"))
	assert.Equal(t, []string{"b", "a", "c"}, s.Names())

	s.Add(Must("a", Description("replaced")))
	assert.Equal(t, []string{"b", "a", "c"}, s.Names())
	got, ok := s.Get("a")
	require.True(t, ok)
	assert.Equal(t, "replaced", got.Description)

	var nilSet *Set
	assert.Equal(t, 0, nilSet.Len())
	assert.Empty(t, nilSet.Names())
}
