package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMetadata_String(t *testing.T) {
	tests := []struct {
		name string
		md   Metadata
		want string
	}{
		{name: "nil", md: nil, want: "null"},
		{name: "empty", md: Metadata{}, want: "{}"},
		{name: "values", md: Metadata{"task": "summarize", "n": 2}, want: `{"n":2,"task":"summarize"}`},
		{name: "unmarshalable", md: Metadata{"ch": make(chan int)}, want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.md.String())
		})
	}
}

func TestMetadata_CloneAndKeys(t *testing.T) {
	md := Metadata{"b": 1, "a": "x"}
	cl := md.Clone()
	cl["c"] = true

	assert.Len(t, md, 2)
	assert.Equal(t, []string{"a", "b", "c"}, cl.Keys())
	assert.Nil(t, Metadata(nil).Clone())

	s, ok := md.GetString("a")
	assert.True(t, ok)
	assert.Equal(t, "x", s)
	_, ok = md.GetString("b")
	assert.False(t, ok)
}
