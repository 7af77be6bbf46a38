package jsonstream

import (
	"math/rand/v2"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregator_Write(t *testing.T) {
	var a Aggregator
	_, changed := a.Write(`{"cit`)
	assert.True(t, changed, "an open object is a value")

	_, changed = a.Write(`y": `)
	assert.False(t, changed)

	v, changed := a.Write(`"Par`)
	assert.True(t, changed)
	assert.Equal(t, map[string]any{"city": "Par"}, v)

	_, changed = a.Write(``)
	assert.False(t, changed)

	v, changed = a.Write(`is", "pop": 2`)
	assert.True(t, changed)
	assert.Equal(t, map[string]any{"city": "Paris"}, v)

	v, changed = a.Write(`1}`)
	assert.True(t, changed)
	assert.Equal(t, map[string]any{"city": "Paris", "pop": 21.0}, v)

	assert.Equal(t, `{"city": "Paris", "pop": 21}`, a.Content())
}

func TestAggregator_Monotonic(t *testing.T) {
	doc := `{"summary":"It was a \"dark\" and stormy night…","items":[{"id":1,"tags":["x","yz"]},{"id":22,"ok":true,"none":null}],"ratio":0.125}`
	var want any
	require.NoError(t, json.Unmarshal([]byte(doc), &want))

	rng := rand.New(rand.NewPCG(7, 11))
	for round := range 100 {
		var a Aggregator
		var yielded []any

		rest := doc
		for len(rest) > 0 {
			n := 1 + rng.IntN(min(len(rest), 8))
			if v, changed := a.Write(rest[:n]); changed {
				yielded = append(yielded, v)
			}
			rest = rest[n:]
		}

		require.NotEmpty(t, yielded)
		for i := 1; i < len(yielded); i++ {
			require.True(t, Extends(yielded[i-1], yielded[i]), "round %d: output %d regressed: %v -> %v", round, i, yielded[i-1], yielded[i])
		}
		require.Equal(t, want, yielded[len(yielded)-1], "round %d", round)
	}
}

func TestAggregator_IgnoresProse(t *testing.T) {
	var a Aggregator
	_, changed := a.Write("Sure! Here is")
	assert.False(t, changed)
	_, ok := a.Value()
	assert.False(t, ok)
}
