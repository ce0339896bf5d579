package searcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVisitedSet(t *testing.T) {
	v := NewVisitedSet(64)
	ids := []uint32{0, 1, 63, 64, 100, 1000}

	for _, id := range ids {
		assert.False(t, v.Visited(id))
		assert.True(t, v.Visit(id))
	}
	for _, id := range ids {
		assert.True(t, v.Visited(id))
	}
	assert.False(t, v.Visit(0), "second visit")
	assert.Equal(t, len(ids), v.Count())

	v.Reset()
	for _, id := range ids {
		assert.False(t, v.Visited(id))
	}
	assert.Equal(t, 0, v.Count())
}
