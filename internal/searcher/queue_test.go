package searcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMinHeapOrder(t *testing.T) {
	h := NewHeap(false, 4)
	for i, d := range []float32{5, 1, 4, 2, 3} {
		h.Push(Candidate{Node: uint32(i), Distance: d})
	}

	var got []float32
	for h.Len() > 0 {
		c, ok := h.Pop()
		require.True(t, ok)
		got = append(got, c.Distance)
	}
	assert.Equal(t, []float32{1, 2, 3, 4, 5}, got)

	_, ok := h.Pop()
	assert.False(t, ok)
}

func TestPushBoundedKeepsClosest(t *testing.T) {
	h := NewHeap(true, 3)
	for i, d := range []float32{9, 1, 8, 2, 7, 3} {
		h.PushBounded(Candidate{Node: uint32(i), Distance: d}, 3)
	}

	top, ok := h.Top()
	require.True(t, ok)
	assert.Equal(t, float32(3), top.Distance)

	sorted := h.Sorted()
	require.Len(t, sorted, 3)
	assert.Equal(t, []uint32{1, 3, 5}, []uint32{sorted[0].Node, sorted[1].Node, sorted[2].Node})
	assert.Equal(t, 0, h.Len())
}

func TestTieBreakByNode(t *testing.T) {
	h := NewHeap(true, 2)
	h.PushBounded(Candidate{Node: 7, Distance: 1}, 2)
	h.PushBounded(Candidate{Node: 3, Distance: 1}, 2)
	assert.True(t, h.PushBounded(Candidate{Node: 1, Distance: 1}, 2))

	sorted := h.Sorted()
	assert.Equal(t, uint32(1), sorted[0].Node)
	assert.Equal(t, uint32(3), sorted[1].Node)
}
