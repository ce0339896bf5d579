package searcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type listGraph [][]uint32

func (g listGraph) Len() int { return len(g) }

func (g listGraph) Neighbors(node uint32, buf []uint32) []uint32 {
	return append(buf, g[node]...)
}

// line builds points 0..n-1 on a line, each linked to its neighbors.
func line(n int) listGraph {
	g := make(listGraph, n)
	for i := range g {
		if i > 0 {
			g[i] = append(g[i], uint32(i-1))
		}
		if i < n-1 {
			g[i] = append(g[i], uint32(i+1))
		}
	}
	return g
}

func absDist(target float32) DistanceFunc {
	return func(node uint32) float32 {
		d := float32(node) - target
		if d < 0 {
			d = -d
		}
		return d
	}
}

func TestSearchFindsNearest(t *testing.T) {
	g := line(100)
	s := New(g.Len())

	res := s.Search(g, absDist(70), Params{Entries: []uint32{0}, EF: 8, Want: 3})
	require.GreaterOrEqual(t, len(res), 3)
	assert.Equal(t, uint32(70), res[0].Node)
	assert.Equal(t, float32(0), res[0].Distance)
}

func TestSearchRestartsOnDisconnectedGraph(t *testing.T) {
	// No edges at all: every node is its own component.
	g := make(listGraph, 10)
	s := New(g.Len())

	res := s.Search(g, absDist(5), Params{Entries: []uint32{0}, EF: 4, Want: 4})
	assert.Len(t, res, 4)
}

func TestSearchWantExceedsNodes(t *testing.T) {
	g := line(3)
	s := New(g.Len())

	res := s.Search(g, absDist(0), Params{Entries: []uint32{2}, EF: 10, Want: 10})
	require.Len(t, res, 3)
	assert.Equal(t, []uint32{0, 1, 2}, []uint32{res[0].Node, res[1].Node, res[2].Node})
}

func TestSearchFilter(t *testing.T) {
	g := line(50)
	s := New(g.Len())
	even := func(n uint32) bool { return n%2 == 0 }

	res := s.Search(g, absDist(11), Params{Entries: []uint32{0}, EF: 4, Want: 2, Accept: even})
	require.Len(t, res, 4)
	for _, c := range res {
		assert.Zero(t, c.Node%2)
	}
	assert.Contains(t, []uint32{10, 12}, res[0].Node)
}

func TestSearchEmptyGraph(t *testing.T) {
	s := New(0)
	assert.Empty(t, s.Search(listGraph{}, absDist(0), Params{Entries: []uint32{0}, EF: 4, Want: 1}))
}

func TestPoolReuse(t *testing.T) {
	var p Pool
	s := p.Get(16)
	s.Visited.Visit(3)
	p.Put(s)

	s2 := p.Get(128)
	g := line(128)
	res := s2.Search(g, absDist(127), Params{Entries: []uint32{0}, EF: 2, Want: 1})
	require.NotEmpty(t, res)
	assert.Equal(t, uint32(127), res[0].Node)
}
