package graph

import (
	"github.com/hupe1980/vecforge/errs"
	"github.com/hupe1980/vecforge/internal/searcher"
)

// DefaultEF is the beam width used when a search does not set one.
const DefaultEF = 100

var searchers searcher.Pool

// SearchOptions tune a single query.
type SearchOptions struct {
	// EF is the beam width; the effective width is max(EF, k).
	EF int
	// Filter restricts results to accepted node positions.
	Filter func(node uint32) bool
}

// Neighbor is a node position and its distance to the query.
type Neighbor struct {
	Node     uint32
	Distance float32
}

// Search returns up to k nodes nearest to query, closest first. Without a
// filter exactly min(k, Len()) neighbors are returned.
//
// With retained vectors distances are exact; otherwise they are asymmetric
// product-quantization estimates.
func (x *Index) Search(query []float32, k int, opts SearchOptions) ([]Neighbor, error) {
	if len(query) != x.dim {
		return nil, errs.DimensionMismatch("graph.search", x.dim, len(query))
	}
	if k <= 0 {
		return nil, errs.Configuration("graph.search", "k", "must be positive, got %d", k)
	}
	n := x.Len()
	if n == 0 {
		return nil, errs.EmptyIndex("graph.search")
	}

	ef := opts.EF
	if ef <= 0 {
		ef = DefaultEF
	}

	s := searchers.Get(n)
	defer searchers.Put(s)

	found := s.Search(x, x.distanceTo(query), searcher.Params{
		Entries: []uint32{x.entry},
		EF:      max(ef, k),
		Want:    k,
		Accept:  opts.Filter,
	})

	out := make([]Neighbor, 0, min(k, len(found)))
	for _, c := range found[:min(k, len(found))] {
		out = append(out, Neighbor{Node: c.Node, Distance: c.Distance})
	}
	return out, nil
}

// distanceTo returns the traversal distance from query to any node.
func (x *Index) distanceTo(query []float32) searcher.DistanceFunc {
	if x.vectors != nil {
		return func(node uint32) float32 {
			return x.distFn(query, x.Vector(node))
		}
	}
	table := x.pq.DistanceTable(query)
	m := x.pq.M()
	return func(node uint32) float32 {
		i := int(node)
		return table.Distance(x.codes[i*m : (i+1)*m])
	}
}
