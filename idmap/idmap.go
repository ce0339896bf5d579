// Package idmap attaches caller-supplied 64-bit identifiers to the node
// positions of a graph index.
//
// A Map either wraps a built index, in which case node i is identified by
// i, or wraps an empty index created by a builder and populates it once via
// AddWithIds. Search results are always reported in external identifiers.
package idmap

import (
	"context"
	"math"
	"slices"
	"sync"

	"github.com/hupe1980/vecforge/dataset"
	"github.com/hupe1980/vecforge/errs"
	"github.com/hupe1980/vecforge/graph"
)

// MissingID labels result slots for which fewer than k neighbors exist.
const MissingID int64 = -1

// Result is a neighbor in external identifiers.
type Result struct {
	ID       int64
	Distance float32
}

// Map is an index plus one external identifier per node position.
// It is safe for concurrent searches.
type Map struct {
	mu    sync.RWMutex
	idx   *graph.Index
	ids   []int64
	added bool
}

// Wrap binds idx. Nodes of a populated index are identified by position.
func Wrap(idx *graph.Index) (*Map, error) {
	if idx == nil {
		return nil, errs.Configuration("idmap.wrap", "index", "index is nil")
	}
	return &Map{idx: idx, ids: dataset.SequentialIDs(idx.Len())}, nil
}

// FromParts binds idx to ids, which must have one entry per node.
func FromParts(idx *graph.Index, ids []int64) (*Map, error) {
	if idx == nil {
		return nil, errs.Configuration("idmap.from_parts", "index", "index is nil")
	}
	if len(ids) != idx.Len() {
		return nil, errs.Configuration("idmap.from_parts", "ids", "%d ids for %d nodes", len(ids), idx.Len())
	}
	return &Map{idx: idx, ids: ids, added: idx.Len() > 0}, nil
}

// AddWithIds trains the wrapped empty index on vectors and records ids, so
// that position i is identified by ids[i]. It succeeds at most once.
func (m *Map) AddWithIds(ctx context.Context, vectors []float32, ids []int64) error {
	const op = "idmap.add_with_ids"

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.added || m.idx.Len() > 0 {
		return errs.InvalidState(op, "index already holds %d vectors", m.idx.Len())
	}
	trainer := m.idx.Trainer()
	if trainer == nil {
		return errs.InvalidState(op, "index was not created by a builder")
	}

	if ids == nil {
		return errs.Configuration(op, "ids", "ids are required")
	}
	ds, err := dataset.New(m.idx.Dim(), vectors, ids)
	if err != nil {
		return err
	}

	built, err := trainer.Build(ctx, ds, m.idx.Metric(), m.idx.Params())
	if err != nil {
		return err
	}

	m.idx = built
	m.ids = slices.Clone(ids)
	m.added = true
	return nil
}

// Search runs nq = len(queries)/Dim queries and returns row-major nq*k
// distances and labels. Slots without a neighbor hold +Inf and MissingID.
func (m *Map) Search(ctx context.Context, queries []float32, k int, opts graph.SearchOptions) ([]float32, []int64, error) {
	const op = "idmap.search"

	m.mu.RLock()
	defer m.mu.RUnlock()

	dim := m.idx.Dim()
	if len(queries) == 0 || len(queries)%dim != 0 {
		return nil, nil, errs.DimensionMismatch(op, dim, len(queries))
	}
	if k <= 0 {
		return nil, nil, errs.Configuration(op, "k", "must be positive, got %d", k)
	}
	if m.idx.Len() == 0 {
		return nil, nil, errs.EmptyIndex(op)
	}

	nq := len(queries) / dim
	distances := make([]float32, nq*k)
	labels := make([]int64, nq*k)
	for i := range distances {
		distances[i] = float32(math.Inf(1))
		labels[i] = MissingID
	}

	for q := 0; q < nq; q++ {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		found, err := m.idx.Search(queries[q*dim:(q+1)*dim], k, opts)
		if err != nil {
			return nil, nil, err
		}
		for j, nb := range found {
			distances[q*k+j] = nb.Distance
			labels[q*k+j] = m.ids[nb.Node]
		}
	}
	return distances, labels, nil
}

// SearchOne returns up to k neighbors of query, closest first, without padding.
func (m *Map) SearchOne(query []float32, k int, opts graph.SearchOptions) ([]Result, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	found, err := m.idx.Search(query, k, opts)
	if err != nil {
		return nil, err
	}
	out := make([]Result, len(found))
	for i, nb := range found {
		out[i] = Result{ID: m.ids[nb.Node], Distance: nb.Distance}
	}
	return out, nil
}

// Accept adapts a predicate over external identifiers to a node filter.
func (m *Map) Accept(fn func(id int64) bool) func(node uint32) bool {
	m.mu.RLock()
	ids := m.ids
	m.mu.RUnlock()
	return func(node uint32) bool { return fn(ids[node]) }
}

// Index returns the wrapped index.
func (m *Map) Index() *graph.Index {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.idx
}

// IDs returns the identifiers in position order. The slice must not be modified.
func (m *Map) IDs() []int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ids
}

// ExternalID returns the identifier of node position pos.
func (m *Map) ExternalID(pos uint32) (int64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if int(pos) >= len(m.ids) {
		return MissingID, false
	}
	return m.ids[pos], true
}

// Len returns the number of identified vectors.
func (m *Map) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.idx.Len()
}

// Dim returns the vector dimension.
func (m *Map) Dim() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.idx.Dim()
}
