package query

import (
	"github.com/hupe1980/vecforge/errs"
	"github.com/hupe1980/vecforge/idmap"
	"github.com/hupe1980/vecforge/internal/searcher"
)

// BruteForce scans every vector of m and returns the exact k nearest
// neighbors of q. The index must retain its raw vectors.
func BruteForce(m *idmap.Map, q []float32, k int) ([]Result, error) {
	const op = "query.brute_force"
	idx := m.Index()
	if len(q) != idx.Dim() {
		return nil, errs.DimensionMismatch(op, idx.Dim(), len(q))
	}
	if k <= 0 {
		return nil, errs.Configuration(op, "k", "must be positive, got %d", k)
	}
	n := idx.Len()
	if n == 0 {
		return nil, errs.EmptyIndex(op)
	}
	if !idx.HasVectors() {
		return nil, errs.InvalidState(op, "exact search needs retained vectors")
	}

	k = min(k, n)
	h := searcher.NewHeap(true, k)
	for i := 0; i < n; i++ {
		h.PushBounded(searcher.Candidate{Node: uint32(i), Distance: idx.Distance(q, idx.Vector(uint32(i)))}, k)
	}

	ids := m.IDs()
	sorted := h.Sorted()
	out := make([]Result, len(sorted))
	for i, c := range sorted {
		out[i] = Result{ID: ids[c.Node], Distance: c.Distance}
	}
	return out, nil
}

// Recall returns the fraction of truth identifiers present in got.
func Recall(got, truth []Result) float64 {
	if len(truth) == 0 {
		return 1
	}
	want := make(map[int64]struct{}, len(truth))
	for _, r := range truth {
		want[r.ID] = struct{}{}
	}
	hits := 0
	for _, r := range got {
		if _, ok := want[r.ID]; ok {
			hits++
			delete(want, r.ID)
		}
	}
	return float64(hits) / float64(len(truth))
}
