// Package dataset holds the dense float32 vectors an index is built from,
// and the codecs that read them from raw little-endian files and Arrow IPC.
package dataset

import (
	"math/rand/v2"

	"github.com/hupe1980/vecforge/errs"
)

// Dataset is an immutable row-major matrix of N vectors of dimension Dim,
// optionally paired with one external identifier per row.
type Dataset struct {
	dim     int
	vectors []float32
	ids     []int64
}

// New validates the shape of vectors and ids. ids may be nil.
// The slices are retained, not copied.
func New(dim int, vectors []float32, ids []int64) (*Dataset, error) {
	if dim <= 0 {
		return nil, errs.Configuration("dataset.new", "dim", "dimension must be positive, got %d", dim)
	}
	if len(vectors)%dim != 0 {
		return nil, errs.Configuration("dataset.new", "vectors", "%d values is not a multiple of dimension %d", len(vectors), dim)
	}
	n := len(vectors) / dim
	if ids != nil && len(ids) != n {
		return nil, errs.Configuration("dataset.new", "ids", "%d ids for %d vectors", len(ids), n)
	}
	return &Dataset{dim: dim, vectors: vectors, ids: ids}, nil
}

// Dim returns the vector dimension.
func (d *Dataset) Dim() int { return d.dim }

// Len returns the number of vectors.
func (d *Dataset) Len() int {
	if d == nil || d.dim == 0 {
		return 0
	}
	return len(d.vectors) / d.dim
}

// Row returns vector i without copying.
func (d *Dataset) Row(i int) []float32 {
	return d.vectors[i*d.dim : (i+1)*d.dim : (i+1)*d.dim]
}

// Vectors returns the row-major backing slice.
func (d *Dataset) Vectors() []float32 { return d.vectors }

// HasIDs reports whether external identifiers were supplied.
func (d *Dataset) HasIDs() bool { return d.ids != nil }

// IDs returns the external identifiers, or 0..N-1 when none were supplied.
func (d *Dataset) IDs() []int64 {
	if d.ids != nil {
		return d.ids
	}
	return SequentialIDs(d.Len())
}

// Slice returns rows [lo, hi) as a new dataset sharing storage.
func (d *Dataset) Slice(lo, hi int) *Dataset {
	out := &Dataset{dim: d.dim, vectors: d.vectors[lo*d.dim : hi*d.dim]}
	if d.ids != nil {
		out.ids = d.ids[lo:hi]
	}
	return out
}

// SequentialIDs returns 0..n-1.
func SequentialIDs(n int) []int64 {
	ids := make([]int64, n)
	for i := range ids {
		ids[i] = int64(i)
	}
	return ids
}

// Random returns n uniform vectors in [0, 1) drawn from a PCG stream seeded
// with seed, with sequential ids.
func Random(n, dim int, seed uint64) *Dataset {
	rng := rand.New(rand.NewPCG(seed, seed^0x5eed))
	vectors := make([]float32, n*dim)
	for i := range vectors {
		vectors[i] = rng.Float32()
	}
	return &Dataset{dim: dim, vectors: vectors}
}

// Clustered returns n vectors scattered with unit Gaussian noise around
// clusters centers drawn uniformly from [-10, 10).
func Clustered(n, dim, clusters int, seed uint64) *Dataset {
	rng := rand.New(rand.NewPCG(seed, seed^0xc105))
	clusters = max(clusters, 1)
	centers := make([]float32, clusters*dim)
	for i := range centers {
		centers[i] = rng.Float32()*20 - 10
	}
	vectors := make([]float32, n*dim)
	for i := 0; i < n; i++ {
		c := rng.IntN(clusters)
		for j := 0; j < dim; j++ {
			vectors[i*dim+j] = centers[c*dim+j] + float32(rng.NormFloat64())
		}
	}
	return &Dataset{dim: dim, vectors: vectors}
}
