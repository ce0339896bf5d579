// Package graph holds built proximity-graph indexes and traverses them.
//
// An Index is immutable once built. Its adjacency is either a dense
// fixed-degree matrix (Accelerator) or a compressed sparse row layout
// (Portable); both expose the same neighbor lists, so traversal, transfer
// and persistence never branch on the layout beyond construction.
package graph

import (
	"context"
	"fmt"

	"github.com/hupe1980/vecforge/dataset"
	"github.com/hupe1980/vecforge/device"
	"github.com/hupe1980/vecforge/distance"
	"github.com/hupe1980/vecforge/errs"
	"github.com/hupe1980/vecforge/internal/quantization"
)

// Trainer builds a populated index from a dataset. An empty index created
// through a builder carries its trainer so it can be populated exactly once.
type Trainer interface {
	Build(ctx context.Context, ds *dataset.Dataset, metric distance.Metric, params Params) (*Index, error)
}

// Parts is everything needed to assemble an Index.
type Parts struct {
	Representation Representation
	Device         device.Device
	Dim            int
	Metric         distance.Metric
	Params         Params
	Entry          uint32

	// Rows holds one neighbor list per node. Portable indexes may instead
	// supply Offsets (len N+1) and Neighbors in CSR form.
	Rows      [][]uint32
	Offsets   []uint64
	Neighbors []uint32

	// Vectors holds N*Dim raw values when the dataset is retained.
	Vectors []float32
	// Quantizer and Codes (N*M bytes) allow traversal without raw vectors.
	Quantizer *quantization.ProductQuantizer
	Codes     []byte
}

// Index is a built proximity graph.
type Index struct {
	repr    Representation
	dev     device.Device
	dim     int
	metric  distance.Metric
	params  Params
	entry   uint32
	adj     adjacency
	vectors []float32
	pq      *quantization.ProductQuantizer
	codes   []byte
	distFn  distance.Func
	trainer Trainer
}

// New assembles an index from parts, checking structural consistency.
func New(p Parts) (*Index, error) {
	distFn, err := distance.Provider(p.Metric)
	if err != nil {
		return nil, errs.Configuration("graph.new", "metric", "%v", err)
	}
	if p.Dim <= 0 {
		return nil, errs.Configuration("graph.new", "dim", "dimension must be positive, got %d", p.Dim)
	}

	var adj adjacency
	switch {
	case p.Offsets != nil:
		if p.Representation != Portable {
			return nil, errs.Configuration("graph.new", "offsets", "CSR adjacency requires the portable representation")
		}
		c := &csr{offsets: p.Offsets, neighbors: p.Neighbors}
		if err := c.check(); err != nil {
			return nil, errs.Configuration("graph.new", "offsets", "%v", err)
		}
		adj = c
	case p.Representation == Accelerator:
		width := 0
		for _, r := range p.Rows {
			width = max(width, len(r))
		}
		adj = newDense(p.Rows, max(width, min(p.Params.GraphDegree, max(len(p.Rows)-1, 0))))
	default:
		adj = newCSR(p.Rows)
	}

	n := adj.len()
	if err := checkNeighbors(adj); err != nil {
		return nil, errs.Configuration("graph.new", "neighbors", "%v", err)
	}
	if n > 0 && int(p.Entry) >= n {
		return nil, errs.Configuration("graph.new", "entry", "entry node %d out of range for %d nodes", p.Entry, n)
	}
	if p.Vectors != nil && len(p.Vectors) != n*p.Dim {
		return nil, errs.Configuration("graph.new", "vectors", "%d values for %d nodes of dimension %d", len(p.Vectors), n, p.Dim)
	}
	if p.Quantizer != nil && len(p.Codes) != n*p.Quantizer.M() {
		return nil, errs.Configuration("graph.new", "codes", "%d code bytes for %d nodes of %d sub-quantizers", len(p.Codes), n, p.Quantizer.M())
	}
	if n > 0 && p.Vectors == nil && p.Quantizer == nil {
		return nil, errs.Configuration("graph.new", "vectors", "index needs raw vectors or product-quantized codes")
	}

	dev := p.Device
	if p.Representation == Portable {
		dev = device.HostDevice()
	}

	return &Index{
		repr:    p.Representation,
		dev:     dev,
		dim:     p.Dim,
		metric:  p.Metric,
		params:  p.Params,
		entry:   p.Entry,
		adj:     adj,
		vectors: p.Vectors,
		pq:      p.Quantizer,
		codes:   p.Codes,
		distFn:  distFn,
	}, nil
}

// NewEmpty creates an index without vectors that trainer can populate.
func NewEmpty(repr Representation, dev device.Device, dim int, metric distance.Metric, params Params, trainer Trainer) (*Index, error) {
	idx, err := New(Parts{Representation: repr, Device: dev, Dim: dim, Metric: metric, Params: params})
	if err != nil {
		return nil, err
	}
	idx.trainer = trainer
	return idx, nil
}

// Len returns the number of nodes.
func (x *Index) Len() int { return x.adj.len() }

// Dim returns the vector dimension.
func (x *Index) Dim() int { return x.dim }

// Metric returns the distance metric.
func (x *Index) Metric() distance.Metric { return x.metric }

// Params returns the construction parameters.
func (x *Index) Params() Params { return x.params }

// Representation returns the adjacency layout tag.
func (x *Index) Representation() Representation { return x.repr }

// Device returns the device holding the index. Portable indexes live on the host.
func (x *Index) Device() device.Device { return x.dev }

// Entry returns the node traversal starts from.
func (x *Index) Entry() uint32 { return x.entry }

// Trainer returns the trainer of an empty index, or nil.
func (x *Index) Trainer() Trainer { return x.trainer }

// Degree returns the out-degree of node.
func (x *Index) Degree(node uint32) int { return x.adj.degree(node) }

// Neighbors appends the out-neighbors of node to buf.
func (x *Index) Neighbors(node uint32, buf []uint32) []uint32 {
	return x.adj.appendNeighbors(node, buf)
}

// Edges returns the total number of directed edges.
func (x *Index) Edges() int { return x.adj.edges() }

// MaxDegree returns the largest out-degree.
func (x *Index) MaxDegree() int {
	if d, ok := x.adj.(*dense); ok {
		return d.width
	}
	m := 0
	for i := 0; i < x.Len(); i++ {
		m = max(m, x.adj.degree(uint32(i)))
	}
	return m
}

// HasVectors reports whether raw vectors are retained.
func (x *Index) HasVectors() bool { return x.vectors != nil }

// Vector returns the raw vector of node. It panics without retained vectors.
func (x *Index) Vector(node uint32) []float32 {
	i := int(node)
	return x.vectors[i*x.dim : (i+1)*x.dim : (i+1)*x.dim]
}

// Vectors returns the retained row-major vectors, or nil.
func (x *Index) Vectors() []float32 { return x.vectors }

// Quantizer returns the product quantizer, or nil.
func (x *Index) Quantizer() *quantization.ProductQuantizer { return x.pq }

// Codes returns the N*M product-quantized codes, or nil.
func (x *Index) Codes() []byte { return x.codes }

// Distance computes the metric between two vectors.
func (x *Index) Distance(a, b []float32) float32 { return x.distFn(a, b) }

func (x *Index) String() string {
	return fmt.Sprintf("graph.Index{%s, n=%d, dim=%d, metric=%s, degree=%d}",
		x.repr, x.Len(), x.dim, x.metric, x.params.GraphDegree)
}
