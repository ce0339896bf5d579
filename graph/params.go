package graph

import (
	"fmt"
	"strings"

	"github.com/hupe1980/vecforge/errs"
)

// Representation tags how adjacency is laid out.
type Representation uint8

const (
	// Accelerator is a dense fixed-degree matrix resident on an accelerator device.
	Accelerator Representation = iota
	// Portable is a compressed sparse row layout usable on any host.
	Portable
)

func (r Representation) String() string {
	switch r {
	case Accelerator:
		return "accelerator"
	case Portable:
		return "portable"
	default:
		return fmt.Sprintf("Representation(%d)", r)
	}
}

// BuildAlgo selects candidate generation.
type BuildAlgo uint8

const (
	// BuildAlgoIVFPQ probes an inverted file with product-quantized distances.
	BuildAlgoIVFPQ BuildAlgo = iota
	// BuildAlgoGreedy inserts nodes one by one with beam search.
	BuildAlgoGreedy
)

func (a BuildAlgo) String() string {
	switch a {
	case BuildAlgoIVFPQ:
		return "ivf_pq"
	case BuildAlgoGreedy:
		return "greedy"
	default:
		return fmt.Sprintf("BuildAlgo(%d)", a)
	}
}

// Valid reports whether a is a known algorithm.
func (a BuildAlgo) Valid() bool { return a == BuildAlgoIVFPQ || a == BuildAlgoGreedy }

// ParseBuildAlgo accepts "ivf_pq" (or "ivfpq") and "greedy" (or "iterative").
func ParseBuildAlgo(s string) (BuildAlgo, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ivf_pq", "ivfpq", "":
		return BuildAlgoIVFPQ, nil
	case "greedy", "iterative":
		return BuildAlgoGreedy, nil
	default:
		return 0, errs.Configuration("graph.parse_build_algo", "algo", "unknown build algorithm %q", s)
	}
}

// Params are the construction parameters persisted with an index.
type Params struct {
	// GraphDegree is the out-degree of the final graph.
	GraphDegree int
	// IntermediateGraphDegree is the candidate list length before pruning.
	IntermediateGraphDegree int
	// BuildAlgo selects candidate generation.
	BuildAlgo BuildAlgo
	// StoreDataset keeps raw vectors in the index for exact distances.
	StoreDataset bool
	// Seed drives every random choice made during construction.
	Seed int64
}

// DefaultParams returns degree 32, intermediate degree 64, IVF-PQ candidates
// and retained vectors.
func DefaultParams() Params {
	return Params{
		GraphDegree:             32,
		IntermediateGraphDegree: 64,
		BuildAlgo:               BuildAlgoIVFPQ,
		StoreDataset:            true,
	}
}

// Validate checks the parameters independently of any dataset.
func (p Params) Validate() error {
	if p.GraphDegree <= 0 {
		return errs.Configuration("graph.params", "graph_degree", "must be positive, got %d", p.GraphDegree)
	}
	if p.IntermediateGraphDegree < p.GraphDegree {
		return errs.Configuration("graph.params", "intermediate_graph_degree",
			"%d is smaller than graph degree %d", p.IntermediateGraphDegree, p.GraphDegree)
	}
	if !p.BuildAlgo.Valid() {
		return errs.Configuration("graph.params", "build_algo", "unknown build algorithm %d", p.BuildAlgo)
	}
	return nil
}
