// Package builder constructs proximity-graph indexes.
//
// Construction runs in two phases. Candidate generation finds
// IntermediateGraphDegree near neighbors per node, either through an
// IVF-PQ coarse search or through greedy incremental insertion. Refinement
// then prunes each candidate list by rank-based detour counting, merges
// reverse edges and tops rows up to GraphDegree.
//
// The device behind the builder's Resources decides the result layout: an
// accelerator yields the dense Accelerator representation, the host yields
// the Portable one.
//
// # Usage
//
//	res := device.NewResources(device.HostDevice())
//	b := builder.New(res)
//	idx, err := b.Build(ctx, ds, distance.MetricL2, graph.DefaultParams())
package builder

import (
	"context"
	"math"
	"time"

	"github.com/hupe1980/vecforge/dataset"
	"github.com/hupe1980/vecforge/device"
	"github.com/hupe1980/vecforge/distance"
	"github.com/hupe1980/vecforge/errs"
	"github.com/hupe1980/vecforge/graph"
	"github.com/hupe1980/vecforge/internal/quantization"
	"github.com/hupe1980/vecforge/logging"
	"github.com/hupe1980/vecforge/metrics"
)

// IVFPQ tunes IVF-PQ candidate generation. Zero values select defaults.
type IVFPQ struct {
	// NLists is the number of coarse clusters. 0 means round(sqrt(N)).
	NLists int
	// KMeansIters is the number of coarse k-means iterations.
	KMeansIters int
	// TrainsetFraction is the share of rows sampled for training, in (0, 1].
	TrainsetFraction float64
	// PQBits is the code width per sub-quantizer.
	PQBits int
	// PQDim is the number of sub-quantizers. 0 picks one automatically.
	PQDim int
	// NProbes is the number of coarse lists searched per node.
	NProbes int
	// RefineRate multiplies the intermediate degree to size the exact re-rank pool.
	RefineRate float64
}

// DefaultIVFPQ returns the default IVF-PQ tuning.
func DefaultIVFPQ() IVFPQ {
	return IVFPQ{
		KMeansIters:      10,
		TrainsetFraction: 0.5,
		PQBits:           8,
		NProbes:          30,
		RefineRate:       2,
	}
}

// Options configures a Builder.
type Options struct {
	IVFPQ   IVFPQ
	Logger  *logging.Logger
	Metrics metrics.Collector
}

// Builder builds graph indexes on one device.
type Builder struct {
	res  *device.Resources
	opts Options
}

// New creates a builder that leases work from res.
func New(res *device.Resources, optFns ...func(o *Options)) *Builder {
	opts := Options{IVFPQ: DefaultIVFPQ()}
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.Logger = logging.OrNoop(opts.Logger)
	opts.Metrics = metrics.OrNoop(opts.Metrics)
	if res == nil {
		res = device.NewResources(device.HostDevice())
	}
	return &Builder{res: res, opts: opts}
}

// Device returns the device indexes are built on.
func (b *Builder) Device() device.Device { return b.res.Device() }

// Representation returns the layout of indexes this builder produces.
func (b *Builder) Representation() graph.Representation {
	if b.res.Device().Kind == device.Accelerator {
		return graph.Accelerator
	}
	return graph.Portable
}

// NewIndex creates an empty index that can be populated exactly once
// through idmap.Map.AddWithIds.
func (b *Builder) NewIndex(dim int, metric distance.Metric, params graph.Params) (*graph.Index, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return graph.NewEmpty(b.Representation(), b.res.Device(), dim, metric, params, b)
}

// Build constructs an index over ds. Node i of the result is row i of ds.
func (b *Builder) Build(ctx context.Context, ds *dataset.Dataset, metric distance.Metric, params graph.Params) (idx *graph.Index, err error) {
	start := time.Now()
	n := 0
	if ds != nil {
		n = ds.Len()
	}
	log := b.opts.Logger.WithDevice(b.res.Device().ID, b.res.Device().Kind.String())
	defer func() {
		elapsed := time.Since(start)
		log.LogBuild(ctx, params.BuildAlgo.String(), n, params.GraphDegree, elapsed, err)
		b.opts.Metrics.RecordBuild(n, elapsed, err)
	}()

	ivf, err := b.validate(ds, metric, params)
	if err != nil {
		return nil, err
	}

	degree := min(params.GraphDegree, n-1)
	inter := min(params.IntermediateGraphDegree, n-1)

	lease, err := b.res.Acquire(ctx, "build", EstimateBytes(n, ds.Dim(), params, ivf))
	if err != nil {
		return nil, err
	}
	defer lease.Release()

	w := &work{
		ctx:     ctx,
		ds:      ds,
		metric:  metric,
		params:  params,
		ivf:     ivf,
		workers: lease.Streams(),
		log:     log,
	}
	if w.distFn, err = distance.Provider(metric); err != nil {
		return nil, errs.Configuration("builder.build", "metric", "%v", err)
	}

	phase := time.Now()
	var knn [][]uint32
	switch params.BuildAlgo {
	case graph.BuildAlgoGreedy:
		knn, err = w.greedy(inter)
	default:
		knn, err = w.ivfpq(inter)
	}
	if err != nil {
		return nil, err
	}
	log.DebugContext(ctx, "candidate generation finished", "algo", params.BuildAlgo.String(), "intermediate_degree", inter, "elapsed", time.Since(phase))

	phase = time.Now()
	rows, err := w.refine(knn, degree)
	if err != nil {
		return nil, err
	}
	log.DebugContext(ctx, "graph refinement finished", "degree", degree, "elapsed", time.Since(phase))

	parts := graph.Parts{
		Representation: b.Representation(),
		Device:         b.res.Device(),
		Dim:            ds.Dim(),
		Metric:         metric,
		Params:         params,
		Entry:          w.entry(),
		Rows:           rows,
	}
	if params.StoreDataset {
		parts.Vectors = append([]float32(nil), ds.Vectors()...)
	} else {
		if w.pq == nil {
			if err := w.trainPQ(); err != nil {
				return nil, err
			}
		}
		parts.Quantizer = w.pq
		parts.Codes = w.codes
	}

	return graph.New(parts)
}

// validate checks inputs and resolves the IVF-PQ defaults for ds.
func (b *Builder) validate(ds *dataset.Dataset, metric distance.Metric, params graph.Params) (IVFPQ, error) {
	const op = "builder.build"
	ivf := b.opts.IVFPQ

	if ds == nil || ds.Dim() <= 0 {
		return ivf, errs.Configuration(op, "dim", "dataset dimension must be positive")
	}
	if ds.Len() == 0 {
		return ivf, errs.Configuration(op, "dataset", "dataset is empty")
	}
	if err := params.Validate(); err != nil {
		return ivf, err
	}
	if !metric.Valid() {
		return ivf, errs.Configuration(op, "metric", "unsupported metric %v", metric)
	}

	needPQ := params.BuildAlgo == graph.BuildAlgoIVFPQ || !params.StoreDataset
	if !needPQ {
		return ivf, nil
	}

	n, dim := ds.Len(), ds.Dim()
	if ivf.NLists <= 0 {
		ivf.NLists = max(int(math.Round(math.Sqrt(float64(n)))), 1)
	}
	ivf.NLists = min(ivf.NLists, n)
	if ivf.KMeansIters <= 0 {
		return ivf, errs.Configuration(op, "kmeans_n_iters", "must be positive, got %d", ivf.KMeansIters)
	}
	if ivf.TrainsetFraction <= 0 || ivf.TrainsetFraction > 1 {
		return ivf, errs.Configuration(op, "kmeans_trainset_fraction", "%g outside (0, 1]", ivf.TrainsetFraction)
	}
	if ivf.PQDim <= 0 {
		ivf.PQDim = quantization.AutoSubQuantizers(dim)
	}
	if dim%ivf.PQDim != 0 {
		return ivf, errs.Configuration(op, "pq_dim", "%d does not divide dimension %d", ivf.PQDim, dim)
	}
	if b.res.Device().Kind == device.Accelerator {
		if ivf.PQBits < 4 || ivf.PQBits > 8 {
			return ivf, errs.Configuration(op, "pq_bits", "%d outside [4, 8]", ivf.PQBits)
		}
	} else if ivf.PQBits != 8 && !params.StoreDataset {
		return ivf, errs.Configuration(op, "pq_bits", "host indexes without raw vectors need 8-bit codes, got %d", ivf.PQBits)
	} else if ivf.PQBits < 1 || ivf.PQBits > 8 {
		return ivf, errs.Configuration(op, "pq_bits", "%d outside [1, 8]", ivf.PQBits)
	}
	if ivf.NProbes <= 0 {
		return ivf, errs.Configuration(op, "n_probes", "must be positive, got %d", ivf.NProbes)
	}
	if ivf.RefineRate < 1 {
		return ivf, errs.Configuration(op, "refine_rate", "%g is below 1", ivf.RefineRate)
	}
	return ivf, nil
}

// EstimateBytes returns the working memory a build of n vectors needs.
func EstimateBytes(n, dim int, params graph.Params, ivf IVFPQ) int64 {
	n64, d64 := int64(n), int64(dim)
	inter := int64(min(params.IntermediateGraphDegree, max(n-1, 0)))
	degree := int64(min(params.GraphDegree, max(n-1, 0)))

	total := n64 * d64 * 4        // retained vectors
	total += n64 * inter * 4      // candidate lists
	total += n64 * degree * 4 * 2 // pruned rows and reverse edges
	if params.BuildAlgo == graph.BuildAlgoIVFPQ || !params.StoreDataset {
		m := int64(max(ivf.PQDim, 1))
		bits := min(max(ivf.PQBits, 1), 8)
		total += n64 * m                             // codes
		total += int64(1<<bits) * d64 * 4            // codebooks
		total += int64(max(ivf.NLists, 1)) * d64 * 4 // coarse centroids
		total += n64 * 4                             // list assignment
	}
	return total
}
