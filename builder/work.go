package builder

import (
	"context"
	"math"
	"math/rand/v2"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/vecforge/dataset"
	"github.com/hupe1980/vecforge/distance"
	"github.com/hupe1980/vecforge/errs"
	"github.com/hupe1980/vecforge/graph"
	"github.com/hupe1980/vecforge/internal/quantization"
	"github.com/hupe1980/vecforge/logging"
)

// work is the state of one Build call.
type work struct {
	ctx     context.Context
	ds      *dataset.Dataset
	metric  distance.Metric
	params  graph.Params
	ivf     IVFPQ
	workers int
	log     *logging.Logger
	distFn  distance.Func

	pq    *quantization.ProductQuantizer
	codes []byte
	train []float32
}

func (w *work) seed() uint64 { return uint64(w.params.Seed) }

// parallel calls fn on disjoint node ranges covering [0, n). Each node is
// handled by exactly one call, so results written per node do not depend
// on the number of workers.
func (w *work) parallel(n int, fn func(lo, hi int) error) error {
	workers := max(w.workers, 1)
	chunk := max((n+workers*4-1)/(workers*4), 1)

	g, ctx := errgroup.WithContext(w.ctx)
	g.SetLimit(workers)
	for lo := 0; lo < n; lo += chunk {
		hi := min(lo+chunk, n)
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return fn(lo, hi)
		})
	}
	return g.Wait()
}

// trainset returns the seeded training sample shared by the coarse
// quantizer and the product quantizer.
func (w *work) trainset() []float32 {
	if w.train != nil {
		return w.train
	}
	n, dim := w.ds.Len(), w.ds.Dim()
	size := int(math.Ceil(w.ivf.TrainsetFraction * float64(n)))
	size = min(max(size, w.ivf.NLists, 1), n)
	if size == n {
		w.train = w.ds.Vectors()
		return w.train
	}

	rng := rand.New(rand.NewPCG(w.seed(), 0x747261696e736574))
	rows := rng.Perm(n)[:size]
	slices.Sort(rows)

	w.train = make([]float32, 0, size*dim)
	for _, i := range rows {
		w.train = append(w.train, w.ds.Row(i)...)
	}
	return w.train
}

// trainPQ trains the product quantizer and encodes every row.
func (w *work) trainPQ() error {
	pq, err := quantization.NewProductQuantizer(w.ds.Dim(), w.ivf.PQDim, w.ivf.PQBits, w.metric)
	if err != nil {
		return errs.Configuration("builder.build", "pq_dim", "%v", err)
	}
	if err := pq.Train(w.ctx, w.trainset(), quantization.TrainOptions{
		Iters:   w.ivf.KMeansIters,
		Seed:    w.seed() ^ 0x7071,
		Workers: w.workers,
	}); err != nil {
		return err
	}
	codes, err := pq.EncodeAll(w.ctx, w.ds.Vectors(), w.workers)
	if err != nil {
		return err
	}
	w.pq, w.codes = pq, codes
	return nil
}

// entry returns the node closest to the dataset mean.
func (w *work) entry() uint32 {
	n, dim := w.ds.Len(), w.ds.Dim()
	sums := make([]float64, dim)
	for i := 0; i < n; i++ {
		for j, v := range w.ds.Row(i) {
			sums[j] += float64(v)
		}
	}
	mean := make([]float32, dim)
	for j := range mean {
		mean[j] = float32(sums[j] / float64(n))
	}

	best, bestDist := 0, float32(math.MaxFloat32)
	for i := 0; i < n; i++ {
		if d := distance.SquaredL2(mean, w.ds.Row(i)); d < bestDist {
			best, bestDist = i, d
		}
	}
	return uint32(best)
}
