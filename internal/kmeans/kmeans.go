package kmeans

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"runtime"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/vecforge/distance"
)

// ErrNoData is returned when there are no vectors to cluster.
var ErrNoData = errors.New("kmeans: no training vectors")

// Config controls a training run.
type Config struct {
	K       int
	Iters   int
	Metric  distance.Metric
	Seed    uint64
	Workers int // assignment parallelism; <= 0 uses GOMAXPROCS
}

// Train clusters the row-major vectors into at most cfg.K centroids and
// returns them flattened (k * dim). K is clamped to the number of rows.
// Results depend only on the input and cfg.Seed.
func Train(ctx context.Context, vectors []float32, dim int, cfg Config) ([]float32, error) {
	if dim <= 0 || len(vectors) < dim {
		return nil, ErrNoData
	}
	distFn, err := distance.Provider(cfg.Metric)
	if err != nil {
		return nil, err
	}

	n := len(vectors) / dim
	k := min(max(cfg.K, 1), n)
	iters := max(cfg.Iters, 1)
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	rng := rand.New(rand.NewPCG(cfg.Seed, 0x6b6d65616e73))
	centroids := seedPlusPlus(vectors, dim, n, k, rng)

	assign := make([]int32, n)
	for i := range assign {
		assign[i] = -1
	}
	sums := make([]float64, k*dim)
	counts := make([]int, k)

	for iter := 0; iter < iters; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		changed, err := assignAll(ctx, vectors, dim, centroids, k, distFn, assign, workers)
		if err != nil {
			return nil, err
		}
		if !changed && iter > 0 {
			break
		}

		clear(sums)
		clear(counts)
		for i := 0; i < n; i++ {
			c := int(assign[i])
			row := vectors[i*dim : (i+1)*dim]
			acc := sums[c*dim : (c+1)*dim]
			for d, v := range row {
				acc[d] += float64(v)
			}
			counts[c]++
		}

		for c := 0; c < k; c++ {
			dst := centroids[c*dim : (c+1)*dim]
			if counts[c] == 0 {
				// Re-seed an empty cluster from a random row.
				r := rng.IntN(n)
				copy(dst, vectors[r*dim:(r+1)*dim])
				continue
			}
			inv := 1 / float64(counts[c])
			for d := range dst {
				dst[d] = float32(sums[c*dim+d] * inv)
			}
		}
	}

	return centroids, nil
}

// seedPlusPlus picks initial centroids with k-means++ (squared L2 weighting).
func seedPlusPlus(vectors []float32, dim, n, k int, rng *rand.Rand) []float32 {
	centroids := make([]float32, k*dim)
	first := rng.IntN(n)
	copy(centroids[:dim], vectors[first*dim:(first+1)*dim])

	minDist := make([]float64, n)
	for i := range minDist {
		minDist[i] = math.MaxFloat64
	}

	for c := 1; c < k; c++ {
		prev := centroids[(c-1)*dim : c*dim]
		var total float64
		for i := 0; i < n; i++ {
			d := float64(distance.SquaredL2(vectors[i*dim:(i+1)*dim], prev))
			if d < minDist[i] {
				minDist[i] = d
			}
			total += minDist[i]
		}

		pick := n - 1
		if total > 0 {
			target := rng.Float64() * total
			var acc float64
			for i, d := range minDist {
				acc += d
				if acc >= target {
					pick = i
					break
				}
			}
		} else {
			pick = rng.IntN(n)
		}
		copy(centroids[c*dim:(c+1)*dim], vectors[pick*dim:(pick+1)*dim])
	}
	return centroids
}

func assignAll(ctx context.Context, vectors []float32, dim int, centroids []float32, k int, distFn distance.Func, assign []int32, workers int) (bool, error) {
	n := len(assign)
	chunk := (n + workers - 1) / workers
	changed := make([]bool, workers)

	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		lo, hi := w*chunk, min((w+1)*chunk, n)
		if lo >= hi {
			break
		}
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				if i%1024 == 0 {
					if err := ctx.Err(); err != nil {
						return err
					}
				}
				best := int32(nearest(vectors[i*dim:(i+1)*dim], centroids, dim, k, distFn))
				if assign[i] != best {
					assign[i] = best
					changed[w] = true
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return false, err
	}
	return slices.Contains(changed, true), nil
}

func nearest(vec, centroids []float32, dim, k int, distFn distance.Func) int {
	best := 0
	bestDist := float32(math.MaxFloat32)
	for c := 0; c < k; c++ {
		if d := distFn(vec, centroids[c*dim:(c+1)*dim]); d < bestDist {
			bestDist = d
			best = c
		}
	}
	return best
}

// Assign returns the index of the centroid closest to vec.
func Assign(vec, centroids []float32, dim int, metric distance.Metric) (int, error) {
	distFn, err := distance.Provider(metric)
	if err != nil {
		return -1, err
	}
	if len(centroids) < dim {
		return -1, ErrNoData
	}
	return nearest(vec, centroids, dim, len(centroids)/dim, distFn), nil
}

// Closest returns the indices of the n centroids nearest to query, nearest first.
// Ties are broken by centroid index.
func Closest(query, centroids []float32, dim, n int, metric distance.Metric) ([]int, error) {
	distFn, err := distance.Provider(metric)
	if err != nil {
		return nil, err
	}
	k := len(centroids) / dim
	n = min(n, k)

	type scored struct {
		id   int
		dist float32
	}
	all := make([]scored, k)
	for c := 0; c < k; c++ {
		all[c] = scored{id: c, dist: distFn(query, centroids[c*dim:(c+1)*dim])}
	}
	slices.SortFunc(all, func(a, b scored) int {
		switch {
		case a.dist < b.dist:
			return -1
		case a.dist > b.dist:
			return 1
		default:
			return a.id - b.id
		}
	})

	out := make([]int, n)
	for i := range out {
		out[i] = all[i].id
	}
	return out, nil
}
