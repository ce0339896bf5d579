package quantization

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/vecforge/distance"
	"github.com/hupe1980/vecforge/internal/kmeans"
)

var (
	// ErrNotTrained is returned when encoding with an untrained quantizer.
	ErrNotTrained = errors.New("quantization: product quantizer not trained")
	// ErrDimension is returned for vectors of the wrong length.
	ErrDimension = errors.New("quantization: vector dimension mismatch")
)

// ProductQuantizer splits vectors into M sub-spaces with 2^bits centroids each.
type ProductQuantizer struct {
	dim       int
	m         int
	bits      int
	k         int
	subDim    int
	metric    distance.Metric
	codebooks []float32 // m * k * subDim
	trained   bool
}

// NewProductQuantizer creates an untrained quantizer.
// dim must be divisible by m and bits must lie in [1, 8].
func NewProductQuantizer(dim, m, bits int, metric distance.Metric) (*ProductQuantizer, error) {
	if dim <= 0 || m <= 0 {
		return nil, fmt.Errorf("quantization: dimension %d and sub-quantizers %d must be positive", dim, m)
	}
	if dim%m != 0 {
		return nil, fmt.Errorf("quantization: dimension %d not divisible by %d sub-quantizers", dim, m)
	}
	if bits < 1 || bits > 8 {
		return nil, fmt.Errorf("quantization: %d bits per code outside [1, 8]", bits)
	}
	if !metric.Valid() {
		return nil, fmt.Errorf("quantization: unsupported metric %v", metric)
	}
	k := 1 << bits
	return &ProductQuantizer{
		dim:       dim,
		m:         m,
		bits:      bits,
		k:         k,
		subDim:    dim / m,
		metric:    metric,
		codebooks: make([]float32, m*k*(dim/m)),
	}, nil
}

// FromCodebooks restores a trained quantizer from persisted codebooks.
func FromCodebooks(dim, m, bits int, metric distance.Metric, codebooks []float32) (*ProductQuantizer, error) {
	pq, err := NewProductQuantizer(dim, m, bits, metric)
	if err != nil {
		return nil, err
	}
	if len(codebooks) != len(pq.codebooks) {
		return nil, fmt.Errorf("quantization: codebook length %d, want %d", len(codebooks), len(pq.codebooks))
	}
	copy(pq.codebooks, codebooks)
	pq.trained = true
	return pq, nil
}

// TrainOptions controls codebook training.
type TrainOptions struct {
	Iters   int
	Seed    uint64
	Workers int
}

// Train learns one codebook per sub-space from the row-major trainset.
// Sub-spaces train in parallel; each uses a seed derived from opts.Seed so
// the result does not depend on scheduling.
func (pq *ProductQuantizer) Train(ctx context.Context, trainset []float32, opts TrainOptions) error {
	n := len(trainset) / pq.dim
	if n == 0 || len(trainset)%pq.dim != 0 {
		return ErrDimension
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for s := 0; s < pq.m; s++ {
		g.Go(func() error {
			sub := make([]float32, n*pq.subDim)
			for i := 0; i < n; i++ {
				copy(sub[i*pq.subDim:(i+1)*pq.subDim], trainset[i*pq.dim+s*pq.subDim:i*pq.dim+(s+1)*pq.subDim])
			}

			// Sub-space codebooks always cluster in L2; the metric only shapes the ADC table.
			centroids, err := kmeans.Train(ctx, sub, pq.subDim, kmeans.Config{
				K:       pq.k,
				Iters:   opts.Iters,
				Metric:  distance.MetricL2,
				Seed:    opts.Seed + uint64(s)*0x9e3779b97f4a7c15,
				Workers: 1,
			})
			if err != nil {
				return err
			}

			book := pq.codebook(s)
			copy(book, centroids)
			// Fewer training rows than centroids: repeat the learned ones.
			for c := len(centroids) / pq.subDim; c < pq.k; c++ {
				src := (c % (len(centroids) / pq.subDim)) * pq.subDim
				copy(book[c*pq.subDim:(c+1)*pq.subDim], centroids[src:src+pq.subDim])
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	pq.trained = true
	return nil
}

func (pq *ProductQuantizer) codebook(s int) []float32 {
	size := pq.k * pq.subDim
	return pq.codebooks[s*size : (s+1)*size]
}

// Encode quantizes vec into M codes written to dst.
func (pq *ProductQuantizer) Encode(dst []byte, vec []float32) error {
	if !pq.trained {
		return ErrNotTrained
	}
	if len(vec) != pq.dim || len(dst) < pq.m {
		return ErrDimension
	}
	for s := 0; s < pq.m; s++ {
		sub := vec[s*pq.subDim : (s+1)*pq.subDim]
		book := pq.codebook(s)
		best, bestDist := 0, float32(math.MaxFloat32)
		for c := 0; c < pq.k; c++ {
			if d := distance.SquaredL2(sub, book[c*pq.subDim:(c+1)*pq.subDim]); d < bestDist {
				best, bestDist = c, d
			}
		}
		dst[s] = byte(best)
	}
	return nil
}

// EncodeAll quantizes every row of vectors in parallel.
func (pq *ProductQuantizer) EncodeAll(ctx context.Context, vectors []float32, workers int) ([]byte, error) {
	if !pq.trained {
		return nil, ErrNotTrained
	}
	if len(vectors)%pq.dim != 0 {
		return nil, ErrDimension
	}
	n := len(vectors) / pq.dim
	codes := make([]byte, n*pq.m)
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	g, ctx := errgroup.WithContext(ctx)
	chunk := (n + workers - 1) / max(workers, 1)
	for lo := 0; lo < n; lo += chunk {
		hi := min(lo+chunk, n)
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				if i%4096 == 0 {
					if err := ctx.Err(); err != nil {
						return err
					}
				}
				if err := pq.Encode(codes[i*pq.m:(i+1)*pq.m], vectors[i*pq.dim:(i+1)*pq.dim]); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return codes, nil
}

// Decode reconstructs the approximate vector encoded by codes.
func (pq *ProductQuantizer) Decode(codes []byte) ([]float32, error) {
	if !pq.trained {
		return nil, ErrNotTrained
	}
	if len(codes) != pq.m {
		return nil, ErrDimension
	}
	out := make([]float32, pq.dim)
	for s, c := range codes {
		if int(c) >= pq.k {
			return nil, fmt.Errorf("quantization: code %d out of range for %d bits", c, pq.bits)
		}
		book := pq.codebook(s)
		copy(out[s*pq.subDim:(s+1)*pq.subDim], book[int(c)*pq.subDim:(int(c)+1)*pq.subDim])
	}
	return out, nil
}

// DistanceTable holds per sub-space distances from one query to every centroid.
type DistanceTable struct {
	m, k  int
	table []float32
}

// DistanceTable precomputes the ADC table for query.
func (pq *ProductQuantizer) DistanceTable(query []float32) *DistanceTable {
	t := &DistanceTable{m: pq.m, k: pq.k, table: make([]float32, pq.m*pq.k)}
	for s := 0; s < pq.m; s++ {
		sub := query[s*pq.subDim : (s+1)*pq.subDim]
		book := pq.codebook(s)
		row := t.table[s*pq.k : (s+1)*pq.k]
		for c := 0; c < pq.k; c++ {
			centroid := book[c*pq.subDim : (c+1)*pq.subDim]
			if pq.metric == distance.MetricInnerProduct {
				row[c] = -distance.Dot(sub, centroid)
			} else {
				row[c] = distance.SquaredL2(sub, centroid)
			}
		}
	}
	return t
}

// Distance sums the table entries selected by codes.
func (t *DistanceTable) Distance(codes []byte) float32 {
	var d float32
	for s, c := range codes[:t.m] {
		d += t.table[s*t.k+int(c)]
	}
	return d
}

// Dim returns the vector dimension.
func (pq *ProductQuantizer) Dim() int { return pq.dim }

// M returns the number of sub-quantizers, which is also the code length in bytes.
func (pq *ProductQuantizer) M() int { return pq.m }

// Bits returns the number of bits per code.
func (pq *ProductQuantizer) Bits() int { return pq.bits }

// Metric returns the metric used by distance tables.
func (pq *ProductQuantizer) Metric() distance.Metric { return pq.metric }

// Trained reports whether codebooks are available.
func (pq *ProductQuantizer) Trained() bool { return pq.trained }

// Codebooks returns the flattened codebooks (M * 2^bits * D/M). Callers must not modify it.
func (pq *ProductQuantizer) Codebooks() []float32 { return pq.codebooks }

// Clone returns a deep copy.
func (pq *ProductQuantizer) Clone() *ProductQuantizer {
	c := *pq
	c.codebooks = append([]float32(nil), pq.codebooks...)
	return &c
}

// BytesPerVector returns the encoded size of one vector.
func (pq *ProductQuantizer) BytesPerVector() int { return pq.m }

// AutoSubQuantizers returns the largest divisor of dim not exceeding dim/4
// (at least 1).
func AutoSubQuantizers(dim int) int {
	limit := max(dim/4, 1)
	for m := limit; m > 1; m-- {
		if dim%m == 0 {
			return m
		}
	}
	return 1
}
