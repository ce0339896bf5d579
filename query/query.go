// Package query answers k-nearest-neighbor queries against identified graph
// indexes.
//
// The Engine validates each request, runs the graph beam search with a
// configurable breadth and maps node positions to external identifiers.
// BruteForce and Recall provide exact ground truth for measuring quality.
package query

import (
	"context"
	"runtime"
	"time"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/vecforge/errs"
	"github.com/hupe1980/vecforge/graph"
	"github.com/hupe1980/vecforge/idmap"
	"github.com/hupe1980/vecforge/logging"
	"github.com/hupe1980/vecforge/metrics"
)

// DefaultEFSearch is the search breadth used when none is configured.
const DefaultEFSearch = graph.DefaultEF

// Result is an external identifier and its distance to the query.
type Result = idmap.Result

// Options configures an Engine.
type Options struct {
	// EFSearch is the default beam width. Default 100.
	EFSearch int
	// Workers bounds the concurrency of SearchBatch. Default GOMAXPROCS.
	Workers int
	Logger  *logging.Logger
	Metrics metrics.Collector
}

// Engine runs queries. It holds no per-query state and is safe for
// concurrent use.
type Engine struct {
	opts Options
}

// New creates an Engine.
func New(optFns ...func(o *Options)) *Engine {
	opts := Options{EFSearch: DefaultEFSearch}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.EFSearch <= 0 {
		opts.EFSearch = DefaultEFSearch
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	opts.Logger = logging.OrNoop(opts.Logger)
	opts.Metrics = metrics.OrNoop(opts.Metrics)
	return &Engine{opts: opts}
}

// EFSearch returns the default beam width.
func (e *Engine) EFSearch() int { return e.opts.EFSearch }

// Option tunes a single query.
type Option func(o *searchOptions)

type searchOptions struct {
	ef     int
	filter *roaring64.Bitmap
}

// WithEF overrides the beam width. The effective width is max(ef, k).
func WithEF(ef int) Option {
	return func(o *searchOptions) { o.ef = ef }
}

// WithFilter restricts results to the external identifiers in allow.
func WithFilter(allow *roaring64.Bitmap) Option {
	return func(o *searchOptions) { o.filter = allow }
}

func (e *Engine) searchOptions(m *idmap.Map, opts []Option) graph.SearchOptions {
	so := searchOptions{ef: e.opts.EFSearch}
	for _, fn := range opts {
		fn(&so)
	}
	out := graph.SearchOptions{EF: so.ef}
	if so.filter != nil {
		allow := so.filter
		out.Filter = m.Accept(func(id int64) bool { return allow.Contains(uint64(id)) })
	}
	return out
}

// Search returns up to k neighbors of q, closest first. Without a filter it
// returns exactly min(k, N) results.
func (e *Engine) Search(ctx context.Context, m *idmap.Map, q []float32, k int, opts ...Option) (res []Result, err error) {
	start := time.Now()
	defer func() {
		e.opts.Logger.LogSearch(ctx, k, len(res), err)
		e.opts.Metrics.RecordSearch(len(res), time.Since(start), err)
	}()

	if m == nil {
		return nil, errs.Configuration("query.search", "index", "map is nil")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return m.SearchOne(q, k, e.searchOptions(m, opts))
}

// SearchBatch runs one search per query concurrently. Results are in query
// order; the first failure cancels the remaining queries.
func (e *Engine) SearchBatch(ctx context.Context, m *idmap.Map, queries [][]float32, k int, opts ...Option) ([][]Result, error) {
	out := make([][]Result, len(queries))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Workers)
	for i, q := range queries {
		g.Go(func() error {
			res, err := e.Search(ctx, m, q, k, opts...)
			if err != nil {
				return err
			}
			out[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
