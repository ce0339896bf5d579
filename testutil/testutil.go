package testutil

import (
	"cmp"
	"context"
	"slices"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hupe1980/vecforge/builder"
	"github.com/hupe1980/vecforge/dataset"
	"github.com/hupe1980/vecforge/device"
	"github.com/hupe1980/vecforge/distance"
	"github.com/hupe1980/vecforge/graph"
	"github.com/hupe1980/vecforge/idmap"
)

// Corners returns the four unit vectors of dimension 4 with sequential ids.
func Corners(t testing.TB) *dataset.Dataset {
	t.Helper()
	ds, err := dataset.New(4, []float32{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}, nil)
	require.NoError(t, err)
	return ds
}

// OffsetIDs returns base, base+step, ... for n rows.
func OffsetIDs(n int, base, step int64) []int64 {
	ids := make([]int64, n)
	for i := range ids {
		ids[i] = base + int64(i)*step
	}
	return ids
}

// SmallParams returns greedy parameters sized for datasets of a few hundred
// rows.
func SmallParams(seed int64) graph.Params {
	p := graph.DefaultParams()
	p.GraphDegree = 8
	p.IntermediateGraphDegree = 16
	p.BuildAlgo = graph.BuildAlgoGreedy
	p.Seed = seed
	return p
}

// HostBuilder returns a builder on the host device.
func HostBuilder() *builder.Builder {
	return builder.New(device.NewResources(device.HostDevice()))
}

// BuildMap builds an L2 index of ds on the host and attaches ids through
// AddWithIds. Nil ids default to 0..n-1; an empty ds yields an empty map.
func BuildMap(t testing.TB, ds *dataset.Dataset, params graph.Params, ids []int64) *idmap.Map {
	t.Helper()
	idx, err := HostBuilder().NewIndex(ds.Dim(), distance.MetricL2, params)
	require.NoError(t, err)
	m, err := idmap.Wrap(idx)
	require.NoError(t, err)
	if ds.Len() == 0 {
		return m
	}
	if ids == nil {
		ids = dataset.SequentialIDs(ds.Len())
	}
	require.NoError(t, m.AddWithIds(context.Background(), ds.Vectors(), ids))
	return m
}

// ExactTopK scans ds and returns the k nearest rows to q under metric,
// closest first, ties broken by id. Nil ids default to 0..n-1.
func ExactTopK(ds *dataset.Dataset, ids []int64, metric distance.Metric, q []float32, k int) []idmap.Result {
	dist, err := distance.Provider(metric)
	if err != nil {
		panic(err)
	}
	if ids == nil {
		ids = dataset.SequentialIDs(ds.Len())
	}
	all := make([]idmap.Result, ds.Len())
	for i := range all {
		all[i] = idmap.Result{ID: ids[i], Distance: dist(q, ds.Row(i))}
	}
	slices.SortFunc(all, func(a, b idmap.Result) int {
		if c := cmp.Compare(a.Distance, b.Distance); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return all[:min(k, len(all))]
}

// IDsOf returns the identifiers of results in order.
func IDsOf(results []idmap.Result) []int64 {
	out := make([]int64, len(results))
	for i, r := range results {
		out[i] = r.ID
	}
	return out
}
