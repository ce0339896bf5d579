package vecforge_test

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/vecforge"
	"github.com/hupe1980/vecforge/dataset"
	"github.com/hupe1980/vecforge/device"
	"github.com/hupe1980/vecforge/graph"
	"github.com/hupe1980/vecforge/metrics"
	"github.com/hupe1980/vecforge/persistence"
	"github.com/hupe1980/vecforge/query"
)

func gpu(memory int64) device.Device {
	return device.Device{ID: 0, Kind: device.Accelerator, Name: "test-gpu", MemoryBytes: memory, Streams: 2}
}

func TestEndToEndAcceleratorToDisk(t *testing.T) {
	ds, err := dataset.New(4, []float32{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}, []int64{10, 20, 30, 40})
	require.NoError(t, err)

	var collector metrics.BasicCollector
	p, err := vecforge.New(vecforge.WithDevice(gpu(1<<30)), vecforge.WithMetrics(&collector))
	require.NoError(t, err)

	m, timings, err := p.Build(t.Context(), ds)
	require.NoError(t, err)
	assert.Equal(t, graph.Portable, m.Index().Representation())
	assert.Positive(t, timings.Build)

	path := filepath.Join(t.TempDir(), "corners.vfg")
	require.NoError(t, persistence.Save(path, m))
	loaded, err := persistence.Load(path)
	require.NoError(t, err)

	engine := query.New()
	for i := 0; i < ds.Len(); i++ {
		res, err := engine.Search(t.Context(), loaded, ds.Row(i), 1)
		require.NoError(t, err)
		require.Len(t, res, 1)
		assert.Equal(t, ds.IDs()[i], res[0].ID)
		assert.Equal(t, float32(0), res[0].Distance)
	}

	stats := collector.Stats()
	assert.Equal(t, int64(1), stats.BuildCount)
	assert.Equal(t, int64(1), stats.TransferCount)
}

func TestTransferEquivalence(t *testing.T) {
	ds := dataset.Random(100, 50, 42)

	host, err := vecforge.New()
	require.NoError(t, err)
	accel, err := vecforge.New(vecforge.WithDevice(gpu(1 << 30)))
	require.NoError(t, err)

	a, _, err := host.Build(t.Context(), ds)
	require.NoError(t, err)
	b, _, err := accel.Build(t.Context(), ds)
	require.NoError(t, err)

	engine := query.New()
	const k = 10
	var sum float64
	queries := 0
	for q := 0; q < ds.Len(); q += 5 {
		ra, err := engine.Search(t.Context(), a, ds.Row(q), k)
		require.NoError(t, err)
		rb, err := engine.Search(t.Context(), b, ds.Row(q), k)
		require.NoError(t, err)
		truth, err := query.BruteForce(a, ds.Row(q), k)
		require.NoError(t, err)

		sum += query.Recall(rb, truth)
		queries++
		assert.GreaterOrEqual(t, query.Recall(ra, truth), 0.9)
	}
	assert.GreaterOrEqual(t, sum/float64(queries), 0.95)
}

func TestEmptyPipeline(t *testing.T) {
	ds, err := dataset.New(8, nil, nil)
	require.NoError(t, err)

	p, err := vecforge.New(vecforge.WithDevice(gpu(1 << 20)))
	require.NoError(t, err)
	m, _, err := p.Build(t.Context(), ds)
	require.NoError(t, err)
	assert.Zero(t, m.Len())
	assert.Equal(t, graph.Portable, m.Index().Representation())

	_, err = query.New().Search(t.Context(), m, make([]float32, 8), 3)
	assert.ErrorIs(t, err, vecforge.ErrEmptyIndex)
}

func TestResourceExhausted(t *testing.T) {
	p, err := vecforge.New(vecforge.WithDevice(gpu(1024)))
	require.NoError(t, err)
	_, _, err = p.Build(t.Context(), dataset.Random(500, 32, 1))
	require.Error(t, err)
	assert.ErrorIs(t, err, vecforge.ErrResourceExhausted)
}

func TestInvalidOptions(t *testing.T) {
	params := graph.DefaultParams()
	params.GraphDegree = 0
	_, err := vecforge.New(vecforge.WithParams(params))
	assert.ErrorIs(t, err, vecforge.ErrConfiguration)

	var dm *vecforge.DimensionMismatchError
	p, err := vecforge.New()
	require.NoError(t, err)
	m, _, err := p.Build(t.Context(), dataset.Random(20, 4, 3))
	require.NoError(t, err)
	_, err = query.New().Search(t.Context(), m, []float32{1, 2}, 1)
	require.True(t, errors.As(err, &dm))
	assert.Equal(t, 4, dm.Expected)
	assert.Equal(t, 2, dm.Actual)
}
