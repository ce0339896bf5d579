package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/vecforge/device"
	"github.com/hupe1980/vecforge/distance"
	"github.com/hupe1980/vecforge/errs"
)

// square returns four 2-d corners linked in a ring.
func square(repr Representation) Parts {
	return Parts{
		Representation: repr,
		Device:         device.Device{ID: 0, Kind: device.Accelerator},
		Dim:            2,
		Metric:         distance.MetricL2,
		Params:         Params{GraphDegree: 2, IntermediateGraphDegree: 2, StoreDataset: true},
		Rows:           [][]uint32{{1, 3}, {0, 2}, {1, 3}, {2}},
		Vectors:        []float32{0, 0, 1, 0, 1, 1, 0, 1},
	}
}

func TestParamsValidate(t *testing.T) {
	require.NoError(t, DefaultParams().Validate())

	p := DefaultParams()
	p.GraphDegree = 0
	assert.ErrorIs(t, p.Validate(), errs.ErrConfiguration)

	p = DefaultParams()
	p.IntermediateGraphDegree = 8
	assert.ErrorIs(t, p.Validate(), errs.ErrConfiguration)

	p = DefaultParams()
	p.BuildAlgo = 9
	assert.ErrorIs(t, p.Validate(), errs.ErrConfiguration)
}

func TestParseBuildAlgo(t *testing.T) {
	a, err := ParseBuildAlgo("GREEDY")
	require.NoError(t, err)
	assert.Equal(t, BuildAlgoGreedy, a)

	_, err = ParseBuildAlgo("nn_descent")
	assert.ErrorIs(t, err, errs.ErrConfiguration)
}

func TestLayoutsExposeSameNeighbors(t *testing.T) {
	acc, err := New(square(Accelerator))
	require.NoError(t, err)
	port, err := New(square(Portable))
	require.NoError(t, err)

	assert.Equal(t, Accelerator, acc.Representation())
	assert.Equal(t, Portable, port.Representation())
	assert.Equal(t, device.HostID, port.Device().ID)
	assert.Equal(t, 0, acc.Device().ID)

	for i := uint32(0); i < 4; i++ {
		assert.Equal(t, acc.Neighbors(i, nil), port.Neighbors(i, nil))
		assert.Equal(t, acc.Degree(i), port.Degree(i))
	}
	assert.Equal(t, 1, acc.Degree(3))
	assert.Equal(t, 7, acc.Edges())
	assert.Equal(t, 2, acc.MaxDegree())
	assert.Equal(t, 2, port.MaxDegree())
}

func TestNewRejectsInconsistentParts(t *testing.T) {
	p := square(Portable)
	p.Vectors = p.Vectors[:6]
	_, err := New(p)
	assert.ErrorIs(t, err, errs.ErrConfiguration)

	p = square(Portable)
	p.Entry = 9
	_, err = New(p)
	assert.ErrorIs(t, err, errs.ErrConfiguration)

	p = square(Portable)
	p.Vectors = nil
	_, err = New(p)
	assert.ErrorIs(t, err, errs.ErrConfiguration)

	p = square(Accelerator)
	p.Rows[0] = []uint32{1, 7}
	_, err = New(p)
	assert.ErrorIs(t, err, errs.ErrConfiguration)

	p = square(Portable)
	p.Rows = nil
	p.Offsets = []uint64{0, 2, 1, 3, 4}
	p.Neighbors = []uint32{1, 3, 0, 2}
	_, err = New(p)
	assert.ErrorIs(t, err, errs.ErrConfiguration)
}

func TestSearch(t *testing.T) {
	idx, err := New(square(Portable))
	require.NoError(t, err)

	res, err := idx.Search([]float32{1, 1}, 2, SearchOptions{})
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, uint32(2), res[0].Node)
	assert.Equal(t, float32(0), res[0].Distance)

	res, err = idx.Search([]float32{1, 1}, 10, SearchOptions{EF: 1})
	require.NoError(t, err)
	assert.Len(t, res, 4)
}

func TestSearchFilter(t *testing.T) {
	idx, err := New(square(Accelerator))
	require.NoError(t, err)

	res, err := idx.Search([]float32{1, 1}, 4, SearchOptions{Filter: func(n uint32) bool { return n < 2 }})
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, uint32(1), res[0].Node)
}

func TestSearchErrors(t *testing.T) {
	idx, err := New(square(Portable))
	require.NoError(t, err)

	_, err = idx.Search([]float32{1}, 1, SearchOptions{})
	var dm *errs.DimensionMismatchError
	require.ErrorAs(t, err, &dm)
	assert.Equal(t, 2, dm.Expected)

	_, err = idx.Search([]float32{1, 1}, 0, SearchOptions{})
	assert.ErrorIs(t, err, errs.ErrConfiguration)

	empty, err := NewEmpty(Portable, device.HostDevice(), 2, distance.MetricL2, DefaultParams(), nil)
	require.NoError(t, err)
	_, err = empty.Search([]float32{1, 1}, 1, SearchOptions{})
	assert.ErrorIs(t, err, errs.ErrEmptyIndex)
}
