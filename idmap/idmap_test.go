package idmap

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/vecforge/builder"
	"github.com/hupe1980/vecforge/dataset"
	"github.com/hupe1980/vecforge/device"
	"github.com/hupe1980/vecforge/distance"
	"github.com/hupe1980/vecforge/errs"
	"github.com/hupe1980/vecforge/graph"
)

func emptyMap(t *testing.T, dim int) *Map {
	t.Helper()
	b := builder.New(device.NewResources(device.HostDevice()))
	idx, err := b.NewIndex(dim, distance.MetricL2, graph.DefaultParams())
	require.NoError(t, err)
	m, err := Wrap(idx)
	require.NoError(t, err)
	return m
}

var corners = []float32{
	0, 0,
	1, 0,
	1, 1,
	0, 1,
}

func TestWrapNil(t *testing.T) {
	_, err := Wrap(nil)
	assert.ErrorIs(t, err, errs.ErrConfiguration)
}

func TestAddWithIds(t *testing.T) {
	m := emptyMap(t, 2)
	ids := []int64{100, 101, 102, 103}
	require.NoError(t, m.AddWithIds(t.Context(), corners, ids))

	assert.Equal(t, 4, m.Len())
	assert.Equal(t, ids, m.IDs())

	for i, want := range ids {
		got, err := m.SearchOne(corners[i*2:(i+1)*2], 1, graph.SearchOptions{})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, want, got[0].ID)
		assert.Zero(t, got[0].Distance)
	}

	id, ok := m.ExternalID(2)
	assert.True(t, ok)
	assert.Equal(t, int64(102), id)
	_, ok = m.ExternalID(9)
	assert.False(t, ok)
}

func TestAddWithIdsOnce(t *testing.T) {
	m := emptyMap(t, 2)
	require.NoError(t, m.AddWithIds(t.Context(), corners, []int64{1, 2, 3, 4}))

	err := m.AddWithIds(t.Context(), corners, []int64{5, 6, 7, 8})
	assert.ErrorIs(t, err, errs.ErrInvalidState)
	assert.Equal(t, []int64{1, 2, 3, 4}, m.IDs())
}

func TestAddWithIdsShape(t *testing.T) {
	m := emptyMap(t, 2)

	assert.ErrorIs(t, m.AddWithIds(t.Context(), corners, []int64{1, 2}), errs.ErrConfiguration)
	assert.ErrorIs(t, m.AddWithIds(t.Context(), corners[:3], []int64{1}), errs.ErrConfiguration)
	assert.ErrorIs(t, m.AddWithIds(t.Context(), corners, nil), errs.ErrConfiguration)

	// Failed attempts leave the map empty and usable.
	require.NoError(t, m.AddWithIds(t.Context(), corners, []int64{1, 2, 3, 4}))
}

func TestAddWithIdsOnPopulatedIndex(t *testing.T) {
	ds, err := dataset.New(2, corners, nil)
	require.NoError(t, err)
	idx, err := builder.New(nil).Build(t.Context(), ds, distance.MetricL2, graph.DefaultParams())
	require.NoError(t, err)

	m, err := Wrap(idx)
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 1, 2, 3}, m.IDs())
	assert.ErrorIs(t, m.AddWithIds(t.Context(), corners, []int64{1, 2, 3, 4}), errs.ErrInvalidState)
}

func TestSearchPadding(t *testing.T) {
	m := emptyMap(t, 2)
	require.NoError(t, m.AddWithIds(t.Context(), corners[:6], []int64{7, 8, 9}))

	queries := []float32{0, 0, 1, 1}
	distances, labels, err := m.Search(t.Context(), queries, 5, graph.SearchOptions{})
	require.NoError(t, err)
	require.Len(t, distances, 10)
	require.Len(t, labels, 10)

	assert.Equal(t, int64(7), labels[0])
	assert.Equal(t, int64(9), labels[5])
	for _, row := range [][]int64{labels[:5], labels[5:]} {
		assert.Equal(t, []int64{MissingID, MissingID}, row[3:])
	}
	for _, d := range []float32{distances[3], distances[4], distances[8], distances[9]} {
		assert.True(t, math.IsInf(float64(d), 1))
	}
	assert.LessOrEqual(t, distances[0], distances[1])
}

func TestSearchErrors(t *testing.T) {
	m := emptyMap(t, 2)

	_, _, err := m.Search(t.Context(), []float32{0, 0}, 1, graph.SearchOptions{})
	assert.ErrorIs(t, err, errs.ErrEmptyIndex)
	_, err = m.SearchOne([]float32{0, 0}, 1, graph.SearchOptions{})
	assert.ErrorIs(t, err, errs.ErrEmptyIndex)

	// The query shape is checked before emptiness and k.
	for _, k := range []int{1, 0} {
		_, _, err = m.Search(t.Context(), []float32{0, 0, 0}, k, graph.SearchOptions{})
		assert.ErrorIs(t, err, errs.ErrDimensionMismatch, "k=%d", k)
	}
	_, err = m.SearchOne([]float32{0, 0, 0}, 1, graph.SearchOptions{})
	assert.ErrorIs(t, err, errs.ErrDimensionMismatch)

	require.NoError(t, m.AddWithIds(t.Context(), corners, []int64{1, 2, 3, 4}))

	_, _, err = m.Search(t.Context(), []float32{0, 0, 0}, 1, graph.SearchOptions{})
	var dm *errs.DimensionMismatchError
	require.ErrorAs(t, err, &dm)
	assert.Equal(t, 2, dm.Expected)

	_, _, err = m.Search(t.Context(), []float32{0, 0}, 0, graph.SearchOptions{})
	assert.ErrorIs(t, err, errs.ErrConfiguration)
}

func TestAcceptFiltersByExternalID(t *testing.T) {
	m := emptyMap(t, 2)
	require.NoError(t, m.AddWithIds(t.Context(), corners, []int64{10, 20, 30, 40}))

	got, err := m.SearchOne([]float32{0, 0}, 4, graph.SearchOptions{
		Filter: m.Accept(func(id int64) bool { return id >= 30 }),
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	for _, r := range got {
		assert.GreaterOrEqual(t, r.ID, int64(30))
	}
}

func TestFromParts(t *testing.T) {
	ds, err := dataset.New(2, corners, nil)
	require.NoError(t, err)
	idx, err := builder.New(nil).Build(t.Context(), ds, distance.MetricL2, graph.DefaultParams())
	require.NoError(t, err)

	_, err = FromParts(idx, []int64{1})
	assert.ErrorIs(t, err, errs.ErrConfiguration)

	m, err := FromParts(idx, []int64{5, 6, 7, 8})
	require.NoError(t, err)
	assert.Same(t, idx, m.Index())
	assert.Equal(t, 2, m.Dim())
	assert.ErrorIs(t, m.AddWithIds(t.Context(), corners, []int64{1, 2, 3, 4}), errs.ErrInvalidState)
}
