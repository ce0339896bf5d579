package kmeans

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/vecforge/distance"
)

func twoBlobs() []float32 {
	return []float32{
		0, 0, 0, 1, 1, 0, // near 0,0
		10, 10, 10, 11, 11, 10, // near 10,10
	}
}

func TestTrain(t *testing.T) {
	centroids, err := Train(t.Context(), twoBlobs(), 2, Config{K: 2, Iters: 20, Seed: 1})
	require.NoError(t, err)
	assert.Len(t, centroids, 4)

	p1, err := Assign([]float32{0.5, 0.5}, centroids, 2, distance.MetricL2)
	require.NoError(t, err)
	p2, err := Assign([]float32{10.5, 10.5}, centroids, 2, distance.MetricL2)
	require.NoError(t, err)
	assert.NotEqual(t, p1, p2)
}

func TestTrain_Deterministic(t *testing.T) {
	vecs := make([]float32, 500*4)
	for i := range vecs {
		vecs[i] = float32((i*7919)%101) / 10
	}

	a, err := Train(t.Context(), vecs, 4, Config{K: 8, Iters: 10, Seed: 42, Workers: 1})
	require.NoError(t, err)
	b, err := Train(t.Context(), vecs, 4, Config{K: 8, Iters: 10, Seed: 42, Workers: 7})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestTrain_ClampsK(t *testing.T) {
	centroids, err := Train(t.Context(), []float32{1, 2}, 2, Config{K: 4, Iters: 3})
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2}, centroids)
}

func TestTrain_Errors(t *testing.T) {
	_, err := Train(t.Context(), nil, 2, Config{K: 1})
	assert.ErrorIs(t, err, ErrNoData)

	_, err = Train(t.Context(), []float32{0, 0}, 2, Config{K: 1, Metric: distance.Metric(99)})
	assert.Error(t, err)
}

func TestTrain_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	vecs := make([]float32, 1000*2)
	for i := range vecs {
		vecs[i] = float32(i)
	}

	_, err := Train(ctx, vecs, 2, Config{K: 10, Iters: 1000})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClosest(t *testing.T) {
	centroids := []float32{0, 0, 5, 5, 10, 10}

	ids, err := Closest([]float32{9, 9}, centroids, 2, 2, distance.MetricL2)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 1}, ids)

	ids, err = Closest([]float32{0, 0}, centroids, 2, 10, distance.MetricL2)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, ids)
}
