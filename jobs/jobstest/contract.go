// Package jobstest checks jobs.Store implementations against a shared
// contract.
package jobstest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/vecforge/errs"
	"github.com/hupe1980/vecforge/jobs"
)

// Request returns a valid build request.
func Request() jobs.Request {
	return jobs.Request{
		BucketName:      "vectors",
		ObjectLocation:  "datasets/sift.bin",
		NumberOfVectors: 1000,
		Dimensions:      128,
	}
}

// Run exercises a fresh store from newStore for every subtest.
func Run(t *testing.T, newStore func(t *testing.T) jobs.Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("CreateGet", func(t *testing.T) {
		s := newStore(t)
		j := jobs.New(Request())
		require.NoError(t, s.Create(ctx, j))

		got, err := s.Get(ctx, j.ID)
		require.NoError(t, err)
		assert.Equal(t, j.ID, got.ID)
		assert.Equal(t, jobs.StatusSubmitted, got.Status)
		assert.Equal(t, j.Request, got.Request)
		assert.Nil(t, got.Result)
		assert.True(t, j.CreatedAt.Equal(got.CreatedAt))
	})

	t.Run("CreateDuplicate", func(t *testing.T) {
		s := newStore(t)
		j := jobs.New(Request())
		require.NoError(t, s.Create(ctx, j))
		err := s.Create(ctx, j)
		require.Error(t, err)
		assert.ErrorIs(t, err, errs.ErrInvalidState)
	})

	t.Run("GetMissing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(ctx, "missing")
		require.Error(t, err)
		assert.ErrorIs(t, err, errs.ErrNotFound)
		assert.Equal(t, errs.CodeJobNotFound, errs.CodeOf(err))
	})

	t.Run("UpdateLifecycle", func(t *testing.T) {
		s := newStore(t)
		j := jobs.New(Request())
		require.NoError(t, s.Create(ctx, j))

		require.NoError(t, j.Transition(jobs.StatusRunning))
		require.NoError(t, s.Update(ctx, j))
		got, err := s.Get(ctx, j.ID)
		require.NoError(t, err)
		assert.Equal(t, jobs.StatusRunning, got.Status)

		require.NoError(t, j.Transition(jobs.StatusCompleted))
		j.Result = &jobs.Result{
			Bucket:        "vectors",
			IndexLocation: "datasets/sift.bin.vfg.cpu",
			DeviceType:    "cpu",
			IndexBytes:    4096,
			Vectors:       1000,
			Dimensions:    128,
			Stats:         jobs.Stats{BuildSeconds: 1.5, TotalSeconds: 2},
		}
		require.NoError(t, s.Update(ctx, j))

		got, err = s.Get(ctx, j.ID)
		require.NoError(t, err)
		assert.Equal(t, jobs.StatusCompleted, got.Status)
		require.NotNil(t, got.Result)
		assert.Equal(t, *j.Result, *got.Result)
	})

	t.Run("UpdateFailure", func(t *testing.T) {
		s := newStore(t)
		j := jobs.New(Request())
		require.NoError(t, s.Create(ctx, j))
		require.NoError(t, j.Transition(jobs.StatusFailed))
		j.Error = "download: object not found"
		require.NoError(t, s.Update(ctx, j))

		got, err := s.Get(ctx, j.ID)
		require.NoError(t, err)
		assert.Equal(t, jobs.StatusFailed, got.Status)
		assert.Equal(t, j.Error, got.Error)
	})

	t.Run("UpdateMissing", func(t *testing.T) {
		s := newStore(t)
		err := s.Update(ctx, jobs.New(Request()))
		require.Error(t, err)
		assert.ErrorIs(t, err, errs.ErrNotFound)
	})

	t.Run("List", func(t *testing.T) {
		s := newStore(t)
		list, err := s.List(ctx)
		require.NoError(t, err)
		assert.Empty(t, list)

		base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
		var ids []string
		for i := 0; i < 3; i++ {
			j := jobs.New(Request())
			j.CreatedAt = base.Add(time.Duration(i) * time.Minute)
			j.UpdatedAt = j.CreatedAt
			require.NoError(t, s.Create(ctx, j))
			ids = append(ids, j.ID)
		}

		list, err = s.List(ctx)
		require.NoError(t, err)
		require.Len(t, list, 3)
		for i, j := range list {
			assert.Equal(t, ids[i], j.ID)
		}
	})

	t.Run("StoredCopiesAreIndependent", func(t *testing.T) {
		s := newStore(t)
		j := jobs.New(Request())
		require.NoError(t, s.Create(ctx, j))
		j.Status = jobs.StatusRunning

		got, err := s.Get(ctx, j.ID)
		require.NoError(t, err)
		assert.Equal(t, jobs.StatusSubmitted, got.Status)
	})
}
