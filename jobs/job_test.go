package jobs_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/vecforge/errs"
	"github.com/hupe1980/vecforge/jobs"
	"github.com/hupe1980/vecforge/jobs/jobstest"
)

func TestMemoryStore(t *testing.T) {
	jobstest.Run(t, func(t *testing.T) jobs.Store {
		return jobs.NewMemoryStore()
	})
}

func TestRequestValidate(t *testing.T) {
	require.NoError(t, jobstest.Request().Validate())

	tests := []struct {
		name   string
		mutate func(r *jobs.Request)
		param  string
	}{
		{"bucket", func(r *jobs.Request) { r.BucketName = " " }, "bucketName"},
		{"location", func(r *jobs.Request) { r.ObjectLocation = "" }, "objectLocation"},
		{"rootLocation", func(r *jobs.Request) { r.ObjectLocation = "/" }, "objectLocation"},
		{"count", func(r *jobs.Request) { r.NumberOfVectors = 0 }, "numberOfVectors"},
		{"dims", func(r *jobs.Request) { r.Dimensions = -1 }, "dimensions"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := jobstest.Request()
			tt.mutate(&r)
			err := r.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, errs.ErrConfiguration)
			assert.Equal(t, tt.param, errs.FieldsOf(err)["param"])
		})
	}
}

func TestTransition(t *testing.T) {
	j := jobs.New(jobstest.Request())
	assert.NotEmpty(t, j.ID)
	assert.Equal(t, jobs.StatusSubmitted, j.Status)

	require.Error(t, j.Transition(jobs.StatusCompleted))
	require.NoError(t, j.Transition(jobs.StatusRunning))
	require.Error(t, j.Transition(jobs.StatusSubmitted))
	require.NoError(t, j.Transition(jobs.StatusCompleted))
	assert.True(t, j.Status.Terminal())

	err := j.Transition(jobs.StatusFailed)
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrInvalidState)

	k := jobs.New(jobstest.Request())
	require.NoError(t, k.Transition(jobs.StatusFailed))
	assert.NotEqual(t, j.ID, k.ID)
}

func TestStatusValid(t *testing.T) {
	for _, s := range []jobs.Status{jobs.StatusSubmitted, jobs.StatusRunning, jobs.StatusCompleted, jobs.StatusFailed} {
		assert.True(t, s.Valid(), s)
	}
	assert.False(t, jobs.Status("queued").Valid())
}
