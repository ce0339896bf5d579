package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBasicCollector(t *testing.T) {
	var c BasicCollector

	c.RecordBuild(100, 2*time.Millisecond, nil)
	c.RecordBuild(0, 4*time.Millisecond, errors.New("fail"))
	c.RecordSave(512, time.Millisecond, nil)
	c.RecordSearch(10, time.Millisecond, nil)
	c.RecordJob("completed", time.Second)
	c.RecordJob("failed", time.Second)

	s := c.Stats()
	assert.Equal(t, int64(2), s.BuildCount)
	assert.Equal(t, int64(1), s.BuildErrors)
	assert.Equal(t, int64(100), s.BuildVectors)
	assert.Equal(t, int64(3*time.Millisecond), s.BuildAvgNanos)
	assert.Equal(t, int64(512), s.SaveBytes)
	assert.Equal(t, int64(1), s.SearchCount)
	assert.Equal(t, int64(1), s.JobsCompleted)
	assert.Equal(t, int64(1), s.JobsFailed)
}

func TestOrNoop(t *testing.T) {
	assert.IsType(t, NoopCollector{}, OrNoop(nil))

	b := &BasicCollector{}
	assert.Same(t, b, OrNoop(b))
}

func TestPrometheusCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	p, err := NewPrometheusCollector(reg)
	require.NoError(t, err)

	p.RecordBuild(10, time.Millisecond, nil)
	p.RecordSearch(5, time.Millisecond, errors.New("x"))
	p.RecordSave(64, time.Millisecond, nil)
	p.RecordJob("completed", time.Second)

	assert.InDelta(t, 1, testutil.ToFloat64(p.operations.WithLabelValues("build", "ok")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(p.operations.WithLabelValues("search", "error")), 0)
	assert.InDelta(t, 10, testutil.ToFloat64(p.vectors), 0)
	assert.InDelta(t, 64, testutil.ToFloat64(p.bytes.WithLabelValues("write")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(p.jobs.WithLabelValues("completed")), 0)

	_, err = NewPrometheusCollector(reg)
	assert.Error(t, err, "duplicate registration")
}
